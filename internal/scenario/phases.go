package scenario

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/roach88/chainshadow/internal/pipeline"
)

// scriptedPhase plays back a PhaseScript. A fresh instance is built per
// cycle so the attempt counter starts at zero.
type scriptedPhase struct {
	script     PhaseScript
	fixture    ItemFixture
	dropQuotes int
	attempts   int
}

var _ pipeline.Phase = (*scriptedPhase)(nil)

func buildPhases(scripts []PhaseScript, fixture ItemFixture, dropQuotes int) []pipeline.Phase {
	phases := make([]pipeline.Phase, len(scripts))
	for i, s := range scripts {
		phases[i] = &scriptedPhase{script: s, fixture: fixture, dropQuotes: dropQuotes}
	}
	return phases
}

func (p *scriptedPhase) Name() string { return p.script.Name }

func (p *scriptedPhase) Run(_ context.Context, item *pipeline.WorkItem) pipeline.Outcome {
	p.attempts++
	outcome := p.script.outcomeFor(p.attempts)
	msg := p.script.Message
	if msg == "" {
		msg = "scripted " + outcome
	}

	switch outcome {
	case OutcomeOK:
		if err := p.apply(item); err != nil {
			return pipeline.Fatal(err.Error())
		}
		return pipeline.Ok(nil)
	case OutcomeAbort:
		return pipeline.Abort(msg)
	case OutcomeRecoverable:
		return pipeline.Recoverable(msg).WithContext("attempt", strconv.Itoa(p.attempts))
	case OutcomeFatal:
		return pipeline.Fatal(msg)
	case OutcomePanic:
		panic(msg)
	default:
		return pipeline.Unknown(msg)
	}
}

func (s PhaseScript) outcomeFor(attempt int) string {
	if len(s.Outcomes) == 0 {
		return OutcomeOK
	}
	if attempt > len(s.Outcomes) {
		return s.Outcomes[len(s.Outcomes)-1]
	}
	return s.Outcomes[attempt-1]
}

func (s PhaseScript) effect() string {
	if s.Effect != "" {
		return s.Effect
	}
	if slices.Contains(validEffects, s.Name) {
		return s.Name
	}
	return EffectNone
}

func (p *scriptedPhase) apply(item *pipeline.WorkItem) error {
	switch p.script.effect() {
	case EffectResolve:
		expiry, err := parseExpiry(p.fixture.Expiry)
		if err != nil {
			return fmt.Errorf("resolve expiry: %w", err)
		}
		item.Expiry = expiry
		item.Strikes = slices.Clone(p.fixture.Strikes)
		item.Instruments = item.Instruments[:0]
		for _, k := range p.fixture.Strikes {
			for _, typ := range []string{"CE", "PE"} {
				item.Instruments = append(item.Instruments, pipeline.Instrument{
					Symbol:     instrumentSymbol(item.Index, expiry.Format("060102"), k, typ),
					Strike:     k,
					OptionType: typ,
				})
			}
		}
	case EffectEnrich:
		if item.Enriched == nil {
			item.Enriched = make(map[string]pipeline.Quote)
		}
		n := len(item.Instruments) - p.dropQuotes
		for i, inst := range item.Instruments {
			if i >= n {
				break
			}
			mid := inst.Strike / 100
			item.Enriched[inst.Symbol] = pipeline.Quote{
				Bid:          mid - 0.5,
				Ask:          mid + 0.5,
				Last:         mid,
				OpenInterest: int64(1000 + i),
			}
		}
	case EffectCoverage:
		item.SetMeta(pipeline.MetaCoverage, maps.Clone(p.fixture.Coverage))
	case EffectPersist:
		item.SetMeta(pipeline.MetaPersistSimulated, len(item.Instruments))
	}
	return nil
}

func instrumentSymbol(index, expiry string, strike float64, typ string) string {
	return index + expiry + strconv.FormatFloat(strike, 'f', -1, 64) + typ
}
