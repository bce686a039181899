package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/chainshadow/internal/config"
	"github.com/roach88/chainshadow/internal/parity"
)

// Scenario is one scripted run against a single key.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Config overlays config.DefaultOptions.
	Config config.Options `yaml:"config"`

	Item ItemFixture `yaml:"item"`

	// Baseline is the reference field mapping. Omitted means every
	// diffed field differs.
	Baseline parity.Baseline `yaml:"baseline,omitempty"`

	Cycles     []CycleStep `yaml:"cycles"`
	Assertions []Assertion `yaml:"assertions"`
}

// ItemFixture is what the resolve and enrich effects produce for a key.
type ItemFixture struct {
	Index    string             `yaml:"index"`
	Rule     string             `yaml:"rule"`
	Expiry   string             `yaml:"expiry"`
	Strikes  []float64          `yaml:"strikes"`
	Coverage map[string]float64 `yaml:"coverage,omitempty"`
}

// CycleStep runs Repeat identical cycles.
type CycleStep struct {
	Repeat    int           `yaml:"repeat,omitempty"`
	Phases    []PhaseScript `yaml:"phases"`
	Secondary []PhaseScript `yaml:"secondary,omitempty"`
	Drift     *Drift        `yaml:"drift,omitempty"`

	// ForceDemote toggles the per-key demotion control before the step.
	ForceDemote *bool `yaml:"force_demote,omitempty"`
}

// Drift changes what the effects produce for one step.
type Drift struct {
	Expiry     string    `yaml:"expiry,omitempty"`
	Strikes    []float64 `yaml:"strikes,omitempty"`
	DropQuotes int       `yaml:"drop_quotes,omitempty"`
}

// PhaseScript scripts one phase.
type PhaseScript struct {
	Name   string `yaml:"name"`
	Effect string `yaml:"effect,omitempty"`
	// Outcomes lists the outcome of each attempt. The last entry repeats.
	// Empty means ok.
	Outcomes []string `yaml:"outcomes,omitempty"`
	Message  string   `yaml:"message,omitempty"`
}

// Scripted outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeAbort       = "abort"
	OutcomeRecoverable = "recoverable"
	OutcomeFatal       = "fatal"
	OutcomeUnknown     = "unknown"
	OutcomePanic       = "panic"
)

// Phase effects.
const (
	EffectResolve  = "resolve"
	EffectEnrich   = "enrich"
	EffectCoverage = "coverage"
	EffectPersist  = "persist"
	EffectNone     = "none"
)

var (
	validOutcomes = []string{OutcomeOK, OutcomeAbort, OutcomeRecoverable, OutcomeFatal, OutcomeUnknown, OutcomePanic}
	validEffects  = []string{EffectResolve, EffectEnrich, EffectCoverage, EffectPersist, EffectNone}
)

// LoadScenario reads and validates a scenario YAML file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBase(path, config.DefaultOptions())
}

// LoadScenarioWithBase is LoadScenario with the scenario's config block
// overlaid on base instead of the defaults.
func LoadScenarioWithBase(path string, base config.Options) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return parseScenario(data, base)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	return parseScenario(data, config.DefaultOptions())
}

func parseScenario(data []byte, base config.Options) (*Scenario, error) {
	s := Scenario{Config: base}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("invalid scenario: empty document")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// Validate checks required fields, scripts and the embedded config.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Item.Index == "" || s.Item.Rule == "" {
		return fmt.Errorf("item.index and item.rule are required")
	}
	if _, err := parseExpiry(s.Item.Expiry); err != nil {
		return fmt.Errorf("item.expiry: %w", err)
	}
	if err := s.Config.Validate(); err != nil {
		return err
	}
	if len(s.Cycles) == 0 {
		return fmt.Errorf("cycles list is required and must be non-empty")
	}

	for i, step := range s.Cycles {
		if step.Repeat < 0 {
			return fmt.Errorf("cycles[%d]: repeat must be non-negative", i)
		}
		if len(step.Phases) == 0 {
			return fmt.Errorf("cycles[%d]: phases list is required", i)
		}
		if step.Drift != nil {
			if _, err := parseExpiry(step.Drift.Expiry); err != nil {
				return fmt.Errorf("cycles[%d].drift.expiry: %w", i, err)
			}
			if step.Drift.DropQuotes < 0 {
				return fmt.Errorf("cycles[%d].drift.drop_quotes must be non-negative", i)
			}
		}
		for j, p := range step.Phases {
			if err := p.validate(); err != nil {
				return fmt.Errorf("cycles[%d].phases[%d]: %w", i, j, err)
			}
		}
		for j, p := range step.Secondary {
			if err := p.validate(); err != nil {
				return fmt.Errorf("cycles[%d].secondary[%d]: %w", i, j, err)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func (p PhaseScript) validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.Effect != "" && !slices.Contains(validEffects, p.Effect) {
		return fmt.Errorf("unknown effect %q", p.Effect)
	}
	for _, o := range p.Outcomes {
		if !slices.Contains(validOutcomes, o) {
			return fmt.Errorf("unknown outcome %q", o)
		}
	}
	return nil
}

// repeat returns how many cycles the step runs. Zero means one.
func (c CycleStep) repeat() int {
	if c.Repeat == 0 {
		return 1
	}
	return c.Repeat
}

// withDrift returns the fixture the effects use for a step.
func (f ItemFixture) withDrift(d *Drift) (ItemFixture, int) {
	if d == nil {
		return f, 0
	}
	if d.Expiry != "" {
		f.Expiry = d.Expiry
	}
	if d.Strikes != nil {
		f.Strikes = d.Strikes
	}
	return f, d.DropQuotes
}

// parseExpiry accepts an empty string as "no expiry".
func parseExpiry(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(parity.ExpiryLayout, s)
}
