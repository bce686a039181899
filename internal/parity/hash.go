package parity

import (
	"github.com/roach88/chainshadow/internal/ir"
)

// Hash returns the short parity hash over the snapshot and observational
// fields. Floats are never hashed directly: strikes are already strings and
// coverage ratios are converted to basis points.
func Hash(s Snapshot, obs Observational) (string, error) {
	coverage := make(ir.Object, len(obs.Coverage))
	for k, v := range obs.Coverage {
		coverage[k] = ir.Int(basisPoints(v))
	}
	doc := ir.Object{
		"field_list":        ir.String(FieldListVersion),
		"expiry_date":       ir.String(s.ExpiryDate),
		"strike_count":      ir.Int(s.StrikeCount),
		"instrument_count":  ir.Int(s.InstrumentCount),
		"enriched_keys":     ir.Int(s.EnrichedKeys),
		"strike_sample":     ir.Strings(s.StrikeSample),
		"coverage_bp":       coverage,
		"persist_simulated": ir.Int(obs.PersistSimulated),
	}
	return ir.ShortDigest(ir.DomainParity, doc)
}
