package parity

import (
	"math"
	"sort"
	"strconv"

	"github.com/roach88/chainshadow/internal/pipeline"
)

// StrikeSampleSize is the number of strikes kept in the snapshot sample.
const StrikeSampleSize = 16

// ExpiryLayout formats expiry dates in snapshots and baselines.
const ExpiryLayout = "2006-01-02"

// Snapshot is the structural fingerprint of one item's output.
type Snapshot struct {
	ExpiryDate      string   `json:"expiry_date"`
	StrikeCount     int      `json:"strike_count"`
	InstrumentCount int      `json:"instrument_count"`
	EnrichedKeys    int      `json:"enriched_keys"`
	StrikeSample    []string `json:"strike_sample"`
}

// Observational carries derived fields that feed the hash but are not diffed.
type Observational struct {
	// Coverage maps a coverage dimension to a ratio in [0,1].
	Coverage         map[string]float64 `json:"coverage,omitempty"`
	PersistSimulated int                `json:"persist_simulated"`
}

// Build takes the snapshot of item.
//
// Strikes are sorted numerically before truncation so the sample does not
// depend on the order phases appended them.
func Build(item *pipeline.WorkItem) Snapshot {
	s := Snapshot{
		StrikeCount:     len(item.Strikes),
		InstrumentCount: len(item.Instruments),
		EnrichedKeys:    len(item.Enriched),
	}
	if !item.Expiry.IsZero() {
		s.ExpiryDate = item.Expiry.Format(ExpiryLayout)
	}

	sorted := make([]float64, len(item.Strikes))
	copy(sorted, item.Strikes)
	sort.Float64s(sorted)
	if len(sorted) > StrikeSampleSize {
		sorted = sorted[:StrikeSampleSize]
	}
	s.StrikeSample = make([]string, len(sorted))
	for i, k := range sorted {
		s.StrikeSample[i] = strconv.FormatFloat(k, 'f', -1, 64)
	}
	return s
}

// ObservationalFrom reads coverage and simulated-persistence counts from
// item metadata. Missing or mistyped values are treated as absent.
func ObservationalFrom(item *pipeline.WorkItem) Observational {
	var obs Observational
	if cov, ok := item.Metadata[pipeline.MetaCoverage].(map[string]float64); ok {
		obs.Coverage = cov
	}
	switch n := item.Metadata[pipeline.MetaPersistSimulated].(type) {
	case int:
		obs.PersistSimulated = n
	case int64:
		obs.PersistSimulated = int(n)
	}
	return obs
}

// Fields returns the snapshot as a plain field mapping, the same shape
// callers use for baselines.
func (s Snapshot) Fields() Baseline {
	return Baseline{
		FieldExpiryDate:      s.ExpiryDate,
		FieldStrikeCount:     s.StrikeCount,
		FieldInstrumentCount: s.InstrumentCount,
		FieldEnrichedKeys:    s.EnrichedKeys,
	}
}

// basisPoints converts a ratio to an integer so it can be hashed canonically.
func basisPoints(r float64) int64 {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return -1
	}
	return int64(math.Round(r * 10000))
}
