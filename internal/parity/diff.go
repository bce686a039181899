package parity

import (
	"fmt"
	"math"
	"time"
)

// FieldListVersion names the diffed field list below.
const FieldListVersion = "v1"

// Diffed field names.
const (
	FieldExpiryDate      = "expiry_date"
	FieldStrikeCount     = "strike_count"
	FieldInstrumentCount = "instrument_count"
	FieldEnrichedKeys    = "enriched_keys"
)

// DiffFields is field list v1, in comparison order.
var DiffFields = []string{FieldExpiryDate, FieldStrikeCount, FieldInstrumentCount, FieldEnrichedKeys}

// Baseline is a plain field mapping produced by the reference path.
type Baseline map[string]any

// Diff returns the diffed fields whose values differ from baseline, in
// DiffFields order. A nil baseline differs on every field; a key missing
// from a non-nil baseline differs too.
func Diff(s Snapshot, baseline Baseline) []string {
	if baseline == nil {
		out := make([]string, len(DiffFields))
		copy(out, DiffFields)
		return out
	}
	current := s.Fields()
	var diffs []string
	for _, field := range DiffFields {
		want, ok := baseline[field]
		if !ok || !equalField(field, current[field], want) {
			diffs = append(diffs, field)
		}
	}
	return diffs
}

func equalField(field string, got, want any) bool {
	if field == FieldExpiryDate {
		return got == normalizeDate(want)
	}
	a, okA := asInt(got)
	b, okB := asInt(want)
	return okA && okB && a == b
}

func normalizeDate(v any) string {
	switch d := v.(type) {
	case string:
		return d
	case time.Time:
		if d.IsZero() {
			return ""
		}
		return d.Format(ExpiryLayout)
	case nil:
		return ""
	default:
		return fmt.Sprint(d)
	}
}

// asInt accepts the integer shapes YAML and JSON decoders produce.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true //nolint:gosec // counts are small
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}
