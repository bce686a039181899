package pipeline

import (
	"time"
)

// Reserved metadata keys written by this module and the shadow runner.
const (
	MetaEvents           = "events"
	MetaCycleSummary     = "cycle_summary"
	MetaErrorExport      = "structured_errors_export"
	MetaGatingDecision   = "gating_decision"
	MetaParityHash       = "parity_hash"
	MetaParitySnapshot   = "parity_snapshot"
	MetaParityDiffFields = "parity_diff_fields"
	MetaParityDiffCount  = "parity_diff_count"
	MetaCoverage         = "coverage"
	MetaPersistSimulated = "persist_simulated"
	MetaCycleID          = "cycle_id"
)

// Key identifies one collection unit.
type Key struct {
	Index string `json:"index"`
	Rule  string `json:"rule"`
}

// String renders the key as "index/rule".
func (k Key) String() string {
	return k.Index + "/" + k.Rule
}

// Instrument is one tradable contract resolved for an item.
type Instrument struct {
	Symbol     string  `json:"symbol"`
	Strike     float64 `json:"strike"`
	OptionType string  `json:"option_type"`
}

// Quote is an enriched market quote for one instrument symbol.
type Quote struct {
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Last         float64 `json:"last"`
	OpenInterest int64   `json:"open_interest"`
}

// WorkItem is the unit of work for one (index, rule) cycle.
//
// A WorkItem is owned by exactly one execution. Phases mutate it in place.
type WorkItem struct {
	Index    string
	Rule     string
	Settings any

	// Expiry is zero until a resolve phase fills it in.
	Expiry      time.Time
	Strikes     []float64
	Instruments []Instrument
	Enriched    map[string]Quote

	Metadata map[string]any

	// Errors holds legacy tokens of the form "<classification>:<phase>:<message>".
	Errors []string
	// ErrorRecords parallels Errors with structured detail.
	ErrorRecords []ErrorRecord
}

// NewWorkItem creates an empty item for the given key.
func NewWorkItem(index, rule string, settings any) *WorkItem {
	return &WorkItem{
		Index:    index,
		Rule:     rule,
		Settings: settings,
		Enriched: make(map[string]Quote),
		Metadata: make(map[string]any),
	}
}

// Key returns the (index, rule) key.
func (w *WorkItem) Key() Key {
	return Key{Index: w.Index, Rule: w.Rule}
}

// SetMeta stores a metadata value, allocating the map if needed.
func (w *WorkItem) SetMeta(key string, value any) {
	if w.Metadata == nil {
		w.Metadata = make(map[string]any)
	}
	w.Metadata[key] = value
}

// Events returns the structured events buffered on the item.
func (w *WorkItem) Events() []Event {
	events, _ := w.Metadata[MetaEvents].([]Event)
	return events
}

// AppendEvent buffers a structured event on the item.
func (w *WorkItem) AppendEvent(ev Event) {
	w.SetMeta(MetaEvents, append(w.Events(), ev))
}

// Adopt returns the item a phase handed back in Ok. The executor owns the
// error tokens, structured records and event buffer, so they move from w to
// next; metadata keys next lacks are copied over. A nil next or next == w
// returns w unchanged.
func (w *WorkItem) Adopt(next *WorkItem) *WorkItem {
	if next == nil || next == w {
		return w
	}
	next.Errors = w.Errors
	next.ErrorRecords = w.ErrorRecords
	for k, v := range w.Metadata {
		if _, ok := next.Metadata[k]; !ok {
			next.SetMeta(k, v)
		}
	}
	if events, ok := w.Metadata[MetaEvents]; ok {
		next.SetMeta(MetaEvents, events)
	}
	return next
}

// Summary returns the cycle summary stored by the last Executor run.
func (w *WorkItem) Summary() (Summary, bool) {
	s, ok := w.Metadata[MetaCycleSummary].(Summary)
	return s, ok
}
