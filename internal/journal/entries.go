package journal

import (
	"time"

	"github.com/roach88/chainshadow/internal/gating"
	"github.com/roach88/chainshadow/internal/pipeline"
)

// DecisionEntry is one journaled gating decision.
type DecisionEntry struct {
	Seq        int64           `json:"seq"`
	CycleID    string          `json:"cycle_id"`
	Key        pipeline.Key    `json:"key"`
	ParityHash string          `json:"parity_hash"`
	DiffFields []string        `json:"diff_fields"`
	Decision   gating.Decision `json:"decision"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// ExportEntry is one distinct structured-error export for a key.
type ExportEntry struct {
	Key        pipeline.Key         `json:"key"`
	Export     pipeline.ErrorExport `json:"export"`
	FirstCycle string               `json:"first_cycle"`
	LastCycle  string               `json:"last_cycle"`
	SeenCount  int                  `json:"seen_count"`
	FirstSeen  time.Time            `json:"first_seen"`
}

// Filter narrows ListDecisions. Empty fields match everything.
type Filter struct {
	Index string
	Rule  string
	// Limit caps the number of rows, newest first. 0 means no cap.
	Limit int
}
