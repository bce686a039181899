package pipeline

import "time"

// Event types buffered on the item.
const (
	EventPhaseAttempt = "phase_attempt"
	EventPhaseRetry   = "phase_retry"
	EventPhaseResult  = "phase_result"
	EventShadowCycle  = "shadow_cycle"
)

// Event is one structured observation appended to item metadata.
type Event struct {
	Type    string         `json:"type"`
	Phase   string         `json:"phase,omitempty"`
	Attempt int            `json:"attempt,omitempty"`
	Outcome string         `json:"outcome,omitempty"`
	Message string         `json:"message,omitempty"`
	Delay   time.Duration  `json:"delay,omitempty"`
	At      time.Time      `json:"at"`
	Fields  map[string]any `json:"fields,omitempty"`
}
