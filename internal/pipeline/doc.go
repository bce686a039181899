// Package pipeline runs an ordered list of phases against one WorkItem.
//
// Each phase returns a tagged Outcome. The Executor switches on the outcome
// kind, retries recoverable failures under a bounded exponential backoff,
// records every failure as both a legacy token and a structured record, and
// stops the sequence at the first non-ok outcome. Phase failures never leave
// the Executor as Go errors: callers always get the item back, together with
// per-phase results and a Summary.
//
// Observability is best-effort. Events are buffered on the item and logged
// through slog; metrics go to a telemetry.Sink wrapped with telemetry.Safe.
package pipeline
