// Package shadow runs one item-cycle of the candidate path and feeds the
// gating controller.
//
// A cycle runs the critical phases through the pipeline Executor, then the
// secondary phases (tokens only, never control flow), takes the parity
// snapshot and hash, diffs it against the baseline, evaluates gating, and
// emits one shadow_cycle event plus metrics. The optional Journal is written
// last; journal failures are logged and swallowed.
package shadow
