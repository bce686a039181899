// Package journal is an append-only SQLite audit log of gating decisions and
// structured-error exports.
//
// The journal is write-mostly. It is never replayed into the rolling window:
// after a restart gating starts cold, and the journal only answers "what did
// we decide, and why" for operators.
//
// # Idempotency
//
//   - gating_decisions: UNIQUE(cycle_id). Re-appending a cycle is a no-op.
//   - error_exports: PRIMARY KEY(idx, rule, hash). A cycle that fails exactly
//     like an earlier one for the same key bumps seen_count instead of adding
//     a row, so the export hash doubles as no-op detection.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - Single open connection: SQLite has one writer
//
// All ordering uses the INTEGER seq column, never timestamps.
package journal
