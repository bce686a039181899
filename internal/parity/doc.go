// Package parity reduces a WorkItem to a structural snapshot, hashes it, and
// diffs it against a caller-supplied baseline.
//
// The diffed field list is versioned. Changing it changes what "parity"
// means for every key, so it is a breaking change guarded by
// FieldListVersion.
package parity
