// Package telemetry defines the metrics sink consumed by the executor and the
// shadow runner, plus adapters for Prometheus and OpenTelemetry.
//
// Emission is best-effort: callers wrap whatever Sink they are given with
// Safe, so a misbehaving adapter can never fail a phase or a cycle.
//
// Label cardinality is bounded by construction. Per-field counters are only
// emitted for fields on an explicit allow-list (see shadow.Runner).
package telemetry
