// Package gating decides, per (index, rule), how far the candidate path is
// trusted: off, dryrun, canary, or promote.
//
// The Store keeps a bounded rolling window of parity outcomes per key. Decide
// is a pure function of one observation, the window stats, and a Config.
// Controller ties them together and converts any internal failure into the
// sentinel decision, so gating can never abort a cycle.
//
// Decision state is per-process. Nothing here is persisted; after a restart
// every key starts cold and must earn MinSamples again.
package gating
