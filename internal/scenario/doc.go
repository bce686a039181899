// Package scenario replays scripted shadow cycles deterministically.
//
// A scenario fixes one (index, rule) key, a configuration, a reference
// baseline and a list of cycle steps. Each step scripts the outcome of every
// phase per attempt, so retries, aborts and panics can be reproduced without
// a market data source:
//
//	name: promote_after_warmup
//	description: "Clean cycles promote once hysteresis is met"
//	config:
//	  mode: promote
//	  window: 4
//	  min_samples: 2
//	item:
//	  index: NIFTY
//	  rule: weekly
//	  expiry: "2026-01-08"
//	  strikes: [22000, 22100, 22200]
//	baseline:
//	  expiry_date: "2026-01-08"
//	  strike_count: 3
//	cycles:
//	  - repeat: 3
//	    phases:
//	      - name: resolve
//	      - name: enrich
//	        outcomes: [recoverable, ok]
//	        message: "quote timeout"
//	assertions:
//	  - type: final_decision
//	    reason: parity_target_met
//
// # Phase effects
//
// A phase that ends ok applies its effect to the item. The effect defaults
// to the phase name when that names a known effect:
//
//   - resolve: sets expiry, strikes and a call/put instrument per strike
//   - enrich: quotes every instrument (minus drift.drop_quotes)
//   - coverage: copies item.coverage into the coverage metadata
//   - persist: counts instruments as simulated writes
//   - none: no change
//
// # Determinism
//
// Runs use testutil.DeterministicClock, a FakeSleeper for backoff and
// sequential cycle IDs, so the trace of a scenario is byte-stable and can be
// compared against a golden file.
package scenario
