package gating

import (
	"fmt"
	"log/slog"
)

// Controller updates the Store and decides, one observation at a time.
type Controller struct {
	store  *Store
	logger *slog.Logger
}

// NewController creates a Controller over store. A nil store gets a fresh one.
func NewController(store *Store, logger *slog.Logger) *Controller {
	if store == nil {
		store = NewStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{store: store, logger: logger}
}

// Store returns the underlying window store.
func (c *Controller) Store() *Store {
	return c.store
}

// Evaluate records obs (unless the mode is off) and returns the decision.
//
// Evaluate never panics and never returns an error: an invalid config or an
// internal failure yields Sentinel().
func (c *Controller) Evaluate(obs Observation, cfg Config) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("gating evaluation failed",
				"key", obs.Key.String(), "panic", fmt.Sprint(r))
			d = Sentinel()
		}
	}()

	if err := cfg.Validate(); err != nil {
		c.logger.Error("gating config invalid", "key", obs.Key.String(), "error", err)
		return Sentinel()
	}

	var st Stats
	if cfg.Mode == ModeOff {
		st = c.store.Stats(obs.Key)
	} else {
		st = c.store.Observe(obs, cfg)
	}

	d = Decide(obs, st, cfg, c.store.ForceDemoted(obs.Key))
	c.logger.Debug("gating decision",
		"key", obs.Key.String(),
		"mode", d.Mode,
		"reason", d.Reason,
		"promote", d.Promote,
		"canary", d.Canary,
		"ok_ratio", d.OKRatio,
		"window_size", d.WindowSize,
	)
	return d
}
