package gating

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/roach88/chainshadow/internal/pipeline"
)

const shardCount = 32

// Observation is one cycle's parity signal for a key.
type Observation struct {
	Key        pipeline.Key
	DiffCount  int
	DiffFields []string
	ParityHash string
}

// Stats is the window view after an update.
type Stats struct {
	OKRatio           float64 `json:"ok_ratio"`
	WindowSize        int     `json:"window_size"`
	OKStreak          int     `json:"ok_streak"`
	FailStreak        int     `json:"fail_streak"`
	ProtectedInWindow int     `json:"protected_in_window"`
	HashDistinct      int     `json:"hash_distinct"`
	ChurnRatio        float64 `json:"churn_ratio"`
}

// entry is the rolling window for one key. Guarded by mu.
type entry struct {
	mu         sync.Mutex
	ok         *ring[bool]
	protected  *ring[bool]
	hashes     *ring[string]
	churn      *ring[string] // nil when the main ring doubles as churn ring
	okStreak   int
	failStreak int
	forced     bool
}

type shard struct {
	mu      sync.RWMutex
	entries map[pipeline.Key]*entry
}

// Store holds rolling windows for every key seen by this process.
//
// Keys are spread over shards by xxhash; each entry has its own mutex, so
// producers for different keys never contend on an entry lock.
type Store struct {
	shards [shardCount]shard
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i].entries = make(map[pipeline.Key]*entry)
	}
	return s
}

func (s *Store) shardFor(key pipeline.Key) *shard {
	return &s.shards[xxhash.Sum64String(key.String())%shardCount]
}

func (s *Store) lookup(key pipeline.Key) *entry {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.entries[key]
}

func (s *Store) getOrCreate(key pipeline.Key, cfg Config) *entry {
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.entries[key]
	sh.mu.RUnlock()
	if ok {
		return e
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.entries[key]; ok {
		return e
	}
	e = &entry{
		ok:        newRing[bool](cfg.Window),
		protected: newRing[bool](cfg.Window),
		hashes:    newRing[string](cfg.Window),
	}
	if cfg.ChurnWindow > 0 {
		e.churn = newRing[string](cfg.ChurnWindow)
	}
	sh.entries[key] = e
	return e
}

// Observe appends obs to its key's window and returns the updated stats.
func (s *Store) Observe(obs Observation, cfg Config) Stats {
	e := s.getOrCreate(obs.Key, cfg)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.conform(cfg)

	ok := obs.DiffCount == 0
	protected := false
	for _, f := range obs.DiffFields {
		if cfg.isProtected(f) {
			protected = true
			break
		}
	}

	e.ok.push(ok)
	e.protected.push(protected)
	e.hashes.push(obs.ParityHash)
	if e.churn != nil {
		e.churn.push(obs.ParityHash)
	}
	if ok {
		e.okStreak++
		e.failStreak = 0
	} else {
		e.failStreak++
		e.okStreak = 0
	}
	return e.stats()
}

// Stats returns the current window view for key without updating it.
func (s *Store) Stats(key pipeline.Key) Stats {
	e := s.lookup(key)
	if e == nil {
		return Stats{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats()
}

// SetForceDemote turns the per-key forced-demotion control on or off.
func (s *Store) SetForceDemote(key pipeline.Key, on bool) {
	e := s.getOrCreate(key, DefaultConfig())
	e.mu.Lock()
	defer e.mu.Unlock()
	e.forced = on
}

// ForceDemoted reports whether the per-key control is active.
func (s *Store) ForceDemoted(key pipeline.Key) bool {
	e := s.lookup(key)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.forced
}

// Reset drops all history for key.
func (s *Store) Reset(key pipeline.Key) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.entries, key)
}

// Keys returns every key with a window, sorted by index then rule.
func (s *Store) Keys() []pipeline.Key {
	var keys []pipeline.Key
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for k := range sh.entries {
			keys = append(keys, k)
		}
		sh.mu.RUnlock()
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Index != keys[j].Index {
			return keys[i].Index < keys[j].Index
		}
		return keys[i].Rule < keys[j].Rule
	})
	return keys
}

// conform resizes rings when the configured capacities changed.
func (e *entry) conform(cfg Config) {
	if e.ok.capacity() != cfg.Window {
		e.ok.resize(cfg.Window)
		e.protected.resize(cfg.Window)
		e.hashes.resize(cfg.Window)
	}
	switch {
	case cfg.ChurnWindow <= 0:
		e.churn = nil
	case e.churn == nil:
		e.churn = newRing[string](cfg.ChurnWindow)
		for _, h := range e.hashes.values() {
			e.churn.push(h)
		}
	case e.churn.capacity() != cfg.ChurnWindow:
		e.churn.resize(cfg.ChurnWindow)
	}
}

func (e *entry) stats() Stats {
	oks := e.ok.values()
	st := Stats{
		WindowSize: len(oks),
		OKStreak:   e.okStreak,
		FailStreak: e.failStreak,
	}
	if len(oks) > 0 {
		n := 0
		for _, v := range oks {
			if v {
				n++
			}
		}
		st.OKRatio = float64(n) / float64(len(oks))
	}
	for _, p := range e.protected.values() {
		if p {
			st.ProtectedInWindow++
		}
	}

	churnRing := e.hashes
	if e.churn != nil {
		churnRing = e.churn
	}
	hashes := churnRing.values()
	distinct := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		distinct[h] = struct{}{}
	}
	st.HashDistinct = len(distinct)
	if len(hashes) > 0 {
		st.ChurnRatio = float64(st.HashDistinct) / float64(len(hashes))
	}
	return st
}
