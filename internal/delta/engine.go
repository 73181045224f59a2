// Package delta converts cumulative counters into per-second rates.
//
// Arrays in raw-counter mode report monotonically increasing totals; the
// consumable signal is the rate of change between consecutive polls. The
// engine keeps the last-seen sample per (system, entity, class) key and
// emits rates computed over the wall-clock gap between observations, so
// scheduler jitter never skews the math. The first sample for a key is a
// baseline and produces nothing; a negative delta means the counter reset
// (controller reboot) and rebaselines without emitting.
package delta

import (
	"log/slog"
	"sync"
	"time"

	"github.com/xtxerr/arraymon/internal/catalog"
	"github.com/xtxerr/arraymon/internal/logging"
)

// defaultMaxEntries bounds the cache; one entry per live (system, entity,
// class) key. 64k covers thousands of volumes across dozens of arrays.
const defaultMaxEntries = 65536

// Key identifies one counter series.
type Key struct {
	SysID    string
	EntityID string
	Class    catalog.Class
}

// String renders the key for logs.
func (k Key) String() string {
	return k.SysID + "/" + k.Class.String() + "/" + k.EntityID
}

// CounterSample is one observation of cumulative counter values. Samples are
// superseded, never mutated: Update stores the new sample and discards the
// previous one.
type CounterSample struct {
	Key        Key
	Values     map[string]float64
	ObservedAt time.Time
}

// Result holds the per-second rates computed between two samples.
type Result struct {
	Rates   map[string]float64
	Elapsed time.Duration
}

// Stats reports engine activity counters.
type Stats struct {
	Entries   int
	Baselines int64
	Resets    int64
	Emitted   int64
}

type entry struct {
	mu     sync.Mutex
	sample CounterSample
	// updatedAt orders entries for eviction; guarded by the engine mutex.
	updatedAt time.Time
}

// Engine owns the counter cache. Same-key updates are linearized by a
// per-entry mutex; different keys never contend past the map lookup.
type Engine struct {
	mu         sync.RWMutex
	entries    map[Key]*entry
	maxEntries int

	statsMu sync.Mutex
	stats   Stats

	log *slog.Logger
}

// NewEngine creates an Engine. maxEntries <= 0 selects the default bound.
func NewEngine(maxEntries int) *Engine {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Engine{
		entries:    make(map[Key]*entry),
		maxEntries: maxEntries,
		log:        logging.Component("delta"),
	}
}

// Update records a new sample and returns the rates since the previous one.
//
// The returned bool is false when no rates are emittable this cycle: the
// first observation of a key (baseline), a counter reset (any negative
// delta), or a non-positive wall-clock gap. In every case the new sample
// replaces the cached one, so the next cycle computes against a fresh
// baseline.
func (e *Engine) Update(sample CounterSample) (*Result, bool) {
	ent := e.entryFor(sample.Key)

	ent.mu.Lock()
	defer ent.mu.Unlock()

	prev := ent.sample
	ent.sample = sample

	if prev.Values == nil {
		e.countBaseline()
		e.log.Debug("baseline established", "key", sample.Key.String())
		return nil, false
	}

	elapsed := sample.ObservedAt.Sub(prev.ObservedAt)
	if elapsed <= 0 {
		e.log.Warn("non-positive sample gap, skipping rate computation",
			"key", sample.Key.String(), "elapsed", elapsed)
		return nil, false
	}

	rates := make(map[string]float64, len(sample.Values))
	for field, newValue := range sample.Values {
		oldValue, ok := prev.Values[field]
		if !ok {
			// Field appeared mid-stream; it baselines this cycle.
			continue
		}
		delta := newValue - oldValue
		if delta < 0 {
			e.countReset()
			e.log.Info("counter reset detected, rebaselining",
				"key", sample.Key.String(), "field", field,
				"old", oldValue, "new", newValue)
			return nil, false
		}
		rates[field] = delta / elapsed.Seconds()
	}

	if len(rates) == 0 {
		return nil, false
	}

	e.countEmitted()
	return &Result{Rates: rates, Elapsed: elapsed}, true
}

// entryFor returns the cache entry for a key, creating it if needed.
func (e *Engine) entryFor(key Key) *entry {
	e.mu.RLock()
	ent, ok := e.entries[key]
	e.mu.RUnlock()
	if ok {
		e.touch(ent)
		return ent
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if ent, ok = e.entries[key]; ok {
		ent.updatedAt = time.Now()
		return ent
	}
	if len(e.entries) >= e.maxEntries {
		e.evictStalest()
	}
	ent = &entry{updatedAt: time.Now()}
	e.entries[key] = ent
	return ent
}

func (e *Engine) touch(ent *entry) {
	e.mu.Lock()
	ent.updatedAt = time.Now()
	e.mu.Unlock()
}

// evictStalest removes the least-recently-updated entry. Called with the
// engine mutex held; only runs when the cache is at capacity.
func (e *Engine) evictStalest() {
	var stalest Key
	var stalestAt time.Time
	first := true
	for k, ent := range e.entries {
		if first || ent.updatedAt.Before(stalestAt) {
			stalest, stalestAt, first = k, ent.updatedAt, false
		}
	}
	if !first {
		delete(e.entries, stalest)
		e.log.Warn("counter cache full, evicted stalest entry",
			"key", stalest.String(), "max_entries", e.maxEntries)
	}
}

// PruneOlderThan drops entries not updated within maxAge. The manager calls
// this on the slow cadence so departed entities do not pin cache slots.
func (e *Engine) PruneOlderThan(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for k, ent := range e.entries {
		if ent.updatedAt.Before(cutoff) {
			delete(e.entries, k)
			removed++
		}
	}
	if removed > 0 {
		e.log.Debug("pruned stale counter entries", "removed", removed)
	}
	return removed
}

// Stats returns a snapshot of engine counters.
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	s := e.stats
	e.statsMu.Unlock()

	e.mu.RLock()
	s.Entries = len(e.entries)
	e.mu.RUnlock()
	return s
}

func (e *Engine) countBaseline() {
	e.statsMu.Lock()
	e.stats.Baselines++
	e.statsMu.Unlock()
}

func (e *Engine) countReset() {
	e.statsMu.Lock()
	e.stats.Resets++
	e.statsMu.Unlock()
}

func (e *Engine) countEmitted() {
	e.statsMu.Lock()
	e.stats.Emitted++
	e.statsMu.Unlock()
}
