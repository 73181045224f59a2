// This file defines UnitStats for per-unit cycle accounting and StatsBoard
// for fleet-wide aggregation.

package manager

import (
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// Unit Statistics
// =============================================================================

// UnitStats tracks cycle statistics for one collection unit.
//
// Counters use atomic operations for lock-free updates, while timing
// statistics are protected by a mutex. UnitStats is safe for concurrent use.
type UnitStats struct {
	System string
	Class  string

	// Counters, lock-free
	Runs      atomic.Int64
	Successes atomic.Int64
	Failures  atomic.Int64
	Timeouts  atomic.Int64
	Points    atomic.Int64

	// Timing statistics, protected by mu
	mu        sync.RWMutex
	elapsedMs int64
	minMs     int // -1 means not set
	maxMs     int
	samples   int
}

// NewUnitStats creates stats for one unit.
func NewUnitStats(system, class string) *UnitStats {
	return &UnitStats{
		System: system,
		Class:  class,
		minMs:  -1,
	}
}

// Key returns the unique key for this unit.
func (s *UnitStats) Key() string {
	return s.System + "/" + s.Class
}

// RecordRun records one cycle outcome.
func (s *UnitStats) RecordRun(success, timeout bool, elapsed time.Duration, points int) {
	s.Runs.Add(1)

	if success {
		s.Successes.Add(1)
		if points > 0 {
			s.Points.Add(int64(points))
		}
	} else {
		s.Failures.Add(1)
		if timeout {
			s.Timeouts.Add(1)
		}
	}

	ms := int(elapsed.Milliseconds())

	s.mu.Lock()
	s.elapsedMs += int64(ms)
	s.samples++
	if s.minMs < 0 || ms < s.minMs {
		s.minMs = ms
	}
	if ms > s.maxMs {
		s.maxMs = ms
	}
	s.mu.Unlock()
}

// Timing returns average, minimum, and maximum cycle times in milliseconds.
// Zero values before any cycle has been recorded.
func (s *UnitStats) Timing() (avgMs, minMs, maxMs int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.samples > 0 {
		avgMs = int(s.elapsedMs / int64(s.samples))
	}
	minMs = s.minMs
	if minMs < 0 {
		minMs = 0
	}
	maxMs = s.maxMs
	return
}

// Snapshot returns a copy of the stats for status reporting.
func (s *UnitStats) Snapshot() StatsSnapshot {
	avg, min, max := s.Timing()
	return StatsSnapshot{
		System:    s.System,
		Class:     s.Class,
		Runs:      s.Runs.Load(),
		Successes: s.Successes.Load(),
		Failures:  s.Failures.Load(),
		Timeouts:  s.Timeouts.Load(),
		Points:    s.Points.Load(),
		AvgMs:     avg,
		MinMs:     min,
		MaxMs:     max,
	}
}

// StatsSnapshot is the JSON shape of one unit's statistics on /status.
type StatsSnapshot struct {
	System    string `json:"system"`
	Class     string `json:"class"`
	Runs      int64  `json:"runs"`
	Successes int64  `json:"successes"`
	Failures  int64  `json:"failures"`
	Timeouts  int64  `json:"timeouts,omitempty"`
	Points    int64  `json:"points"`
	AvgMs     int    `json:"avg_ms"`
	MinMs     int    `json:"min_ms"`
	MaxMs     int    `json:"max_ms"`
}

// =============================================================================
// Stats Board
// =============================================================================

// StatsBoard tracks unit statistics for the whole fleet.
//
// StatsBoard is safe for concurrent use.
type StatsBoard struct {
	mu    sync.RWMutex
	stats map[string]*UnitStats // key: system/class
}

// NewStatsBoard creates an empty stats board.
func NewStatsBoard() *StatsBoard {
	return &StatsBoard{
		stats: make(map[string]*UnitStats),
	}
}

// Get returns statistics for a unit, creating them if needed.
func (b *StatsBoard) Get(system, class string) *UnitStats {
	key := unitKey(system, class)

	b.mu.RLock()
	stats, ok := b.stats[key]
	b.mu.RUnlock()

	if ok {
		return stats
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Double-check after acquiring write lock
	if stats, ok := b.stats[key]; ok {
		return stats
	}

	stats = NewUnitStats(system, class)
	b.stats[key] = stats
	return stats
}

// GetIfExists returns statistics for a unit if they exist.
func (b *StatsBoard) GetIfExists(system, class string) *UnitStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats[unitKey(system, class)]
}

// Count returns the number of tracked units.
func (b *StatsBoard) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.stats)
}

// Snapshot returns all stats snapshots, unordered.
func (b *StatsBoard) Snapshot() []StatsSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snaps := make([]StatsSnapshot, 0, len(b.stats))
	for _, stats := range b.stats {
		snaps = append(snaps, stats.Snapshot())
	}
	return snaps
}

// AggregateStats holds fleet-wide totals.
type AggregateStats struct {
	Units     int   `json:"units"`
	Runs      int64 `json:"runs"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
	Timeouts  int64 `json:"timeouts"`
	Points    int64 `json:"points"`
	AvgMs     int   `json:"avg_ms"`
}

// Aggregate returns totals across all units.
func (b *StatsBoard) Aggregate() AggregateStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var agg AggregateStats
	agg.Units = len(b.stats)

	var elapsedMs int64
	var samples int

	for _, stats := range b.stats {
		agg.Runs += stats.Runs.Load()
		agg.Successes += stats.Successes.Load()
		agg.Failures += stats.Failures.Load()
		agg.Timeouts += stats.Timeouts.Load()
		agg.Points += stats.Points.Load()

		stats.mu.RLock()
		elapsedMs += stats.elapsedMs
		samples += stats.samples
		stats.mu.RUnlock()
	}

	if samples > 0 {
		agg.AvgMs = int(elapsedMs / int64(samples))
	}
	return agg
}
