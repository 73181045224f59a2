// Package manager assembles the collection pipelines and owns the daemon
// lifecycle: API clients, collectors, sinks, the scheduler, and the optional
// embedded store are built from one Config, started in dependency order, and
// torn down in reverse.
//
// This file defines UnitState for per-unit health tracking and StateBoard
// for the fleet-wide view the admin endpoints report.
package manager

import (
	"sort"
	"sync"
	"time"
)

// =============================================================================
// Health State Constants
// =============================================================================

const (
	// HealthUnknown means the unit has not completed a cycle yet.
	HealthUnknown = "unknown"

	// HealthUp means the last cycle succeeded.
	HealthUp = "up"

	// HealthDegraded means recent cycles failed but the unit is not yet
	// considered down.
	HealthDegraded = "degraded"

	// HealthDown means the unit failed downThreshold cycles in a row.
	HealthDown = "down"
)

// downThreshold is how many consecutive failures flip a unit from degraded
// to down.
const downThreshold = 3

// =============================================================================
// UnitState
// =============================================================================

// UnitState holds runtime health for one collection unit, the pairing of a
// system and a collection class.
//
// A unit is up after any successful cycle, degraded after the first failure,
// and down after downThreshold consecutive failures. Success resets the
// failure streak immediately.
//
// UnitState is safe for concurrent use.
type UnitState struct {
	System string
	Class  string

	mu                  sync.RWMutex
	health              string
	lastError           string
	consecutiveFailures int
	lastRunAt           time.Time
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastPoints          int
}

// NewUnitState creates a unit state in the unknown health state.
func NewUnitState(system, class string) *UnitState {
	return &UnitState{
		System: system,
		Class:  class,
		health: HealthUnknown,
	}
}

// Key returns the unique key for this unit.
func (s *UnitState) Key() string {
	return s.System + "/" + s.Class
}

// Health returns the current health state.
func (s *UnitState) Health() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health
}

// LastError returns the last failure message, empty after a success.
func (s *UnitState) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// ConsecutiveFailures returns the current failure streak.
func (s *UnitState) ConsecutiveFailures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consecutiveFailures
}

// Timestamps returns the last run, success, and failure times. Zero values
// mean the event has not happened yet.
func (s *UnitState) Timestamps() (lastRun, lastSuccess, lastFailure time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRunAt, s.lastSuccessAt, s.lastFailureAt
}

// RecordSuccess records a successful cycle and the points it produced.
func (s *UnitState) RecordSuccess(points int) {
	now := time.Now()
	s.mu.Lock()
	s.lastRunAt = now
	s.lastSuccessAt = now
	s.consecutiveFailures = 0
	s.lastError = ""
	s.lastPoints = points
	s.health = HealthUp
	s.mu.Unlock()
}

// RecordFailure records a failed cycle.
func (s *UnitState) RecordFailure(errMsg string) {
	now := time.Now()
	s.mu.Lock()
	s.lastRunAt = now
	s.lastFailureAt = now
	s.consecutiveFailures++
	s.lastError = errMsg
	if s.consecutiveFailures >= downThreshold {
		s.health = HealthDown
	} else {
		s.health = HealthDegraded
	}
	s.mu.Unlock()
}

// Snapshot returns a copy of the state for status reporting.
func (s *UnitState) Snapshot() UnitSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := UnitSnapshot{
		System:              s.System,
		Class:               s.Class,
		Health:              s.health,
		ConsecutiveFailures: s.consecutiveFailures,
		LastError:           s.lastError,
		LastPoints:          s.lastPoints,
	}
	if !s.lastRunAt.IsZero() {
		t := s.lastRunAt
		snap.LastRunAt = &t
	}
	if !s.lastSuccessAt.IsZero() {
		t := s.lastSuccessAt
		snap.LastSuccessAt = &t
	}
	if !s.lastFailureAt.IsZero() {
		t := s.lastFailureAt
		snap.LastFailureAt = &t
	}
	return snap
}

// UnitSnapshot is the JSON shape of one unit's state on /status.
type UnitSnapshot struct {
	System              string     `json:"system"`
	Class               string     `json:"class"`
	Health              string     `json:"health"`
	ConsecutiveFailures int        `json:"consecutive_failures,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	LastRunAt           *time.Time `json:"last_run_at,omitempty"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	LastPoints          int        `json:"last_points"`
}

// =============================================================================
// StateBoard
// =============================================================================

// StateBoard tracks unit states for the whole fleet.
//
// StateBoard is safe for concurrent use.
type StateBoard struct {
	mu    sync.RWMutex
	units map[string]*UnitState // key: system/class
}

// NewStateBoard creates an empty state board.
func NewStateBoard() *StateBoard {
	return &StateBoard{
		units: make(map[string]*UnitState),
	}
}

func unitKey(system, class string) string {
	return system + "/" + class
}

// Get returns the state for a unit, creating it if needed.
func (b *StateBoard) Get(system, class string) *UnitState {
	key := unitKey(system, class)

	b.mu.RLock()
	state, ok := b.units[key]
	b.mu.RUnlock()

	if ok {
		return state
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Double-check after acquiring write lock
	if state, ok := b.units[key]; ok {
		return state
	}

	state = NewUnitState(system, class)
	b.units[key] = state
	return state
}

// GetIfExists returns the state for a unit if it exists.
func (b *StateBoard) GetIfExists(system, class string) *UnitState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.units[unitKey(system, class)]
}

// Count returns the number of tracked units.
func (b *StateBoard) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.units)
}

// CountByHealth returns health counts as individual values.
func (b *StateBoard) CountByHealth() (up, degraded, down, unknown int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, state := range b.units {
		switch state.Health() {
		case HealthUp:
			up++
		case HealthDegraded:
			degraded++
		case HealthDown:
			down++
		default:
			unknown++
		}
	}
	return
}

// Worst returns the worst health state across all units. An empty board is
// unknown. Ordering from best to worst: up, unknown, degraded, down.
func (b *StateBoard) Worst() string {
	up, degraded, down, unknown := b.CountByHealth()
	switch {
	case down > 0:
		return HealthDown
	case degraded > 0:
		return HealthDegraded
	case unknown > 0 || up == 0:
		return HealthUnknown
	default:
		return HealthUp
	}
}

// Snapshot returns all unit snapshots ordered by system then class.
func (b *StateBoard) Snapshot() []UnitSnapshot {
	b.mu.RLock()
	snaps := make([]UnitSnapshot, 0, len(b.units))
	for _, state := range b.units {
		snaps = append(snaps, state.Snapshot())
	}
	b.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].System != snaps[j].System {
			return snaps[i].System < snaps[j].System
		}
		return snaps[i].Class < snaps[j].Class
	})
	return snaps
}
