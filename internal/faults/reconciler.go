// Package faults reconciles array failure state into transition events.
//
// Arrays report their full active-failure snapshot every cycle. Emitting the
// snapshot as-is would flood the backend with unchanged state, so the
// reconciler tracks the known-active set per system and emits only the
// transitions: a tuple newly present becomes Active, a known-active tuple
// newly absent becomes Resolved. A payload checksum short-circuits the whole
// comparison on quiescent systems.
package faults

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/xtxerr/arraymon/internal/errors"
	"github.com/xtxerr/arraymon/internal/logging"
)

// FailureRecord is one failure tuple with its activity state. Tuple identity
// is (FailureType, ObjectRef, ObjectType); SysID scopes the tuple to a system
// but is not part of the identity.
type FailureRecord struct {
	SysID          string
	FailureType    string
	ObjectRef      string
	ObjectType     string
	Active         bool
	LastTransition time.Time
}

// TupleKey returns the identity key for set comparisons.
func (r FailureRecord) TupleKey() string {
	return r.FailureType + "\x00" + r.ObjectRef + "\x00" + r.ObjectType
}

// ParseActive normalizes the active flag's legacy representations. Stores and
// payloads variously deliver booleans, "true"/"false", and "1"/"0"; the
// second return reports whether the input was a recognized representation.
func ParseActive(v any) (active bool, ok bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1":
			return true, true
		case "false", "0":
			return false, true
		}
		return false, false
	case float64:
		// JSON numbers decode as float64; 0 and 1 are the known encodings.
		if t == 1 {
			return true, true
		}
		if t == 0 {
			return false, true
		}
		return false, false
	default:
		return false, false
	}
}

// StateStore answers "what was last durably recorded for this system" on a
// cold cache. Implementations query the metrics backend the failure points
// were written to.
type StateStore interface {
	LastKnown(ctx context.Context, sysID string) ([]FailureRecord, error)
}

// Stats reports reconciler activity.
type Stats struct {
	Cycles        int64
	ShortCircuits int64
	ColdLoads     int64
	Activated     int64
	Resolved      int64
}

type systemState struct {
	mu     sync.Mutex
	known  map[string]FailureRecord // tuple key -> known-active record
	loaded bool
}

// Reconciler owns the per-system known-active sets and the checksum guard.
// Reconcile calls for different systems run concurrently; calls for the same
// system are serialized by the per-system mutex.
type Reconciler struct {
	mu      sync.RWMutex
	systems map[string]*systemState

	store StateStore
	guard *ChecksumGuard

	statsMu sync.Mutex
	stats   Stats

	log *slog.Logger
}

// NewReconciler creates a Reconciler backed by the given durable state store.
// A nil store means cold caches start empty (clean-start mode).
func NewReconciler(store StateStore) *Reconciler {
	return &Reconciler{
		systems: make(map[string]*systemState),
		store:   store,
		guard:   NewChecksumGuard(),
		log:     logging.Component("reconciler"),
	}
}

// Reconcile compares the reported failure set against the known-active set
// and returns the transitions: newly active tuples with Active=true, newly
// resolved tuples with Active=false, both stamped with at.
//
// raw is the undecoded payload; when it is byte-identical to the previous
// successful cycle's payload the comparison is skipped entirely and no
// transitions are returned.
func (r *Reconciler) Reconcile(ctx context.Context, sysID string, raw []byte, reported []FailureRecord, at time.Time) ([]FailureRecord, error) {
	r.countCycle()

	hash, unchanged := r.guard.Check(sysID, raw)
	if unchanged {
		r.countShortCircuit()
		r.log.Debug("failure payload unchanged, skipping reconciliation", "sys_id", sysID)
		return nil, nil
	}

	state := r.stateFor(sysID)
	state.mu.Lock()
	defer state.mu.Unlock()

	if !state.loaded {
		if err := r.coldLoad(ctx, sysID, state); err != nil {
			return nil, errors.Wrapf(err, "cold load for system %s", sysID)
		}
	}

	reportedByKey := make(map[string]FailureRecord, len(reported))
	for _, rec := range reported {
		reportedByKey[rec.TupleKey()] = rec
	}

	var transitions []FailureRecord

	// Unknown -> Active: reported tuples not already known active.
	for key, rec := range reportedByKey {
		if _, known := state.known[key]; known {
			continue
		}
		rec.SysID = sysID
		rec.Active = true
		rec.LastTransition = at
		transitions = append(transitions, rec)
		state.known[key] = rec
		r.countActivated()
	}

	// Active -> Resolved: known-active tuples absent from the report.
	for key, rec := range state.known {
		if _, present := reportedByKey[key]; present {
			continue
		}
		rec.Active = false
		rec.LastTransition = at
		transitions = append(transitions, rec)
		delete(state.known, key)
		r.countResolved()
	}

	r.guard.Commit(sysID, hash)

	if len(transitions) > 0 {
		r.log.Info("failure transitions",
			"sys_id", sysID, "count", len(transitions),
			"known_active", len(state.known))
	}
	return transitions, nil
}

// ActiveCount returns the size of the known-active set for a system.
func (r *Reconciler) ActiveCount(sysID string) int {
	r.mu.RLock()
	state, ok := r.systems[sysID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return len(state.known)
}

// Stats returns a snapshot of reconciler counters.
func (r *Reconciler) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}

// coldLoad fills the known set from the durable store. Called with the
// system's mutex held. On error the state stays unloaded so the next cycle
// retries; nothing is partially applied.
func (r *Reconciler) coldLoad(ctx context.Context, sysID string, state *systemState) error {
	if r.store == nil {
		state.loaded = true
		return nil
	}

	records, err := r.store.LastKnown(ctx, sysID)
	if err != nil {
		return err
	}

	for _, rec := range records {
		if !rec.Active {
			continue
		}
		state.known[rec.TupleKey()] = rec
	}
	state.loaded = true
	r.countColdLoad()
	r.log.Info("failure state cold-loaded",
		"sys_id", sysID, "known_active", len(state.known))
	return nil
}

func (r *Reconciler) stateFor(sysID string) *systemState {
	r.mu.RLock()
	state, ok := r.systems[sysID]
	r.mu.RUnlock()
	if ok {
		return state
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok = r.systems[sysID]; ok {
		return state
	}
	state = &systemState{known: make(map[string]FailureRecord)}
	r.systems[sysID] = state
	return state
}

func (r *Reconciler) countCycle() {
	r.statsMu.Lock()
	r.stats.Cycles++
	r.statsMu.Unlock()
}

func (r *Reconciler) countShortCircuit() {
	r.statsMu.Lock()
	r.stats.ShortCircuits++
	r.statsMu.Unlock()
}

func (r *Reconciler) countColdLoad() {
	r.statsMu.Lock()
	r.stats.ColdLoads++
	r.statsMu.Unlock()
}

func (r *Reconciler) countActivated() {
	r.statsMu.Lock()
	r.stats.Activated++
	r.statsMu.Unlock()
}

func (r *Reconciler) countResolved() {
	r.statsMu.Lock()
	r.stats.Resolved++
	r.statsMu.Unlock()
}
