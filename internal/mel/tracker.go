// Package mel tracks per-system major-event-log ingestion cursors. The array
// assigns every MEL entry a monotonically increasing sequence number; the
// tracker remembers the highest sequence ingested per system so each cycle
// requests only new events.
package mel

import (
	"log/slog"
	"sync"

	"github.com/xtxerr/arraymon/internal/constants"
	"github.com/xtxerr/arraymon/internal/errors"
	"github.com/xtxerr/arraymon/internal/logging"
)

// Stats is a snapshot of tracker activity.
type Stats struct {
	Systems     int
	Advances    uint64
	Regressions uint64
}

// Tracker holds the MEL cursor for every observed system. Cursors only ever
// move forward; a backend response reporting a lower max sequence is an
// anomaly and is rejected. State is process-local: after a restart the first
// query for a system starts from the beginning of the log.
type Tracker struct {
	mu      sync.RWMutex
	cursors map[string]int64

	statsMu sync.Mutex
	stats   Stats

	log *slog.Logger
}

// NewTracker creates an empty cursor tracker.
func NewTracker() *Tracker {
	return &Tracker{
		cursors: make(map[string]int64),
		log:     logging.Component("mel_tracker"),
	}
}

// NextQuery returns the sequence window to request for a system. With no
// prior cursor the window starts at the beginning of the log. The count is a
// fixed page size; a backlog larger than one page drains over subsequent
// cycles rather than looping within one.
func (t *Tracker) NextQuery(sysID string) (startSequence int64, count int) {
	t.mu.RLock()
	cur, ok := t.cursors[sysID]
	t.mu.RUnlock()

	if !ok {
		return constants.MELStartSequence, constants.MELPageSize
	}
	return cur + 1, constants.MELPageSize
}

// Advance moves a system's cursor to maxSeen after a page has been ingested.
// A maxSeen below the stored cursor is logged and not applied, and the call
// returns a cursor regression error. Re-reporting the current cursor is a
// no-op.
func (t *Tracker) Advance(sysID string, maxSeen int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.cursors[sysID]
	if ok && maxSeen < cur {
		t.statsMu.Lock()
		t.stats.Regressions++
		t.statsMu.Unlock()
		t.log.Warn("cursor regression rejected",
			"sys_id", sysID, "cursor", cur, "max_seen", maxSeen)
		return errors.Wrapf(errors.ErrCursorRegression,
			"system %s: stored %d, reported %d", sysID, cur, maxSeen)
	}
	if ok && maxSeen == cur {
		return nil
	}

	t.cursors[sysID] = maxSeen
	t.statsMu.Lock()
	t.stats.Advances++
	t.statsMu.Unlock()
	t.log.Debug("cursor advanced", "sys_id", sysID, "sequence", maxSeen)
	return nil
}

// Cursor returns the stored cursor for a system, if any.
func (t *Tracker) Cursor(sysID string) (int64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cur, ok := t.cursors[sysID]
	return cur, ok
}

// Forget drops a system's cursor. The next query for it starts from the
// beginning of the log.
func (t *Tracker) Forget(sysID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cursors, sysID)
}

// Stats returns a snapshot of tracker activity.
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	systems := len(t.cursors)
	t.mu.RUnlock()

	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	s := t.stats
	s.Systems = systems
	return s
}
