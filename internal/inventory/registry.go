// Package inventory caches slow-moving array topology used to tag metric
// points: system identity plus the physical tray/slot location of every
// drive. The hardware collector refreshes it on its own cadence; other
// collectors only read.
package inventory

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/xtxerr/arraymon/internal/logging"
)

// Location is the physical position of a drive, formatted the way the drive
// measurement tags it: zero-padded tray and slot numbers.
type Location struct {
	Tray string
	Slot string
}

// SystemInfo is a read-only snapshot of one registered system.
type SystemInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	WWN         string    `json:"wwn,omitempty"`
	Model       string    `json:"model,omitempty"`
	DriveCount  int       `json:"drive_count"`
	LastRefresh time.Time `json:"last_refresh"`
}

type systemEntry struct {
	name        string
	wwn         string
	model       string
	locations   map[string]Location
	refreshedAt time.Time
}

// Registry holds topology for every monitored system.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	systems map[string]*systemEntry
	log     *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		systems: make(map[string]*systemEntry),
		log:     logging.Component("inventory"),
	}
}

// Register records a system's configured identity. Re-registering updates
// the name and keeps any cached topology.
func (r *Registry) Register(sysID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ent, ok := r.systems[sysID]
	if !ok {
		ent = &systemEntry{}
		r.systems[sysID] = ent
	}
	ent.name = name
}

// SetIdentity records hardware identity discovered from the array itself.
func (r *Registry) SetIdentity(sysID, wwn, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ent, ok := r.systems[sysID]
	if !ok {
		ent = &systemEntry{}
		r.systems[sysID] = ent
	}
	ent.wwn = wwn
	ent.model = model
}

// Name returns the configured name for a system, or the empty string if the
// system is unknown.
func (r *Registry) Name(sysID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ent, ok := r.systems[sysID]; ok {
		return ent.name
	}
	return ""
}

// SetLocations replaces a system's drive location map after a hardware
// refresh.
func (r *Registry) SetLocations(sysID string, locations map[string]Location) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ent, ok := r.systems[sysID]
	if !ok {
		ent = &systemEntry{}
		r.systems[sysID] = ent
	}
	ent.locations = locations
	ent.refreshedAt = time.Now()
	r.log.Debug("drive locations refreshed", "sys_id", sysID, "drives", len(locations))
}

// Locations returns a copy of a system's drive location map. The second
// return reports whether any refresh has happened for the system.
func (r *Registry) Locations(sysID string) (map[string]Location, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ent, ok := r.systems[sysID]
	if !ok || ent.locations == nil {
		return nil, false
	}
	out := make(map[string]Location, len(ent.locations))
	for ref, loc := range ent.locations {
		out[ref] = loc
	}
	return out, true
}

// Forget drops all cached topology for a system.
func (r *Registry) Forget(sysID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.systems, sysID)
}

// Len returns the number of registered systems.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.systems)
}

// Systems returns a snapshot of all registered systems, ordered by id.
func (r *Registry) Systems() []SystemInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SystemInfo, 0, len(r.systems))
	for id, ent := range r.systems {
		out = append(out, SystemInfo{
			ID:          id,
			Name:        ent.name,
			WWN:         ent.wwn,
			Model:       ent.model,
			DriveCount:  len(ent.locations),
			LastRefresh: ent.refreshedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
