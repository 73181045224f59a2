// Package collector implements per-class collection units. Each collector
// fetches one metric class for one system, transforms the payload into
// points, and leaves persistence to the sink the scheduler hands the batch
// to. Collectors never retry within a cycle; a failed unit surfaces its error
// and the next tick tries again.
package collector

import (
	"context"

	"github.com/xtxerr/arraymon/internal/catalog"
	"github.com/xtxerr/arraymon/internal/errors"
	"github.com/xtxerr/arraymon/internal/series"
)

// System identifies one monitored storage system.
type System struct {
	ID   string
	Name string
}

// Collector is one class's collection unit.
type Collector interface {
	// Class returns the metric class this collector serves.
	Class() catalog.Class

	// Collect runs one cycle for one system. The returned batch may be
	// empty; a nil batch with nil error means the cycle produced nothing
	// (baseline cycle, checksum short-circuit, empty event page).
	Collect(ctx context.Context, sys System) (*series.Batch, error)
}

// Mode selects how performance statistics are interpreted.
type Mode int

const (
	// ModeAnalysed trusts the API to report pre-computed per-second rates.
	ModeAnalysed Mode = iota

	// ModeCumulative treats counter fields as running totals and routes
	// them through the delta engine.
	ModeCumulative
)

// String returns the mode name used in configuration.
func (m Mode) String() string {
	if m == ModeCumulative {
		return "cumulative"
	}
	return "analysed"
}

// ParseMode maps a configuration string onto a Mode. The empty string means
// analysed.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "analysed":
		return ModeAnalysed, nil
	case "cumulative":
		return ModeCumulative, nil
	default:
		return ModeAnalysed, errors.NewInvalidValue("statistics_mode", s, "must be analysed or cumulative")
	}
}
