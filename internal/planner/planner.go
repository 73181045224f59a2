// Package planner declares the retention and downsampling state the metrics
// backends must hold and applies it once at startup. Application is
// idempotent: existing objects are detected and either left alone or altered
// to the desired parameters, never duplicated and never treated as errors.
package planner

import (
	"context"
	"log/slog"
	"time"

	"github.com/xtxerr/arraymon/config"
	"github.com/xtxerr/arraymon/internal/catalog"
	"github.com/xtxerr/arraymon/internal/logging"
)

// Plan is the desired retention and downsampling state.
type Plan struct {
	// Table is the raw points table.
	Table string

	// RawRetention bounds how long full-resolution points are kept.
	RawRetention time.Duration

	// DownsampledRetention bounds how long aggregated points are kept.
	DownsampledRetention time.Duration

	// Bucket is the downsampling window.
	Bucket time.Duration

	// Classes are the metric classes that get downsampling rules. Event
	// streams are excluded by default; transitions and log entries do not
	// average meaningfully.
	Classes []catalog.Class
}

// DefaultPlan returns the plan the engine applies unless configured
// otherwise.
func DefaultPlan(table string) Plan {
	return Plan{
		Table:                table,
		RawRetention:         config.DefaultRawRetention,
		DownsampledRetention: config.DefaultDownsampledRetention,
		Bucket:               config.DefaultDownsampleBucket,
		Classes:              catalog.PerformanceClasses(),
	}
}

// Result counts what one application changed.
type Result struct {
	Created   int
	Altered   int
	Unchanged int
}

// add merges another result into this one.
func (r *Result) add(other Result) {
	r.Created += other.Created
	r.Altered += other.Altered
	r.Unchanged += other.Unchanged
}

// Applier applies a plan to one backend.
type Applier interface {
	// Name identifies the backend in logs.
	Name() string

	// Apply converges the backend onto the plan. Re-applying an already
	// converged plan reports everything unchanged.
	Apply(ctx context.Context, plan Plan) (Result, error)
}

// Planner drives all appliers. A failure here is a startup configuration
// error; the caller terminates on it.
type Planner struct {
	appliers []Applier
	log      *slog.Logger
}

// New builds a planner over the given appliers.
func New(appliers ...Applier) *Planner {
	return &Planner{
		appliers: appliers,
		log:      logging.Component("planner"),
	}
}

// ApplyAll runs every applier against the plan.
func (p *Planner) ApplyAll(ctx context.Context, plan Plan) error {
	for _, a := range p.appliers {
		res, err := a.Apply(ctx, plan)
		if err != nil {
			return err
		}
		p.log.Info("plan applied",
			"backend", a.Name(),
			"created", res.Created,
			"altered", res.Altered,
			"unchanged", res.Unchanged)
	}
	return nil
}
