// Package sink persists point batches to the configured metrics backends.
// Writes are at-least-once with no retry queue: a failed batch is dropped and
// logged as data loss for that cycle. Backends deduplicate replays by series
// and timestamp, last write wins.
package sink

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/arraymon/internal/errors"
	"github.com/xtxerr/arraymon/internal/logging"
	"github.com/xtxerr/arraymon/internal/series"
)

// Sink is one metrics backend.
type Sink interface {
	// Name identifies the sink in logs and telemetry.
	Name() string

	// WriteBatch persists a batch. It must tolerate out-of-order timestamps
	// and duplicate points.
	WriteBatch(ctx context.Context, points []series.Point) error

	// Close releases backend connections.
	Close() error
}

// Fanout writes every batch to every configured sink concurrently. A failing
// sink drops only its own copy; the others still persist theirs.
type Fanout struct {
	sinks []Sink
	log   *slog.Logger
}

// NewFanout builds a fanout over the given sinks.
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{
		sinks: sinks,
		log:   logging.Component("sink"),
	}
}

// Name identifies the fanout in logs.
func (f *Fanout) Name() string { return "fanout" }

// Sinks returns the wrapped sinks.
func (f *Fanout) Sinks() []Sink { return f.sinks }

// WriteBatch dispatches the batch to all sinks and waits for them. The first
// failure is returned after every sink has been attempted.
func (f *Fanout) WriteBatch(ctx context.Context, points []series.Point) error {
	if len(points) == 0 || len(f.sinks) == 0 {
		return nil
	}

	var g errgroup.Group
	for _, s := range f.sinks {
		g.Go(func() error {
			if err := s.WriteBatch(ctx, points); err != nil {
				f.log.Error("batch dropped",
					"sink", s.Name(), "points", len(points), "error", err)
				return errors.Wrapf(errors.ErrBackendWrite, "%s: %v", s.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close closes all sinks, returning the first error.
func (f *Fanout) Close() error {
	var first error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// fieldJSON renders a field value for a JSON document. The absent sentinel
// becomes an explicit null so every declared field stays visible downstream.
func fieldJSON(v series.FieldValue) any {
	switch v.Kind {
	case series.KindFloat:
		return v.Num
	case series.KindInt:
		return v.Int
	case series.KindBool:
		return v.Bool
	case series.KindString:
		return v.Str
	default:
		return nil
	}
}
