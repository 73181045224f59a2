package sink

import (
	"context"
	"log/slog"

	"github.com/xtxerr/arraymon/internal/constants"
	"github.com/xtxerr/arraymon/internal/errors"
	"github.com/xtxerr/arraymon/internal/logging"
	"github.com/xtxerr/arraymon/internal/series"
	"github.com/xtxerr/arraymon/internal/storage"
)

// LocalstoreSink feeds the embedded tiered store. The store owns durability
// (WAL, flush, compaction, retention); the sink only flattens points into
// rows and hands them to ingestion. A backpressure drop surfaces as a write
// error and counts as data loss for the cycle, same as any remote backend.
type LocalstoreSink struct {
	store *storage.Service
	log   *slog.Logger
}

// NewLocalstoreSink wraps a started storage service.
func NewLocalstoreSink(store *storage.Service) *LocalstoreSink {
	return &LocalstoreSink{
		store: store,
		log:   logging.Component("sink").With("sink", constants.SinkLocalstore),
	}
}

// Name identifies the sink.
func (s *LocalstoreSink) Name() string { return constants.SinkLocalstore }

// WriteBatch ingests the batch. Ingestion is synchronous only up to the hot
// buffer; flushing to segments happens on the store's own cadence, so a nil
// return means accepted, not persisted.
func (s *LocalstoreSink) WriteBatch(ctx context.Context, points []series.Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.store.IngestPoints(points); err != nil {
		return errors.Wrap(errors.ErrBackendWrite, err.Error())
	}
	return nil
}

// Close stops the store, flushing buffered rows to their final segments.
func (s *LocalstoreSink) Close() error {
	return s.store.Stop()
}
