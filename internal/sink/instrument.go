package sink

import (
	"context"

	"github.com/xtxerr/arraymon/internal/series"
)

// WriteObserver is notified after every backend write attempt.
type WriteObserver func(sink string, points int, err error)

// Instrument wraps a sink so every write reports its outcome to obs. A nil
// observer returns the sink unwrapped.
func Instrument(s Sink, obs WriteObserver) Sink {
	if obs == nil {
		return s
	}
	return &instrumented{inner: s, obs: obs}
}

type instrumented struct {
	inner Sink
	obs   WriteObserver
}

func (s *instrumented) Name() string { return s.inner.Name() }

func (s *instrumented) WriteBatch(ctx context.Context, points []series.Point) error {
	err := s.inner.WriteBatch(ctx, points)
	s.obs(s.inner.Name(), len(points), err)
	return err
}

func (s *instrumented) Close() error { return s.inner.Close() }
