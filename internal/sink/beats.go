package sink

import (
	"context"
	"log/slog"
	stdsync "sync"
	"time"

	lumber "github.com/elastic/go-lumber/client/v2"

	"github.com/xtxerr/arraymon/internal/constants"
	"github.com/xtxerr/arraymon/internal/errors"
	"github.com/xtxerr/arraymon/internal/logging"
	"github.com/xtxerr/arraymon/internal/series"
	arsync "github.com/xtxerr/arraymon/internal/sync"
)

// BeatsSink forwards event-stream points to a beats-protocol endpoint
// (logstash or compatible). It is meant for the event log and failure
// transitions, not bulk performance series; the forward set filters per
// measurement. The connection is dialed lazily on first use and redialed
// after a send failure.
type BeatsSink struct {
	endpoint string
	timeout  time.Duration
	forward  map[string]bool
	log      *slog.Logger

	mu      stdsync.Mutex
	conn    *lumber.SyncClient
	connect arsync.ResettableOnce
}

// NewBeatsSink creates a forwarder for the named measurements. An empty
// measurement list forwards everything.
func NewBeatsSink(endpoint string, timeout time.Duration, measurements []string) *BeatsSink {
	forward := make(map[string]bool, len(measurements))
	for _, m := range measurements {
		forward[m] = true
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &BeatsSink{
		endpoint: endpoint,
		timeout:  timeout,
		forward:  forward,
		log:      logging.Component("sink").With("sink", constants.SinkBeats),
	}
}

// Name identifies the sink.
func (s *BeatsSink) Name() string { return constants.SinkBeats }

// WriteBatch forwards the batch's matching points. Batches with nothing to
// forward do not touch the connection at all.
func (s *BeatsSink) WriteBatch(ctx context.Context, points []series.Point) error {
	events := make([]interface{}, 0, len(points))
	for i := range points {
		pt := &points[i]
		if len(s.forward) > 0 && !s.forward[pt.Measurement] {
			continue
		}
		events = append(events, beatsEvent(pt))
	}
	if len(events) == 0 {
		return nil
	}

	if err := s.connect.DoWithError(s.dial); err != nil {
		return errors.Wrapf(errors.ErrBackendWrite, "beats: dial %s: %v", s.endpoint, err)
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if _, err := conn.Send(events); err != nil {
		s.disconnect()
		return errors.Wrapf(errors.ErrBackendWrite, "beats: send %d events: %v", len(events), err)
	}
	s.log.Debug("events forwarded", "events", len(events))
	return nil
}

func (s *BeatsSink) dial() error {
	conn, err := lumber.SyncDial(s.endpoint,
		lumber.CompressionLevel(0),
		lumber.Timeout(s.timeout))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.log.Info("connected", "endpoint", s.endpoint)
	return nil
}

// disconnect tears the connection down so the next write redials.
func (s *BeatsSink) disconnect() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.connect.Reset()
}

// Close shuts the connection down.
func (s *BeatsSink) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.connect.Reset()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// beatsEvent renders one point as a beats event document.
func beatsEvent(pt *series.Point) map[string]interface{} {
	tags := make(map[string]interface{}, len(pt.Tags))
	for _, t := range pt.Tags {
		tags[t.Key] = t.Value
	}
	fields := make(map[string]interface{}, len(pt.Fields))
	for name, v := range pt.Fields {
		fields[name] = fieldJSON(v)
	}
	return map[string]interface{}{
		"@timestamp":  pt.Timestamp.UTC().Format(time.RFC3339),
		"measurement": pt.Measurement,
		"tags":        tags,
		"fields":      fields,
	}
}
