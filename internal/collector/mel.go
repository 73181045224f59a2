package collector

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/xtxerr/arraymon/internal/catalog"
	"github.com/xtxerr/arraymon/internal/client"
	"github.com/xtxerr/arraymon/internal/constants"
	"github.com/xtxerr/arraymon/internal/errors"
	"github.com/xtxerr/arraymon/internal/logging"
	"github.com/xtxerr/arraymon/internal/mapper"
	"github.com/xtxerr/arraymon/internal/mel"
	"github.com/xtxerr/arraymon/internal/series"
)

// MELCollector ingests the major event log one page per cycle, resuming from
// the tracked cursor. Points carry the event's own timestamp, not collection
// time, so late ingestion lands in the right place on the timeline.
type MELCollector struct {
	spec    catalog.Spec
	api     *client.Client
	tracker *mel.Tracker
	mapper  *mapper.Mapper
	log     *slog.Logger
}

// NewMELCollector builds the event log collector.
func NewMELCollector(api *client.Client, tracker *mel.Tracker, m *mapper.Mapper) *MELCollector {
	return &MELCollector{
		spec:    catalog.MustLookup(catalog.ClassMEL),
		api:     api,
		tracker: tracker,
		mapper:  m,
		log:     logging.Component("collector").With("class", catalog.ClassMEL.String()),
	}
}

// Class returns the collected metric class.
func (c *MELCollector) Class() catalog.Class {
	return c.spec.Class
}

// Collect requests the next event page and maps it to points. An empty page
// leaves the cursor untouched. A page whose max sequence sits below the
// cursor was already ingested; it is dropped without emitting duplicates and
// the anomaly is logged by the tracker.
func (c *MELCollector) Collect(ctx context.Context, sys System) (*series.Batch, error) {
	start, count := c.tracker.NextQuery(sys.ID)
	path := fmt.Sprintf("%s?count=%d&startSequenceNumber=%d",
		client.StatsPath(constants.APIMELEvents, sys.ID), count, start)

	raw, err := c.api.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	payload, err := mapper.DecodePayload(raw)
	if err != nil {
		return nil, err
	}
	records := payload.Records()
	if len(records) == 0 {
		return nil, nil
	}

	var maxSeen int64
	for _, rec := range records {
		if seq, ok := sequenceNumber(rec); ok && seq > maxSeen {
			maxSeen = seq
		}
	}
	if maxSeen == 0 {
		return nil, errors.Wrapf(errors.ErrPayloadShape,
			"system %s: event page without sequence numbers", sys.ID)
	}
	if err := c.tracker.Advance(sys.ID, maxSeen); err != nil {
		if errors.Is(err, errors.ErrCursorRegression) {
			return nil, nil
		}
		return nil, err
	}

	tags := tagsFor(c.spec.Class, sys, nil)
	batch := series.NewBatch(len(records))
	for _, rec := range records {
		batch.Add(c.mapper.Map(c.spec, rec, tags, eventTime(rec)))
	}
	c.log.Debug("event page ingested",
		"sys_id", sys.ID, "events", len(records), "cursor", maxSeen)
	return batch, nil
}

// sequenceNumber extracts the event sequence, tolerating numeric and string
// representations.
func sequenceNumber(rec mapper.Record) (int64, bool) {
	switch v := rec["sequenceNumber"].(type) {
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// eventTime extracts the event's own timestamp, epoch seconds as a number or
// string. Events without one take the current time.
func eventTime(rec mapper.Record) time.Time {
	switch v := rec["timeStamp"].(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(n, 0)
		}
	}
	return time.Now()
}
