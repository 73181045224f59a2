package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/xtxerr/arraymon/internal/catalog"
	"github.com/xtxerr/arraymon/internal/client"
	"github.com/xtxerr/arraymon/internal/constants"
	"github.com/xtxerr/arraymon/internal/delta"
	"github.com/xtxerr/arraymon/internal/inventory"
	"github.com/xtxerr/arraymon/internal/logging"
	"github.com/xtxerr/arraymon/internal/mapper"
	"github.com/xtxerr/arraymon/internal/series"
)

// StatsCollector collects one performance or hardware statistics class. In
// analysed mode the API reports rates and points pass straight through; in
// cumulative mode counter fields route through the delta engine and a
// record's point is withheld on its baseline or reset cycle.
type StatsCollector struct {
	spec     catalog.Spec
	mode     Mode
	api      *client.Client
	mapper   *mapper.Mapper
	engine   *delta.Engine
	registry *inventory.Registry
	log      *slog.Logger
}

// NewStatsCollector builds the collector for one statistics class. The
// engine may be nil in analysed mode; the registry is required for the drive
// class, which refreshes physical locations each cycle.
func NewStatsCollector(spec catalog.Spec, mode Mode, api *client.Client, m *mapper.Mapper, engine *delta.Engine, registry *inventory.Registry) *StatsCollector {
	return &StatsCollector{
		spec:     spec,
		mode:     mode,
		api:      api,
		mapper:   m,
		engine:   engine,
		registry: registry,
		log:      logging.Component("collector").With("class", spec.Class.String()),
	}
}

// Class returns the collected metric class.
func (c *StatsCollector) Class() catalog.Class {
	return c.spec.Class
}

// Collect fetches one statistics payload and maps it to points.
func (c *StatsCollector) Collect(ctx context.Context, sys System) (*series.Batch, error) {
	now := time.Now()

	var locations map[string]inventory.Location
	if c.spec.Class == catalog.ClassDrive {
		locs, err := c.refreshLocations(ctx, sys)
		if err != nil {
			return nil, err
		}
		locations = locs
	}

	path := c.spec.StatsPath
	if c.mode == ModeCumulative && c.spec.RawStatsPath != "" {
		path = c.spec.RawStatsPath
	}

	raw, err := c.api.Get(ctx, client.StatsPath(path, sys.ID))
	if err != nil {
		return nil, err
	}
	payload, err := mapper.DecodePayload(raw)
	if err != nil {
		return nil, err
	}

	tags := tagsFor(c.spec.Class, sys, locations)
	counterFields := c.spec.CounterFields()

	batch := series.NewBatch(payload.Len())
	for _, rec := range payload.Records() {
		pt := c.mapper.Map(c.spec, rec, tags, now)
		if c.mode == ModeCumulative && len(counterFields) > 0 {
			if !c.applyRates(sys, rec, &pt, counterFields, now) {
				continue
			}
		}
		batch.Add(pt)
	}
	return batch, nil
}

// refreshLocations pulls the hardware inventory and updates the registry so
// drive points carry current tray/slot tags.
func (c *StatsCollector) refreshLocations(ctx context.Context, sys System) (map[string]inventory.Location, error) {
	raw, err := c.api.Get(ctx, client.StatsPath(constants.APIHardware, sys.ID))
	if err != nil {
		return nil, err
	}
	locations, skipped, err := inventory.ParseLocations(raw)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		c.log.Warn("drives with unknown trays skipped", "sys_id", sys.ID, "skipped", skipped)
	}
	c.registry.SetLocations(sys.ID, locations)
	return locations, nil
}

// applyRates feeds the record's counter values through the delta engine and
// overwrites them with per-second rates. It reports whether the point should
// be emitted: a baseline or reset cycle withholds the whole point. A record
// without a usable entity id cannot be keyed; its counter fields degrade to
// absent and the point is still emitted.
func (c *StatsCollector) applyRates(sys System, rec mapper.Record, pt *series.Point, counterFields []string, now time.Time) bool {
	id := entityID(c.spec.Class, sys, rec)
	if id == "" {
		c.log.Warn("record without entity id, counters degraded", "sys_id", sys.ID)
		for _, name := range counterFields {
			pt.SetField(name, series.Absent())
		}
		return true
	}

	values := make(map[string]float64, len(counterFields))
	for _, name := range counterFields {
		if v, ok := pt.Fields[name].AsFloat(); ok {
			values[name] = v
		}
	}
	if len(values) == 0 {
		return true
	}

	res, ok := c.engine.Update(delta.CounterSample{
		Key:        delta.Key{SysID: sys.ID, EntityID: id, Class: c.spec.Class},
		Values:     values,
		ObservedAt: now,
	})
	if !ok {
		return false
	}

	// Rates replace the raw totals; counters the engine skipped (absent in
	// the previous sample) degrade to absent rather than leaking a total.
	for _, name := range counterFields {
		if rate, found := res.Rates[name]; found {
			pt.SetField(name, series.Float(rate))
		} else {
			pt.SetField(name, series.Absent())
		}
	}
	return true
}
