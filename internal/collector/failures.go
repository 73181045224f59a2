package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/xtxerr/arraymon/internal/catalog"
	"github.com/xtxerr/arraymon/internal/client"
	"github.com/xtxerr/arraymon/internal/constants"
	"github.com/xtxerr/arraymon/internal/faults"
	"github.com/xtxerr/arraymon/internal/logging"
	"github.com/xtxerr/arraymon/internal/mapper"
	"github.com/xtxerr/arraymon/internal/series"
)

// FailureCollector polls the failure list and emits only state transitions:
// a point when a failure appears and a point when it clears. Steady state
// emits nothing, so the failures measurement reads as an event stream.
type FailureCollector struct {
	spec       catalog.Spec
	api        *client.Client
	reconciler *faults.Reconciler
	log        *slog.Logger
}

// NewFailureCollector builds the failure-state collector.
func NewFailureCollector(api *client.Client, reconciler *faults.Reconciler) *FailureCollector {
	return &FailureCollector{
		spec:       catalog.MustLookup(catalog.ClassFailure),
		api:        api,
		reconciler: reconciler,
		log:        logging.Component("collector").With("class", catalog.ClassFailure.String()),
	}
}

// Class returns the collected metric class.
func (c *FailureCollector) Class() catalog.Class {
	return c.spec.Class
}

// Collect fetches the current failure list, reconciles it against known
// state, and maps the resulting transitions to points.
func (c *FailureCollector) Collect(ctx context.Context, sys System) (*series.Batch, error) {
	raw, err := c.api.Get(ctx, client.StatsPath(constants.APIFailures, sys.ID))
	if err != nil {
		return nil, err
	}
	reported, err := parseReported(sys.ID, raw)
	if err != nil {
		return nil, err
	}

	transitions, err := c.reconciler.Reconcile(ctx, sys.ID, raw, reported, time.Now())
	if err != nil {
		return nil, err
	}
	if len(transitions) == 0 {
		return nil, nil
	}

	batch := series.NewBatch(len(transitions))
	for _, tr := range transitions {
		pt := series.New(c.spec.Measurement, tr.LastTransition)
		pt.AddTag("sys_id", sys.ID)
		pt.AddTag("sys_name", sys.Name)
		pt.AddTag("failure_type", tr.FailureType)
		pt.AddTag("object_ref", tr.ObjectRef)
		pt.AddTag("object_type", tr.ObjectType)
		pt.SetField("active", series.Bool(tr.Active))
		batch.Add(pt)
	}
	return batch, nil
}

// parseReported extracts failure tuples from the raw payload. Records
// carrying an explicit inactive flag are excluded; everything else in the
// list counts as reported-active. Records without a failure type are
// malformed and skipped.
func parseReported(sysID string, raw []byte) ([]faults.FailureRecord, error) {
	payload, err := mapper.DecodePayload(raw)
	if err != nil {
		return nil, err
	}

	var reported []faults.FailureRecord
	for _, rec := range payload.Records() {
		failureType := recString(rec, "failureType")
		if failureType == "" {
			continue
		}
		if v, ok := rec["active"]; ok {
			if active, valid := faults.ParseActive(v); valid && !active {
				continue
			}
		}
		reported = append(reported, faults.FailureRecord{
			SysID:       sysID,
			FailureType: failureType,
			ObjectRef:   recString(rec, "objectRef"),
			ObjectType:  recString(rec, "objectType"),
		})
	}
	return reported, nil
}
