package planner

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/arraymon/internal/constants"
	"github.com/xtxerr/arraymon/internal/errors"
	"github.com/xtxerr/arraymon/internal/logging"
	storeconfig "github.com/xtxerr/arraymon/internal/storage/config"
	"github.com/xtxerr/arraymon/internal/storage/types"
)

// manifestName is the durable record of the applied plan, written into the
// store's data directory. Sweepers never read it; it exists so operators and
// the next startup can see which windows the segments were kept under.
const manifestName = "retention.plan"

// LocalstoreApplier converges the embedded store onto a plan: the tier
// directory layout, the retention windows the sweeper reads, and the plan
// manifest.
//
// The store materializes exactly one downsampled tier, the 5-minute
// aggregate. A plan asking for a different bucket is a configuration error,
// not something the applier can converge.
type LocalstoreApplier struct {
	cfg *storeconfig.Config
	log *slog.Logger
}

// NewLocalstoreApplier wraps the store configuration the service was (or
// will be) built from. Apply must run before the store starts sweeping.
func NewLocalstoreApplier(cfg *storeconfig.Config) *LocalstoreApplier {
	return &LocalstoreApplier{
		cfg: cfg,
		log: logging.Component("planner").With("backend", constants.SinkLocalstore),
	}
}

// Name implements Applier.
func (a *LocalstoreApplier) Name() string { return constants.SinkLocalstore }

// Apply implements Applier.
func (a *LocalstoreApplier) Apply(ctx context.Context, plan Plan) (Result, error) {
	var res Result

	if plan.Bucket != types.TierM5.Duration() {
		return res, errors.Wrapf(errors.ErrInvalidConfig,
			"localstore downsamples at %s, plan asks for %s", types.TierM5.Duration(), plan.Bucket)
	}

	r, err := a.ensureLayout()
	if err != nil {
		return res, err
	}
	res.add(r)

	res.add(a.ensureRetention(plan))

	r, err = a.ensureManifest(plan)
	if err != nil {
		return res, err
	}
	res.add(r)

	return res, nil
}

// ensureLayout creates the data, WAL, and tier directories.
func (a *LocalstoreApplier) ensureLayout() (Result, error) {
	dirs := []string{a.cfg.DataDir, a.cfg.WALDir()}
	for _, tier := range types.AllTiers() {
		dirs = append(dirs, a.cfg.TierDir(tier.String()))
	}

	var res Result
	for _, dir := range dirs {
		if _, err := os.Stat(dir); err == nil {
			res.Unchanged++
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return res, errors.Wrapf(errors.ErrInternal, "create %s: %v", dir, err)
		}
		a.log.Debug("store directory created", "dir", dir)
		res.Created++
	}
	return res, nil
}

// ensureRetention converges the sweeper windows onto the plan. The retention
// manager reads these through the shared config, so changes take effect on
// the next sweep.
func (a *LocalstoreApplier) ensureRetention(plan Plan) Result {
	var res Result

	if a.cfg.Retention.Raw == plan.RawRetention {
		res.Unchanged++
	} else {
		a.log.Debug("raw retention altered",
			"from", a.cfg.Retention.Raw, "to", plan.RawRetention)
		a.cfg.Retention.Raw = plan.RawRetention
		res.Altered++
	}

	if a.cfg.Retention.M5 == plan.DownsampledRetention {
		res.Unchanged++
	} else {
		a.log.Debug("downsampled retention altered",
			"from", a.cfg.Retention.M5, "to", plan.DownsampledRetention)
		a.cfg.Retention.M5 = plan.DownsampledRetention
		res.Altered++
	}

	return res
}

// planManifest is the serialized plan shape.
type planManifest struct {
	Table                string `yaml:"table"`
	RawRetention         string `yaml:"raw_retention"`
	DownsampledRetention string `yaml:"downsampled_retention"`
	Bucket               string `yaml:"bucket"`
}

func manifestFor(plan Plan) planManifest {
	return planManifest{
		Table:                plan.Table,
		RawRetention:         plan.RawRetention.String(),
		DownsampledRetention: plan.DownsampledRetention.String(),
		Bucket:               plan.Bucket.String(),
	}
}

// ensureManifest writes the plan manifest, leaving a byte-identical one
// untouched.
func (a *LocalstoreApplier) ensureManifest(plan Plan) (Result, error) {
	want, err := yaml.Marshal(manifestFor(plan))
	if err != nil {
		return Result{}, errors.Wrap(errors.ErrInternal, err.Error())
	}

	path := filepath.Join(a.cfg.DataDir, manifestName)
	have, err := os.ReadFile(path)
	switch {
	case err == nil && bytes.Equal(have, want):
		return Result{Unchanged: 1}, nil
	case err == nil:
		if err := os.WriteFile(path, want, 0o644); err != nil {
			return Result{}, errors.Wrapf(errors.ErrInternal, "write %s: %v", path, err)
		}
		a.log.Debug("plan manifest altered", "path", path)
		return Result{Altered: 1}, nil
	case os.IsNotExist(err):
		if err := os.WriteFile(path, want, 0o644); err != nil {
			return Result{}, errors.Wrapf(errors.ErrInternal, "write %s: %v", path, err)
		}
		a.log.Debug("plan manifest created", "path", path)
		return Result{Created: 1}, nil
	default:
		return Result{}, errors.Wrapf(errors.ErrInternal, "read %s: %v", path, err)
	}
}
