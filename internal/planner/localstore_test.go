package planner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/arraymon/internal/errors"
	storeconfig "github.com/xtxerr/arraymon/internal/storage/config"
)

func newLocalApplier(t *testing.T) (*LocalstoreApplier, *storeconfig.Config) {
	t.Helper()
	cfg := storeconfig.DefaultConfig()
	// A subdirectory that does not exist yet, so the first apply creates
	// the whole layout.
	cfg.DataDir = filepath.Join(t.TempDir(), "store")
	return NewLocalstoreApplier(cfg), cfg
}

func TestLocalstoreApplyCreatesLayout(t *testing.T) {
	a, cfg := newLocalApplier(t)

	res, err := a.Apply(context.Background(), testPlan())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// Data dir, WAL dir, two tier dirs, and the manifest are created; the
	// retention windows already match the plan.
	want := Result{Created: 5, Unchanged: 2}
	if res != want {
		t.Fatalf("result = %+v, want %+v", res, want)
	}

	if _, err := os.Stat(cfg.WALDir()); err != nil {
		t.Errorf("WAL dir missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.DataDir, manifestName)); err != nil {
		t.Errorf("manifest missing: %v", err)
	}
}

func TestLocalstoreApplyIsIdempotent(t *testing.T) {
	a, _ := newLocalApplier(t)

	if _, err := a.Apply(context.Background(), testPlan()); err != nil {
		t.Fatalf("first Apply: %v", err)
	}

	res, err := a.Apply(context.Background(), testPlan())
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if res.Created != 0 || res.Altered != 0 {
		t.Fatalf("second apply changed things: %+v", res)
	}
	want := Result{Unchanged: 7}
	if res != want {
		t.Fatalf("result = %+v, want %+v", res, want)
	}
}

func TestLocalstoreApplyConvergesRetention(t *testing.T) {
	a, cfg := newLocalApplier(t)

	if _, err := a.Apply(context.Background(), testPlan()); err != nil {
		t.Fatalf("first Apply: %v", err)
	}

	// An operator shortened the raw window; the sweeper config and the
	// manifest both converge.
	plan := testPlan()
	plan.RawRetention = 72 * time.Hour

	res, err := a.Apply(context.Background(), plan)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := Result{Altered: 2, Unchanged: 5}
	if res != want {
		t.Fatalf("result = %+v, want %+v", res, want)
	}
	if cfg.Retention.Raw != 72*time.Hour {
		t.Errorf("sweeper window = %v, want 72h", cfg.Retention.Raw)
	}
	if cfg.Retention.M5 != plan.DownsampledRetention {
		t.Errorf("downsampled window = %v, want %v", cfg.Retention.M5, plan.DownsampledRetention)
	}
}

func TestLocalstoreApplyRejectsForeignBucket(t *testing.T) {
	a, _ := newLocalApplier(t)

	plan := testPlan()
	plan.Bucket = time.Hour

	_, err := a.Apply(context.Background(), plan)
	if !errors.Is(err, errors.ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}
