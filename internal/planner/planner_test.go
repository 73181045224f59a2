package planner

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/xtxerr/arraymon/internal/catalog"
	"github.com/xtxerr/arraymon/internal/errors"
)

func testPlan() Plan {
	return Plan{
		Table:                "points",
		RawRetention:         168 * time.Hour,
		DownsampledRetention: 8760 * time.Hour,
		Bucket:               5 * time.Minute,
		Classes:              []catalog.Class{catalog.ClassVolume},
	}
}

func newMockApplier(t *testing.T) (*TimescaleApplier, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewTimescaleApplier(db), mock
}

func expectRegclass(mock sqlmock.Sqlmock, name string, exists bool) {
	q := mock.ExpectQuery(regexp.QuoteMeta(`SELECT to_regclass($1)`)).WithArgs(name)
	if exists {
		q.WillReturnRows(sqlmock.NewRows([]string{"to_regclass"}).AddRow(name))
	} else {
		q.WillReturnRows(sqlmock.NewRows([]string{"to_regclass"}).AddRow(nil))
	}
}

func TestApplyCreatesEverything(t *testing.T) {
	a, mock := newMockApplier(t)

	expectRegclass(mock, "points", false)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS points`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE UNIQUE INDEX IF NOT EXISTS points_series_ts_idx ON points (measurement, tags, ts)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`SELECT create_hypertable('points', 'ts', if_not_exists => TRUE)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	expectRegclass(mock, "volumes_5m", false)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE MATERIALIZED VIEW IF NOT EXISTS volumes_5m`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`SELECT add_continuous_aggregate_policy('volumes_5m'`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery(regexp.QuoteMeta(`AND hypertable_name = $1`)).
		WithArgs("points", float64(604800)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta(`SELECT add_retention_policy($1::regclass, make_interval(secs => $2))`)).
		WithArgs("points", float64(604800)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery(regexp.QuoteMeta(`ca.view_name = $1`)).
		WithArgs("volumes_5m", float64(31536000)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta(`SELECT add_retention_policy($1::regclass, make_interval(secs => $2))`)).
		WithArgs("volumes_5m", float64(31536000)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	res, err := a.Apply(context.Background(), testPlan())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := Result{Created: 4}
	if res != want {
		t.Fatalf("result = %+v, want %+v", res, want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	a, mock := newMockApplier(t)

	expectRegclass(mock, "points", true)
	expectRegclass(mock, "volumes_5m", true)
	mock.ExpectQuery(regexp.QuoteMeta(`AND hypertable_name = $1`)).
		WithArgs("points", float64(604800)).
		WillReturnRows(sqlmock.NewRows([]string{"matches"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(`ca.view_name = $1`)).
		WithArgs("volumes_5m", float64(31536000)).
		WillReturnRows(sqlmock.NewRows([]string{"matches"}).AddRow(true))

	res, err := a.Apply(context.Background(), testPlan())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := Result{Unchanged: 4}
	if res != want {
		t.Fatalf("result = %+v, want %+v", res, want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyAltersDriftedRetention(t *testing.T) {
	a, mock := newMockApplier(t)

	expectRegclass(mock, "points", true)
	expectRegclass(mock, "volumes_5m", true)

	// An operator shortened the raw window by hand; the policy exists with
	// the wrong drop_after.
	mock.ExpectQuery(regexp.QuoteMeta(`AND hypertable_name = $1`)).
		WithArgs("points", float64(604800)).
		WillReturnRows(sqlmock.NewRows([]string{"matches"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta(`SELECT remove_retention_policy($1::regclass)`)).
		WithArgs("points").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`SELECT add_retention_policy($1::regclass, make_interval(secs => $2))`)).
		WithArgs("points", float64(604800)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery(regexp.QuoteMeta(`ca.view_name = $1`)).
		WithArgs("volumes_5m", float64(31536000)).
		WillReturnRows(sqlmock.NewRows([]string{"matches"}).AddRow(true))

	res, err := a.Apply(context.Background(), testPlan())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := Result{Altered: 1, Unchanged: 3}
	if res != want {
		t.Fatalf("result = %+v, want %+v", res, want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyDatabaseError(t *testing.T) {
	a, mock := newMockApplier(t)

	expectRegclass(mock, "points", false)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS points`)).
		WillReturnError(sql.ErrConnDone)

	_, err := a.Apply(context.Background(), testPlan())
	if !errors.Is(err, errors.ErrDatabase) {
		t.Fatalf("err = %v, want ErrDatabase", err)
	}
}

func TestAggregateDDL(t *testing.T) {
	plan := testPlan()

	ddl := aggregateDDL(plan, catalog.MustLookup(catalog.ClassVolume), "volumes_5m")
	for _, want := range []string{
		`CREATE MATERIALIZED VIEW IF NOT EXISTS volumes_5m WITH (timescaledb.continuous)`,
		`time_bucket(INTERVAL '300 seconds', ts) AS ts`,
		`avg((fields->>'readIOps')::double precision) AS "readIOps"`,
		`FROM points WHERE measurement = 'volumes'`,
		`GROUP BY tags, time_bucket(INTERVAL '300 seconds', ts)`,
		`WITH NO DATA`,
	} {
		if !strings.Contains(ddl, want) {
			t.Errorf("DDL missing %q:\n%s", want, ddl)
		}
	}

	// Text fields do not average; the event log's description must not show
	// up in an aggregate even though its numeric sequence field does.
	ddl = aggregateDDL(plan, catalog.MustLookup(catalog.ClassMEL), "major_event_log_5m")
	if strings.Contains(ddl, "description") {
		t.Errorf("DDL aggregates a text field:\n%s", ddl)
	}
	if !strings.Contains(ddl, `avg((fields->>'sequenceNumber')::double precision)`) {
		t.Errorf("DDL missing numeric field:\n%s", ddl)
	}
}

func TestViewName(t *testing.T) {
	if got := viewName("volumes", 5*time.Minute); got != "volumes_5m" {
		t.Fatalf("viewName = %q, want volumes_5m", got)
	}
	if got := viewName("drive_statistics", time.Hour); got != "drive_statistics_60m" {
		t.Fatalf("viewName = %q, want drive_statistics_60m", got)
	}
}

type fakeApplier struct {
	name    string
	res     Result
	err     error
	applied int
}

func (f *fakeApplier) Name() string { return f.name }

func (f *fakeApplier) Apply(ctx context.Context, plan Plan) (Result, error) {
	f.applied++
	return f.res, f.err
}

func TestPlannerApplyAll(t *testing.T) {
	first := &fakeApplier{name: "first", res: Result{Created: 2}}
	second := &fakeApplier{name: "second", res: Result{Unchanged: 2}}

	p := New(first, second)
	if err := p.ApplyAll(context.Background(), testPlan()); err != nil {
		t.Fatalf("ApplyAll: %v", err)
	}
	if first.applied != 1 || second.applied != 1 {
		t.Fatalf("applied = %d/%d, want 1/1", first.applied, second.applied)
	}
}

func TestPlannerApplyAllStopsOnError(t *testing.T) {
	first := &fakeApplier{name: "first", err: errors.ErrDatabase}
	second := &fakeApplier{name: "second"}

	p := New(first, second)
	err := p.ApplyAll(context.Background(), testPlan())
	if !errors.Is(err, errors.ErrDatabase) {
		t.Fatalf("err = %v, want ErrDatabase", err)
	}
	if second.applied != 0 {
		t.Fatalf("second applier ran after failure")
	}
}

func TestDefaultPlan(t *testing.T) {
	plan := DefaultPlan("points")
	if plan.RawRetention != 168*time.Hour {
		t.Fatalf("RawRetention = %v", plan.RawRetention)
	}
	if plan.Bucket != 5*time.Minute {
		t.Fatalf("Bucket = %v", plan.Bucket)
	}
	if len(plan.Classes) != 5 {
		t.Fatalf("Classes = %d, want 5", len(plan.Classes))
	}
	for _, c := range plan.Classes {
		if c == catalog.ClassMEL || c == catalog.ClassFailure {
			t.Fatalf("event class %v in downsample plan", c)
		}
	}
}
