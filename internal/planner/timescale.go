package planner

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xtxerr/arraymon/internal/catalog"
	"github.com/xtxerr/arraymon/internal/constants"
	"github.com/xtxerr/arraymon/internal/errors"
	"github.com/xtxerr/arraymon/internal/logging"
)

// Retention policy state queries. TimescaleDB records the drop_after
// parameter in the job config, so the desired interval can be compared
// server-side instead of parsing Postgres interval syntax here.
const (
	tableRetentionQuery = `SELECT (config->>'drop_after')::interval = make_interval(secs => $2) ` +
		`FROM timescaledb_information.jobs ` +
		`WHERE proc_name = 'policy_retention' AND hypertable_name = $1`

	aggregateRetentionQuery = `SELECT (j.config->>'drop_after')::interval = make_interval(secs => $2) ` +
		`FROM timescaledb_information.jobs j ` +
		`JOIN timescaledb_information.continuous_aggregates ca ` +
		`ON j.hypertable_name = ca.materialization_hypertable_name ` +
		`WHERE j.proc_name = 'policy_retention' AND ca.view_name = $1`
)

// TimescaleApplier converges a TimescaleDB instance onto a plan: the raw
// points table with its upsert index, one continuous aggregate per
// performance class, and retention policies on both tiers.
//
// Identifiers interpolated into DDL come from the compiled catalog and
// operator configuration, never from array payloads.
type TimescaleApplier struct {
	db  *sql.DB
	log *slog.Logger
}

// NewTimescaleApplier wraps an open database handle.
func NewTimescaleApplier(db *sql.DB) *TimescaleApplier {
	return &TimescaleApplier{
		db:  db,
		log: logging.Component("planner").With("backend", constants.SinkTimescale),
	}
}

// Name implements Applier.
func (a *TimescaleApplier) Name() string { return constants.SinkTimescale }

// Apply implements Applier.
func (a *TimescaleApplier) Apply(ctx context.Context, plan Plan) (Result, error) {
	var res Result

	r, err := a.ensureTable(ctx, plan.Table)
	if err != nil {
		return res, err
	}
	res.add(r)

	for _, class := range plan.Classes {
		r, err := a.ensureAggregate(ctx, plan, catalog.MustLookup(class))
		if err != nil {
			return res, err
		}
		res.add(r)
	}

	r, err = a.ensureRetention(ctx, tableRetentionQuery, plan.Table, plan.RawRetention)
	if err != nil {
		return res, err
	}
	res.add(r)

	for _, class := range plan.Classes {
		view := viewName(catalog.MustLookup(class).Measurement, plan.Bucket)
		r, err := a.ensureRetention(ctx, aggregateRetentionQuery, view, plan.DownsampledRetention)
		if err != nil {
			return res, err
		}
		res.add(r)
	}

	return res, nil
}

// ensureTable creates the raw points table, its upsert index, and the
// hypertable dimension. An existing table is left untouched.
func (a *TimescaleApplier) ensureTable(ctx context.Context, table string) (Result, error) {
	exists, err := a.relationExists(ctx, table)
	if err != nil {
		return Result{}, err
	}
	if exists {
		return Result{Unchanged: 1}, nil
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (`+
			`measurement text NOT NULL, `+
			`tags jsonb NOT NULL, `+
			`fields jsonb NOT NULL, `+
			`ts timestamptz NOT NULL)`, table),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_series_ts_idx ON %s (measurement, tags, ts)`, table, table),
		fmt.Sprintf(`SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)`, table),
	}
	for _, stmt := range stmts {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return Result{}, errors.Wrapf(errors.ErrDatabase, "create table %s: %v", table, err)
		}
	}
	a.log.Debug("points table created", "table", table)
	return Result{Created: 1}, nil
}

// ensureAggregate creates the continuous aggregate view for one class along
// with its refresh policy. An existing view is left untouched; changing the
// bucket of a live aggregate requires dropping it by hand.
func (a *TimescaleApplier) ensureAggregate(ctx context.Context, plan Plan, spec catalog.Spec) (Result, error) {
	view := viewName(spec.Measurement, plan.Bucket)
	exists, err := a.relationExists(ctx, view)
	if err != nil {
		return Result{}, err
	}
	if exists {
		return Result{Unchanged: 1}, nil
	}

	if _, err := a.db.ExecContext(ctx, aggregateDDL(plan, spec, view)); err != nil {
		return Result{}, errors.Wrapf(errors.ErrDatabase, "create aggregate %s: %v", view, err)
	}

	bucket := int(plan.Bucket.Seconds())
	refresh := fmt.Sprintf(`SELECT add_continuous_aggregate_policy('%s', `+
		`start_offset => INTERVAL '%d seconds', `+
		`end_offset => INTERVAL '%d seconds', `+
		`schedule_interval => INTERVAL '%d seconds', `+
		`if_not_exists => TRUE)`, view, 12*bucket, bucket, bucket)
	if _, err := a.db.ExecContext(ctx, refresh); err != nil {
		return Result{}, errors.Wrapf(errors.ErrDatabase, "refresh policy for %s: %v", view, err)
	}

	a.log.Debug("aggregate created", "view", view, "class", spec.Class)
	return Result{Created: 1}, nil
}

// ensureRetention converges one retention policy. A policy with different
// parameters is removed and re-added with the desired ones.
func (a *TimescaleApplier) ensureRetention(ctx context.Context, stateQuery, relation string, keep time.Duration) (Result, error) {
	var matches bool
	err := a.db.QueryRowContext(ctx, stateQuery, relation, keep.Seconds()).Scan(&matches)
	switch {
	case err == sql.ErrNoRows:
		if err := a.addRetention(ctx, relation, keep); err != nil {
			return Result{}, err
		}
		a.log.Debug("retention policy created", "relation", relation, "keep", keep)
		return Result{Created: 1}, nil
	case err != nil:
		return Result{}, errors.Wrapf(errors.ErrDatabase, "retention state for %s: %v", relation, err)
	case matches:
		return Result{Unchanged: 1}, nil
	default:
		if _, err := a.db.ExecContext(ctx, `SELECT remove_retention_policy($1::regclass)`, relation); err != nil {
			return Result{}, errors.Wrapf(errors.ErrDatabase, "remove retention policy for %s: %v", relation, err)
		}
		if err := a.addRetention(ctx, relation, keep); err != nil {
			return Result{}, err
		}
		a.log.Debug("retention policy altered", "relation", relation, "keep", keep)
		return Result{Altered: 1}, nil
	}
}

func (a *TimescaleApplier) addRetention(ctx context.Context, relation string, keep time.Duration) error {
	_, err := a.db.ExecContext(ctx,
		`SELECT add_retention_policy($1::regclass, make_interval(secs => $2))`,
		relation, keep.Seconds())
	if err != nil {
		return errors.Wrapf(errors.ErrDatabase, "add retention policy for %s: %v", relation, err)
	}
	return nil
}

func (a *TimescaleApplier) relationExists(ctx context.Context, name string) (bool, error) {
	var regclass sql.NullString
	if err := a.db.QueryRowContext(ctx, `SELECT to_regclass($1)`, name).Scan(&regclass); err != nil {
		return false, errors.Wrapf(errors.ErrDatabase, "relation lookup %s: %v", name, err)
	}
	return regclass.Valid, nil
}

// viewName derives the aggregate view name from the measurement and bucket,
// volumes_5m for the default plan.
func viewName(measurement string, bucket time.Duration) string {
	return fmt.Sprintf("%s_%dm", measurement, int(bucket.Minutes()))
}

// aggregateDDL renders the continuous aggregate for one class: the mean of
// every numeric declared field per tag set per bucket. Text fields do not
// average and are left to the raw tier.
func aggregateDDL(plan Plan, spec catalog.Spec, view string) string {
	bucket := int(plan.Bucket.Seconds())

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE MATERIALIZED VIEW IF NOT EXISTS %s WITH (timescaledb.continuous) AS ", view)
	fmt.Fprintf(&b, "SELECT tags, time_bucket(INTERVAL '%d seconds', ts) AS ts", bucket)
	for _, f := range spec.Fields {
		if f.Text {
			continue
		}
		fmt.Fprintf(&b, ", avg((fields->>'%s')::double precision) AS %q", f.Name, f.Name)
	}
	fmt.Fprintf(&b, " FROM %s WHERE measurement = '%s'", plan.Table, spec.Measurement)
	fmt.Fprintf(&b, " GROUP BY tags, time_bucket(INTERVAL '%d seconds', ts)", bucket)
	b.WriteString(" WITH NO DATA")
	return b.String()
}
