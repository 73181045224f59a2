package query

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/xtxerr/arraymon/internal/storage/buffer"
	"github.com/xtxerr/arraymon/internal/storage/config"
	"github.com/xtxerr/arraymon/internal/storage/types"
)

// Service provides query capabilities over stored data.
// It uses DuckDB to query parquet segments and merges the results with
// hot rows from the ring buffer, deduplicating by series key and
// timestamp.
type Service struct {
	config *config.Config
	db     *sql.DB
	buffer *buffer.RingBuffer

	// Statistics
	stats Stats
}

// Stats holds query statistics.
type Stats struct {
	QueriesExecuted atomic.Int64
	RowsReturned    atomic.Int64
	Errors          atomic.Int64
}

// SeriesQuery selects one series by exact measurement, tag set and
// field. Empty Tags or Field match everything.
type SeriesQuery struct {
	Measurement string
	Tags        string
	Field       string
	StartTime   time.Time
	EndTime     time.Time
	Limit       int
}

// MeasurementQuery selects all series of a measurement. TagContains
// narrows by tag substring, e.g. "system=prod-array-01".
type MeasurementQuery struct {
	Measurement string
	TagContains string
	Field       string
	StartTime   time.Time
	EndTime     time.Time
	Limit       int
}

const rawSeriesSQL = `
	SELECT measurement, tags, field, timestamp_ms, kind, value, text_value
	FROM read_parquet($1)
	WHERE measurement = $2
	  AND ($3 = '' OR tags = $3)
	  AND ($4 = '' OR field = $4)
	  AND timestamp_ms >= $5
	  AND timestamp_ms < $6
	ORDER BY timestamp_ms, tags, field
`

const rawMeasurementSQL = `
	SELECT measurement, tags, field, timestamp_ms, kind, value, text_value
	FROM read_parquet($1)
	WHERE measurement = $2
	  AND ($3 = '' OR contains(tags, $3))
	  AND ($4 = '' OR field = $4)
	  AND timestamp_ms >= $5
	  AND timestamp_ms < $6
	ORDER BY timestamp_ms, tags, field
`

const aggregateSQL = `
	SELECT measurement, tags, field,
	       bucket_start, bucket_end,
	       count, sum, min, max, avg, p95,
	       first_ts, last_ts
	FROM read_parquet($1)
	WHERE measurement = $2
	  AND ($3 = '' OR tags = $3)
	  AND ($4 = '' OR field = $4)
	  AND bucket_start >= $5
	  AND bucket_start < $6
	ORDER BY bucket_start, tags, field
`

// New creates a new query service.
func New(cfg *config.Config, buf *buffer.RingBuffer) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// Open in-memory DuckDB database
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if cfg.Query.MemoryLimit != "" {
		if _, err := db.Exec(fmt.Sprintf("SET memory_limit='%s'", cfg.Query.MemoryLimit)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}

	return &Service{
		config: cfg,
		db:     db,
		buffer: buf,
	}, nil
}

// Close closes the query service.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SelectTier returns the tier able to serve a range starting at start.
// Ranges that begin inside the raw retention window are served at full
// resolution, older ranges from the m5 aggregates.
func (s *Service) SelectTier(start time.Time) types.Tier {
	if time.Since(start) < s.config.Retention.Raw {
		return types.TierRaw
	}
	return types.TierM5
}

// QuerySeries returns raw rows for one series, merging persisted
// segments with hot rows from the buffer.
func (s *Service) QuerySeries(ctx context.Context, q SeriesQuery) ([]types.Row, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	parquetRows, err := s.queryRawParquet(ctx, rawSeriesSQL, q.Measurement, q.Tags, q.Field, q.StartTime, q.EndTime)
	if err != nil {
		s.stats.Errors.Add(1)
		return nil, fmt.Errorf("query raw tier: %w", err)
	}

	bufferRows := s.queryBuffer(buffer.RowFilter{
		Measurement: q.Measurement,
		Tags:        q.Tags,
		Field:       q.Field,
		Since:       q.StartTime.UnixMilli(),
		Until:       q.EndTime.UnixMilli() - 1,
	})

	results := mergeRows(parquetRows, bufferRows)

	if limit := s.capLimit(q.Limit); limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	s.stats.QueriesExecuted.Add(1)
	s.stats.RowsReturned.Add(int64(len(results)))

	return results, nil
}

// QueryMeasurement returns raw rows for every series of a measurement
// matching the tag substring.
func (s *Service) QueryMeasurement(ctx context.Context, q MeasurementQuery) ([]types.Row, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	parquetRows, err := s.queryRawParquet(ctx, rawMeasurementSQL, q.Measurement, q.TagContains, q.Field, q.StartTime, q.EndTime)
	if err != nil {
		s.stats.Errors.Add(1)
		return nil, fmt.Errorf("query raw tier: %w", err)
	}

	bufferRows := s.queryBuffer(buffer.RowFilter{
		Measurement: q.Measurement,
		TagContains: q.TagContains,
		Field:       q.Field,
		Since:       q.StartTime.UnixMilli(),
		Until:       q.EndTime.UnixMilli() - 1,
	})

	results := mergeRows(parquetRows, bufferRows)

	if limit := s.capLimit(q.Limit); limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	s.stats.QueriesExecuted.Add(1)
	s.stats.RowsReturned.Add(int64(len(results)))

	return results, nil
}

// QueryAggregates returns m5 aggregates for a series. Empty Tags or
// Field match everything.
func (s *Service) QueryAggregates(ctx context.Context, q SeriesQuery) ([]types.AggregateResult, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	if !s.tierHasSegments(types.TierM5) {
		return nil, nil
	}

	pattern := filepath.Join(s.config.TierDir(types.TierM5.String()), "*.parquet")

	rows, err := s.db.QueryContext(ctx, aggregateSQL,
		pattern,
		q.Measurement,
		q.Tags,
		q.Field,
		q.StartTime.UnixMilli(),
		q.EndTime.UnixMilli(),
	)
	if err != nil {
		s.stats.Errors.Add(1)
		return nil, fmt.Errorf("query m5 tier: %w", err)
	}
	defer rows.Close()

	results, err := scanAggregates(rows)
	if err != nil {
		s.stats.Errors.Add(1)
		return nil, err
	}

	if limit := s.capLimit(q.Limit); limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	s.stats.QueriesExecuted.Add(1)
	s.stats.RowsReturned.Add(int64(len(results)))

	return results, nil
}

// queryRawParquet runs one of the raw-tier queries over the segment
// glob.
func (s *Service) queryRawParquet(ctx context.Context, query, measurement, tags, field string, start, end time.Time) ([]types.Row, error) {
	if !s.tierHasSegments(types.TierRaw) {
		return nil, nil
	}

	pattern := filepath.Join(s.config.TierDir(types.TierRaw.String()), "*.parquet")

	rows, err := s.db.QueryContext(ctx, query,
		pattern,
		measurement,
		tags,
		field,
		start.UnixMilli(),
		end.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRows(rows)
}

// scanRows scans DuckDB rows into Row values.
func scanRows(rows *sql.Rows) ([]types.Row, error) {
	var results []types.Row

	for rows.Next() {
		var r types.Row
		var kind int32
		var text sql.NullString

		err := rows.Scan(
			&r.Measurement, &r.Tags, &r.Field,
			&r.TimestampMs, &kind, &r.Value, &text,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		r.Kind = types.ValueKind(kind)
		if text.Valid {
			r.TextValue = text.String
		}

		results = append(results, r)
	}

	return results, rows.Err()
}

// scanAggregates scans DuckDB rows into AggregateResult values.
func scanAggregates(rows *sql.Rows) ([]types.AggregateResult, error) {
	var results []types.AggregateResult

	for rows.Next() {
		var r types.AggregateResult
		var p95 sql.NullFloat64

		err := rows.Scan(
			&r.Measurement, &r.Tags, &r.Field,
			&r.BucketStart, &r.BucketEnd,
			&r.Count, &r.Sum, &r.Min, &r.Max, &r.Avg, &p95,
			&r.FirstTs, &r.LastTs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}

		if p95.Valid && p95.Float64 != 0 {
			r.SetPercentile(p95.Float64)
		}

		results = append(results, r)
	}

	return results, rows.Err()
}

// queryBuffer returns hot rows matching the filter.
func (s *Service) queryBuffer(filter buffer.RowFilter) []types.Row {
	if s.buffer == nil {
		return nil
	}
	return s.buffer.Query(filter, 0)
}

// mergeRows combines persisted and hot rows, dropping hot duplicates of
// rows already persisted, and returns them in timestamp order.
func mergeRows(parquetRows, bufferRows []types.Row) []types.Row {
	merged := parquetRows

	if len(bufferRows) > 0 {
		seen := make(map[string]struct{}, len(parquetRows))
		for i := range parquetRows {
			seen[rowIdentity(&parquetRows[i])] = struct{}{}
		}
		for i := range bufferRows {
			if _, dup := seen[rowIdentity(&bufferRows[i])]; dup {
				continue
			}
			merged = append(merged, bufferRows[i])
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].TimestampMs != merged[j].TimestampMs {
			return merged[i].TimestampMs < merged[j].TimestampMs
		}
		return merged[i].Key() < merged[j].Key()
	})

	return merged
}

// rowIdentity identifies a row by series key and timestamp.
func rowIdentity(r *types.Row) string {
	return r.Key() + "@" + strconv.FormatInt(r.TimestampMs, 10)
}

// tierHasSegments reports whether the tier directory holds any parquet
// segments. DuckDB errors on globs that match nothing.
func (s *Service) tierHasSegments(tier types.Tier) bool {
	pattern := filepath.Join(s.config.TierDir(tier.String()), "*.parquet")
	matches, err := filepath.Glob(pattern)
	return err == nil && len(matches) > 0
}

// queryContext applies the configured query timeout.
func (s *Service) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.Query.Timeout > 0 {
		return context.WithTimeout(ctx, s.config.Query.Timeout)
	}
	return context.WithCancel(ctx)
}

// capLimit bounds a query limit by the configured maximum.
func (s *Service) capLimit(limit int) int {
	max := s.config.Query.MaxRows
	if max <= 0 {
		return limit
	}
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}

// Stats returns query statistics.
func (s *Service) Stats() ServiceStats {
	return ServiceStats{
		QueriesExecuted: s.stats.QueriesExecuted.Load(),
		RowsReturned:    s.stats.RowsReturned.Load(),
		Errors:          s.stats.Errors.Load(),
	}
}

// ServiceStats holds service statistics.
type ServiceStats struct {
	QueriesExecuted int64
	RowsReturned    int64
	Errors          int64
}

// ExecuteSQL executes a raw SQL query using DuckDB.
// This is useful for ad-hoc queries and debugging.
func (s *Service) ExecuteSQL(ctx context.Context, query string) ([]map[string]interface{}, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		s.stats.Errors.Add(1)
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	s.stats.QueriesExecuted.Add(1)
	s.stats.RowsReturned.Add(int64(len(results)))

	return results, rows.Err()
}
