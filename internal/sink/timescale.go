package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/lib/pq"

	"github.com/xtxerr/arraymon/internal/constants"
	"github.com/xtxerr/arraymon/internal/errors"
	"github.com/xtxerr/arraymon/internal/logging"
	"github.com/xtxerr/arraymon/internal/series"
)

// insertChunkSize bounds rows per INSERT statement. Four bind parameters per
// row keeps a full event page comfortably inside the driver's limit.
const insertChunkSize = 2000

// TimescaleSink writes points into one relational table: measurement, tags
// and fields as jsonb, plus the timestamp. A unique index over
// (measurement, tags, ts) makes replays idempotent; the upsert keeps the
// last write. The planner owns the schema; the sink assumes it exists.
type TimescaleSink struct {
	db    *sql.DB
	table string
	log   *slog.Logger
}

// OpenTimescale opens a database handle for the sink and the planner.
func OpenTimescale(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	return db, nil
}

// NewTimescaleSink creates a sink over an open database handle.
func NewTimescaleSink(db *sql.DB, table string) *TimescaleSink {
	return &TimescaleSink{
		db:    db,
		table: table,
		log:   logging.Component("sink").With("sink", constants.SinkTimescale),
	}
}

// Name identifies the sink.
func (s *TimescaleSink) Name() string { return constants.SinkTimescale }

// WriteBatch upserts the batch. Duplicate (measurement, tags, ts) rows
// replace their fields, so re-delivered batches converge instead of
// accumulating.
func (s *TimescaleSink) WriteBatch(ctx context.Context, points []series.Point) error {
	for len(points) > 0 {
		chunk := points
		if len(chunk) > insertChunkSize {
			chunk = points[:insertChunkSize]
		}
		points = points[len(chunk):]
		if err := s.writeChunk(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *TimescaleSink) writeChunk(ctx context.Context, points []series.Point) error {
	if len(points) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(s.table)
	b.WriteString(" (measurement, tags, fields, ts) VALUES ")

	args := make([]any, 0, len(points)*4)
	for i := range points {
		pt := &points[i]
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "($%d,$%d,$%d,$%d)", len(args)+1, len(args)+2, len(args)+3, len(args)+4)

		tags, err := encodeTags(pt)
		if err != nil {
			return errors.Wrap(errors.ErrInternal, err.Error())
		}
		fields, err := encodeFields(pt)
		if err != nil {
			return errors.Wrap(errors.ErrInternal, err.Error())
		}
		args = append(args, pt.Measurement, tags, fields, pt.Timestamp)
	}

	b.WriteString(" ON CONFLICT (measurement, tags, ts) DO UPDATE SET fields = EXCLUDED.fields")

	if _, err := s.db.ExecContext(ctx, b.String(), args...); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

// Close closes the database handle.
func (s *TimescaleSink) Close() error {
	return s.db.Close()
}

func encodeTags(pt *series.Point) ([]byte, error) {
	m := make(map[string]string, len(pt.Tags))
	for _, t := range pt.Tags {
		m[t.Key] = t.Value
	}
	return json.Marshal(m)
}

func encodeFields(pt *series.Point) ([]byte, error) {
	m := make(map[string]any, len(pt.Fields))
	for name, v := range pt.Fields {
		m[name] = fieldJSON(v)
	}
	return json.Marshal(m)
}
