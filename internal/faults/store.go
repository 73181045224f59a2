package faults

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/arraymon/internal/errors"
	"github.com/xtxerr/arraymon/internal/logging"
)

// lastKnownQuery picks the most recent row per failure tuple from the points
// table the timescale sink writes. The active flag comes back as jsonb text,
// which is exactly the legacy string representation ParseActive normalizes.
const lastKnownQuery = `
SELECT DISTINCT ON (tags->>'failure_type', tags->>'object_ref', tags->>'object_type')
       tags->>'failure_type',
       tags->>'object_ref',
       tags->>'object_type',
       fields->>'active',
       ts
FROM %s
WHERE measurement = 'failures' AND tags->>'sys_id' = $1
ORDER BY tags->>'failure_type', tags->>'object_ref', tags->>'object_type', ts DESC`

// SQLStateStore reads last-known failure state back from the relational
// metrics backend. Concurrent cold loads for the same system collapse into a
// single query via singleflight.
type SQLStateStore struct {
	db    *sql.DB
	table string
	group singleflight.Group
	log   *slog.Logger
}

// NewSQLStateStore creates a state store over an open database handle.
func NewSQLStateStore(db *sql.DB, table string) *SQLStateStore {
	return &SQLStateStore{
		db:    db,
		table: table,
		log:   logging.Component("failure_store"),
	}
}

// LastKnown returns the most recent durably written record per failure tuple
// for one system. Rows whose active flag is unrecognized count as inactive
// and are logged.
func (s *SQLStateStore) LastKnown(ctx context.Context, sysID string) ([]FailureRecord, error) {
	v, err, shared := s.group.Do(sysID, func() (any, error) {
		return s.query(ctx, sysID)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.log.Debug("cold load shared between callers", "sys_id", sysID)
	}
	return v.([]FailureRecord), nil
}

func (s *SQLStateStore) query(ctx context.Context, sysID string) ([]FailureRecord, error) {
	// The table name is operator configuration, not user input.
	q := fmt.Sprintf(lastKnownQuery, s.table)
	rows, err := s.db.QueryContext(ctx, q, sysID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	defer rows.Close()

	var records []FailureRecord
	for rows.Next() {
		var rec FailureRecord
		var activeRaw sql.NullString
		rec.SysID = sysID
		if err := rows.Scan(&rec.FailureType, &rec.ObjectRef, &rec.ObjectType, &activeRaw, &rec.LastTransition); err != nil {
			return nil, errors.Wrap(errors.ErrDatabase, err.Error())
		}

		if activeRaw.Valid {
			active, ok := ParseActive(activeRaw.String)
			if !ok {
				s.log.Warn("unrecognized active flag in durable store, treating as inactive",
					"sys_id", sysID, "failure_type", rec.FailureType, "value", activeRaw.String)
			}
			rec.Active = active
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return records, nil
}
