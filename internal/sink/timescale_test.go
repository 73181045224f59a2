package sink

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/xtxerr/arraymon/internal/errors"
	"github.com/xtxerr/arraymon/internal/series"
)

func TestTimescaleSinkWriteBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	s := NewTimescaleSink(db, "points")
	ts := time.Unix(1750000000, 0)

	pt := series.New("volumes", ts)
	pt.AddTag("sys_id", "sys-a")
	pt.AddTag("vol_name", "data01")
	pt.SetField("readIOps", series.Float(8.33))
	pt.SetField("writeIOps", series.Absent())

	expected := regexp.QuoteMeta(
		"INSERT INTO points (measurement, tags, fields, ts) VALUES ($1,$2,$3,$4)" +
			" ON CONFLICT (measurement, tags, ts) DO UPDATE SET fields = EXCLUDED.fields")
	mock.ExpectExec(expected).
		WithArgs(
			"volumes",
			[]byte(`{"sys_id":"sys-a","vol_name":"data01"}`),
			[]byte(`{"readIOps":8.33,"writeIOps":null}`),
			ts,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.WriteBatch(context.Background(), []series.Point{pt}); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTimescaleSinkEmptyBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	s := NewTimescaleSink(db, "points")
	if err := s.WriteBatch(context.Background(), nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTimescaleSinkChunksLargeBatches(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	s := NewTimescaleSink(db, "points")

	points := make([]series.Point, insertChunkSize+1)
	for i := range points {
		points[i] = testPoint("major_event_log")
	}

	mock.ExpectExec("INSERT INTO points").WillReturnResult(sqlmock.NewResult(0, insertChunkSize))
	mock.ExpectExec("INSERT INTO points").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.WriteBatch(context.Background(), points); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expected two chunked inserts: %v", err)
	}
}

func TestTimescaleSinkWriteError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	s := NewTimescaleSink(db, "points")
	mock.ExpectExec("INSERT INTO points").WillReturnError(context.DeadlineExceeded)

	err = s.WriteBatch(context.Background(), []series.Point{testPoint("volumes")})
	if err == nil {
		t.Fatal("expected write error")
	}
	if !errors.Is(err, errors.ErrDatabase) {
		t.Errorf("expected database error, got %v", err)
	}
}

func TestTimescaleSinkName(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer db.Close()

	if got := NewTimescaleSink(db, "points").Name(); got != "timescale" {
		t.Errorf("expected sink name timescale, got %s", got)
	}
}
