package faults

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/xtxerr/arraymon/internal/errors"
)

func newMockStore(t *testing.T) (*SQLStateStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLStateStore(db, "points"), mock
}

func TestSQLStateStoreLastKnown(t *testing.T) {
	store, mock := newMockStore(t)
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"failure_type", "object_ref", "object_type", "active", "ts"}).
		AddRow("drivePostFail", "d1", "drive", "true", ts).
		AddRow("batteryFail", "b1", "battery", "false", ts).
		AddRow("fanFail", "f1", "fan", "1", ts)
	mock.ExpectQuery("SELECT DISTINCT ON").WithArgs("sys-a").WillReturnRows(rows)

	records, err := store.LastKnown(context.Background(), "sys-a")
	if err != nil {
		t.Fatalf("last known: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	want := map[string]bool{"drivePostFail": true, "batteryFail": false, "fanFail": true}
	for _, rec := range records {
		if rec.SysID != "sys-a" {
			t.Errorf("%s: expected sys_id sys-a, got %q", rec.FailureType, rec.SysID)
		}
		if active, found := want[rec.FailureType]; !found || rec.Active != active {
			t.Errorf("%s: expected active=%v, got %v", rec.FailureType, want[rec.FailureType], rec.Active)
		}
		if !rec.LastTransition.Equal(ts) {
			t.Errorf("%s: expected ts %v, got %v", rec.FailureType, ts, rec.LastTransition)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLStateStoreUnrecognizedActiveIsInactive(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"failure_type", "object_ref", "object_type", "active", "ts"}).
		AddRow("volumeFail", "v1", "volume", "maybe", time.Now())
	mock.ExpectQuery("SELECT DISTINCT ON").WithArgs("sys-a").WillReturnRows(rows)

	records, err := store.LastKnown(context.Background(), "sys-a")
	if err != nil {
		t.Fatalf("last known: %v", err)
	}
	if len(records) != 1 || records[0].Active {
		t.Errorf("expected one inactive record, got %+v", records)
	}
}

func TestSQLStateStoreQueryError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT DISTINCT ON").WithArgs("sys-a").
		WillReturnError(context.DeadlineExceeded)

	_, err := store.LastKnown(context.Background(), "sys-a")
	if err == nil {
		t.Fatal("expected query error")
	}
	if !errors.Is(err, errors.ErrDatabase) {
		t.Errorf("expected database error class, got %v", err)
	}
}

func TestSQLStateStoreEmptyResult(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT DISTINCT ON").WithArgs("sys-new").
		WillReturnRows(sqlmock.NewRows([]string{"failure_type", "object_ref", "object_type", "active", "ts"}))

	records, err := store.LastKnown(context.Background(), "sys-new")
	if err != nil {
		t.Fatalf("last known: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records for a fresh system, got %d", len(records))
	}
}
