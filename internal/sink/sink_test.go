package sink

import (
	"context"
	"testing"
	"time"

	"github.com/xtxerr/arraymon/internal/errors"
	"github.com/xtxerr/arraymon/internal/series"
)

type fakeSink struct {
	name    string
	err     error
	batches [][]series.Point
	closed  bool
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) WriteBatch(_ context.Context, points []series.Point) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, points)
	return nil
}

func (f *fakeSink) Close() error {
	f.closed = true
	return nil
}

func testPoint(measurement string) series.Point {
	pt := series.New(measurement, time.Unix(1750000000, 0))
	pt.AddTag("sys_id", "sys-a")
	pt.SetField("readIOps", series.Float(8.33))
	return pt
}

func TestFanoutWritesAllSinks(t *testing.T) {
	a := &fakeSink{name: "a"}
	b := &fakeSink{name: "b"}
	f := NewFanout(a, b)

	points := []series.Point{testPoint("volumes")}
	if err := f.WriteBatch(context.Background(), points); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(a.batches) != 1 || len(b.batches) != 1 {
		t.Errorf("expected both sinks written, got a=%d b=%d", len(a.batches), len(b.batches))
	}
}

func TestFanoutIsolatesFailures(t *testing.T) {
	broken := &fakeSink{name: "broken", err: errors.ErrConnectionFailed}
	healthy := &fakeSink{name: "healthy"}
	f := NewFanout(broken, healthy)

	err := f.WriteBatch(context.Background(), []series.Point{testPoint("volumes")})
	if err == nil {
		t.Fatal("expected error from the broken sink")
	}
	if !errors.Is(err, errors.ErrBackendWrite) {
		t.Errorf("expected backend write error, got %v", err)
	}
	// The healthy sink still got its copy.
	if len(healthy.batches) != 1 {
		t.Errorf("healthy sink should have been written, got %d batches", len(healthy.batches))
	}
	// Dropped batches are never retried.
	if errors.IsRetriable(err) {
		t.Error("backend write failures must not classify as retriable")
	}
}

func TestFanoutEmptyBatch(t *testing.T) {
	a := &fakeSink{name: "a"}
	f := NewFanout(a)
	if err := f.WriteBatch(context.Background(), nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if len(a.batches) != 0 {
		t.Error("empty batch should not reach sinks")
	}
}

func TestFanoutClose(t *testing.T) {
	a := &fakeSink{name: "a"}
	b := &fakeSink{name: "b"}
	f := NewFanout(a, b)
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("close should reach every sink")
	}
}

func TestFieldJSON(t *testing.T) {
	tests := []struct {
		name string
		in   series.FieldValue
		want any
	}{
		{"float", series.Float(8.33), 8.33},
		{"int", series.Int(42), int64(42)},
		{"bool", series.Bool(true), true},
		{"string", series.String("x"), "x"},
		{"absent", series.Absent(), nil},
	}
	for _, tt := range tests {
		if got := fieldJSON(tt.in); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}
