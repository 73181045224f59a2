package parquet

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/arraymon/internal/storage/types"
)

func TestRawWriterBasic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rows.parquet")

	w, err := NewRawWriter(path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewRawWriter: %v", err)
	}

	rows := []types.Row{
		{
			Measurement: "array_perf_volume",
			Tags:        "system=prod-array-01,volume=vol-0001",
			Field:       "read_iops",
			TimestampMs: time.Now().UnixMilli(),
			Value:       50.5,
		},
		{
			Measurement: "array_perf_volume",
			Tags:        "system=prod-array-01,volume=vol-0001",
			Field:       "write_iops",
			TimestampMs: time.Now().UnixMilli(),
			Value:       75.0,
		},
	}

	if err := w.Write(rows); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Verify file exists
	stat, err := os.Stat(path)
	if err != nil {
		t.Fatalf("file should exist: %v", err)
	}
	if stat.Size() == 0 {
		t.Error("file should not be empty")
	}
}

func TestRawWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rows.parquet")

	now := time.Now().UnixMilli()
	rows := []types.Row{
		{
			Measurement: "array_perf_volume",
			Tags:        "system=prod-array-01,volume=vol-0001",
			Field:       "read_iops",
			TimestampMs: now,
			Kind:        types.ValueKindFloat,
			Value:       50.5,
		},
		{
			Measurement: "array_failure",
			Tags:        "system=prod-array-02",
			Field:       "failure_type",
			TimestampMs: now + 1000,
			Kind:        types.ValueKindText,
			TextValue:   "fanFailed",
		},
	}

	// Write
	w, err := NewRawWriter(path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewRawWriter: %v", err)
	}
	if err := w.Write(rows); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Read
	r, err := NewRawReader(path)
	if err != nil {
		t.Fatalf("NewRawReader: %v", err)
	}
	defer r.Close()

	readRows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	if len(readRows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(readRows))
	}

	// Verify first row
	row := readRows[0]
	if row.Measurement != "array_perf_volume" {
		t.Errorf("expected measurement=array_perf_volume, got %s", row.Measurement)
	}
	if row.Value != 50.5 {
		t.Errorf("expected value=50.5, got %f", row.Value)
	}
	if row.Kind != types.ValueKindFloat {
		t.Errorf("expected kind=float, got %s", row.Kind)
	}

	// Verify second row
	row = readRows[1]
	if row.Kind != types.ValueKindText {
		t.Errorf("expected kind=text, got %s", row.Kind)
	}
	if row.TextValue != "fanFailed" {
		t.Errorf("expected text_value=fanFailed, got %s", row.TextValue)
	}
}

func TestAggregateWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aggregates.parquet")

	now := time.Now().UnixMilli()
	aggregates := []types.AggregateResult{
		{
			Measurement: "array_perf_volume",
			Tags:        "system=prod-array-01,volume=vol-0001",
			Field:       "read_iops",
			BucketStart: now,
			BucketEnd:   now + 300000,
			Count:       100,
			Sum:         5000,
			Min:         10,
			Max:         90,
			Avg:         50,
			FirstTs:     now + 1000,
			LastTs:      now + 299000,
		},
	}
	aggregates[0].SetPercentile(92)

	// Write
	w, err := NewAggregateWriter(path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewAggregateWriter: %v", err)
	}
	if err := w.Write(aggregates); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Read
	r, err := NewAggregateReader(path)
	if err != nil {
		t.Fatalf("NewAggregateReader: %v", err)
	}
	defer r.Close()

	readAggregates, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	if len(readAggregates) != 1 {
		t.Fatalf("expected 1 aggregate, got %d", len(readAggregates))
	}

	a := readAggregates[0]
	if a.Measurement != "array_perf_volume" {
		t.Errorf("expected measurement=array_perf_volume, got %s", a.Measurement)
	}
	if a.Count != 100 {
		t.Errorf("expected count=100, got %d", a.Count)
	}
	if a.Avg != 50 {
		t.Errorf("expected avg=50, got %f", a.Avg)
	}
	if !a.HasPercentile() {
		t.Error("expected percentile")
	}
	if *a.P95 != 92 {
		t.Errorf("expected p95=92, got %f", *a.P95)
	}
}

func TestLargeWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "large.parquet")

	w, err := NewRawWriter(path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewRawWriter: %v", err)
	}

	now := time.Now().UnixMilli()

	// Write 10000 rows
	rows := make([]types.Row, 10000)
	for i := range rows {
		rows[i] = types.Row{
			Measurement: "array_perf_volume",
			Tags:        "system=prod-array-01,volume=vol-0001",
			Field:       "read_iops",
			TimestampMs: now + int64(i),
			Value:       float64(i % 100),
		}
	}

	if err := w.Write(rows); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Read back
	r, err := NewRawReader(path)
	if err != nil {
		t.Fatalf("NewRawReader: %v", err)
	}
	defer r.Close()

	if r.NumRows() != 10000 {
		t.Errorf("expected 10000 rows, got %d", r.NumRows())
	}

	readRows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	if len(readRows) != 10000 {
		t.Errorf("expected 10000 rows, got %d", len(readRows))
	}
}

func TestCompressionTypes(t *testing.T) {
	compressions := []struct {
		name string
		ct   CompressionType
	}{
		{"none", CompressionNone},
		{"snappy", CompressionSnappy},
		{"zstd", CompressionZstd},
		{"lz4", CompressionLZ4},
	}

	for _, tc := range compressions {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "test.parquet")

			opts := DefaultOptions()
			opts.Compression = tc.ct

			w, err := NewRawWriter(path, opts)
			if err != nil {
				t.Fatalf("NewRawWriter: %v", err)
			}

			rows := []types.Row{
				{Measurement: "array_perf_system", Tags: "system=a1", Field: "read_iops", TimestampMs: 1000, Value: 50},
			}

			if err := w.Write(rows); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			// Verify can read back
			r, err := NewRawReader(path)
			if err != nil {
				t.Fatalf("NewRawReader: %v", err)
			}
			defer r.Close()

			readRows, err := r.ReadAll()
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}

			if len(readRows) != 1 {
				t.Errorf("expected 1 row, got %d", len(readRows))
			}
		})
	}
}

func TestParseCompressionType(t *testing.T) {
	tests := []struct {
		input    string
		expected CompressionType
	}{
		{"snappy", CompressionSnappy},
		{"zstd", CompressionZstd},
		{"lz4", CompressionLZ4},
		{"gzip", CompressionGzip},
		{"none", CompressionNone},
		{"", CompressionNone},
		{"invalid", CompressionZstd}, // Default
	}

	for _, tt := range tests {
		result := ParseCompressionType(tt.input)
		if result != tt.expected {
			t.Errorf("ParseCompressionType(%s): expected %d, got %d", tt.input, tt.expected, result)
		}
	}
}

func TestRowConversions(t *testing.T) {
	// Row conversion
	row := types.Row{
		Measurement: "array_perf_volume",
		Tags:        "system=prod-array-01,volume=vol-0001",
		Field:       "read_iops",
		TimestampMs: 1000,
		Kind:        types.ValueKindInt,
		Value:       50,
	}

	raw := RowToRaw(&row)
	back := RawToRow(&raw)

	if back.Measurement != row.Measurement ||
		back.Field != row.Field ||
		back.Kind != row.Kind ||
		back.Value != row.Value {
		t.Error("row conversion roundtrip failed")
	}

	// Aggregate conversion
	agg := types.AggregateResult{
		Measurement: "array_perf_volume",
		Tags:        "system=prod-array-01,volume=vol-0001",
		Field:       "read_iops",
		BucketStart: 1000,
		BucketEnd:   2000,
		Count:       100,
		Sum:         5000,
		Min:         10,
		Max:         90,
		Avg:         50,
		FirstTs:     1100,
		LastTs:      1900,
	}
	agg.SetPercentile(88)

	aggRow := AggregateToRow(&agg)
	aggBack := RowToAggregate(&aggRow)

	if aggBack.Measurement != agg.Measurement ||
		aggBack.Count != agg.Count ||
		*aggBack.P95 != *agg.P95 {
		t.Error("aggregate conversion roundtrip failed")
	}
}

func TestEmptyWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.parquet")

	w, err := NewRawWriter(path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewRawWriter: %v", err)
	}

	// Empty write should be no-op
	if err := w.Write(nil); err != nil {
		t.Errorf("nil write should succeed: %v", err)
	}
	if err := w.Write([]types.Row{}); err != nil {
		t.Errorf("empty write should succeed: %v", err)
	}

	if w.RowCount() != 0 {
		t.Errorf("expected 0 rows, got %d", w.RowCount())
	}

	w.Close()
}

func TestWriteToClosedWriter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.parquet")

	w, err := NewRawWriter(path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewRawWriter: %v", err)
	}

	w.Close()

	err = w.Write([]types.Row{{Value: 1}})
	if err != ErrWriterClosed {
		t.Errorf("expected ErrWriterClosed, got %v", err)
	}
}

func TestGetFileInfo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.parquet")

	w, err := NewRawWriter(path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewRawWriter: %v", err)
	}

	rows := make([]types.Row, 100)
	for i := range rows {
		rows[i] = types.Row{
			Measurement: "array_perf_volume",
			Tags:        "system=prod-array-01,volume=vol-0001",
			Field:       "read_iops",
			TimestampMs: int64(i),
			Value:       float64(i),
		}
	}

	w.Write(rows)
	w.Close()

	info, err := GetFileInfo(path)
	if err != nil {
		t.Fatalf("GetFileInfo: %v", err)
	}

	if info.NumRows != 100 {
		t.Errorf("expected 100 rows, got %d", info.NumRows)
	}
	if info.Size <= 0 {
		t.Error("expected positive size")
	}
}

func BenchmarkRawWrite(b *testing.B) {
	dir := b.TempDir()
	path := filepath.Join(dir, "bench.parquet")

	w, err := NewRawWriter(path, DefaultOptions())
	if err != nil {
		b.Fatalf("NewRawWriter: %v", err)
	}
	defer w.Close()

	row := types.Row{
		Measurement: "array_perf_volume",
		Tags:        "system=prod-array-01,volume=vol-0001",
		Field:       "read_iops",
		TimestampMs: time.Now().UnixMilli(),
		Value:       50.5,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.Write([]types.Row{row})
	}
}

func BenchmarkRawWriteBatch1000(b *testing.B) {
	dir := b.TempDir()
	path := filepath.Join(dir, "bench.parquet")

	w, err := NewRawWriter(path, DefaultOptions())
	if err != nil {
		b.Fatalf("NewRawWriter: %v", err)
	}
	defer w.Close()

	now := time.Now().UnixMilli()
	batch := make([]types.Row, 1000)
	for i := range batch {
		batch[i] = types.Row{
			Measurement: "array_perf_volume",
			Tags:        "system=prod-array-01,volume=vol-0001",
			Field:       "read_iops",
			TimestampMs: now + int64(i),
			Value:       float64(i),
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.Write(batch)
	}
}
