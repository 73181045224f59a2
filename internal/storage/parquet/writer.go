package parquet

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	"github.com/xtxerr/arraymon/internal/storage/types"
)

// Options configures the Parquet writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// CompressionLevel for algorithms that support it (zstd: 1-22)
	CompressionLevel int

	// RowGroupSize is the target number of rows per row group
	RowGroupSize int

	// PageSize is the target page size in bytes
	PageSize int
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{
		Compression:      CompressionZstd,
		CompressionLevel: 3,
		RowGroupSize:     100000,
		PageSize:         1024 * 1024, // 1MB
	}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// RawRow represents a raw-tier row in Parquet format.
type RawRow struct {
	Measurement string  `parquet:"measurement,zstd"`
	Tags        string  `parquet:"tags,zstd"`
	Field       string  `parquet:"field,zstd"`
	TimestampMs int64   `parquet:"timestamp_ms"`
	Kind        int32   `parquet:"kind"`
	Value       float64 `parquet:"value"`
	TextValue   string  `parquet:"text_value,optional,zstd"`
}

// AggregateRow represents an m5-tier aggregate in Parquet format.
type AggregateRow struct {
	Measurement string  `parquet:"measurement,zstd"`
	Tags        string  `parquet:"tags,zstd"`
	Field       string  `parquet:"field,zstd"`
	BucketStart int64   `parquet:"bucket_start"`
	BucketEnd   int64   `parquet:"bucket_end"`
	Count       int64   `parquet:"count"`
	Sum         float64 `parquet:"sum"`
	Min         float64 `parquet:"min"`
	Max         float64 `parquet:"max"`
	Avg         float64 `parquet:"avg"`
	P95         float64 `parquet:"p95,optional"`
	FirstTs     int64   `parquet:"first_ts"`
	LastTs      int64   `parquet:"last_ts"`
}

// RowToRaw converts a Row to a RawRow.
func RowToRaw(r *types.Row) RawRow {
	return RawRow{
		Measurement: r.Measurement,
		Tags:        r.Tags,
		Field:       r.Field,
		TimestampMs: r.TimestampMs,
		Kind:        int32(r.Kind),
		Value:       r.Value,
		TextValue:   r.TextValue,
	}
}

// RawToRow converts a RawRow to a Row.
func RawToRow(r *RawRow) types.Row {
	return types.Row{
		Measurement: r.Measurement,
		Tags:        r.Tags,
		Field:       r.Field,
		TimestampMs: r.TimestampMs,
		Kind:        types.ValueKind(r.Kind),
		Value:       r.Value,
		TextValue:   r.TextValue,
	}
}

// AggregateToRow converts an AggregateResult to an AggregateRow.
func AggregateToRow(a *types.AggregateResult) AggregateRow {
	row := AggregateRow{
		Measurement: a.Measurement,
		Tags:        a.Tags,
		Field:       a.Field,
		BucketStart: a.BucketStart,
		BucketEnd:   a.BucketEnd,
		Count:       a.Count,
		Sum:         a.Sum,
		Min:         a.Min,
		Max:         a.Max,
		Avg:         a.Avg,
		FirstTs:     a.FirstTs,
		LastTs:      a.LastTs,
	}

	if a.P95 != nil {
		row.P95 = *a.P95
	}

	return row
}

// RowToAggregate converts an AggregateRow to an AggregateResult.
func RowToAggregate(r *AggregateRow) types.AggregateResult {
	result := types.AggregateResult{
		Measurement: r.Measurement,
		Tags:        r.Tags,
		Field:       r.Field,
		BucketStart: r.BucketStart,
		BucketEnd:   r.BucketEnd,
		Count:       r.Count,
		Sum:         r.Sum,
		Min:         r.Min,
		Max:         r.Max,
		Avg:         r.Avg,
		FirstTs:     r.FirstTs,
		LastTs:      r.LastTs,
	}

	// Set percentile if present
	if r.P95 != 0 {
		result.SetPercentile(r.P95)
	}

	return result
}

// RawWriter writes raw-tier rows to a Parquet file.
type RawWriter struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[RawRow]
	rowCount int64
	closed   bool
}

// NewRawWriter creates a new raw-tier Parquet writer.
func NewRawWriter(path string, opts Options) (*RawWriter, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writerOpts := []parquet.WriterOption{
		parquet.Compression(getCompression(opts.Compression)),
	}

	writer := parquet.NewGenericWriter[RawRow](f, writerOpts...)

	return &RawWriter{
		path:   path,
		file:   f,
		writer: writer,
	}, nil
}

// Write writes rows to the Parquet file.
func (w *RawWriter) Write(rows []types.Row) error {
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	raws := make([]RawRow, len(rows))
	for i := range rows {
		raws[i] = RowToRaw(&rows[i])
	}

	n, err := w.writer.Write(raws)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	return nil
}

// Close closes the writer.
func (w *RawWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *RawWriter) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *RawWriter) Path() string {
	return w.path
}

// AggregateWriter writes aggregates to a Parquet file.
type AggregateWriter struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[AggregateRow]
	rowCount int64
	closed   bool
}

// NewAggregateWriter creates a new aggregate Parquet writer.
func NewAggregateWriter(path string, opts Options) (*AggregateWriter, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writerOpts := []parquet.WriterOption{
		parquet.Compression(getCompression(opts.Compression)),
	}

	writer := parquet.NewGenericWriter[AggregateRow](f, writerOpts...)

	return &AggregateWriter{
		path:   path,
		file:   f,
		writer: writer,
	}, nil
}

// Write writes aggregates to the Parquet file.
func (w *AggregateWriter) Write(aggregates []types.AggregateResult) error {
	if len(aggregates) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	rows := make([]AggregateRow, len(aggregates))
	for i := range aggregates {
		rows[i] = AggregateToRow(&aggregates[i])
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	return nil
}

// Close closes the writer.
func (w *AggregateWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *AggregateWriter) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *AggregateWriter) Path() string {
	return w.path
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = fmt.Errorf("parquet writer is closed")
