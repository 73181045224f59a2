package parquet

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/xtxerr/arraymon/internal/storage/types"
)

// RawReader reads raw-tier rows from a Parquet file.
type RawReader struct {
	file   *os.File
	reader *parquet.GenericReader[RawRow]
	path   string
}

// NewRawReader creates a new raw-tier Parquet reader.
func NewRawReader(path string) (*RawReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	reader := parquet.NewGenericReader[RawRow](f)

	return &RawReader{
		file:   f,
		reader: reader,
		path:   path,
	}, nil
}

// Read reads up to n rows from the file.
// Returns io.EOF once all rows have been consumed.
func (r *RawReader) Read(n int) ([]types.Row, error) {
	raws := make([]RawRow, n)
	count, err := r.reader.Read(raws)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if count == 0 {
		return nil, io.EOF
	}

	rows := make([]types.Row, count)
	for i := 0; i < count; i++ {
		rows[i] = RawToRow(&raws[i])
	}

	return rows, nil
}

// ReadAll reads all rows from the file.
func (r *RawReader) ReadAll() ([]types.Row, error) {
	numRows := r.reader.NumRows()
	if numRows == 0 {
		return nil, nil
	}
	raws := make([]RawRow, numRows)

	// A full buffer may come back with io.EOF, the rows are still valid.
	n, err := r.reader.Read(raws)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	rows := make([]types.Row, n)
	for i := 0; i < n; i++ {
		rows[i] = RawToRow(&raws[i])
	}

	return rows, nil
}

// NumRows returns the total number of rows in the file.
func (r *RawReader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *RawReader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *RawReader) Path() string {
	return r.path
}

// AggregateReader reads aggregates from a Parquet file.
type AggregateReader struct {
	file   *os.File
	reader *parquet.GenericReader[AggregateRow]
	path   string
}

// NewAggregateReader creates a new aggregate Parquet reader.
func NewAggregateReader(path string) (*AggregateReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	reader := parquet.NewGenericReader[AggregateRow](f)

	return &AggregateReader{
		file:   f,
		reader: reader,
		path:   path,
	}, nil
}

// Read reads up to n aggregates from the file.
// Returns io.EOF once all rows have been consumed.
func (r *AggregateReader) Read(n int) ([]types.AggregateResult, error) {
	rows := make([]AggregateRow, n)
	count, err := r.reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if count == 0 {
		return nil, io.EOF
	}

	results := make([]types.AggregateResult, count)
	for i := 0; i < count; i++ {
		results[i] = RowToAggregate(&rows[i])
	}

	return results, nil
}

// ReadAll reads all aggregates from the file.
func (r *AggregateReader) ReadAll() ([]types.AggregateResult, error) {
	numRows := r.reader.NumRows()
	if numRows == 0 {
		return nil, nil
	}
	rows := make([]AggregateRow, numRows)

	n, err := r.reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	results := make([]types.AggregateResult, n)
	for i := 0; i < n; i++ {
		results[i] = RowToAggregate(&rows[i])
	}

	return results, nil
}

// NumRows returns the total number of rows in the file.
func (r *AggregateReader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *AggregateReader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *AggregateReader) Path() string {
	return r.path
}

// FileInfo holds information about a Parquet file.
type FileInfo struct {
	Path     string
	Size     int64
	NumRows  int64
	NumCols  int
	Metadata map[string]string
}

// GetFileInfo returns information about a Parquet file.
func GetFileInfo(path string) (*FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := parquet.NewGenericReader[RawRow](f)
	defer reader.Close()

	info := &FileInfo{
		Path:    path,
		Size:    stat.Size(),
		NumRows: reader.NumRows(),
	}

	return info, nil
}
