package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/xtxerr/arraymon/internal/storage/types"
)

// Reader reads rows from WAL segment files.
type Reader struct {
	path string
	file *os.File

	// Statistics
	stats ReaderStats
}

// ReaderStats holds WAL reader statistics.
type ReaderStats struct {
	RecordsRead    int64
	RowsRead       int64
	BytesRead      int64
	CorruptRecords int64
}

// NewReader creates a new WAL reader for a segment file.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open segment: %w", err)
	}

	// Verify header
	var header [headerSize]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("read header: %w", err)
	}

	magic := binary.LittleEndian.Uint64(header[0:8])
	if magic != walMagic {
		f.Close()
		return nil, fmt.Errorf("invalid magic: expected %x, got %x", uint64(walMagic), magic)
	}

	version := binary.LittleEndian.Uint32(header[8:12])
	if version != walVersion {
		f.Close()
		return nil, fmt.Errorf("unsupported version: %d", version)
	}

	return &Reader{
		path: path,
		file: f,
	}, nil
}

// ReadAll reads all rows from the segment.
func (r *Reader) ReadAll() ([]types.Row, error) {
	var allRows []types.Row

	for {
		rows, err := r.ReadRecord()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Skip corrupt record but continue
			r.stats.CorruptRecords++
			continue
		}

		allRows = append(allRows, rows...)
	}

	return allRows, nil
}

// ReadRecord reads the next record from the segment.
// Returns io.EOF when there are no more records.
func (r *Reader) ReadRecord() ([]types.Row, error) {
	// Read record header
	var header [recordHeaderSize]byte
	if _, err := io.ReadFull(r.file, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read record header: %w", err)
	}

	length := binary.LittleEndian.Uint32(header[0:4])
	expectedCRC := binary.LittleEndian.Uint32(header[4:8])

	// Sanity check length
	if length > 100*1024*1024 { // 100MB max
		return nil, fmt.Errorf("record too large: %d bytes", length)
	}

	// Read payload
	payload := make([]byte, length)
	if _, err := io.ReadFull(r.file, payload); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	// Verify CRC
	actualCRC := crc32.ChecksumIEEE(payload)
	if actualCRC != expectedCRC {
		return nil, fmt.Errorf("CRC mismatch: expected %x, got %x", expectedCRC, actualCRC)
	}

	// Decode rows
	rows, err := decodeRows(payload)
	if err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}

	r.stats.RecordsRead++
	r.stats.RowsRead += int64(len(rows))
	r.stats.BytesRead += int64(recordHeaderSize + len(payload))

	return rows, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Stats returns reader statistics.
func (r *Reader) Stats() ReaderStats {
	return r.stats
}

// Path returns the segment path.
func (r *Reader) Path() string {
	return r.path
}

// ReadSegment is a convenience function to read all rows from a segment file.
func ReadSegment(path string) ([]types.Row, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return r.ReadAll()
}

// ReadAllSegments reads all rows from multiple segment files.
// Segments are read in order.
func ReadAllSegments(paths []string) ([]types.Row, error) {
	var allRows []types.Row

	for _, path := range paths {
		rows, err := ReadSegment(path)
		if err != nil {
			return nil, fmt.Errorf("read segment %s: %w", path, err)
		}
		allRows = append(allRows, rows...)
	}

	return allRows, nil
}

// Iterator iterates over rows in a segment.
type Iterator struct {
	reader   *Reader
	buffer   []types.Row
	position int
	done     bool
	err      error
}

// NewIterator creates an iterator for a segment file.
func NewIterator(path string) (*Iterator, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}

	return &Iterator{
		reader: r,
	}, nil
}

// Next returns true if another row is available.
func (it *Iterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}

	// If buffer is exhausted, read next record
	for it.position >= len(it.buffer) {
		rows, err := it.reader.ReadRecord()
		if err == io.EOF {
			it.done = true
			return false
		}
		if err != nil {
			it.err = err
			return false
		}

		it.buffer = rows
		it.position = 0
	}

	return true
}

// Row returns the current row and advances the iterator.
func (it *Iterator) Row() types.Row {
	if it.position < len(it.buffer) {
		r := it.buffer[it.position]
		it.position++
		return r
	}
	return types.Row{}
}

// Err returns any error encountered during iteration.
func (it *Iterator) Err() error {
	return it.err
}

// Close closes the iterator.
func (it *Iterator) Close() error {
	return it.reader.Close()
}
