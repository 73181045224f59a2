package wal

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/xtxerr/arraymon/internal/storage/types"
)

// Row encoding format (binary, little-endian):
// - Measurement length (2 bytes) + Measurement string
// - Tags length (2 bytes) + Tags string
// - Field length (2 bytes) + Field string
// - TimestampMs (8 bytes)
// - Kind (1 byte)
// - Value (8 bytes, float64)
// - TextValue length (2 bytes) + TextValue string

// encodeRows encodes a slice of rows into a binary format.
func encodeRows(rows []types.Row) ([]byte, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	// Estimate size: ~96 bytes per row average
	buf := make([]byte, 0, len(rows)*96)

	// Write row count
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(rows)))

	for _, r := range rows {
		// Measurement
		buf = appendString(buf, r.Measurement)
		// Tags
		buf = appendString(buf, r.Tags)
		// Field
		buf = appendString(buf, r.Field)
		// TimestampMs
		buf = binary.LittleEndian.AppendUint64(buf, uint64(r.TimestampMs))
		// Kind
		buf = append(buf, byte(r.Kind))
		// Value
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(r.Value))
		// TextValue
		buf = appendString(buf, r.TextValue)
	}

	return buf, nil
}

// decodeRows decodes a binary format into a slice of rows.
func decodeRows(data []byte) ([]types.Row, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("data too short for row count")
	}

	count := int(binary.LittleEndian.Uint32(data[0:4]))
	if count == 0 {
		return nil, nil
	}

	rows := make([]types.Row, count)
	offset := 4

	for i := 0; i < count; i++ {
		var r types.Row
		var err error

		// Measurement
		r.Measurement, offset, err = readString(data, offset)
		if err != nil {
			return nil, fmt.Errorf("row %d measurement: %w", i, err)
		}

		// Tags
		r.Tags, offset, err = readString(data, offset)
		if err != nil {
			return nil, fmt.Errorf("row %d tags: %w", i, err)
		}

		// Field
		r.Field, offset, err = readString(data, offset)
		if err != nil {
			return nil, fmt.Errorf("row %d field: %w", i, err)
		}

		// TimestampMs
		if offset+8 > len(data) {
			return nil, fmt.Errorf("row %d: data too short for timestamp", i)
		}
		r.TimestampMs = int64(binary.LittleEndian.Uint64(data[offset:]))
		offset += 8

		// Kind
		if offset+1 > len(data) {
			return nil, fmt.Errorf("row %d: data too short for kind", i)
		}
		r.Kind = types.ValueKind(data[offset])
		offset++

		// Value
		if offset+8 > len(data) {
			return nil, fmt.Errorf("row %d: data too short for value", i)
		}
		r.Value = math.Float64frombits(binary.LittleEndian.Uint64(data[offset:]))
		offset += 8

		// TextValue
		r.TextValue, offset, err = readString(data, offset)
		if err != nil {
			return nil, fmt.Errorf("row %d text value: %w", i, err)
		}

		rows[i] = r
	}

	return rows, nil
}

// appendString appends a length-prefixed string to the buffer.
func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

// readString reads a length-prefixed string from the buffer.
func readString(data []byte, offset int) (string, int, error) {
	if offset+2 > len(data) {
		return "", offset, fmt.Errorf("data too short for string length")
	}

	length := int(binary.LittleEndian.Uint16(data[offset:]))
	offset += 2

	if offset+length > len(data) {
		return "", offset, fmt.Errorf("data too short for string content")
	}

	s := string(data[offset : offset+length])
	return s, offset + length, nil
}
