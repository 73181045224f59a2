package types

import "time"

// ValueKind indicates how a row's value is stored.
type ValueKind int

const (
	// ValueKindFloat is a numeric value stored in Value.
	ValueKindFloat ValueKind = iota
	// ValueKindInt is an integer value stored in Value (exact up to 2^53).
	ValueKindInt
	// ValueKindBool is a boolean stored in Value as 0 or 1.
	ValueKindBool
	// ValueKindText is a string value stored in TextValue.
	ValueKindText
)

// String returns a human-readable representation of the ValueKind.
func (v ValueKind) String() string {
	switch v {
	case ValueKindFloat:
		return "float"
	case ValueKindInt:
		return "int"
	case ValueKindBool:
		return "bool"
	case ValueKindText:
		return "text"
	default:
		return "unknown"
	}
}

// Row is a single persisted field value. Points fan out to one row per
// present field so the store stays columnar without a per-measurement schema.
// This is the primary data unit flowing through the local store.
type Row struct {
	// Identity
	Measurement string // Measurement name (e.g., "disks")
	Tags        string // Flattened ordered tag set (e.g., "system_id=povsan1,disk_id=0.7")
	Field       string // Field name within the measurement (e.g., "read_iops")

	// Timestamp
	TimestampMs int64 // Unix timestamp in milliseconds

	// Value kind indicator
	Kind ValueKind

	// Value holds numeric and boolean values (bools as 0/1)
	Value float64

	// TextValue holds the value for ValueKindText rows
	TextValue string
}

// TimestampTime returns the timestamp as a time.Time.
func (r *Row) TimestampTime() time.Time {
	return time.UnixMilli(r.TimestampMs)
}

// Key returns a unique identifier for this row's series.
func (r *Row) Key() string {
	return r.Measurement + "{" + r.Tags + "}." + r.Field
}

// IsNumeric reports whether the row carries a value usable for aggregation.
func (r *Row) IsNumeric() bool {
	return r.Kind != ValueKindText
}

// RowBatch represents a collection of rows for batch processing.
type RowBatch struct {
	Rows []Row
}

// NewRowBatch creates a new batch with the given capacity.
func NewRowBatch(capacity int) *RowBatch {
	return &RowBatch{
		Rows: make([]Row, 0, capacity),
	}
}

// Add appends a row to the batch.
func (b *RowBatch) Add(r Row) {
	b.Rows = append(b.Rows, r)
}

// Len returns the number of rows in the batch.
func (b *RowBatch) Len() int {
	return len(b.Rows)
}

// Clear resets the batch for reuse.
func (b *RowBatch) Clear() {
	b.Rows = b.Rows[:0]
}
