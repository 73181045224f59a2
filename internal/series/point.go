// Package series defines the normalized time-series point model shared by the
// mapper, engines, and sinks.
//
// A Point carries one measurement for one entity at one instant: an ordered
// tag set identifying the entity and a field set holding the values. Field
// values are a small tagged union so that "the upstream omitted this field"
// is representable as a typed absent sentinel instead of a missing map key.
// The schema contract downstream consumers rely on is: every field declared
// in the catalog for a class appears in Fields, always.
package series

import (
	"sort"
	"strings"
	"time"
)

// FieldKind discriminates the FieldValue union.
type FieldKind int

const (
	// KindAbsent marks a declared field the source payload did not supply,
	// or one whose value could not be coerced.
	KindAbsent FieldKind = iota
	// KindFloat is a 64-bit floating point value. All numeric payload values
	// coerce to this kind.
	KindFloat
	// KindInt is a 64-bit integer value (sequence numbers, counts).
	KindInt
	// KindBool is a boolean value.
	KindBool
	// KindString is a text value (descriptions, locations, statuses).
	KindString
)

// String returns a human-readable representation of the FieldKind.
func (k FieldKind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// FieldValue is one field's value. The zero value is the absent sentinel.
type FieldValue struct {
	Kind FieldKind
	Num  float64
	Int  int64
	Bool bool
	Str  string
}

// Absent returns the typed absent sentinel.
func Absent() FieldValue {
	return FieldValue{Kind: KindAbsent}
}

// Float wraps a float64.
func Float(v float64) FieldValue {
	return FieldValue{Kind: KindFloat, Num: v}
}

// Int wraps an int64.
func Int(v int64) FieldValue {
	return FieldValue{Kind: KindInt, Int: v}
}

// Bool wraps a bool.
func Bool(v bool) FieldValue {
	return FieldValue{Kind: KindBool, Bool: v}
}

// String wraps a string.
func String(v string) FieldValue {
	return FieldValue{Kind: KindString, Str: v}
}

// IsAbsent reports whether the value is the absent sentinel.
func (f FieldValue) IsAbsent() bool {
	return f.Kind == KindAbsent
}

// AsFloat returns the value as a float64 and whether the conversion is exact.
// Ints widen; bools map to 0/1; strings and absent do not convert.
func (f FieldValue) AsFloat() (float64, bool) {
	switch f.Kind {
	case KindFloat:
		return f.Num, true
	case KindInt:
		return float64(f.Int), true
	case KindBool:
		if f.Bool {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Tag is one identifying key/value pair. Tags are ordered: points for the
// same entity always carry their tags in the same declared order, so a
// serialized tag set is stable enough to hash or deduplicate on.
type Tag struct {
	Key   string
	Value string
}

// Point is one normalized time-series record.
type Point struct {
	Measurement string
	Tags        []Tag
	Fields      map[string]FieldValue
	// Timestamp is truncated to second precision at construction.
	Timestamp time.Time
}

// New creates a Point with the given measurement and timestamp, truncated to
// seconds, with an empty field set ready to fill.
func New(measurement string, ts time.Time) Point {
	return Point{
		Measurement: measurement,
		Fields:      make(map[string]FieldValue),
		Timestamp:   ts.Truncate(time.Second),
	}
}

// AddTag appends a tag, preserving declared order. Adding a key that is
// already present replaces its value in place instead of duplicating it.
func (p *Point) AddTag(key, value string) {
	for i := range p.Tags {
		if p.Tags[i].Key == key {
			p.Tags[i].Value = value
			return
		}
	}
	p.Tags = append(p.Tags, Tag{Key: key, Value: value})
}

// Tag returns the value for a tag key, if present.
func (p *Point) Tag(key string) (string, bool) {
	for _, t := range p.Tags {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// SetField stores a field value, overwriting any previous value for the key.
func (p *Point) SetField(name string, v FieldValue) {
	p.Fields[name] = v
}

// TagString renders the ordered tag set as "k1=v1,k2=v2". Because tag order
// is fixed per class, equal entities render identically across cycles.
func (p *Point) TagString() string {
	if len(p.Tags) == 0 {
		return ""
	}
	var b strings.Builder
	for i, t := range p.Tags {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(t.Key)
		b.WriteByte('=')
		b.WriteString(t.Value)
	}
	return b.String()
}

// SeriesKey identifies the series this point belongs to: measurement plus the
// ordered tag set. Two points with the same SeriesKey and timestamp are
// duplicates; sinks resolve them last-write-wins.
func (p *Point) SeriesKey() string {
	return p.Measurement + "{" + p.TagString() + "}"
}

// FieldNames returns the field keys in sorted order, for deterministic
// serialization and tests.
func (p *Point) FieldNames() []string {
	names := make([]string, 0, len(p.Fields))
	for name := range p.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Batch is a collection of points for batch writes.
type Batch struct {
	Points []Point
}

// NewBatch creates a batch with the given capacity.
func NewBatch(capacity int) *Batch {
	return &Batch{
		Points: make([]Point, 0, capacity),
	}
}

// Add appends a point to the batch.
func (b *Batch) Add(p Point) {
	b.Points = append(b.Points, p)
}

// Len returns the number of points in the batch.
func (b *Batch) Len() int {
	return len(b.Points)
}

// Clear resets the batch for reuse.
func (b *Batch) Clear() {
	b.Points = b.Points[:0]
}
