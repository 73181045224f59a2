package types

import (
	"fmt"
	"strings"
	"time"
)

// Tier represents a storage tier with specific resolution and retention.
type Tier int

const (
	// TierRaw stores rows at collection resolution (60s performance cadence).
	// Default retention: 168 hours.
	TierRaw Tier = iota

	// TierM5 stores 5-minute aggregates for long-horizon queries.
	// Default retention: 365 days.
	TierM5
)

// String returns the string representation of the tier.
func (t Tier) String() string {
	switch t {
	case TierRaw:
		return "raw"
	case TierM5:
		return "m5"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

// Duration returns the bucket duration for this tier.
func (t Tier) Duration() time.Duration {
	switch t {
	case TierRaw:
		return time.Minute // Performance collection interval
	case TierM5:
		return 5 * time.Minute
	default:
		return 0
	}
}

// IsRaw reports whether this is the raw tier.
func (t Tier) IsRaw() bool {
	return t == TierRaw
}

// TruncateToBucket truncates a timestamp to the start of its bucket.
func (t Tier) TruncateToBucket(ts time.Time) time.Time {
	switch t {
	case TierRaw:
		return ts.Truncate(time.Minute).UTC()
	case TierM5:
		return ts.Truncate(5 * time.Minute).UTC()
	default:
		return ts
	}
}

// SegmentLayout returns the time layout used for parquet segment
// filenames of this tier. Raw segments are named after the flush time
// with second precision; m5 segments after the bucket start.
func (t Tier) SegmentLayout() string {
	if t == TierM5 {
		return "2006-01-02_15-04"
	}
	return "2006-01-02_15-04-05"
}

// SegmentName returns the parquet segment filename for a timestamp.
func (t Tier) SegmentName(ts time.Time) string {
	return ts.UTC().Format(t.SegmentLayout()) + ".parquet"
}

// ParseSegmentTime extracts the timestamp encoded in a segment filename.
func (t Tier) ParseSegmentTime(name string) (time.Time, error) {
	base := strings.TrimSuffix(name, ".parquet")
	return time.ParseInLocation(t.SegmentLayout(), base, time.UTC)
}

// ParseTier parses a string into a Tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "raw":
		return TierRaw, nil
	case "m5":
		return TierM5, nil
	default:
		return TierRaw, fmt.Errorf("unknown tier: %s", s)
	}
}

// AllTiers returns all available tiers in order.
func AllTiers() []Tier {
	return []Tier{TierRaw, TierM5}
}
