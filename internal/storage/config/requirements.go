package config

import (
	"fmt"
	"time"
)

// Requirements represents calculated resource requirements.
type Requirements struct {
	// Memory requirements
	RawBufferBytes       int64
	AggregateBufferBytes int64
	QueryCacheBytes      int64
	TotalRAMBytes        int64

	// Storage requirements per tier
	RawStorageBytes   int64
	M5StorageBytes    int64
	TotalStorageBytes int64

	// Throughput
	RowsPerSecond    int64
	BytesPerSecond   int64
	AggregatesPerDay int64

	// CPU estimate
	RecommendedCPUCores int
}

// Constants for calculations
const (
	// Bytes per row (in-memory, including tag string)
	bytesPerRow = 96

	// Bytes per aggregate (in-memory, without DDSketch)
	bytesPerAggregate = 120

	// Bytes per aggregate (in-memory, with DDSketch)
	bytesPerAggregateWithSketch = 200

	// Bytes per raw row in Parquet (compressed, dictionary-encoded tags)
	bytesPerRawRowCompressed = 18

	// Bytes per aggregate row in Parquet (compressed)
	bytesPerAggRowCompressed = 30
)

// CalculateRequirements computes resource requirements based on configuration.
func (c *Config) CalculateRequirements() Requirements {
	r := Requirements{}

	seriesCount := int64(c.Scale.SystemCount) * int64(c.Scale.SeriesPerSystem)

	// Calculate rows per second
	r.RowsPerSecond = seriesCount / int64(c.Scale.IntervalSec)
	if r.RowsPerSecond == 0 && seriesCount > 0 {
		r.RowsPerSecond = 1
	}

	// Raw bytes per second (uncompressed)
	r.BytesPerSecond = r.RowsPerSecond * bytesPerRow

	// -------------------------------------------------------------------------
	// Memory Requirements
	// -------------------------------------------------------------------------

	// Raw buffer memory
	if c.Features.RawBuffer.Enabled {
		if c.Features.RawBuffer.MemoryBudgetMB > 0 {
			r.RawBufferBytes = int64(c.Features.RawBuffer.MemoryBudgetMB) * 1024 * 1024
		} else if c.Features.RawBuffer.Duration > 0 {
			durationSec := int64(c.Features.RawBuffer.Duration / time.Second)
			r.RawBufferBytes = r.RowsPerSecond * durationSec * bytesPerRow
		}
	}

	// Aggregate buffer memory (one streaming aggregate per series for the
	// current bucket)
	bytesPerAgg := int64(bytesPerAggregate)
	if c.Features.Percentile.Enabled {
		bytesPerAgg = bytesPerAggregateWithSketch
	}
	r.AggregateBufferBytes = seriesCount * bytesPerAgg

	// Query cache (from config or default)
	r.QueryCacheBytes = parseMemoryLimit(c.Query.MemoryLimit)

	// Total RAM, plus headroom for the Go runtime
	r.TotalRAMBytes = r.RawBufferBytes + r.AggregateBufferBytes + r.QueryCacheBytes
	r.TotalRAMBytes += 256 * 1024 * 1024

	// -------------------------------------------------------------------------
	// Storage Requirements
	// -------------------------------------------------------------------------

	rowsPerDay := r.RowsPerSecond * 86400

	// Raw tier: rows * retention
	rawRetentionDays := float64(c.Retention.Raw) / float64(24*time.Hour)
	r.RawStorageBytes = int64(float64(rowsPerDay) * bytesPerRawRowCompressed * rawRetentionDays)

	// M5 tier: 288 buckets per day * series * retention
	m5BucketsPerDay := int64(288)
	m5RetentionDays := float64(c.Retention.M5) / float64(24*time.Hour)
	r.M5StorageBytes = int64(float64(m5BucketsPerDay*seriesCount) * bytesPerAggRowCompressed * m5RetentionDays)

	r.TotalStorageBytes = r.RawStorageBytes + r.M5StorageBytes

	// -------------------------------------------------------------------------
	// CPU Requirements
	// -------------------------------------------------------------------------

	// Rough estimate: 1 core per 100k rows/sec for ingestion, plus
	// downsample workers.
	ingestCores := int(r.RowsPerSecond/100000) + 1
	r.RecommendedCPUCores = ingestCores + c.Compaction.Workers

	// Aggregates per day
	r.AggregatesPerDay = m5BucketsPerDay * seriesCount

	return r
}

// FormatRequirements returns a human-readable summary of requirements.
func (r *Requirements) FormatRequirements() string {
	return fmt.Sprintf(`Resource Requirements
=====================

Throughput:
  Rows/sec:          %s
  Bytes/sec:         %s
  Aggregates/day:    %s

Memory:
  Raw Buffer:        %s
  Aggregate Buffer:  %s
  Query Cache:       %s
  Total RAM:         %s (recommended)

Storage:
  Raw Tier:          %s
  M5 Tier:           %s
  Total Storage:     %s (recommended)

CPU:
  Recommended Cores: %d
`,
		formatNumber(r.RowsPerSecond),
		formatBytes(r.BytesPerSecond),
		formatNumber(r.AggregatesPerDay),
		formatBytes(r.RawBufferBytes),
		formatBytes(r.AggregateBufferBytes),
		formatBytes(r.QueryCacheBytes),
		formatBytes(r.TotalRAMBytes),
		formatBytes(r.RawStorageBytes),
		formatBytes(r.M5StorageBytes),
		formatBytes(r.TotalStorageBytes),
		r.RecommendedCPUCores,
	)
}

// parseMemoryLimit parses a memory limit string like "512MB" into bytes.
func parseMemoryLimit(s string) int64 {
	if s == "" {
		return 512 * 1024 * 1024 // Default 512MB
	}

	var value int64
	var unit string
	_, err := fmt.Sscanf(s, "%d%s", &value, &unit)
	if err != nil {
		// Try without space
		for i, c := range s {
			if c < '0' || c > '9' {
				fmt.Sscanf(s[:i], "%d", &value)
				unit = s[i:]
				break
			}
		}
	}

	switch unit {
	case "B", "b", "":
		return value
	case "KB", "kb", "K", "k":
		return value * 1024
	case "MB", "mb", "M", "m":
		return value * 1024 * 1024
	case "GB", "gb", "G", "g":
		return value * 1024 * 1024 * 1024
	case "TB", "tb", "T", "t":
		return value * 1024 * 1024 * 1024 * 1024
	default:
		return value
	}
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
		TB = 1024 * GB
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatNumber formats a number with thousand separators.
func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	if n < 1000000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	return fmt.Sprintf("%.1fB", float64(n)/1000000000)
}
