package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete local store configuration.
type Config struct {
	// DataDir is the root directory for all storage files.
	DataDir string `yaml:"data_dir"`

	// Scale defines the expected load parameters.
	Scale ScaleConfig `yaml:"scale"`

	// Features configures optional features.
	Features FeaturesConfig `yaml:"features"`

	// Retention defines how long to keep data in each tier.
	Retention RetentionConfig `yaml:"retention"`

	// Ingestion configures the ingestion pipeline.
	Ingestion IngestionConfig `yaml:"ingestion"`

	// Compaction configures the downsampling engine.
	Compaction CompactionConfig `yaml:"compaction"`

	// Backpressure configures load shedding.
	Backpressure BackpressureConfig `yaml:"backpressure"`

	// Query configures the query service.
	Query QueryConfig `yaml:"query"`
}

// ScaleConfig defines the expected load parameters.
type ScaleConfig struct {
	// SystemCount is the number of monitored storage systems.
	SystemCount int `yaml:"system_count"`

	// SeriesPerSystem is the expected field-series count per system
	// (drives, volumes, interfaces, controllers, each times their fields).
	SeriesPerSystem int `yaml:"series_per_system"`

	// IntervalSec is the performance collection interval in seconds.
	IntervalSec int `yaml:"interval_sec"`
}

// FeaturesConfig configures optional features.
type FeaturesConfig struct {
	// RawBuffer configures the in-memory raw row buffer.
	RawBuffer RawBufferConfig `yaml:"raw_buffer"`

	// Percentile configures DDSketch percentile calculation.
	Percentile PercentileConfig `yaml:"percentile"`

	// Compression configures Parquet compression.
	Compression CompressionConfig `yaml:"compression"`
}

// RawBufferConfig configures the in-memory raw row buffer.
type RawBufferConfig struct {
	// Enabled enables the raw buffer.
	Enabled bool `yaml:"enabled"`

	// Duration is the maximum age of rows in the buffer.
	// Format: "5m", "10m", "30m"
	Duration time.Duration `yaml:"duration"`

	// MemoryBudgetMB caps the buffer size in megabytes. When both Duration
	// and MemoryBudgetMB are set, the smaller resulting capacity wins.
	MemoryBudgetMB int `yaml:"memory_budget_mb"`
}

// PercentileConfig configures DDSketch percentile calculation.
type PercentileConfig struct {
	// Enabled enables percentile calculation.
	Enabled bool `yaml:"enabled"`

	// Accuracy is the relative accuracy (0.01 = 1% error).
	Accuracy float64 `yaml:"accuracy"`
}

// CompressionConfig configures Parquet compression.
type CompressionConfig struct {
	// Algorithm is the compression algorithm: snappy, zstd, lz4, none.
	Algorithm string `yaml:"algorithm"`

	// Level is the compression level (for zstd: 1-22).
	Level int `yaml:"level"`
}

// RetentionConfig defines how long to keep data in each tier.
type RetentionConfig struct {
	// Raw is the retention for full-resolution rows.
	Raw time.Duration `yaml:"raw"`

	// M5 is the retention for 5-minute aggregates.
	M5 time.Duration `yaml:"m5"`

	// SweepInterval is how often expired segments are removed.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// IngestionConfig configures the ingestion pipeline.
type IngestionConfig struct {
	// WAL configures the Write-Ahead Log.
	WAL WALConfig `yaml:"wal"`

	// Flush configures flush behavior.
	Flush FlushConfig `yaml:"flush"`
}

// WALConfig configures the Write-Ahead Log.
type WALConfig struct {
	// Dir is the WAL directory. Defaults to {DataDir}/wal.
	Dir string `yaml:"dir"`

	// SyncMode is the sync mode: async, sync, fsync.
	SyncMode string `yaml:"sync_mode"`

	// SyncInterval is the sync interval for async mode.
	SyncInterval time.Duration `yaml:"sync_interval"`

	// MaxSegmentSize is the maximum segment size before rotation.
	MaxSegmentSize int64 `yaml:"max_segment_size"`
}

// FlushConfig configures flush behavior.
type FlushConfig struct {
	// Interval is the flush interval.
	Interval time.Duration `yaml:"interval"`

	// MaxRows triggers an early flush when the buffer holds this many rows.
	MaxRows int `yaml:"max_rows"`
}

// CompactionConfig configures the downsampling engine.
type CompactionConfig struct {
	// Workers is the number of parallel downsample workers.
	Workers int `yaml:"workers"`

	// Interval is how often closed raw windows are checked for rollup.
	Interval time.Duration `yaml:"interval"`
}

// BackpressureConfig configures load shedding.
type BackpressureConfig struct {
	// Enabled enables backpressure handling.
	Enabled bool `yaml:"enabled"`

	// Thresholds defines buffer usage thresholds for level changes.
	Thresholds BackpressureThresholds `yaml:"thresholds"`

	// Recovery configures recovery behavior.
	Recovery BackpressureRecovery `yaml:"recovery"`
}

// BackpressureThresholds defines buffer usage thresholds.
type BackpressureThresholds struct {
	// Warning threshold (0.0-1.0).
	Warning float64 `yaml:"warning"`

	// Critical threshold (0.0-1.0).
	Critical float64 `yaml:"critical"`

	// Emergency threshold (0.0-1.0).
	Emergency float64 `yaml:"emergency"`
}

// BackpressureRecovery configures recovery behavior.
type BackpressureRecovery struct {
	// Hysteresis to prevent flapping (0.0-1.0).
	Hysteresis float64 `yaml:"hysteresis"`

	// Cooldown is the minimum time between level changes.
	Cooldown time.Duration `yaml:"cooldown"`
}

// QueryConfig configures the query service.
type QueryConfig struct {
	// MemoryLimit is the DuckDB memory limit.
	MemoryLimit string `yaml:"memory_limit"`

	// Timeout is the query timeout.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRows is the maximum number of rows returned.
	MaxRows int `yaml:"max_rows"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "/var/lib/arraymon",
		Scale: ScaleConfig{
			SystemCount:     8,
			SeriesPerSystem: 4000,
			IntervalSec:     60,
		},
		Features: FeaturesConfig{
			RawBuffer: RawBufferConfig{
				Enabled:        true,
				Duration:       10 * time.Minute,
				MemoryBudgetMB: 64,
			},
			Percentile: PercentileConfig{
				Enabled:  true,
				Accuracy: 0.01,
			},
			Compression: CompressionConfig{
				Algorithm: "zstd",
				Level:     3,
			},
		},
		Retention: RetentionConfig{
			Raw:           168 * time.Hour,
			M5:            8760 * time.Hour,
			SweepInterval: time.Hour,
		},
		Ingestion: IngestionConfig{
			WAL: WALConfig{
				SyncMode:       "async",
				SyncInterval:   time.Second,
				MaxSegmentSize: 64 * 1024 * 1024, // 64MB
			},
			Flush: FlushConfig{
				Interval: 10 * time.Second,
				MaxRows:  5000,
			},
		},
		Compaction: CompactionConfig{
			Workers:  2,
			Interval: time.Hour,
		},
		Backpressure: BackpressureConfig{
			Enabled: true,
			Thresholds: BackpressureThresholds{
				Warning:   0.50,
				Critical:  0.80,
				Emergency: 0.95,
			},
			Recovery: BackpressureRecovery{
				Hysteresis: 0.10,
				Cooldown:   30 * time.Second,
			},
		},
		Query: QueryConfig{
			MemoryLimit: "512MB",
			Timeout:     30 * time.Second,
			MaxRows:     1000000,
		},
	}
}
