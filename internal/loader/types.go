// Package loader - Configuration Types
//
// Defines the YAML configuration structure for arraymond.
//
// ARCHITECTURE:
//
//   ┌─────────────────────────────────────────────────────────────────┐
//   │                         config.yaml                             │
//   ├─────────────────────────────────────────────────────────────────┤
//   │                                                                 │
//   │  log:        Level and format of the process log                │
//   │  poll:       Per-class cadences, worker pool, unit timeout      │
//   │  systems:    Monitored arrays (endpoint, credentials, probes)   │
//   │                                                                 │
//   │  ┌──────────────────┐  ┌──────────────────┐  ┌──────────────┐  │
//   │  │    timescale:    │  │    localstore:   │  │    beats:    │  │
//   │  │  (PostgreSQL)    │  │  (Parquet + WAL) │  │ (lumberjack) │  │
//   │  ├──────────────────┤  ├──────────────────┤  ├──────────────┤  │
//   │  │ • metric rows    │  │ • raw tier       │  │ • MEL events │  │
//   │  │ • failure state  │  │ • m5 aggregates  │  │ • failures   │  │
//   │  │ • planner DDL    │  │ • local queries  │  │              │  │
//   │  └──────────────────┘  └──────────────────┘  └──────────────┘  │
//   │                                                                 │
//   │  retention:  Tier windows and downsample bucket                 │
//   │  probe:      SNMP reachability checks                           │
//   │  admin:      HTTP status/metrics listener                       │
//   │  includes:   Additional system definition files                 │
//   │                                                                 │
//   └─────────────────────────────────────────────────────────────────┘

package loader

import (
	"time"

	"github.com/xtxerr/arraymon/config"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for arraymond.
type Config struct {
	// Log configures process logging.
	Log LogConfig `yaml:"log"`

	// Poll configures per-class cadences and the scheduler.
	Poll PollConfig `yaml:"poll"`

	// Systems lists the monitored storage arrays.
	Systems []SystemConfig `yaml:"systems"`

	// Sinks configures the metric backends.
	Sinks SinksConfig `yaml:"sinks"`

	// Retention defines tier windows and the downsample bucket.
	Retention RetentionConfig `yaml:"retention"`

	// Probe configures the SNMP reachability sidecar.
	Probe ProbeConfig `yaml:"probe"`

	// Admin configures the HTTP admin listener.
	Admin AdminConfig `yaml:"admin"`

	// Include lists additional config files holding `systems:` blocks.
	// Supports glob patterns, relative to this file's directory.
	Include []string `yaml:"includes"`
}

// =============================================================================
// Logging
// =============================================================================

// LogConfig configures the process log.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format is one of auto, text, json. auto picks text on a terminal
	// and JSON otherwise.
	// Default: auto
	Format string `yaml:"format"`
}

// =============================================================================
// Polling
// =============================================================================

// PollConfig configures per-class cadences and the scheduler.
type PollConfig struct {
	// PerformanceInterval is the cadence for volume/system/interface
	// statistics. Selectable between 60s and 600s.
	// Default: 60s
	PerformanceInterval Duration `yaml:"performance_interval"`

	// ControllerInterval is the cadence for controller statistics.
	// Default: 1h
	ControllerInterval Duration `yaml:"controller_interval"`

	// HardwareInterval is the cadence for drive/hardware inventory.
	// Default: 168h (one week)
	HardwareInterval Duration `yaml:"hardware_interval"`

	// MELInterval is the cadence for major-event-log ingestion.
	// Default: 60s
	MELInterval Duration `yaml:"mel_interval"`

	// FailureInterval is the cadence for failure reconciliation.
	// Default: 60s
	FailureInterval Duration `yaml:"failure_interval"`

	// WorkerPool bounds concurrent collection units per tick.
	// Default: 8
	WorkerPool int `yaml:"worker_pool"`

	// UnitTimeout is the hard deadline for one collection unit.
	// Default: 30s
	UnitTimeout Duration `yaml:"unit_timeout"`

	// DrainTimeout is how long shutdown waits for in-flight units.
	// Default: 30s
	DrainTimeout Duration `yaml:"drain_timeout"`

	// StatisticsMode selects analysed (API-computed rates) or cumulative
	// (raw counters through the delta engine).
	// Default: analysed
	StatisticsMode string `yaml:"statistics_mode"`

	// DisableHealthPoints turns off the synthetic array_health points
	// emitted when collection units fail and recover.
	// Default: false
	DisableHealthPoints bool `yaml:"disable_health_points"`
}

// =============================================================================
// Systems
// =============================================================================

// SystemConfig describes one monitored array.
type SystemConfig struct {
	// ID is the storage-system identifier used in API paths and tags.
	ID string `yaml:"id"`

	// Name is the human label emitted as the system tag.
	Name string `yaml:"name"`

	// API is the management endpoint, e.g. https://10.0.0.10:8443.
	API string `yaml:"api"`

	// Username and Password authenticate API requests.
	// Use environment variables: "${ARRAY_PASSWORD}".
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// VerifyTLS enables certificate verification. Embedded controllers
	// usually present self-signed certificates, so this defaults off.
	VerifyTLS bool `yaml:"verify_tls"`

	// Controllers lists controller addresses for the SNMP probe.
	Controllers []string `yaml:"controllers"`

	// ConnectTimeout overrides the dial timeout for this system.
	// Default: 5s
	ConnectTimeout Duration `yaml:"connect_timeout"`
}

// =============================================================================
// Sinks
// =============================================================================

// SinksConfig configures the metric backends.
type SinksConfig struct {
	Timescale  TimescaleSinkConfig  `yaml:"timescale"`
	Localstore LocalstoreSinkConfig `yaml:"localstore"`
	Beats      BeatsSinkConfig      `yaml:"beats"`

	// StartupRetries is how many times mandatory backends are probed
	// before startup fails.
	// Default: 3
	StartupRetries int `yaml:"startup_retries"`

	// StartupRetryDelay is the pause between startup probes.
	// Default: 5s
	StartupRetryDelay Duration `yaml:"startup_retry_delay"`
}

// TimescaleSinkConfig configures the relational backend.
type TimescaleSinkConfig struct {
	// Enabled turns the backend on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// DSN is the postgres connection string.
	DSN string `yaml:"dsn"`

	// MetricsTable is the hypertable metric rows land in. The durable
	// failure state is read back from the same table.
	// Default: metrics
	MetricsTable string `yaml:"metrics_table"`
}

// LocalstoreSinkConfig configures the embedded tiered store.
type LocalstoreSinkConfig struct {
	// Enabled turns the backend on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Dir is the root directory for WAL and parquet segments.
	// Default: /var/lib/arraymon
	Dir string `yaml:"dir"`

	// MemoryBudgetMB caps the in-memory point buffer.
	// Default: 64
	MemoryBudgetMB int `yaml:"memory_budget_mb"`

	// FlushInterval is the max hold time before buffered points are
	// written to a segment.
	// Default: 10s
	FlushInterval Duration `yaml:"flush_interval"`

	// FlushBatchSize triggers an early flush when reached.
	// Default: 5000
	FlushBatchSize int `yaml:"flush_batch_size"`

	// CompactionInterval is how often closed raw windows are rolled up.
	// Default: 1h
	CompactionInterval Duration `yaml:"compaction_interval"`

	// RetentionSweepInterval is how often expired segments are removed.
	// Default: 1h
	RetentionSweepInterval Duration `yaml:"retention_sweep_interval"`
}

// BeatsSinkConfig configures the lumberjack event forwarder.
type BeatsSinkConfig struct {
	// Enabled turns the forwarder on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the Beats/Logstash host:port.
	Endpoint string `yaml:"endpoint"`

	// Timeout bounds one batch send.
	// Default: 30s
	Timeout Duration `yaml:"timeout"`

	// Measurements restricts forwarding to the named measurements.
	// Empty forwards everything; the default forwards events only.
	Measurements []string `yaml:"measurements"`
}

// =============================================================================
// Retention
// =============================================================================

// RetentionConfig defines tier windows.
type RetentionConfig struct {
	// Raw is how long full-resolution points are kept.
	// Default: 168h
	Raw Duration `yaml:"raw"`

	// Downsampled is how long aggregate rows are kept.
	// Default: 8760h (one year)
	Downsampled Duration `yaml:"downsampled"`

	// DownsampleBucket is the aggregation window for the long tier.
	// Only 5m is supported.
	DownsampleBucket Duration `yaml:"downsample_bucket"`
}

// =============================================================================
// Probe
// =============================================================================

// ProbeConfig configures SNMP reachability checks against controllers.
type ProbeConfig struct {
	// Enabled turns the probe on. It runs on the hardware cadence
	// against every address in systems[].controllers.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Community is the SNMP v2c community string.
	// Default: public
	Community string `yaml:"community"`

	// Port is the SNMP port on the controllers.
	// Default: 161
	Port int `yaml:"port"`

	// Timeout bounds one SNMP request.
	// Default: 5s
	Timeout Duration `yaml:"timeout"`

	// Retries is the retry count after an SNMP timeout.
	// Default: 1
	Retries int `yaml:"retries"`
}

// =============================================================================
// Admin
// =============================================================================

// AdminConfig configures the HTTP admin listener.
type AdminConfig struct {
	// Listen is the bind address for /metrics, /healthz, /status, /query.
	// Default: :9090
	Listen string `yaml:"listen"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a Config with production defaults. Systems must
// still be supplied.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},

		Poll: PollConfig{
			PerformanceInterval: Duration(config.DefaultPerformanceInterval),
			ControllerInterval:  Duration(config.DefaultControllerInterval),
			HardwareInterval:    Duration(config.DefaultHardwareInterval),
			MELInterval:         Duration(config.DefaultMELInterval),
			FailureInterval:     Duration(config.DefaultFailureInterval),
			WorkerPool:          config.DefaultWorkerPool,
			UnitTimeout:         Duration(config.DefaultUnitTimeout),
			DrainTimeout:        Duration(config.DefaultDrainTimeout),
			StatisticsMode:      "analysed",
		},

		Sinks: SinksConfig{
			Timescale: TimescaleSinkConfig{
				MetricsTable: "metrics",
			},
			Localstore: LocalstoreSinkConfig{
				Enabled:                true,
				Dir:                    config.DefaultStoreDir,
				MemoryBudgetMB:         config.DefaultMemoryBudgetMB,
				FlushInterval:          Duration(config.DefaultFlushInterval),
				FlushBatchSize:         config.DefaultFlushBatchSize,
				CompactionInterval:     Duration(config.DefaultCompactionInterval),
				RetentionSweepInterval: Duration(config.DefaultRetentionSweepInterval),
			},
			Beats: BeatsSinkConfig{
				Timeout: Duration(30 * time.Second),
				Measurements: []string{
					"major_event_log",
					"failures",
				},
			},
			StartupRetries:    config.DefaultBackendRetries,
			StartupRetryDelay: Duration(config.DefaultBackendRetryDelay),
		},

		Retention: RetentionConfig{
			Raw:              Duration(config.DefaultRawRetention),
			Downsampled:      Duration(config.DefaultDownsampledRetention),
			DownsampleBucket: Duration(config.DefaultDownsampleBucket),
		},

		Probe: ProbeConfig{
			Community: config.DefaultProbeCommunity,
			Port:      config.DefaultProbePort,
			Timeout:   Duration(config.DefaultProbeTimeout),
			Retries:   config.DefaultProbeRetries,
		},

		Admin: AdminConfig{
			Listen: config.DefaultAdminListen,
		},
	}
}

// =============================================================================
// Custom Types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML, either
// as a duration string ("90s") or an integer second count.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		// Try as int (seconds)
		var i int
		if err := unmarshal(&i); err != nil {
			return err
		}
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
