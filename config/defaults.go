// Package config provides configuration defaults and utilities
// for the arraymon application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or environment variables.
package config

import "time"

// =============================================================================
// Polling Defaults
// =============================================================================

const (
	// DefaultPerformanceInterval is the cadence for live performance counters
	// (volume/system/interface statistics). Selectable between 60s and 600s.
	// Override via config: poll.performance_interval
	DefaultPerformanceInterval = 60 * time.Second

	// DefaultControllerInterval is the cadence for controller statistics.
	// Override via config: poll.controller_interval
	DefaultControllerInterval = time.Hour

	// DefaultHardwareInterval is the cadence for drive/hardware inventory.
	// Hardware changes rarely; one week keeps inventory churn negligible.
	// Override via config: poll.hardware_interval
	DefaultHardwareInterval = 168 * time.Hour

	// DefaultMELInterval is the cadence for major-event-log ingestion.
	// Override via config: poll.mel_interval
	DefaultMELInterval = 60 * time.Second

	// DefaultFailureInterval is the cadence for failure-state reconciliation.
	// Override via config: poll.failure_interval
	DefaultFailureInterval = 60 * time.Second

	// DefaultWorkerPool is the number of concurrent collection units per tick.
	// Override via config: poll.worker_pool
	DefaultWorkerPool = 8

	// DefaultUnitTimeout is the hard deadline for one collection unit. A unit
	// that exceeds it is abandoned; its partial results are discarded.
	// Override via config: poll.unit_timeout
	DefaultUnitTimeout = 30 * time.Second

	// MinPerformanceInterval / MaxPerformanceInterval bound the selectable
	// performance cadence.
	MinPerformanceInterval = 60 * time.Second
	MaxPerformanceInterval = 600 * time.Second
)

// =============================================================================
// API Client Defaults
// =============================================================================

const (
	// DefaultConnectTimeout is the TCP connect timeout for the management API.
	// Override via config: systems[].connect_timeout
	DefaultConnectTimeout = 5 * time.Second

	// ReadTimeoutFactor scales the shortest poll interval into the client read
	// timeout, so one slow request cannot starve the next several cycles.
	ReadTimeoutFactor = 2
)

// =============================================================================
// Retention Defaults
// =============================================================================

const (
	// DefaultRawRetention is how long full-resolution points are kept.
	// Override via config: retention.raw
	DefaultRawRetention = 168 * time.Hour

	// DefaultDownsampledRetention is how long 5m aggregates are kept.
	// Override via config: retention.downsampled
	DefaultDownsampledRetention = 8760 * time.Hour

	// DefaultDownsampleBucket is the aggregation window for the long tier.
	// Override via config: retention.downsample_bucket
	DefaultDownsampleBucket = 5 * time.Minute
)

// =============================================================================
// Local Store Defaults
// =============================================================================

const (
	// DefaultStoreDir is where localstore segments and WAL live.
	// Override via config: sinks.localstore.dir
	DefaultStoreDir = "/var/lib/arraymon"

	// DefaultMemoryBudgetMB caps the in-memory point buffer.
	// Override via config: sinks.localstore.memory_budget_mb
	DefaultMemoryBudgetMB = 64

	// DefaultFlushInterval is the max hold time before buffered points are
	// written to a segment.
	// Override via config: sinks.localstore.flush_interval
	DefaultFlushInterval = 10 * time.Second

	// DefaultFlushBatchSize is the point count that triggers an early flush.
	// Override via config: sinks.localstore.flush_batch_size
	DefaultFlushBatchSize = 5000

	// DefaultCompactionInterval is how often the downsampler looks for
	// closed raw windows to roll up.
	// Override via config: sinks.localstore.compaction_interval
	DefaultCompactionInterval = time.Hour

	// DefaultRetentionSweepInterval is how often expired segments are removed.
	// Override via config: sinks.localstore.retention_sweep_interval
	DefaultRetentionSweepInterval = time.Hour
)

// =============================================================================
// Probe Defaults
// =============================================================================

const (
	// DefaultProbePort is the SNMP port on array controllers.
	// Override via config: probe.port
	DefaultProbePort = 161

	// DefaultProbeCommunity is the SNMP v2c community string.
	// Override via config: probe.community
	DefaultProbeCommunity = "public"

	// DefaultProbeTimeout is the per-controller SNMP request timeout.
	// Override via config: probe.timeout
	DefaultProbeTimeout = 5 * time.Second

	// DefaultProbeRetries is the retry count after an SNMP timeout.
	// Override via config: probe.retries
	DefaultProbeRetries = 1
)

// =============================================================================
// Admin Server Defaults
// =============================================================================

const (
	// DefaultAdminListen is the admin/metrics HTTP listen address.
	// Override via config: admin.listen
	DefaultAdminListen = ":9090"

	// DefaultAdminShutdownTimeout bounds graceful HTTP shutdown.
	DefaultAdminShutdownTimeout = 5 * time.Second
)

// =============================================================================
// Shutdown Defaults
// =============================================================================

const (
	// DefaultDrainTimeout is how long to wait for in-flight collection units
	// during shutdown. Follows the Kubernetes convention
	// (terminationGracePeriodSeconds = 30s); remaining units are abandoned.
	// Override via config: poll.drain_timeout
	DefaultDrainTimeout = 30 * time.Second
)

// =============================================================================
// Startup Defaults
// =============================================================================

const (
	// DefaultBackendRetries is how many times mandatory backends are probed at
	// startup before the process exits with a configuration error.
	// Override via config: sinks.startup_retries
	DefaultBackendRetries = 3

	// DefaultBackendRetryDelay is the pause between startup backend probes.
	DefaultBackendRetryDelay = 5 * time.Second
)
