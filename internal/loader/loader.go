// Package loader handles configuration file loading and validation.
//
// This package is responsible for:
//   - Loading YAML configuration files
//   - Expanding environment variables
//   - Processing include directives
//   - Validating the merged result
//   - Converting to the local store's internal configuration

package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xtxerr/arraymon/config"
	"github.com/xtxerr/arraymon/internal/errors"
	storageconfig "github.com/xtxerr/arraymon/internal/storage/config"
	"github.com/xtxerr/arraymon/internal/validation"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Process includes (load additional system files)
	baseDir := filepath.Dir(path)
	if err := processIncludes(cfg, baseDir); err != nil {
		return nil, err
	}

	return cfg, nil
}

// processIncludes loads and merges included configuration files.
func processIncludes(cfg *Config, baseDir string) error {
	for _, pattern := range cfg.Include {
		// Resolve relative paths
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}

		// Expand glob pattern
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}

		for _, match := range matches {
			if err := loadInclude(cfg, match); err != nil {
				return fmt.Errorf("load include %q: %w", match, err)
			}
		}
	}

	return nil
}

// loadInclude loads a single include file and merges its systems into
// the config. A system whose id matches an existing entry replaces it.
func loadInclude(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	expanded := os.ExpandEnv(string(data))

	// Parse into a partial config
	var partial Config
	if err := yaml.Unmarshal([]byte(expanded), &partial); err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	for _, sys := range partial.Systems {
		replaced := false
		for i := range cfg.Systems {
			if cfg.Systems[i].ID == sys.ID {
				cfg.Systems[i] = sys
				replaced = true
				break
			}
		}
		if !replaced {
			cfg.Systems = append(cfg.Systems, sys)
		}
	}

	return nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	validateLog(cfg, errs)
	validatePoll(cfg, errs)
	validateSystems(cfg, errs)
	validateSinks(cfg, errs)
	validateRetention(cfg, errs)
	validateProbe(cfg, errs)

	if cfg.Admin.Listen == "" {
		errs.AddField("admin.listen", "cannot be empty")
	} else if err := validation.ValidateListenAddr(cfg.Admin.Listen); err != nil {
		errs.AddField("admin.listen", err.Error())
	}

	return errs.Err()
}

func validateLog(cfg *Config, errs *errors.ValidationErrors) {
	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs.AddField("log.level", fmt.Sprintf("unknown level %q", cfg.Log.Level))
	}
	switch cfg.Log.Format {
	case "", "auto", "text", "json":
	default:
		errs.AddField("log.format", fmt.Sprintf("unknown format %q", cfg.Log.Format))
	}
}

func validatePoll(cfg *Config, errs *errors.ValidationErrors) {
	perf := cfg.Poll.PerformanceInterval.Duration()
	if perf < config.MinPerformanceInterval || perf > config.MaxPerformanceInterval {
		errs.AddField("poll.performance_interval",
			fmt.Sprintf("must be between %s and %s", config.MinPerformanceInterval, config.MaxPerformanceInterval))
	}

	intervals := map[string]Duration{
		"poll.controller_interval": cfg.Poll.ControllerInterval,
		"poll.hardware_interval":   cfg.Poll.HardwareInterval,
		"poll.mel_interval":        cfg.Poll.MELInterval,
		"poll.failure_interval":    cfg.Poll.FailureInterval,
	}
	for field, d := range intervals {
		if d.Duration() <= 0 {
			errs.AddField(field, "must be positive")
		}
	}

	if cfg.Poll.WorkerPool < 1 {
		errs.AddField("poll.worker_pool", "must be at least 1")
	}
	if cfg.Poll.UnitTimeout.Duration() <= 0 {
		errs.AddField("poll.unit_timeout", "must be positive")
	}

	switch cfg.Poll.StatisticsMode {
	case "", "analysed", "cumulative":
	default:
		errs.AddField("poll.statistics_mode", "must be analysed or cumulative")
	}
}

func validateSystems(cfg *Config, errs *errors.ValidationErrors) {
	if len(cfg.Systems) == 0 {
		errs.AddField("systems", "at least one system is required")
		return
	}

	seen := make(map[string]bool, len(cfg.Systems))
	for i, sys := range cfg.Systems {
		prefix := fmt.Sprintf("systems[%d]", i)

		if err := validation.ValidateSystemID(sys.ID); err != nil {
			errs.AddField(prefix+".id", err.Error())
		} else if seen[sys.ID] {
			errs.AddField(prefix+".id", fmt.Sprintf("duplicate system id %q", sys.ID))
		}
		seen[sys.ID] = true

		if err := validation.ValidateSystemName(sys.Name); err != nil {
			errs.AddField(prefix+".name", err.Error())
		}
		if err := validation.ValidateEndpoint(sys.API); err != nil {
			errs.AddField(prefix+".api", err.Error())
		}
		if sys.Username == "" {
			errs.AddField(prefix+".username", "cannot be empty")
		}
		for j, addr := range sys.Controllers {
			if err := validation.ValidateHost(addr); err != nil {
				errs.AddField(fmt.Sprintf("%s.controllers[%d]", prefix, j), err.Error())
			}
		}
	}
}

func validateSinks(cfg *Config, errs *errors.ValidationErrors) {
	if !cfg.Sinks.Timescale.Enabled && !cfg.Sinks.Localstore.Enabled && !cfg.Sinks.Beats.Enabled {
		errs.AddField("sinks", "at least one sink must be enabled")
	}

	if cfg.Sinks.Timescale.Enabled {
		if cfg.Sinks.Timescale.DSN == "" {
			errs.AddField("sinks.timescale.dsn", "cannot be empty when enabled")
		}
		if cfg.Sinks.Timescale.MetricsTable == "" {
			errs.AddField("sinks.timescale.metrics_table", "cannot be empty")
		}
	}

	if cfg.Sinks.Localstore.Enabled {
		ls := cfg.Sinks.Localstore
		if ls.Dir == "" {
			errs.AddField("sinks.localstore.dir", "cannot be empty when enabled")
		}
		if ls.MemoryBudgetMB < 1 {
			errs.AddField("sinks.localstore.memory_budget_mb", "must be at least 1")
		}
		if ls.FlushInterval.Duration() <= 0 {
			errs.AddField("sinks.localstore.flush_interval", "must be positive")
		}
		if ls.FlushBatchSize < 0 {
			errs.AddField("sinks.localstore.flush_batch_size", "cannot be negative")
		}
		if ls.CompactionInterval.Duration() <= 0 {
			errs.AddField("sinks.localstore.compaction_interval", "must be positive")
		}
		if ls.RetentionSweepInterval.Duration() <= 0 {
			errs.AddField("sinks.localstore.retention_sweep_interval", "must be positive")
		}
	}

	if cfg.Sinks.Beats.Enabled {
		if cfg.Sinks.Beats.Endpoint == "" {
			errs.AddField("sinks.beats.endpoint", "cannot be empty when enabled")
		}
		if cfg.Sinks.Beats.Timeout.Duration() <= 0 {
			errs.AddField("sinks.beats.timeout", "must be positive")
		}
	}

	if cfg.Sinks.StartupRetries < 0 {
		errs.AddField("sinks.startup_retries", "cannot be negative")
	}
}

func validateRetention(cfg *Config, errs *errors.ValidationErrors) {
	if cfg.Retention.Raw.Duration() <= 0 {
		errs.AddField("retention.raw", "must be positive")
	}
	if cfg.Retention.Downsampled.Duration() <= 0 {
		errs.AddField("retention.downsampled", "must be positive")
	}
	if cfg.Retention.Downsampled.Duration() < cfg.Retention.Raw.Duration() {
		errs.AddField("retention.downsampled", "must not be shorter than retention.raw")
	}
	if cfg.Retention.DownsampleBucket.Duration() != config.DefaultDownsampleBucket {
		errs.AddField("retention.downsample_bucket",
			fmt.Sprintf("only %s is supported", config.DefaultDownsampleBucket))
	}
}

func validateProbe(cfg *Config, errs *errors.ValidationErrors) {
	if !cfg.Probe.Enabled {
		return
	}

	if cfg.Probe.Community == "" {
		errs.AddField("probe.community", "cannot be empty when enabled")
	}
	if cfg.Probe.Port < 1 || cfg.Probe.Port > 65535 {
		errs.AddField("probe.port", "must be between 1 and 65535")
	}
	if cfg.Probe.Timeout.Duration() <= 0 {
		errs.AddField("probe.timeout", "must be positive")
	}
	if cfg.Probe.Retries < 0 {
		errs.AddField("probe.retries", "cannot be negative")
	}
}

// =============================================================================
// Conversion: Config → Local Store Config
// =============================================================================

// ToStoreConfig converts the localstore sink configuration to the
// internal storage config. Returns nil when the sink is disabled.
func ToStoreConfig(cfg *Config) *storageconfig.Config {
	ls := cfg.Sinks.Localstore
	if !ls.Enabled {
		return nil
	}

	sc := storageconfig.DefaultConfig()

	sc.DataDir = ls.Dir

	sc.Scale.SystemCount = len(cfg.Systems)
	if sc.Scale.SystemCount == 0 {
		sc.Scale.SystemCount = 1
	}
	if sec := int(cfg.Poll.PerformanceInterval.Duration() / time.Second); sec > 0 {
		sc.Scale.IntervalSec = sec
	}

	sc.Features.RawBuffer.MemoryBudgetMB = ls.MemoryBudgetMB

	sc.Retention.Raw = cfg.Retention.Raw.Duration()
	sc.Retention.M5 = cfg.Retention.Downsampled.Duration()
	sc.Retention.SweepInterval = ls.RetentionSweepInterval.Duration()

	sc.Ingestion.Flush.Interval = ls.FlushInterval.Duration()
	sc.Ingestion.Flush.MaxRows = ls.FlushBatchSize

	sc.Compaction.Interval = ls.CompactionInterval.Duration()

	return sc
}

// =============================================================================
// Config Watcher
// =============================================================================

// Watcher watches a config file for changes and reloads it. The reload
// callback receives the freshly validated config, or the load error.
// Callers own what to apply; cadence changes take effect on the next
// process restart and are only logged by the manager.
type Watcher struct {
	path     string
	onChange func(*Config, error)
	done     chan struct{}
	modTime  time.Time
}

// NewWatcher creates a new config file watcher.
func NewWatcher(path string, onChange func(*Config, error)) *Watcher {
	return &Watcher{
		path:     path,
		onChange: onChange,
		done:     make(chan struct{}),
	}
}

// Start begins watching the config file.
func (w *Watcher) Start() {
	// Get initial mod time
	if info, err := os.Stat(w.path); err == nil {
		w.modTime = info.ModTime()
	}

	go w.watch()
}

// Stop stops watching.
func (w *Watcher) Stop() {
	close(w.done)
}

func (w *Watcher) watch() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				continue
			}

			if info.ModTime().After(w.modTime) {
				w.modTime = info.ModTime()
				w.reload()
			}
		}
	}
}

func (w *Watcher) reload() {
	if w.onChange == nil {
		return
	}

	cfg, err := Load(w.path)
	if err == nil {
		err = Validate(cfg)
	}
	if err != nil {
		w.onChange(nil, err)
		return
	}

	w.onChange(cfg, nil)
}
