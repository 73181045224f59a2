// This file defines the Manager: it turns one validated Config into API
// clients, collectors, sinks, appliers, and a running scheduler, and owns
// startup and shutdown ordering.

package manager

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/xtxerr/arraymon/config"
	"github.com/xtxerr/arraymon/internal/catalog"
	"github.com/xtxerr/arraymon/internal/client"
	"github.com/xtxerr/arraymon/internal/collector"
	"github.com/xtxerr/arraymon/internal/constants"
	"github.com/xtxerr/arraymon/internal/delta"
	"github.com/xtxerr/arraymon/internal/errors"
	"github.com/xtxerr/arraymon/internal/faults"
	"github.com/xtxerr/arraymon/internal/inventory"
	"github.com/xtxerr/arraymon/internal/loader"
	"github.com/xtxerr/arraymon/internal/logging"
	"github.com/xtxerr/arraymon/internal/mapper"
	"github.com/xtxerr/arraymon/internal/mel"
	"github.com/xtxerr/arraymon/internal/planner"
	"github.com/xtxerr/arraymon/internal/probe"
	"github.com/xtxerr/arraymon/internal/scheduler"
	"github.com/xtxerr/arraymon/internal/series"
	"github.com/xtxerr/arraymon/internal/sink"
	"github.com/xtxerr/arraymon/internal/storage"
	storeconfig "github.com/xtxerr/arraymon/internal/storage/config"
	"github.com/xtxerr/arraymon/internal/telemetry"
)

// =============================================================================
// Lifecycle State Constants
// =============================================================================

const (
	// StateStopped means the manager has not started or has shut down.
	StateStopped = "stopped"

	// StateStarting means backends are being probed and pipelines built.
	StateStarting = "starting"

	// StateRunning means the scheduler is dispatching collection units.
	StateRunning = "running"

	// StateStopping means shutdown is draining in-flight units.
	StateStopping = "stopping"
)

// probeClass is the scheduler class name for SNMP reachability units. It is
// not a catalog class; probe points carry their own measurement.
const probeClass = "probe"

// healthWriteTimeout bounds one synthetic health point write.
const healthWriteTimeout = 10 * time.Second

// =============================================================================
// Manager
// =============================================================================

// Manager owns the collection pipelines for all configured systems.
//
// Construction wires everything that needs no I/O; Start probes the
// mandatory backends, applies the retention plan, and launches the
// scheduler; Stop drains and tears down in reverse order. Status is safe to
// call at any point in the lifecycle.
type Manager struct {
	cfg     *loader.Config
	metrics *telemetry.Metrics
	log     *slog.Logger

	mode  collector.Mode
	names map[string]string // system ID -> display name

	// Shared pipeline components
	clients    map[string]*client.Client
	mapper     *mapper.Mapper
	engine     *delta.Engine // nil in analysed mode
	tracker    *mel.Tracker
	registry   *inventory.Registry
	reconciler *faults.Reconciler
	prober     *probe.Prober // nil when the probe is disabled

	// Backends
	db       *sql.DB             // timescale handle, nil when disabled
	storeCfg *storeconfig.Config // nil when the localstore is disabled
	store    *storage.Service
	fanout   *sink.Fanout

	sched *scheduler.Scheduler

	states *StateBoard
	stats  *StatsBoard

	mu        sync.Mutex
	state     string
	startedAt time.Time
}

// New builds a manager from a validated configuration. It constructs
// clients and pipeline components but performs no network or disk I/O
// beyond opening lazy handles; Start does the rest.
func New(cfg *loader.Config, metrics *telemetry.Metrics) (*Manager, error) {
	mode, err := collector.ParseMode(cfg.Poll.StatisticsMode)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:      cfg,
		metrics:  metrics,
		log:      logging.Component("manager"),
		mode:     mode,
		names:    make(map[string]string, len(cfg.Systems)),
		clients:  make(map[string]*client.Client, len(cfg.Systems)),
		mapper:   mapper.New(),
		tracker:  mel.NewTracker(),
		registry: inventory.NewRegistry(),
		states:   NewStateBoard(),
		stats:    NewStatsBoard(),
		state:    StateStopped,
	}

	if mode == collector.ModeCumulative {
		m.engine = delta.NewEngine(0)
	}

	// One slow request must not starve the cycles that follow.
	readTimeout := config.ReadTimeoutFactor * cfg.Poll.PerformanceInterval.Duration()
	for _, sys := range cfg.Systems {
		c, err := client.New(client.Config{
			Endpoint:           sys.API,
			Username:           sys.Username,
			Password:           sys.Password,
			ConnectTimeout:     sys.ConnectTimeout.Duration(),
			ReadTimeout:        readTimeout,
			InsecureSkipVerify: !sys.VerifyTLS,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "client for system %s", sys.ID)
		}
		m.clients[sys.ID] = c
		m.names[sys.ID] = sys.Name
	}

	// Durable failure state lives in the relational backend. Without it
	// the reconciler starts from clean caches and the first cycle after a
	// restart re-emits active failures.
	var stateStore faults.StateStore
	if cfg.Sinks.Timescale.Enabled {
		db, err := sink.OpenTimescale(cfg.Sinks.Timescale.DSN)
		if err != nil {
			return nil, err
		}
		m.db = db
		stateStore = faults.NewSQLStateStore(db, cfg.Sinks.Timescale.MetricsTable)
	}
	m.reconciler = faults.NewReconciler(stateStore)

	if cfg.Probe.Enabled {
		m.prober = probe.New(probe.Config{
			Community: cfg.Probe.Community,
			Port:      cfg.Probe.Port,
			Timeout:   cfg.Probe.Timeout.Duration(),
			Retries:   cfg.Probe.Retries,
		})
	}

	m.storeCfg = loader.ToStoreConfig(cfg)

	return m, nil
}

// =============================================================================
// Startup
// =============================================================================

// Start brings the daemon up: mandatory backends are probed with bounded
// retries, the retention plan is applied, sinks and collectors are built,
// and the scheduler begins dispatching. A non-nil error means startup
// configuration is broken and the process should terminate; Stop is still
// safe to call for cleanup.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateStopped {
		m.mu.Unlock()
		return errors.Wrapf(errors.ErrInvalidConfig, "start from state %s", m.state)
	}
	m.state = StateStarting
	m.mu.Unlock()

	m.log.Info("starting",
		"systems", len(m.cfg.Systems),
		"mode", m.cfg.Poll.StatisticsMode,
		"timescale", m.cfg.Sinks.Timescale.Enabled,
		"localstore", m.cfg.Sinks.Localstore.Enabled,
		"beats", m.cfg.Sinks.Beats.Enabled,
		"probe", m.cfg.Probe.Enabled)

	if m.db != nil {
		if err := m.probeBackend(ctx); err != nil {
			return err
		}
	}

	if m.storeCfg != nil {
		store, err := storage.New(m.storeCfg)
		if err != nil {
			return errors.Wrapf(errors.ErrInvalidConfig, "localstore: %v", err)
		}
		m.store = store
	}

	// The plan converges retention before any sweeper starts, so segments
	// and policies are never judged against stale windows.
	if err := m.applyPlan(ctx); err != nil {
		return err
	}

	if m.store != nil {
		if err := m.store.Start(); err != nil {
			return errors.Wrapf(errors.ErrInvalidConfig, "localstore start: %v", err)
		}
	}

	m.fanout = sink.NewFanout(m.buildSinks()...)

	if err := m.loginAll(ctx); err != nil {
		return err
	}

	m.sched = scheduler.New(scheduler.Config{
		Intervals: map[catalog.Cadence]time.Duration{
			catalog.CadencePerformance: m.cfg.Poll.PerformanceInterval.Duration(),
			catalog.CadenceController:  m.cfg.Poll.ControllerInterval.Duration(),
			catalog.CadenceHardware:    m.cfg.Poll.HardwareInterval.Duration(),
			catalog.CadenceEvents:      m.cfg.Poll.MELInterval.Duration(),
			catalog.CadenceFailures:    m.cfg.Poll.FailureInterval.Duration(),
		},
		Workers:      m.cfg.Poll.WorkerPool,
		UnitTimeout:  m.cfg.Poll.UnitTimeout.Duration(),
		DrainTimeout: m.cfg.Poll.DrainTimeout.Duration(),
	}, m.metrics)
	m.registerUnits()
	m.sched.OnResult(m.recordResult)

	if err := m.sched.Start(); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = StateRunning
	m.startedAt = time.Now()
	m.mu.Unlock()

	m.log.Info("running", "units", m.states.Count())
	return nil
}

// probeBackend pings the relational backend until it answers or the bounded
// retries are exhausted.
func (m *Manager) probeBackend(ctx context.Context) error {
	probes := m.cfg.Sinks.StartupRetries
	if probes < 1 {
		probes = 1
	}
	delay := m.cfg.Sinks.StartupRetryDelay.Duration()

	var err error
	for attempt := 1; attempt <= probes; attempt++ {
		if err = m.db.PingContext(ctx); err == nil {
			m.log.Debug("timescale reachable", "attempt", attempt)
			return nil
		}
		if attempt < probes {
			m.log.Warn("timescale not ready, retrying",
				"attempt", attempt, "probes", probes, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return errors.Wrapf(errors.ErrConnectionFailed,
		"timescale unreachable after %d probes: %v", probes, err)
}

// applyPlan converges every enabled backend onto the retention plan.
func (m *Manager) applyPlan(ctx context.Context) error {
	var appliers []planner.Applier
	if m.db != nil {
		appliers = append(appliers, planner.NewTimescaleApplier(m.db))
	}
	if m.store != nil {
		appliers = append(appliers, planner.NewLocalstoreApplier(m.store.Config()))
	}
	if len(appliers) == 0 {
		return nil
	}

	plan := planner.DefaultPlan(m.cfg.Sinks.Timescale.MetricsTable)
	plan.RawRetention = m.cfg.Retention.Raw.Duration()
	plan.DownsampledRetention = m.cfg.Retention.Downsampled.Duration()
	plan.Bucket = m.cfg.Retention.DownsampleBucket.Duration()

	if err := planner.New(appliers...).ApplyAll(ctx, plan); err != nil {
		return errors.Wrapf(err, "retention plan")
	}
	return nil
}

// buildSinks assembles the enabled sinks, each wrapped with telemetry.
func (m *Manager) buildSinks() []sink.Sink {
	var sinks []sink.Sink
	if m.db != nil {
		sinks = append(sinks, sink.NewTimescaleSink(m.db, m.cfg.Sinks.Timescale.MetricsTable))
	}
	if m.store != nil {
		sinks = append(sinks, sink.NewLocalstoreSink(m.store))
	}
	if m.cfg.Sinks.Beats.Enabled {
		sinks = append(sinks, sink.NewBeatsSink(
			m.cfg.Sinks.Beats.Endpoint,
			m.cfg.Sinks.Beats.Timeout.Duration(),
			m.cfg.Sinks.Beats.Measurements))
	}
	for i, s := range sinks {
		sinks[i] = sink.Instrument(s, m.metrics.ObserveSinkWrite)
	}
	return sinks
}

// loginAll validates credentials against every system once. Bad credentials
// are configuration errors and abort startup; an unreachable array is not,
// its units will report degraded until it answers.
func (m *Manager) loginAll(ctx context.Context) error {
	for _, sys := range m.cfg.Systems {
		err := m.clients[sys.ID].Login(ctx)
		switch {
		case err == nil:
		case errors.Is(err, errors.ErrUnauthorized):
			return errors.Wrapf(err, "credentials for system %s", sys.Name)
		default:
			m.log.Warn("login failed, collection will retry",
				"system", sys.Name, "sys_id", sys.ID, "error", err)
		}
	}
	return nil
}

// registerUnits creates the collectors and registers one scheduler unit per
// (system, class). Board entries are pre-seeded so /status lists every unit
// as unknown before its first cycle.
func (m *Manager) registerUnits() {
	for _, sys := range m.cfg.Systems {
		api := m.clients[sys.ID]
		target := collector.System{ID: sys.ID, Name: sys.Name}

		for _, class := range catalog.PerformanceClasses() {
			spec := catalog.MustLookup(class)
			col := collector.NewStatsCollector(spec, m.mode, api, m.mapper, m.engine, m.registry)
			m.register(target, class.String(), spec.Cadence, col)
		}

		melSpec := catalog.MustLookup(catalog.ClassMEL)
		m.register(target, melSpec.Class.String(), melSpec.Cadence,
			collector.NewMELCollector(api, m.tracker, m.mapper))

		failSpec := catalog.MustLookup(catalog.ClassFailure)
		m.register(target, failSpec.Class.String(), failSpec.Cadence,
			collector.NewFailureCollector(api, m.reconciler))

		if m.prober != nil && len(sys.Controllers) > 0 {
			m.registerProbe(target, sys.Controllers)
		}
	}
}

// register wires one collector into the scheduler.
func (m *Manager) register(sys collector.System, class string, cadence catalog.Cadence, col collector.Collector) {
	m.states.Get(sys.ID, class)
	m.stats.Get(sys.ID, class)
	m.sched.Register(sys.ID, class, cadence, func(ctx context.Context) (int, error) {
		batch, err := col.Collect(ctx, sys)
		if err != nil {
			return 0, err
		}
		if batch == nil || batch.Len() == 0 {
			return 0, nil
		}
		if err := m.fanout.WriteBatch(ctx, batch.Points); err != nil {
			return 0, err
		}
		return batch.Len(), nil
	})
}

// registerProbe wires the SNMP reachability unit for one system.
func (m *Manager) registerProbe(sys collector.System, controllers []string) {
	m.states.Get(sys.ID, probeClass)
	m.stats.Get(sys.ID, probeClass)
	m.sched.Register(sys.ID, probeClass, catalog.CadenceHardware, func(ctx context.Context) (int, error) {
		batch, err := m.prober.Probe(ctx, sys.ID, sys.Name, controllers)
		if err != nil {
			return 0, err
		}
		if batch == nil || batch.Len() == 0 {
			return 0, nil
		}
		if err := m.fanout.WriteBatch(ctx, batch.Points); err != nil {
			return 0, err
		}
		return batch.Len(), nil
	})
}

// =============================================================================
// Cycle Results
// =============================================================================

// recordResult folds one scheduler result into the boards and emits the
// synthetic health point on failures and recoveries.
func (m *Manager) recordResult(r scheduler.Result) {
	state := m.states.Get(r.System, r.Class)
	was := state.Health()

	timeout := errors.Is(r.Err, errors.ErrTimeout) || errors.Is(r.Err, context.DeadlineExceeded)
	m.stats.Get(r.System, r.Class).RecordRun(r.Err == nil, timeout, r.Elapsed, r.Written)

	if m.store != nil {
		m.metrics.SetStoreBufferUsage(m.store.Buffer().UsageRatio())
		m.metrics.SetStoreBackpressure(int(m.store.BackpressureLevel()))
	}

	if r.Err != nil {
		state.RecordFailure(r.Err.Error())
		m.emitHealth(state, r.Err)
		return
	}

	state.RecordSuccess(r.Written)
	if was == HealthDegraded || was == HealthDown {
		m.emitHealth(state, nil)
	}
}

// emitHealth writes one array_health point describing the unit's state.
func (m *Manager) emitHealth(state *UnitState, cause error) {
	if m.cfg.Poll.DisableHealthPoints {
		return
	}

	pt := series.New(constants.MeasurementHealth, time.Now())
	pt.AddTag("sys_id", state.System)
	pt.AddTag("sys_name", m.names[state.System])
	pt.AddTag("class", state.Class)
	pt.SetField("healthy", series.Bool(cause == nil))
	pt.SetField("consecutive_failures", series.Int(int64(state.ConsecutiveFailures())))
	if cause != nil {
		pt.SetField("error", series.String(cause.Error()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthWriteTimeout)
	defer cancel()
	if err := m.fanout.WriteBatch(ctx, []series.Point{pt}); err != nil {
		m.log.Debug("health point dropped", "sys_id", state.System, "class", state.Class, "error", err)
	}
}

// =============================================================================
// Shutdown
// =============================================================================

// Stop drains the scheduler and tears the pipelines down: no new cycles,
// in-flight units get the drain window, then sinks close and flush. Safe to
// call after a failed Start and safe to call twice.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.state == StateStopped || m.state == StateStopping {
		m.mu.Unlock()
		return nil
	}
	m.state = StateStopping
	m.mu.Unlock()

	m.log.Info("stopping")

	if m.sched != nil {
		m.sched.Stop()
	}

	var errs []error
	if m.fanout != nil {
		if err := m.fanout.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	// A failed startup can leave pieces the fanout never owned.
	if m.store != nil && m.store.IsRunning() {
		if err := m.store.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if m.db != nil {
		if err := m.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	m.mu.Lock()
	m.state = StateStopped
	m.mu.Unlock()

	m.log.Info("stopped")
	if len(errs) > 0 {
		return errors.Wrapf(errors.ErrShuttingDown, "shutdown errors: %v", errs)
	}
	return nil
}

// =============================================================================
// Status
// =============================================================================

// State returns the lifecycle state.
func (m *Manager) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Store exposes the embedded store for the admin query endpoint. Nil when
// the localstore sink is disabled.
func (m *Manager) Store() *storage.Service {
	return m.store
}

// SystemStatus describes one configured system on /status.
type SystemStatus struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Endpoint  string `json:"endpoint"`
	MELCursor *int64 `json:"mel_cursor,omitempty"`
}

// SchedulerStatus mirrors the scheduler counters on /status.
type SchedulerStatus struct {
	Running  bool   `json:"running"`
	Tick     string `json:"tick"`
	Units    int    `json:"units"`
	Ticks    int64  `json:"ticks"`
	Overruns int64  `json:"overruns"`
	InFlight int    `json:"in_flight"`
}

// MELStatus reports cursor tracker activity.
type MELStatus struct {
	Systems     int   `json:"systems"`
	Advances    int64 `json:"advances"`
	Regressions int64 `json:"regressions"`
}

// FailureStatus reports reconciler activity.
type FailureStatus struct {
	Cycles        int64 `json:"cycles"`
	ShortCircuits int64 `json:"short_circuits"`
	ColdLoads     int64 `json:"cold_loads"`
	Activated     int64 `json:"activated"`
	Resolved      int64 `json:"resolved"`
}

// DeltaStatus reports counter cache activity in cumulative mode.
type DeltaStatus struct {
	Entries   int   `json:"entries"`
	Baselines int64 `json:"baselines"`
	Resets    int64 `json:"resets"`
	Emitted   int64 `json:"emitted"`
}

// StoreStatus summarizes the embedded store.
type StoreStatus struct {
	Running      bool    `json:"running"`
	Uptime       string  `json:"uptime"`
	BufferRows   int     `json:"buffer_rows"`
	BufferUsage  float64 `json:"buffer_usage"`
	Backpressure string  `json:"backpressure"`
}

// Status is the manager snapshot served on /status.
type Status struct {
	State     string          `json:"state"`
	Health    string          `json:"health"`
	Mode      string          `json:"mode"`
	StartedAt *time.Time      `json:"started_at,omitempty"`
	Systems   []SystemStatus  `json:"systems"`
	Units     []UnitSnapshot  `json:"units"`
	Totals    AggregateStats  `json:"totals"`
	Scheduler SchedulerStatus `json:"scheduler"`
	MEL       MELStatus       `json:"mel"`
	Failures  FailureStatus   `json:"failures"`
	Delta     *DeltaStatus    `json:"delta,omitempty"`
	Store     *StoreStatus    `json:"store,omitempty"`
}

// Status assembles the full snapshot.
func (m *Manager) Status() Status {
	m.mu.Lock()
	st := Status{
		State:  m.state,
		Mode:   m.cfg.Poll.StatisticsMode,
		Health: m.states.Worst(),
	}
	if !m.startedAt.IsZero() {
		t := m.startedAt
		st.StartedAt = &t
	}
	m.mu.Unlock()

	st.Systems = make([]SystemStatus, 0, len(m.cfg.Systems))
	for _, sys := range m.cfg.Systems {
		s := SystemStatus{
			ID:       sys.ID,
			Name:     sys.Name,
			Endpoint: m.clients[sys.ID].Endpoint(),
		}
		if cursor, ok := m.tracker.Cursor(sys.ID); ok {
			s.MELCursor = &cursor
		}
		st.Systems = append(st.Systems, s)
	}

	st.Units = m.states.Snapshot()
	st.Totals = m.stats.Aggregate()

	if m.sched != nil {
		ss := m.sched.Stats()
		st.Scheduler = SchedulerStatus{
			Running:  ss.Running,
			Tick:     ss.Tick.String(),
			Units:    ss.Units,
			Ticks:    ss.Ticks,
			Overruns: ss.Overruns,
			InFlight: ss.InFlight,
		}
	}

	ms := m.tracker.Stats()
	st.MEL = MELStatus{Systems: ms.Systems, Advances: int64(ms.Advances), Regressions: int64(ms.Regressions)}

	fs := m.reconciler.Stats()
	st.Failures = FailureStatus{
		Cycles:        fs.Cycles,
		ShortCircuits: fs.ShortCircuits,
		ColdLoads:     fs.ColdLoads,
		Activated:     fs.Activated,
		Resolved:      fs.Resolved,
	}

	if m.engine != nil {
		ds := m.engine.Stats()
		st.Delta = &DeltaStatus{
			Entries:   ds.Entries,
			Baselines: ds.Baselines,
			Resets:    ds.Resets,
			Emitted:   ds.Emitted,
		}
	}

	if m.store != nil {
		buf := m.store.Buffer()
		st.Store = &StoreStatus{
			Running:      m.store.IsRunning(),
			Uptime:       m.store.Stats().Uptime.Round(time.Second).String(),
			BufferRows:   buf.Len(),
			BufferUsage:  buf.UsageRatio(),
			Backpressure: m.store.BackpressureLevel().String(),
		}
	}

	return st
}
