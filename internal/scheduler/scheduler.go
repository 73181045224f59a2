// Package scheduler drives the tiered collection cadence.
//
// One control loop ticks at the shortest configured interval. On each tick
// it determines which cadence tiers are due, dispatches every registered
// unit of those tiers onto a bounded worker pool, and joins the whole batch
// before computing the next sleep. A tick whose work ran longer than the
// tick interval is logged as an overrun and the next tick starts
// immediately, so drift self-corrects instead of accumulating a silent
// backlog.
//
// Key guarantees:
//   - No two cycles of the same unit overlap (join before sleep)
//   - Unit failures are isolated; one failing class never blocks siblings
//   - Every unit runs under a hard per-unit timeout
//   - A panicking unit is recovered and reported as a failed cycle
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/arraymon/config"
	"github.com/xtxerr/arraymon/internal/catalog"
	"github.com/xtxerr/arraymon/internal/logging"
	"github.com/xtxerr/arraymon/internal/telemetry"
)

var log = logging.Component("scheduler")

// =============================================================================
// Types
// =============================================================================

// RunFunc executes one unit of collection work. It returns the number of
// points written. The context carries the unit deadline; a timed-out unit
// discards partial results and reports the context error.
type RunFunc func(ctx context.Context) (written int, err error)

// unit is one registered (system, class) collection function.
type unit struct {
	system  string
	class   string
	cadence catalog.Cadence
	run     RunFunc
}

// Result reports one finished unit to the observer.
type Result struct {
	System  string
	Class   string
	Written int
	Elapsed time.Duration
	Err     error
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds scheduler configuration.
type Config struct {
	// Intervals maps each cadence tier to its poll interval. The tick
	// granularity is the shortest interval of the registered tiers.
	Intervals map[catalog.Cadence]time.Duration

	// Workers bounds concurrent units per tick.
	Workers int

	// UnitTimeout is the hard deadline for one unit of work.
	UnitTimeout time.Duration

	// DrainTimeout is how long Stop waits for in-flight units.
	DrainTimeout time.Duration
}

// DefaultConfig returns the production cadence tiers.
func DefaultConfig() Config {
	return Config{
		Intervals: map[catalog.Cadence]time.Duration{
			catalog.CadencePerformance: config.DefaultPerformanceInterval,
			catalog.CadenceController:  config.DefaultControllerInterval,
			catalog.CadenceHardware:    config.DefaultHardwareInterval,
			catalog.CadenceEvents:      config.DefaultMELInterval,
			catalog.CadenceFailures:    config.DefaultFailureInterval,
		},
		Workers:      config.DefaultWorkerPool,
		UnitTimeout:  config.DefaultUnitTimeout,
		DrainTimeout: config.DefaultDrainTimeout,
	}
}

// normalize fills unset fields from the defaults.
func (c *Config) normalize() {
	def := DefaultConfig()
	intervals := make(map[catalog.Cadence]time.Duration, len(def.Intervals))
	for cadence, d := range def.Intervals {
		intervals[cadence] = d
	}
	for cadence, d := range c.Intervals {
		if d > 0 {
			intervals[cadence] = d
		}
	}
	c.Intervals = intervals
	if c.Workers < 1 {
		c.Workers = def.Workers
	}
	if c.UnitTimeout <= 0 {
		c.UnitTimeout = def.UnitTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = def.DrainTimeout
	}
}

// =============================================================================
// Scheduler
// =============================================================================

// Scheduler runs registered collection units on their cadence tiers.
//
// Scheduler is safe for concurrent use.
type Scheduler struct {
	cfg     Config
	metrics *telemetry.Metrics

	mu       sync.Mutex
	units    []unit
	lastRun  map[string]time.Time // class -> last dispatch
	onResult func(Result)

	started  atomic.Bool
	stopOnce sync.Once
	shutdown chan struct{}
	done     chan struct{}

	ticks    atomic.Int64
	overruns atomic.Int64
	inFlight atomic.Int32
}

// New creates a scheduler. metrics may be nil.
func New(cfg Config, metrics *telemetry.Metrics) *Scheduler {
	cfg.normalize()

	return &Scheduler{
		cfg:      cfg,
		metrics:  metrics,
		lastRun:  make(map[string]time.Time),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Register adds a collection unit. The class name labels logs, telemetry,
// and status; units sharing a class are dispatched together on the class's
// cadence tier. Must be called before Start.
func (s *Scheduler) Register(system, class string, cadence catalog.Cadence, run RunFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.units = append(s.units, unit{
		system:  system,
		class:   class,
		cadence: cadence,
		run:     run,
	})
}

// OnResult sets the observer notified after every finished unit. Must be
// called before Start.
func (s *Scheduler) OnResult(fn func(Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResult = fn
}

// =============================================================================
// Lifecycle
// =============================================================================

// Start launches the tick loop. The first tick runs immediately, so every
// class collects once at startup.
func (s *Scheduler) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler already started")
	}

	s.mu.Lock()
	count := len(s.units)
	s.mu.Unlock()

	tick := s.tick()
	log.Info("scheduler started",
		"units", count,
		"tick", tick,
		"workers", s.cfg.Workers)

	go s.loop(tick)
	return nil
}

// Stop halts the tick loop and waits for in-flight units up to the drain
// timeout.
func (s *Scheduler) Stop() {
	if !s.started.Load() {
		return
	}

	s.stopOnce.Do(func() { close(s.shutdown) })

	select {
	case <-s.done:
		log.Info("scheduler stopped")
	case <-time.After(s.cfg.DrainTimeout):
		log.Warn("scheduler drain timeout",
			"in_flight", s.inFlight.Load())
	}
}

// tick returns the loop granularity: the shortest interval among the
// registered units' cadence tiers.
func (s *Scheduler) tick() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	var min time.Duration
	for _, u := range s.units {
		iv := s.cfg.Intervals[u.cadence]
		if min == 0 || iv < min {
			min = iv
		}
	}
	if min == 0 {
		min = s.cfg.Intervals[catalog.CadencePerformance]
	}
	return min
}

// =============================================================================
// Tick Loop
// =============================================================================

func (s *Scheduler) loop(tick time.Duration) {
	defer close(s.done)

	for {
		start := time.Now()
		s.runCycle(start)
		s.ticks.Add(1)

		elapsed := time.Since(start)
		sleep := tick - elapsed
		if sleep < 0 {
			log.Warn("tick overrun",
				"elapsed", elapsed.Round(time.Millisecond),
				"tick", tick)
			s.overruns.Add(1)
			s.metrics.SchedulerOverrun()
			sleep = 0
		}

		timer := time.NewTimer(sleep)
		select {
		case <-s.shutdown:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runCycle dispatches every due unit and joins the batch.
func (s *Scheduler) runCycle(now time.Time) {
	due := s.dueUnits(now)
	if len(due) == 0 {
		return
	}

	// Plain group, not WithContext: a failing unit must never cancel its
	// siblings.
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)

	for _, u := range due {
		g.Go(func() error {
			s.runUnit(u)
			return nil
		})
	}
	g.Wait()
}

// dueUnits selects the units whose class is due and stamps the dispatch
// time.
func (s *Scheduler) dueUnits(now time.Time) []unit {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []unit
	ran := make(map[string]bool)
	for _, u := range s.units {
		if now.Sub(s.lastRun[u.class]) >= s.cfg.Intervals[u.cadence] {
			due = append(due, u)
			ran[u.class] = true
		}
	}
	for class := range ran {
		s.lastRun[class] = now
	}
	return due
}

func (s *Scheduler) runUnit(u unit) {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	start := time.Now()
	written, err := s.execute(u)
	elapsed := time.Since(start)

	s.metrics.ObserveCycle(u.system, u.class, elapsed, err)
	s.metrics.AddPoints(u.system, u.class, written)

	if err != nil {
		log.Warn("collection unit failed",
			"system", u.system,
			"class", u.class,
			"elapsed_ms", elapsed.Milliseconds(),
			"error", err)
	} else {
		log.Debug("collection unit done",
			"system", u.system,
			"class", u.class,
			"written", written,
			"elapsed_ms", elapsed.Milliseconds())
	}

	s.mu.Lock()
	observer := s.onResult
	s.mu.Unlock()
	if observer != nil {
		observer(Result{
			System:  u.system,
			Class:   u.class,
			Written: written,
			Elapsed: elapsed,
			Err:     err,
		})
	}
}

// execute runs one unit under the unit timeout with panic recovery.
func (s *Scheduler) execute(u unit) (written int, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in collection unit",
				"system", u.system,
				"class", u.class,
				"panic", r)
			written = 0
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.UnitTimeout)
	defer cancel()

	return u.run(ctx)
}

// =============================================================================
// Introspection
// =============================================================================

// Stats is a point-in-time snapshot of scheduler state.
type Stats struct {
	Running  bool
	Tick     time.Duration
	Units    int
	Ticks    int64
	Overruns int64
	InFlight int
	LastRun  map[string]time.Time
}

// Stats returns a snapshot for the status endpoint.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	lastRun := make(map[string]time.Time, len(s.lastRun))
	for class, t := range s.lastRun {
		lastRun[class] = t
	}
	units := len(s.units)
	s.mu.Unlock()

	running := s.started.Load()
	select {
	case <-s.shutdown:
		running = false
	default:
	}

	return Stats{
		Running:  running,
		Tick:     s.tick(),
		Units:    units,
		Ticks:    s.ticks.Load(),
		Overruns: s.overruns.Load(),
		InFlight: int(s.inFlight.Load()),
		LastRun:  lastRun,
	}
}
