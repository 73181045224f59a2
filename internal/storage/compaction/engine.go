package compaction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/arraymon/internal/storage/aggregate"
	"github.com/xtxerr/arraymon/internal/storage/config"
	"github.com/xtxerr/arraymon/internal/storage/parquet"
	"github.com/xtxerr/arraymon/internal/storage/types"
)

// backfillDelay is how long after a bucket closes the engine waits
// before it considers backfilling it. The ingestion service writes
// buckets online shortly after they close; the engine only repairs the
// ones that never made it (restarts, write failures).
const backfillDelay = 10 * time.Minute

// Engine backfills m5 aggregate segments from raw tier segments.
// Aggregates are recomputed from the raw rows, so backfilled buckets
// carry real percentiles rather than merged approximations.
type Engine struct {
	config *config.Config

	// State
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Job queue
	jobCh   chan Job
	workers int

	// Statistics
	stats Stats
}

// Stats holds compaction statistics.
type Stats struct {
	JobsScheduled atomic.Int64
	JobsCompleted atomic.Int64
	JobsFailed    atomic.Int64
	JobsSkipped   atomic.Int64
	FilesRead     atomic.Int64
	FilesWritten  atomic.Int64
	RowsProcessed atomic.Int64
}

// Job rebuilds one m5 bucket from raw segments.
type Job struct {
	// BucketStart is the aligned start of the m5 window (UTC).
	BucketStart time.Time

	// SourceFiles are the raw segments that may hold rows for the window.
	SourceFiles []string

	// OutputFile is the m5 segment to produce.
	OutputFile string
}

// New creates a new compaction engine.
func New(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	workers := cfg.Compaction.Workers
	if workers <= 0 {
		workers = 2
	}

	return &Engine{
		config:  cfg,
		ctx:     ctx,
		cancel:  cancel,
		jobCh:   make(chan Job, 100),
		workers: workers,
	}, nil
}

// Start starts the compaction engine.
func (e *Engine) Start() error {
	if e.running.Load() {
		return fmt.Errorf("engine already running")
	}

	e.running.Store(true)

	// Start workers
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}

	// Start scheduler
	e.wg.Add(1)
	go e.scheduler()

	return nil
}

// Stop stops the compaction engine.
func (e *Engine) Stop() error {
	if !e.running.Load() {
		return nil
	}

	e.running.Store(false)
	e.cancel()

	// Close job channel
	close(e.jobCh)

	// Wait for workers
	e.wg.Wait()

	return nil
}

// worker processes compaction jobs.
func (e *Engine) worker() {
	defer e.wg.Done()

	for job := range e.jobCh {
		if err := e.runJob(job); err != nil {
			e.stats.JobsFailed.Add(1)
			continue
		}
		e.stats.JobsCompleted.Add(1)
	}
}

// scheduler periodically scans for buckets that need backfilling.
func (e *Engine) scheduler() {
	defer e.wg.Done()

	interval := e.config.Compaction.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.scheduleBackfill(time.Now().UTC())
		}
	}
}

// scheduleBackfill scans the raw tier and submits a job for every closed
// m5 bucket that has raw data but no m5 segment. Returns the number of
// jobs submitted.
func (e *Engine) scheduleBackfill(now time.Time) int {
	rawFiles, err := e.listRawSegments()
	if err != nil || len(rawFiles) == 0 {
		return 0
	}

	bucket := types.TierM5.Duration()

	// A raw segment flushed at T holds rows no older than T minus the hot
	// buffer window, so it can only contribute to buckets in that span.
	lag := e.config.Features.RawBuffer.Duration + 2*time.Minute

	candidates := make(map[int64][]string)
	for _, f := range rawFiles {
		first := f.ts.Add(-lag).Truncate(bucket)
		for b := first; !b.After(f.ts); b = b.Add(bucket) {
			ms := b.UnixMilli()
			candidates[ms] = append(candidates[ms], f.path)
		}
	}

	scheduled := 0
	for startMs, files := range candidates {
		start := time.UnixMilli(startMs).UTC()
		end := start.Add(bucket)

		// Recent buckets belong to the online writer
		if now.Sub(end) < backfillDelay {
			continue
		}

		out := e.outputPath(start)
		if _, err := os.Stat(out); err == nil {
			continue
		}

		job := Job{
			BucketStart: start,
			SourceFiles: files,
			OutputFile:  out,
		}

		if !e.SubmitJob(job) {
			break
		}
		scheduled++
	}

	return scheduled
}

// SubmitJob submits a job to the queue.
func (e *Engine) SubmitJob(job Job) bool {
	if !e.running.Load() {
		return false
	}

	select {
	case e.jobCh <- job:
		e.stats.JobsScheduled.Add(1)
		return true
	default:
		// Queue full
		return false
	}
}

// RunJob executes a compaction job synchronously.
func (e *Engine) RunJob(job Job) error {
	return e.runJob(job)
}

// runJob reads the raw rows covering the job's bucket, re-aggregates
// them per series, and writes the m5 segment.
func (e *Engine) runJob(job Job) error {
	if len(job.SourceFiles) == 0 {
		return nil
	}

	// The online path may have written the bucket after this job was
	// scheduled. First writer wins.
	if _, err := os.Stat(job.OutputFile); err == nil {
		e.stats.JobsSkipped.Add(1)
		return nil
	}

	startMs := job.BucketStart.UnixMilli()
	endMs := job.BucketStart.Add(types.TierM5.Duration()).UnixMilli()

	aggs := make(map[string]*aggregate.StreamingAggregate)
	rowsRead := int64(0)

	for _, file := range job.SourceFiles {
		rows, err := e.readRows(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}
		e.stats.FilesRead.Add(1)
		rowsRead += int64(len(rows))

		for i := range rows {
			r := &rows[i]
			if r.TimestampMs < startMs || r.TimestampMs >= endMs {
				continue
			}
			if !r.IsNumeric() {
				continue
			}

			key := r.Key()
			agg, ok := aggs[key]
			if !ok {
				agg = e.newAggregate(r, startMs, endMs)
				aggs[key] = agg
			}
			agg.Add(r.Value, r.TimestampMs)
		}
	}

	e.stats.RowsProcessed.Add(rowsRead)

	if len(aggs) == 0 {
		return nil
	}

	results := make([]types.AggregateResult, 0, len(aggs))
	for _, agg := range aggs {
		results = append(results, agg.Result())
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Key() < results[j].Key()
	})

	if err := e.writeAggregates(job.OutputFile, results); err != nil {
		return fmt.Errorf("write %s: %w", job.OutputFile, err)
	}

	e.stats.FilesWritten.Add(1)

	return nil
}

// newAggregate creates a streaming aggregate for one series in the
// job's bucket, honoring the configured percentile settings.
func (e *Engine) newAggregate(r *types.Row, startMs, endMs int64) *aggregate.StreamingAggregate {
	if e.config.Features.Percentile.Enabled {
		accuracy := e.config.Features.Percentile.Accuracy
		if accuracy <= 0 {
			accuracy = aggregate.DefaultAccuracy
		}
		return aggregate.NewWithAccuracy(r.Measurement, r.Tags, r.Field, startMs, endMs, accuracy)
	}
	return aggregate.New(r.Measurement, r.Tags, r.Field, startMs, endMs, false)
}

// readRows reads all rows from a raw parquet segment.
func (e *Engine) readRows(path string) ([]types.Row, error) {
	reader, err := parquet.NewRawReader(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return reader.ReadAll()
}

// writeAggregates writes aggregates to a parquet segment.
func (e *Engine) writeAggregates(path string, aggregates []types.AggregateResult) error {
	opts := parquet.DefaultOptions()
	opts.Compression = parquet.ParseCompressionType(e.config.Features.Compression.Algorithm)
	opts.CompressionLevel = e.config.Features.Compression.Level

	writer, err := parquet.NewAggregateWriter(path, opts)
	if err != nil {
		return err
	}

	if err := writer.Write(aggregates); err != nil {
		writer.Close()
		os.Remove(path)
		return err
	}
	if err := writer.Close(); err != nil {
		os.Remove(path)
		return err
	}

	return nil
}

// rawSegment pairs a raw file path with the flush time in its name.
type rawSegment struct {
	path string
	ts   time.Time
}

// listRawSegments lists raw tier segments, oldest first. Files whose
// names do not parse are ignored.
func (e *Engine) listRawSegments() ([]rawSegment, error) {
	dir := e.config.TierDir(types.TierRaw.String())

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []rawSegment
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if filepath.Ext(name) != ".parquet" {
			continue
		}

		ts, err := types.TierRaw.ParseSegmentTime(name)
		if err != nil {
			continue
		}

		files = append(files, rawSegment{
			path: filepath.Join(dir, name),
			ts:   ts,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ts.Before(files[j].ts)
	})

	return files, nil
}

// outputPath returns the m5 segment path for a bucket start.
func (e *Engine) outputPath(start time.Time) string {
	return filepath.Join(e.config.TierDir(types.TierM5.String()), types.TierM5.SegmentName(start))
}

// Stats returns current statistics.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Running:       e.running.Load(),
		JobsScheduled: e.stats.JobsScheduled.Load(),
		JobsCompleted: e.stats.JobsCompleted.Load(),
		JobsFailed:    e.stats.JobsFailed.Load(),
		JobsSkipped:   e.stats.JobsSkipped.Load(),
		FilesRead:     e.stats.FilesRead.Load(),
		FilesWritten:  e.stats.FilesWritten.Load(),
		RowsProcessed: e.stats.RowsProcessed.Load(),
	}
}

// EngineStats holds engine statistics.
type EngineStats struct {
	Running       bool
	JobsScheduled int64
	JobsCompleted int64
	JobsFailed    int64
	JobsSkipped   int64
	FilesRead     int64
	FilesWritten  int64
	RowsProcessed int64
}

// IsRunning returns whether the engine is running.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}
