package ingestion

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
	"github.com/xtxerr/arraymon/internal/storage/buffer"
	"github.com/xtxerr/arraymon/internal/storage/config"
	"github.com/xtxerr/arraymon/internal/storage/parquet"
	"github.com/xtxerr/arraymon/internal/storage/types"
	"github.com/xtxerr/arraymon/internal/storage/wal"
)

const (
	// stragglerGrace is how long after a 5-minute bucket closes we keep
	// waiting for late rows before the bucket is sealed and written.
	stragglerGrace = time.Minute

	// bufferedRowBytes matches the per-row sizing model used for the
	// startup requirements estimate (struct plus string headers).
	bufferedRowBytes = 96

	minBufferCapacity = 10000
	maxBufferCapacity = 100000000
)

// Service orchestrates the row ingestion pipeline.
// It manages the flow: Rows → WAL → Buffer → Aggregation → Parquet.
type Service struct {
	// mu serializes Ingest against the raw flush so the WAL, the buffer
	// and the flush watermark never disagree about which rows are
	// persisted.
	mu sync.Mutex

	config *config.Config

	// Components
	buffer    *buffer.RingBuffer
	wal       *wal.Writer
	aggregate *aggregate.Manager

	// flushedWatermark is the newest row timestamp persisted to a raw
	// parquet segment. Rows at or below it are never written to a second
	// segment; a row that arrives later with an older timestamp stays
	// queryable in the hot buffer only. Guarded by mu.
	flushedWatermark int64

	// unflushed approximates rows accepted since the last raw flush and
	// drives the max-rows flush trigger.
	unflushed atomic.Int64

	// pendingM5 collects completed aggregates per bucket start until the
	// bucket is past its straggler grace and written as one segment.
	pendingMu sync.Mutex
	pendingM5 map[int64][]types.AggregateResult

	// State
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Statistics
	stats Stats

	// Channels
	flushCh chan struct{}
}

// Stats holds ingestion statistics.
type Stats struct {
	RowsReceived       atomic.Int64
	RowsIngested       atomic.Int64
	RowsDropped        atomic.Int64
	RowsReplayed       atomic.Int64
	RowsFlushed        atomic.Int64
	BatchesProcessed   atomic.Int64
	RawSegmentsWritten atomic.Int64
	M5SegmentsWritten  atomic.Int64
	M5SegmentsSkipped  atomic.Int64
	AggregatesWritten  atomic.Int64
	WALSegmentsDeleted atomic.Int64
	Errors             atomic.Int64
}

// New creates a new ingestion service.
func New(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	ringBuffer := buffer.New(calculateBufferCapacity(cfg))

	walOpts := wal.Options{
		MaxSegmentSize: cfg.Ingestion.WAL.MaxSegmentSize,
		SyncMode:       cfg.Ingestion.WAL.SyncMode,
		SyncInterval:   cfg.Ingestion.WAL.SyncInterval,
	}

	walWriter, err := wal.NewWriter(cfg.WALDir(), walOpts)
	if err != nil {
		return nil, fmt.Errorf("create WAL writer: %w", err)
	}

	var aggManager *aggregate.Manager
	if cfg.Features.Percentile.Enabled {
		aggManager = aggregate.NewManagerWithAccuracy(types.TierM5.Duration(), cfg.Features.Percentile.Accuracy)
	} else {
		aggManager = aggregate.NewManager(types.TierM5.Duration(), false)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		config:    cfg,
		buffer:    ringBuffer,
		wal:       walWriter,
		aggregate: aggManager,
		pendingM5: make(map[int64][]types.AggregateResult),
		ctx:       ctx,
		cancel:    cancel,
		flushCh:   make(chan struct{}, 1),
	}, nil
}

// calculateBufferCapacity sizes the hot buffer from the configured scale
// and retention window, capped by the memory budget.
func calculateBufferCapacity(cfg *config.Config) int {
	if !cfg.Features.RawBuffer.Enabled {
		return minBufferCapacity
	}

	intervalSec := cfg.Scale.IntervalSec
	if intervalSec <= 0 {
		intervalSec = 60
	}
	rowsPerSec := cfg.Scale.SystemCount * cfg.Scale.SeriesPerSystem / intervalSec
	bufferDurationSec := int(cfg.Features.RawBuffer.Duration.Seconds())

	capacity := rowsPerSec * bufferDurationSec

	if cfg.Features.RawBuffer.MemoryBudgetMB > 0 {
		budgetRows := cfg.Features.RawBuffer.MemoryBudgetMB * 1024 * 1024 / bufferedRowBytes
		if capacity > budgetRows {
			capacity = budgetRows
		}
	}

	if capacity < minBufferCapacity {
		capacity = minBufferCapacity
	}
	if capacity > maxBufferCapacity {
		capacity = maxBufferCapacity
	}

	return capacity
}

// Start replays any WAL segments left by a previous run, then starts the
// background workers.
func (s *Service) Start() error {
	if s.running.Load() {
		return fmt.Errorf("service already running")
	}

	s.replayWAL()

	s.running.Store(true)

	// Start flush worker
	s.wg.Add(1)
	go s.flushWorker()

	// Start eviction worker
	s.wg.Add(1)
	go s.evictionWorker()

	return nil
}

// Stop stops the ingestion service gracefully.
func (s *Service) Stop() error {
	if !s.running.Load() {
		return nil
	}

	s.running.Store(false)
	s.cancel()

	// Wait for workers
	s.wg.Wait()

	// Final flush
	s.flushAll()

	// Close WAL
	if err := s.wal.Close(); err != nil {
		return fmt.Errorf("close WAL: %w", err)
	}

	return nil
}

// replayWAL reloads rows from segments left behind by an unclean
// shutdown. The flush watermark starts at zero, so the next raw flush
// persists everything replayed. If the previous run crashed between the
// parquet write and the segment delete, the raw tier ends up with
// duplicate rows; the query path deduplicates by series key and
// timestamp.
func (s *Service) replayWAL() {
	paths, err := s.wal.ListSegments()
	if err != nil {
		s.stats.Errors.Add(1)
		return
	}
	if len(paths) == 0 {
		return
	}

	window := s.config.Features.RawBuffer.Duration
	if minWindow := s.aggregate.BucketSize() + stragglerGrace; window < minWindow {
		window = minWindow
	}
	cutoff := time.Now().Add(-window).UnixMilli()

	replayed := int64(0)
	for _, path := range paths {
		rows, err := wal.ReadSegment(path)
		if err != nil {
			// Torn or unreadable segment. Recover what the rest holds.
			s.stats.Errors.Add(1)
			continue
		}
		for i := range rows {
			if rows[i].TimestampMs < cutoff {
				continue
			}
			s.buffer.PushOverwrite(rows[i])
			s.aggregate.Process(rows[i])
			replayed++
		}
	}

	s.stats.RowsReplayed.Add(replayed)
	s.unflushed.Add(replayed)
}

// Ingest ingests a batch of rows.
func (s *Service) Ingest(rows []types.Row) error {
	if !s.running.Load() {
		return fmt.Errorf("service not running")
	}

	if len(rows) == 0 {
		return nil
	}

	s.stats.RowsReceived.Add(int64(len(rows)))

	s.mu.Lock()

	// Write to WAL first (crash safety)
	if err := s.wal.Write(rows); err != nil {
		s.mu.Unlock()
		s.stats.Errors.Add(1)
		return fmt.Errorf("WAL write: %w", err)
	}

	ingested := 0
	dropped := 0
	for i := range rows {
		if s.buffer.Push(rows[i]) {
			ingested++
		} else {
			dropped++
		}
	}

	s.mu.Unlock()

	// Aggregation keys on row timestamps only, no flush coordination
	// needed.
	for i := range rows {
		s.aggregate.Process(rows[i])
	}

	s.stats.RowsIngested.Add(int64(ingested))
	s.stats.RowsDropped.Add(int64(dropped))
	s.stats.BatchesProcessed.Add(1)

	if maxRows := s.config.Ingestion.Flush.MaxRows; maxRows > 0 {
		if s.unflushed.Add(int64(len(rows))) >= int64(maxRows) {
			s.ForceFlush()
		}
	}

	return nil
}

// IngestSingle ingests a single row.
func (s *Service) IngestSingle(row types.Row) error {
	return s.Ingest([]types.Row{row})
}

// flushWorker periodically runs the flush cycle.
func (s *Service) flushWorker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Ingestion.Flush.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.flushCycle()
		case <-s.flushCh:
			s.flushCycle()
		}
	}
}

// evictionWorker periodically evicts old rows from the buffer.
func (s *Service) evictionWorker() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.evictOldRows()
		}
	}
}

// flushCycle persists unflushed raw rows, then seals and writes any
// aggregate buckets that are past their grace window.
func (s *Service) flushCycle() {
	s.flushRaw()
	s.collectCompleted()
	s.writeClosedBuckets(false)
}

// Flush runs one synchronous flush cycle. Tests and shutdown paths use
// it to make segment writes deterministic.
func (s *Service) Flush() {
	s.flushCycle()
}

// flushRaw writes every buffered row above the watermark to a new raw
// parquet segment, then truncates the WAL. The whole sequence holds mu,
// so every row in a deleted WAL segment is provably in either an earlier
// flush or the segment just written.
func (s *Service) flushRaw() {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.buffer.Query(buffer.RowFilter{Since: s.flushedWatermark + 1}, 0)
	if len(rows) == 0 {
		return
	}

	// Seal the active WAL segment. Everything recorded so far is either
	// below the watermark (already in parquet) or in the snapshot.
	if err := s.wal.Rotate(); err != nil {
		s.stats.Errors.Add(1)
		return
	}
	keepSeq := s.wal.CurrentSeq()

	if err := s.writeRawSegment(rows); err != nil {
		s.stats.Errors.Add(1)
		return
	}

	maxTs := s.flushedWatermark
	for i := range rows {
		if rows[i].TimestampMs > maxTs {
			maxTs = rows[i].TimestampMs
		}
	}
	s.flushedWatermark = maxTs
	s.unflushed.Store(0)

	s.stats.RawSegmentsWritten.Add(1)
	s.stats.RowsFlushed.Add(int64(len(rows)))

	deleted, err := s.wal.DeleteSegmentsBefore(keepSeq)
	if err != nil {
		s.stats.Errors.Add(1)
		return
	}
	s.stats.WALSegmentsDeleted.Add(int64(deleted))
}

// writeRawSegment writes rows to a raw tier segment named after the
// flush time. If two flushes land in the same second the name is bumped
// forward so it stays unique and parseable.
func (s *Service) writeRawSegment(rows []types.Row) error {
	dir := s.config.TierDir(types.TierRaw.String())
	ts := time.Now()
	path := filepath.Join(dir, types.TierRaw.SegmentName(ts))
	for {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		ts = ts.Add(time.Second)
		path = filepath.Join(dir, types.TierRaw.SegmentName(ts))
	}

	writer, err := parquet.NewRawWriter(path, s.parquetOptions())
	if err != nil {
		return fmt.Errorf("create raw writer: %w", err)
	}

	if err := writer.Write(rows); err != nil {
		writer.Close()
		os.Remove(path)
		return fmt.Errorf("write raw segment: %w", err)
	}
	if err := writer.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close raw segment: %w", err)
	}

	return nil
}

// collectCompleted drains completed aggregates from the manager into the
// per-bucket pending map. Buckets abandoned by their series (no rows for
// a full bucket plus grace) are force-flushed so they cannot linger.
func (s *Service) collectCompleted() {
	completed := s.aggregate.FlushCompleted()

	staleCutoff := time.Now().Add(-s.aggregate.BucketSize() - stragglerGrace).UnixMilli()
	stale := s.aggregate.FlushOlderThan(staleCutoff)

	if len(completed) == 0 && len(stale) == 0 {
		return
	}

	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for _, agg := range completed {
		s.pendingM5[agg.BucketStart] = append(s.pendingM5[agg.BucketStart], agg)
	}
	for _, agg := range stale {
		s.pendingM5[agg.BucketStart] = append(s.pendingM5[agg.BucketStart], agg)
	}
}

// writeClosedBuckets writes every pending bucket whose grace window has
// passed to an m5 segment. With force set, every pending bucket is
// written regardless of age (shutdown path).
func (s *Service) writeClosedBuckets(force bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	nowMs := time.Now().UnixMilli()
	bucketMs := s.aggregate.BucketSize().Milliseconds()

	for start, aggs := range s.pendingM5 {
		if !force && nowMs < start+bucketMs+stragglerGrace.Milliseconds() {
			continue
		}

		path := filepath.Join(s.config.TierDir(types.TierM5.String()), types.TierM5.SegmentName(time.UnixMilli(start)))

		// The compaction backfill may have produced this bucket from raw
		// segments already. First writer wins.
		if _, err := os.Stat(path); err == nil {
			delete(s.pendingM5, start)
			s.stats.M5SegmentsSkipped.Add(1)
			continue
		}

		sort.Slice(aggs, func(i, j int) bool {
			return aggs[i].Key() < aggs[j].Key()
		})

		if err := s.writeAggregates(path, aggs); err != nil {
			// Keep the bucket pending and retry next cycle.
			s.stats.Errors.Add(1)
			continue
		}

		delete(s.pendingM5, start)
		s.stats.M5SegmentsWritten.Add(1)
		s.stats.AggregatesWritten.Add(int64(len(aggs)))
	}
}

// writeAggregates writes one bucket of aggregates to a parquet segment.
func (s *Service) writeAggregates(path string, aggregates []types.AggregateResult) error {
	writer, err := parquet.NewAggregateWriter(path, s.parquetOptions())
	if err != nil {
		return fmt.Errorf("create aggregate writer: %w", err)
	}

	if err := writer.Write(aggregates); err != nil {
		writer.Close()
		os.Remove(path)
		return fmt.Errorf("write aggregates: %w", err)
	}
	if err := writer.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close aggregate segment: %w", err)
	}

	return nil
}

func (s *Service) parquetOptions() parquet.Options {
	opts := parquet.DefaultOptions()
	opts.Compression = parquet.ParseCompressionType(s.config.Features.Compression.Algorithm)
	opts.CompressionLevel = s.config.Features.Compression.Level
	return opts
}

// flushAll drains everything during shutdown: all active aggregates,
// all pending buckets, and any raw rows still above the watermark.
func (s *Service) flushAll() {
	final := s.aggregate.FlushAll()
	if len(final) > 0 {
		s.pendingMu.Lock()
		for _, agg := range final {
			s.pendingM5[agg.BucketStart] = append(s.pendingM5[agg.BucketStart], agg)
		}
		s.pendingMu.Unlock()
	}
	s.writeClosedBuckets(true)

	s.flushRaw()

	s.wal.Sync()
}

// evictOldRows evicts rows older than the configured buffer duration.
func (s *Service) evictOldRows() {
	if !s.config.Features.RawBuffer.Enabled {
		return
	}

	cutoff := time.Now().Add(-s.config.Features.RawBuffer.Duration).UnixMilli()
	s.buffer.EvictOlderThan(cutoff)
}

// ForceFlush triggers an asynchronous flush cycle.
func (s *Service) ForceFlush() {
	select {
	case s.flushCh <- struct{}{}:
	default:
		// Flush already pending
	}
}

// Watermark returns the newest row timestamp persisted to the raw tier.
func (s *Service) Watermark() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushedWatermark
}

// Stats returns current statistics.
func (s *Service) Stats() ServiceStats {
	bufferStats := s.buffer.Stats()
	walStats := s.wal.Stats()
	aggStats := s.aggregate.Stats()

	s.pendingMu.Lock()
	pendingBuckets := len(s.pendingM5)
	s.pendingMu.Unlock()

	return ServiceStats{
		Running:            s.running.Load(),
		RowsReceived:       s.stats.RowsReceived.Load(),
		RowsIngested:       s.stats.RowsIngested.Load(),
		RowsDropped:        s.stats.RowsDropped.Load(),
		RowsReplayed:       s.stats.RowsReplayed.Load(),
		RowsFlushed:        s.stats.RowsFlushed.Load(),
		BatchesProcessed:   s.stats.BatchesProcessed.Load(),
		RawSegmentsWritten: s.stats.RawSegmentsWritten.Load(),
		M5SegmentsWritten:  s.stats.M5SegmentsWritten.Load(),
		M5SegmentsSkipped:  s.stats.M5SegmentsSkipped.Load(),
		AggregatesWritten:  s.stats.AggregatesWritten.Load(),
		WALSegmentsDeleted: s.stats.WALSegmentsDeleted.Load(),
		Errors:             s.stats.Errors.Load(),
		BufferUsage:        bufferStats.UsageRatio,
		BufferCount:        bufferStats.Count,
		WALSegments:        walStats.SegmentsCreated,
		WALBytesWritten:    walStats.BytesWritten,
		ActiveAggregates:   aggStats.ActiveAggregates,
		PendingBuckets:     pendingBuckets,
	}
}

// ServiceStats holds combined service statistics.
type ServiceStats struct {
	Running            bool
	RowsReceived       int64
	RowsIngested       int64
	RowsDropped        int64
	RowsReplayed       int64
	RowsFlushed        int64
	BatchesProcessed   int64
	RawSegmentsWritten int64
	M5SegmentsWritten  int64
	M5SegmentsSkipped  int64
	AggregatesWritten  int64
	WALSegmentsDeleted int64
	Errors             int64
	BufferUsage        float64
	BufferCount        int
	WALSegments        int64
	WALBytesWritten    int64
	ActiveAggregates   int64
	PendingBuckets     int
}

// Buffer returns the ring buffer for queries.
func (s *Service) Buffer() *buffer.RingBuffer {
	return s.buffer
}

// AggregateManager returns the aggregate manager.
func (s *Service) AggregateManager() *aggregate.Manager {
	return s.aggregate
}

// IsRunning returns whether the service is running.
func (s *Service) IsRunning() bool {
	return s.running.Load()
}
