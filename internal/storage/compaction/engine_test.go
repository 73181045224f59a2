package compaction

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/arraymon/internal/storage/config"
	"github.com/xtxerr/arraymon/internal/storage/parquet"
	"github.com/xtxerr/arraymon/internal/storage/types"
)

func writeRawSegment(t *testing.T, cfg *config.Config, flushTime time.Time, rows []types.Row) string {
	t.Helper()

	path := filepath.Join(cfg.TierDir(types.TierRaw.String()), types.TierRaw.SegmentName(flushTime))
	writer, err := parquet.NewRawWriter(path, parquet.DefaultOptions())
	if err != nil {
		t.Fatalf("create raw writer: %v", err)
	}
	if err := writer.Write(rows); err != nil {
		t.Fatalf("write rows: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return path
}

func TestEngine_New(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	engine, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if engine == nil {
		t.Fatal("engine is nil")
	}

	if engine.IsRunning() {
		t.Error("engine should not be running before Start()")
	}
}

func TestEngine_StartStop(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Compaction.Workers = 2

	engine, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Start
	if err := engine.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if !engine.IsRunning() {
		t.Error("engine should be running after Start()")
	}

	// Double start should fail
	if err := engine.Start(); err == nil {
		t.Error("expected error on double start")
	}

	// Stop
	if err := engine.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if engine.IsRunning() {
		t.Error("engine should not be running after Stop()")
	}
}

func TestEngine_RunJob_Backfill(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	engine, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	bucket := types.TierM5.Duration()
	start := time.Now().UTC().Add(-30 * time.Minute).Truncate(bucket)
	startMs := start.UnixMilli()

	rows := []types.Row{
		{Measurement: "array_perf_volume", Tags: "system=prod-array-01,volume=vol-0001", Field: "read_iops", TimestampMs: startMs + 10_000, Kind: types.ValueKindFloat, Value: 10},
		{Measurement: "array_perf_volume", Tags: "system=prod-array-01,volume=vol-0001", Field: "read_iops", TimestampMs: startMs + 70_000, Kind: types.ValueKindFloat, Value: 20},
		{Measurement: "array_perf_volume", Tags: "system=prod-array-01,volume=vol-0001", Field: "read_iops", TimestampMs: startMs + 130_000, Kind: types.ValueKindFloat, Value: 30},
		{Measurement: "array_perf_volume", Tags: "system=prod-array-01,volume=vol-0002", Field: "write_iops", TimestampMs: startMs + 20_000, Kind: types.ValueKindFloat, Value: 5},
		// Outside the window, must be filtered
		{Measurement: "array_perf_volume", Tags: "system=prod-array-01,volume=vol-0001", Field: "read_iops", TimestampMs: startMs - 1000, Kind: types.ValueKindFloat, Value: 999},
		// Text rows cannot be aggregated
		{Measurement: "array_hw_fan", Tags: "system=prod-array-01,fan=fan-2", Field: "state", TimestampMs: startMs + 30_000, Kind: types.ValueKindText, TextValue: "optimal"},
	}

	source := writeRawSegment(t, cfg, start.Add(6*time.Minute), rows)

	job := Job{
		BucketStart: start,
		SourceFiles: []string{source},
		OutputFile:  engine.outputPath(start),
	}

	if err := engine.RunJob(job); err != nil {
		t.Fatalf("RunJob: %v", err)
	}

	reader, err := parquet.NewAggregateReader(job.OutputFile)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	aggs, err := reader.ReadAll()
	reader.Close()
	if err != nil {
		t.Fatalf("read output: %v", err)
	}

	if len(aggs) != 2 {
		t.Fatalf("expected 2 aggregates, got %d", len(aggs))
	}

	var readIops *types.AggregateResult
	for i := range aggs {
		if aggs[i].Field == "read_iops" {
			readIops = &aggs[i]
		}
	}
	if readIops == nil {
		t.Fatal("read_iops aggregate not found")
	}

	if readIops.Count != 3 {
		t.Errorf("expected count 3, got %d", readIops.Count)
	}
	if readIops.Sum != 60 {
		t.Errorf("expected sum 60, got %v", readIops.Sum)
	}
	if readIops.Min != 10 || readIops.Max != 30 {
		t.Errorf("expected min 10 max 30, got %v %v", readIops.Min, readIops.Max)
	}
	if readIops.Avg != 20 {
		t.Errorf("expected avg 20, got %v", readIops.Avg)
	}
	if readIops.BucketStart != startMs {
		t.Errorf("expected bucket start %d, got %d", startMs, readIops.BucketStart)
	}
	if !readIops.HasPercentile() {
		t.Error("expected percentile on backfilled aggregate")
	}

	stats := engine.Stats()
	if stats.FilesRead != 1 {
		t.Errorf("expected 1 file read, got %d", stats.FilesRead)
	}
	if stats.FilesWritten != 1 {
		t.Errorf("expected 1 file written, got %d", stats.FilesWritten)
	}
}

func TestEngine_RunJob_SkipsExisting(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	engine, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	bucket := types.TierM5.Duration()
	start := time.Now().UTC().Add(-30 * time.Minute).Truncate(bucket)

	rows := []types.Row{
		{Measurement: "array_perf_volume", Tags: "system=prod-array-01,volume=vol-0001", Field: "read_iops", TimestampMs: start.UnixMilli() + 1000, Kind: types.ValueKindFloat, Value: 1},
	}
	source := writeRawSegment(t, cfg, start.Add(6*time.Minute), rows)

	out := engine.outputPath(start)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	placeholder := []byte("already written")
	if err := os.WriteFile(out, placeholder, 0o644); err != nil {
		t.Fatalf("write placeholder: %v", err)
	}

	job := Job{BucketStart: start, SourceFiles: []string{source}, OutputFile: out}
	if err := engine.RunJob(job); err != nil {
		t.Fatalf("RunJob: %v", err)
	}

	if got := engine.Stats().JobsSkipped; got != 1 {
		t.Errorf("expected 1 job skipped, got %d", got)
	}

	content, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(content) != string(placeholder) {
		t.Error("existing segment was overwritten")
	}
}

func TestEngine_ScheduleBackfill(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Compaction.Workers = 1

	engine, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	bucket := types.TierM5.Duration()
	start := time.Now().UTC().Add(-30 * time.Minute).Truncate(bucket)

	rows := []types.Row{
		{Measurement: "array_perf_volume", Tags: "system=prod-array-01,volume=vol-0001", Field: "read_iops", TimestampMs: start.UnixMilli() + 1000, Kind: types.ValueKindFloat, Value: 42},
	}
	writeRawSegment(t, cfg, start.Add(6*time.Minute), rows)

	if err := engine.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer engine.Stop()

	scheduled := engine.scheduleBackfill(time.Now().UTC())
	if scheduled < 1 {
		t.Fatalf("expected at least 1 job scheduled, got %d", scheduled)
	}

	out := engine.outputPath(start)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(out); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := os.Stat(out); err != nil {
		t.Fatalf("backfilled segment missing: %v", err)
	}

	if got := engine.Stats().FilesWritten; got != 1 {
		t.Errorf("expected 1 file written, got %d", got)
	}
}

func TestEngine_ScheduleBackfill_RespectsGrace(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	engine, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	bucket := types.TierM5.Duration()
	now := time.Now().UTC()

	// The current bucket just closed; it is still the online writer's
	start := now.Truncate(bucket).Add(-bucket)
	rows := []types.Row{
		{Measurement: "array_perf_volume", Tags: "system=prod-array-01,volume=vol-0001", Field: "read_iops", TimestampMs: start.UnixMilli() + 1000, Kind: types.ValueKindFloat, Value: 42},
	}
	writeRawSegment(t, cfg, start.Add(bucket), rows)

	if err := engine.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer engine.Stop()

	engine.scheduleBackfill(now)

	// The just-closed bucket must not be scheduled
	out := engine.outputPath(start)
	time.Sleep(50 * time.Millisecond)
	if _, err := os.Stat(out); err == nil {
		t.Error("recent bucket was backfilled inside the grace window")
	}
}

func TestEngine_SubmitJob(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Compaction.Workers = 1

	engine, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	job := Job{
		BucketStart: time.Now().UTC().Truncate(types.TierM5.Duration()),
	}

	// Cannot submit when not running
	if engine.SubmitJob(job) {
		t.Error("should not be able to submit job when not running")
	}

	// Start engine
	if err := engine.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer engine.Stop()

	// Now should be able to submit
	if !engine.SubmitJob(job) {
		t.Error("should be able to submit job when running")
	}

	stats := engine.Stats()
	if stats.JobsScheduled != 1 {
		t.Errorf("expected 1 job scheduled, got %d", stats.JobsScheduled)
	}
}

func TestEngine_OutputPath(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = tmpDir

	engine, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	testTime := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

	path := engine.outputPath(testTime)
	expected := filepath.Join(tmpDir, "m5", "2026-01-15_10-30.parquet")

	if path != expected {
		t.Errorf("expected %s, got %s", expected, path)
	}
}

func TestEngine_Stats(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	engine, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	stats := engine.Stats()

	if stats.Running {
		t.Error("expected Running=false")
	}

	if stats.JobsScheduled != 0 {
		t.Errorf("expected 0 jobs scheduled, got %d", stats.JobsScheduled)
	}

	// Start and check
	engine.Start()
	defer engine.Stop()

	stats = engine.Stats()
	if !stats.Running {
		t.Error("expected Running=true")
	}
}
