package probe

import (
	"context"
	"testing"
	"time"

	"github.com/xtxerr/arraymon/internal/series"
)

// testProber returns a prober with a short timeout and no retries so
// unreachable-path tests finish quickly.
func testProber() *Prober {
	return New(Config{
		Community: "public",
		Port:      1, // nothing listens here
		Timeout:   50 * time.Millisecond,
		Retries:   0,
	})
}

func TestNewDefaults(t *testing.T) {
	p := New(Config{})

	if p.cfg.Community != "public" {
		t.Errorf("community: got %q", p.cfg.Community)
	}
	if p.cfg.Port != 161 {
		t.Errorf("port: got %d", p.cfg.Port)
	}
	if p.cfg.Timeout != 5*time.Second {
		t.Errorf("timeout: got %s", p.cfg.Timeout)
	}
	if p.cfg.Retries != 1 {
		t.Errorf("retries: got %d", p.cfg.Retries)
	}
}

func TestNewKeepsExplicitZeroRetries(t *testing.T) {
	p := New(Config{Retries: 0, Timeout: time.Second})
	if p.cfg.Retries != 0 {
		t.Errorf("retries: got %d, want 0", p.cfg.Retries)
	}
}

func TestProbeUnreachable(t *testing.T) {
	p := testProber()

	batch, err := p.Probe(context.Background(), "600A0980", "prod-array-01", []string{"127.0.0.1"})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if batch.Len() != 1 {
		t.Fatalf("points: got %d, want 1", batch.Len())
	}

	point := batch.Points[0]
	if point.Measurement != "array_probe" {
		t.Errorf("measurement: got %q", point.Measurement)
	}
	if got, _ := point.Tag("sys_id"); got != "600A0980" {
		t.Errorf("sys_id: got %q", got)
	}
	if got, _ := point.Tag("sys_name"); got != "prod-array-01" {
		t.Errorf("sys_name: got %q", got)
	}
	if got, _ := point.Tag("controller"); got != "127.0.0.1" {
		t.Errorf("controller: got %q", got)
	}

	reachable := point.Fields["reachable"]
	if reachable.Kind != series.KindBool || reachable.Bool {
		t.Errorf("reachable: got %+v, want false", reachable)
	}
	if !point.Fields["uptime_seconds"].IsAbsent() {
		t.Error("uptime_seconds should be absent when unreachable")
	}
	if !point.Fields["rtt_ms"].IsAbsent() {
		t.Error("rtt_ms should be absent when unreachable")
	}
	if !point.Fields["descr"].IsAbsent() {
		t.Error("descr should be absent when unreachable")
	}
}

func TestProbeMultipleControllers(t *testing.T) {
	p := testProber()

	batch, err := p.Probe(context.Background(), "sys", "name", []string{"127.0.0.1", "127.0.0.2"})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if batch.Len() != 2 {
		t.Fatalf("points: got %d, want 2", batch.Len())
	}

	seen := map[string]bool{}
	for _, point := range batch.Points {
		addr, _ := point.Tag("controller")
		seen[addr] = true
	}
	if !seen["127.0.0.1"] || !seen["127.0.0.2"] {
		t.Errorf("controllers probed: %v", seen)
	}
}

func TestProbeNoControllers(t *testing.T) {
	p := testProber()

	batch, err := p.Probe(context.Background(), "sys", "name", nil)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if batch.Len() != 0 {
		t.Errorf("points: got %d, want 0", batch.Len())
	}
}

func TestProbeCancelledContext(t *testing.T) {
	p := testProber()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch, err := p.Probe(ctx, "sys", "name", []string{"127.0.0.1"})
	if err == nil {
		t.Error("expected context error")
	}
	if batch.Len() != 0 {
		t.Errorf("points after cancel: got %d, want 0", batch.Len())
	}
}
