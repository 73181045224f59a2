package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xtxerr/arraymon/internal/loader"
	"github.com/xtxerr/arraymon/internal/manager"
	"github.com/xtxerr/arraymon/internal/telemetry"
)

// testManager builds a manager with every backend disabled. The endpoint
// points at a closed loopback port, so logins and collection cycles fail
// fast without touching the network.
func testManager(t *testing.T) *manager.Manager {
	t.Helper()
	cfg := loader.DefaultConfig()
	cfg.Systems = []loader.SystemConfig{{
		ID:       "600A098000F63714000000005E79C888",
		Name:     "array-lab-01",
		API:      "https://127.0.0.1:1",
		Username: "monitor",
		Password: "secret",
	}}
	cfg.Sinks.Localstore.Enabled = false

	m, err := manager.New(cfg, nil)
	if err != nil {
		t.Fatalf("manager.New: %v", err)
	}
	return m
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthzStopped(t *testing.T) {
	s := New(Config{Manager: testManager(t)})

	rec := get(t, s.Handler(), "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), manager.StateStopped) {
		t.Errorf("body = %q, want the lifecycle state", rec.Body.String())
	}
}

func TestHealthzRunning(t *testing.T) {
	m := testManager(t)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("manager.Start: %v", err)
	}
	defer m.Stop()

	s := New(Config{Manager: m})
	rec := get(t, s.Handler(), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok\n" {
		t.Errorf("body = %q, want ok", rec.Body.String())
	}
}

func TestHealthzMethod(t *testing.T) {
	s := New(Config{Manager: testManager(t)})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestStatusSnapshot(t *testing.T) {
	s := New(Config{Manager: testManager(t)})

	rec := get(t, s.Handler(), "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var st manager.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.State != manager.StateStopped {
		t.Errorf("state = %q, want %q", st.State, manager.StateStopped)
	}
	if len(st.Systems) != 1 {
		t.Fatalf("systems = %d, want 1", len(st.Systems))
	}
	if st.Systems[0].Name != "array-lab-01" {
		t.Errorf("system name = %q", st.Systems[0].Name)
	}
}

func TestQueryWithoutStore(t *testing.T) {
	s := New(Config{Manager: testManager(t)})

	rec := get(t, s.Handler(), "/query?measurement=volumes")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestQueryValidation(t *testing.T) {
	s := New(Config{Manager: testManager(t)})

	// Parameter errors answer 400 before the store is consulted.
	tests := []struct {
		name   string
		target string
	}{
		{"missing measurement", "/query"},
		{"bad from", "/query?measurement=volumes&from=yesterday"},
		{"bad to", "/query?measurement=volumes&to=tomorrow"},
		{"inverted range", "/query?measurement=volumes&from=2000&to=1000"},
		{"bad limit", "/query?measurement=volumes&limit=-5"},
	}
	for _, tt := range tests {
		rec := get(t, s.Handler(), tt.target)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tt.name, rec.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := New(Config{Manager: testManager(t), Metrics: telemetry.New()})

	rec := get(t, s.Handler(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics body missing runtime collectors")
	}
}

func TestMetricsUnregisteredWithoutTelemetry(t *testing.T) {
	s := New(Config{Manager: testManager(t)})

	rec := get(t, s.Handler(), "/metrics")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestParseTime(t *testing.T) {
	fallback := time.Unix(1000, 0)

	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{"empty uses fallback", "", fallback, false},
		{"rfc3339", "2026-08-25T10:00:00Z", time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC), false},
		{"unix seconds", "1750000000", time.Unix(1750000000, 0), false},
		{"garbage", "yesterday", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := parseTime(tt.in, fallback)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}
