// Package admin serves the operational HTTP surface: liveness, the runtime
// status snapshot, Prometheus metrics, and range reads against the embedded
// store. It is read-only; nothing on it mutates collection state.
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xtxerr/arraymon/config"
	"github.com/xtxerr/arraymon/internal/logging"
	"github.com/xtxerr/arraymon/internal/manager"
	"github.com/xtxerr/arraymon/internal/storage/query"
	"github.com/xtxerr/arraymon/internal/storage/types"
	"github.com/xtxerr/arraymon/internal/telemetry"
)

// Config holds admin server configuration.
type Config struct {
	// Manager is the collection manager the surface reports on (required).
	Manager *manager.Manager

	// Metrics supplies the registry behind /metrics. Nil leaves the
	// endpoint unregistered.
	Metrics *telemetry.Metrics

	// Listen is the address to listen on, e.g. ":9090".
	Listen string

	// ShutdownTimeout bounds the graceful drain of in-flight requests.
	ShutdownTimeout time.Duration
}

// Server is the admin HTTP server.
type Server struct {
	cfg Config
	mgr *manager.Manager
	mux *http.ServeMux
	srv *http.Server
	log *slog.Logger
}

// New creates the server and wires its routes.
func New(cfg Config) *Server {
	if cfg.Listen == "" {
		cfg.Listen = config.DefaultAdminListen
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = config.DefaultAdminShutdownTimeout
	}

	s := &Server{
		cfg: cfg,
		mgr: cfg.Manager,
		mux: http.NewServeMux(),
		log: logging.Component("admin"),
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /query", s.handleQuery)
	if reg := cfg.Metrics.Registry(); reg != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	s.srv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the route table, primarily for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Run serves until Shutdown is called. It blocks.
func (s *Server) Run() error {
	s.log.Info("listening", "address", s.cfg.Listen)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// =============================================================================
// Handlers
// =============================================================================

// handleHealthz answers 200 while the manager runs. Load balancers and
// systemd watchdogs key off this; anything but running is unhealthy.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	state := s.mgr.State()
	if state != manager.StateRunning {
		http.Error(w, state, http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

// handleStatus serves the full runtime snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.mgr.Status()); err != nil {
		s.log.Error("status encode failed", "error", err)
	}
}

// queryRow is the wire shape of one store row.
type queryRow struct {
	Measurement string    `json:"measurement"`
	Tags        string    `json:"tags"`
	Field       string    `json:"field"`
	Timestamp   time.Time `json:"ts"`
	Kind        string    `json:"kind"`
	Value       float64   `json:"value"`
	Text        string    `json:"text,omitempty"`
}

// queryResponse is the /query envelope.
type queryResponse struct {
	Measurement string     `json:"measurement"`
	From        time.Time  `json:"from"`
	To          time.Time  `json:"to"`
	Count       int        `json:"count"`
	Rows        []queryRow `json:"rows"`
}

// handleQuery runs a range read against the embedded store.
//
// Parameters: measurement (required), from and to (RFC 3339 or Unix
// seconds, default is the last hour), tags (substring filter on the
// flattened tag set), field, and limit.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	measurement := params.Get("measurement")
	if measurement == "" {
		http.Error(w, "measurement is required", http.StatusBadRequest)
		return
	}

	now := time.Now()
	from, err := parseTime(params.Get("from"), now.Add(-time.Hour))
	if err != nil {
		http.Error(w, "from: "+err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTime(params.Get("to"), now)
	if err != nil {
		http.Error(w, "to: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "empty time range", http.StatusBadRequest)
		return
	}

	limit := 1000
	if raw := params.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
	}

	store := s.mgr.Store()
	if store == nil {
		http.Error(w, "local store disabled", http.StatusServiceUnavailable)
		return
	}

	rows, err := store.QueryMeasurement(r.Context(), query.MeasurementQuery{
		Measurement: measurement,
		TagContains: params.Get("tags"),
		Field:       params.Get("field"),
		StartTime:   from,
		EndTime:     to,
		Limit:       limit,
	})
	if err != nil {
		s.log.Error("store query failed", "measurement", measurement, "error", err)
		http.Error(w, "query failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := queryResponse{
		Measurement: measurement,
		From:        from,
		To:          to,
		Count:       len(rows),
		Rows:        make([]queryRow, 0, len(rows)),
	}
	for i := range rows {
		resp.Rows = append(resp.Rows, rowJSON(&rows[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error("query encode failed", "error", err)
	}
}

func rowJSON(r *types.Row) queryRow {
	out := queryRow{
		Measurement: r.Measurement,
		Tags:        r.Tags,
		Field:       r.Field,
		Timestamp:   r.TimestampTime().UTC(),
		Kind:        r.Kind.String(),
		Value:       r.Value,
	}
	if r.Kind == types.ValueKindText {
		out.Text = r.TextValue
	}
	return out
}

// parseTime accepts RFC 3339 or Unix seconds.
func parseTime(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0), nil
}
