package client

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xtxerr/arraymon/internal/constants"
	"github.com/xtxerr/arraymon/internal/errors"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		Endpoint:       srv.URL,
		Username:       "monitor",
		Password:       "secret",
		ConnectTimeout: time.Second,
		ReadTimeout:    2 * time.Second,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestGetSendsBasicAuth(t *testing.T) {
	var gotPath string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		user, pass, ok := r.BasicAuth()
		if !ok || user != "monitor" || pass != "secret" {
			t.Errorf("expected basic auth monitor/secret, got %q/%q (ok=%v)", user, pass, ok)
		}
		w.Write([]byte(`[{"volumeId":"v1"}]`))
	}))

	raw, err := c.Get(context.Background(), "/devmgr/v2/storage-systems/sys-a/analysed-volume-statistics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if gotPath != "/devmgr/v2/storage-systems/sys-a/analysed-volume-statistics" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if len(raw) == 0 {
		t.Error("expected non-empty body")
	}
}

func TestGetPreservesQueryParams(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[]`))
	}))

	_, err := c.Get(context.Background(), "/devmgr/v2/storage-systems/sys-a/mel-events?count=8192&startSequenceNumber=101")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if gotQuery != "count=8192&startSequenceNumber=101" {
		t.Errorf("unexpected query %q", gotQuery)
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status    int
		sentinel  error
		transient bool
	}{
		{http.StatusUnauthorized, errors.ErrUnauthorized, false},
		{http.StatusForbidden, errors.ErrUnauthorized, false},
		{http.StatusNotFound, errors.ErrNotFound, false},
		{http.StatusInternalServerError, errors.ErrTransientNetwork, true},
		{http.StatusBadGateway, errors.ErrTransientNetwork, true},
		{http.StatusTeapot, errors.ErrInternal, false},
	}

	for _, tt := range tests {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		_, err := c.Get(context.Background(), "/devmgr/v2/storage-systems")
		if err == nil {
			t.Errorf("status %d: expected error", tt.status)
			continue
		}
		if !errors.Is(err, tt.sentinel) {
			t.Errorf("status %d: expected %v, got %v", tt.status, tt.sentinel, err)
		}
		if errors.IsTransient(err) != tt.transient {
			t.Errorf("status %d: expected transient=%v", tt.status, tt.transient)
		}
	}
}

func TestTimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c, err := New(Config{
		Endpoint:       srv.URL,
		ConnectTimeout: time.Second,
		ReadTimeout:    50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = c.Get(context.Background(), "/devmgr/v2/storage-systems")
	if err == nil {
		t.Fatal("expected timeout")
	}
	if !errors.Is(err, errors.ErrTimeout) {
		t.Errorf("expected timeout error, got %v", err)
	}
	if !errors.IsTransient(err) {
		t.Error("timeout should classify as transient")
	}
}

func TestConnectionRefusedIsTransient(t *testing.T) {
	// Grab a port that nothing listens on.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	c, err := New(Config{Endpoint: "http://" + addr, ConnectTimeout: time.Second, ReadTimeout: time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = c.Get(context.Background(), "/devmgr/v2/storage-systems")
	if err == nil {
		t.Fatal("expected connection failure")
	}
	if !errors.IsTransient(err) {
		t.Errorf("refused connection should classify as transient, got %v", err)
	}
}

func TestLoginEstablishesSession(t *testing.T) {
	var sawCookie bool
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == constants.APILogin {
			http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc123"})
			w.WriteHeader(http.StatusOK)
			return
		}
		if cookie, err := r.Cookie("JSESSIONID"); err == nil && cookie.Value == "abc123" {
			sawCookie = true
		}
		w.Write([]byte(`[]`))
	}))

	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := c.Get(context.Background(), "/devmgr/v2/storage-systems"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if !sawCookie {
		t.Error("session cookie was not replayed on the follow-up request")
	}
}

func TestGetJSONRejectsBadPayload(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{truncated`))
	}))

	var v map[string]any
	err := c.GetJSON(context.Background(), "/devmgr/v2/storage-systems", &v)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if !errors.Is(err, errors.ErrPayloadShape) {
		t.Errorf("expected payload shape error, got %v", err)
	}
}

func TestNewRejectsBadEndpoints(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, errors.ErrInvalidEndpoint) {
		t.Errorf("empty endpoint: expected invalid endpoint error, got %v", err)
	}
	if _, err := New(Config{Endpoint: "ftp://array:21"}); !errors.Is(err, errors.ErrInvalidEndpoint) {
		t.Errorf("bad scheme: expected invalid endpoint error, got %v", err)
	}
}

func TestStatsPath(t *testing.T) {
	got := StatsPath(constants.APIVolumeStats, "600A098000F63714")
	want := "/devmgr/v2/storage-systems/600A098000F63714/analysed-volume-statistics"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
