package collector

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xtxerr/arraymon/internal/client"
	"github.com/xtxerr/arraymon/internal/series"
)

var testSystem = System{ID: "600A098000F63714", Name: "array-01"}

// newTestAPI starts a canned management API and returns a client bound to it.
func newTestAPI(t *testing.T, mux *http.ServeMux) *client.Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	api, err := client.New(client.Config{
		Endpoint:       srv.URL,
		Username:       "monitor",
		Password:       "secret",
		ConnectTimeout: time.Second,
		ReadTimeout:    2 * time.Second,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return api
}

func fieldFloat(t *testing.T, pt series.Point, name string) float64 {
	t.Helper()
	v, ok := pt.Fields[name].AsFloat()
	if !ok {
		t.Fatalf("field %s is not numeric (kind %v)", name, pt.Fields[name].Kind)
	}
	return v
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"", ModeAnalysed, false},
		{"analysed", ModeAnalysed, false},
		{"cumulative", ModeCumulative, false},
		{"raw", ModeAnalysed, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q): err=%v, wantErr=%v", tt.input, err, tt.wantErr)
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseMode(%q): got %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestRecString(t *testing.T) {
	rec := map[string]any{
		"name":     "vol1",
		"number":   float64(42),
		"flag":     true,
		"nested":   map[string]any{},
		"fraction": 2.5,
	}
	tests := []struct {
		key  string
		want string
	}{
		{"name", "vol1"},
		{"number", "42"},
		{"fraction", "2.5"},
		{"flag", "true"},
		{"nested", ""},
		{"missing", ""},
	}
	for _, tt := range tests {
		if got := recString(rec, tt.key); got != tt.want {
			t.Errorf("recString(%q): got %q, want %q", tt.key, got, tt.want)
		}
	}
}
