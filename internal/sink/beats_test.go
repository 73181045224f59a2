package sink

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/xtxerr/arraymon/internal/errors"
	"github.com/xtxerr/arraymon/internal/series"
)

// unreachableEndpoint returns an address nothing listens on.
func unreachableEndpoint(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestBeatsSinkSkipsUnlistedMeasurements(t *testing.T) {
	// The endpoint is unreachable; a dial attempt would fail loudly.
	s := NewBeatsSink(unreachableEndpoint(t), time.Second, []string{"major_event_log", "failures"})

	err := s.WriteBatch(context.Background(), []series.Point{testPoint("volumes")})
	if err != nil {
		t.Fatalf("filtered batch must not dial: %v", err)
	}
}

func TestBeatsSinkDialFailure(t *testing.T) {
	s := NewBeatsSink(unreachableEndpoint(t), 100*time.Millisecond, []string{"failures"})

	err := s.WriteBatch(context.Background(), []series.Point{testPoint("failures")})
	if err == nil {
		t.Fatal("expected dial failure")
	}
	if !errors.Is(err, errors.ErrBackendWrite) {
		t.Errorf("expected backend write error, got %v", err)
	}

	// The failed dial leaves the sink ready to retry on the next batch.
	err = s.WriteBatch(context.Background(), []series.Point{testPoint("failures")})
	if err == nil {
		t.Fatal("expected the retry to fail against the dead endpoint")
	}
}

func TestBeatsSinkCloseWithoutConnection(t *testing.T) {
	s := NewBeatsSink(unreachableEndpoint(t), time.Second, nil)
	if err := s.Close(); err != nil {
		t.Fatalf("close without connection: %v", err)
	}
}

func TestBeatsEventShape(t *testing.T) {
	ts := time.Unix(1750000000, 0).UTC()
	pt := series.New("failures", ts)
	pt.AddTag("sys_id", "sys-a")
	pt.AddTag("failure_type", "drivePostFail")
	pt.SetField("active", series.Bool(true))

	ev := beatsEvent(&pt)
	if ev["measurement"] != "failures" {
		t.Errorf("measurement: got %v", ev["measurement"])
	}
	if ev["@timestamp"] != ts.Format(time.RFC3339) {
		t.Errorf("@timestamp: got %v", ev["@timestamp"])
	}
	tags := ev["tags"].(map[string]interface{})
	if tags["failure_type"] != "drivePostFail" {
		t.Errorf("tags: got %v", tags)
	}
	fields := ev["fields"].(map[string]interface{})
	if fields["active"] != true {
		t.Errorf("fields: got %v", fields)
	}
}
