package collector

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/xtxerr/arraymon/internal/faults"
)

func TestFailureCollectorTransitions(t *testing.T) {
	var payload string

	mux := http.NewServeMux()
	mux.HandleFunc("/devmgr/v2/storage-systems/"+testSystem.ID+"/failures",
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, payload)
		})
	api := newTestAPI(t, mux)

	c := NewFailureCollector(api, faults.NewReconciler(nil))

	// A new failure appears: one activation point.
	payload = `[{"failureType": "drivePostFail", "objectRef": "drive-1", "objectType": "drive"}]`
	batch, err := c.Collect(context.Background(), testSystem)
	if err != nil {
		t.Fatalf("first collect: %v", err)
	}
	if batch == nil || batch.Len() != 1 {
		t.Fatalf("expected 1 activation point, got %v", batch)
	}

	pt := batch.Points[0]
	if pt.Measurement != "failures" {
		t.Errorf("measurement: got %q", pt.Measurement)
	}
	want := "sys_id=" + testSystem.ID + ",sys_name=array-01,failure_type=drivePostFail,object_ref=drive-1,object_type=drive"
	if got := pt.TagString(); got != want {
		t.Errorf("tag string: got %q, want %q", got, want)
	}
	if !pt.Fields["active"].Bool {
		t.Error("activation point should carry active=true")
	}

	// The failure clears: one resolution point.
	payload = `[]`
	batch, err = c.Collect(context.Background(), testSystem)
	if err != nil {
		t.Fatalf("second collect: %v", err)
	}
	if batch == nil || batch.Len() != 1 {
		t.Fatalf("expected 1 resolution point, got %v", batch)
	}
	if batch.Points[0].Fields["active"].Bool {
		t.Error("resolution point should carry active=false")
	}

	// Identical payload short-circuits: no points, no error.
	batch, err = c.Collect(context.Background(), testSystem)
	if err != nil {
		t.Fatalf("third collect: %v", err)
	}
	if batch != nil {
		t.Errorf("unchanged payload should produce nothing, got %d points", batch.Len())
	}
}

func TestParseReported(t *testing.T) {
	raw := []byte(`[
		{"failureType": "drivePostFail", "objectRef": "d1", "objectType": "drive"},
		{"failureType": "batteryFail", "objectRef": "b1", "objectType": "battery", "active": "false"},
		{"failureType": "fanFail", "objectRef": "f1", "objectType": "fan", "active": true},
		{"objectRef": "nameless", "objectType": "unknown"}
	]`)

	reported, err := parseReported("sys-a", raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(reported) != 2 {
		t.Fatalf("expected 2 reported tuples, got %d", len(reported))
	}
	if reported[0].FailureType != "drivePostFail" || reported[1].FailureType != "fanFail" {
		t.Errorf("unexpected tuples: %+v", reported)
	}
	for _, rec := range reported {
		if rec.SysID != "sys-a" {
			t.Errorf("expected sys-a, got %q", rec.SysID)
		}
	}
}

func TestParseReportedBadPayload(t *testing.T) {
	if _, err := parseReported("sys-a", []byte(`"scalar"`)); err == nil {
		t.Fatal("expected shape error")
	}
}
