package mapper

import (
	"testing"
	"time"

	"github.com/xtxerr/arraymon/internal/catalog"
	"github.com/xtxerr/arraymon/internal/series"
)

func volumeTags(rec Record) map[string]string {
	name, _ := rec["volumeName"].(string)
	return map[string]string{
		"sys_id":   "600A098000F63714",
		"sys_name": "array-01",
		"vol_name": name,
	}
}

func TestMapNeverDropsDeclaredFields(t *testing.T) {
	m := New()
	spec := catalog.MustLookup(catalog.ClassVolume)

	// Deliberately sparse record: most declared fields missing.
	rec := Record{
		"volumeName": "db-data-01",
		"readIOps":   512.0,
	}

	p := m.Map(spec, rec, volumeTags, time.Now())

	if len(p.Fields) != len(spec.Fields) {
		t.Fatalf("expected %d fields, got %d", len(spec.Fields), len(p.Fields))
	}
	for _, name := range spec.FieldNames() {
		if _, ok := p.Fields[name]; !ok {
			t.Errorf("declared field %s dropped from point", name)
		}
	}

	if v := p.Fields["readIOps"]; v.Kind != series.KindFloat || v.Num != 512.0 {
		t.Errorf("readIOps: expected 512.0, got %+v", v)
	}
	if v := p.Fields["writeIOps"]; !v.IsAbsent() {
		t.Errorf("writeIOps: expected absent sentinel, got %+v", v)
	}
}

func TestMapCoercionNeverRaises(t *testing.T) {
	m := New()
	spec := catalog.MustLookup(catalog.ClassVolume)

	tests := []struct {
		name     string
		raw      any
		expected series.FieldValue
	}{
		{"native float", 42.5, series.Float(42.5)},
		{"numeric string", "1500", series.Float(1500)},
		{"numeric string with spaces", "  7.25  ", series.Float(7.25)},
		{"garbage string", "optimal", series.Absent()},
		{"empty string", "", series.Absent()},
		{"boolean", true, series.Absent()},
		{"null", nil, series.Absent()},
		{"nested object", map[string]any{"x": 1.0}, series.Absent()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Record{"volumeName": "v1", "readIOps": tt.raw}
			p := m.Map(spec, rec, volumeTags, time.Now())
			got := p.Fields["readIOps"]
			if got.Kind != tt.expected.Kind || got.Num != tt.expected.Num {
				t.Errorf("expected %+v, got %+v", tt.expected, got)
			}
		})
	}
}

func TestMapTextCoercion(t *testing.T) {
	m := New()
	spec := catalog.MustLookup(catalog.ClassMEL)

	rec := Record{
		"description":    "Drive returned to optimal",
		"location":       map[string]any{"weird": true},
		"id":             14250.0,
		"sequenceNumber": 14250.0,
	}

	p := m.Map(spec, rec, nil, time.Now())

	if v := p.Fields["description"]; v.Str != "Drive returned to optimal" {
		t.Errorf("description: got %+v", v)
	}
	if v := p.Fields["location"]; !v.IsAbsent() {
		t.Errorf("location: expected absent for object value, got %+v", v)
	}
	if v := p.Fields["id"]; v.Str != "14250" {
		t.Errorf("id: expected formatted number, got %+v", v)
	}
	if v := p.Fields["sequenceNumber"]; v.Num != 14250.0 {
		t.Errorf("sequenceNumber: got %+v", v)
	}
}

func TestMapTagOrderDeclared(t *testing.T) {
	m := New()
	spec := catalog.MustLookup(catalog.ClassVolume)

	// Extractor returns values in no particular order; mapper owns ordering.
	p := m.Map(spec, Record{"volumeName": "v1"}, volumeTags, time.Now())

	expected := "sys_id=600A098000F63714,sys_name=array-01,vol_name=v1"
	if p.TagString() != expected {
		t.Errorf("expected %s, got %s", expected, p.TagString())
	}
}

func TestMapMissingTagKeepsOrder(t *testing.T) {
	m := New()
	spec := catalog.MustLookup(catalog.ClassVolume)

	partial := func(rec Record) map[string]string {
		return map[string]string{"sys_id": "A"}
	}
	p := m.Map(spec, Record{}, partial, time.Now())

	if len(p.Tags) != len(spec.TagKeys) {
		t.Fatalf("expected %d tags, got %d", len(spec.TagKeys), len(p.Tags))
	}
	if p.TagString() != "sys_id=A,sys_name=,vol_name=" {
		t.Errorf("unexpected tag string %s", p.TagString())
	}
}

func TestDecodePayloadShapes(t *testing.T) {
	list, err := DecodePayload([]byte(`[{"a":1},{"a":2}]`))
	if err != nil {
		t.Fatalf("list decode: %v", err)
	}
	if !list.IsList() || list.Len() != 2 {
		t.Errorf("expected list of 2, got isList=%v len=%d", list.IsList(), list.Len())
	}

	single, err := DecodePayload([]byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("object decode: %v", err)
	}
	if single.IsList() || single.Len() != 1 {
		t.Errorf("expected single record, got isList=%v len=%d", single.IsList(), single.Len())
	}

	// Both shapes unify to the same record content.
	if list.Records()[0]["a"] != 1.0 || single.Records()[0]["a"] != 1.0 {
		t.Error("unified records differ from payload content")
	}
}

func TestDecodePayloadRejectsScalars(t *testing.T) {
	for _, body := range []string{`42`, `"text"`, `[1,2,3]`, `not json`} {
		if _, err := DecodePayload([]byte(body)); err == nil {
			t.Errorf("body %s: expected payload shape error", body)
		}
	}
}

func TestResolveDottedPath(t *testing.T) {
	rec := Record{
		"top": "level",
		"currentStatistics": map[string]any{
			"readOps": 1000.0,
			"nested":  map[string]any{"deep": true},
		},
		"literal.dot": "exists",
	}

	tests := []struct {
		name  string
		path  string
		want  any
		found bool
	}{
		{"top level", "top", "level", true},
		{"one level", "currentStatistics.readOps", 1000.0, true},
		{"two levels", "currentStatistics.nested.deep", true, true},
		{"literal dotted key wins", "literal.dot", "exists", true},
		{"missing top", "absent", nil, false},
		{"missing nested", "currentStatistics.absent", nil, false},
		{"descend through scalar", "top.deeper", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(rec, tt.path)
			if ok != tt.found {
				t.Fatalf("found: expected %v, got %v", tt.found, ok)
			}
			if ok && got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
