// Package mapper converts raw management-API records into normalized points.
//
// The mapper owns the "never drop a declared field" contract: for every field
// name in a class's catalog, the emitted point carries that key. Values the
// payload omits, or values that cannot be coerced, become the typed absent
// sentinel and are logged, never raised. Tags are written in the catalog's
// declared order so records for the same entity serialize identically across
// cycles.
package mapper

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/arraymon/internal/catalog"
	"github.com/xtxerr/arraymon/internal/logging"
	"github.com/xtxerr/arraymon/internal/series"
)

// Record is one decoded JSON record from the API.
type Record map[string]any

// TagFunc derives the tag values for one record. The returned map is keyed by
// the catalog's declared tag keys; the mapper owns the ordering. Extractors
// needing side lookups (drive tray/slot locations) close over their resolver.
type TagFunc func(rec Record) map[string]string

// Mapper converts records to points. Safe for concurrent use.
type Mapper struct {
	log *slog.Logger
}

// New creates a Mapper.
func New() *Mapper {
	return &Mapper{
		log: logging.Component("mapper"),
	}
}

// Map converts one raw record into a Point for the given class.
//
// Every declared field appears in the result. Coercion never fails the call:
// malformed values degrade to the absent sentinel with a log line. Tag values
// the extractor does not supply are written as empty strings so the declared
// tag order stays intact.
func (m *Mapper) Map(spec catalog.Spec, rec Record, tags TagFunc, ts time.Time) series.Point {
	p := series.New(spec.Measurement, ts)

	var tagValues map[string]string
	if tags != nil {
		tagValues = tags(rec)
	}
	for _, key := range spec.TagKeys {
		v, ok := tagValues[key]
		if !ok {
			m.log.Debug("tag value missing", "measurement", spec.Measurement, "tag", key)
		}
		p.AddTag(key, v)
	}

	for _, field := range spec.Fields {
		raw, ok := Resolve(rec, field.Name)
		if !ok {
			p.SetField(field.Name, series.Absent())
			continue
		}
		if field.Text {
			p.SetField(field.Name, m.coerceText(spec.Measurement, field.Name, raw))
		} else {
			p.SetField(field.Name, m.coerceNumeric(spec.Measurement, field.Name, raw))
		}
	}

	return p
}

// MapAll converts every record of a payload, appending to dst.
func (m *Mapper) MapAll(spec catalog.Spec, payload Payload, tags TagFunc, ts time.Time, dst *series.Batch) {
	for _, rec := range payload.Records() {
		dst.Add(m.Map(spec, rec, tags, ts))
	}
}

// coerceNumeric converts a raw JSON value to a float field. Strings holding
// numbers parse; everything else degrades to absent with a log line.
func (m *Mapper) coerceNumeric(measurement, field string, raw any) series.FieldValue {
	switch v := raw.(type) {
	case float64:
		return series.Float(v)
	case int64:
		return series.Float(float64(v))
	case int:
		return series.Float(float64(v))
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return series.Absent()
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			m.log.Warn("non-numeric value degraded to absent",
				"measurement", measurement, "field", field, "value", v)
			return series.Absent()
		}
		return series.Float(f)
	case bool:
		m.log.Warn("boolean in numeric field degraded to absent",
			"measurement", measurement, "field", field)
		return series.Absent()
	case nil:
		return series.Absent()
	default:
		m.log.Warn("unsupported value shape degraded to absent",
			"measurement", measurement, "field", field)
		return series.Absent()
	}
}

// coerceText converts a raw JSON value to a string field.
func (m *Mapper) coerceText(measurement, field string, raw any) series.FieldValue {
	switch v := raw.(type) {
	case string:
		return series.String(v)
	case float64:
		return series.String(strconv.FormatFloat(v, 'f', -1, 64))
	case bool:
		return series.String(strconv.FormatBool(v))
	case nil:
		return series.Absent()
	default:
		m.log.Warn("unsupported value shape degraded to absent",
			"measurement", measurement, "field", field)
		return series.Absent()
	}
}
