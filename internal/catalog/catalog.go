// Package catalog declares the static metric catalog: for every metric class,
// the field names extracted from the management API, the declared tag order,
// and the polling cadence tier the class belongs to.
//
// The catalog is the contract the mapper enforces: a field listed here is
// always present in emitted points, absent-sentinel or not. Field lists match
// the analysed-statistics payloads of SANtricity-style arrays.
package catalog

import (
	"fmt"

	"github.com/xtxerr/arraymon/internal/constants"
)

// Class enumerates the metric classes the engine collects.
type Class int

const (
	ClassDrive Class = iota
	ClassInterface
	ClassSystem
	ClassVolume
	ClassController
	ClassMEL
	ClassFailure
)

// String returns the class name used in logs and scheduler state.
func (c Class) String() string {
	switch c {
	case ClassDrive:
		return "drive"
	case ClassInterface:
		return "interface"
	case ClassSystem:
		return "system"
	case ClassVolume:
		return "volume"
	case ClassController:
		return "controller"
	case ClassMEL:
		return "mel"
	case ClassFailure:
		return "failure"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// ParseClass maps a class name back to its Class.
func ParseClass(s string) (Class, error) {
	for _, c := range AllClasses() {
		if c.String() == s {
			return c, nil
		}
	}
	return ClassDrive, fmt.Errorf("unknown metric class %q", s)
}

// Cadence groups classes by polling tier; each tier has one configured
// interval.
type Cadence int

const (
	// CadencePerformance covers live performance counters (60-600s).
	CadencePerformance Cadence = iota
	// CadenceController covers controller statistics (default hourly).
	CadenceController
	// CadenceHardware covers drive/hardware inventory (default weekly).
	CadenceHardware
	// CadenceEvents covers major-event-log ingestion.
	CadenceEvents
	// CadenceFailures covers failure-state reconciliation.
	CadenceFailures
)

// String returns the cadence tier name.
func (c Cadence) String() string {
	switch c {
	case CadencePerformance:
		return "performance"
	case CadenceController:
		return "controller"
	case CadenceHardware:
		return "hardware"
	case CadenceEvents:
		return "events"
	case CadenceFailures:
		return "failures"
	default:
		return fmt.Sprintf("cadence(%d)", int(c))
	}
}

// Field declares one extracted field. Counter fields hold cumulative totals
// when the array reports raw counters; those route through the delta engine.
// Gauge and text fields pass through the mapper unchanged.
type Field struct {
	Name    string
	Counter bool
	Text    bool
}

// Spec is the full declaration for one metric class.
type Spec struct {
	Class       Class
	Measurement string
	// StatsPath is the API path template taking the system ID; empty for
	// classes collected through dedicated endpoints (MEL, failures).
	StatsPath string
	// RawStatsPath is the cumulative-counter variant of StatsPath. Empty for
	// classes that have no raw endpoint.
	RawStatsPath string
	Cadence      Cadence
	// TagKeys is the declared tag order. Points for this class carry exactly
	// these keys in exactly this order.
	TagKeys []string
	Fields  []Field
}

// FieldNames returns the declared field names in declared order.
func (s Spec) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// CounterFields returns the names of cumulative-counter fields.
func (s Spec) CounterFields() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Counter {
			names = append(names, f.Name)
		}
	}
	return names
}

// gauges builds a Field list of plain gauges.
func gauges(names ...string) []Field {
	fields := make([]Field, len(names))
	for i, n := range names {
		fields[i] = Field{Name: n}
	}
	return fields
}

// counters marks the named fields as cumulative counters in an existing list.
func counters(fields []Field, names ...string) []Field {
	for _, n := range names {
		for i := range fields {
			if fields[i].Name == n {
				fields[i].Counter = true
			}
		}
	}
	return fields
}

var specs = map[Class]Spec{
	ClassDrive: {
		Class:        ClassDrive,
		Measurement:  constants.MeasurementDrives,
		StatsPath:    constants.APIDriveStats,
		RawStatsPath: constants.APIDriveStatsRaw,
		Cadence:      CadenceHardware,
		TagKeys:      []string{"sys_id", "sys_name", "sys_tray", "sys_tray_slot"},
		Fields: counters(gauges(
			"averageReadOpSize",
			"averageWriteOpSize",
			"combinedIOps",
			"combinedResponseTime",
			"combinedThroughput",
			"otherIOps",
			"readIOps",
			"readOps",
			"readPhysicalIOps",
			"readResponseTime",
			"readThroughput",
			"writeIOps",
			"writeOps",
			"writePhysicalIOps",
			"writeResponseTime",
			"writeThroughput",
		), "readOps", "writeOps"),
	},
	ClassInterface: {
		Class:        ClassInterface,
		Measurement:  constants.MeasurementInterfaces,
		StatsPath:    constants.APIInterfaceStats,
		RawStatsPath: constants.APIInterfaceStatsRaw,
		Cadence:      CadencePerformance,
		TagKeys:      []string{"sys_id", "sys_name", "interface_id", "channel_type"},
		Fields: counters(gauges(
			"averageReadOpSize",
			"averageWriteOpSize",
			"channelErrorCounts",
			"combinedIOps",
			"combinedResponseTime",
			"combinedThroughput",
			"otherIOps",
			"queueDepthMax",
			"queueDepthTotal",
			"readIOps",
			"readOps",
			"readResponseTime",
			"readThroughput",
			"writeIOps",
			"writeOps",
			"writeResponseTime",
			"writeThroughput",
		), "channelErrorCounts", "readOps", "writeOps"),
	},
	ClassSystem: {
		Class:        ClassSystem,
		Measurement:  constants.MeasurementSystems,
		StatsPath:    constants.APISystemStats,
		RawStatsPath: constants.APISystemStatsRaw,
		Cadence:      CadencePerformance,
		TagKeys:      []string{"sys_id", "sys_name"},
		Fields: counters(gauges(
			"averageReadOpSize",
			"averageWriteOpSize",
			"combinedIOps",
			"combinedResponseTime",
			"combinedThroughput",
			"cpuAvgUtilization",
			"maxCpuUtilization",
			"otherIOps",
			"readIOps",
			"readOps",
			"readPhysicalIOps",
			"readResponseTime",
			"readThroughput",
			"writeIOps",
			"writeOps",
			"writePhysicalIOps",
			"writeResponseTime",
			"writeThroughput",
		), "readOps", "writeOps"),
	},
	ClassVolume: {
		Class:        ClassVolume,
		Measurement:  constants.MeasurementVolumes,
		StatsPath:    constants.APIVolumeStats,
		RawStatsPath: constants.APIVolumeStatsRaw,
		Cadence:      CadencePerformance,
		TagKeys:      []string{"sys_id", "sys_name", "vol_name"},
		Fields: counters(gauges(
			"averageReadOpSize",
			"averageWriteOpSize",
			"combinedIOps",
			"combinedResponseTime",
			"combinedThroughput",
			"flashCacheHitPct",
			"flashCacheReadHitBytes",
			"flashCacheReadHitOps",
			"flashCacheReadResponseTime",
			"flashCacheReadThroughput",
			"otherIOps",
			"queueDepthMax",
			"queueDepthTotal",
			"readCacheUtilization",
			"readHitBytes",
			"readHitOps",
			"readIOps",
			"readOps",
			"readPhysicalIOps",
			"readResponseTime",
			"readThroughput",
			"writeCacheUtilization",
			"writeHitBytes",
			"writeHitOps",
			"writeIOps",
			"writeOps",
			"writePhysicalIOps",
			"writeResponseTime",
			"writeThroughput",
		), "readOps", "writeOps", "readHitOps", "writeHitOps", "readHitBytes", "writeHitBytes"),
	},
	ClassController: {
		Class:        ClassController,
		Measurement:  constants.MeasurementControllers,
		StatsPath:    constants.APIControllerStats,
		RawStatsPath: constants.APIControllerStatsRaw,
		Cadence:      CadenceController,
		TagKeys:      []string{"sys_id", "sys_name", "controller_id"},
		Fields: counters(gauges(
			"averageReadOpSize",
			"averageWriteOpSize",
			"combinedIOps",
			"combinedResponseTime",
			"combinedThroughput",
			"cpuAvgUtilization",
			"maxCpuUtilization",
			"otherIOps",
			"readIOps",
			"readOps",
			"readPhysicalIOps",
			"readResponseTime",
			"readThroughput",
			"writeIOps",
			"writeOps",
			"writePhysicalIOps",
			"writeResponseTime",
			"writeThroughput",
		), "readOps", "writeOps"),
	},
	ClassMEL: {
		Class:       ClassMEL,
		Measurement: constants.MeasurementMEL,
		StatsPath:   constants.APIMELEvents,
		Cadence:     CadenceEvents,
		TagKeys:     []string{"sys_id", "sys_name", "event_type", "category", "priority", "critical"},
		Fields: []Field{
			{Name: "description", Text: true},
			{Name: "location", Text: true},
			{Name: "id", Text: true},
			{Name: "sequenceNumber"},
		},
	},
	ClassFailure: {
		Class:       ClassFailure,
		Measurement: constants.MeasurementFailures,
		StatsPath:   constants.APIFailures,
		Cadence:     CadenceFailures,
		TagKeys:     []string{"sys_id", "sys_name", "failure_type", "object_ref", "object_type"},
		Fields: []Field{
			{Name: "active"},
		},
	},
}

// Lookup returns the declaration for a class.
func Lookup(c Class) (Spec, bool) {
	s, ok := specs[c]
	return s, ok
}

// MustLookup returns the declaration for a class and panics on an unknown
// class. Class values come from the compiled-in enum, so a miss is a
// programming error.
func MustLookup(c Class) Spec {
	s, ok := specs[c]
	if !ok {
		panic(fmt.Sprintf("catalog: unknown class %v", c))
	}
	return s
}

// AllClasses returns every class in scheduling order: cheap performance
// classes first, then events/failures, then the slow hardware tiers.
func AllClasses() []Class {
	return []Class{
		ClassVolume,
		ClassSystem,
		ClassInterface,
		ClassMEL,
		ClassFailure,
		ClassController,
		ClassDrive,
	}
}

// PerformanceClasses returns the classes whose counter fields route through
// the delta engine when the array reports cumulative totals.
func PerformanceClasses() []Class {
	return []Class{ClassVolume, ClassSystem, ClassInterface, ClassController, ClassDrive}
}
