// Package constants provides centralized domain-specific constants
// for the entire arraymon application.
//
// This file consolidates the magic strings and values shared across
// packages: management-API paths, measurement names, store tiers, and
// probe health states.
package constants

// =============================================================================
// Management API paths (SANtricity-style web services)
// =============================================================================

const (
	// APILogin is the session login endpoint.
	APILogin = "/devmgr/utils/login"

	// APISystems lists the storage systems known to the management endpoint.
	APISystems = "/devmgr/v2/storage-systems"

	// Per-system resource paths; each takes the system ID.
	APIDriveStats      = "/devmgr/v2/storage-systems/%s/analysed-drive-statistics"
	APIInterfaceStats  = "/devmgr/v2/storage-systems/%s/analysed-interface-statistics"
	APISystemStats     = "/devmgr/v2/storage-systems/%s/analysed-system-statistics"
	APIVolumeStats     = "/devmgr/v2/storage-systems/%s/analysed-volume-statistics"
	APIControllerStats = "/devmgr/v2/storage-systems/%s/analysed-controller-statistics"
	APIHardware        = "/devmgr/v2/storage-systems/%s/hardware-inventory"
	APIMELEvents       = "/devmgr/v2/storage-systems/%s/mel-events"
	APIFailures        = "/devmgr/v2/storage-systems/%s/failures"

	// Raw cumulative counterparts of the analysed paths, used when a system
	// reports running totals instead of pre-computed rates. Counter fields
	// from these route through the delta engine.
	APIDriveStatsRaw      = "/devmgr/v2/storage-systems/%s/drive-statistics"
	APIInterfaceStatsRaw  = "/devmgr/v2/storage-systems/%s/interface-statistics"
	APISystemStatsRaw     = "/devmgr/v2/storage-systems/%s/system-statistics"
	APIVolumeStatsRaw     = "/devmgr/v2/storage-systems/%s/volume-statistics"
	APIControllerStatsRaw = "/devmgr/v2/storage-systems/%s/controller-statistics"
)

// =============================================================================
// Measurement names
// =============================================================================

const (
	MeasurementDrives      = "disks"
	MeasurementInterfaces  = "interface"
	MeasurementSystems     = "systems"
	MeasurementVolumes     = "volumes"
	MeasurementControllers = "controllers"
	MeasurementMEL         = "major_event_log"
	MeasurementFailures    = "failures"
	MeasurementProbe       = "array_probe"
	MeasurementHealth      = "array_health"
)

// =============================================================================
// Event log paging
// =============================================================================

const (
	// MELPageSize is the fixed number of events requested per cycle. A backlog
	// larger than one page drains over subsequent cycles.
	MELPageSize = 8192

	// MELStartSequence is the sequence used when no cursor exists yet.
	MELStartSequence = 1
)

// =============================================================================
// Local store tiers
// =============================================================================

const (
	// TierRaw holds full-resolution points for the short retention window.
	TierRaw = "raw"

	// TierDownsampled holds 5-minute aggregates for long retention.
	TierDownsampled = "m5"
)

// ValidTiers contains all valid tier names.
var ValidTiers = []string{TierRaw, TierDownsampled}

// IsValidTier checks if a tier name is valid.
func IsValidTier(tier string) bool {
	for _, t := range ValidTiers {
		if t == tier {
			return true
		}
	}
	return false
}

// =============================================================================
// Probe health states
// =============================================================================

const (
	// HealthStateUnknown indicates health has not been determined
	HealthStateUnknown = "unknown"

	// HealthStateUp indicates the controller is reachable
	HealthStateUp = "up"

	// HealthStateDown indicates the controller is unreachable
	HealthStateDown = "down"

	// HealthStateDegraded indicates some controllers are unreachable
	HealthStateDegraded = "degraded"
)

// ValidHealthStates contains all valid health state values
var ValidHealthStates = []string{HealthStateUnknown, HealthStateUp, HealthStateDown, HealthStateDegraded}

// =============================================================================
// Sink names
// =============================================================================

const (
	SinkTimescale  = "timescale"
	SinkLocalstore = "localstore"
	SinkBeats      = "beats"
)
