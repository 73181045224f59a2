package inventory

import (
	"encoding/json"
	"fmt"

	"github.com/xtxerr/arraymon/internal/errors"
)

// hardwareInventory mirrors the subset of the hardware-inventory payload the
// registry consumes. Trays map an opaque reference to a human tray number;
// drives point at a tray reference plus a slot within it.
type hardwareInventory struct {
	Trays []struct {
		TrayRef string `json:"trayRef"`
		TrayID  int    `json:"trayId"`
	} `json:"trays"`
	Drives []struct {
		DriveRef         string `json:"driveRef"`
		PhysicalLocation struct {
			TrayRef string `json:"trayRef"`
			Slot    int    `json:"slot"`
		} `json:"physicalLocation"`
	} `json:"drives"`
}

// ParseLocations extracts the drive location map from a raw hardware
// inventory payload. Drives referencing a tray absent from the tray list are
// skipped; the skip count is returned so the caller can log it.
func ParseLocations(raw []byte) (map[string]Location, int, error) {
	var inv hardwareInventory
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, 0, errors.Wrap(errors.ErrPayloadShape, err.Error())
	}

	trays := make(map[string]int, len(inv.Trays))
	for _, t := range inv.Trays {
		trays[t.TrayRef] = t.TrayID
	}

	locations := make(map[string]Location, len(inv.Drives))
	skipped := 0
	for _, d := range inv.Drives {
		trayID, ok := trays[d.PhysicalLocation.TrayRef]
		if !ok {
			skipped++
			continue
		}
		locations[d.DriveRef] = Location{
			Tray: fmt.Sprintf("%02d", trayID),
			Slot: fmt.Sprintf("%03d", d.PhysicalLocation.Slot),
		}
	}
	return locations, skipped, nil
}
