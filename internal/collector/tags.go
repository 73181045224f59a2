package collector

import (
	"strconv"

	"github.com/xtxerr/arraymon/internal/catalog"
	"github.com/xtxerr/arraymon/internal/inventory"
	"github.com/xtxerr/arraymon/internal/mapper"
)

// recString pulls a tag value out of a raw record, rendering the scalar
// representations the API mixes: strings, numbers, and booleans.
func recString(rec mapper.Record, key string) string {
	switch v := rec[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// tagsFor builds the tag extractor for one class. The mapper writes the
// returned keys in the catalog's declared order; an extractor only supplies
// values. Drive tags need the location map refreshed earlier in the cycle.
func tagsFor(class catalog.Class, sys System, locations map[string]inventory.Location) mapper.TagFunc {
	base := func() map[string]string {
		return map[string]string{
			"sys_id":   sys.ID,
			"sys_name": sys.Name,
		}
	}

	switch class {
	case catalog.ClassVolume:
		return func(rec mapper.Record) map[string]string {
			t := base()
			t["vol_name"] = recString(rec, "volumeName")
			return t
		}
	case catalog.ClassInterface:
		return func(rec mapper.Record) map[string]string {
			t := base()
			t["interface_id"] = recString(rec, "interfaceId")
			t["channel_type"] = recString(rec, "channelType")
			return t
		}
	case catalog.ClassController:
		return func(rec mapper.Record) map[string]string {
			t := base()
			t["controller_id"] = recString(rec, "controllerId")
			return t
		}
	case catalog.ClassDrive:
		return func(rec mapper.Record) map[string]string {
			t := base()
			if loc, ok := locations[recString(rec, "diskId")]; ok {
				t["sys_tray"] = loc.Tray
				t["sys_tray_slot"] = loc.Slot
			}
			return t
		}
	case catalog.ClassMEL:
		return func(rec mapper.Record) map[string]string {
			t := base()
			t["event_type"] = recString(rec, "eventType")
			t["category"] = recString(rec, "category")
			t["priority"] = recString(rec, "priority")
			t["critical"] = recString(rec, "critical")
			return t
		}
	default:
		return func(mapper.Record) map[string]string {
			return base()
		}
	}
}

// entityID identifies the record's entity for delta-engine keying. An empty
// id means the record cannot be keyed; its counter fields degrade to absent
// rather than sharing a baseline with unrelated records.
func entityID(class catalog.Class, sys System, rec mapper.Record) string {
	switch class {
	case catalog.ClassVolume:
		if id := recString(rec, "volumeId"); id != "" {
			return id
		}
		return recString(rec, "volumeName")
	case catalog.ClassDrive:
		return recString(rec, "diskId")
	case catalog.ClassInterface:
		return recString(rec, "interfaceId")
	case catalog.ClassController:
		return recString(rec, "controllerId")
	case catalog.ClassSystem:
		return sys.ID
	default:
		return ""
	}
}
