package mapper

import "strings"

// Resolve looks up a field in a record. A plain name reads the top-level key;
// a dotted name ("currentStatistics.readOps") walks nested objects one
// segment at a time. The bool result distinguishes "present but null" from
// "key missing": null is present and resolves to nil.
func Resolve(rec Record, name string) (any, bool) {
	if rec == nil {
		return nil, false
	}

	// Fast path: undotted names and names that literally exist at the top
	// level (some payloads use dots inside real key names).
	if v, ok := rec[name]; ok {
		return v, true
	}
	if !strings.Contains(name, ".") {
		return nil, false
	}

	segments := strings.Split(name, ".")
	var current any = map[string]any(rec)
	for _, seg := range segments {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
