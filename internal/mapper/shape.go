package mapper

import (
	"encoding/json"

	"github.com/xtxerr/arraymon/internal/errors"
)

// Payload is a tagged union of the two response shapes the API is known to
// produce: a JSON array of records, or a single JSON object. Sensor-style
// endpoints return the object form when exactly one entity exists; everything
// else returns the array form. Records() unifies both deterministically.
type Payload struct {
	list   []Record
	single Record
	isList bool
}

// DecodePayload parses a raw response body into a Payload. Anything other
// than an object or an array of objects is a payload-shape error.
func DecodePayload(raw []byte) (Payload, error) {
	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Payload{}, errors.Wrap(errors.ErrPayloadShape, err.Error())
	}

	switch v := probe.(type) {
	case []any:
		records := make([]Record, 0, len(v))
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return Payload{}, errors.Wrap(errors.ErrPayloadShape, "array element is not an object")
			}
			records = append(records, Record(obj))
		}
		return Payload{list: records, isList: true}, nil
	case map[string]any:
		return Payload{single: Record(v)}, nil
	default:
		return Payload{}, errors.Wrap(errors.ErrPayloadShape, "body is neither object nor array")
	}
}

// Records returns the unified record list: the array as-is, or the single
// object wrapped in a one-element slice.
func (p Payload) Records() []Record {
	if p.isList {
		return p.list
	}
	if p.single == nil {
		return nil
	}
	return []Record{p.single}
}

// IsList reports which upstream shape was received.
func (p Payload) IsList() bool {
	return p.isList
}

// Len returns the number of records.
func (p Payload) Len() int {
	return len(p.Records())
}
