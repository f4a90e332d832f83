package jsonx

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// ToDynamicJSON converts a Go value into a dynamic JSON object represented as a
// map[string]any. A map[string]any is returned unchanged; anything else is
// marshaled to JSON and decoded back into a map, so struct tags apply and
// numbers come back as float64.
//
// Values that do not marshal, or that do not marshal to a JSON object, are
// reported as errors.
func ToDynamicJSON(val any) (map[string]any, error) {
	if m, ok := val.(map[string]any); ok {
		return m, nil
	}
	b, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	var result map[string]any
	if err = json.Unmarshal(b, &result); err != nil {
		return nil, fmt.Errorf("value is not a json object: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("value is not a json object: %s", b)
	}
	return result, nil
}
