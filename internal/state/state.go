// Package state holds the broker's authoritative state: an ordered mapping
// that only changes through shallow merges.
package state

import (
	"bytes"
	"maps"
	"slices"

	json "github.com/goccy/go-json"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// State is not safe for concurrent use; the broker serializes access.
type State struct {
	values *orderedmap.OrderedMap[string, any]
}

func New() *State {
	return &State{values: orderedmap.New[string, any]()}
}

// Merge overwrites the top-level keys of s with those of update and reports
// whether the serialized state changed. Existing keys keep their position; new
// keys are appended in sorted order. The returned string is the serialization
// after the merge.
func (s *State) Merge(update map[string]any) (string, bool) {
	before := s.Serialize()
	for _, key := range slices.Sorted(maps.Keys(update)) {
		s.values.Set(key, update[key])
	}
	after := s.Serialize()
	return after, before != after
}

// Serialize renders the state as a JSON object in key order. Entries whose
// value cannot be encoded are left out, so storing such a value is not seen as
// a change.
func (s *State) Serialize() string {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for pair := s.values.Oldest(); pair != nil; pair = pair.Next() {
		value, err := json.Marshal(pair.Value)
		if err != nil {
			continue
		}
		key, err := json.Marshal(pair.Key)
		if err != nil {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.String()
}

// Snapshot returns a deep copy of the state that callers may keep or mutate.
func (s *State) Snapshot() map[string]any {
	out := make(map[string]any, s.values.Len())
	for pair := s.values.Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Key] = Clone(pair.Value)
	}
	return out
}

// Keys returns the keys in state order.
func (s *State) Keys() []string {
	keys := make([]string, 0, s.values.Len())
	for pair := s.values.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

func (s *State) Len() int {
	return s.values.Len()
}

// Clone deep copies the JSON-shaped parts of v: maps with string keys and
// slices of any. Other values are returned as they are.
func Clone(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if x == nil {
			return x
		}
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = Clone(item)
		}
		return out
	case []any:
		if x == nil {
			return x
		}
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Clone(item)
		}
		return out
	default:
		return v
	}
}
