// Package canonical produces stable, sorted-key JSON serialisations used
// both for the has_sem=false document text fallback and for schema
// signature hashing.
package canonical

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Marshal serialises v (expected to be a map[string]any or a JSON-marshalable
// value) with sorted object keys and stable separators, so the same logical
// row always produces byte-identical output regardless of map iteration
// order.
func Marshal(v any) (string, error) {
	normalized := normalize(v)
	buf, err := json.Marshal(normalized)
	if err != nil {
		return "", err
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, buf); err != nil {
		return "", err
	}
	return compact.String(), nil
}

// normalize recursively converts maps into a form whose keys marshal in
// sorted order (encoding/json already sorts map[string]any keys, so this
// mainly guards nested map[any]any values decoded from loosely-typed
// sources).
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[k] = normalize(val[k])
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalize(e)
		}
		return out
	default:
		return val
	}
}
