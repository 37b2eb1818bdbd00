package kubetable

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/zeebo/xxh3"
)

// json is a drop-in encoding/json replacement; snapshots can hold thousands
// of objects and are decoded on every push.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// textJSON serializes values into search text. HTML characters stay as they
// are, so a search for "a&b" finds "a&b".
var textJSON = jsoniter.Config{
	EscapeHTML:  false,
	SortMapKeys: true,
}.Froze()

// decodeSnapshot parses one push payload: a JSON array of resource objects.
// Non-object elements are skipped.
func decodeSnapshot(payload []byte) ([]Resource, error) {
	var raw []any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	resources := make([]Resource, 0, len(raw))
	for _, item := range raw {
		if obj, ok := item.(map[string]any); ok {
			resources = append(resources, Resource(obj))
		}
	}
	return resources, nil
}

// digest fingerprints a payload. Identical payloads produce identical
// snapshots, so the digest doubles as the view revision.
func digest(payload []byte) uint64 {
	return xxh3.Hash(payload)
}

// marshalString serializes v for text search. Errors yield "".
func marshalString(v any) string {
	b, err := textJSON.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
