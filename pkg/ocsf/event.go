package ocsf

import (
	"math"
	"strings"
)

// SchemaVersion is the OCSF version every built-in class targets
const SchemaVersion = "1.1.0"

// Event is a single OCSF record keyed by top-level attribute name.
// Nested objects are map[string]any, so a decoded JSON document and a
// generated record share one representation.
type Event map[string]any

// Get returns the value at a dotted field path such as "http_request.url.path"
func (e Event) Get(path string) (any, bool) {
	var cur any = map[string]any(e)
	for _, part := range strings.Split(path, ".") {
		m, ok := asObject(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set stores v at a dotted path, creating intermediate objects as needed.
// It is meant for building an event; once handed to an uploader an event
// is treated as read-only.
func (e Event) Set(path string, v any) {
	parts := strings.Split(path, ".")
	cur := map[string]any(e)
	for _, part := range parts[:len(parts)-1] {
		next, ok := asObject(cur[part])
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

// ClassUID returns the event's class_uid, which decides the target index
func (e Event) ClassUID() (int, bool) {
	v, ok := e["class_uid"]
	if !ok {
		return 0, false
	}
	return AsInt(v)
}

// AsInt converts the numeric representations an event can carry (native
// integers or whole-valued floats from a JSON decoder) to int.
func AsInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	}
	return 0, false
}

func floatToInt(f float64) (int, bool) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return int(f), true
}

func asObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Event:
		return m, true
	}
	return nil, false
}
