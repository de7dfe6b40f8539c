package routine

import (
	"fmt"
	"time"
)

// jsonCompatible recursively coerces a raw value returned by a monitor's
// search/update function into something JSON- and msgpack-safe: time.Time
// becomes a millisecond-precision RFC3339 string, anything else outside
// the plain JSON scalar/slice/map set is cast to its string form. Mirrors
// monitor_handler.py's _convert_types/_make_dict_json_compatible.
func jsonCompatible(data any) any {
	switch v := data.(type) {
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = jsonCompatible(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = jsonCompatible(item)
		}
		return out
	case time.Time:
		return v.Format("2006-01-02T15:04:05.000Z07:00")
	case nil, string, int, int64, float64, bool:
		return v
	default:
		return toString(v)
	}
}

// asJSONMap coerces raw into a JSON-compatible map, or nil if raw isn't a
// map at all - the "reject non-dict element" half of the search/update
// contract.
func asJSONMap(raw any) map[string]any {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	converted, ok := jsonCompatible(m).(map[string]any)
	if !ok {
		return nil
	}
	return converted
}

func modelIDValue(data map[string]any, modelIDKey string) (string, bool) {
	raw, ok := data[modelIDKey]
	if !ok {
		return "", false
	}
	return toString(raw), true
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
