package masking

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
)

// normalize returns a deep copy of data as a JSON-like tree built from
// map[string]any and []any. Common Go shapes for headers, forms and string
// lists are converted directly; other composite values go through a JSON
// round-trip.
func normalize(data any) any {
	switch v := data.(type) {
	case nil:
		return nil
	case string, bool, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalize(item)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = item
		}
		return out
	case map[string][]string:
		return stringListMap(v)
	case http.Header:
		return stringListMap(v)
	case url.Values:
		return stringListMap(v)
	case []string:
		return stringList(v)
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalize(item)
		}
		return out
	case []byte:
		return string(v)
	default:
		return jsonRoundTrip(v)
	}
}

func stringListMap(m map[string][]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, values := range m {
		out[k] = stringList(values)
	}
	return out
}

func stringList(values []string) []any {
	out := make([]any, len(values))
	for i, s := range values {
		out[i] = s
	}
	return out
}

func jsonRoundTrip(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		// Not representable as JSON; leave it to the formatter.
		return v
	}
	return decodeJSON(raw)
}

// decodeJSON decodes raw into a JSON-like tree, keeping numbers as
// json.Number so large integers survive. It returns nil on invalid input.
func decodeJSON(raw []byte) any {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil
	}
	return out
}
