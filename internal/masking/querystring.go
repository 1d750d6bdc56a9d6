package masking

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var errNotQueryString = errors.New("not a query string")

// queryPair is one decoded key with all its values, in first-seen order.
type queryPair struct {
	key    string
	values []string
}

// parseQueryStrict parses qs like a form body, but fails on any segment
// without '=' or with bad escapes. Keys keep their first-seen order.
func parseQueryStrict(qs string) ([]queryPair, error) {
	var pairs []queryPair
	index := make(map[string]int)

	for _, segment := range strings.Split(qs, "&") {
		rawKey, rawValue, ok := strings.Cut(segment, "=")
		if !ok {
			return nil, errNotQueryString
		}
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("bad query key %q: %w", rawKey, err)
		}
		if key == "" {
			return nil, errNotQueryString
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("bad query value for %q: %w", key, err)
		}

		if i, seen := index[key]; seen {
			pairs[i].values = append(pairs[i].values, value)
			continue
		}
		index[key] = len(pairs)
		pairs = append(pairs, queryPair{key: key, values: []string{value}})
	}
	return pairs, nil
}

func pairsToData(pairs []queryPair) map[string]any {
	data := make(map[string]any, len(pairs))
	for _, p := range pairs {
		data[p.key] = stringList(p.values)
	}
	return data
}

// encodeQuery re-encodes masked data, following the key order of pairs.
// Keys introduced by masking (a collapsed object) are appended at the end.
func encodeQuery(pairs []queryPair, data map[string]any) string {
	var b strings.Builder
	write := func(key string, value any) {
		for _, s := range queryValues(value) {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(s))
		}
	}

	seen := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		seen[p.key] = struct{}{}
		if v, ok := data[p.key]; ok {
			write(p.key, v)
		}
	}
	for _, k := range sortedKeys(data) {
		if _, ok := seen[k]; !ok {
			write(k, data[k])
		}
	}
	return b.String()
}

func queryValues(v any) []string {
	switch typed := v.(type) {
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case nil:
		return []string{""}
	default:
		return []string{fmt.Sprint(typed)}
	}
}
