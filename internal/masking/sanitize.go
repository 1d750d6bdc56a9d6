package masking

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"reqlog/internal/metrics"
)

// Sanitizer applies registered processors to copies of payloads.
type Sanitizer struct {
	registry *Registry
	opts     Options
}

// NewSanitizer creates a Sanitizer over registry. A nil registry gets a
// fresh one with only the built-in processors.
func NewSanitizer(registry *Registry, opts Options) *Sanitizer {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Sanitizer{registry: registry, opts: opts}
}

// Registry returns the registry processors are looked up in.
func (s *Sanitizer) Registry() *Registry {
	return s.registry
}

// Options returns the sanitizer options.
func (s *Sanitizer) Options() Options {
	return s.opts
}

// Data returns a sanitized deep copy of data. The processors applied are
// the global ones, those active in ctx, and names. data is never modified.
func (s *Sanitizer) Data(ctx context.Context, data any, names ...string) any {
	masked := normalize(data)

	active := append(MasksFromContext(ctx), names...)
	processors, unknown := s.registry.resolve(active)
	for _, name := range unknown {
		metrics.UnknownMasks.WithLabelValues(name).Inc()
		slog.Warn("unknown mask processor, skipping", "name", name)
	}

	for _, p := range processors {
		masked = p.Process(masked, s.opts)
	}
	return masked
}

// QueryString sanitizes a form-encoded string. Input that is not a query
// string is returned unchanged, or as MaskString when PreferTextFallback is
// set.
func (s *Sanitizer) QueryString(ctx context.Context, qs string, names ...string) string {
	if qs == "" {
		return qs
	}

	pairs, err := parseQueryStrict(qs)
	if err != nil {
		if s.opts.PreferTextFallback {
			return MaskString
		}
		return qs
	}

	masked, ok := s.Data(ctx, pairsToData(pairs), names...).(map[string]any)
	if !ok {
		return MaskString
	}
	return encodeQuery(pairs, masked)
}

// URL sanitizes the query part of rawURL. The rest of the URL, including the
// fragment, is kept as is.
func (s *Sanitizer) URL(ctx context.Context, rawURL string, names ...string) string {
	base, rest, ok := strings.Cut(rawURL, "?")
	if !ok {
		return rawURL
	}

	query, fragment, hasFragment := strings.Cut(rest, "#")
	out := base + "?" + s.QueryString(ctx, query, names...)
	if hasFragment {
		out += "#" + fragment
	}
	return out
}

// RequestData sanitizes already-decoded request data: maps go through Data,
// strings through QueryString, and anything else is returned unchanged.
func (s *Sanitizer) RequestData(ctx context.Context, data any, names ...string) any {
	switch v := data.(type) {
	case map[string]any, map[string]string, map[string][]string:
		return s.Data(ctx, v, names...)
	case string:
		return s.QueryString(ctx, v, names...)
	default:
		return data
	}
}

// Body sanitizes a raw body: JSON is decoded and masked with Data, anything
// else is treated as a form-encoded string.
func (s *Sanitizer) Body(ctx context.Context, body []byte, names ...string) any {
	if len(body) == 0 {
		return ""
	}
	if gjson.ValidBytes(body) {
		return s.Data(ctx, decodeJSON(body), names...)
	}
	return s.QueryString(ctx, toValidUTF8(body), names...)
}

func toValidUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
