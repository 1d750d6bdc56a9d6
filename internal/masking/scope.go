package masking

import "context"

type scopeKey struct{}

// WithMasks returns a child context in which the named processors are
// active. Scopes nest: the active set is the union of every enclosing scope.
// Leaving a scope is simply going back to the parent context.
func WithMasks(ctx context.Context, names ...string) context.Context {
	if len(names) == 0 {
		return ctx
	}

	parent := MasksFromContext(ctx)
	merged := make([]string, 0, len(parent)+len(names))
	seen := make(map[string]struct{}, len(parent)+len(names))
	for _, name := range append(parent, names...) {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		merged = append(merged, name)
	}
	return context.WithValue(ctx, scopeKey{}, merged)
}

// MasksFromContext returns the processor names active in ctx.
func MasksFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	names, _ := ctx.Value(scopeKey{}).([]string)
	out := make([]string, len(names))
	copy(out, names)
	return out
}
