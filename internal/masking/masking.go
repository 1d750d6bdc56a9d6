// Package masking redacts sensitive values from request/response payloads
// before they are logged.
//
// Rules are path expressions over JSON-like trees (map[string]any / []any).
// Named rules live in a Registry; some are global and apply to every payload,
// the rest are activated per call or per context scope with WithMasks.
package masking

// MaskString replaces every masked value.
const MaskString = "*** masked ***"

// Options control how processors and the Sanitizer behave.
type Options struct {
	// Enabled turns path processors on. When false, sanitizing still returns
	// a copy of the data but nothing is masked.
	Enabled bool

	// ShowNestedKeys keeps the keys of masked objects visible:
	// {"a": 1, "b": 2} becomes {"a": MaskString, "b": MaskString}
	// instead of {MaskString: MaskString}.
	ShowNestedKeys bool

	// PreferTextFallback masks the whole value when a text body can be
	// parsed neither as JSON nor as a query string.
	PreferTextFallback bool
}

// Processor applies a masking rule to data.
//
// Process mutates maps and slices in place and returns the resulting value.
// Callers must use the returned value: a scalar at the root can only be
// masked by replacement.
type Processor interface {
	Process(data any, opts Options) any
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(data any, opts Options) any

// Process calls f(data, opts).
func (f ProcessorFunc) Process(data any, opts Options) any {
	return f(data, opts)
}

// ChainMask returns data with every value masked.
//
// Objects collapse to {MaskString: MaskString} unless showNested is set, in
// which case each key is kept with a masked value. Lists are masked
// element-wise and nil stays nil.
func ChainMask(data any, showNested bool) any {
	switch v := data.(type) {
	case nil:
		return nil
	case map[string]any:
		if showNested {
			out := make(map[string]any, len(v))
			for k := range v {
				out[k] = MaskString
			}
			return out
		}
		return map[string]any{MaskString: MaskString}
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = ChainMask(item, showNested)
		}
		return out
	default:
		return MaskString
	}
}
