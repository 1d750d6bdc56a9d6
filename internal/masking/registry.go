package masking

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Built-in processor names.
const (
	// All masks every value of a payload. It is registered but not global.
	All = "ALL"

	// Headers masks credential-carrying HTTP headers. Header maps are keyed
	// by canonical header name, so the paths are canonical too.
	Headers = "HEADERS"
)

// SensitiveHeaders are the canonical header names covered by the Headers
// processor.
var SensitiveHeaders = []string{
	"Authorization",
	"Proxy-Authorization",
	"Cookie",
	"Set-Cookie",
	"X-Api-Key",
	"X-Auth-Token",
	"X-Access-Token",
	"X-Csrftoken",
}

// Registry holds named processors and the set of global ones.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]Processor
	global     map[string]struct{}
}

// NewRegistry returns a Registry with the built-in All and Headers processors.
func NewRegistry() *Registry {
	r := &Registry{
		processors: make(map[string]Processor),
		global:     make(map[string]struct{}),
	}
	r.Add(All, NewPaths(wildcard))
	r.Add(Headers, NewPaths(SensitiveHeaders...))
	return r
}

// AddOption configures how a processor is registered.
type AddOption func(*addOptions)

type addOptions struct {
	global bool
}

// Global marks the processor as applying to every sanitized payload.
func Global() AddOption {
	return func(o *addOptions) {
		o.global = true
	}
}

// Add registers p under name, replacing any processor already registered
// under that name.
func (r *Registry) Add(name string, p Processor, opts ...AddOption) {
	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.processors[name] = p
	if o.global {
		r.global[name] = struct{}{}
	} else {
		delete(r.global, name)
	}
}

// Remove unregisters name. Removing an unknown name is a no-op.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.processors, name)
	delete(r.global, name)
}

// Get returns the processor registered under name.
func (r *Registry) Get(name string) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.processors[name]
	return p, ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.processors))
	for name := range r.processors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GlobalNames returns the names of global processors, sorted.
func (r *Registry) GlobalNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.global))
	for name := range r.global {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsGlobal reports whether name is registered as global.
func (r *Registry) IsGlobal(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.global[name]
	return ok
}

// Fingerprint identifies the current rule set. Two registries with the same
// names, global flags and path expressions share a fingerprint.
func (r *Registry) Fingerprint() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.processors))
	for name := range r.processors {
		names = append(names, name)
	}
	sort.Strings(names)

	h := xxhash.New()
	for _, name := range names {
		_, global := r.global[name]
		_, _ = fmt.Fprintf(h, "%s|%t|", name, global)
		_, _ = h.WriteString(describe(r.processors[name]))
		_, _ = h.WriteString("\n")
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

func describe(p Processor) string {
	switch p := p.(type) {
	case *Paths:
		patterns := p.Patterns()
		sort.Strings(patterns)
		return strings.Join(patterns, ",")
	case *Values:
		return "values:" + strings.Join(p.Names(), ",")
	case Chain:
		parts := make([]string, len(p))
		for i, part := range p {
			parts[i] = describe(part)
		}
		return "chain(" + strings.Join(parts, ";") + ")"
	default:
		return fmt.Sprintf("%T", p)
	}
}

// resolve returns the processors for the union of names and the global set,
// in a stable order. Unknown names are returned separately.
func (r *Registry) resolve(names []string) ([]Processor, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := make(map[string]struct{}, len(names)+len(r.global))
	for name := range r.global {
		set[name] = struct{}{}
	}
	for _, name := range names {
		set[name] = struct{}{}
	}

	ordered := make([]string, 0, len(set))
	for name := range set {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	processors := make([]Processor, 0, len(ordered))
	var unknown []string
	for _, name := range ordered {
		p, ok := r.processors[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		processors = append(processors, p)
	}
	return processors, unknown
}
