package app

import (
	"fmt"

	"reqlog/config"
	"reqlog/internal/masking"
)

// NewRegistry returns a registry holding the built-in processors plus one
// processor per rule. A rule with both paths and value detectors applies
// the paths first.
func NewRegistry(rules []config.MaskRule) (*masking.Registry, error) {
	registry := masking.NewRegistry()
	for _, rule := range rules {
		if rule.Name == masking.All || rule.Name == masking.Headers {
			return nil, fmt.Errorf("mask %q: name is reserved", rule.Name)
		}

		var p masking.Processor
		if len(rule.Paths) > 0 {
			p = masking.NewPaths(rule.Paths...)
		}
		if len(rule.Values) > 0 {
			values, err := masking.NewValues(rule.Values...)
			if err != nil {
				return nil, fmt.Errorf("mask %q: %w", rule.Name, err)
			}
			if p == nil {
				p = values
			} else {
				p = masking.Join(p, values)
			}
		}
		if p == nil {
			return nil, fmt.Errorf("mask %q: no paths or value detectors", rule.Name)
		}

		var opts []masking.AddOption
		if rule.Global {
			opts = append(opts, masking.Global())
		}
		registry.Add(rule.Name, p, opts...)
	}
	return registry, nil
}
