package masking

import (
	"fmt"
	"regexp"
	"sort"
)

// Value detectors usable with NewValues.
const (
	DetectEmail      = "email"
	DetectPhone      = "phone"
	DetectSSN        = "ssn"
	DetectCreditCard = "credit_card"
	DetectIPAddress  = "ip"
)

type detector struct {
	name    string
	pattern *regexp.Regexp
}

// Card numbers are matched before SSNs and phone numbers so that a card
// is never partly masked by a shorter pattern.
var detectors = []detector{
	{DetectEmail, regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{DetectCreditCard, regexp.MustCompile(`\b\d{4}[\s\-]?\d{4}[\s\-]?\d{4}[\s\-]?\d{4}\b`)},
	{DetectSSN, regexp.MustCompile(`\b\d{3}[\s\-]?\d{2}[\s\-]?\d{4}\b`)},
	// US formats with optional country code: (123) 456-7890, +1 123 456 7890
	{DetectPhone, regexp.MustCompile(`(?:\+1[\s.-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}`)},
	{DetectIPAddress, regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`)},
}

// Detectors returns the names accepted by NewValues.
func Detectors() []string {
	names := make([]string, len(detectors))
	for i, d := range detectors {
		names[i] = d.name
	}
	sort.Strings(names)
	return names
}

// Values masks substrings of string values that look like personal data,
// wherever they appear in the payload. Keys are left alone.
type Values struct {
	names    []string
	patterns []*regexp.Regexp
}

// NewValues builds a Values processor for the named detectors.
func NewValues(names ...string) (*Values, error) {
	want := make(map[string]bool, len(names))
	for _, name := range names {
		want[name] = true
	}

	v := &Values{}
	for _, d := range detectors {
		if want[d.name] {
			v.names = append(v.names, d.name)
			v.patterns = append(v.patterns, d.pattern)
			delete(want, d.name)
		}
	}
	for name := range want {
		return nil, fmt.Errorf("unknown value detector %q (valid: %v)", name, Detectors())
	}
	return v, nil
}

// Names returns the detectors in use.
func (v *Values) Names() []string {
	return append([]string(nil), v.names...)
}

// Process masks data in place and returns it.
func (v *Values) Process(data any, opts Options) any {
	if !opts.Enabled || len(v.patterns) == 0 {
		return data
	}
	return v.walk(data)
}

func (v *Values) walk(data any) any {
	switch d := data.(type) {
	case string:
		return v.maskText(d)
	case map[string]any:
		for k, item := range d {
			d[k] = v.walk(item)
		}
		return d
	case []any:
		for i, item := range d {
			d[i] = v.walk(item)
		}
		return d
	default:
		return data
	}
}

func (v *Values) maskText(s string) string {
	for _, p := range v.patterns {
		s = p.ReplaceAllLiteralString(s, MaskString)
	}
	return s
}

// Chain applies its processors in order.
type Chain []Processor

// Join returns a processor applying each of ps in order.
func Join(ps ...Processor) Chain {
	return Chain(append([]Processor(nil), ps...))
}

// Process implements Processor.
func (c Chain) Process(data any, opts Options) any {
	for _, p := range c {
		data = p.Process(data, opts)
	}
	return data
}

// Parts returns the joined processors.
func (c Chain) Parts() []Processor {
	return append([]Processor(nil), c...)
}
