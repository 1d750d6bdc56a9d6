package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChainMask(t *testing.T) {
	tests := []struct {
		name       string
		input      any
		showNested bool
		expected   any
	}{
		{"nil stays nil", nil, false, nil},
		{"scalar", "secret", false, MaskString},
		{"number", 42, false, MaskString},
		{"object collapsed", map[string]any{"a": 1, "b": 2}, false, map[string]any{MaskString: MaskString}},
		{"object keys shown", map[string]any{"a": 1, "b": 2}, true, map[string]any{"a": MaskString, "b": MaskString}},
		{"list", []any{"x", "y"}, false, []any{MaskString, MaskString}},
		{"list of objects", []any{map[string]any{"a": 1}}, false, []any{map[string]any{MaskString: MaskString}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ChainMask(tt.input, tt.showNested))
		})
	}
}

func TestPathsTree(t *testing.T) {
	tests := []struct {
		name     string
		paths    []string
		expected map[string]any
	}{
		{
			name:  "leading and trailing slashes removed, duplicates collapsed",
			paths: []string{"/obj1/key1", "obj1/key1", "obj1/key2/"},
			expected: map[string]any{
				"obj1": map[string]any{"key1": true, "key2": true},
			},
		},
		{
			name:  "mid-path star kept, terminal star removed",
			paths: []string{"/obj1/*/key1", "obj1/key2/*"},
			expected: map[string]any{
				"obj1": map[string]any{
					"*":    map[string]any{"key1": true},
					"key2": true,
				},
			},
		},
		{
			name:     "depth first collapsed",
			paths:    []string{"obj1/nested/key1", "obj1/nested"},
			expected: map[string]any{"obj1": map[string]any{"nested": true}},
		},
		{
			name:     "deeper depth first collapsed",
			paths:    []string{"obj1/nested/key1/deeper", "obj1/nested/key1", "obj1/nested"},
			expected: map[string]any{"obj1": map[string]any{"nested": true}},
		},
		{
			name:     "depth second collapsed",
			paths:    []string{"obj1/nested", "obj1/nested/key1"},
			expected: map[string]any{"obj1": map[string]any{"nested": true}},
		},
		{
			name:     "deeper depth second collapsed",
			paths:    []string{"obj1/nested", "obj1/nested/key1", "obj1/nested/key1/deeper"},
			expected: map[string]any{"obj1": map[string]any{"nested": true}},
		},
		{
			name:     "bare star",
			paths:    []string{"*"},
			expected: map[string]any{"*": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NewPaths(tt.paths...).Tree())
		})
	}
}

func TestPathsProcess(t *testing.T) {
	p := NewPaths("obj1/key1", "obj1/key2", "obj2/*/wild", "obj2/nested/calm")
	opts := Options{Enabled: true}

	tests := []struct {
		name     string
		data     map[string]any
		expected map[string]any
	}{
		{
			name: "simple match with extra data",
			data: map[string]any{
				"obj2": "shown",
				"obj1": map[string]any{"key1": "secret", "key2": "hidden", "key3": "shown"},
			},
			expected: map[string]any{
				"obj2": "shown",
				"obj1": map[string]any{"key1": MaskString, "key2": MaskString, "key3": "shown"},
			},
		},
		{
			name:     "list value",
			data:     map[string]any{"obj1": map[string]any{"key1": []any{"x", "y", "z"}}},
			expected: map[string]any{"obj1": map[string]any{"key1": []any{MaskString, MaskString, MaskString}}},
		},
		{
			name: "lists of objects check each object",
			data: map[string]any{
				"obj1": []any{
					map[string]any{"key1": "secret", "key2": "hidden", "key3": "shown"},
					map[string]any{"key1": "secret", "key2": "hidden", "key3": "shown"},
				},
			},
			expected: map[string]any{
				"obj1": []any{
					map[string]any{"key1": MaskString, "key2": MaskString, "key3": "shown"},
					map[string]any{"key1": MaskString, "key2": MaskString, "key3": "shown"},
				},
			},
		},
		{
			name: "nested lists are walked too",
			data: map[string]any{
				"obj2": "shown",
				"obj1": []any{
					map[string]any{"key1": "secret", "key3": "shown"},
					[]any{map[string]any{"key1": "secret", "key3": "shown"}},
				},
			},
			expected: map[string]any{
				"obj2": "shown",
				"obj1": []any{
					map[string]any{"key1": MaskString, "key3": "shown"},
					[]any{map[string]any{"key1": MaskString, "key3": "shown"}},
				},
			},
		},
		{
			name: "star matches one level but not two",
			data: map[string]any{
				"obj2": map[string]any{
					"key1": map[string]any{"wild": "hidden"},
					"key2": map[string]any{"wild": "hidden"},
					"key3": map[string]any{"nested": map[string]any{"wild": "shown"}},
				},
			},
			expected: map[string]any{
				"obj2": map[string]any{
					"key1": map[string]any{"wild": MaskString},
					"key2": map[string]any{"wild": MaskString},
					"key3": map[string]any{"nested": map[string]any{"wild": "shown"}},
				},
			},
		},
		{
			name: "lists and stars",
			data: map[string]any{
				"obj2": []any{
					map[string]any{"key1": map[string]any{"wild": "hidden"}},
					map[string]any{"key3": map[string]any{"nested": map[string]any{"wild": "shown"}}},
				},
			},
			expected: map[string]any{
				"obj2": []any{
					map[string]any{"key1": map[string]any{"wild": MaskString}},
					map[string]any{"key3": map[string]any{"nested": map[string]any{"wild": "shown"}}},
				},
			},
		},
		{
			name: "star and explicit key together",
			data: map[string]any{
				"obj2": map[string]any{
					"key1":   map[string]any{"wild": "hidden"},
					"nested": map[string]any{"calm": "hidden"},
				},
			},
			expected: map[string]any{
				"obj2": map[string]any{
					"key1":   map[string]any{"wild": MaskString},
					"nested": map[string]any{"calm": MaskString},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := p.Process(tt.data, opts)
			// Maps are masked in place.
			assert.Equal(t, tt.expected, tt.data)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestPathsProcessDisabled(t *testing.T) {
	data := map[string]any{"key1": "secret"}
	NewPaths("key1").Process(data, Options{Enabled: false})
	assert.Equal(t, "secret", data["key1"])
}

func TestPathsBareStar(t *testing.T) {
	p := NewPaths("*")

	t.Run("object collapsed", func(t *testing.T) {
		data := map[string]any{"a": 1, "b": map[string]any{"c": 2}}
		assert.Equal(t, map[string]any{MaskString: MaskString}, p.Process(data, Options{Enabled: true}))
	})

	t.Run("object keys shown", func(t *testing.T) {
		data := map[string]any{"a": 1, "b": map[string]any{"c": 2}}
		assert.Equal(t, map[string]any{"a": MaskString, "b": MaskString},
			p.Process(data, Options{Enabled: true, ShowNestedKeys: true}))
	})

	t.Run("root scalar replaced", func(t *testing.T) {
		assert.Equal(t, MaskString, p.Process("plain text", Options{Enabled: true}))
	})

	t.Run("root list", func(t *testing.T) {
		data := []any{"x", map[string]any{"a": 1}}
		assert.Equal(t, []any{MaskString, map[string]any{MaskString: MaskString}},
			p.Process(data, Options{Enabled: true}))
	})
}

func TestPathsPatterns(t *testing.T) {
	p := NewPaths("a/b", "c")
	patterns := p.Patterns()
	assert.Equal(t, []string{"a/b", "c"}, patterns)

	patterns[0] = "changed"
	assert.Equal(t, []string{"a/b", "c"}, p.Patterns())
}
