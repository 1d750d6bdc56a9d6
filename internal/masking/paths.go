package masking

import (
	"sort"
	"strings"
)

// wildcard matches any key at exactly one level.
const wildcard = "*"

// pathNode is one level of the path tree. A node with mask set masks the
// value at that key and everything under it; children are ignored.
type pathNode struct {
	mask     bool
	children map[string]*pathNode
}

func newPathNode() *pathNode {
	return &pathNode{children: make(map[string]*pathNode)}
}

// Paths is a Processor that masks values found at path expressions.
//
// Path syntax:
//   - keys are separated by '/'; leading and trailing '/' have no effect
//   - '*' matches any key at one level
//   - a terminal '*' is the same as not having it
//   - a shorter path subsumes any longer path below it
//
// Lists do not add a path element: "obj/key" matches "key" in every object of
// a list stored at "obj", including objects inside nested lists.
type Paths struct {
	root     *pathNode
	patterns []string
}

// NewPaths builds a path tree from the given expressions.
func NewPaths(paths ...string) *Paths {
	p := &Paths{root: newPathNode()}
	for _, path := range paths {
		p.add(path)
	}
	return p
}

func (p *Paths) add(path string) {
	p.patterns = append(p.patterns, path)

	node := p.root
	keys := strings.Split(strings.Trim(path, "/"), "/")
	for len(keys) > 0 {
		k := keys[0]
		keys = keys[1:]

		// "a/*" masks everything under "a"
		if len(keys) == 1 && keys[0] == wildcard {
			node.children[k] = &pathNode{mask: true}
			return
		}
		if len(keys) == 0 {
			node.children[k] = &pathNode{mask: true}
			return
		}

		child, ok := node.children[k]
		if !ok {
			child = newPathNode()
			node.children[k] = child
		}
		if child.mask {
			// An earlier, shorter path already masks everything here.
			return
		}
		node = child
	}
}

// Patterns returns the expressions the tree was built from.
func (p *Paths) Patterns() []string {
	out := make([]string, len(p.patterns))
	copy(out, p.patterns)
	return out
}

// Tree renders the path tree as nested maps, with true for masked leaves.
func (p *Paths) Tree() map[string]any {
	return p.root.tree()
}

func (n *pathNode) tree() map[string]any {
	out := make(map[string]any, len(n.children))
	for k, child := range n.children {
		if child.mask {
			out[k] = true
		} else {
			out[k] = child.tree()
		}
	}
	return out
}

// Process masks data in place and returns it.
func (p *Paths) Process(data any, opts Options) any {
	if !opts.Enabled {
		return data
	}
	return sanitizeAny(p.root, data, opts.ShowNestedKeys, true)
}

func sanitizeAny(node *pathNode, data any, showNested, root bool) any {
	switch v := data.(type) {
	case map[string]any:
		sanitizeMap(node, v, showNested)
		return v
	case []any:
		for i, item := range v {
			v[i] = sanitizeAny(node, item, showNested, root)
		}
		return v
	default:
		// Only a bare "*" rule reaches a scalar with a masking wildcard.
		if root {
			if star, ok := node.children[wildcard]; ok && star.mask && data != nil {
				return MaskString
			}
		}
		return data
	}
}

func sanitizeMap(node *pathNode, data map[string]any, showNested bool) {
	if star, ok := node.children[wildcard]; ok {
		if star.mask {
			if showNested {
				for k := range data {
					data[k] = MaskString
				}
			} else {
				for k := range data {
					delete(data, k)
				}
				data[MaskString] = MaskString
			}
		} else {
			for k, v := range data {
				data[k] = sanitizeAny(star, v, showNested, false)
			}
		}
	}

	for _, k := range sortedKeys(data) {
		child, ok := node.children[k]
		if !ok {
			continue
		}
		if child.mask {
			data[k] = ChainMask(data[k], showNested)
			continue
		}
		data[k] = sanitizeAny(child, data[k], showNested, false)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
