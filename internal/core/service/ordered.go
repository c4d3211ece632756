package service

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// OrderedMap
// =============================================================================

// Pair is one key/value entry of an OrderedMap.
type Pair struct {
	Key   string
	Value string
}

// OrderedMap is a string mapping that remembers insertion order.
// The zero value is an empty map ready to use.
type OrderedMap struct {
	pairs []Pair
	index map[string]int
}

// NewOrderedMap builds a map from pairs. Later pairs override earlier ones
// with the same key.
func NewOrderedMap(pairs ...Pair) OrderedMap {
	var m OrderedMap
	for _, p := range pairs {
		m.Set(p.Key, p.Value)
	}
	return m
}

// Set adds or replaces a key. A replaced key keeps its original position.
func (m *OrderedMap) Set(key, value string) {
	if i, ok := m.index[key]; ok {
		m.pairs[i].Value = value
		return
	}
	if m.index == nil {
		m.index = make(map[string]int)
	}
	m.index[key] = len(m.pairs)
	m.pairs = append(m.pairs, Pair{Key: key, Value: value})
}

// Get returns the value stored under key.
func (m OrderedMap) Get(key string) (string, bool) {
	i, ok := m.index[key]
	if !ok {
		return "", false
	}
	return m.pairs[i].Value, true
}

// Len returns the number of entries.
func (m OrderedMap) Len() int {
	return len(m.pairs)
}

// Pairs returns a copy of the entries in insertion order.
func (m OrderedMap) Pairs() []Pair {
	out := make([]Pair, len(m.pairs))
	copy(out, m.pairs)
	return out
}

// Clone returns an independent copy.
func (m OrderedMap) Clone() OrderedMap {
	return NewOrderedMap(m.pairs...)
}

// MergeOrdered returns the union of base and override. Values from override
// win on shared keys; keys keep the position of their first appearance.
func MergeOrdered(base, override OrderedMap) OrderedMap {
	out := base.Clone()
	for _, p := range override.pairs {
		out.Set(p.Key, p.Value)
	}
	return out
}

// UnmarshalYAML decodes a YAML mapping of scalars, keeping document order.
// A key that appears twice is an error.
func (m *OrderedMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.ShortTag() == "!!null" {
		*m = OrderedMap{}
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}

	out := OrderedMap{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		if valueNode.Kind == yaml.AliasNode {
			valueNode = valueNode.Alias
		}
		if valueNode.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: value of %q must be a scalar", valueNode.Line, keyNode.Value)
		}
		if _, dup := out.Get(keyNode.Value); dup {
			return fmt.Errorf("line %d: duplicate key %q", keyNode.Line, keyNode.Value)
		}
		value := valueNode.Value
		if valueNode.ShortTag() == "!!null" {
			value = ""
		}
		out.Set(keyNode.Value, value)
	}
	*m = out
	return nil
}
