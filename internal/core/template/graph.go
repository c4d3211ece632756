package template

import (
	"fmt"
	"sort"
)

// =============================================================================
// Graph Builder
// =============================================================================

// Graph accumulates resources and outputs for one compilation.
//
// Logical ids are checked on insertion: a second resource or output under an
// id that is already taken fails with ErrDuplicateLogicalID instead of
// replacing the first. References handed out by GetAtt are recorded and
// checked by Fragment.
type Graph struct {
	resources map[string]Resource
	outputs   map[string]Output
	refs      []GetAtt
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		resources: make(map[string]Resource),
		outputs:   make(map[string]Output),
	}
}

// AddResource inserts a resource under id.
func (g *Graph) AddResource(id string, r Resource) error {
	if !validLogicalID(id) {
		return fmt.Errorf("resource %q: %w", id, ErrInvalidLogicalID)
	}
	if _, exists := g.resources[id]; exists {
		return fmt.Errorf("resource %q: %w", id, ErrDuplicateLogicalID)
	}
	g.resources[id] = r
	return nil
}

// AddOutput inserts an output under id.
func (g *Graph) AddOutput(id string, o Output) error {
	if !validLogicalID(id) {
		return fmt.Errorf("output %q: %w", id, ErrInvalidLogicalID)
	}
	if _, exists := g.outputs[id]; exists {
		return fmt.Errorf("output %q: %w", id, ErrDuplicateLogicalID)
	}
	g.outputs[id] = o
	return nil
}

// GetAtt returns a reference to an attribute of id and records it. The
// target does not have to exist yet; it must exist when Fragment is called.
func (g *Graph) GetAtt(id, attribute string) GetAtt {
	ref := GetAtt{LogicalID: id, Attribute: attribute}
	g.refs = append(g.refs, ref)
	return ref
}

// Has reports whether a resource with id has been added.
func (g *Graph) Has(id string) bool {
	_, ok := g.resources[id]
	return ok
}

// Fragment validates every recorded reference and returns the assembled
// fragment. The graph's maps are copied, so later additions do not leak.
func (g *Graph) Fragment() (*Fragment, error) {
	var dangling []string
	seen := make(map[string]bool)
	for _, ref := range g.refs {
		if g.Has(ref.LogicalID) || seen[ref.LogicalID] {
			continue
		}
		seen[ref.LogicalID] = true
		dangling = append(dangling, ref.LogicalID)
	}
	if len(dangling) > 0 {
		sort.Strings(dangling)
		return nil, fmt.Errorf("%w: %v", ErrDanglingReference, dangling)
	}

	f := &Fragment{
		Resources: make(map[string]Resource, len(g.resources)),
		Outputs:   make(map[string]Output, len(g.outputs)),
	}
	for id, r := range g.resources {
		f.Resources[id] = r
	}
	for id, o := range g.outputs {
		f.Outputs[id] = o
	}
	return f, nil
}

// validLogicalID checks CloudFormation's logical id rule: ASCII letters and
// digits only.
func validLogicalID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
