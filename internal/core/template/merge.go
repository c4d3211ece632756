package template

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// Collision Policy
// =============================================================================

// CollisionPolicy decides what Merge does when a fragment key already exists
// in the target template.
type CollisionPolicy int

const (
	// CollisionFail rejects the merge and reports every colliding key.
	CollisionFail CollisionPolicy = iota
	// CollisionOverwrite lets the fragment replace existing entries.
	CollisionOverwrite
)

func (p CollisionPolicy) String() string {
	switch p {
	case CollisionFail:
		return "fail"
	case CollisionOverwrite:
		return "overwrite"
	default:
		return fmt.Sprintf("CollisionPolicy(%d)", int(p))
	}
}

// ParseCollisionPolicy parses "fail" or "overwrite" (case-insensitive).
// An empty string selects CollisionFail.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail":
		return CollisionFail, nil
	case "overwrite":
		return CollisionOverwrite, nil
	default:
		return CollisionFail, fmt.Errorf("unknown collision policy %q (want fail or overwrite)", s)
	}
}

// =============================================================================
// Merge
// =============================================================================

// Merge returns a copy of existing with the fragment's resources and outputs
// added. It is a shallow union: entries are copied by key, never merged
// field by field. Neither input is modified. A nil existing template is
// treated as empty.
func Merge(existing *Template, fragment *Fragment, policy CollisionPolicy) (*Template, error) {
	out := &Template{}
	if existing != nil {
		*out = *existing
	}
	out.Resources = make(map[string]Resource)
	out.Outputs = make(map[string]Output)
	if existing != nil {
		for id, r := range existing.Resources {
			out.Resources[id] = r
		}
		for id, o := range existing.Outputs {
			out.Outputs[id] = o
		}
	}
	if fragment == nil {
		return out, nil
	}

	if policy == CollisionFail {
		collision := &CollisionError{
			Resources: collidingKeys(out.Resources, fragment.Resources),
			Outputs:   collidingKeys(out.Outputs, fragment.Outputs),
		}
		if len(collision.Resources) > 0 || len(collision.Outputs) > 0 {
			return nil, collision
		}
	}

	for id, r := range fragment.Resources {
		out.Resources[id] = r
	}
	for id, o := range fragment.Outputs {
		out.Outputs[id] = o
	}
	return out, nil
}

func collidingKeys[V any](existing, incoming map[string]V) []string {
	var keys []string
	for id := range incoming {
		if _, ok := existing[id]; ok {
			keys = append(keys, id)
		}
	}
	sort.Strings(keys)
	return keys
}
