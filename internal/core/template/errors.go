package template

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Graph construction errors
	ErrInvalidLogicalID   = errors.New("logical id must be non-empty and alphanumeric")
	ErrDuplicateLogicalID = errors.New("duplicate logical id")
	ErrDanglingReference  = errors.New("reference to unknown logical id")

	// Merge errors
	ErrResourceCollision = errors.New("fragment collides with existing template")
	ErrInvalidTemplate   = errors.New("invalid template")

	// Encoding errors
	ErrUnknownFormat = errors.New("unknown output format")
)

// CollisionError lists every key of a fragment that already exists in the
// target template.
type CollisionError struct {
	Resources []string
	Outputs   []string
}

func (e *CollisionError) Error() string {
	var parts []string
	if len(e.Resources) > 0 {
		parts = append(parts, "Resources: "+strings.Join(e.Resources, ", "))
	}
	if len(e.Outputs) > 0 {
		parts = append(parts, "Outputs: "+strings.Join(e.Outputs, ", "))
	}
	return fmt.Sprintf("%s (%s)", ErrResourceCollision, strings.Join(parts, "; "))
}

func (e *CollisionError) Unwrap() error {
	return ErrResourceCollision
}
