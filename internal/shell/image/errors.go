package image

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Reference errors
	ErrInvalidReference    = errors.New("invalid image reference")
	ErrUnsupportedRegistry = errors.New("unsupported registry")

	// Lookup errors
	ErrImageNotFound = errors.New("image not found")
	ErrNoDigest      = errors.New("image has no digest")
	ErrLookupFailed  = errors.New("image lookup failed")

	// Configuration errors
	ErrUnknownMode = errors.New("unknown resolver mode")
)

// ResolveError reports which service's image could not be resolved.
type ResolveError struct {
	ServiceID string
	Image     string
	Err       error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve image %q for service %q: %v", e.Image, e.ServiceID, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}
