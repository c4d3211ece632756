package manifest

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Input errors
	ErrEmptyDocument   = errors.New("document is empty")
	ErrInvalidDocument = errors.New("invalid document")

	// Field errors
	ErrMissingNamespace   = errors.New("service namespace is required")
	ErrInvalidServiceID   = errors.New("invalid service id")
	ErrDuplicateServiceID = errors.New("duplicate service id")
)

// DocumentError wraps errors with context about which part of the document
// failed.
type DocumentError struct {
	Field   string // e.g., "apprunner.services.web"
	Message string
	Err     error
}

func (e *DocumentError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// NewDocumentError creates a new DocumentError.
func NewDocumentError(field, message string, err error) *DocumentError {
	return &DocumentError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
