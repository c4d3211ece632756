package service

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Required field errors
	ErrMissingServiceName = errors.New("serviceName is required")
	ErrMissingImage       = errors.New("image is required")

	// Value errors
	ErrInvalidSize = errors.New("invalid size tier")
	ErrInvalidPort = errors.New("invalid port")
)

// ConfigError wraps errors with context about which field failed.
type ConfigError struct {
	ServiceID string
	Field     string // e.g., "memory"
	Message   string
	Err       error
}

func (e *ConfigError) Error() string {
	switch {
	case e.ServiceID != "" && e.Field != "":
		return fmt.Sprintf("services.%s.%s: %s", e.ServiceID, e.Field, e.Message)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	default:
		return e.Message
	}
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string, err error) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
