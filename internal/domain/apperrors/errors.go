// internal/domain/apperrors/errors.go
package apperrors

import (
	"errors"
	"fmt"
)

// Error kinds shared by the scheduling core and its adapters.
// Adapters wrap their failures with one of these so callers can branch with errors.Is.
var (
	ErrConfiguration    = errors.New("configuration error")
	ErrLookup           = errors.New("lookup failure")
	ErrPermissionDenied = errors.New("permission denied")
	ErrTransient        = errors.New("transient dependency error")
)

// ConfigurationError reports a malformed or incomplete configuration value.
// It is returned before anything is applied.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// NewConfigurationError is a shorthand used by validators.
func NewConfigurationError(field, value, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Value: value, Reason: reason}
}

// IsTransient reports whether err is a temporary store or platform failure rather than
// a problem with the guild's setup.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
