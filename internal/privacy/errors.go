package privacy

import (
	"errors"
	"fmt"
)

// ErrBackendDegraded marks a detection run that fell back to pattern-only
// matching because the entity recognizer failed or timed out. It is attached
// to results as a warning and never returned from Detect.
var ErrBackendDegraded = errors.New("entity recognizer degraded, detection narrowed to patterns")

// ConfigurationError is returned before any work begins when a caller
// supplies an invalid configuration
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid configuration %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError builds a ConfigurationError with a formatted reason
func NewConfigurationError(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// degradedWarning renders a backend failure without its message, which may
// echo input text
func degradedWarning(cause error) string {
	return fmt.Sprintf("%v (%T)", ErrBackendDegraded, cause)
}
