package core

import (
	"fmt"
	"strings"
)

// ValidationError reports a message or request that violates the data
// model invariants. It is raised at construction, before any network use.
type ValidationError struct {
	// Field is the name of the field that failed validation.
	Field string

	// Message is the validation error message.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// Is implements error matching for errors.Is.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ConfigurationError reports malformed or incomplete adapter
// configuration. It is raised synchronously at construction, never
// during a send.
type ConfigurationError struct {
	// Provider is the name of the provider whose configuration failed.
	Provider string

	// Missing lists the absent mandatory keys, when that is the cause.
	Missing []string

	// Message is a free-form description for non-missing-key failures.
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing required %s configuration: %s",
			e.Provider, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("invalid %s configuration: %s", e.Provider, e.Message)
}

// Is implements error matching for errors.Is.
func (e *ConfigurationError) Is(target error) bool {
	_, ok := target.(*ConfigurationError)
	return ok
}

// NewConfigurationError creates a configuration error naming the missing
// mandatory keys.
func NewConfigurationError(provider string, missing ...string) *ConfigurationError {
	return &ConfigurationError{Provider: provider, Missing: missing}
}

// NewConfigurationMessageError creates a configuration error with a
// free-form description.
func NewConfigurationMessageError(provider, message string) *ConfigurationError {
	return &ConfigurationError{Provider: provider, Message: message}
}

// SendError reports any failure during a send attempt: network failure,
// provider-side rejection, or a malformed provider response. It always
// carries the originating provider name and, where available, the
// underlying cause for diagnostic chaining.
type SendError struct {
	// Provider is the name of the provider that generated the error.
	Provider string

	// Message is the failure description.
	Message string

	// StatusCode is the HTTP status code for HTTP-based providers,
	// zero when not applicable.
	StatusCode int

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *SendError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("provider %s error: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("provider %s error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *SendError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for errors.Is.
func (e *SendError) Is(target error) bool {
	_, ok := target.(*SendError)
	return ok
}

// NewSendError creates a send error without an underlying cause.
func NewSendError(provider, message string) *SendError {
	return &SendError{Provider: provider, Message: message}
}

// NewSendStatusError creates a send error for a rejected HTTP request.
func NewSendStatusError(provider string, statusCode int, message string) *SendError {
	return &SendError{Provider: provider, StatusCode: statusCode, Message: message}
}

// WrapSendError creates a send error chained to its underlying cause.
func WrapSendError(provider, message string, cause error) *SendError {
	return &SendError{Provider: provider, Message: message, Cause: cause}
}
