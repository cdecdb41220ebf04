package mailbridge

import (
	"errors"
	"fmt"
	"strings"
)

// Predefined sentinel errors for common cases.
var (
	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("client closed")
)

// ProviderNotFoundError indicates a requested provider name is not
// registered.
type ProviderNotFoundError struct {
	// Provider is the name that was requested.
	Provider string

	// Available lists the registered provider names.
	Available []string
}

// Error implements the error interface.
func (e *ProviderNotFoundError) Error() string {
	return fmt.Sprintf("provider %q not found. Available providers: %s",
		e.Provider, strings.Join(e.Available, ", "))
}
