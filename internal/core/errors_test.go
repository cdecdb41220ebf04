package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurationErrorMessages(t *testing.T) {
	t.Parallel()

	missing := NewConfigurationError("smtp", "host", "port")
	assert.Equal(t, "missing required smtp configuration: host, port", missing.Error())

	freeform := NewConfigurationMessageError("smtp", "use_tls and use_ssl are mutually exclusive")
	assert.Equal(t, "invalid smtp configuration: use_tls and use_ssl are mutually exclusive", freeform.Error())
}

func TestSendErrorChaining(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := WrapSendError("mailgun", "failed to send email", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "mailgun")

	var sendErr *SendError
	require.ErrorAs(t, error(err), &sendErr)
	assert.Equal(t, "mailgun", sendErr.Provider)
}

func TestSendErrorMessageCarriesCause(t *testing.T) {
	t.Parallel()

	wrapped := WrapSendError("smtp", "failed to send email", errors.New("connection refused"))
	assert.Equal(t, "provider smtp error: failed to send email: connection refused", wrapped.Error())

	plain := NewSendError("smtp", "failed to send email")
	assert.Equal(t, "provider smtp error: failed to send email", plain.Error())
}

func TestSendErrorStatusCode(t *testing.T) {
	t.Parallel()

	err := NewSendStatusError("postmark", 422, "error 300: invalid from address")
	assert.Equal(t, 422, err.StatusCode)
	assert.Contains(t, err.Error(), "status 422")
}

func TestErrorIsMatchesByKind(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, NewValidationError("to", "required"), &ValidationError{})
	assert.ErrorIs(t, NewConfigurationError("ses", "secret_key"), &ConfigurationError{})
	assert.ErrorIs(t, NewSendError("brevo", "boom"), &SendError{})
	assert.NotErrorIs(t, NewSendError("brevo", "boom"), &ValidationError{})
}
