package mailgun

import (
	"context"
	"errors"
	"testing"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailbridge/mailbridge/internal/core"
)

// fakeSender records sent messages and returns scripted results.
type fakeSender struct {
	messages []*mailgun.Message
	id       string
	err      error
}

func (f *fakeSender) Send(_ context.Context, message *mailgun.Message) (string, string, error) {
	f.messages = append(f.messages, message)
	if f.err != nil {
		return "", "", f.err
	}
	return "Queued. Thank you.", f.id, nil
}

func newTestProvider(t *testing.T) (*Provider, *fakeSender) {
	t.Helper()
	prov, err := NewProvider(core.ProviderSettings{
		"api_key":    "key-test",
		"endpoint":   "https://api.mailgun.net/v3/mg.example.com",
		"from_email": "noreply@mg.example.com",
	})
	require.NoError(t, err)

	p, ok := prov.(*Provider)
	require.True(t, ok)

	fake := &fakeSender{id: "<msg-1@mg.example.com>"}
	p.client = fake
	return p, fake
}

func TestNewProviderValidation(t *testing.T) {
	t.Parallel()

	_, err := NewProvider(core.ProviderSettings{"api_key": "key-test"})
	var cfgErr *core.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"endpoint"}, cfgErr.Missing)

	_, err = NewProvider(core.ProviderSettings{
		"api_key":  "key-test",
		"endpoint": "https://api.mailgun.net",
	})
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "sending domain")
}

func TestSplitEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		endpoint string
		apiBase  string
		domain   string
	}{
		{
			endpoint: "https://api.mailgun.net/v3/mg.example.com",
			apiBase:  "https://api.mailgun.net/v3",
			domain:   "mg.example.com",
		},
		{
			endpoint: "https://api.eu.mailgun.net/v3/mg.example.com",
			apiBase:  "https://api.eu.mailgun.net/v3",
			domain:   "mg.example.com",
		},
		{
			endpoint: "https://api.mailgun.net/mg.example.com",
			apiBase:  "https://api.mailgun.net/v3",
			domain:   "mg.example.com",
		},
	}

	for _, tt := range tests {
		apiBase, domain, err := splitEndpoint(tt.endpoint)
		require.NoError(t, err, tt.endpoint)
		assert.Equal(t, tt.apiBase, apiBase)
		assert.Equal(t, tt.domain, domain)
	}
}

func TestSendReturnsProviderID(t *testing.T) {
	t.Parallel()

	p, fake := newTestProvider(t)

	result, err := p.Send(context.Background(), core.NewMessage("user@example.com", "Hi", "<p>Hello</p>"))
	require.NoError(t, err)
	require.Len(t, fake.messages, 1)

	assert.True(t, result.Success)
	assert.Equal(t, "<msg-1@mg.example.com>", result.MessageID)
	assert.Equal(t, "mailgun", result.Provider)
	assert.Equal(t, "Queued. Thank you.", result.Metadata["message"])
}

func TestSendWrapsClientErrors(t *testing.T) {
	t.Parallel()

	p, fake := newTestProvider(t)
	fake.err = errors.New("401 unauthorized")

	_, err := p.Send(context.Background(), core.NewMessage("user@example.com", "Hi", "Hello"))
	var sendErr *core.SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, "mailgun", sendErr.Provider)
	assert.Contains(t, sendErr.Error(), "failed to send email")
}

func TestSendTemplateMessage(t *testing.T) {
	t.Parallel()

	p, fake := newTestProvider(t)

	msg := core.NewTemplateMessage("user@example.com", "welcome", map[string]any{"name": "Ada"})
	result, err := p.Send(context.Background(), msg)
	require.NoError(t, err)
	require.Len(t, fake.messages, 1)
	assert.True(t, result.Success)
}

func TestSendBulkLoopsWithIsolation(t *testing.T) {
	t.Parallel()

	p, fake := newTestProvider(t)

	bulk, err := core.NewBulkRequest([]*core.Message{
		core.NewMessage("a@example.com", "Hi", "Hello"),
		core.NewMessage("b@example.com", "Hi", "Hello"),
	})
	require.NoError(t, err)

	result, err := p.SendBulk(context.Background(), bulk)
	require.NoError(t, err)
	assert.Len(t, fake.messages, 2)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Successful)
}

func TestCapabilities(t *testing.T) {
	t.Parallel()

	p, _ := newTestProvider(t)
	assert.True(t, p.SupportsTemplates())
	assert.False(t, p.SupportsBulkSending())
	assert.Equal(t, "mailgun", p.Name())
	assert.NoError(t, p.Close())
}
