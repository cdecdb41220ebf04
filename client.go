package mailbridge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mailbridge/mailbridge/internal/core"
	"github.com/mailbridge/mailbridge/internal/providers/brevo"
	"github.com/mailbridge/mailbridge/internal/providers/mailgun"
	"github.com/mailbridge/mailbridge/internal/providers/postmark"
	"github.com/mailbridge/mailbridge/internal/providers/sendgrid"
	"github.com/mailbridge/mailbridge/internal/providers/ses"
	"github.com/mailbridge/mailbridge/internal/providers/smtp"
)

// Type aliases to re-export core types for the public API.
// This allows users to access types like mailbridge.Message instead of
// core.Message, maintaining a clean public interface while keeping
// implementation details internal.
type (
	Provider           = core.Provider
	ProviderSettings   = core.ProviderSettings
	Message            = core.Message
	AddressList        = core.AddressList
	Attachment         = core.Attachment
	BulkRequest        = core.BulkRequest
	BulkOption         = core.BulkOption
	SendResult         = core.SendResult
	BulkResult         = core.BulkResult
	ValidationError    = core.ValidationError
	ConfigurationError = core.ConfigurationError
	SendError          = core.SendError
)

// Constructor functions re-exported from core.
var (
	NewMessage            = core.NewMessage
	NewTemplateMessage    = core.NewTemplateMessage
	NewBulkRequest        = core.NewBulkRequest
	WithDefaultFrom       = core.WithDefaultFrom
	WithBulkTags          = core.WithBulkTags
	AttachFile            = core.AttachFile
	AttachData            = core.AttachData
	NewValidationError    = core.NewValidationError
	NewConfigurationError = core.NewConfigurationError
	NewSendError          = core.NewSendError
	WrapSendError         = core.WrapSendError
)

// Factory constructs a provider from its settings.
type Factory func(settings ProviderSettings) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"smtp":     func(s ProviderSettings) (Provider, error) { return smtp.NewProvider(s) },
		"sendgrid": func(s ProviderSettings) (Provider, error) { return sendgrid.NewProvider(s) },
		"mailgun":  func(s ProviderSettings) (Provider, error) { return mailgun.NewProvider(s) },
		"ses":      func(s ProviderSettings) (Provider, error) { return ses.NewProvider(s) },
		"postmark": func(s ProviderSettings) (Provider, error) { return postmark.NewProvider(s) },
		"brevo":    func(s ProviderSettings) (Provider, error) { return brevo.NewProvider(s) },
	}
)

// RegisterProvider registers a custom provider factory under the given
// name, overriding any built-in of the same name. Names are
// case-insensitive.
func RegisterProvider(name string, factory Factory) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return NewValidationError("name", "provider name must not be empty")
	}
	if factory == nil {
		return NewValidationError("factory", "provider factory must not be nil")
	}
	registryMu.Lock()
	registry[name] = factory
	registryMu.Unlock()
	return nil
}

// AvailableProviders returns the registered provider names, sorted.
func AvailableProviders() []string {
	registryMu.RLock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	registryMu.RUnlock()
	sort.Strings(names)
	return names
}

func lookupFactory(name string) (Factory, error) {
	registryMu.RLock()
	factory, ok := registry[strings.ToLower(name)]
	registryMu.RUnlock()
	if !ok {
		return nil, &ProviderNotFoundError{Provider: name, Available: AvailableProviders()}
	}
	return factory, nil
}

// Client is the provider-agnostic email sending facade.
// All methods are safe for concurrent use.
type Client struct {
	providerName string
	provider     Provider
	tracer       trace.Tracer
	mu           sync.RWMutex
	closed       bool
}

// New creates a client backed by the named provider. The provider name is
// case-insensitive; construction fails with ProviderNotFoundError for
// unknown names and with ConfigurationError when required settings are
// missing. The client must be closed when no longer needed.
func New(provider string, settings ProviderSettings) (*Client, error) {
	factory, err := lookupFactory(provider)
	if err != nil {
		return nil, err
	}
	p, err := factory(settings)
	if err != nil {
		return nil, err
	}
	return &Client{
		providerName: strings.ToLower(provider),
		provider:     p,
		tracer:       otel.Tracer("github.com/mailbridge/mailbridge"),
	}, nil
}

// ProviderName returns the name the client was constructed with.
func (c *Client) ProviderName() string { return c.providerName }

// SupportsTemplates reports whether the backing provider sends
// provider-side templates.
func (c *Client) SupportsTemplates() bool { return c.provider.SupportsTemplates() }

// SupportsBulkSending reports whether the backing provider has a native
// bulk API.
func (c *Client) SupportsBulkSending() bool { return c.provider.SupportsBulkSending() }

// Send sends a single email. The message is validated before any network
// traffic happens.
func (c *Client) Send(ctx context.Context, msg *Message) (*SendResult, error) {
	ctx, span := c.tracer.Start(ctx, "mailbridge.Client.Send")
	defer span.End()

	if err := c.checkOpen(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := msg.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("mail.provider", c.providerName),
		attribute.Int("mail.recipients", len(msg.Recipients())),
		attribute.Bool("mail.template", msg.IsTemplate()),
	)

	result, err := c.provider.Send(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		return nil, err
	}

	span.SetAttributes(attribute.String("mail.message_id", result.MessageID))
	span.SetStatus(codes.Ok, "email sent")
	return result, nil
}

// SendBulk dispatches a batch through the provider's bulk policy. Every
// message is validated up front; an invalid message fails the whole call
// before anything is sent. The returned result accounts for every
// dispatch unit: Total == Successful + Failed.
func (c *Client) SendBulk(ctx context.Context, bulk *BulkRequest) (*BulkResult, error) {
	ctx, span := c.tracer.Start(ctx, "mailbridge.Client.SendBulk")
	defer span.End()

	if err := c.checkOpen(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("mail.provider", c.providerName),
		attribute.Int("mail.bulk.size", len(bulk.Messages)),
	)

	for i, msg := range bulk.Messages {
		if err := msg.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "validation failed")
			return nil, WrapSendError(c.providerName,
				fmt.Sprintf("invalid message at index %d", i), err)
		}
	}

	result, err := c.provider.SendBulk(ctx, bulk)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bulk send failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("mail.bulk.successful", result.Successful),
		attribute.Int("mail.bulk.failed", result.Failed),
	)
	span.SetStatus(codes.Ok, "bulk send completed")
	return result, nil
}

// SendMessages is a convenience wrapper that builds a BulkRequest from a
// message list and dispatches it.
func (c *Client) SendMessages(ctx context.Context, messages []*Message, opts ...BulkOption) (*BulkResult, error) {
	bulk, err := NewBulkRequest(messages, opts...)
	if err != nil {
		return nil, err
	}
	return c.SendBulk(ctx, bulk)
}

// Close closes the client and the backing provider. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.provider.Close()
}

func (c *Client) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}
