package mailgun

import (
	"context"
	"net/url"
	"strings"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/mailbridge/mailbridge/internal/core"
)

const providerName = "mailgun"

// sender is the slice of the Mailgun client this provider uses.
// Narrowed for test injection.
type sender interface {
	Send(ctx context.Context, message *mailgun.Message) (string, string, error)
}

// Provider implements the core.Provider interface for Mailgun.
//
// Mailgun endpoints are account-specific, so the endpoint setting is
// mandatory and carries both the API base and the sending domain, e.g.
// https://api.mailgun.net/v3/mg.example.com. Requests are form-encoded
// with basic auth (user "api", password = api key); custom headers use
// Mailgun's h:<name> convention. All of that is handled by the client.
type Provider struct {
	client sender
	config core.ProviderSettings
}

// NewProvider creates a new Mailgun provider.
func NewProvider(settings core.ProviderSettings) (core.Provider, error) {
	if missing := settings.Missing("api_key", "endpoint"); len(missing) > 0 {
		return nil, core.NewConfigurationError(providerName, missing...)
	}

	apiBase, domain, err := splitEndpoint(settings.Get("endpoint"))
	if err != nil {
		return nil, core.NewConfigurationMessageError(providerName, err.Error())
	}

	client := mailgun.NewMailgun(domain, settings.Get("api_key"))
	client.SetAPIBase(apiBase)

	return &Provider{client: client, config: settings}, nil
}

// Send sends a single email via the Mailgun messages API.
func (p *Provider) Send(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	message, err := p.buildMessage(msg)
	if err != nil {
		return nil, err
	}

	mes, id, err := p.client.Send(ctx, message)
	if err != nil {
		return nil, core.WrapSendError(providerName, "failed to send email", err)
	}

	return &core.SendResult{
		Success:   true,
		MessageID: id,
		Provider:  providerName,
		Metadata: map[string]any{
			"message": mes,
		},
	}, nil
}

// SendBulk loops over Send; Mailgun has no native bulk path here.
func (p *Provider) SendBulk(ctx context.Context, bulk *core.BulkRequest) (*core.BulkResult, error) {
	return core.SendEach(ctx, p, bulk), nil
}

// ValidateConfig validates the provider configuration.
func (p *Provider) ValidateConfig() error {
	if missing := p.config.Missing("api_key", "endpoint"); len(missing) > 0 {
		return core.NewConfigurationError(providerName, missing...)
	}
	return nil
}

// SupportsTemplates reports stored-template capability.
func (p *Provider) SupportsTemplates() bool { return true }

// SupportsBulkSending reports native bulk capability; Mailgun sends are
// looped client-side.
func (p *Provider) SupportsBulkSending() bool { return false }

// Name returns the provider name.
func (p *Provider) Name() string { return providerName }

// Close is a no-op: the provider is stateless HTTP.
func (p *Provider) Close() error { return nil }

// buildMessage translates the message model into a Mailgun message.
// Template sends set the stored template name plus its variables;
// regular sends set html or text content per the HTML flag.
func (p *Provider) buildMessage(msg *core.Message) (*mailgun.Message, error) {
	from := msg.From(p.config.Get("from_email"))

	var message *mailgun.Message
	switch {
	case msg.IsTemplate():
		message = mailgun.NewMessage(from, msg.Subject, "", msg.To...)
		message.SetTemplate(msg.TemplateID)
		for key, value := range msg.TemplateData {
			if err := message.AddTemplateVariable(key, value); err != nil {
				return nil, core.WrapSendError(providerName, "failed to set template variable", err)
			}
		}
	case msg.HTML:
		message = mailgun.NewMessage(from, msg.Subject, "", msg.To...)
		message.SetHTML(msg.Body)
	default:
		message = mailgun.NewMessage(from, msg.Subject, msg.Body, msg.To...)
	}

	for _, cc := range msg.CC {
		message.AddCC(cc)
	}
	for _, bcc := range msg.BCC {
		message.AddBCC(bcc)
	}
	if msg.ReplyTo != "" {
		message.SetReplyTo(msg.ReplyTo)
	}
	for key, value := range msg.Headers {
		message.AddHeader(key, value)
	}
	for _, tag := range msg.Tags {
		if err := message.AddTag(tag); err != nil {
			return nil, core.WrapSendError(providerName, "failed to add tag", err)
		}
	}

	for _, att := range msg.Attachments {
		if att.Path != "" {
			// Opened in binary mode by the client at send time.
			message.AddAttachment(att.Path)
			continue
		}
		filename, content, _, err := att.Load()
		if err != nil {
			return nil, core.WrapSendError(providerName, "failed to read attachment", err)
		}
		message.AddBufferAttachment(filename, content)
	}

	return message, nil
}

// splitEndpoint separates an account endpoint into the API base and the
// sending domain: the domain is the last path segment, everything before
// it is the base.
func splitEndpoint(endpoint string) (apiBase, domain string, err error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", "", err
	}
	trimmed := strings.Trim(u.Path, "/")
	segments := strings.Split(trimmed, "/")
	if trimmed == "" || len(segments) == 0 {
		return "", "", core.NewConfigurationMessageError(providerName,
			"endpoint must include the sending domain, e.g. https://api.mailgun.net/v3/mg.example.com")
	}
	domain = segments[len(segments)-1]
	u.Path = "/" + strings.Join(segments[:len(segments)-1], "/")
	if u.Path == "/" {
		u.Path = "/v3"
	}
	return strings.TrimSuffix(u.String(), "/"), domain, nil
}
