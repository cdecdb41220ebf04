package sendgrid

import (
	"context"
	"encoding/base64"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/mailbridge/mailbridge/internal/core"
)

const (
	providerName = "sendgrid"
	sendPath     = "/v3/mail/send"
)

// Provider implements the core.Provider interface for SendGrid.
//
// SendGrid has a native bulk path: messages sharing a template id are
// folded into one API call carrying one personalization per recipient.
type Provider struct {
	config core.ProviderSettings
}

// NewProvider creates a new SendGrid provider.
func NewProvider(settings core.ProviderSettings) (core.Provider, error) {
	if missing := settings.Missing("api_key"); len(missing) > 0 {
		return nil, core.NewConfigurationError(providerName, missing...)
	}
	return &Provider{config: settings}, nil
}

// Send sends a single email through the v3 mail-send endpoint.
func (p *Provider) Send(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	v3, err := p.buildMail(msg)
	if err != nil {
		return nil, err
	}
	return p.post(ctx, v3, 1)
}

// SendBulk partitions the batch into template and non-template messages.
// Template messages are grouped by template id, one API call per group;
// non-template messages fall back to one Send each with per-message
// failure isolation. A failed group call aborts the batch: no partial
// per-recipient status is obtainable from a single failed request.
func (p *Provider) SendBulk(ctx context.Context, bulk *core.BulkRequest) (*core.BulkResult, error) {
	groups, order, regular := core.GroupByTemplate(bulk.Messages)

	responses := make([]*core.SendResult, 0, len(order)+len(regular))
	for _, templateID := range order {
		res, err := p.sendTemplateGroup(ctx, templateID, groups[templateID])
		if err != nil {
			return nil, err
		}
		responses = append(responses, res)
	}

	for _, msg := range regular {
		res, err := p.Send(ctx, msg)
		if err != nil {
			responses = append(responses, core.FailedResult(providerName, err))
			continue
		}
		responses = append(responses, res)
	}

	return core.NewBulkResult(responses), nil
}

// ValidateConfig validates the provider configuration.
func (p *Provider) ValidateConfig() error {
	if missing := p.config.Missing("api_key"); len(missing) > 0 {
		return core.NewConfigurationError(providerName, missing...)
	}
	return nil
}

// SupportsTemplates reports dynamic template capability.
func (p *Provider) SupportsTemplates() bool { return true }

// SupportsBulkSending reports native personalization batching.
func (p *Provider) SupportsBulkSending() bool { return true }

// Name returns the provider name.
func (p *Provider) Name() string { return providerName }

// Close is a no-op: the provider is stateless HTTP.
func (p *Provider) Close() error { return nil }

// buildMail translates a single message into the V3 payload shape: one
// personalization with the recipient list, top-level from/subject/content
// for regular sends, template id plus dynamic template data for template
// sends.
func (p *Provider) buildMail(msg *core.Message) (*mail.SGMailV3, error) {
	v3 := mail.NewV3Mail()
	v3.SetFrom(mail.NewEmail("", msg.From(p.config.Get("from_email"))))

	personalization := mail.NewPersonalization()
	for _, to := range msg.To {
		personalization.AddTos(mail.NewEmail("", to))
	}
	for _, cc := range msg.CC {
		personalization.AddCCs(mail.NewEmail("", cc))
	}
	for _, bcc := range msg.BCC {
		personalization.AddBCCs(mail.NewEmail("", bcc))
	}

	if msg.IsTemplate() {
		v3.SetTemplateID(msg.TemplateID)
		personalization.DynamicTemplateData = msg.TemplateData
	} else {
		v3.Subject = msg.Subject
		v3.AddContent(mail.NewContent(contentType(msg.HTML), msg.Body))
	}
	v3.AddPersonalizations(personalization)

	if msg.ReplyTo != "" {
		v3.SetReplyTo(mail.NewEmail("", msg.ReplyTo))
	}
	for key, value := range msg.Headers {
		v3.SetHeader(key, value)
	}
	if len(msg.Tags) > 0 {
		v3.AddCategories(msg.Tags...)
	}

	for _, att := range msg.Attachments {
		filename, content, mimeType, err := att.Load()
		if err != nil {
			return nil, core.WrapSendError(providerName, "failed to read attachment", err)
		}
		attachment := mail.NewAttachment()
		attachment.SetContent(base64.StdEncoding.EncodeToString(content))
		attachment.SetFilename(filename)
		attachment.SetType(mimeType)
		attachment.SetDisposition("attachment")
		v3.AddAttachment(attachment)
	}

	return v3, nil
}

// sendTemplateGroup folds all messages sharing a template id into one API
// call: one personalization per message, each carrying its own dynamic
// template data and cc/bcc. The single SendResult represents the whole
// group; Metadata["bulk_count"] holds the folded message count.
func (p *Provider) sendTemplateGroup(ctx context.Context, templateID string, messages []*core.Message) (*core.SendResult, error) {
	v3 := mail.NewV3Mail()
	v3.SetFrom(mail.NewEmail("", messages[0].From(p.config.Get("from_email"))))
	v3.SetTemplateID(templateID)

	for _, msg := range messages {
		personalization := mail.NewPersonalization()
		for _, to := range msg.To {
			personalization.AddTos(mail.NewEmail("", to))
		}
		for _, cc := range msg.CC {
			personalization.AddCCs(mail.NewEmail("", cc))
		}
		for _, bcc := range msg.BCC {
			personalization.AddBCCs(mail.NewEmail("", bcc))
		}
		personalization.DynamicTemplateData = msg.TemplateData
		v3.AddPersonalizations(personalization)
	}

	result, err := p.post(ctx, v3, len(messages))
	if err != nil {
		return nil, err
	}
	result.Metadata["template_id"] = templateID
	return result, nil
}

// post submits the payload and normalizes the response. Success is any
// 2xx status; the message id comes from the X-Message-Id response
// header, not the body.
func (p *Provider) post(ctx context.Context, v3 *mail.SGMailV3, bulkCount int) (*core.SendResult, error) {
	request := sendgrid.GetRequest(p.config.Get("api_key"), sendPath, p.config.Get("endpoint"))
	request.Method = "POST"
	request.Body = mail.GetRequestBody(v3)

	response, err := rest.DefaultClient.SendWithContext(ctx, request)
	if err != nil {
		return nil, core.WrapSendError(providerName, "failed to send email", err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, core.NewSendStatusError(providerName, response.StatusCode, response.Body)
	}

	var messageID string
	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}

	return &core.SendResult{
		Success:   true,
		MessageID: messageID,
		Provider:  providerName,
		Metadata: map[string]any{
			"status_code": response.StatusCode,
			"bulk_count":  bulkCount,
		},
	}, nil
}

// contentType maps the HTML flag to the MIME type SendGrid expects for
// a content entry.
func contentType(html bool) string {
	if html {
		return "text/html"
	}
	return "text/plain"
}
