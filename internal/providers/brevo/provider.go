// Package brevo implements email delivery through the Brevo (formerly
// Sendinblue) transactional API. Batches go out as a single request with
// one messageVersion per recipient message.
package brevo

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/sendgrid/rest"

	"github.com/mailbridge/mailbridge/internal/core"
)

const (
	providerName    = "brevo"
	defaultEndpoint = "https://api.brevo.com/v3/smtp/email"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// address is a Brevo address object.
type address struct {
	Email string `json:"email"`
}

// attachment is a Brevo attachment entry with base64 content.
type attachment struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// messageVersion carries the per-message overrides of a bulk request:
// recipients, subject, content or template parameters.
type messageVersion struct {
	To          []address `json:"to"`
	Cc          []address `json:"cc,omitempty"`
	Bcc         []address `json:"bcc,omitempty"`
	ReplyTo     *address  `json:"replyTo,omitempty"`
	Subject     string    `json:"subject,omitempty"`
	HTMLContent string    `json:"htmlContent,omitempty"`
	TextContent string    `json:"textContent,omitempty"`
	TemplateID  any       `json:"templateId,omitempty"`
	Params      any       `json:"params,omitempty"`
}

// payload is the Brevo send request body. TemplateID is numeric on the
// wire when the template id parses as an integer.
type payload struct {
	Sender          address           `json:"sender"`
	To              []address         `json:"to,omitempty"`
	Cc              []address         `json:"cc,omitempty"`
	Bcc             []address         `json:"bcc,omitempty"`
	ReplyTo         *address          `json:"replyTo,omitempty"`
	Subject         string            `json:"subject,omitempty"`
	HTMLContent     string            `json:"htmlContent,omitempty"`
	TextContent     string            `json:"textContent,omitempty"`
	TemplateID      any               `json:"templateId,omitempty"`
	Params          any               `json:"params,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Tags            []string          `json:"tags,omitempty"`
	Attachment      []attachment      `json:"attachment,omitempty"`
	MessageVersions []messageVersion  `json:"messageVersions,omitempty"`
}

// apiResponse covers both response shapes: messageId is a plain string
// for a single send and a list of ids for a messageVersions send.
type apiResponse struct {
	MessageID any    `json:"messageId"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Provider sends email through Brevo.
type Provider struct {
	config   core.ProviderSettings
	endpoint string
	apiKey   string
	client   *rest.Client
}

// NewProvider builds a Brevo provider; api_key is required.
func NewProvider(settings core.ProviderSettings) (*Provider, error) {
	apiKey := settings.Get("api_key")
	if apiKey == "" {
		return nil, core.NewConfigurationError(providerName, "api_key")
	}
	return &Provider{
		config:   settings,
		endpoint: settings.GetDefault("endpoint", defaultEndpoint),
		apiKey:   apiKey,
		client:   rest.DefaultClient,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return providerName }

// SupportsTemplates reports that Brevo sends stored templates.
func (p *Provider) SupportsTemplates() bool { return true }

// SupportsBulkSending reports that Brevo batches natively.
func (p *Provider) SupportsBulkSending() bool { return true }

// ValidateConfig checks that the API key is present.
func (p *Provider) ValidateConfig() error {
	if p.config.Get("api_key") == "" {
		return core.NewConfigurationError(providerName, "api_key")
	}
	return nil
}

// Close releases nothing; the provider holds no persistent connection.
func (p *Provider) Close() error { return nil }

// Send delivers one message.
func (p *Provider) Send(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	body, err := p.buildPayload(msg)
	if err != nil {
		return nil, err
	}

	parsed, status, err := p.post(ctx, body)
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{"status_code": status}
	if msg.IsTemplate() {
		metadata["template_id"] = msg.TemplateID
	}
	return &core.SendResult{
		Success:   true,
		MessageID: firstMessageID(parsed.MessageID),
		Provider:  providerName,
		Metadata:  metadata,
	}, nil
}

// SendBulk delivers the whole batch in a single API call using one
// messageVersion per message. Shared fields (sender, content or template)
// come from the first message. The response messageId expands into one
// SendResult per id; a failed call aborts the batch since Brevo reports
// no per-version status on error.
func (p *Provider) SendBulk(ctx context.Context, bulk *core.BulkRequest) (*core.BulkResult, error) {
	lead := bulk.Messages[0]
	body, err := p.buildPayload(lead)
	if err != nil {
		return nil, err
	}
	body.To = nil
	body.Cc = nil
	body.Bcc = nil
	body.ReplyTo = nil

	for _, msg := range bulk.Messages {
		version := messageVersion{
			To:      toAddresses(msg.To),
			Cc:      toAddresses(msg.CC),
			Bcc:     toAddresses(msg.BCC),
			Subject: msg.Subject,
		}
		if msg.ReplyTo != "" {
			version.ReplyTo = &address{Email: msg.ReplyTo}
		}
		if msg.IsTemplate() {
			version.TemplateID = templateID(msg.TemplateID)
			version.Params = templateParams(msg)
		} else if msg.HTML {
			version.HTMLContent = msg.Body
		} else {
			version.TextContent = msg.Body
		}
		body.MessageVersions = append(body.MessageVersions, version)
	}

	parsed, status, err := p.post(ctx, body)
	if err != nil {
		return nil, err
	}

	ids := messageIDs(parsed.MessageID, len(bulk.Messages))
	responses := make([]*core.SendResult, 0, len(ids))
	for _, id := range ids {
		responses = append(responses, &core.SendResult{
			Success:   true,
			MessageID: id,
			Provider:  providerName,
			Metadata:  map[string]any{"status_code": status},
		})
	}
	return core.NewBulkResult(responses), nil
}

// post sends the payload and maps non-2xx responses to send errors
// carrying the Brevo error code and message.
func (p *Provider) post(ctx context.Context, body *payload) (*apiResponse, int, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, 0, core.WrapSendError(providerName, "failed to encode request", err)
	}

	request := rest.Request{
		Method:  rest.Post,
		BaseURL: p.endpoint,
		Headers: map[string]string{
			"api-key":      p.apiKey,
			"Content-Type": "application/json",
			"Accept":       "application/json",
		},
		Body: encoded,
	}

	response, err := p.client.SendWithContext(ctx, request)
	if err != nil {
		return nil, 0, core.WrapSendError(providerName, "request failed", err)
	}

	var parsed apiResponse
	decodeErr := json.Unmarshal([]byte(response.Body), &parsed)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		message := parsed.Message
		if message == "" {
			message = fmt.Sprintf("unexpected status %d", response.StatusCode)
		}
		if parsed.Code != "" {
			message = parsed.Code + ": " + message
		}
		return nil, response.StatusCode,
			core.NewSendStatusError(providerName, response.StatusCode, "API error: "+message)
	}
	if decodeErr != nil {
		return nil, response.StatusCode,
			core.WrapSendError(providerName, "failed to decode response", decodeErr)
	}
	return &parsed, response.StatusCode, nil
}

func (p *Provider) buildPayload(msg *core.Message) (*payload, error) {
	body := &payload{
		Sender:  address{Email: msg.From(p.config.Get("from_email"))},
		To:      toAddresses(msg.To),
		Cc:      toAddresses(msg.CC),
		Bcc:     toAddresses(msg.BCC),
		Headers: msg.Headers,
		Tags:    msg.Tags,
	}
	if msg.ReplyTo != "" {
		body.ReplyTo = &address{Email: msg.ReplyTo}
	}

	if msg.IsTemplate() {
		body.TemplateID = templateID(msg.TemplateID)
		body.Params = templateParams(msg)
	} else {
		body.Subject = msg.Subject
		if msg.HTML {
			body.HTMLContent = msg.Body
		} else {
			body.TextContent = msg.Body
		}
	}

	for _, att := range msg.Attachments {
		name, content, _, err := att.Load()
		if err != nil {
			return nil, core.WrapSendError(providerName, "failed to load attachment", err)
		}
		body.Attachment = append(body.Attachment, attachment{
			Name:    name,
			Content: base64.StdEncoding.EncodeToString(content),
		})
	}

	return body, nil
}

// templateID renders numeric template ids as JSON numbers, which is the
// form Brevo expects.
func templateID(id string) any {
	if n, err := strconv.Atoi(id); err == nil {
		return n
	}
	return id
}

// templateParams returns the message's template data, substituting an
// empty object when no data is set: Brevo rejects a missing params
// field on template sends.
func templateParams(msg *core.Message) map[string]any {
	if msg.TemplateData == nil {
		return map[string]any{}
	}
	return msg.TemplateData
}

func toAddresses(emails []string) []address {
	if len(emails) == 0 {
		return nil
	}
	out := make([]address, 0, len(emails))
	for _, email := range emails {
		out = append(out, address{Email: email})
	}
	return out
}

// firstMessageID extracts a message id from either response shape.
func firstMessageID(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// messageIDs expands the response messageId into one id per message,
// padding with empty strings when the API returns fewer ids than
// messages were sent.
func messageIDs(raw any, count int) []string {
	ids := make([]string, 0, count)
	switch v := raw.(type) {
	case string:
		ids = append(ids, v)
	case []any:
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				ids = append(ids, s)
			}
		}
	}
	for len(ids) < count {
		ids = append(ids, "")
	}
	return ids
}
