// Package postmark implements email delivery through the Postmark API.
// It speaks the JSON wire format directly over the rest transport; there
// is no vendor SDK involved.
package postmark

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/sendgrid/rest"

	"github.com/mailbridge/mailbridge/internal/core"
)

const (
	providerName    = "postmark"
	defaultEndpoint = "https://api.postmarkapp.com/email"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// header is a Postmark custom header entry.
type header struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

// attachment is a Postmark attachment entry with base64 content.
type attachment struct {
	Name        string `json:"Name"`
	Content     string `json:"Content"`
	ContentType string `json:"ContentType"`
}

// payload is the Postmark send request body. Field names follow the
// Postmark API convention of capitalized keys.
type payload struct {
	From          string         `json:"From"`
	To            string         `json:"To"`
	Cc            string         `json:"Cc,omitempty"`
	Bcc           string         `json:"Bcc,omitempty"`
	Subject       string         `json:"Subject,omitempty"`
	HTMLBody      string         `json:"HtmlBody,omitempty"`
	TextBody      string         `json:"TextBody,omitempty"`
	ReplyTo       string         `json:"ReplyTo,omitempty"`
	Tag           string         `json:"Tag,omitempty"`
	Headers       []header       `json:"Headers,omitempty"`
	TrackOpens    bool           `json:"TrackOpens,omitempty"`
	TrackLinks    string         `json:"TrackLinks,omitempty"`
	TemplateID    string         `json:"TemplateId,omitempty"`
	TemplateModel map[string]any `json:"TemplateModel,omitempty"`
	Attachments   []attachment   `json:"Attachments,omitempty"`
}

// apiResponse is the subset of the Postmark response the provider reads.
type apiResponse struct {
	MessageID string `json:"MessageID"`
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

// Provider sends email through Postmark.
type Provider struct {
	config   core.ProviderSettings
	endpoint string
	token    string
	client   *rest.Client
}

// NewProvider builds a Postmark provider. The api_key setting carries the
// server token; endpoint overrides the production API URL for testing.
func NewProvider(settings core.ProviderSettings) (*Provider, error) {
	token := settings.Get("api_key")
	if token == "" {
		return nil, core.NewConfigurationError(providerName, "api_key")
	}
	return &Provider{
		config:   settings,
		endpoint: settings.GetDefault("endpoint", defaultEndpoint),
		token:    token,
		client:   rest.DefaultClient,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return providerName }

// SupportsTemplates reports that Postmark sends stored templates.
func (p *Provider) SupportsTemplates() bool { return true }

// SupportsBulkSending reports that Postmark has no native bulk API here.
func (p *Provider) SupportsBulkSending() bool { return false }

// ValidateConfig checks that the server token is present.
func (p *Provider) ValidateConfig() error {
	if p.config.Get("api_key") == "" {
		return core.NewConfigurationError(providerName, "api_key")
	}
	return nil
}

// Close releases nothing; the provider holds no persistent connection.
func (p *Provider) Close() error { return nil }

// Send delivers one message. Template messages go to the withTemplate
// endpoint; everything else to the plain email endpoint. Postmark signals
// success strictly with HTTP 200.
func (p *Provider) Send(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	body, err := p.buildPayload(msg)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, core.WrapSendError(providerName, "failed to encode request", err)
	}

	url := p.endpoint
	if msg.IsTemplate() {
		url = strings.TrimSuffix(url, "/") + "/withTemplate"
	}

	request := rest.Request{
		Method:  rest.Post,
		BaseURL: url,
		Headers: map[string]string{
			"X-Postmark-Server-Token": p.token,
			"Content-Type":            "application/json",
			"Accept":                  "application/json",
		},
		Body: encoded,
	}

	response, err := p.client.SendWithContext(ctx, request)
	if err != nil {
		return nil, core.WrapSendError(providerName, "request failed", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal([]byte(response.Body), &parsed); err != nil && response.StatusCode == 200 {
		return nil, core.WrapSendError(providerName, "failed to decode response", err)
	}

	if response.StatusCode != 200 {
		message := parsed.Message
		if message == "" {
			message = fmt.Sprintf("unexpected status %d", response.StatusCode)
		}
		return nil, core.NewSendStatusError(providerName, response.StatusCode,
			fmt.Sprintf("error %d: %s", parsed.ErrorCode, message))
	}

	metadata := map[string]any{"status_code": response.StatusCode}
	if msg.IsTemplate() {
		metadata["template_id"] = msg.TemplateID
	}
	return &core.SendResult{
		Success:   true,
		MessageID: parsed.MessageID,
		Provider:  providerName,
		Metadata:  metadata,
	}, nil
}

// SendBulk dispatches one Send per message with failure isolation.
func (p *Provider) SendBulk(ctx context.Context, bulk *core.BulkRequest) (*core.BulkResult, error) {
	return core.SendEach(ctx, p, bulk), nil
}

func (p *Provider) buildPayload(msg *core.Message) (*payload, error) {
	body := &payload{
		From:       msg.From(p.config.Get("from_email")),
		To:         strings.Join(msg.To, ","),
		Cc:         strings.Join(msg.CC, ","),
		Bcc:        strings.Join(msg.BCC, ","),
		ReplyTo:    msg.ReplyTo,
		TrackOpens: p.config.GetBool("track_opens", false),
		TrackLinks: p.config.Get("track_links"),
	}
	if len(msg.Tags) > 0 {
		// Postmark accepts a single tag per message.
		body.Tag = msg.Tags[0]
	}
	for key, value := range msg.Headers {
		body.Headers = append(body.Headers, header{Name: key, Value: value})
	}

	if msg.IsTemplate() {
		body.TemplateID = msg.TemplateID
		body.TemplateModel = msg.TemplateData
		if body.TemplateModel == nil {
			body.TemplateModel = map[string]any{}
		}
	} else {
		body.Subject = msg.Subject
		if msg.HTML {
			body.HTMLBody = msg.Body
		} else {
			body.TextBody = msg.Body
		}
	}

	for _, att := range msg.Attachments {
		name, content, contentType, err := att.Load()
		if err != nil {
			return nil, core.WrapSendError(providerName, "failed to load attachment", err)
		}
		body.Attachments = append(body.Attachments, attachment{
			Name:        name,
			Content:     base64.StdEncoding.EncodeToString(content),
			ContentType: contentType,
		})
	}

	return body, nil
}
