package core

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Provider defines the interface every email backend adapter implements.
// Adapters translate the provider-agnostic Message into their backend's
// wire format and normalize the backend's response into a SendResult.
type Provider interface {
	// Send sends a single email using the provider's API.
	Send(ctx context.Context, msg *Message) (*SendResult, error)

	// SendBulk sends multiple emails using the provider's native bulk API
	// where one exists. Providers without a native bulk path delegate to
	// SendEach, which loops over Send and isolates per-message failures.
	SendBulk(ctx context.Context, bulk *BulkRequest) (*BulkResult, error)

	// ValidateConfig validates the provider configuration.
	// Returns an error if the configuration is invalid or incomplete.
	ValidateConfig() error

	// SupportsTemplates reports whether the provider can render
	// server-side templates.
	SupportsTemplates() bool

	// SupportsBulkSending reports whether the provider has a native bulk
	// API, as opposed to looping client-side.
	SupportsBulkSending() bool

	// Name returns the provider's name for identification and logging.
	Name() string

	// Close releases any held connection. Safe to call multiple times;
	// a no-op for stateless HTTP providers.
	Close() error
}

// ProviderSettings represents configuration settings for email providers.
type ProviderSettings map[string]string

// Get retrieves a configuration value by key.
func (ps ProviderSettings) Get(key string) string {
	return ps[key]
}

// GetDefault retrieves a configuration value, falling back to def when
// the key is unset or empty.
func (ps ProviderSettings) GetDefault(key, def string) string {
	if v := ps[key]; v != "" {
		return v
	}
	return def
}

// GetBool interprets a configuration value as a boolean flag.
func (ps ProviderSettings) GetBool(key string, def bool) bool {
	v, ok := ps[key]
	if !ok || v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// Set sets a configuration value.
func (ps ProviderSettings) Set(key, value string) {
	ps[key] = value
}

// Missing returns the subset of keys that are absent or empty.
func (ps ProviderSettings) Missing(keys ...string) []string {
	var missing []string
	for _, k := range keys {
		if ps[k] == "" {
			missing = append(missing, k)
		}
	}
	return missing
}

// AddressList holds one or more email addresses. It unmarshals from
// either a single JSON string or an array of strings, normalizing the
// single-address form to a one-element list.
type AddressList []string

// UnmarshalJSON accepts "a@example.com" and ["a@example.com", ...] alike.
func (al *AddressList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*al = AddressList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*al = AddressList(many)
	return nil
}

// Attachment is one attachment source: either a filesystem path read at
// send time, or explicit filename/content/content-type data.
type Attachment struct {
	// Path is a filesystem path. When set, the file is read at send time
	// and the remaining fields are ignored.
	Path string

	// Filename is the name of the file as it will appear in the email.
	Filename string

	// Content is the raw attachment data.
	Content []byte

	// ContentType is the MIME content type. Defaults to
	// application/octet-stream when empty.
	ContentType string
}

// AttachFile creates a path-based attachment. The file is read when the
// message is sent, not when the attachment is constructed.
func AttachFile(path string) Attachment {
	return Attachment{Path: path}
}

// AttachData creates an attachment from in-memory content.
func AttachData(filename string, content []byte, contentType string) Attachment {
	return Attachment{Filename: filename, Content: content, ContentType: contentType}
}

// Load resolves the attachment to its final filename, content, and MIME
// type. Path-based attachments are read here and typed
// application/octet-stream.
func (a Attachment) Load() (filename string, content []byte, contentType string, err error) {
	contentType = a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if a.Path != "" {
		content, err = os.ReadFile(a.Path)
		if err != nil {
			return "", nil, "", err
		}
		return filepath.Base(a.Path), content, contentType, nil
	}
	return a.Filename, a.Content, contentType, nil
}

// Message is the provider-agnostic representation of one outbound email.
// A message is either content-driven (Subject+Body) or template-driven
// (TemplateID); Validate rejects anything that is neither.
type Message struct {
	To           AddressList       `json:"to"`
	Subject      string            `json:"subject,omitempty"`
	Body         string            `json:"body,omitempty"`
	FromEmail    string            `json:"from_email,omitempty"`
	CC           AddressList       `json:"cc,omitempty"`
	BCC          AddressList       `json:"bcc,omitempty"`
	ReplyTo      string            `json:"reply_to,omitempty"`
	Attachments  []Attachment      `json:"-"`
	HTML         bool              `json:"html"`
	Headers      map[string]string `json:"headers,omitempty"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]any    `json:"template_data,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
}

// NewMessage creates a content-driven HTML message.
func NewMessage(to, subject, body string) *Message {
	return &Message{
		To:      AddressList{to},
		Subject: subject,
		Body:    body,
		HTML:    true,
	}
}

// NewTemplateMessage creates a template-driven message whose content is
// rendered server-side by the provider.
func NewTemplateMessage(to, templateID string, data map[string]any) *Message {
	return &Message{
		To:           AddressList{to},
		TemplateID:   templateID,
		TemplateData: data,
		HTML:         true,
	}
}

// Validate checks the message invariants before any network activity.
func (m *Message) Validate() error {
	if len(m.To) == 0 {
		return NewValidationError("to", "at least one recipient required")
	}
	for _, addr := range m.To {
		if strings.TrimSpace(addr) == "" {
			return NewValidationError("to", "empty recipient address")
		}
	}
	if m.TemplateID == "" && strings.TrimSpace(m.Subject) == "" {
		return NewValidationError("subject", "either 'subject' or 'template_id' must be provided")
	}
	if m.TemplateID == "" && strings.TrimSpace(m.Body) == "" {
		return NewValidationError("body", "either 'body' or 'template_id' must be provided")
	}
	return nil
}

// IsTemplate reports whether this is a template-driven send.
func (m *Message) IsTemplate() bool {
	return m.TemplateID != ""
}

// Recipients returns the full envelope recipient list (To + CC + BCC).
func (m *Message) Recipients() []string {
	all := make([]string, 0, len(m.To)+len(m.CC)+len(m.BCC))
	all = append(all, m.To...)
	all = append(all, m.CC...)
	all = append(all, m.BCC...)
	return all
}

// From resolves the sender address, falling back to the given default
// when the message has no override of its own.
func (m *Message) From(fallback string) string {
	if m.FromEmail != "" {
		return m.FromEmail
	}
	return fallback
}

// BulkRequest is a batch submission. Constructing one applies DefaultFrom
// and common tags to the contained messages exactly once; the messages
// are mutated so that what you see is what will be sent.
type BulkRequest struct {
	Messages    []*Message
	DefaultFrom string
	Tags        []string
}

// BulkOption configures a BulkRequest at construction time.
type BulkOption func(*BulkRequest)

// WithDefaultFrom sets the sender applied to every message that lacks
// its own from address.
func WithDefaultFrom(addr string) BulkOption {
	return func(b *BulkRequest) { b.DefaultFrom = addr }
}

// WithBulkTags sets tags appended to every message's own tags.
func WithBulkTags(tags ...string) BulkOption {
	return func(b *BulkRequest) { b.Tags = tags }
}

// NewBulkRequest builds a batch from messages and applies the one-time
// default fill. An empty message list is a construction error.
func NewBulkRequest(messages []*Message, opts ...BulkOption) (*BulkRequest, error) {
	if len(messages) == 0 {
		return nil, NewValidationError("messages", "at least one message must be provided")
	}
	bulk := &BulkRequest{Messages: messages}
	for _, opt := range opts {
		opt(bulk)
	}
	if bulk.DefaultFrom != "" {
		for _, m := range bulk.Messages {
			if m.FromEmail == "" {
				m.FromEmail = bulk.DefaultFrom
			}
		}
	}
	if len(bulk.Tags) > 0 {
		for _, m := range bulk.Messages {
			m.Tags = append(m.Tags, bulk.Tags...)
		}
	}
	return bulk, nil
}

// SendResult is the normalized outcome of one logical send. When a
// provider's native batching folds several personalizations into one API
// call, a single SendResult represents the whole call and
// Metadata["bulk_count"] recovers the folded message count.
type SendResult struct {
	// Success reports whether the provider accepted the request.
	Success bool

	// MessageID is the provider-issued identifier, present on success.
	MessageID string

	// Provider is the name of the provider that produced this result.
	Provider string

	// Error is a human-readable failure description, present on failure.
	Error string

	// Metadata carries provider-specific extras (status codes, request
	// ids, batch counts). Diagnostics only, not part of the portable
	// contract.
	Metadata map[string]any
}

// FailedResult converts a send error into a failed SendResult for batch
// aggregation.
func FailedResult(provider string, err error) *SendResult {
	return &SendResult{
		Success:  false,
		Provider: provider,
		Error:    err.Error(),
	}
}

// BulkResult is the aggregate outcome of a batch. Total counts logical
// units sent (API-call-equivalents, not raw recipients) and
// Successful + Failed == Total always holds.
type BulkResult struct {
	Total      int
	Successful int
	Failed     int
	Responses  []*SendResult
}

// NewBulkResult derives the aggregate counts from a list of results.
func NewBulkResult(responses []*SendResult) *BulkResult {
	result := &BulkResult{
		Total:     len(responses),
		Responses: responses,
	}
	for _, r := range responses {
		if r.Success {
			result.Successful++
		} else {
			result.Failed++
		}
	}
	return result
}

// SendEach is the default bulk policy for providers without a native bulk
// API: one Send per message, sequential, never aborting the batch. Each
// failure becomes a failed SendResult carrying the provider name.
func SendEach(ctx context.Context, p Provider, bulk *BulkRequest) *BulkResult {
	responses := make([]*SendResult, 0, len(bulk.Messages))
	for _, msg := range bulk.Messages {
		res, err := p.Send(ctx, msg)
		if err != nil {
			responses = append(responses, FailedResult(p.Name(), err))
			continue
		}
		responses = append(responses, res)
	}
	return NewBulkResult(responses)
}

// GroupByTemplate partitions a batch for providers with native
// personalization batching: template messages are grouped by template id
// (first-appearance order preserved in order), non-template messages are
// returned separately for individual dispatch.
func GroupByTemplate(messages []*Message) (groups map[string][]*Message, order []string, regular []*Message) {
	groups = make(map[string][]*Message)
	for _, msg := range messages {
		if !msg.IsTemplate() {
			regular = append(regular, msg)
			continue
		}
		if _, seen := groups[msg.TemplateID]; !seen {
			order = append(order, msg.TemplateID)
		}
		groups[msg.TemplateID] = append(groups[msg.TemplateID], msg)
	}
	return groups, order, regular
}

// Chunk splits messages into sub-batches of at most size entries, for
// providers with a hard per-call destination ceiling.
func Chunk(messages []*Message, size int) [][]*Message {
	var chunks [][]*Message
	for len(messages) > size {
		chunks = append(chunks, messages[:size])
		messages = messages[size:]
	}
	return append(chunks, messages)
}
