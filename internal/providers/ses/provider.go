// Package ses implements email delivery through Amazon Simple Email Service
// using the AWS SDK v2. Template batches use the native bulk-templated API,
// which caps a single call at 50 destinations.
package ses

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsses "github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	jsoniter "github.com/json-iterator/go"

	"github.com/mailbridge/mailbridge/internal/core"
)

const (
	providerName  = "ses"
	defaultRegion = "us-east-1"
	charset       = "UTF-8"

	// maxBulkDestinations is the SendBulkTemplatedEmail per-call ceiling.
	maxBulkDestinations = 50
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// apiClient is the subset of the SES client used by the provider.
type apiClient interface {
	SendEmail(ctx context.Context, params *awsses.SendEmailInput, optFns ...func(*awsses.Options)) (*awsses.SendEmailOutput, error)
	SendTemplatedEmail(ctx context.Context, params *awsses.SendTemplatedEmailInput, optFns ...func(*awsses.Options)) (*awsses.SendTemplatedEmailOutput, error)
	SendBulkTemplatedEmail(ctx context.Context, params *awsses.SendBulkTemplatedEmailInput, optFns ...func(*awsses.Options)) (*awsses.SendBulkTemplatedEmailOutput, error)
	SendRawEmail(ctx context.Context, params *awsses.SendRawEmailInput, optFns ...func(*awsses.Options)) (*awsses.SendRawEmailOutput, error)
}

// Provider sends email through Amazon SES.
type Provider struct {
	config core.ProviderSettings
	client apiClient
}

// NewProvider builds an SES provider. When access_key and secret_key are
// both present they are used as static credentials; otherwise the default
// AWS credential chain applies. Region defaults to us-east-1.
func NewProvider(settings core.ProviderSettings) (*Provider, error) {
	accessKey := settings.Get("access_key")
	secretKey := settings.Get("secret_key")
	if accessKey != "" && secretKey == "" {
		return nil, core.NewConfigurationError(providerName, "secret_key")
	}
	if secretKey != "" && accessKey == "" {
		return nil, core.NewConfigurationError(providerName, "access_key")
	}

	region := settings.GetDefault("region", defaultRegion)
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, core.NewConfigurationMessageError(providerName,
			fmt.Sprintf("failed to load AWS configuration: %v", err))
	}
	if accessKey != "" {
		cfg.Credentials = credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, settings.Get("session_token"))
	}

	return &Provider{
		config: settings,
		client: awsses.NewFromConfig(cfg),
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return providerName }

// SupportsTemplates reports that SES sends stored templates.
func (p *Provider) SupportsTemplates() bool { return true }

// SupportsBulkSending reports that SES batches template sends natively.
func (p *Provider) SupportsBulkSending() bool { return true }

// ValidateConfig checks the credential pairing.
func (p *Provider) ValidateConfig() error {
	accessKey := p.config.Get("access_key")
	secretKey := p.config.Get("secret_key")
	if accessKey != "" && secretKey == "" {
		return core.NewConfigurationError(providerName, "secret_key")
	}
	if secretKey != "" && accessKey == "" {
		return core.NewConfigurationError(providerName, "access_key")
	}
	return nil
}

// Close releases nothing; the SES client holds no persistent connection.
func (p *Provider) Close() error { return nil }

// Send routes a message to one of three SES APIs: SendTemplatedEmail for
// template messages, SendRawEmail for messages with attachments, and
// SendEmail otherwise.
func (p *Provider) Send(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	switch {
	case msg.IsTemplate():
		return p.sendTemplated(ctx, msg)
	case len(msg.Attachments) > 0:
		return p.sendRaw(ctx, msg)
	default:
		return p.sendSimple(ctx, msg)
	}
}

func (p *Provider) sendSimple(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	body := &types.Body{}
	content := &types.Content{Data: aws.String(msg.Body), Charset: aws.String(charset)}
	if msg.HTML {
		body.Html = content
	} else {
		body.Text = content
	}

	input := &awsses.SendEmailInput{
		Source:      aws.String(msg.From(p.defaultFrom())),
		Destination: p.destination(msg),
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String(charset)},
			Body:    body,
		},
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if set := p.config.Get("configuration_set"); set != "" {
		input.ConfigurationSetName = aws.String(set)
	}

	out, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return nil, core.WrapSendError(providerName, "failed to send email", err)
	}
	return p.result(aws.ToString(out.MessageId), nil), nil
}

func (p *Provider) sendTemplated(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	data, err := templateData(msg.TemplateData)
	if err != nil {
		return nil, err
	}

	input := &awsses.SendTemplatedEmailInput{
		Source:       aws.String(msg.From(p.defaultFrom())),
		Destination:  p.destination(msg),
		Template:     aws.String(msg.TemplateID),
		TemplateData: aws.String(data),
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if set := p.config.Get("configuration_set"); set != "" {
		input.ConfigurationSetName = aws.String(set)
	}

	out, err := p.client.SendTemplatedEmail(ctx, input)
	if err != nil {
		return nil, core.WrapSendError(providerName, "failed to send templated email", err)
	}
	return p.result(aws.ToString(out.MessageId), map[string]any{"template_id": msg.TemplateID}), nil
}

func (p *Provider) sendRaw(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	raw, err := buildRawMessage(msg, p.defaultFrom())
	if err != nil {
		return nil, err
	}

	input := &awsses.SendRawEmailInput{
		Source:       aws.String(msg.From(p.defaultFrom())),
		Destinations: msg.Recipients(),
		RawMessage:   &types.RawMessage{Data: raw},
	}
	if set := p.config.Get("configuration_set"); set != "" {
		input.ConfigurationSetName = aws.String(set)
	}

	out, err := p.client.SendRawEmail(ctx, input)
	if err != nil {
		return nil, core.WrapSendError(providerName, "failed to send raw email", err)
	}
	return p.result(aws.ToString(out.MessageId), map[string]any{"attachments": len(msg.Attachments)}), nil
}

// SendBulk groups template messages by template id and dispatches each
// group through SendBulkTemplatedEmail in chunks of at most 50
// destinations. Each chunk yields one SendResult; the default template
// data of a chunk comes from its first message. Non-template messages go
// through Send individually with per-message failure isolation. A failed
// bulk call aborts the batch.
func (p *Provider) SendBulk(ctx context.Context, bulk *core.BulkRequest) (*core.BulkResult, error) {
	groups, order, regular := core.GroupByTemplate(bulk.Messages)

	var responses []*core.SendResult
	for _, templateID := range order {
		for _, chunk := range core.Chunk(groups[templateID], maxBulkDestinations) {
			res, err := p.sendBulkChunk(ctx, templateID, chunk)
			if err != nil {
				return nil, err
			}
			responses = append(responses, res)
		}
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

func (p *Provider) sendBulkChunk(ctx context.Context, templateID string, chunk []*core.Message) (*core.SendResult, error) {
	defaultData, err := templateData(chunk[0].TemplateData)
	if err != nil {
		return nil, err
	}

	destinations := make([]types.BulkEmailDestination, 0, len(chunk))
	for _, msg := range chunk {
		data, err := templateData(msg.TemplateData)
		if err != nil {
			return nil, err
		}
		destinations = append(destinations, types.BulkEmailDestination{
			Destination:             p.destination(msg),
			ReplacementTemplateData: aws.String(data),
		})
	}

	input := &awsses.SendBulkTemplatedEmailInput{
		Source:              aws.String(chunk[0].From(p.defaultFrom())),
		Template:            aws.String(templateID),
		DefaultTemplateData: aws.String(defaultData),
		Destinations:        destinations,
	}
	if set := p.config.Get("configuration_set"); set != "" {
		input.ConfigurationSetName = aws.String(set)
	}

	out, err := p.client.SendBulkTemplatedEmail(ctx, input)
	if err != nil {
		return nil, core.WrapSendError(providerName, "failed to send bulk templated email", err)
	}

	var messageID string
	successCount := 0
	for _, status := range out.Status {
		if status.Status == types.BulkEmailStatusSuccess {
			successCount++
		}
		if messageID == "" && status.MessageId != nil {
			messageID = *status.MessageId
		}
	}

	return &core.SendResult{
		Success:   true,
		MessageID: messageID,
		Provider:  providerName,
		Metadata: map[string]any{
			"template_id":   templateID,
			"bulk_count":    len(chunk),
			"success_count": successCount,
		},
	}, nil
}

func (p *Provider) defaultFrom() string {
	return p.config.Get("from_email")
}

func (p *Provider) destination(msg *core.Message) *types.Destination {
	dest := &types.Destination{ToAddresses: msg.To}
	if len(msg.CC) > 0 {
		dest.CcAddresses = msg.CC
	}
	if len(msg.BCC) > 0 {
		dest.BccAddresses = msg.BCC
	}
	return dest
}

func (p *Provider) result(messageID string, metadata map[string]any) *core.SendResult {
	return &core.SendResult{
		Success:   true,
		MessageID: messageID,
		Provider:  providerName,
		Metadata:  metadata,
	}
}

// templateData serializes dynamic template data to the JSON string SES
// expects. A nil map serializes to an empty object.
func templateData(data map[string]any) (string, error) {
	if data == nil {
		return "{}", nil
	}
	serialized, err := json.Marshal(data)
	if err != nil {
		return "", core.WrapSendError(providerName, "failed to serialize template data", err)
	}
	return string(serialized), nil
}

// buildRawMessage assembles a multipart/mixed MIME message for sends that
// carry attachments.
func buildRawMessage(msg *core.Message, defaultFrom string) ([]byte, error) {
	var buf bytes.Buffer
	boundary := "mailbridge-" + fmt.Sprintf("%d", time.Now().UnixNano())

	fmt.Fprintf(&buf, "From: %s\r\n", msg.From(defaultFrom))
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	if len(msg.CC) > 0 {
		fmt.Fprintf(&buf, "Cc: %s\r\n", strings.Join(msg.CC, ", "))
	}
	if msg.ReplyTo != "" {
		fmt.Fprintf(&buf, "Reply-To: %s\r\n", msg.ReplyTo)
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode(charset, msg.Subject))
	for key, value := range msg.Headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", key, value)
	}
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)

	contentType := "text/plain"
	if msg.HTML {
		contentType = "text/html"
	}
	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	fmt.Fprintf(&buf, "Content-Type: %s; charset=%s\r\n\r\n", contentType, charset)
	buf.WriteString(msg.Body)
	buf.WriteString("\r\n")

	for _, att := range msg.Attachments {
		name, data, attType, err := att.Load()
		if err != nil {
			return nil, core.WrapSendError(providerName, "failed to load attachment", err)
		}
		fmt.Fprintf(&buf, "--%s\r\n", boundary)
		fmt.Fprintf(&buf, "Content-Type: %s\r\n", attType)
		buf.WriteString("Content-Transfer-Encoding: base64\r\n")
		fmt.Fprintf(&buf, "Content-Disposition: attachment; filename=%q\r\n\r\n", name)
		encoded := base64.StdEncoding.EncodeToString(data)
		for len(encoded) > 76 {
			buf.WriteString(encoded[:76])
			buf.WriteString("\r\n")
			encoded = encoded[76:]
		}
		buf.WriteString(encoded)
		buf.WriteString("\r\n")
	}
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	return buf.Bytes(), nil
}
