package ses

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsses "github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailbridge/mailbridge/internal/core"
)

// fakeClient records SES API calls and returns scripted outputs.
type fakeClient struct {
	simple    []*awsses.SendEmailInput
	templated []*awsses.SendTemplatedEmailInput
	bulk      []*awsses.SendBulkTemplatedEmailInput
	raw       []*awsses.SendRawEmailInput

	simpleErr error
	bulkErr   error
}

func (f *fakeClient) SendEmail(_ context.Context, params *awsses.SendEmailInput, _ ...func(*awsses.Options)) (*awsses.SendEmailOutput, error) {
	f.simple = append(f.simple, params)
	if f.simpleErr != nil {
		return nil, f.simpleErr
	}
	return &awsses.SendEmailOutput{MessageId: aws.String(fmt.Sprintf("ses-simple-%d", len(f.simple)))}, nil
}

func (f *fakeClient) SendTemplatedEmail(_ context.Context, params *awsses.SendTemplatedEmailInput, _ ...func(*awsses.Options)) (*awsses.SendTemplatedEmailOutput, error) {
	f.templated = append(f.templated, params)
	return &awsses.SendTemplatedEmailOutput{MessageId: aws.String("ses-templated-1")}, nil
}

func (f *fakeClient) SendBulkTemplatedEmail(_ context.Context, params *awsses.SendBulkTemplatedEmailInput, _ ...func(*awsses.Options)) (*awsses.SendBulkTemplatedEmailOutput, error) {
	f.bulk = append(f.bulk, params)
	if f.bulkErr != nil {
		return nil, f.bulkErr
	}
	statuses := make([]types.BulkEmailDestinationStatus, len(params.Destinations))
	for i := range statuses {
		statuses[i] = types.BulkEmailDestinationStatus{
			Status:    types.BulkEmailStatusSuccess,
			MessageId: aws.String(fmt.Sprintf("ses-bulk-%d-%d", len(f.bulk), i)),
		}
	}
	return &awsses.SendBulkTemplatedEmailOutput{Status: statuses}, nil
}

func (f *fakeClient) SendRawEmail(_ context.Context, params *awsses.SendRawEmailInput, _ ...func(*awsses.Options)) (*awsses.SendRawEmailOutput, error) {
	f.raw = append(f.raw, params)
	return &awsses.SendRawEmailOutput{MessageId: aws.String("ses-raw-1")}, nil
}

func newTestProvider(t *testing.T) (*Provider, *fakeClient) {
	t.Helper()
	p, err := NewProvider(core.ProviderSettings{
		"region":     "eu-west-1",
		"from_email": "noreply@example.com",
	})
	require.NoError(t, err)

	fake := &fakeClient{}
	p.client = fake
	return p, fake
}

func TestNewProviderCredentialPairing(t *testing.T) {
	t.Parallel()

	_, err := NewProvider(core.ProviderSettings{"access_key": "AKIA..."})
	var cfgErr *core.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"secret_key"}, cfgErr.Missing)

	_, err = NewProvider(core.ProviderSettings{"secret_key": "shhh"})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"access_key"}, cfgErr.Missing)
}

func TestSendSimpleEmail(t *testing.T) {
	t.Parallel()

	p, fake := newTestProvider(t)

	msg := core.NewMessage("user@example.com", "Welcome", "<h1>Hello</h1>")
	msg.CC = core.AddressList{"cc@example.com"}

	result, err := p.Send(context.Background(), msg)
	require.NoError(t, err)
	require.Len(t, fake.simple, 1)

	input := fake.simple[0]
	assert.Equal(t, "noreply@example.com", aws.ToString(input.Source))
	assert.Equal(t, []string{"user@example.com"}, input.Destination.ToAddresses)
	assert.Equal(t, []string{"cc@example.com"}, input.Destination.CcAddresses)
	assert.Equal(t, "Welcome", aws.ToString(input.Message.Subject.Data))
	require.NotNil(t, input.Message.Body.Html)
	assert.Nil(t, input.Message.Body.Text)

	assert.True(t, result.Success)
	assert.Equal(t, "ses-simple-1", result.MessageID)
	assert.Equal(t, "ses", result.Provider)
}

func TestSendPlainTextBody(t *testing.T) {
	t.Parallel()

	p, fake := newTestProvider(t)

	msg := core.NewMessage("user@example.com", "Hi", "plain body")
	msg.HTML = false

	_, err := p.Send(context.Background(), msg)
	require.NoError(t, err)

	input := fake.simple[0]
	assert.Nil(t, input.Message.Body.Html)
	require.NotNil(t, input.Message.Body.Text)
	assert.Equal(t, "plain body", aws.ToString(input.Message.Body.Text.Data))
}

func TestSendTemplatedEmail(t *testing.T) {
	t.Parallel()

	p, fake := newTestProvider(t)

	msg := core.NewTemplateMessage("user@example.com", "WelcomeTemplate", map[string]any{"name": "Ada"})
	result, err := p.Send(context.Background(), msg)
	require.NoError(t, err)
	require.Len(t, fake.templated, 1)

	input := fake.templated[0]
	assert.Equal(t, "WelcomeTemplate", aws.ToString(input.Template))
	assert.JSONEq(t, `{"name":"Ada"}`, aws.ToString(input.TemplateData))
	assert.Equal(t, "WelcomeTemplate", result.Metadata["template_id"])
}

func TestSendWithAttachmentsUsesRawAPI(t *testing.T) {
	t.Parallel()

	p, fake := newTestProvider(t)

	msg := core.NewMessage("user@example.com", "Report", "See attached")
	msg.BCC = core.AddressList{"audit@example.com"}
	msg.Attachments = []core.Attachment{
		core.AttachData("report.csv", []byte("a,b\n1,2\n"), "text/csv"),
	}

	result, err := p.Send(context.Background(), msg)
	require.NoError(t, err)
	require.Len(t, fake.raw, 1)

	input := fake.raw[0]
	assert.Equal(t, []string{"user@example.com", "audit@example.com"}, input.Destinations)
	raw := string(input.RawMessage.Data)
	assert.Contains(t, raw, "multipart/mixed")
	assert.Contains(t, raw, "Content-Type: text/csv")
	assert.Contains(t, raw, `filename="report.csv"`)
	assert.Equal(t, "ses-raw-1", result.MessageID)
}

func TestSendBulkChunksAtFifty(t *testing.T) {
	t.Parallel()

	p, fake := newTestProvider(t)

	messages := make([]*core.Message, 75)
	for i := range messages {
		messages[i] = core.NewTemplateMessage(
			fmt.Sprintf("user%d@example.com", i), "Digest",
			map[string]any{"index": i})
	}
	bulk, err := core.NewBulkRequest(messages)
	require.NoError(t, err)

	result, err := p.SendBulk(context.Background(), bulk)
	require.NoError(t, err)

	require.Len(t, fake.bulk, 2)
	assert.Len(t, fake.bulk[0].Destinations, 50)
	assert.Len(t, fake.bulk[1].Destinations, 25)

	// One result per API call, not per recipient.
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 50, result.Responses[0].Metadata["bulk_count"])
	assert.Equal(t, 50, result.Responses[0].Metadata["success_count"])
	assert.Equal(t, 25, result.Responses[1].Metadata["bulk_count"])

	// Default data comes from the chunk's first message.
	assert.JSONEq(t, `{"index":0}`, aws.ToString(fake.bulk[0].DefaultTemplateData))
	assert.JSONEq(t, `{"index":50}`, aws.ToString(fake.bulk[1].DefaultTemplateData))
}

func TestSendBulkMixedBatchIsolatesRegularFailures(t *testing.T) {
	t.Parallel()

	p, fake := newTestProvider(t)
	fake.simpleErr = errors.New("throttled")

	bulk, err := core.NewBulkRequest([]*core.Message{
		core.NewTemplateMessage("a@example.com", "Digest", nil),
		core.NewMessage("b@example.com", "Plain", "Hello"),
	})
	require.NoError(t, err)

	result, err := p.SendBulk(context.Background(), bulk)
	require.NoError(t, err)

	assert.Len(t, fake.bulk, 1)
	assert.Len(t, fake.simple, 1)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, result.Responses[1].Error, "throttled")
}

func TestSendBulkChunkFailureAborts(t *testing.T) {
	t.Parallel()

	p, fake := newTestProvider(t)
	fake.bulkErr = errors.New("template does not exist")

	bulk, err := core.NewBulkRequest([]*core.Message{
		core.NewTemplateMessage("a@example.com", "Missing", nil),
	})
	require.NoError(t, err)

	_, err = p.SendBulk(context.Background(), bulk)
	var sendErr *core.SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, "ses", sendErr.Provider)
}

func TestCapabilities(t *testing.T) {
	t.Parallel()

	p, _ := newTestProvider(t)
	assert.True(t, p.SupportsTemplates())
	assert.True(t, p.SupportsBulkSending())
	assert.Equal(t, "ses", p.Name())
	assert.NoError(t, p.ValidateConfig())
	assert.NoError(t, p.Close())
}
