// Package mailbridge provides a provider-agnostic Go library for sending
// transactional email through a single interface.
//
// The library exposes one Message shape and one Client facade; each
// provider adapter translates them to its own wire format. Switching
// providers is a configuration change, not a code change.
//
// # Basic Usage
//
//	client, err := mailbridge.New("sendgrid", mailbridge.SendGridSettings("SG.xxxxx"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	msg := mailbridge.NewMessage("user@example.com", "Welcome", "<h1>Hello!</h1>")
//	result, err := client.Send(context.Background(), msg)
//
// # Bulk Sending
//
//	bulk, err := mailbridge.NewBulkRequest(messages,
//		mailbridge.WithDefaultFrom("noreply@example.com"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	result, err := client.SendBulk(context.Background(), bulk)
//	fmt.Printf("sent %d/%d\n", result.Successful, result.Total)
//
// Providers with a native bulk API (SendGrid, Amazon SES, Brevo) batch
// template messages into as few API calls as the provider allows; the
// rest fall back to one call per message with per-message failure
// isolation.
//
// # Supported Providers
//
//   - Generic SMTP
//   - SendGrid
//   - Mailgun
//   - Amazon SES
//   - Postmark
//   - Brevo
//
// Custom providers can be added at runtime with RegisterProvider.
//
// # Features
//
//   - Provider-agnostic Message and Client
//   - Provider-side template sends with per-recipient data
//   - Native bulk batching with partial-failure accounting
//   - Capability discovery (SupportsTemplates, SupportsBulkSending)
//   - Environment-based configuration (MAIL_* variables)
//   - Distributed tracing with OpenTelemetry
//   - Context-aware operations
//   - Thread-safe operations
package mailbridge
