package mailbridge

import (
	"context"
	"log/slog"
)

// Send is a one-shot convenience helper: it builds a client from MAIL_*
// environment variables, sends one HTML email, and closes the client.
// Errors are logged and swallowed; the return value reports whether the
// email went out. Long-running services should construct a Client instead.
func Send(ctx context.Context, to, subject, body string, fromEmail ...string) bool {
	client, err := NewFromEnv()
	if err != nil {
		slog.Error("mailbridge: failed to configure provider", "error", err)
		return false
	}
	defer client.Close()

	msg := NewMessage(to, subject, body)
	if len(fromEmail) > 0 {
		msg.FromEmail = fromEmail[0]
	}

	result, err := client.Send(ctx, msg)
	if err != nil {
		slog.Error("mailbridge: failed to send email",
			"provider", client.ProviderName(), "error", err)
		return false
	}

	slog.Debug("mailbridge: email sent",
		"provider", result.Provider, "message_id", result.MessageID)
	return true
}
