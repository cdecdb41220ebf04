package smtp

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mailbridge/mailbridge/internal/core"
)

const providerName = "smtp"

// sendFunc dispatches a fully built RFC 5322 message. Overridable so
// tests can capture the transport call without a live server.
type sendFunc func(addr string, auth smtp.Auth, from string, rcpts []string, msg []byte) error

// Provider implements the core.Provider interface for generic SMTP.
// A connection is opened per Send call and released unconditionally on
// exit; no connection is held across calls.
type Provider struct {
	config core.ProviderSettings
	send   sendFunc
}

// NewProvider creates a new SMTP provider.
func NewProvider(settings core.ProviderSettings) (core.Provider, error) {
	if missing := settings.Missing("host", "port", "username", "password"); len(missing) > 0 {
		return nil, core.NewConfigurationError(providerName, missing...)
	}
	if settings.GetBool("use_ssl", false) && settings.GetBool("use_tls", false) {
		return nil, core.NewConfigurationMessageError(providerName,
			"use_tls and use_ssl are mutually exclusive")
	}

	p := &Provider{config: settings}
	p.send = p.dialAndSend
	return p, nil
}

// Send builds a MIME message and dispatches it over an authenticated,
// per-call SMTP connection.
func (p *Provider) Send(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	host := p.config.Get("host")
	addr := host + ":" + p.config.Get("port")
	from := msg.From(p.config.GetDefault("from_email", p.config.Get("username")))

	raw, err := p.buildMessage(msg, from)
	if err != nil {
		return nil, core.WrapSendError(providerName, "failed to build message", err)
	}

	auth := smtp.PlainAuth("", p.config.Get("username"), p.config.Get("password"), host)

	if err := p.send(addr, auth, from, msg.Recipients(), raw); err != nil {
		return nil, core.WrapSendError(providerName, "failed to send email", err)
	}

	// SMTP servers issue no id of their own.
	messageID := uuid.NewString() + "@" + host

	return &core.SendResult{
		Success:   true,
		MessageID: messageID,
		Provider:  providerName,
	}, nil
}

// SendBulk loops over Send; SMTP has no native bulk API.
func (p *Provider) SendBulk(ctx context.Context, bulk *core.BulkRequest) (*core.BulkResult, error) {
	return core.SendEach(ctx, p, bulk), nil
}

// ValidateConfig validates the provider configuration.
func (p *Provider) ValidateConfig() error {
	if missing := p.config.Missing("host", "port", "username", "password"); len(missing) > 0 {
		return core.NewConfigurationError(providerName, missing...)
	}
	return nil
}

// SupportsTemplates reports template capability; SMTP has none.
func (p *Provider) SupportsTemplates() bool { return false }

// SupportsBulkSending reports native bulk capability; SMTP has none.
func (p *Provider) SupportsBulkSending() bool { return false }

// Name returns the provider name.
func (p *Provider) Name() string { return providerName }

// Close is a no-op: the connection is scoped to each Send call.
func (p *Provider) Close() error { return nil }

// dialAndSend opens the connection (implicit TLS when use_ssl, otherwise
// plaintext upgraded via STARTTLS when use_tls), authenticates, and
// dispatches. The connection is closed on every path.
func (p *Provider) dialAndSend(addr string, auth smtp.Auth, from string, rcpts []string, msg []byte) error {
	host := p.config.Get("host")
	tlsConfig := &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}

	var client *smtp.Client
	if p.config.GetBool("use_ssl", false) {
		conn, err := tls.Dial("tcp", addr, tlsConfig)
		if err != nil {
			return err
		}
		client, err = smtp.NewClient(conn, host)
		if err != nil {
			conn.Close()
			return err
		}
	} else {
		var err error
		client, err = smtp.Dial(addr)
		if err != nil {
			return err
		}
		if p.config.GetBool("use_tls", true) {
			if err := client.StartTLS(tlsConfig); err != nil {
				client.Close()
				return err
			}
		}
	}
	defer client.Close()

	if ok, _ := client.Extension("AUTH"); ok {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}

	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range rcpts {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	return client.Quit()
}

// buildMessage renders the message in RFC 5322 format: standard headers,
// any custom headers, one html-or-plain body part, and base64-encoded
// attachment parts under a multipart/mixed container.
func (p *Provider) buildMessage(msg *core.Message, from string) ([]byte, error) {
	var b strings.Builder

	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(msg.To, ", ") + "\r\n")
	if len(msg.CC) > 0 {
		b.WriteString("Cc: " + strings.Join(msg.CC, ", ") + "\r\n")
	}
	if msg.ReplyTo != "" {
		b.WriteString("Reply-To: " + msg.ReplyTo + "\r\n")
	}
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	for key, value := range msg.Headers {
		b.WriteString(key + ": " + value + "\r\n")
	}

	if len(msg.Attachments) == 0 {
		b.WriteString("Content-Type: " + bodyContentType(msg.HTML) + "\r\n")
		b.WriteString("\r\n")
		b.WriteString(msg.Body + "\r\n")
		return []byte(b.String()), nil
	}

	boundary := "mailbridge-" + uuid.NewString()
	b.WriteString("Content-Type: multipart/mixed; boundary=" + boundary + "\r\n")
	b.WriteString("\r\n")

	// Body part.
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: " + bodyContentType(msg.HTML) + "\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body + "\r\n")

	for _, att := range msg.Attachments {
		filename, content, contentType, err := att.Load()
		if err != nil {
			return nil, err
		}
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: " + contentType + "\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
		b.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=%q\r\n", filename))
		b.WriteString("\r\n")
		b.WriteString(wrapBase64(content))
		b.WriteString("\r\n")
	}
	b.WriteString("--" + boundary + "--\r\n")

	return []byte(b.String()), nil
}

func bodyContentType(html bool) string {
	if html {
		return "text/html; charset=UTF-8"
	}
	return "text/plain; charset=UTF-8"
}

// wrapBase64 encodes content with CRLF line breaks every 76 characters,
// per RFC 2045.
func wrapBase64(content []byte) string {
	encoded := base64.StdEncoding.EncodeToString(content)
	var b strings.Builder
	for len(encoded) > 76 {
		b.WriteString(encoded[:76])
		b.WriteString("\r\n")
		encoded = encoded[76:]
	}
	b.WriteString(encoded)
	b.WriteString("\r\n")
	return b.String()
}
