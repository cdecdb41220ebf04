package mailbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearMailEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvMailer, EnvHost, EnvPort, EnvUsername, EnvPassword,
		EnvTLS, EnvSSL, EnvAPIKey, EnvEndpoint,
		EnvAWSAccessKey, EnvAWSSecretKey, EnvAWSRegion, EnvFromAddress,
	} {
		t.Setenv(key, "")
	}
}

func TestFromEnvDefaultsToUpgradedSMTP(t *testing.T) {
	clearMailEnv(t)

	provider, settings := FromEnv()
	assert.Equal(t, "smtp", provider)
	assert.Equal(t, "587", settings.Get("port"))
	assert.Equal(t, "true", settings.Get("use_tls"))
	assert.Equal(t, "false", settings.Get("use_ssl"))
	assert.Empty(t, settings.Get("host"))
}

func TestFromEnvSMTP(t *testing.T) {
	clearMailEnv(t)
	t.Setenv(EnvMailer, "smtp")
	t.Setenv(EnvHost, "mail.example.com")
	t.Setenv(EnvPort, "465")
	t.Setenv(EnvUsername, "mailer@example.com")
	t.Setenv(EnvPassword, "secret")
	t.Setenv(EnvTLS, "False")
	t.Setenv(EnvSSL, "True")
	t.Setenv(EnvFromAddress, "noreply@example.com")

	provider, settings := FromEnv()
	assert.Equal(t, "smtp", provider)
	assert.Equal(t, "mail.example.com", settings.Get("host"))
	assert.Equal(t, "465", settings.Get("port"))
	assert.Equal(t, "mailer@example.com", settings.Get("username"))
	assert.Equal(t, "false", settings.Get("use_tls"))
	assert.Equal(t, "true", settings.Get("use_ssl"))
	assert.Equal(t, "noreply@example.com", settings.Get("from_email"))
}

func TestFromEnvAPIProviders(t *testing.T) {
	for _, name := range []string{"sendgrid", "mailgun", "postmark", "brevo"} {
		t.Run(name, func(t *testing.T) {
			clearMailEnv(t)
			t.Setenv(EnvMailer, name)
			t.Setenv(EnvAPIKey, "key-123")
			t.Setenv(EnvEndpoint, "https://api.example.test")

			provider, settings := FromEnv()
			assert.Equal(t, name, provider)
			assert.Equal(t, "key-123", settings.Get("api_key"))
			assert.Equal(t, "https://api.example.test", settings.Get("endpoint"))
		})
	}
}

func TestFromEnvSES(t *testing.T) {
	clearMailEnv(t)
	t.Setenv(EnvMailer, "SES")
	t.Setenv(EnvAWSAccessKey, "AKIATEST")
	t.Setenv(EnvAWSSecretKey, "secret")
	t.Setenv(EnvAWSRegion, "eu-central-1")

	provider, settings := FromEnv()
	assert.Equal(t, "ses", provider)
	assert.Equal(t, "AKIATEST", settings.Get("access_key"))
	assert.Equal(t, "secret", settings.Get("secret_key"))
	assert.Equal(t, "eu-central-1", settings.Get("region"))
}

func TestNewFromEnvBuildsClient(t *testing.T) {
	clearMailEnv(t)
	t.Setenv(EnvMailer, "smtp")
	t.Setenv(EnvHost, "mail.example.com")
	t.Setenv(EnvUsername, "mailer@example.com")
	t.Setenv(EnvPassword, "secret")

	client, err := NewFromEnv()
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, "smtp", client.ProviderName())
}

func TestSettingsConstructors(t *testing.T) {
	smtp := SMTPSettings("mail.example.com", "587", "user", "pass")
	assert.Empty(t, smtp.Missing("host", "port", "username", "password"))

	assert.Equal(t, "SG.key", SendGridSettings("SG.key").Get("api_key"))
	assert.Equal(t, "https://api.mailgun.net/v3/mg.example.com",
		MailgunSettings("key", "https://api.mailgun.net/v3/mg.example.com").Get("endpoint"))
	assert.Equal(t, "eu-west-1", SESSettings("eu-west-1").Get("region"))

	creds := SESCredentialsSettings("us-east-1", "AKIA", "shhh")
	assert.Empty(t, creds.Missing("region", "access_key", "secret_key"))

	assert.Equal(t, "token", PostmarkSettings("token").Get("api_key"))
	assert.Equal(t, "xkeysib", BrevoSettings("xkeysib").Get("api_key"))
}
