package mailbridge

import (
	"os"
	"strings"
)

// Environment variable names for provider configuration.
const (
	EnvMailer       = "MAIL_MAILER"
	EnvHost         = "MAIL_HOST"
	EnvPort         = "MAIL_PORT"
	EnvUsername     = "MAIL_USERNAME"
	EnvPassword     = "MAIL_PASSWORD"
	EnvTLS          = "MAIL_TLS_ENCRYPTION"
	EnvSSL          = "MAIL_SSL_ENCRYPTION"
	EnvAPIKey       = "MAIL_API_KEY"
	EnvEndpoint     = "MAIL_ENDPOINT"
	EnvAWSAccessKey = "MAIL_AWS_ACCESS_KEY_ID"
	EnvAWSSecretKey = "MAIL_AWS_SECRET_ACCESS_KEY"
	EnvAWSRegion    = "MAIL_AWS_REGION"
	EnvFromAddress  = "MAIL_FROM_ADDRESS"
)

// FromEnv resolves the provider name and its settings from MAIL_*
// environment variables. The provider defaults to smtp. Only variables
// that are actually set end up in the settings map, so provider defaults
// still apply.
func FromEnv() (string, ProviderSettings) {
	provider := strings.ToLower(envDefault(EnvMailer, "smtp"))
	settings := ProviderSettings{}

	switch provider {
	case "smtp":
		setIfPresent(settings, "host", EnvHost)
		settings.Set("port", envDefault(EnvPort, "587"))
		setIfPresent(settings, "username", EnvUsername)
		setIfPresent(settings, "password", EnvPassword)
		settings.Set("use_tls", boolString(envDefault(EnvTLS, "True")))
		settings.Set("use_ssl", boolString(envDefault(EnvSSL, "False")))
	case "ses":
		setIfPresent(settings, "access_key", EnvAWSAccessKey)
		setIfPresent(settings, "secret_key", EnvAWSSecretKey)
		setIfPresent(settings, "region", EnvAWSRegion)
	default:
		setIfPresent(settings, "api_key", EnvAPIKey)
		setIfPresent(settings, "endpoint", EnvEndpoint)
	}

	setIfPresent(settings, "from_email", EnvFromAddress)
	return provider, settings
}

// NewFromEnv creates a client configured entirely from MAIL_*
// environment variables.
func NewFromEnv() (*Client, error) {
	provider, settings := FromEnv()
	return New(provider, settings)
}

func envDefault(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}

func setIfPresent(settings ProviderSettings, key, env string) {
	if value := os.Getenv(env); value != "" {
		settings.Set(key, value)
	}
}

// boolString normalizes truthy spellings like "True" to the canonical
// form the settings parser accepts.
func boolString(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return "true"
	default:
		return "false"
	}
}
