package mailbridge

// Settings constructors for the built-in providers. They cover the
// required keys; optional keys can be added afterwards with Set.

// SMTPSettings creates SMTP provider settings with authentication.
// STARTTLS is on by default; call Set("use_ssl", "true") for implicit TLS.
func SMTPSettings(host, port, username, password string) ProviderSettings {
	return ProviderSettings{
		"host":     host,
		"port":     port,
		"username": username,
		"password": password,
	}
}

// SendGridSettings creates SendGrid provider settings.
func SendGridSettings(apiKey string) ProviderSettings {
	return ProviderSettings{
		"api_key": apiKey,
	}
}

// MailgunSettings creates Mailgun provider settings. The endpoint is the
// full messages URL for the sending domain, for example
// https://api.mailgun.net/v3/mg.example.com.
func MailgunSettings(apiKey, endpoint string) ProviderSettings {
	return ProviderSettings{
		"api_key":  apiKey,
		"endpoint": endpoint,
	}
}

// SESSettings creates Amazon SES provider settings that use the ambient
// AWS credential chain.
func SESSettings(region string) ProviderSettings {
	return ProviderSettings{
		"region": region,
	}
}

// SESCredentialsSettings creates Amazon SES provider settings with
// explicit static credentials.
func SESCredentialsSettings(region, accessKey, secretKey string) ProviderSettings {
	return ProviderSettings{
		"region":     region,
		"access_key": accessKey,
		"secret_key": secretKey,
	}
}

// PostmarkSettings creates Postmark provider settings; the API key is the
// server token.
func PostmarkSettings(serverToken string) ProviderSettings {
	return ProviderSettings{
		"api_key": serverToken,
	}
}

// BrevoSettings creates Brevo provider settings.
func BrevoSettings(apiKey string) ProviderSettings {
	return ProviderSettings{
		"api_key": apiKey,
	}
}
