package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// placeholderSecrets are values people paste from READMEs; booting with one
// of these is always a configuration mistake.
var placeholderSecrets = map[string]bool{
	"changeme":         true,
	"secret":           true,
	"password":         true,
	"jwt-secret":       true,
	"your-secret-here": true,
}

type Config struct {
	Environment string
	LogLevel    string
	Port        int

	DatabaseURL string
	RedisAddr   string

	JWTSecret    string
	MFASecretKey string
	MetricsToken string

	CorsAllowedOrigins []string
	TrustedProxyCIDRs  []string

	// ProviderWebhookSecrets maps gateway provider names to their inbound
	// webhook HMAC secrets, e.g. OPSPLANE_PROVIDER_WEBHOOK_SECRETS="gateway=abc".
	ProviderWebhookSecrets map[string]string

	CrashTrackerType string
	SentryDSN        string

	EmailMessengerType string
	AWSRegion          string
	EmailSenderAddress string
}

func loadConfig() Config {
	v := viper.New()
	v.SetEnvPrefix("OPSPLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("environment", "development")
	v.SetDefault("log-level", "INFO")
	v.SetDefault("port", 8000)
	v.SetDefault("crash-tracker-type", "DRY_RUN")
	v.SetDefault("email-messenger-type", "DRY_RUN")

	return Config{
		Environment:            v.GetString("environment"),
		LogLevel:               v.GetString("log-level"),
		Port:                   v.GetInt("port"),
		DatabaseURL:            v.GetString("database-url"),
		RedisAddr:              v.GetString("redis-addr"),
		JWTSecret:              v.GetString("jwt-secret"),
		MFASecretKey:           v.GetString("mfa-secret-key"),
		MetricsToken:           v.GetString("metrics-token"),
		CorsAllowedOrigins:     v.GetStringSlice("cors-allowed-origins"),
		TrustedProxyCIDRs:      v.GetStringSlice("trusted-proxy-cidrs"),
		ProviderWebhookSecrets: parseKeyValueList(v.GetStringSlice("provider-webhook-secrets")),
		CrashTrackerType:       v.GetString("crash-tracker-type"),
		SentryDSN:              v.GetString("sentry-dsn"),
		EmailMessengerType:     v.GetString("email-messenger-type"),
		AWSRegion:              v.GetString("aws-region"),
		EmailSenderAddress:     v.GetString("email-sender-address"),
	}
}

func parseKeyValueList(pairs []string) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if found && key != "" {
			out[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	return out
}

// Validate rejects incomplete or obviously unsafe configurations at boot
// instead of failing on the first request.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("OPSPLANE_DATABASE_URL is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("OPSPLANE_JWT_SECRET must have at least 32 characters")
	}
	if placeholderSecrets[strings.ToLower(c.JWTSecret)] {
		return fmt.Errorf("OPSPLANE_JWT_SECRET is a placeholder value")
	}
	if c.MFASecretKey == "" {
		return fmt.Errorf("OPSPLANE_MFA_SECRET_KEY is required")
	}
	if placeholderSecrets[strings.ToLower(c.MFASecretKey)] {
		return fmt.Errorf("OPSPLANE_MFA_SECRET_KEY is a placeholder value")
	}
	if strings.EqualFold(c.CrashTrackerType, "SENTRY") && c.SentryDSN == "" {
		return fmt.Errorf("OPSPLANE_SENTRY_DSN is required when the crash tracker is SENTRY")
	}
	if strings.EqualFold(c.EmailMessengerType, "AWS_EMAIL") {
		if c.AWSRegion == "" || c.EmailSenderAddress == "" {
			return fmt.Errorf("OPSPLANE_AWS_REGION and OPSPLANE_EMAIL_SENDER_ADDRESS are required when the email messenger is AWS_EMAIL")
		}
	}
	return nil
}
