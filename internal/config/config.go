// Package config resolves all GLOVE_* environment settings once at startup.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Settings is the resolved process configuration.
type Settings struct {
	Host              string
	Port              int
	DBPath            string
	PolicyPath        string
	RequestTTLSeconds int
	MaxPINAttempts    int
	InboundToken      string
	NotifierProvider  string
	NotifierProviders string
	PublicURL         string
	WebhookURL        string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPUseTLS   bool
	SMTPFrom     string
	NotifyTo     string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	TwilioTo         string

	ClawhubExtensionsDir       string
	ClawhubExtensions          string
	ClawhubTimeoutSeconds      int
	ClawhubTrustStorePath      string
	RequireExtensionSignatures bool

	AgentKey string
	AdminKey string
}

// Load reads settings from the environment with the GLOVE_ prefix.
func Load() *Settings {
	v := viper.New()
	v.SetEnvPrefix("GLOVE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 8088)
	v.SetDefault("DB_PATH", "./glove.db")
	v.SetDefault("POLICY_PATH", "./policy.json")
	v.SetDefault("REQUEST_TTL_SECONDS", 300)
	v.SetDefault("MAX_PIN_ATTEMPTS", 5)
	v.SetDefault("INBOUND_TOKEN", "")
	v.SetDefault("NOTIFIER_PROVIDER", "console")
	v.SetDefault("NOTIFIER_PROVIDERS", "")
	v.SetDefault("PUBLIC_URL", "http://127.0.0.1:8088")
	v.SetDefault("WEBHOOK_URL", "")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_USE_TLS", true)
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("NOTIFY_TO", "")
	v.SetDefault("TWILIO_ACCOUNT_SID", "")
	v.SetDefault("TWILIO_AUTH_TOKEN", "")
	v.SetDefault("TWILIO_FROM", "")
	v.SetDefault("TWILIO_TO", "")
	v.SetDefault("CLAWHUB_EXTENSIONS_DIR", "./extensions")
	v.SetDefault("CLAWHUB_EXTENSIONS", "")
	v.SetDefault("CLAWHUB_TIMEOUT_SECONDS", 10)
	v.SetDefault("CLAWHUB_TRUST_STORE_PATH", "./trusted_publishers.json")
	v.SetDefault("REQUIRE_EXTENSION_SIGNATURES", true)
	v.SetDefault("AGENT_KEY", "")
	v.SetDefault("ADMIN_KEY", "")

	return &Settings{
		Host:              v.GetString("HOST"),
		Port:              v.GetInt("PORT"),
		DBPath:            v.GetString("DB_PATH"),
		PolicyPath:        v.GetString("POLICY_PATH"),
		RequestTTLSeconds: v.GetInt("REQUEST_TTL_SECONDS"),
		MaxPINAttempts:    v.GetInt("MAX_PIN_ATTEMPTS"),
		InboundToken:      strings.TrimSpace(v.GetString("INBOUND_TOKEN")),
		NotifierProvider:  strings.ToLower(strings.TrimSpace(v.GetString("NOTIFIER_PROVIDER"))),
		NotifierProviders: strings.ToLower(strings.TrimSpace(v.GetString("NOTIFIER_PROVIDERS"))),
		PublicURL:         strings.TrimSpace(v.GetString("PUBLIC_URL")),
		WebhookURL:        strings.TrimSpace(v.GetString("WEBHOOK_URL")),

		SMTPHost:     strings.TrimSpace(v.GetString("SMTP_HOST")),
		SMTPPort:     v.GetInt("SMTP_PORT"),
		SMTPUsername: strings.TrimSpace(v.GetString("SMTP_USERNAME")),
		SMTPPassword: strings.TrimSpace(v.GetString("SMTP_PASSWORD")),
		SMTPUseTLS:   v.GetBool("SMTP_USE_TLS"),
		SMTPFrom:     strings.TrimSpace(v.GetString("SMTP_FROM")),
		NotifyTo:     strings.TrimSpace(v.GetString("NOTIFY_TO")),

		TwilioAccountSID: strings.TrimSpace(v.GetString("TWILIO_ACCOUNT_SID")),
		TwilioAuthToken:  strings.TrimSpace(v.GetString("TWILIO_AUTH_TOKEN")),
		TwilioFrom:       strings.TrimSpace(v.GetString("TWILIO_FROM")),
		TwilioTo:         strings.TrimSpace(v.GetString("TWILIO_TO")),

		ClawhubExtensionsDir:       strings.TrimSpace(v.GetString("CLAWHUB_EXTENSIONS_DIR")),
		ClawhubExtensions:          strings.TrimSpace(v.GetString("CLAWHUB_EXTENSIONS")),
		ClawhubTimeoutSeconds:      v.GetInt("CLAWHUB_TIMEOUT_SECONDS"),
		ClawhubTrustStorePath:      strings.TrimSpace(v.GetString("CLAWHUB_TRUST_STORE_PATH")),
		RequireExtensionSignatures: v.GetBool("REQUIRE_EXTENSION_SIGNATURES"),

		AgentKey: strings.TrimSpace(v.GetString("AGENT_KEY")),
		AdminKey: strings.TrimSpace(v.GetString("ADMIN_KEY")),
	}
}
