// Package notify fans a human-alert out to the configured providers:
// console, webhook, smtp, twilio, and sandboxed clawhub extensions.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vrtxceo/glove/internal/config"
)

const (
	webhookTimeout = 10 * time.Second
	twilioTimeout  = 10 * time.Second
)

// Options tweaks a single Send call.
type Options struct {
	// ClawhubExtensions overrides the configured extension id list for the
	// clawhub provider. Nil means use configuration.
	ClawhubExtensions []string
}

// Notifier dispatches to every configured provider and aggregates failures.
type Notifier struct {
	settings *config.Settings
	logger   *zap.Logger

	webhookClient *http.Client
	twilioClient  *http.Client
}

// New builds a notifier from settings.
func New(settings *config.Settings, logger *zap.Logger) *Notifier {
	return &Notifier{
		settings:      settings,
		logger:        logger,
		webhookClient: &http.Client{Timeout: webhookTimeout},
		twilioClient:  &http.Client{Timeout: twilioTimeout},
	}
}

// Send attempts every configured provider. It fails only when all providers
// failed; any single success suppresses the aggregate error.
func (n *Notifier) Send(ctx context.Context, subject, message string, payload map[string]string, opts *Options) error {
	providers := n.providers()
	var errs []string
	for _, provider := range providers {
		var err error
		switch provider {
		case "webhook":
			err = n.sendWebhook(ctx, subject, message, payload)
		case "smtp":
			err = n.sendSMTP(subject, message)
		case "twilio":
			err = n.sendTwilio(ctx, message)
		case "clawhub":
			err = n.sendClawhub(ctx, subject, message, payload, opts)
		default:
			err = n.sendConsole(subject, message, payload)
		}
		if err != nil {
			recordProviderFailure(provider)
			n.logger.Warn("Notifier provider failed",
				zap.String("provider", provider),
				zap.Error(err),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", provider, err))
		}
	}
	if len(errs) > 0 && len(errs) == len(providers) {
		return fmt.Errorf("all notifier providers failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// providers resolves the active provider list. An explicit comma list wins;
// an empty result degrades to console.
func (n *Notifier) providers() []string {
	if n.settings.NotifierProviders != "" {
		var out []string
		for _, p := range strings.Split(n.settings.NotifierProviders, ",") {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
		return []string{"console"}
	}
	if n.settings.NotifierProvider != "" {
		return []string{n.settings.NotifierProvider}
	}
	return []string{"console"}
}

func (n *Notifier) sendConsole(subject, message string, payload map[string]string) error {
	line := map[string]interface{}{
		"event":   "glove_notify",
		"subject": subject,
		"message": message,
		"payload": payload,
	}
	raw, err := json.Marshal(line)
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}

func (n *Notifier) sendWebhook(ctx context.Context, subject, message string, payload map[string]string) error {
	if n.settings.WebhookURL == "" {
		return fmt.Errorf("GLOVE_WEBHOOK_URL is required for webhook notifier")
	}
	body, err := json.Marshal(map[string]interface{}{
		"subject": subject,
		"message": message,
		"payload": payload,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.settings.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.webhookClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

func (n *Notifier) sendTwilio(ctx context.Context, message string) error {
	s := n.settings
	if s.TwilioAccountSID == "" || s.TwilioAuthToken == "" || s.TwilioFrom == "" || s.TwilioTo == "" {
		return fmt.Errorf("twilio notifier requires account sid/auth token/from/to")
	}
	endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", s.TwilioAccountSID)
	form := url.Values{
		"From": {s.TwilioFrom},
		"To":   {s.TwilioTo},
		"Body": {message},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.TwilioAccountSID, s.TwilioAuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := n.twilioClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("twilio returned %d", resp.StatusCode)
	}
	return nil
}

// enabledExtensionIDs resolves the clawhub extension id list for one send.
func (n *Notifier) enabledExtensionIDs(opts *Options) []string {
	if opts != nil && opts.ClawhubExtensions != nil {
		var out []string
		for _, id := range opts.ClawhubExtensions {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
		return out
	}
	var out []string
	for _, id := range strings.Split(n.settings.ClawhubExtensions, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// DiscoverExtensions lists the ids of installed extensions: immediate
// subdirectories of the extensions root that contain a manifest. Sorted.
func (n *Notifier) DiscoverExtensions() []string {
	ids := discoverExtensions(n.settings.ClawhubExtensionsDir)
	sort.Strings(ids)
	return ids
}
