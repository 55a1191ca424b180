package domain

import (
	"fmt"
	"net/url"
	"time"
)

// WebhookConfig describes the callback target attached to a job or batch
// at submission time. The delivered flag is mutated only by the webhook
// dispatcher, and at most once per terminal transition.
type WebhookConfig struct {
	URL            string            `json:"url"`
	Headers        map[string]string `json:"headers,omitempty"`
	IncludeResult  bool              `json:"include_result"`
	IncludePayload bool              `json:"include_payload"`
	Delivered      bool              `json:"delivered"`
	DeliveredAt    *time.Time        `json:"delivered_at,omitempty"`
}

// Validate checks that the webhook target is a usable http(s) URL.
func (w *WebhookConfig) Validate() error {
	if w.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidWebhookURL)
	}

	parsed, err := url.Parse(w.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWebhookURL, err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidWebhookURL)
	}

	if parsed.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidWebhookURL)
	}

	return nil
}
