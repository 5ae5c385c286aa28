package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WebhookAlerter POSTs audit alerts to a configured HTTP endpoint,
// typically a chat integration or an incident tracker.
type WebhookAlerter struct {
	client *http.Client
	url    string
	logger *zap.Logger
}

type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

// NewWebhookAlerter creates an HTTP alert channel.
func NewWebhookAlerter(logger *zap.Logger, cfg WebhookConfig) *WebhookAlerter {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &WebhookAlerter{
		client: &http.Client{Timeout: timeout},
		url:    cfg.URL,
		logger: logger,
	}
}

// Notify POSTs the alert as JSON. Any 2xx response is success.
func (s *WebhookAlerter) Notify(ctx context.Context, alert *Alert) error {
	if s.url == "" {
		return fmt.Errorf("webhook alerter has no url configured")
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "YapeNotifier/1.0")
	req.Header.Set("X-Notification-ID", alert.NotificationID.String())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	respPreview, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d, body: %s", resp.StatusCode, string(respPreview))
	}

	s.logger.Info("audit alert delivered via webhook",
		zap.String("notification_id", alert.NotificationID.String()),
		zap.String("url", s.url),
		zap.Int("status_code", resp.StatusCode),
	)

	return nil
}

// Name identifies the channel in logs.
func (s *WebhookAlerter) Name() string {
	return "webhook"
}
