package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// WebhookConfig configures a WebhookSink
type WebhookConfig struct {
	URL     string
	Secret  string
	Timeout time.Duration
	// MaxAttempts includes the first try
	MaxAttempts  int
	InitialDelay time.Duration
}

// WebhookSink POSTs notifications as JSON to a paging or messaging gateway
type WebhookSink struct {
	config WebhookConfig
	client *http.Client
}

// NewWebhookSink creates a webhook sink
func NewWebhookSink(config WebhookConfig) *WebhookSink {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 500 * time.Millisecond
	}
	return &WebhookSink{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

type webhookPayload struct {
	ID string `json:"id"`
	Message
}

// Send delivers msg, retrying with exponential backoff on transport errors and 5xx responses.
func (s *WebhookSink) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(webhookPayload{ID: uuid.NewString(), Message: msg})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	delay := s.config.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		retry, err := s.send(ctx, payload)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == s.config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("notification cancelled after %d attempts: %w", attempt, lastErr)
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}

func (s *WebhookSink) send(ctx context.Context, payload []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", s.config.URL, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Cura-Delivery", time.Now().UTC().Format(time.RFC3339))
	if s.config.Secret != "" {
		req.Header.Set("X-Cura-Signature", generateSignature(payload, s.config.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return true, fmt.Errorf("notification webhook returned status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("notification webhook returned status %d", resp.StatusCode)
	}
	return false, nil
}

// VerifySignature verifies a webhook signature produced with secret
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := generateSignature(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func generateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
