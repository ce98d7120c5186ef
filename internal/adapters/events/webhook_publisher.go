package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookPublisher POSTs lifecycle events to an operator endpoint. Non-2xx
// responses are errors so the outbox dispatcher retries them.
type WebhookPublisher struct {
	url    string
	secret []byte
	client *http.Client
	now    func() time.Time
}

// NewWebhookPublisher signs each delivery with secret. A non-positive
// timeout uses defaultWebhookTimeout.
func NewWebhookPublisher(url, secret string, timeout time.Duration) *WebhookPublisher {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookPublisher{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

// Publish sets these headers on every request:
//
//	X-Storefront-Topic:      <topic>
//	X-Storefront-Event-Type: <event.EventType>
//	X-Storefront-Event-ID:   <event.EventID>
//	X-Storefront-Tenant:     <event.TenantID>
//	X-Storefront-Timestamp:  <unix seconds>
//	X-Storefront-Signature:  sha256=<hex HMAC-SHA256 of "<timestamp>.<body>">
func (p *WebhookPublisher) Publish(ctx context.Context, topic string, event domain.EventEnvelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	timestamp := strconv.FormatInt(p.now().Unix(), 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Storefront-Topic", topic)
	req.Header.Set("X-Storefront-Event-Type", event.EventType)
	req.Header.Set("X-Storefront-Event-ID", event.EventID)
	req.Header.Set("X-Storefront-Tenant", event.TenantID)
	req.Header.Set("X-Storefront-Timestamp", timestamp)
	req.Header.Set("X-Storefront-Signature", "sha256="+Sign(p.secret, timestamp, payload))

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of "<timestamp>.<payload>". Receivers use
// it to verify a delivery.
func Sign(secret []byte, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
