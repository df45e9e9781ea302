package mock

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/stoik/mailbridge/internal/logging"
)

const (
	TimestampHeader = "X-Webhook-Timestamp"
	SignatureHeader = "X-Webhook-Signature"

	newMessageEvent = "gmail_new_gmail_message"
)

// Pusher delivers generated messages to trigger callbacks.
type Pusher struct {
	client *http.Client
	secret string
	logger *slog.Logger
}

// NewPusher returns a Pusher. When secret is set every delivery carries
// timestamp and HMAC-SHA256 signature headers.
func NewPusher(secret string, logger *slog.Logger) *Pusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pusher{
		client: &http.Client{Timeout: 10 * time.Second},
		secret: secret,
		logger: logger,
	}
}

// Deliver posts one push to its callback.
func (p *Pusher) Deliver(ctx context.Context, push Push) error {
	data := make(map[string]any, len(push.Message)+2)
	for k, v := range push.Message {
		data[k] = v
	}
	data["user_id"] = push.UserID
	data["connected_account_id"] = push.Trigger.AccountID

	body, err := json.Marshal(map[string]any{
		"type":       newMessageEvent,
		"trigger_id": push.Trigger.ID,
		"user_id":    push.UserID,
		"data":       data,
	})
	if err != nil {
		return fmt.Errorf("failed to encode push: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, push.Trigger.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.secret != "" {
		ts := time.Now().UTC().Format(time.RFC3339)
		req.Header.Set(TimestampHeader, ts)
		req.Header.Set(SignatureHeader, Sign(p.secret, ts, body))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver push: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("push rejected with status %d", resp.StatusCode)
	}
	return nil
}

// DeliverAll sends pushes one by one, logging failures.
func (p *Pusher) DeliverAll(ctx context.Context, pushes []Push) {
	for _, push := range pushes {
		if err := p.Deliver(ctx, push); err != nil {
			p.logger.Warn("push delivery failed",
				slog.String("trigger_id", push.Trigger.ID),
				logging.User(push.UserID),
				logging.Err(err))
		}
	}
}

// Sign computes the hex HMAC-SHA256 of "timestamp\nbody".
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("\n"))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Run generates mail every interval and delivers the resulting pushes until
// ctx is done.
func Run(ctx context.Context, c *Connector, p *Pusher, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.DeliverAll(ctx, c.Generate())
		}
	}
}
