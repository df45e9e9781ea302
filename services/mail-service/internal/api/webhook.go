package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/stoik/mailbridge/internal/models"
	"github.com/stoik/mailbridge/services/mail-service/internal/mailsync"
)

const (
	webhookTimestampHeader = "X-Webhook-Timestamp"
	webhookSignatureHeader = "X-Webhook-Signature"

	maxWebhookBody = 1 << 20
	schemaURL      = "https://mailbridge.local/schemas/webhook-email.json"
)

// webhookSchema accepts either an event envelope with a data object or a
// bare message record carrying an id.
const webhookSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "type": {"type": "string"},
    "user_id": {"type": "string"},
    "entity_id": {"type": "string"},
    "data": {"type": "object"}
  },
  "anyOf": [
    {"required": ["data"]},
    {"required": ["messageId"]},
    {"required": ["id"]},
    {"required": ["message_id"]}
  ]
}`

func compileWebhookSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(webhookSchema))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, err
	}
	return c.Compile(schemaURL)
}

func (s *Server) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		s.metrics.WebhookRejected("body")
		s.abortWithError(c, fmt.Errorf("%w: unreadable body: %v", mailsync.ErrValidation, err))
		return
	}

	if s.cfg.WebhookSecret != "" {
		err := verifySignature(s.cfg.WebhookSecret,
			c.GetHeader(webhookTimestampHeader), c.GetHeader(webhookSignatureHeader),
			body, s.now(), s.cfg.WebhookMaxSkew)
		if err != nil {
			s.metrics.WebhookRejected("signature")
			s.abortWithError(c, err)
			return
		}
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		s.metrics.WebhookRejected("json")
		s.abortWithError(c, fmt.Errorf("%w: invalid JSON", mailsync.ErrValidation))
		return
	}
	if err := s.webhookSchema.Validate(inst); err != nil {
		s.metrics.WebhookRejected("schema")
		s.abortWithError(c, fmt.Errorf("%w: %v", mailsync.ErrValidation, err))
		return
	}

	var payload models.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		s.metrics.WebhookRejected("json")
		s.abortWithError(c, fmt.Errorf("%w: invalid JSON", mailsync.ErrValidation))
		return
	}

	res, err := s.svc.HandleWebhook(c.Request.Context(), c.Query("user_id"), payload)
	if err != nil {
		if errors.Is(err, mailsync.ErrNoActiveConnection) {
			s.metrics.WebhookRejected("no_connection")
		}
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"action":   res.Action(),
		"email_id": res.Message.ID,
	})
}

// verifySignature checks hex(HMAC-SHA256(secret, timestamp + "\n" + body))
// and that the RFC 3339 timestamp is within maxSkew of now.
func verifySignature(secret, timestamp, signature string, body []byte, now time.Time, maxSkew time.Duration) error {
	if timestamp == "" || signature == "" {
		return fmt.Errorf("%w: missing webhook signature headers", errUnauthorized)
	}
	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return fmt.Errorf("%w: invalid webhook timestamp", errUnauthorized)
	}
	delta := now.Sub(ts)
	if delta < 0 {
		delta = -delta
	}
	if delta > maxSkew {
		return fmt.Errorf("%w: webhook outside replay window", errUnauthorized)
	}

	expected := signPayload(secret, timestamp, body)
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return fmt.Errorf("%w: webhook signature mismatch", errUnauthorized)
	}
	return nil
}

func signPayload(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("\n"))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
