package ingest

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stoik/mailbridge/internal/models"
)

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func TestNormalizeConnectorRecord(t *testing.T) {
	raw := models.RawMessage{
		"messageId":        "18c1",
		"threadId":         "t-1",
		"subject":          "Quarterly report",
		"sender":           "Alice <alice@example.com>",
		"to":               "bob@example.com",
		"messageText":      "Hello Bob",
		"preview":          map[string]any{"body": "Hello Bob", "subject": "Quarterly report"},
		"labelIds":         []any{"INBOX", "UNREAD"},
		"messageTimestamp": "2024-05-01T10:00:00Z",
	}

	msg, err := Normalize(raw, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, "18c1", msg.ExternalID)
	assert.Equal(t, "t-1", msg.ThreadID)
	assert.Equal(t, "Quarterly report", msg.Subject)
	assert.Equal(t, "Alice <alice@example.com>", msg.Sender)
	assert.Equal(t, "bob@example.com", msg.Recipient)
	require.NotNil(t, msg.BodyText)
	assert.Equal(t, "Hello Bob", *msg.BodyText)
	assert.Nil(t, msg.BodyHTML)
	assert.Equal(t, "Hello Bob", msg.Snippet)
	assert.Equal(t, models.Labels{"INBOX", "UNREAD"}, msg.Labels)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), msg.ReceivedAt)
	assert.False(t, msg.IsRead)
}

func TestNormalizeUnwrapsWebhookEnvelope(t *testing.T) {
	raw := models.RawMessage{
		"type": "gmail_new_gmail_message",
		"data": map[string]any{
			"message_id": "abc",
			"from":       "carol@example.com",
			"snippet":    "{'body': 'Hi &amp; bye', 'subject': 'Greetings'}",
		},
	}

	msg, err := Normalize(raw, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "abc", msg.ExternalID)
	assert.Equal(t, "carol@example.com", msg.Sender)
	assert.Equal(t, "Hi & bye", msg.Snippet)
	assert.Equal(t, "Greetings", msg.Subject)
	assert.Equal(t, fixedNow, msg.ReceivedAt)
	assert.Equal(t, raw, msg.RawPayload)
}

func TestNormalizeBodySelection(t *testing.T) {
	tests := []struct {
		name     string
		raw      models.RawMessage
		wantText *string
		wantHTML *string
	}{
		{
			name:     "distinct html wins",
			raw:      models.RawMessage{"id": "1", "messageText": "plain", "bodyHtml": "<p>rich</p>"},
			wantHTML: strPtr("<p>rich</p>"),
		},
		{
			name:     "html sniffed from text",
			raw:      models.RawMessage{"id": "2", "messageText": "<!DOCTYPE html><html><body>x</body></html>"},
			wantHTML: strPtr("<!DOCTYPE html><html><body>x</body></html>"),
		},
		{
			name:     "table markup sniffed",
			raw:      models.RawMessage{"id": "3", "text": "<div><table><tr><td>x</td></tr></table></div>"},
			wantHTML: strPtr("<div><table><tr><td>x</td></tr></table></div>"),
		},
		{
			name:     "plain text",
			raw:      models.RawMessage{"id": "4", "body": "just text"},
			wantText: strPtr("just text"),
		},
		{
			name: "no body",
			raw:  models.RawMessage{"id": "5"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Normalize(tt.raw, fixedNow)
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, msg.BodyText)
			assert.Equal(t, tt.wantHTML, msg.BodyHTML)
		})
	}
}

func TestNormalizeGmailAPIResource(t *testing.T) {
	enc := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }
	raw := models.RawMessage{
		"id":           "gm-1",
		"threadId":     "th-1",
		"labelIds":     []any{"INBOX"},
		"internalDate": "1714557600000",
		"payload": map[string]any{
			"mimeType": "multipart/alternative",
			"headers": []any{
				map[string]any{"name": "From", "value": "Dave <dave@example.com>"},
				map[string]any{"name": "To", "value": "me@example.com"},
				map[string]any{"name": "Subject", "value": "Lunch?"},
			},
			"parts": []any{
				map[string]any{"mimeType": "text/plain", "body": map[string]any{"data": enc("Want lunch?")}},
				map[string]any{"mimeType": "text/html", "body": map[string]any{"data": enc("<p>Want <b>lunch</b>?</p>")}},
				map[string]any{"mimeType": "application/pdf", "filename": "menu.pdf", "body": map[string]any{"attachmentId": "a1"}},
			},
		},
	}

	msg, err := Normalize(raw, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "gm-1", msg.ExternalID)
	assert.Equal(t, "Dave <dave@example.com>", msg.Sender)
	assert.Equal(t, "me@example.com", msg.Recipient)
	assert.Equal(t, "Lunch?", msg.Subject)
	require.NotNil(t, msg.BodyHTML)
	assert.Equal(t, "<p>Want <b>lunch</b>?</p>", *msg.BodyHTML)
	assert.Nil(t, msg.BodyText)
	assert.Equal(t, "Want lunch ?", msg.Snippet)
	assert.Equal(t, time.UnixMilli(1714557600000).UTC(), msg.ReceivedAt)
}

func TestNormalizeMissingID(t *testing.T) {
	_, err := Normalize(models.RawMessage{"subject": "no id"}, fixedNow)
	assert.ErrorIs(t, err, ErrMissingExternalID)
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want time.Time
	}{
		{"epoch millis", float64(1714557600000), time.UnixMilli(1714557600000).UTC()},
		{"epoch seconds", float64(1714557600), time.Unix(1714557600, 0).UTC()},
		{"numeric string", "1714557600", time.Unix(1714557600, 0).UTC()},
		{"rfc3339 offset", "2024-05-01T12:00:00+02:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"naive iso", "2024-05-01 10:00:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"rfc5322", "Wed, 01 May 2024 10:00:00 +0000", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"garbage", "not a date", fixedNow},
		{"missing", nil, fixedNow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(ParseTimestamp(tt.in, fixedNow)), "got %v", ParseTimestamp(tt.in, fixedNow))
		})
	}
}

func TestHTMLToTextSkipsScripts(t *testing.T) {
	got := HTMLToText("<html><head><title>T</title><style>p{}</style></head><body><p>Hi &amp; there</p><script>x()</script></body></html>")
	assert.Equal(t, "Hi & there", got)
}

func strPtr(s string) *string { return &s }
