// Package ingest converts raw connector message records into Message rows.
//
// Two record shapes are understood: the flattened records returned by the
// managed connector (messageId, messageText, preview, ...) and Gmail API
// message resources with a MIME payload tree. Both go through Normalize,
// which is the only place that decides body type, snippet and timestamp.
package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stoik/mailbridge/internal/models"
)

// ErrMissingExternalID is returned for records without a provider message id.
var ErrMissingExternalID = errors.New("message payload has no message id")

// Normalize builds a Message from one raw record. ID, IsRead and the
// bookkeeping timestamps are left for the store. now is used when the
// record carries no usable timestamp.
func Normalize(raw models.RawMessage, now time.Time) (models.Message, error) {
	data := map[string]any(raw)
	if inner, ok := data["data"].(map[string]any); ok {
		data = inner
	}

	var headers map[string]string
	var partText, partHTML string
	if payload, ok := data["payload"].(map[string]any); ok {
		headers = headerMap(payload)
		partText, partHTML = mimeBodies(payload)
	}

	externalID := firstString(data, "messageId", "id", "message_id")
	if externalID == "" {
		return models.Message{}, ErrMissingExternalID
	}

	msg := models.Message{
		ExternalID: externalID,
		ThreadID:   firstString(data, "threadId", "thread_id"),
		Subject:    orDefault(firstString(data, "subject"), headers["subject"]),
		Sender:     orDefault(firstString(data, "sender", "from"), headers["from"]),
		Recipient:  orDefault(firstString(data, "to", "recipient"), headers["to"]),
		Labels:     stringList(firstValue(data, "labelIds", "labels")),
		RawPayload: raw,
	}

	text := orDefault(firstString(data, "messageText", "body", "bodyText", "text"), partText)
	htmlBody := orDefault(firstString(data, "bodyHtml", "html"), partHTML)
	if htmlBody == "" && LooksLikeHTML(text) {
		htmlBody, text = text, ""
	}
	switch {
	case htmlBody != "":
		msg.BodyHTML = &htmlBody
	case text != "":
		msg.BodyText = &text
	}

	snip := ParseSnippet(firstValue(data, "preview", "snippet"))
	msg.Snippet = snip.Preview()
	if msg.Subject == "" && snip.Kind == SnippetStructured {
		msg.Subject = snip.Subject
	}
	if msg.Snippet == "" {
		switch {
		case msg.BodyText != nil:
			msg.Snippet = Preview(*msg.BodyText)
		case msg.BodyHTML != nil:
			msg.Snippet = Preview(HTMLToText(*msg.BodyHTML))
		}
	}

	ts := firstValue(data, "messageTimestamp", "date", "internalDate", "received_at")
	if ts == nil && headers["date"] != "" {
		ts = headers["date"]
	}
	msg.ReceivedAt = ParseTimestamp(ts, now)

	return msg, nil
}

func headerMap(payload map[string]any) map[string]string {
	out := make(map[string]string)
	list, _ := payload["headers"].([]any)
	for _, item := range list {
		h, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := strings.ToLower(firstString(h, "name"))
		if name == "" {
			continue
		}
		if _, seen := out[name]; !seen {
			out[name] = firstString(h, "value")
		}
	}
	return out
}

// firstValue returns the first non-empty value among keys.
func firstValue(data map[string]any, keys ...string) any {
	for _, k := range keys {
		v, ok := data[k]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			continue
		}
		return v
	}
	return nil
}

// firstString is firstValue restricted to scalar values rendered as text.
func firstString(data map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringValue(data[k]); s != "" {
			return s
		}
	}
	return ""
}

func stringValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int, int64:
		return fmt.Sprint(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func stringList(v any) models.Labels {
	labels := models.Labels{}
	switch x := v.(type) {
	case []any:
		for _, item := range x {
			if s := stringValue(item); s != "" {
				labels = append(labels, s)
			}
		}
	case []string:
		labels = append(labels, x...)
	case string:
		for _, s := range strings.Split(x, ",") {
			if s = strings.TrimSpace(s); s != "" {
				labels = append(labels, s)
			}
		}
	}
	return labels
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
