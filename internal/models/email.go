package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RawMessage is a message record exactly as the connector delivered it,
// either from a fetch call or a webhook push.
type RawMessage map[string]any

// Value implements driver.Valuer so the payload is stored as JSON text.
func (r RawMessage) Value() (driver.Value, error) {
	if r == nil {
		return "{}", nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode raw payload: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (r *RawMessage) Scan(src any) error {
	data, err := jsonBytes(src)
	if err != nil || data == nil {
		return err
	}
	return json.Unmarshal(data, r)
}

// Labels is the ordered list of provider labels attached to a message.
type Labels []string

func (l Labels) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, fmt.Errorf("failed to encode labels: %w", err)
	}
	return string(b), nil
}

func (l *Labels) Scan(src any) error {
	data, err := jsonBytes(src)
	if err != nil {
		return err
	}
	if data == nil {
		*l = Labels{}
		return nil
	}
	return json.Unmarshal(data, (*[]string)(l))
}

func jsonBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported JSON column type %T", src)
	}
}

// Message database model. ExternalID is the provider message id and the
// dedup key; ID is assigned locally on first insert.
type Message struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	ExternalID string     `db:"external_id" json:"message_id"`
	ThreadID   string     `db:"thread_id" json:"thread_id"`
	Sender     string     `db:"sender" json:"sender"`
	Recipient  string     `db:"recipient" json:"recipient"`
	Subject    string     `db:"subject" json:"subject"`
	Snippet    string     `db:"snippet" json:"snippet"`
	BodyText   *string    `db:"body_text" json:"body_text"`
	BodyHTML   *string    `db:"body_html" json:"body_html"`
	Labels     Labels     `db:"labels" json:"labels"`
	ReceivedAt time.Time  `db:"received_at" json:"received_at"`
	IsRead     bool       `db:"is_read" json:"is_read"`
	RawPayload RawMessage `db:"raw_payload" json:"-"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// Stats are live counts over the message table.
type Stats struct {
	Total  int64 `json:"total"`
	Unread int64 `json:"unread"`
	Read   int64 `json:"read"`
}
