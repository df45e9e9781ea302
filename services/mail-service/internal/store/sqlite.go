package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/stoik/mailbridge/internal/models"
)

const statsQuery = `SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_read THEN 0 ELSE 1 END), 0) FROM emails`

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens the database file at path. Times are stored in
// SQLite's own format so they sort as text.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	conn, err := sqlx.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One writer at a time; concurrent upserts queue on the pool.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &SQLiteStore{db: conn}, nil
}

func sqliteDSN(path string) string {
	if path == "" {
		path = "mailbridge.db"
	}
	params := []string{"_pragma=busy_timeout(5000)", "_pragma=foreign_keys(1)"}
	if !strings.Contains(path, "_time_format=") {
		params = append(params, "_time_format=sqlite")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() {
	s.db.Close()
}

func (s *SQLiteStore) UpsertMessage(ctx context.Context, msg models.Message) (models.Message, bool, error) {
	now := time.Now().UTC()
	if msg.Labels == nil {
		msg.Labels = models.Labels{}
	}
	if msg.RawPayload == nil {
		msg.RawPayload = models.RawMessage{}
	}

	insert := `
		INSERT INTO emails (id, external_id, thread_id, sender, recipient, subject, snippet,
			body_text, body_html, labels, received_at, is_read, raw_payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE, ?, ?, ?)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING ` + messageColumns

	var stored models.Message
	err := s.db.GetContext(ctx, &stored, insert,
		uuid.New(), msg.ExternalID, msg.ThreadID, msg.Sender, msg.Recipient, msg.Subject, msg.Snippet,
		msg.BodyText, msg.BodyHTML, msg.Labels, msg.ReceivedAt.UTC(), msg.RawPayload, now, now,
	)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, false, fmt.Errorf("failed to insert email: %w", err)
	}

	update := `
		UPDATE emails SET
			thread_id = ?, sender = ?, recipient = ?, subject = ?, snippet = ?,
			body_text = ?, body_html = ?, labels = ?, received_at = ?,
			raw_payload = ?, updated_at = ?
		WHERE external_id = ?
		RETURNING ` + messageColumns

	err = s.db.GetContext(ctx, &stored, update,
		msg.ThreadID, msg.Sender, msg.Recipient, msg.Subject, msg.Snippet,
		msg.BodyText, msg.BodyHTML, msg.Labels, msg.ReceivedAt.UTC(), msg.RawPayload, now,
		msg.ExternalID,
	)
	if err != nil {
		return models.Message{}, false, fmt.Errorf("failed to update email %s: %w", msg.ExternalID, err)
	}
	return stored, false, nil
}

func (s *SQLiteStore) GetMessage(ctx context.Context, id uuid.UUID) (models.Message, error) {
	var msg models.Message
	err := s.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM emails WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to get email: %w", err)
	}
	return msg, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, limit, offset int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM emails
		ORDER BY received_at DESC, id DESC
		LIMIT ? OFFSET ?`

	msgs := []models.Message{}
	if err := s.db.SelectContext(ctx, &msgs, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	return msgs, nil
}

func (s *SQLiteStore) MarkRead(ctx context.Context, id uuid.UUID) (models.Message, error) {
	query := `
		UPDATE emails SET
			updated_at = CASE WHEN is_read THEN updated_at ELSE ? END,
			is_read = TRUE
		WHERE id = ?
		RETURNING ` + messageColumns

	var msg models.Message
	err := s.db.GetContext(ctx, &msg, query, time.Now().UTC(), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to mark email read: %w", err)
	}
	return msg, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (models.Stats, error) {
	var stats models.Stats
	if err := s.db.QueryRowContext(ctx, statsQuery).Scan(&stats.Total, &stats.Unread); err != nil {
		return models.Stats{}, fmt.Errorf("failed to count emails: %w", err)
	}
	stats.Read = stats.Total - stats.Unread
	return stats, nil
}

func (s *SQLiteStore) GetConnection(ctx context.Context, userID string) (models.Connection, error) {
	var conn models.Connection
	err := s.db.GetContext(ctx, &conn, `SELECT `+connectionColumns+` FROM connections WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Connection{}, ErrNotFound
	}
	if err != nil {
		return models.Connection{}, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

func (s *SQLiteStore) SaveConnection(ctx context.Context, conn models.Connection) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO connections (` + connectionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id)
		DO UPDATE SET
			state = excluded.state,
			external_account_id = excluded.external_account_id,
			trigger_id = excluded.trigger_id,
			trigger_enabled = excluded.trigger_enabled,
			connected_at = excluded.connected_at,
			updated_at = excluded.updated_at
	`

	var connectedAt *time.Time
	if conn.ConnectedAt != nil {
		t := conn.ConnectedAt.UTC()
		connectedAt = &t
	}
	_, err := s.db.ExecContext(ctx, query,
		conn.UserID, string(conn.State), conn.ExternalAccountID, conn.TriggerID,
		conn.TriggerEnabled, connectedAt, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save connection for %s: %w", conn.UserID, err)
	}
	return nil
}
