package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stoik/mailbridge/internal/models"
	"github.com/stoik/mailbridge/services/mail-service/internal/db"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to url and returns a store using the pool.
func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := db.NewPool(ctx, url)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) UpsertMessage(ctx context.Context, msg models.Message) (models.Message, bool, error) {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE, $12, $13, $13)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING ` + messageColumns

	rows, err := s.pool.Query(ctx, insert,
		uuid.New(), msg.ExternalID, msg.ThreadID, msg.Sender, msg.Recipient, msg.Subject, msg.Snippet,
		msg.BodyText, msg.BodyHTML, msg.Labels, msg.ReceivedAt.UTC(), msg.RawPayload, now,
	)
	if err != nil {
		return models.Message{}, false, fmt.Errorf("failed to insert email: %w", err)
	}
	stored, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[models.Message])
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Message{}, false, fmt.Errorf("failed to insert email: %w", err)
	}

	update := `
		UPDATE emails SET
			thread_id = $2, sender = $3, recipient = $4, subject = $5, snippet = $6,
			body_text = $7, body_html = $8, labels = $9, received_at = $10,
			raw_payload = $11, updated_at = $12
		WHERE external_id = $1
		RETURNING ` + messageColumns

	rows, err = s.pool.Query(ctx, update,
		msg.ExternalID, msg.ThreadID, msg.Sender, msg.Recipient, msg.Subject, msg.Snippet,
		msg.BodyText, msg.BodyHTML, msg.Labels, msg.ReceivedAt.UTC(), msg.RawPayload, now,
	)
	if err != nil {
		return models.Message{}, false, fmt.Errorf("failed to update email %s: %w", msg.ExternalID, err)
	}
	stored, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[models.Message])
	if err != nil {
		return models.Message{}, false, fmt.Errorf("failed to update email %s: %w", msg.ExternalID, err)
	}
	return stored, false, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, id uuid.UUID) (models.Message, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+messageColumns+` FROM emails WHERE id = $1`, id)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to get email: %w", err)
	}
	return collectMessage(rows)
}

func (s *PostgresStore) ListMessages(ctx context.Context, limit, offset int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM emails
		ORDER BY received_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.Message])
	if err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	return msgs, nil
}

func (s *PostgresStore) MarkRead(ctx context.Context, id uuid.UUID) (models.Message, error) {
	query := `
		UPDATE emails SET
			updated_at = CASE WHEN is_read THEN updated_at ELSE $2 END,
			is_read = TRUE
		WHERE id = $1
		RETURNING ` + messageColumns

	rows, err := s.pool.Query(ctx, query, id, time.Now().UTC())
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to mark email read: %w", err)
	}
	return collectMessage(rows)
}

func (s *PostgresStore) Stats(ctx context.Context) (models.Stats, error) {
	var stats models.Stats
	err := s.pool.QueryRow(ctx, statsQuery).Scan(&stats.Total, &stats.Unread)
	if err != nil {
		return models.Stats{}, fmt.Errorf("failed to count emails: %w", err)
	}
	stats.Read = stats.Total - stats.Unread
	return stats, nil
}

func (s *PostgresStore) GetConnection(ctx context.Context, userID string) (models.Connection, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+connectionColumns+` FROM connections WHERE user_id = $1`, userID)
	if err != nil {
		return models.Connection{}, fmt.Errorf("failed to get connection: %w", err)
	}
	conn, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[models.Connection])
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Connection{}, ErrNotFound
	}
	if err != nil {
		return models.Connection{}, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

func (s *PostgresStore) SaveConnection(ctx context.Context, conn models.Connection) error {
	query := `
		INSERT INTO connections (` + connectionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (user_id)
		DO UPDATE SET
			state = EXCLUDED.state,
			external_account_id = EXCLUDED.external_account_id,
			trigger_id = EXCLUDED.trigger_id,
			trigger_enabled = EXCLUDED.trigger_enabled,
			connected_at = EXCLUDED.connected_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		conn.UserID, string(conn.State), conn.ExternalAccountID, conn.TriggerID,
		conn.TriggerEnabled, conn.ConnectedAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save connection for %s: %w", conn.UserID, err)
	}
	return nil
}

func collectMessage(rows pgx.Rows) (models.Message, error) {
	msg, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[models.Message])
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Message{}, ErrNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to scan email: %w", err)
	}
	return msg, nil
}
