// Package store persists messages and connection records.
//
// Two backends implement Store: PostgresStore on a pgx pool for
// deployments, and SQLiteStore on an embedded database for local runs and
// tests. Both enforce external_id uniqueness in the schema and decide
// "created" with a single INSERT ... ON CONFLICT DO NOTHING.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/stoik/mailbridge/internal/models"
)

// ErrNotFound is returned when a message or connection does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistence boundary of the mail service.
type Store interface {
	// Migrate creates the schema if it does not exist.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close()

	// UpsertMessage inserts msg or refreshes the mutable fields of the row
	// with the same external id. IsRead, ID and CreatedAt of an existing
	// row are never changed. The stored row is returned.
	UpsertMessage(ctx context.Context, msg models.Message) (models.Message, bool, error)
	GetMessage(ctx context.Context, id uuid.UUID) (models.Message, error)
	// ListMessages returns messages newest first.
	ListMessages(ctx context.Context, limit, offset int) ([]models.Message, error)
	// MarkRead sets is_read and returns the updated row.
	MarkRead(ctx context.Context, id uuid.UUID) (models.Message, error)
	Stats(ctx context.Context) (models.Stats, error)

	GetConnection(ctx context.Context, userID string) (models.Connection, error)
	SaveConnection(ctx context.Context, conn models.Connection) error
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// Open returns the backend selected by driver ("postgres" or "sqlite").
func Open(ctx context.Context, driver, url string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "postgres", "postgresql", "pgx":
		return NewPostgresStore(ctx, url)
	case "sqlite", "sqlite3":
		return NewSQLiteStore(url)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
