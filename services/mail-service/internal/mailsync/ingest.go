package mailsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stoik/mailbridge/internal/logging"
	"github.com/stoik/mailbridge/internal/models"
	"github.com/stoik/mailbridge/services/mail-service/internal/ingest"
	"github.com/stoik/mailbridge/services/mail-service/internal/metrics"
	"github.com/stoik/mailbridge/services/mail-service/internal/store"
)

// Ingest actions reported to callers.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionSkipped = "skipped"
)

// IngestResult is the outcome of ingesting one payload.
type IngestResult struct {
	Message models.Message
	Created bool
}

// Action is "created" or "updated".
func (r IngestResult) Action() string {
	if r.Created {
		return ActionCreated
	}
	return ActionUpdated
}

// SyncResult counts the outcome of one sync run.
type SyncResult struct {
	Fetched int `json:"emails_fetched"`
	Created int `json:"emails_created"`
	Updated int `json:"emails_updated"`
	Skipped int `json:"emails_skipped"`
}

// Ingest normalizes one raw payload and upserts it by external id. Sync and
// webhook deliveries both go through here.
func (s *Service) Ingest(ctx context.Context, raw models.RawMessage) (IngestResult, error) {
	msg, err := ingest.Normalize(raw, s.now())
	if errors.Is(err, ingest.ErrMissingExternalID) {
		return IngestResult{}, validationError("message payload is missing a message id")
	}
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to normalize email: %w", err)
	}

	stored, created, err := s.store.UpsertMessage(ctx, msg)
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to store email %s: %w", msg.ExternalID, err)
	}
	return IngestResult{Message: stored, Created: created}, nil
}

// Sync pulls up to maxResults recent messages for userID from the connector
// and ingests them in order. Concurrent calls for the same user share one
// run. Payloads without a message id are skipped; a store failure stops the
// batch, keeping what was already written.
func (s *Service) Sync(ctx context.Context, userID string, maxResults int) (SyncResult, error) {
	userID = s.UserID(userID)
	if maxResults <= 0 {
		maxResults = s.cfg.MaxResults
	}

	v, err, shared := s.syncs.Do(userID, func() (interface{}, error) {
		start := time.Now()
		res, err := s.sync(ctx, userID, maxResults)
		s.metrics.SyncRun(err, time.Since(start))
		return res, err
	})
	if shared {
		s.logger.Debug("joined in-flight sync", logging.User(userID))
	}
	return v.(SyncResult), err
}

func (s *Service) sync(ctx context.Context, userID string, maxResults int) (res SyncResult, err error) {
	ctx, span := s.tracer.Start(ctx, "mailsync.Sync", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.Int("sync.max_results", maxResults),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int("sync.fetched", res.Fetched),
			attribute.Int("sync.created", res.Created),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	conn, err := s.activeConnection(ctx, userID)
	if err != nil {
		return SyncResult{}, err
	}

	raws, err := s.connector.ListRecentMessages(ctx, conn.ExternalAccountID, userID, maxResults)
	if err != nil {
		return SyncResult{}, connectorError("list messages", err)
	}
	res.Fetched = len(raws)
	s.logger.Info("fetched emails", logging.User(userID), slog.Int("count", len(raws)))

	for _, raw := range raws {
		r, err := s.Ingest(ctx, raw)
		switch {
		case errors.Is(err, ErrValidation):
			res.Skipped++
			s.metrics.IngestResult(metrics.SourceSync, ActionSkipped)
			s.logger.Warn("skipping email payload", logging.User(userID), logging.Err(err))
			continue
		case err != nil:
			s.logger.Error("sync aborted", logging.User(userID), logging.Err(err),
				slog.Int("created", res.Created), slog.Int("updated", res.Updated))
			return res, err
		}
		if r.Created {
			res.Created++
		} else {
			res.Updated++
		}
		s.metrics.IngestResult(metrics.SourceSync, r.Action())
	}

	s.logger.Info("sync finished", logging.User(userID),
		slog.Int("fetched", res.Fetched),
		slog.Int("created", res.Created),
		slog.Int("updated", res.Updated),
		slog.Int("skipped", res.Skipped))
	return res, nil
}

// HandleWebhook ingests a single pushed message. The user is taken from
// userID, then the payload's user_id or entity_id, then the default user.
func (s *Service) HandleWebhook(ctx context.Context, userID string, payload models.RawMessage) (IngestResult, error) {
	if userID == "" {
		userID = webhookUserID(payload)
	}
	userID = s.UserID(userID)

	ctx, span := s.tracer.Start(ctx, "mailsync.HandleWebhook", trace.WithAttributes(
		attribute.String("user.id", userID),
	))
	defer span.End()

	if _, err := s.activeConnection(ctx, userID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return IngestResult{}, err
	}

	res, err := s.Ingest(ctx, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return IngestResult{}, err
	}

	s.metrics.IngestResult(metrics.SourceWebhook, res.Action())
	s.logger.Info("webhook email "+res.Action(),
		logging.User(userID), logging.ExternalID(res.Message.ExternalID))
	return res, nil
}

func webhookUserID(payload models.RawMessage) string {
	for _, key := range []string{"user_id", "entity_id"} {
		if v, ok := payload[key].(string); ok && v != "" {
			return v
		}
	}
	if data, ok := payload["data"].(map[string]any); ok {
		for _, key := range []string{"user_id", "entity_id"} {
			if v, ok := data[key].(string); ok && v != "" {
				return v
			}
		}
	}
	return ""
}

func (s *Service) activeConnection(ctx context.Context, userID string) (models.Connection, error) {
	conn, err := s.store.GetConnection(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Connection{}, ErrNoActiveConnection
	}
	if err != nil {
		return models.Connection{}, fmt.Errorf("failed to load connection: %w", err)
	}
	if !conn.IsActive() {
		return models.Connection{}, ErrNoActiveConnection
	}
	return conn, nil
}
