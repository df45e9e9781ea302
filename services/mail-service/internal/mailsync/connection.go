package mailsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stoik/mailbridge/internal/logging"
	"github.com/stoik/mailbridge/internal/models"
	"github.com/stoik/mailbridge/services/mail-service/internal/connector"
	"github.com/stoik/mailbridge/services/mail-service/internal/store"
)

// ConnectResult is returned when an authorization flow starts.
type ConnectResult struct {
	RedirectURL  string
	ConnectionID string
	Connection   models.Connection
}

// InitiateConnection asks the connector for an authorization URL and records
// the user's connection as pending. An active connection stays active.
func (s *Service) InitiateConnection(ctx context.Context, userID, redirectURL string) (ConnectResult, error) {
	userID = s.UserID(userID)

	conn, err := s.connection(ctx, userID)
	if err != nil {
		return ConnectResult{}, err
	}

	auth, err := s.connector.StartAuthorization(ctx, userID, redirectURL)
	if err != nil {
		return ConnectResult{}, connectorError("start authorization", err)
	}

	if !conn.IsActive() {
		if !conn.State.CanTransition(models.StatePendingAuthorization) {
			return ConnectResult{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, conn.State, models.StatePendingAuthorization)
		}
		conn.State = models.StatePendingAuthorization
		if err := s.store.SaveConnection(ctx, conn); err != nil {
			return ConnectResult{}, err
		}
	}

	s.logger.Info("connection initiated", logging.User(userID), slog.String("state", string(conn.State)))
	return ConnectResult{
		RedirectURL:  auth.RedirectURL,
		ConnectionID: auth.ConnectionID,
		Connection:   conn,
	}, nil
}

// CompleteConnection links accountID to userID and enables push delivery to
// the webhook. When accountID is empty the connector is asked for the user's
// active account. Nothing is persisted unless the connector accepts both.
func (s *Service) CompleteConnection(ctx context.Context, userID, accountID string) (conn models.Connection, err error) {
	userID = s.UserID(userID)

	ctx, span := s.tracer.Start(ctx, "mailsync.CompleteConnection", trace.WithAttributes(
		attribute.String("user.id", userID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	conn, err = s.connection(ctx, userID)
	if err != nil {
		return models.Connection{}, err
	}
	if conn.State == models.StateNotConnected || !conn.State.CanTransition(models.StateActive) {
		return models.Connection{}, fmt.Errorf("%w: connection for %s is %s", ErrInvalidTransition, userID, conn.State)
	}

	if accountID == "" {
		acct, err := s.connector.ConnectedAccount(ctx, userID)
		if errors.Is(err, connector.ErrNoAccount) {
			return models.Connection{}, validationError("connected_account_id is required: no linked account found for %s", userID)
		}
		if err != nil {
			return models.Connection{}, connectorError("get connected account", err)
		}
		accountID = acct.ID
	}

	webhookURL := s.WebhookURL()
	trg, err := s.connector.EnablePush(ctx, accountID, userID, webhookURL)
	if err != nil {
		return models.Connection{}, connectorError("enable push", err)
	}

	now := s.now().UTC()
	conn.State = models.StateActive
	conn.ExternalAccountID = accountID
	conn.TriggerID = trg.ID
	conn.TriggerEnabled = trg.Enabled
	if conn.ConnectedAt == nil {
		conn.ConnectedAt = &now
	}
	if err := s.store.SaveConnection(ctx, conn); err != nil {
		return models.Connection{}, err
	}

	s.logger.Info("connection active",
		logging.User(userID),
		slog.String("account_id", accountID),
		slog.String("trigger_id", trg.ID),
		slog.String("webhook_url", webhookURL))
	return conn, nil
}

// ConnectionStatus returns the user's connection; users that never started
// a flow are reported as not connected.
func (s *Service) ConnectionStatus(ctx context.Context, userID string) (models.Connection, error) {
	return s.connection(ctx, s.UserID(userID))
}

func (s *Service) connection(ctx context.Context, userID string) (models.Connection, error) {
	conn, err := s.store.GetConnection(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Connection{UserID: userID, State: models.StateNotConnected}, nil
	}
	if err != nil {
		return models.Connection{}, fmt.Errorf("failed to load connection: %w", err)
	}
	return conn, nil
}
