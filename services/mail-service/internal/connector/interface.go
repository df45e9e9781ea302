package connector

import (
	"context"
	"errors"

	"github.com/stoik/mailbridge/internal/models"
)

// ErrNoAccount is returned by ConnectedAccount when the user has no linked
// mail account on the connector yet.
var ErrNoAccount = errors.New("no connected account")

// Connector defines the managed-OAuth mail connector used to link a Gmail
// account, list its messages and subscribe to new-message pushes.
type Connector interface {
	// StartAuthorization begins the OAuth flow for userID and returns the URL
	// the user must visit. redirectURL is where the connector sends the user
	// afterwards; it may be empty.
	StartAuthorization(ctx context.Context, userID, redirectURL string) (Authorization, error)

	// ConnectedAccount returns the active account linked for userID.
	ConnectedAccount(ctx context.Context, userID string) (Account, error)

	// ListRecentMessages returns up to max raw message records, newest first.
	ListRecentMessages(ctx context.Context, accountID, userID string, max int) ([]models.RawMessage, error)

	// EnablePush subscribes callbackURL to new-message events for the account.
	EnablePush(ctx context.Context, accountID, userID, callbackURL string) (Trigger, error)
}

// Authorization is the result of starting an OAuth flow.
type Authorization struct {
	RedirectURL  string `json:"redirect_url"`
	ConnectionID string `json:"connected_account_id"`
	Status       string `json:"status"`
}

// Account is a linked mail account on the connector.
type Account struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// Trigger is an enabled push subscription.
type Trigger struct {
	ID      string `json:"trigger_id"`
	Enabled bool   `json:"-"`
	Status  string `json:"status"`
}
