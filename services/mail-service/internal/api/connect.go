package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stoik/mailbridge/services/mail-service/internal/mailsync"
)

type connectRequest struct {
	UserID      string `json:"user_id"`
	RedirectURL string `json:"redirect_url"`
}

type completeRequest struct {
	UserID             string `json:"user_id"`
	ConnectedAccountID string `json:"connected_account_id"`
}

type syncRequest struct {
	UserID     string `json:"user_id"`
	MaxResults int    `json:"max_results"`
}

// maxSyncResults bounds a single manual sync.
const maxSyncResults = 500

// bindOptionalJSON decodes the request body into v. An empty body leaves v
// untouched.
func bindOptionalJSON(c *gin.Context, v any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid JSON body: %v", mailsync.ErrValidation, err)
	}
	return nil
}

func (s *Server) handleConnect(c *gin.Context) {
	var req connectRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		s.abortWithError(c, err)
		return
	}

	res, err := s.svc.InitiateConnection(c.Request.Context(), req.UserID, req.RedirectURL)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"redirect_url":  res.RedirectURL,
		"connection_id": res.ConnectionID,
		"status":        res.Connection.State,
	})
}

func (s *Server) handleCompleteConnection(c *gin.Context) {
	var req completeRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		s.abortWithError(c, err)
		return
	}

	conn, err := s.svc.CompleteConnection(c.Request.Context(), req.UserID, req.ConnectedAccountID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "connected",
		"trigger_id":      conn.TriggerID,
		"trigger_enabled": conn.TriggerEnabled,
		"webhook_url":     s.svc.WebhookURL(),
	})
}

func (s *Server) handleConnectionStatus(c *gin.Context) {
	conn, err := s.svc.ConnectionStatus(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	var connectedAt *time.Time
	if conn.ConnectedAt != nil {
		t := conn.ConnectedAt.UTC()
		connectedAt = &t
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":         conn.UserID,
		"state":           conn.State,
		"is_active":       conn.IsActive(),
		"trigger_enabled": conn.TriggerEnabled,
		"connected_at":    connectedAt,
	})
}

func (s *Server) handleSync(c *gin.Context) {
	var req syncRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		s.abortWithError(c, err)
		return
	}
	if req.MaxResults < 0 || req.MaxResults > maxSyncResults {
		s.abortWithError(c, fmt.Errorf("%w: max_results must be between 1 and %d", mailsync.ErrValidation, maxSyncResults))
		return
	}

	res, err := s.svc.Sync(c.Request.Context(), req.UserID, req.MaxResults)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "synced",
		"emails_fetched": res.Fetched,
		"emails_created": res.Created,
		"emails_updated": res.Updated,
		"emails_skipped": res.Skipped,
	})
}
