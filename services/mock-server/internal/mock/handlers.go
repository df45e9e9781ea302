package mock

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const fetchEmailsAction = "GMAIL_FETCH_EMAILS"

// Server exposes a Connector over the connector HTTP API.
type Server struct {
	conn   *Connector
	pusher *Pusher
	apiKey string
}

// NewServer returns a Server. A non-empty apiKey is required on every
// /api/v1 request in the x-api-key header.
func NewServer(conn *Connector, pusher *Pusher, apiKey string) *Server {
	return &Server{conn: conn, pusher: pusher, apiKey: apiKey}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1", s.requireAPIKey)
	{
		v1.POST("/connected_accounts", s.handleInitiate)
		v1.GET("/connected_accounts", s.handleListAccounts)
		v1.POST("/actions/:action/execute", s.handleExecute)
		v1.POST("/triggers/enable", s.handleEnableTrigger)
	}

	// Stand-in for the provider consent screen
	r.GET("/oauth/authorize/:accountId", s.handleAuthorize)

	// Admin endpoints for testing
	admin := r.Group("/admin")
	{
		admin.POST("/accounts/:accountId/emails", s.handleAddEmail)
	}

	return r
}

func (s *Server) requireAPIKey(c *gin.Context) {
	if s.apiKey != "" && c.GetHeader("x-api-key") != s.apiKey {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
		return
	}
	c.Next()
}

func (s *Server) handleInitiate(c *gin.Context) {
	var req struct {
		UserID      string `json:"user_id"`
		App         string `json:"app"`
		RedirectURL string `json:"redirect_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if req.App == "" {
		req.App = "gmail"
	}

	acct := s.conn.InitiateAccount(req.UserID, req.App, req.RedirectURL)
	c.JSON(http.StatusOK, gin.H{
		"redirect_url":         fmt.Sprintf("%s/oauth/authorize/%s", baseURL(c), acct.ID),
		"connected_account_id": acct.ID,
		"status":               acct.Status,
	})
}

func (s *Server) handleListAccounts(c *gin.Context) {
	var userIDs []string
	for _, v := range c.QueryArray("user_ids") {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				userIDs = append(userIDs, id)
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"items": s.conn.Accounts(userIDs, c.Query("app"))})
}

func (s *Server) handleExecute(c *gin.Context) {
	if c.Param("action") != fetchEmailsAction {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown action"})
		return
	}

	var req struct {
		AccountID string `json:"connected_account_id"`
		Params    struct {
			MaxResults int `json:"max_results"`
		} `json:"params"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.AccountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "connected_account_id is required"})
		return
	}

	emails, err := s.conn.RecentEmails(req.AccountID, req.Params.MaxResults)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       gin.H{"messages": emails},
		"successful": true,
		"error":      "",
	})
}

func (s *Server) handleEnableTrigger(c *gin.Context) {
	var req struct {
		AccountID   string `json:"connected_account_id"`
		TriggerName string `json:"trigger_name"`
		Config      struct {
			CallbackURL string `json:"callback_url"`
		} `json:"config"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.AccountID == "" || req.Config.CallbackURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "connected_account_id and config.callback_url are required"})
		return
	}

	trg, err := s.conn.EnableTrigger(req.AccountID, req.TriggerName, req.Config.CallbackURL)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, trg)
}

func (s *Server) handleAuthorize(c *gin.Context) {
	acct, err := s.conn.Authorize(c.Param("accountId"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if acct.RedirectURL != "" {
		c.Redirect(http.StatusFound, acct.RedirectURL)
		return
	}
	c.JSON(http.StatusOK, acct)
}

func (s *Server) handleAddEmail(c *gin.Context) {
	email, push, err := s.conn.AddEmail(c.Param("accountId"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	pushed := false
	if push != nil && s.pusher != nil {
		if err := s.pusher.Deliver(c.Request.Context(), *push); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "email": email})
			return
		}
		pushed = true
	}
	c.JSON(http.StatusOK, gin.H{"email": email, "pushed": pushed})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownAccount):
		return http.StatusNotFound
	case errors.Is(err, ErrNotActive):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func baseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host
}
