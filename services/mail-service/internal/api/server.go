// Package api exposes the mail service over HTTP with gin.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/stoik/mailbridge/services/mail-service/internal/mailsync"
	"github.com/stoik/mailbridge/services/mail-service/internal/metrics"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the HTTP layer settings.
type Config struct {
	// WebhookSecret enables signature checks on webhook deliveries when set.
	WebhookSecret  string
	WebhookMaxSkew time.Duration
}

type Server struct {
	svc           *mailsync.Service
	health        Pinger
	cfg           Config
	logger        *slog.Logger
	metrics       *metrics.Metrics
	webhookSchema *jsonschema.Schema
	now           func() time.Time
}

func NewServer(svc *mailsync.Service, health Pinger, cfg Config, logger *slog.Logger, m *metrics.Metrics) (*Server, error) {
	if cfg.WebhookMaxSkew <= 0 {
		cfg.WebhookMaxSkew = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	schema, err := compileWebhookSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile webhook schema: %w", err)
	}

	return &Server{
		svc:           svc,
		health:        health,
		cfg:           cfg,
		logger:        logger,
		metrics:       m,
		webhookSchema: schema,
		now:           time.Now,
	}, nil
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), s.accessLog())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/api")
	{
		emails := api.Group("/emails")
		{
			emails.GET("/", s.handleListEmails)
			emails.GET("/stats/", s.handleStats)
			emails.GET("/:id/", s.handleGetEmail)
			emails.POST("/:id/mark_read/", s.handleMarkRead)
		}

		connect := api.Group("/connect")
		{
			connect.POST("/", s.handleConnect)
			connect.POST("/complete/", s.handleCompleteConnection)
			connect.GET("/status/", s.handleConnectionStatus)
		}

		api.POST("/sync/", s.handleSync)
		api.POST("/webhook/email/", s.handleWebhook)
	}

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
