// Package mailsync is the application layer of the mail service: it links
// accounts through the connector, ingests messages from sync and webhook
// pushes, and serves the read side.
package mailsync

import (
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/stoik/mailbridge/internal/logging"
	"github.com/stoik/mailbridge/services/mail-service/internal/connector"
	"github.com/stoik/mailbridge/services/mail-service/internal/metrics"
	"github.com/stoik/mailbridge/services/mail-service/internal/store"
)

// WebhookPath is where the connector delivers new-message pushes.
const WebhookPath = "/api/webhook/email/"

const (
	DefaultUserID     = "default-user"
	DefaultMaxResults = 50
	DefaultPageSize   = 20
)

// Config holds the service settings.
type Config struct {
	DefaultUserID  string
	WebhookBaseURL string
	MaxResults     int
	PageSize       int
}

type Service struct {
	store     store.Store
	connector connector.Connector
	cfg       Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	syncs     singleflight.Group
	now       func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st store.Store, conn connector.Connector, cfg Config, opts ...Option) *Service {
	if cfg.DefaultUserID == "" {
		cfg.DefaultUserID = DefaultUserID
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}

	s := &Service{
		store:     st,
		connector: conn,
		cfg:       cfg,
		logger:    slog.Default(),
		tracer:    otel.Tracer("github.com/stoik/mailbridge/mailsync"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithOperation(s.logger, "mailsync")
	return s
}

// PageSize is the fixed page size of ListMessages.
func (s *Service) PageSize() int {
	return s.cfg.PageSize
}

// WebhookURL is the callback registered with the connector on completion.
func (s *Service) WebhookURL() string {
	return strings.TrimRight(s.cfg.WebhookBaseURL, "/") + WebhookPath
}

// UserID returns id, or the configured default user when id is blank.
func (s *Service) UserID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return s.cfg.DefaultUserID
}
