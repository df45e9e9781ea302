package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/stoik/mailbridge/services/mail-service/internal/connector"
	"github.com/stoik/mailbridge/services/mail-service/internal/mailsync"
	"github.com/stoik/mailbridge/services/mail-service/internal/metrics"
	"github.com/stoik/mailbridge/services/mail-service/internal/store"
)

type deps struct {
	store   store.Store
	service *mailsync.Service
	metrics *metrics.Metrics
}

func newDeps(ctx context.Context, logger *slog.Logger) (*deps, error) {
	st, err := store.Open(ctx, viper.GetString("database.driver"), viper.GetString("database.url"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	m := metrics.New()
	conn := connector.NewClient(
		viper.GetString("connector.api_url"),
		viper.GetString("connector.api_key"),
		viper.GetDuration("connector.timeout"),
		logger,
	)

	svc := mailsync.NewService(st, conn, mailsync.Config{
		DefaultUserID:  viper.GetString("default_user_id"),
		WebhookBaseURL: viper.GetString("webhook.base_url"),
		MaxResults:     viper.GetInt("sync.max_results"),
		PageSize:       viper.GetInt("api.page_size"),
	}, mailsync.WithLogger(logger), mailsync.WithMetrics(m))

	return &deps{store: st, service: svc, metrics: m}, nil
}
