package main

import (
	"context"
	"time"

	"github.com/paylinks/pricechange/internal/config"
	"github.com/paylinks/pricechange/internal/jobs"
	"github.com/paylinks/pricechange/internal/logger"
	"github.com/paylinks/pricechange/internal/metrics"
	"github.com/paylinks/pricechange/internal/postgres"
	"github.com/paylinks/pricechange/internal/pubsub"
	"github.com/paylinks/pricechange/internal/pubsub/kafka"
	"github.com/paylinks/pricechange/internal/pubsub/memory"
	"github.com/paylinks/pricechange/internal/redis"
	"github.com/paylinks/pricechange/internal/repository"
	"github.com/paylinks/pricechange/internal/sentry"
	"github.com/paylinks/pricechange/internal/service"
	"github.com/paylinks/pricechange/internal/temporal"
	"github.com/paylinks/pricechange/internal/types"
	"github.com/paylinks/pricechange/internal/validator"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		panic(err)
	}

	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Supply(cfg),
		fx.Provide(
			// Validator
			validator.NewValidator,

			// Logger
			logger.NewLogger,

			// Notification transport
			provideNotificationPublisher,
		),
		sentry.Module(),
		metrics.Module(),
		postgres.Module(),
		repository.Module(),
		service.Module(),
	)

	// Sweep trigger
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	switch mode {
	case types.ModeLocal, types.ModeScheduler:
		opts = append(opts, redis.Module(), jobs.Module())
	case types.ModeTemporalWorker:
		opts = append(opts, temporal.Module())
	}

	opts = append(opts, fx.Invoke(logStartup))

	app := fx.New(opts...)
	app.Run()
}

// provideNotificationPublisher picks the transport notification records are handed to
func provideNotificationPublisher(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) (pubsub.Publisher, error) {
	var publisher pubsub.Publisher
	switch cfg.Notification.PubSub {
	case types.KafkaPubSub:
		p, err := kafka.NewPublisher(cfg, log)
		if err != nil {
			return nil, err
		}
		publisher = p
	default:
		publisher = memory.NewPubSub(log)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}

func logStartup(cfg *config.Configuration, log *logger.Logger) {
	log.Infow("price change engine starting",
		"mode", cfg.Deployment.Mode,
		"notification_pubsub", cfg.Notification.PubSub,
		"approval_window", cfg.PriceChange.ApprovalWindow,
		"sweep_schedule", cfg.PriceChange.SweepSchedule)
}
