package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/paylinks/pricechange/internal/api/dto"
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
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// sweep runs one price change sweep and prints its summary, for operators and
// external schedulers that do not run the long lived trigger
func main() {
	viaTemporal := flag.Bool("temporal", false, "Run the sweep as a temporal workflow instead of in this process")
	timeout := flag.Duration("timeout", 30*time.Minute, "Give up after this long")
	flag.Parse()

	time.Local = time.UTC

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var summary *dto.SweepSummary
	var run func(ctx context.Context) error

	opts := []fx.Option{
		fx.NopLogger,
		fx.Supply(cfg),
		fx.Provide(logger.NewLogger),
	}

	if *viaTemporal {
		var temporalService *temporal.Service
		opts = append(opts,
			fx.Provide(temporal.NewTemporalClient, temporal.NewService),
			fx.Populate(&temporalService),
		)
		run = func(ctx context.Context) error {
			defer temporalService.Close()
			summary, err = temporalService.TriggerSweep(ctx)
			return err
		}
	} else {
		var job *jobs.SweepJob
		opts = append(opts,
			fx.Provide(
				validator.NewValidator,
				sentry.NewSentryService,
				func() *metrics.Metrics { return metrics.NewMetrics(prometheus.NewRegistry()) },
				func(cfg *config.Configuration, log *logger.Logger) (pubsub.Publisher, error) {
					if cfg.Notification.PubSub == types.KafkaPubSub {
						return kafka.NewPublisher(cfg, log)
					}
					return memory.NewPubSub(log), nil
				},
				redis.NewClient,
				redis.NewRedsync,
				jobs.NewSweepJob,
			),
			postgres.Module(),
			repository.Module(),
			service.Module(),
			fx.Populate(&job),
		)
		run = func(ctx context.Context) error {
			var ran bool
			summary, ran, err = job.RunOnce(ctx)
			if err == nil && !ran {
				log.Println("Another sweep holds the lock, nothing to do")
			}
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	app := fx.New(opts...)
	if err := app.Start(ctx); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer func() {
		if err := app.Stop(context.Background()); err != nil {
			log.Printf("Failed to stop cleanly: %v", err)
		}
	}()

	if err := run(ctx); err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}

	if summary != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			log.Fatalf("Failed to print summary: %v", err)
		}
	}
}
