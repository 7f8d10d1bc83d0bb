package redis

import (
	"context"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/paylinks/pricechange/internal/config"
	"github.com/paylinks/pricechange/internal/logger"
	goredislib "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// Module provides the redis client and the distributed lock factory built on it
func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			NewClient,
			NewRedsync,
		),
	)
}

// NewClient connects to the configured redis and closes the connection pool on shutdown
func NewClient(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) *goredislib.Client {
	client := goredislib.NewClient(&goredislib.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				// the sweep lock degrades to skipping runs, the rest of the engine keeps working
				log.Warnw("redis is not reachable", "address", cfg.Redis.Address, "error", err)
				return nil
			}
			log.Infow("connected to redis", "address", cfg.Redis.Address)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client
}

// NewRedsync creates the lock factory used to keep one sweep running across replicas
func NewRedsync(client *goredislib.Client) *redsync.Redsync {
	return redsync.New(goredis.NewPool(client))
}
