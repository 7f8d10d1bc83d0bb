package config

import (
	"testing"
	"time"

	"github.com/paylinks/pricechange/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Configuration {
	cfg := *GetDefaultConfig()
	cfg.Postgres = PostgresConfig{
		Host:   "localhost",
		Port:   5432,
		User:   "pricechange",
		DBName: "pricechange",
	}
	cfg.Redis = RedisConfig{Address: "localhost:6379"}
	return cfg
}

func TestValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	kafka := validConfig()
	kafka.Notification.PubSub = types.KafkaPubSub
	assert.Error(t, kafka.Validate(), "kafka pubsub without brokers")
	kafka.Kafka.Brokers = []string{"localhost:29092"}
	assert.NoError(t, kafka.Validate())

	worker := validConfig()
	worker.Deployment.Mode = types.ModeTemporalWorker
	assert.Error(t, worker.Validate(), "temporal worker without temporal")

	badWindow := validConfig()
	badWindow.PriceChange.ApprovalWindow = 0
	assert.Error(t, badWindow.Validate())

	badMode := validConfig()
	badMode.Deployment.Mode = "api"
	assert.Error(t, badMode.Validate())
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("PRICECHANGE_POSTGRES_HOST", "db")
	t.Setenv("PRICECHANGE_POSTGRES_USER", "u")
	t.Setenv("PRICECHANGE_POSTGRES_DBNAME", "d")
	t.Setenv("PRICECHANGE_PRICE_CHANGE_APPROVAL_WINDOW", "48h")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "db", cfg.Postgres.Host)
	assert.Equal(t, 48*time.Hour, cfg.PriceChange.ApprovalWindow)
	assert.Equal(t, 3, cfg.PriceChange.MaxApplyAttempts)
}

func TestPostgresURLs(t *testing.T) {
	cfg := PostgresConfig{
		Host:           "localhost",
		Port:           5432,
		User:           "u",
		Password:       "p",
		DBName:         "d",
		SSLMode:        "disable",
		MigrationsPath: "migrations",
	}
	assert.Equal(t, "postgres://u:p@localhost:5432/d?sslmode=disable", cfg.GetDatabaseURL())
	assert.Equal(t, "file://migrations", cfg.GetMigrationsURL())

	cfg.MigrationsPath = "file:///srv/migrations"
	assert.Equal(t, "file:///srv/migrations", cfg.GetMigrationsURL())
}
