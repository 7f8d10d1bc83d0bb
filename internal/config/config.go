package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/paylinks/pricechange/internal/types"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment   DeploymentConfig   `validate:"required"`
	Logging      LoggingConfig      `validate:"required"`
	Postgres     PostgresConfig     `validate:"required"`
	Redis        RedisConfig        `validate:"required"`
	PriceChange  PriceChangeConfig  `mapstructure:"price_change" validate:"required"`
	Notification NotificationConfig `validate:"required"`
	Kafka        KafkaConfig
	Temporal     TemporalConfig
	Sentry       SentryConfig
	Metrics      MetricsConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type PostgresConfig struct {
	Host                   string `validate:"required"`
	Port                   int    `validate:"required"`
	User                   string `validate:"required"`
	Password               string
	DBName                 string `mapstructure:"dbname" validate:"required"`
	SSLMode                string `mapstructure:"sslmode"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
	MigrationsPath         string `mapstructure:"migrations_path"`
}

type RedisConfig struct {
	Address  string `validate:"required"`
	Password string
	DB       int
}

// PriceChangeConfig holds the tunables of the approval workflow and the sweep
type PriceChangeConfig struct {
	// ApprovalWindow is how long a client may stay silent before consent is assumed
	ApprovalWindow time.Duration `mapstructure:"approval_window" validate:"required,gt=0"`
	// MaxApplyAttempts bounds retries of a bulk child before it is counted as failed
	MaxApplyAttempts    int           `mapstructure:"max_apply_attempts" validate:"required,min=1"`
	SweepSchedule       string        `mapstructure:"sweep_schedule" validate:"required"`
	SweepTimeout        time.Duration `mapstructure:"sweep_timeout" validate:"required,gt=0"`
	SweepConcurrency    int           `mapstructure:"sweep_concurrency" validate:"required,min=1"`
	SweepLockTTL        time.Duration `mapstructure:"sweep_lock_ttl" validate:"required,gt=0"`
	NotificationTimeout time.Duration `mapstructure:"notification_timeout" validate:"required,gt=0"`
	NotificationRetries int           `mapstructure:"notification_retries" validate:"min=0"`
}

type NotificationConfig struct {
	PubSub         types.PubSubType          `mapstructure:"pubsub" validate:"required,oneof=memory kafka"`
	Topic          string                    `validate:"required"`
	DefaultChannel types.NotificationChannel `mapstructure:"default_channel" validate:"required,oneof=sms whatsapp email"`
}

type KafkaConfig struct {
	Brokers  []string
	ClientID string `mapstructure:"client_id"`
	TLS      bool
}

type TemporalConfig struct {
	Enabled   bool
	Address   string
	Namespace string
	APIKey    string `mapstructure:"api_key"`
	TLS       bool
	TaskQueue string `mapstructure:"task_queue"`
	// CronSchedule is the five field schedule of the sweep workflow
	CronSchedule string `mapstructure:"cron_schedule"`
}

type SentryConfig struct {
	Enabled     bool
	DSN         string
	Environment string
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type MetricsConfig struct {
	Enabled bool
	Address string
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	// Modify config paths to ensure config.yaml is found
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pricechange")

	// Set up environment variables support
	v.SetEnvPrefix("PRICECHANGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file if exists
	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", types.ModeLocal)
	v.SetDefault("logging.level", types.LogLevelInfo)

	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime_minutes", 60)
	v.SetDefault("postgres.migrations_path", "migrations")

	v.SetDefault("redis.address", "localhost:6379")

	v.SetDefault("price_change.approval_window", 7*24*time.Hour)
	v.SetDefault("price_change.max_apply_attempts", 3)
	v.SetDefault("price_change.sweep_schedule", "0 0 2 * * *")
	v.SetDefault("price_change.sweep_timeout", 10*time.Minute)
	v.SetDefault("price_change.sweep_concurrency", 8)
	v.SetDefault("price_change.sweep_lock_ttl", 15*time.Minute)
	v.SetDefault("price_change.notification_timeout", 5*time.Second)
	v.SetDefault("price_change.notification_retries", 2)

	v.SetDefault("notification.pubsub", types.MemoryPubSub)
	v.SetDefault("notification.topic", "price_change_notifications")
	v.SetDefault("notification.default_channel", types.NotificationChannelWhatsApp)

	v.SetDefault("kafka.client_id", "pricechange")

	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "price-change-sweep")
	v.SetDefault("temporal.cron_schedule", "0 2 * * *")

	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("metrics.address", ":9090")
}

func (c Configuration) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	if err := c.Deployment.Mode.Validate(); err != nil {
		return err
	}
	if c.Notification.PubSub == types.KafkaPubSub && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when notification.pubsub is kafka")
	}
	if c.Deployment.Mode == types.ModeTemporalWorker && !c.Temporal.Enabled {
		return fmt.Errorf("temporal.enabled must be true in %s mode", types.ModeTemporalWorker)
	}
	return nil
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts or other non-web applications
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		PriceChange: PriceChangeConfig{
			ApprovalWindow:      7 * 24 * time.Hour,
			MaxApplyAttempts:    3,
			SweepSchedule:       "0 0 2 * * *",
			SweepTimeout:        10 * time.Minute,
			SweepConcurrency:    8,
			SweepLockTTL:        15 * time.Minute,
			NotificationTimeout: 5 * time.Second,
			NotificationRetries: 2,
		},
		Notification: NotificationConfig{
			PubSub:         types.MemoryPubSub,
			Topic:          "price_change_notifications",
			DefaultChannel: types.NotificationChannelWhatsApp,
		},
		Temporal: TemporalConfig{
			Namespace:    "default",
			TaskQueue:    "price-change-sweep",
			CronSchedule: "0 2 * * *",
		},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}

// GetMigrationsURL returns the golang-migrate source url of the schema migrations
func (c PostgresConfig) GetMigrationsURL() string {
	if strings.Contains(c.MigrationsPath, "://") {
		return c.MigrationsPath
	}
	return "file://" + c.MigrationsPath
}

// GetDatabaseURL returns a postgres url usable by golang-migrate
func (c PostgresConfig) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.DBName,
		c.SSLMode,
	)
}
