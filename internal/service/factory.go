package service

import (
	"github.com/paylinks/pricechange/internal/config"
	"github.com/paylinks/pricechange/internal/domain/notification"
	"github.com/paylinks/pricechange/internal/domain/pricechange"
	"github.com/paylinks/pricechange/internal/domain/product"
	"github.com/paylinks/pricechange/internal/domain/productpricechange"
	"github.com/paylinks/pricechange/internal/domain/subscription"
	"github.com/paylinks/pricechange/internal/logger"
	"github.com/paylinks/pricechange/internal/metrics"
	"github.com/paylinks/pricechange/internal/postgres"
	"github.com/paylinks/pricechange/internal/pubsub"
	"github.com/paylinks/pricechange/internal/sentry"
	"github.com/paylinks/pricechange/internal/types"
	"go.uber.org/fx"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient
	Clock  types.Clock

	// Repositories
	SubRepo                subscription.Repository
	ProductRepo            product.Repository
	PriceChangeRepo        pricechange.Repository
	ProductPriceChangeRepo productpricechange.Repository
	NotificationRepo       notification.Repository

	// Publishers
	NotificationPublisher pubsub.Publisher

	Sentry  *sentry.Service
	Metrics *metrics.Metrics
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	clock types.Clock,
	subRepo subscription.Repository,
	productRepo product.Repository,
	priceChangeRepo pricechange.Repository,
	productPriceChangeRepo productpricechange.Repository,
	notificationRepo notification.Repository,
	notificationPublisher pubsub.Publisher,
	sentryService *sentry.Service,
	metrics *metrics.Metrics,
) ServiceParams {
	return ServiceParams{
		Logger:                 logger,
		Config:                 config,
		DB:                     db,
		Clock:                  clock,
		SubRepo:                subRepo,
		ProductRepo:            productRepo,
		PriceChangeRepo:        priceChangeRepo,
		ProductPriceChangeRepo: productPriceChangeRepo,
		NotificationRepo:       notificationRepo,
		NotificationPublisher:  notificationPublisher,
		Sentry:                 sentryService,
		Metrics:                metrics,
	}
}

// Module provides the service params and every service of the engine
func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			types.NewSystemClock,
			NewServiceParams,
			NewApprovalTokenService,
			NewNotificationService,
			NewPriceChangeService,
			NewPriceChangeSchedulerService,
			NewProductPriceChangeService,
		),
	)
}
