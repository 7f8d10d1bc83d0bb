package repository

import (
	"github.com/paylinks/pricechange/internal/domain/notification"
	"github.com/paylinks/pricechange/internal/domain/pricechange"
	"github.com/paylinks/pricechange/internal/domain/product"
	"github.com/paylinks/pricechange/internal/domain/productpricechange"
	"github.com/paylinks/pricechange/internal/domain/subscription"
	"github.com/paylinks/pricechange/internal/logger"
	"github.com/paylinks/pricechange/internal/postgres"
	postgresRepo "github.com/paylinks/pricechange/internal/repository/postgres"
	"go.uber.org/fx"
)

type RepositoryType string

const (
	PostgresRepo RepositoryType = "postgres"
)

// Module provides every repository backed by postgres
func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			NewSubscriptionRepository,
			NewProductRepository,
			NewPriceChangeRepository,
			NewProductPriceChangeRepository,
			NewNotificationRepository,
		),
	)
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return postgresRepo.NewSubscriptionRepository(db, logger)
}

func NewProductRepository(db *postgres.DB, logger *logger.Logger) product.Repository {
	return postgresRepo.NewProductRepository(db, logger)
}

func NewPriceChangeRepository(db *postgres.DB, logger *logger.Logger) pricechange.Repository {
	return postgresRepo.NewPriceChangeRepository(db, logger)
}

func NewProductPriceChangeRepository(db *postgres.DB, logger *logger.Logger) productpricechange.Repository {
	return postgresRepo.NewProductPriceChangeRepository(db, logger)
}

func NewNotificationRepository(db *postgres.DB, logger *logger.Logger) notification.Repository {
	return postgresRepo.NewNotificationRepository(db, logger)
}
