package postgres

import (
	"context"

	"github.com/paylinks/pricechange/internal/domain/product"
	ierr "github.com/paylinks/pricechange/internal/errors"
	"github.com/paylinks/pricechange/internal/logger"
	"github.com/paylinks/pricechange/internal/postgres"
)

type productRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewProductRepository(db *postgres.DB, logger *logger.Logger) product.Repository {
	return &productRepository{db: db, logger: logger}
}

func (r *productRepository) Create(ctx context.Context, p *product.Product) error {
	query := `
		INSERT INTO products (
			id,
			name,
			description,
			base_amount,
			currency,
			status,
			created_at,
			updated_at,
			created_by,
			updated_by
		) VALUES (
			:id,
			:name,
			:description,
			:base_amount,
			:currency,
			:status,
			:created_at,
			:updated_at,
			:created_by,
			:updated_by
		)`

	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return ierr.FromDatabase(err, "Failed to create product", map[string]any{
			"product_id": p.ID,
		})
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, id string) (*product.Product, error) {
	span := StartRepositorySpan(ctx, "product", "get", map[string]interface{}{
		"product_id": id,
	})
	defer FinishSpan(span)

	var p product.Product
	query := `
		SELECT
			id, name, description, base_amount, currency, status,
			created_at, updated_at, created_by, updated_by
		FROM products
		WHERE id = $1`

	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		SetSpanError(span, err)
		return nil, ierr.FromDatabase(err, "Product not found", map[string]any{
			"product_id": id,
		})
	}

	SetSpanSuccess(span)
	return &p, nil
}
