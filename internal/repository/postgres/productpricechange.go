package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/paylinks/pricechange/internal/domain/productpricechange"
	ierr "github.com/paylinks/pricechange/internal/errors"
	"github.com/paylinks/pricechange/internal/logger"
	"github.com/paylinks/pricechange/internal/postgres"
	"github.com/paylinks/pricechange/internal/types"
)

type productPriceChangeRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewProductPriceChangeRepository(db *postgres.DB, logger *logger.Logger) productpricechange.Repository {
	return &productPriceChangeRepository{db: db, logger: logger}
}

const productPriceChangeColumns = `
	id,
	product_id,
	old_base_amount,
	new_base_amount,
	difference,
	percentage_change,
	change_type,
	reason,
	internal_notes,
	application_type,
	scheduled_date,
	requires_approval_for_fixed,
	auto_suspend_fixed_until_approval,
	total_subscriptions_affected,
	subscriptions_applied,
	subscriptions_pending_approval,
	subscriptions_failed,
	subscriptions_skipped,
	created_at,
	updated_at,
	created_by,
	updated_by`

func (r *productPriceChangeRepository) Create(ctx context.Context, ppc *productpricechange.ProductPriceChange) error {
	span := StartRepositorySpan(ctx, "product_price_change", "create", map[string]interface{}{
		"product_price_change_id": ppc.ID,
		"product_id":              ppc.ProductID,
	})
	defer FinishSpan(span)

	query := `
		INSERT INTO product_price_changes (` + productPriceChangeColumns + `
		) VALUES (
			:id,
			:product_id,
			:old_base_amount,
			:new_base_amount,
			:difference,
			:percentage_change,
			:change_type,
			:reason,
			:internal_notes,
			:application_type,
			:scheduled_date,
			:requires_approval_for_fixed,
			:auto_suspend_fixed_until_approval,
			:total_subscriptions_affected,
			:subscriptions_applied,
			:subscriptions_pending_approval,
			:subscriptions_failed,
			:subscriptions_skipped,
			:created_at,
			:updated_at,
			:created_by,
			:updated_by
		)`

	if _, err := r.db.NamedExecContext(ctx, query, ppc); err != nil {
		SetSpanError(span, err)
		return ierr.FromDatabase(err, "Failed to create product price change", map[string]any{
			"product_price_change_id": ppc.ID,
			"product_id":              ppc.ProductID,
		})
	}

	SetSpanSuccess(span)
	return nil
}

func (r *productPriceChangeRepository) Get(ctx context.Context, id string) (*productpricechange.ProductPriceChange, error) {
	var ppc productpricechange.ProductPriceChange
	query := `SELECT ` + productPriceChangeColumns + ` FROM product_price_changes WHERE id = $1`
	if err := r.db.GetContext(ctx, &ppc, query, id); err != nil {
		return nil, ierr.FromDatabase(err, "Product price change not found", map[string]any{
			"product_price_change_id": id,
		})
	}
	return &ppc, nil
}

func (r *productPriceChangeRepository) List(ctx context.Context, filter *types.ProductPriceChangeFilter) ([]*productpricechange.ProductPriceChange, error) {
	if filter == nil {
		filter = types.NewProductPriceChangeFilter()
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}

	where := r.buildWhere(filter)
	query := `SELECT ` + productPriceChangeColumns + ` FROM product_price_changes` + where.sql()
	query += where.paginate(filter.QueryFilter, []string{"created_at", "updated_at"})

	var changes []*productpricechange.ProductPriceChange
	if err := r.db.SelectContext(ctx, &changes, query, where.args...); err != nil {
		return nil, ierr.FromDatabase(err, "Failed to list product price changes", nil)
	}
	return changes, nil
}

func (r *productPriceChangeRepository) Count(ctx context.Context, filter *types.ProductPriceChangeFilter) (int, error) {
	if filter == nil {
		filter = types.NewProductPriceChangeFilter()
	}

	where := r.buildWhere(filter)
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM product_price_changes`+where.sql(), where.args...); err != nil {
		return 0, ierr.FromDatabase(err, "Failed to count product price changes", nil)
	}
	return count, nil
}

func (r *productPriceChangeRepository) buildWhere(filter *types.ProductPriceChangeFilter) *whereBuilder {
	where := &whereBuilder{}
	if filter.ProductID != "" {
		where.add("product_id = ?", filter.ProductID)
	}
	return where
}

func (r *productPriceChangeRepository) SetTotals(ctx context.Context, id string, total, pendingApproval, skipped int, at time.Time) error {
	query := `
		UPDATE product_price_changes
		SET
			total_subscriptions_affected = $2,
			subscriptions_pending_approval = $3,
			subscriptions_skipped = $4,
			updated_at = $5
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, total, pendingApproval, skipped, at)
	if err != nil {
		return ierr.FromDatabase(err, "Failed to record product price change totals", map[string]any{
			"product_price_change_id": id,
		})
	}
	return r.expectMatch(result, id, ierr.ErrNotFound, "Product price change not found")
}

func (r *productPriceChangeRepository) IncrementApplied(ctx context.Context, id string) error {
	query := `
		UPDATE product_price_changes
		SET
			subscriptions_applied = subscriptions_applied + 1,
			updated_at = NOW()
		WHERE
			id = $1 AND
			subscriptions_applied + subscriptions_failed < total_subscriptions_affected`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return ierr.FromDatabase(err, "Failed to update product price change progress", map[string]any{
			"product_price_change_id": id,
		})
	}
	return r.expectMatch(result, id, ierr.ErrConflict, "Product price change progress is already complete")
}

func (r *productPriceChangeRepository) IncrementFailed(ctx context.Context, id string) error {
	query := `
		UPDATE product_price_changes
		SET
			subscriptions_failed = subscriptions_failed + 1,
			updated_at = NOW()
		WHERE
			id = $1 AND
			subscriptions_applied + subscriptions_failed < total_subscriptions_affected`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return ierr.FromDatabase(err, "Failed to update product price change progress", map[string]any{
			"product_price_change_id": id,
		})
	}
	return r.expectMatch(result, id, ierr.ErrConflict, "Product price change progress is already complete")
}

func (r *productPriceChangeRepository) DecrementPendingApproval(ctx context.Context, id string) error {
	query := `
		UPDATE product_price_changes
		SET
			subscriptions_pending_approval = subscriptions_pending_approval - 1,
			updated_at = NOW()
		WHERE
			id = $1 AND
			subscriptions_pending_approval > 0`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return ierr.FromDatabase(err, "Failed to update product price change progress", map[string]any{
			"product_price_change_id": id,
		})
	}
	return r.expectMatch(result, id, ierr.ErrConflict, "No approvals are pending on this product price change")
}

func (r *productPriceChangeRepository) expectMatch(result sql.Result, id string, sentinel error, hint string) error {
	matched, err := matchedRows(result)
	if err != nil {
		return ierr.FromDatabase(err, "Failed to update product price change", map[string]any{
			"product_price_change_id": id,
		})
	}
	if !matched {
		return ierr.NewError("product price change update matched no rows").
			WithHint(hint).
			WithReportableDetails(map[string]any{
				"product_price_change_id": id,
			}).
			Mark(sentinel)
	}
	return nil
}
