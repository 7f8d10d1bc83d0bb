package postgres

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/paylinks/pricechange/internal/domain/subscription"
	ierr "github.com/paylinks/pricechange/internal/errors"
	"github.com/paylinks/pricechange/internal/logger"
	"github.com/paylinks/pricechange/internal/postgres"
	"github.com/paylinks/pricechange/internal/types"
	"github.com/samber/lo"
)

type subscriptionRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return &subscriptionRepository{db: db, logger: logger}
}

const subscriptionColumns = `
	id,
	product_id,
	customer_id,
	customer_name,
	customer_phone,
	customer_email,
	amount,
	currency,
	subscription_type,
	subscription_status,
	pending_price_change_id,
	last_price_change_date,
	price_change_history_count,
	billing_suspended,
	next_charge_date,
	created_at,
	updated_at,
	created_by,
	updated_by`

var subscriptionSortColumns = []string{"created_at", "updated_at", "amount", "last_price_change_date"}

func (r *subscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	span := StartRepositorySpan(ctx, "subscription", "create", map[string]interface{}{
		"subscription_id": sub.ID,
	})
	defer FinishSpan(span)

	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `
		) VALUES (
			:id,
			:product_id,
			:customer_id,
			:customer_name,
			:customer_phone,
			:customer_email,
			:amount,
			:currency,
			:subscription_type,
			:subscription_status,
			:pending_price_change_id,
			:last_price_change_date,
			:price_change_history_count,
			:billing_suspended,
			:next_charge_date,
			:created_at,
			:updated_at,
			:created_by,
			:updated_by
		)`

	if _, err := r.db.NamedExecContext(ctx, query, sub); err != nil {
		SetSpanError(span, err)
		return ierr.FromDatabase(err, "Failed to create subscription", map[string]any{
			"subscription_id": sub.ID,
		})
	}

	SetSpanSuccess(span)
	return nil
}

func (r *subscriptionRepository) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	span := StartRepositorySpan(ctx, "subscription", "get", map[string]interface{}{
		"subscription_id": id,
	})
	defer FinishSpan(span)

	var sub subscription.Subscription
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	if err := r.db.GetContext(ctx, &sub, query, id); err != nil {
		SetSpanError(span, err)
		return nil, ierr.FromDatabase(err, "Subscription not found", map[string]any{
			"subscription_id": id,
		})
	}

	SetSpanSuccess(span)
	return &sub, nil
}

func (r *subscriptionRepository) List(ctx context.Context, filter *types.SubscriptionFilter) ([]*subscription.Subscription, error) {
	span := StartRepositorySpan(ctx, "subscription", "list", nil)
	defer FinishSpan(span)

	if filter == nil {
		filter = types.NewSubscriptionFilter()
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewNoLimitQueryFilter()
	}

	where := r.buildWhere(filter)
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions` + where.sql()
	query += where.paginate(filter.QueryFilter, subscriptionSortColumns)

	var subs []*subscription.Subscription
	if err := r.db.SelectContext(ctx, &subs, query, where.args...); err != nil {
		SetSpanError(span, err)
		return nil, ierr.FromDatabase(err, "Failed to list subscriptions", nil)
	}

	SetSpanSuccess(span)
	return subs, nil
}

func (r *subscriptionRepository) Count(ctx context.Context, filter *types.SubscriptionFilter) (int, error) {
	if filter == nil {
		filter = types.NewSubscriptionFilter()
	}

	where := r.buildWhere(filter)
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM subscriptions`+where.sql(), where.args...); err != nil {
		return 0, ierr.FromDatabase(err, "Failed to count subscriptions", nil)
	}
	return count, nil
}

func (r *subscriptionRepository) buildWhere(filter *types.SubscriptionFilter) *whereBuilder {
	where := &whereBuilder{}
	if filter.ProductID != "" {
		where.add("product_id = ?", filter.ProductID)
	}
	if filter.CustomerID != "" {
		where.add("customer_id = ?", filter.CustomerID)
	}
	if len(filter.SubscriptionStatus) > 0 {
		where.add("subscription_status = ANY(?)", pq.Array(lo.Map(filter.SubscriptionStatus, func(s types.SubscriptionStatus, _ int) string {
			return string(s)
		})))
	}
	if len(filter.SubscriptionType) > 0 {
		where.add("subscription_type = ANY(?)", pq.Array(lo.Map(filter.SubscriptionType, func(t types.SubscriptionType, _ int) string {
			return string(t)
		})))
	}
	return where
}

func (r *subscriptionRepository) AttachPendingPriceChange(ctx context.Context, id, priceChangeID string, at time.Time) error {
	span := StartRepositorySpan(ctx, "subscription", "attach_pending_price_change", map[string]interface{}{
		"subscription_id": id,
		"price_change_id": priceChangeID,
	})
	defer FinishSpan(span)

	query := `
		UPDATE subscriptions
		SET
			pending_price_change_id = $2,
			updated_at = $3,
			updated_by = $4
		WHERE
			id = $1 AND
			pending_price_change_id IS NULL`

	result, err := r.db.ExecContext(ctx, query, id, priceChangeID, at, types.GetUserID(ctx))
	if err != nil {
		SetSpanError(span, err)
		return ierr.FromDatabase(err, "Failed to attach price change to subscription", map[string]any{
			"subscription_id": id,
			"price_change_id": priceChangeID,
		})
	}

	matched, err := matchedRows(result)
	if err != nil {
		SetSpanError(span, err)
		return ierr.FromDatabase(err, "Failed to attach price change to subscription", nil)
	}
	if !matched {
		return ierr.NewError("subscription already has a pending price change").
			WithHint("Subscription already has a pending price change").
			WithReportableDetails(map[string]any{
				"subscription_id": id,
			}).
			Mark(ierr.ErrConflict)
	}

	SetSpanSuccess(span)
	return nil
}

func (r *subscriptionRepository) ClearPendingPriceChange(ctx context.Context, id, priceChangeID string, at time.Time) error {
	query := `
		UPDATE subscriptions
		SET
			pending_price_change_id = NULL,
			billing_suspended = FALSE,
			updated_at = $3,
			updated_by = $4
		WHERE
			id = $1 AND
			pending_price_change_id = $2`

	if _, err := r.db.ExecContext(ctx, query, id, priceChangeID, at, types.GetUserID(ctx)); err != nil {
		return ierr.FromDatabase(err, "Failed to clear pending price change", map[string]any{
			"subscription_id": id,
			"price_change_id": priceChangeID,
		})
	}
	return nil
}

func (r *subscriptionRepository) ApplyPriceChange(ctx context.Context, id, priceChangeID string, newAmount int64, at time.Time) error {
	span := StartRepositorySpan(ctx, "subscription", "apply_price_change", map[string]interface{}{
		"subscription_id": id,
		"price_change_id": priceChangeID,
	})
	defer FinishSpan(span)

	query := `
		UPDATE subscriptions
		SET
			amount = $3,
			last_price_change_date = $4,
			price_change_history_count = price_change_history_count + 1,
			pending_price_change_id = NULL,
			billing_suspended = FALSE,
			updated_at = $4,
			updated_by = $5
		WHERE
			id = $1 AND
			pending_price_change_id = $2`

	result, err := r.db.ExecContext(ctx, query, id, priceChangeID, newAmount, at, types.GetUserID(ctx))
	if err != nil {
		SetSpanError(span, err)
		return ierr.FromDatabase(err, "Failed to apply price change to subscription", map[string]any{
			"subscription_id": id,
			"price_change_id": priceChangeID,
		})
	}

	matched, err := matchedRows(result)
	if err != nil {
		SetSpanError(span, err)
		return ierr.FromDatabase(err, "Failed to apply price change to subscription", nil)
	}
	if !matched {
		return ierr.NewError("subscription is not waiting for this price change").
			WithHint("Subscription is no longer waiting for this price change").
			WithReportableDetails(map[string]any{
				"subscription_id": id,
				"price_change_id": priceChangeID,
			}).
			Mark(ierr.ErrConflict)
	}

	SetSpanSuccess(span)
	return nil
}

func (r *subscriptionRepository) SetBillingSuspended(ctx context.Context, id string, suspended bool, at time.Time) error {
	query := `
		UPDATE subscriptions
		SET
			billing_suspended = $2,
			updated_at = $3,
			updated_by = $4
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, suspended, at, types.GetUserID(ctx))
	if err != nil {
		return ierr.FromDatabase(err, "Failed to update billing suspension", map[string]any{
			"subscription_id": id,
		})
	}
	matched, err := matchedRows(result)
	if err != nil {
		return ierr.FromDatabase(err, "Failed to update billing suspension", nil)
	}
	if !matched {
		return ierr.NewError("subscription not found").
			WithHintf("Subscription %s was not found", id).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

