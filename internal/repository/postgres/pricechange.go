package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/paylinks/pricechange/internal/domain/pricechange"
	ierr "github.com/paylinks/pricechange/internal/errors"
	"github.com/paylinks/pricechange/internal/logger"
	"github.com/paylinks/pricechange/internal/postgres"
	"github.com/paylinks/pricechange/internal/types"
	"github.com/samber/lo"
)

type priceChangeRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPriceChangeRepository(db *postgres.DB, logger *logger.Logger) pricechange.Repository {
	return &priceChangeRepository{db: db, logger: logger}
}

const priceChangeColumns = `
	id,
	subscription_id,
	product_price_change_id,
	old_amount,
	new_amount,
	difference,
	percentage_change,
	change_type,
	reason,
	internal_notes,
	application_type,
	scheduled_date,
	price_change_status,
	requires_client_approval,
	client_approval_status,
	approval_token,
	client_approval_date,
	approval_method,
	applied_at,
	cancelled_at,
	cancellation_reason,
	apply_attempts,
	last_apply_error,
	created_at,
	updated_at,
	created_by,
	updated_by`

var priceChangeSortColumns = []string{"created_at", "updated_at", "scheduled_date", "applied_at"}

func (r *priceChangeRepository) Create(ctx context.Context, pc *pricechange.PriceChange) error {
	span := StartRepositorySpan(ctx, "price_change", "create", map[string]interface{}{
		"price_change_id": pc.ID,
		"subscription_id": pc.SubscriptionID,
	})
	defer FinishSpan(span)

	query := `
		INSERT INTO price_changes (` + priceChangeColumns + `
		) VALUES (
			:id,
			:subscription_id,
			:product_price_change_id,
			:old_amount,
			:new_amount,
			:difference,
			:percentage_change,
			:change_type,
			:reason,
			:internal_notes,
			:application_type,
			:scheduled_date,
			:price_change_status,
			:requires_client_approval,
			:client_approval_status,
			:approval_token,
			:client_approval_date,
			:approval_method,
			:applied_at,
			:cancelled_at,
			:cancellation_reason,
			:apply_attempts,
			:last_apply_error,
			:created_at,
			:updated_at,
			:created_by,
			:updated_by
		)`

	if _, err := r.db.NamedExecContext(ctx, query, pc); err != nil {
		SetSpanError(span, err)
		if constraint, ok := ierr.UniqueViolation(err); ok && constraint == "uniq_price_changes_pending_subscription" {
			return ierr.WithError(err).
				WithHint("Subscription already has a pending price change").
				WithReportableDetails(map[string]any{
					"subscription_id": pc.SubscriptionID,
				}).
				Mark(ierr.ErrConflict)
		}
		return ierr.FromDatabase(err, "Failed to create price change", map[string]any{
			"price_change_id": pc.ID,
			"subscription_id": pc.SubscriptionID,
		})
	}

	SetSpanSuccess(span)
	return nil
}

func (r *priceChangeRepository) Get(ctx context.Context, id string) (*pricechange.PriceChange, error) {
	span := StartRepositorySpan(ctx, "price_change", "get", map[string]interface{}{
		"price_change_id": id,
	})
	defer FinishSpan(span)

	var pc pricechange.PriceChange
	query := `SELECT ` + priceChangeColumns + ` FROM price_changes WHERE id = $1`
	if err := r.db.GetContext(ctx, &pc, query, id); err != nil {
		SetSpanError(span, err)
		return nil, ierr.FromDatabase(err, "Price change not found", map[string]any{
			"price_change_id": id,
		})
	}

	SetSpanSuccess(span)
	return &pc, nil
}

func (r *priceChangeRepository) GetByApprovalToken(ctx context.Context, token string) (*pricechange.PriceChange, error) {
	var pc pricechange.PriceChange
	query := `SELECT ` + priceChangeColumns + ` FROM price_changes WHERE approval_token = $1`
	if err := r.db.GetContext(ctx, &pc, query, token); err != nil {
		return nil, ierr.FromDatabase(err, "Approval link is invalid or has already been used", nil)
	}
	return &pc, nil
}

func (r *priceChangeRepository) List(ctx context.Context, filter *types.PriceChangeFilter) ([]*pricechange.PriceChange, error) {
	span := StartRepositorySpan(ctx, "price_change", "list", nil)
	defer FinishSpan(span)

	if filter == nil {
		filter = types.NewPriceChangeFilter()
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}

	where := r.buildWhere(filter)
	query := `SELECT ` + priceChangeColumns + ` FROM price_changes` + where.sql()
	query += where.paginate(filter.QueryFilter, priceChangeSortColumns)

	var changes []*pricechange.PriceChange
	if err := r.db.SelectContext(ctx, &changes, query, where.args...); err != nil {
		SetSpanError(span, err)
		return nil, ierr.FromDatabase(err, "Failed to list price changes", nil)
	}

	SetSpanSuccess(span)
	return changes, nil
}

func (r *priceChangeRepository) Count(ctx context.Context, filter *types.PriceChangeFilter) (int, error) {
	if filter == nil {
		filter = types.NewPriceChangeFilter()
	}

	where := r.buildWhere(filter)
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM price_changes`+where.sql(), where.args...); err != nil {
		return 0, ierr.FromDatabase(err, "Failed to count price changes", nil)
	}
	return count, nil
}

func (r *priceChangeRepository) buildWhere(filter *types.PriceChangeFilter) *whereBuilder {
	where := &whereBuilder{}
	if filter.SubscriptionID != "" {
		where.add("subscription_id = ?", filter.SubscriptionID)
	}
	if filter.ProductPriceChangeID != "" {
		where.add("product_price_change_id = ?", filter.ProductPriceChangeID)
	}
	if len(filter.Status) > 0 {
		where.add("price_change_status = ANY(?)", pq.Array(lo.Map(filter.Status, func(s types.PriceChangeStatus, _ int) string {
			return string(s)
		})))
	}
	if len(filter.ClientApprovalStatus) > 0 {
		where.add("client_approval_status = ANY(?)", pq.Array(lo.Map(filter.ClientApprovalStatus, func(s types.ClientApprovalStatus, _ int) string {
			return string(s)
		})))
	}
	if filter.TimeRangeFilter != nil {
		if filter.StartTime != nil {
			where.add("created_at >= ?", *filter.StartTime)
		}
		if filter.EndTime != nil {
			where.add("created_at < ?", *filter.EndTime)
		}
	}
	return where
}

func (r *priceChangeRepository) ListEligibleForApplication(ctx context.Context, now time.Time) ([]*pricechange.PriceChange, error) {
	span := StartRepositorySpan(ctx, "price_change", "list_eligible", nil)
	defer FinishSpan(span)

	query := `
		SELECT ` + priceChangeColumns + `
		FROM price_changes
		WHERE
			price_change_status = $1 AND
			client_approval_status = ANY($2) AND
			(
				application_type = ANY($3) OR
				(application_type = $4 AND scheduled_date <= $5)
			)
		ORDER BY created_at ASC, id ASC`

	args := []interface{}{
		types.PriceChangeStatusPending,
		pq.Array([]string{
			string(types.ClientApprovalStatusNotRequired),
			string(types.ClientApprovalStatusApproved),
		}),
		pq.Array([]string{
			string(types.ApplicationTypeImmediate),
			string(types.ApplicationTypeNextCycle),
		}),
		types.ApplicationTypeScheduled,
		now,
	}

	var changes []*pricechange.PriceChange
	if err := r.db.SelectContext(ctx, &changes, query, args...); err != nil {
		SetSpanError(span, err)
		return nil, ierr.FromDatabase(err, "Failed to list eligible price changes", nil)
	}

	SetSpanSuccess(span)
	return changes, nil
}

func (r *priceChangeRepository) ListExpiredApprovals(ctx context.Context, cutoff time.Time) ([]*pricechange.PriceChange, error) {
	span := StartRepositorySpan(ctx, "price_change", "list_expired_approvals", nil)
	defer FinishSpan(span)

	query := `
		SELECT ` + priceChangeColumns + `
		FROM price_changes
		WHERE
			price_change_status = $1 AND
			client_approval_status = $2 AND
			created_at <= $3
		ORDER BY created_at ASC, id ASC`

	var changes []*pricechange.PriceChange
	err := r.db.SelectContext(ctx, &changes, query,
		types.PriceChangeStatusPending,
		types.ClientApprovalStatusPending,
		cutoff,
	)
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.FromDatabase(err, "Failed to list expired approvals", nil)
	}

	SetSpanSuccess(span)
	return changes, nil
}

func (r *priceChangeRepository) ResolveApproval(
	ctx context.Context,
	id string,
	decision types.ClientApprovalStatus,
	method types.ApprovalMethod,
	at time.Time,
) error {
	span := StartRepositorySpan(ctx, "price_change", "resolve_approval", map[string]interface{}{
		"price_change_id": id,
		"decision":        decision,
	})
	defer FinishSpan(span)

	var (
		query string
		args  []interface{}
	)
	switch decision {
	case types.ClientApprovalStatusApproved:
		query = `
			UPDATE price_changes
			SET
				client_approval_status = $2,
				client_approval_date = $3,
				approval_method = $4,
				updated_at = $3,
				updated_by = $5
			WHERE
				id = $1 AND
				price_change_status = 'pending' AND
				client_approval_status = 'pending'`
		args = []interface{}{id, decision, at, method, types.GetUserID(ctx)}
	case types.ClientApprovalStatusRejected:
		query = `
			UPDATE price_changes
			SET
				client_approval_status = $2,
				client_approval_date = $3,
				approval_method = $4,
				price_change_status = 'cancelled',
				cancelled_at = $3,
				cancellation_reason = $6,
				updated_at = $3,
				updated_by = $5
			WHERE
				id = $1 AND
				price_change_status = 'pending' AND
				client_approval_status = 'pending'`
		args = []interface{}{id, decision, at, method, types.GetUserID(ctx), types.CancellationReasonClientRejected}
	case types.ClientApprovalStatusPending, types.ClientApprovalStatusNotRequired:
		return ierr.NewError("approval can only resolve to approved or rejected").
			WithHint("Decision must be approved or rejected").
			WithReportableDetails(map[string]any{
				"decision": decision,
			}).
			Mark(ierr.ErrValidation)
	default:
		return ierr.NewError("unknown approval decision").
			WithHint("Decision must be approved or rejected").
			WithReportableDetails(map[string]any{
				"decision": decision,
			}).
			Mark(ierr.ErrValidation)
	}

	if err := r.conditionalUpdate(ctx, "Approval has already been resolved", id, query, args...); err != nil {
		SetSpanError(span, err)
		return err
	}

	SetSpanSuccess(span)
	return nil
}

func (r *priceChangeRepository) MarkApplied(ctx context.Context, id string, at time.Time) error {
	span := StartRepositorySpan(ctx, "price_change", "mark_applied", map[string]interface{}{
		"price_change_id": id,
	})
	defer FinishSpan(span)

	query := `
		UPDATE price_changes
		SET
			price_change_status = 'applied',
			applied_at = $2,
			updated_at = $2,
			updated_by = $3
		WHERE
			id = $1 AND
			price_change_status = 'pending' AND
			client_approval_status IN ('not_required', 'approved')`

	if err := r.conditionalUpdate(ctx, "Price change is no longer eligible to apply", id, query, id, at, types.GetUserID(ctx)); err != nil {
		SetSpanError(span, err)
		return err
	}

	SetSpanSuccess(span)
	return nil
}

func (r *priceChangeRepository) MarkCancelled(ctx context.Context, id string, reason types.CancellationReason, at time.Time) error {
	span := StartRepositorySpan(ctx, "price_change", "mark_cancelled", map[string]interface{}{
		"price_change_id": id,
		"reason":          reason,
	})
	defer FinishSpan(span)

	query := `
		UPDATE price_changes
		SET
			price_change_status = 'cancelled',
			cancelled_at = $2,
			cancellation_reason = $3,
			updated_at = $2,
			updated_by = $4
		WHERE
			id = $1 AND
			price_change_status = 'pending'`

	if err := r.conditionalUpdate(ctx, "Price change is no longer pending", id, query, id, at, reason, types.GetUserID(ctx)); err != nil {
		SetSpanError(span, err)
		return err
	}

	SetSpanSuccess(span)
	return nil
}

func (r *priceChangeRepository) RecordApplyFailure(ctx context.Context, id string, applyErr string, at time.Time) (int, error) {
	query := `
		UPDATE price_changes
		SET
			apply_attempts = apply_attempts + 1,
			last_apply_error = $2,
			updated_at = $3
		WHERE
			id = $1 AND
			price_change_status = 'pending'
		RETURNING apply_attempts`

	var attempts int
	if err := r.db.GetContext(ctx, &attempts, query, id, applyErr, at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ierr.WithError(err).
				WithHint("Price change is no longer pending").
				WithReportableDetails(map[string]any{
					"price_change_id": id,
				}).
				Mark(ierr.ErrConflict)
		}
		return 0, ierr.FromDatabase(err, "Failed to record apply failure", map[string]any{
			"price_change_id": id,
		})
	}
	return attempts, nil
}

func (r *priceChangeRepository) conditionalUpdate(
	ctx context.Context,
	conflictHint string,
	id string,
	query string,
	args ...interface{},
) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return ierr.FromDatabase(err, "Failed to update price change", map[string]any{
			"price_change_id": id,
		})
	}

	matched, err := matchedRows(result)
	if err != nil {
		return ierr.FromDatabase(err, "Failed to update price change", map[string]any{
			"price_change_id": id,
		})
	}
	if !matched {
		r.logger.WithContext(ctx).Debugw("conditional price change update matched no rows", "price_change_id", id)
		return ierr.NewError("price change precondition no longer holds").
			WithHint(conflictHint).
			WithReportableDetails(map[string]any{
				"price_change_id": id,
			}).
			Mark(ierr.ErrConflict)
	}
	return nil
}
