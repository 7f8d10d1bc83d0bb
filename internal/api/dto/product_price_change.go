package dto

import (
	"context"
	"strings"
	"time"

	"github.com/paylinks/pricechange/internal/domain/pricechange"
	"github.com/paylinks/pricechange/internal/domain/product"
	"github.com/paylinks/pricechange/internal/domain/productpricechange"
	"github.com/paylinks/pricechange/internal/types"
	"github.com/paylinks/pricechange/internal/validator"
)

// CreateProductPriceChangeRequest proposes a new base amount for a product and
// every active subscription created from it
type CreateProductPriceChangeRequest struct {
	ProductID     string `json:"product_id" validate:"required"`
	NewBaseAmount int64  `json:"new_base_amount" validate:"gt=0"`
	Reason        string `json:"reason" validate:"required"`

	ChangeType      types.PriceChangeType `json:"change_type" validate:"required"`
	ApplicationType types.ApplicationType `json:"application_type" validate:"required"`
	ScheduledDate   *time.Time            `json:"scheduled_date,omitempty"`
	InternalNotes   *string               `json:"internal_notes,omitempty"`

	// RequiresApprovalForFixed asks fixed subscriptions for consent. Variable
	// subscriptions already accept amount changes and are never asked.
	RequiresApprovalForFixed bool `json:"requires_approval_for_fixed"`

	// AutoSuspendFixedUntilApproval holds billing of fixed subscriptions until they answer
	AutoSuspendFixedUntilApproval bool `json:"auto_suspend_fixed_until_approval"`
}

func (r *CreateProductPriceChangeRequest) Validate(now time.Time) error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return validateChangeTerms(r.NewBaseAmount, r.Reason, r.ChangeType, r.ApplicationType, r.ScheduledDate, now)
}

func (r *CreateProductPriceChangeRequest) ToProductPriceChange(
	ctx context.Context,
	p *product.Product,
	now time.Time,
) *productpricechange.ProductPriceChange {
	difference, percentage := pricechange.CalculateChange(p.BaseAmount, r.NewBaseAmount)
	return &productpricechange.ProductPriceChange{
		ID:                            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PRODUCT_PRICE_CHANGE),
		ProductID:                     p.ID,
		OldBaseAmount:                 p.BaseAmount,
		NewBaseAmount:                 r.NewBaseAmount,
		Difference:                    difference,
		PercentageChange:              percentage,
		ChangeType:                    r.ChangeType,
		Reason:                        strings.TrimSpace(r.Reason),
		InternalNotes:                 r.InternalNotes,
		ApplicationType:               r.ApplicationType,
		ScheduledDate:                 r.ScheduledDate,
		RequiresApprovalForFixed:      r.RequiresApprovalForFixed,
		AutoSuspendFixedUntilApproval: r.AutoSuspendFixedUntilApproval,
		BaseModel:                     types.GetDefaultBaseModel(ctx, now),
	}
}

// ToChildRequest builds the proposal for one subscription of the product
func (r *CreateProductPriceChangeRequest) ToChildRequest(
	parentID string,
	subscriptionID string,
	requiresApproval bool,
) CreatePriceChangeRequest {
	return CreatePriceChangeRequest{
		SubscriptionID:         subscriptionID,
		NewAmount:              r.NewBaseAmount,
		Reason:                 r.Reason,
		ChangeType:             r.ChangeType,
		ApplicationType:        r.ApplicationType,
		ScheduledDate:          r.ScheduledDate,
		RequiresClientApproval: requiresApproval,
		InternalNotes:          r.InternalNotes,
		ProductPriceChangeID:   &parentID,
	}
}

// SkipReason explains why a subscription got no child record
type SkipReason string

const (
	SkipReasonPendingPriceChange SkipReason = "pending_price_change"
	SkipReasonAmountUnchanged    SkipReason = "amount_unchanged"
	SkipReasonInvalidAmount      SkipReason = "invalid_amount"
)

type SkippedSubscription struct {
	SubscriptionID string     `json:"subscription_id"`
	Reason         SkipReason `json:"reason"`
}

// ProductPriceChangeResponse is the bulk change with its derived progress
type ProductPriceChangeResponse struct {
	*productpricechange.ProductPriceChange

	Progress productpricechange.Progress `json:"progress"`

	// Skipped is only populated by the call that performed the fan-out
	Skipped []SkippedSubscription `json:"skipped,omitempty"`
}

func NewProductPriceChangeResponse(change *productpricechange.ProductPriceChange) *ProductPriceChangeResponse {
	if change == nil {
		return nil
	}
	return &ProductPriceChangeResponse{
		ProductPriceChange: change,
		Progress:           change.Progress(),
	}
}

// ListProductPriceChangesResponse represents a paginated list of bulk changes
type ListProductPriceChangesResponse = types.ListResponse[*ProductPriceChangeResponse]
