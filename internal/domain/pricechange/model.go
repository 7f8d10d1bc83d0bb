package pricechange

import (
	"time"

	"github.com/paylinks/pricechange/internal/types"
	"github.com/shopspring/decimal"
)

// PriceChange is a proposal to change the recurring amount of exactly one subscription.
// Amounts and derived fields are fixed at creation; once the status is terminal the
// record is never written again.
type PriceChange struct {
	ID             string `db:"id" json:"id"`
	SubscriptionID string `db:"subscription_id" json:"subscription_id"`

	// ProductPriceChangeID is set when the record was fanned out from a bulk change
	ProductPriceChangeID *string `db:"product_price_change_id" json:"product_price_change_id,omitempty"`

	OldAmount        int64           `db:"old_amount" json:"old_amount"`
	NewAmount        int64           `db:"new_amount" json:"new_amount"`
	Difference       int64           `db:"difference" json:"difference"`
	PercentageChange decimal.Decimal `db:"percentage_change" json:"percentage_change"`

	ChangeType    types.PriceChangeType `db:"change_type" json:"change_type"`
	Reason        string                `db:"reason" json:"reason"`
	InternalNotes *string               `db:"internal_notes" json:"internal_notes,omitempty"`

	ApplicationType types.ApplicationType `db:"application_type" json:"application_type"`
	ScheduledDate   *time.Time            `db:"scheduled_date" json:"scheduled_date,omitempty"`

	PriceChangeStatus types.PriceChangeStatus `db:"price_change_status" json:"price_change_status"`

	RequiresClientApproval bool                       `db:"requires_client_approval" json:"requires_client_approval"`
	ClientApprovalStatus   types.ClientApprovalStatus `db:"client_approval_status" json:"client_approval_status"`
	ApprovalToken          *string                    `db:"approval_token" json:"-"`
	ClientApprovalDate     *time.Time                 `db:"client_approval_date" json:"client_approval_date,omitempty"`
	ApprovalMethod         *types.ApprovalMethod      `db:"approval_method" json:"approval_method,omitempty"`

	AppliedAt          *time.Time                `db:"applied_at" json:"applied_at,omitempty"`
	CancelledAt        *time.Time                `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason *types.CancellationReason `db:"cancellation_reason" json:"cancellation_reason,omitempty"`

	// ApplyAttempts counts failed application attempts across sweeps
	ApplyAttempts  int     `db:"apply_attempts" json:"apply_attempts"`
	LastApplyError *string `db:"last_apply_error" json:"last_apply_error,omitempty"`

	types.BaseModel
}

// CalculateChange derives the signed difference and the percentage change,
// rounded half away from zero to two decimals. oldAmount must be positive.
func CalculateChange(oldAmount, newAmount int64) (int64, decimal.Decimal) {
	difference := newAmount - oldAmount
	percentage := decimal.NewFromInt(difference).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(oldAmount)).
		Round(2)
	return difference, percentage
}

// IsPending reports whether the record can still transition
func (p *PriceChange) IsPending() bool {
	return p.PriceChangeStatus == types.PriceChangeStatusPending
}

// IsApprovalSatisfied reports whether the client side allows application
func (p *PriceChange) IsApprovalSatisfied() bool {
	switch p.ClientApprovalStatus {
	case types.ClientApprovalStatusNotRequired, types.ClientApprovalStatusApproved:
		return true
	case types.ClientApprovalStatusPending, types.ClientApprovalStatusRejected:
		return false
	default:
		return false
	}
}

// IsDateEligible reports whether the application type allows applying at now.
// next_cycle is eligible as soon as approval is satisfied; the billing path owns cycle timing.
func (p *PriceChange) IsDateEligible(now time.Time) bool {
	switch p.ApplicationType {
	case types.ApplicationTypeImmediate, types.ApplicationTypeNextCycle:
		return true
	case types.ApplicationTypeScheduled:
		return p.ScheduledDate != nil && !p.ScheduledDate.After(now)
	default:
		return false
	}
}

// IsEligible combines status, approval and date conditions
func (p *PriceChange) IsEligible(now time.Time) bool {
	return p.IsPending() && p.IsApprovalSatisfied() && p.IsDateEligible(now)
}

// IsAwaitingApproval reports whether the client still has to answer
func (p *PriceChange) IsAwaitingApproval() bool {
	return p.IsPending() && p.ClientApprovalStatus == types.ClientApprovalStatusPending
}

// ApprovalDeadline is the instant silence turns into consent, nil when no approval is involved
func (p *PriceChange) ApprovalDeadline(window time.Duration) *time.Time {
	if !p.RequiresClientApproval {
		return nil
	}
	deadline := p.CreatedAt.Add(window)
	return &deadline
}

// IsApprovalExpired reports whether now has reached the approval deadline while the client is still silent
func (p *PriceChange) IsApprovalExpired(now time.Time, window time.Duration) bool {
	if !p.IsAwaitingApproval() {
		return false
	}
	return !now.Before(p.CreatedAt.Add(window))
}

// IsBulkChild reports whether the record belongs to a product price change
func (p *PriceChange) IsBulkChild() bool {
	return p.ProductPriceChangeID != nil && *p.ProductPriceChangeID != ""
}
