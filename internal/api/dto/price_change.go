package dto

import (
	"context"
	"strings"
	"time"

	"github.com/paylinks/pricechange/internal/domain/pricechange"
	ierr "github.com/paylinks/pricechange/internal/errors"
	"github.com/paylinks/pricechange/internal/types"
	"github.com/paylinks/pricechange/internal/validator"
	"github.com/shopspring/decimal"
)

// CreatePriceChangeRequest proposes a new amount for one subscription
type CreatePriceChangeRequest struct {
	SubscriptionID string `json:"subscription_id" validate:"required"`

	// NewAmount is the proposed recurring amount in minor currency units
	NewAmount int64 `json:"new_amount" validate:"gt=0"`

	// Reason is shown to the client
	Reason string `json:"reason" validate:"required"`

	ChangeType      types.PriceChangeType `json:"change_type" validate:"required"`
	ApplicationType types.ApplicationType `json:"application_type" validate:"required"`

	// ScheduledDate is required when ApplicationType is scheduled and must be in the future
	ScheduledDate *time.Time `json:"scheduled_date,omitempty"`

	RequiresClientApproval bool `json:"requires_client_approval"`

	// InternalNotes are never shown to the client
	InternalNotes *string `json:"internal_notes,omitempty"`

	// ProductPriceChangeID is set by the bulk fan-out only
	ProductPriceChangeID *string `json:"-"`
}

func (r *CreatePriceChangeRequest) Validate(now time.Time) error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return validateChangeTerms(r.NewAmount, r.Reason, r.ChangeType, r.ApplicationType, r.ScheduledDate, now)
}

// validateChangeTerms holds the rules shared by single and bulk proposals
func validateChangeTerms(
	newAmount int64,
	reason string,
	changeType types.PriceChangeType,
	applicationType types.ApplicationType,
	scheduledDate *time.Time,
	now time.Time,
) error {
	if newAmount <= 0 {
		return ierr.NewError("new amount must be positive").
			WithHint("New amount must be greater than zero").
			WithReportableDetails(map[string]any{
				"new_amount": newAmount,
			}).
			Mark(ierr.ErrValidation)
	}

	if strings.TrimSpace(reason) == "" {
		return ierr.NewError("reason is required").
			WithHint("Please explain the price change to the client").
			Mark(ierr.ErrValidation)
	}

	if err := changeType.Validate(); err != nil {
		return err
	}

	if err := applicationType.Validate(); err != nil {
		return err
	}

	switch applicationType {
	case types.ApplicationTypeScheduled:
		if scheduledDate == nil {
			return ierr.NewError("scheduled_date is required for scheduled changes").
				WithHint("Please provide the date the change takes effect").
				Mark(ierr.ErrValidation)
		}
		if !scheduledDate.After(now) {
			return ierr.NewError("scheduled_date must be in the future").
				WithHint("Scheduled date must be after the current time").
				WithReportableDetails(map[string]any{
					"scheduled_date": scheduledDate,
					"now":            now,
				}).
				Mark(ierr.ErrValidation)
		}
	case types.ApplicationTypeImmediate, types.ApplicationTypeNextCycle:
		if scheduledDate != nil {
			return ierr.NewError("scheduled_date is only allowed for scheduled changes").
				WithHint("Remove scheduled_date or use the scheduled application type").
				WithReportableDetails(map[string]any{
					"application_type": applicationType,
				}).
				Mark(ierr.ErrValidation)
		}
	}

	return nil
}

// ToPriceChange builds the pending record. Derived fields are computed from currentAmount once and never again.
func (r *CreatePriceChangeRequest) ToPriceChange(
	ctx context.Context,
	currentAmount int64,
	approvalToken *string,
	now time.Time,
) *pricechange.PriceChange {
	difference, percentage := pricechange.CalculateChange(currentAmount, r.NewAmount)

	approvalStatus := types.ClientApprovalStatusNotRequired
	if r.RequiresClientApproval {
		approvalStatus = types.ClientApprovalStatusPending
	}

	return &pricechange.PriceChange{
		ID:                     types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PRICE_CHANGE),
		SubscriptionID:         r.SubscriptionID,
		ProductPriceChangeID:   r.ProductPriceChangeID,
		OldAmount:              currentAmount,
		NewAmount:              r.NewAmount,
		Difference:             difference,
		PercentageChange:       percentage,
		ChangeType:             r.ChangeType,
		Reason:                 strings.TrimSpace(r.Reason),
		InternalNotes:          r.InternalNotes,
		ApplicationType:        r.ApplicationType,
		ScheduledDate:          r.ScheduledDate,
		PriceChangeStatus:      types.PriceChangeStatusPending,
		RequiresClientApproval: r.RequiresClientApproval,
		ClientApprovalStatus:   approvalStatus,
		ApprovalToken:          approvalToken,
		BaseModel:              types.GetDefaultBaseModel(ctx, now),
	}
}

// PriceChangeResponse is the merchant facing view of a price change
type PriceChangeResponse struct {
	*pricechange.PriceChange

	// ApprovalToken is only returned when the change is proposed, for handing to the notifier
	ApprovalToken *string `json:"approval_token,omitempty"`

	// ApprovalDeadline is when silence turns into consent
	ApprovalDeadline *time.Time `json:"approval_deadline,omitempty"`
}

func NewPriceChangeResponse(pc *pricechange.PriceChange, approvalWindow time.Duration) *PriceChangeResponse {
	if pc == nil {
		return nil
	}
	resp := &PriceChangeResponse{PriceChange: pc}
	if pc.IsAwaitingApproval() {
		resp.ApprovalDeadline = pc.ApprovalDeadline(approvalWindow)
	}
	return resp
}

// ListPriceChangesResponse represents a paginated list of price changes
type ListPriceChangesResponse = types.ListResponse[*PriceChangeResponse]

// ResolveApprovalRequest carries the client's answer to an approval link
type ResolveApprovalRequest struct {
	Token    string                 `json:"token" validate:"required"`
	Decision types.ApprovalDecision `json:"decision" validate:"required"`
}

func (r *ResolveApprovalRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.Decision.Validate()
}

// ApprovalDetailsResponse is what the client sees behind an approval link.
// Internal notes are deliberately absent.
type ApprovalDetailsResponse struct {
	PriceChangeID    string                `json:"price_change_id"`
	SubscriptionID   string                `json:"subscription_id"`
	CustomerName     string                `json:"customer_name"`
	Currency         string                `json:"currency"`
	OldAmount        int64                 `json:"old_amount"`
	NewAmount        int64                 `json:"new_amount"`
	Difference       int64                 `json:"difference"`
	PercentageChange decimal.Decimal       `json:"percentage_change"`
	ChangeType       types.PriceChangeType `json:"change_type"`
	Reason           string                `json:"reason"`
	ApplicationType  types.ApplicationType `json:"application_type"`
	ScheduledDate    *time.Time            `json:"scheduled_date,omitempty"`
	ApprovalDeadline time.Time             `json:"approval_deadline"`
	ProposedAt       time.Time             `json:"proposed_at"`
}
