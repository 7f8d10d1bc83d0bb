package types

import (
	ierr "github.com/paylinks/pricechange/internal/errors"
	"github.com/samber/lo"
)

// PriceChangeStatus is the lifecycle state of a price change record.
// applied and cancelled are terminal; a record in either state is never written again.
type PriceChangeStatus string

const (
	PriceChangeStatusPending   PriceChangeStatus = "pending"
	PriceChangeStatusApplied   PriceChangeStatus = "applied"
	PriceChangeStatusCancelled PriceChangeStatus = "cancelled"
)

func (s PriceChangeStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is allowed out of s
func (s PriceChangeStatus) IsTerminal() bool {
	switch s {
	case PriceChangeStatusApplied, PriceChangeStatusCancelled:
		return true
	case PriceChangeStatusPending:
		return false
	default:
		return false
	}
}

func (s PriceChangeStatus) Validate() error {
	allowed := []PriceChangeStatus{
		PriceChangeStatusPending,
		PriceChangeStatusApplied,
		PriceChangeStatusCancelled,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid price change status").
			WithHint("Invalid price change status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ClientApprovalStatus tracks the customer's consent for a price change
type ClientApprovalStatus string

const (
	ClientApprovalStatusNotRequired ClientApprovalStatus = "not_required"
	ClientApprovalStatusPending     ClientApprovalStatus = "pending"
	ClientApprovalStatusApproved    ClientApprovalStatus = "approved"
	ClientApprovalStatusRejected    ClientApprovalStatus = "rejected"
)

func (s ClientApprovalStatus) String() string {
	return string(s)
}

func (s ClientApprovalStatus) Validate() error {
	allowed := []ClientApprovalStatus{
		ClientApprovalStatusNotRequired,
		ClientApprovalStatusPending,
		ClientApprovalStatusApproved,
		ClientApprovalStatusRejected,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid client approval status").
			WithHint("Invalid client approval status").
			WithReportableDetails(map[string]any{
				"client_approval_status": s,
				"allowed_values":         allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ApplicationType decides when an approved price change may be applied
type ApplicationType string

const (
	ApplicationTypeImmediate ApplicationType = "immediate"
	ApplicationTypeNextCycle ApplicationType = "next_cycle"
	ApplicationTypeScheduled ApplicationType = "scheduled"
)

func (t ApplicationType) String() string {
	return string(t)
}

func (t ApplicationType) Validate() error {
	allowed := []ApplicationType{
		ApplicationTypeImmediate,
		ApplicationTypeNextCycle,
		ApplicationTypeScheduled,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid application type").
			WithHint("Application type must be immediate, next_cycle or scheduled").
			WithReportableDetails(map[string]any{
				"application_type": t,
				"allowed_values":   allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// PriceChangeType is an advisory classification shown to merchants and clients
type PriceChangeType string

const (
	PriceChangeTypeUpgrade   PriceChangeType = "upgrade"
	PriceChangeTypeDowngrade PriceChangeType = "downgrade"
	PriceChangeTypeInflation PriceChangeType = "inflation"
	PriceChangeTypeCustom    PriceChangeType = "custom"
)

func (t PriceChangeType) String() string {
	return string(t)
}

func (t PriceChangeType) Validate() error {
	allowed := []PriceChangeType{
		PriceChangeTypeUpgrade,
		PriceChangeTypeDowngrade,
		PriceChangeTypeInflation,
		PriceChangeTypeCustom,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid change type").
			WithHint("Change type must be upgrade, downgrade, inflation or custom").
			WithReportableDetails(map[string]any{
				"change_type":    t,
				"allowed_values": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ApprovalDecision is the client's answer on the approval link
type ApprovalDecision string

const (
	ApprovalDecisionApproved ApprovalDecision = "approved"
	ApprovalDecisionRejected ApprovalDecision = "rejected"
)

func (d ApprovalDecision) Validate() error {
	allowed := []ApprovalDecision{
		ApprovalDecisionApproved,
		ApprovalDecisionRejected,
	}
	if !lo.Contains(allowed, d) {
		return ierr.NewError("invalid approval decision").
			WithHint("Decision must be approved or rejected").
			WithReportableDetails(map[string]any{
				"decision":       d,
				"allowed_values": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ApprovalMethod records how a client approval was resolved
type ApprovalMethod string

const (
	ApprovalMethodToken       ApprovalMethod = "token"
	ApprovalMethodAutoTimeout ApprovalMethod = "auto_timeout"
	ApprovalMethodMerchant    ApprovalMethod = "merchant"
)

// CancellationReason records why a pending record was cancelled
type CancellationReason string

const (
	CancellationReasonClientRejected        CancellationReason = "client_rejected"
	CancellationReasonMerchantCancelled     CancellationReason = "merchant_cancelled"
	CancellationReasonApplyRetriesExhausted CancellationReason = "apply_retries_exhausted"
)

// PriceChangeFilter narrows price change listings
type PriceChangeFilter struct {
	*QueryFilter
	*TimeRangeFilter

	SubscriptionID       string                 `json:"subscription_id,omitempty" form:"subscription_id"`
	ProductPriceChangeID string                 `json:"product_price_change_id,omitempty" form:"product_price_change_id"`
	Status               []PriceChangeStatus    `json:"status,omitempty" form:"status"`
	ClientApprovalStatus []ClientApprovalStatus `json:"client_approval_status,omitempty" form:"client_approval_status"`
}

// NewPriceChangeFilter creates a new price change filter with default pagination
func NewPriceChangeFilter() *PriceChangeFilter {
	return &PriceChangeFilter{
		QueryFilter: NewDefaultQueryFilter(),
	}
}

// NewNoLimitPriceChangeFilter creates a new price change filter without pagination
func NewNoLimitPriceChangeFilter() *PriceChangeFilter {
	return &PriceChangeFilter{
		QueryFilter: NewNoLimitQueryFilter(),
	}
}

func (f PriceChangeFilter) Validate() error {
	if f.QueryFilter != nil {
		if err := f.QueryFilter.Validate(); err != nil {
			return err
		}
	}
	if f.TimeRangeFilter != nil {
		if err := f.TimeRangeFilter.Validate(); err != nil {
			return err
		}
	}
	for _, s := range f.Status {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	for _, s := range f.ClientApprovalStatus {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ProductPriceChangeFilter narrows bulk change listings
type ProductPriceChangeFilter struct {
	*QueryFilter

	ProductID string `json:"product_id,omitempty" form:"product_id"`
}

func NewProductPriceChangeFilter() *ProductPriceChangeFilter {
	return &ProductPriceChangeFilter{
		QueryFilter: NewDefaultQueryFilter(),
	}
}

func (f ProductPriceChangeFilter) Validate() error {
	if f.QueryFilter != nil {
		return f.QueryFilter.Validate()
	}
	return nil
}
