package types

import (
	ierr "github.com/paylinks/pricechange/internal/errors"
	"github.com/samber/lo"
)

// SubscriptionStatus is the status of a subscription as owned by the subscriptions module.
// The price change engine only reads it to decide which subscriptions a bulk change reaches.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

func (s SubscriptionStatus) String() string {
	return string(s)
}

func (s SubscriptionStatus) Validate() error {
	allowed := []SubscriptionStatus{
		SubscriptionStatusActive,
		SubscriptionStatusPaused,
		SubscriptionStatusCancelled,
		SubscriptionStatusExpired,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid subscription status").
			WithHint("Invalid subscription status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// SubscriptionType describes how the billed amount of a subscription behaves.
// Fixed subscriptions charge the same amount every cycle, variable ones accept
// amount changes as part of their agreement and single ones charge once.
type SubscriptionType string

const (
	SubscriptionTypeFixed    SubscriptionType = "fixed"
	SubscriptionTypeVariable SubscriptionType = "variable"
	SubscriptionTypeSingle   SubscriptionType = "single"
)

func (t SubscriptionType) String() string {
	return string(t)
}

func (t SubscriptionType) Validate() error {
	allowed := []SubscriptionType{
		SubscriptionTypeFixed,
		SubscriptionTypeVariable,
		SubscriptionTypeSingle,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid subscription type").
			WithHint("Subscription type must be fixed, variable or single").
			WithReportableDetails(map[string]any{
				"type":           t,
				"allowed_values": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// SubscriptionFilter narrows subscription listings
type SubscriptionFilter struct {
	*QueryFilter

	ProductID          string               `json:"product_id,omitempty" form:"product_id"`
	CustomerID         string               `json:"customer_id,omitempty" form:"customer_id"`
	SubscriptionStatus []SubscriptionStatus `json:"subscription_status,omitempty" form:"subscription_status"`
	SubscriptionType   []SubscriptionType   `json:"subscription_type,omitempty" form:"subscription_type"`
}

// NewSubscriptionFilter creates an unlimited filter, used by fan-out paths that need every match
func NewSubscriptionFilter() *SubscriptionFilter {
	return &SubscriptionFilter{
		QueryFilter: NewNoLimitQueryFilter(),
	}
}

func (f SubscriptionFilter) Validate() error {
	if f.QueryFilter != nil {
		if err := f.QueryFilter.Validate(); err != nil {
			return err
		}
	}
	for _, status := range f.SubscriptionStatus {
		if err := status.Validate(); err != nil {
			return err
		}
	}
	for _, t := range f.SubscriptionType {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}
