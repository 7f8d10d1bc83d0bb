package productpricechange

import (
	"time"

	"github.com/paylinks/pricechange/internal/types"
	"github.com/shopspring/decimal"
)

// ProductPriceChange is a bulk price change on a product template, fanned out to one
// child price change per active subscription of the product. Completion is derived
// from the counters and is never stored as a separate state.
type ProductPriceChange struct {
	ID        string `db:"id" json:"id"`
	ProductID string `db:"product_id" json:"product_id"`

	OldBaseAmount    int64           `db:"old_base_amount" json:"old_base_amount"`
	NewBaseAmount    int64           `db:"new_base_amount" json:"new_base_amount"`
	Difference       int64           `db:"difference" json:"difference"`
	PercentageChange decimal.Decimal `db:"percentage_change" json:"percentage_change"`

	ChangeType    types.PriceChangeType `db:"change_type" json:"change_type"`
	Reason        string                `db:"reason" json:"reason"`
	InternalNotes *string               `db:"internal_notes" json:"internal_notes,omitempty"`

	ApplicationType types.ApplicationType `db:"application_type" json:"application_type"`
	ScheduledDate   *time.Time            `db:"scheduled_date" json:"scheduled_date,omitempty"`

	RequiresApprovalForFixed      bool `db:"requires_approval_for_fixed" json:"requires_approval_for_fixed"`
	AutoSuspendFixedUntilApproval bool `db:"auto_suspend_fixed_until_approval" json:"auto_suspend_fixed_until_approval"`

	// TotalSubscriptionsAffected counts subscriptions that received a child record
	TotalSubscriptionsAffected   int `db:"total_subscriptions_affected" json:"total_subscriptions_affected"`
	SubscriptionsApplied         int `db:"subscriptions_applied" json:"subscriptions_applied"`
	SubscriptionsPendingApproval int `db:"subscriptions_pending_approval" json:"subscriptions_pending_approval"`
	// SubscriptionsFailed counts children that ended without being applied.
	// Subscriptions skipped at fan-out never became children and are counted in SubscriptionsSkipped instead.
	SubscriptionsFailed int `db:"subscriptions_failed" json:"subscriptions_failed"`
	// SubscriptionsSkipped counts subscriptions left out because a change was already outstanding
	SubscriptionsSkipped int `db:"subscriptions_skipped" json:"subscriptions_skipped"`

	types.BaseModel
}

// Progress is a point in time read of a bulk change
type Progress struct {
	Applied         int             `json:"applied"`
	PendingApproval int             `json:"pending_approval"`
	Failed          int             `json:"failed"`
	Skipped         int             `json:"skipped"`
	Total           int             `json:"total"`
	PercentComplete decimal.Decimal `json:"percent_complete"`
	IsComplete      bool            `json:"is_complete"`
}

// Progress derives completion from the counters. An empty fan-out is 100% complete.
func (p *ProductPriceChange) Progress() Progress {
	progress := Progress{
		Applied:         p.SubscriptionsApplied,
		PendingApproval: p.SubscriptionsPendingApproval,
		Failed:          p.SubscriptionsFailed,
		Skipped:         p.SubscriptionsSkipped,
		Total:           p.TotalSubscriptionsAffected,
		PercentComplete: decimal.NewFromInt(100),
	}
	if p.TotalSubscriptionsAffected > 0 {
		progress.PercentComplete = decimal.NewFromInt(int64(p.SubscriptionsApplied)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(p.TotalSubscriptionsAffected))).
			Round(2)
	}
	progress.IsComplete = p.SubscriptionsApplied+p.SubscriptionsFailed >= p.TotalSubscriptionsAffected
	return progress
}
