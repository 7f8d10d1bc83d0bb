package subscription

import (
	"time"

	"github.com/paylinks/pricechange/internal/types"
)

// Subscription is the recurring billing agreement a price change targets.
// Its lifecycle belongs to the subscriptions module; this engine only moves the
// amount and the pending change pointer.
type Subscription struct {
	// ID is the unique identifier for the subscription
	ID string `db:"id" json:"id"`

	// ProductID is set when the subscription was created from a product template
	ProductID *string `db:"product_id" json:"product_id,omitempty"`

	// CustomerID is the identifier for the customer in our system
	CustomerID string `db:"customer_id" json:"customer_id"`

	CustomerName  string  `db:"customer_name" json:"customer_name"`
	CustomerPhone *string `db:"customer_phone" json:"customer_phone,omitempty"`
	CustomerEmail *string `db:"customer_email" json:"customer_email,omitempty"`

	// Amount is the recurring charge in minor currency units
	Amount int64 `db:"amount" json:"amount"`

	// Currency is the currency of the subscription in lowercase 3 digit ISO codes
	Currency string `db:"currency" json:"currency"`

	SubscriptionType   types.SubscriptionType   `db:"subscription_type" json:"subscription_type"`
	SubscriptionStatus types.SubscriptionStatus `db:"subscription_status" json:"subscription_status"`

	// PendingPriceChangeID points at the single outstanding price change, if any
	PendingPriceChangeID *string `db:"pending_price_change_id" json:"pending_price_change_id,omitempty"`

	LastPriceChangeDate     *time.Time `db:"last_price_change_date" json:"last_price_change_date,omitempty"`
	PriceChangeHistoryCount int        `db:"price_change_history_count" json:"price_change_history_count"`

	// BillingSuspended asks the billing engine to hold charges until a pending approval resolves
	BillingSuspended bool `db:"billing_suspended" json:"billing_suspended"`

	// NextChargeDate is maintained by the billing engine
	NextChargeDate *time.Time `db:"next_charge_date" json:"next_charge_date,omitempty"`

	types.BaseModel
}

// HasPendingPriceChange reports whether a price change is outstanding
func (s *Subscription) HasPendingPriceChange() bool {
	return s.PendingPriceChangeID != nil && *s.PendingPriceChangeID != ""
}

// ContactFor returns the address a notification on the given channel goes to
func (s *Subscription) ContactFor(channel types.NotificationChannel) string {
	switch channel {
	case types.NotificationChannelEmail:
		if s.CustomerEmail != nil {
			return *s.CustomerEmail
		}
	case types.NotificationChannelSMS, types.NotificationChannelWhatsApp:
		if s.CustomerPhone != nil {
			return *s.CustomerPhone
		}
	}
	return ""
}
