package notification

import (
	"time"

	"github.com/paylinks/pricechange/internal/types"
)

// Notification is a record that a customer should be told about an event.
// Delivery belongs to the delivery service, which consumes the published copy.
type Notification struct {
	ID             string                    `db:"id" json:"id"`
	SubscriptionID string                    `db:"subscription_id" json:"subscription_id"`
	PriceChangeID  *string                   `db:"price_change_id" json:"price_change_id,omitempty"`
	Event          types.NotificationEvent   `db:"event" json:"event"`
	Channel        types.NotificationChannel `db:"channel" json:"channel"`
	Recipient      string                    `db:"recipient" json:"recipient"`
	Message        string                    `db:"message" json:"message"`
	CreatedAt      time.Time                 `db:"created_at" json:"created_at"`
}
