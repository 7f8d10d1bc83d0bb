package dto

import (
	"time"

	"github.com/paylinks/pricechange/internal/domain/notification"
	"github.com/paylinks/pricechange/internal/types"
	"github.com/paylinks/pricechange/internal/validator"
)

// RecordNotificationRequest asks for a notification record. Nothing is sent by this engine.
type RecordNotificationRequest struct {
	SubscriptionID string                    `json:"subscription_id" validate:"required"`
	PriceChangeID  *string                   `json:"price_change_id,omitempty"`
	Event          types.NotificationEvent   `json:"event" validate:"required"`
	Channel        types.NotificationChannel `json:"channel" validate:"required"`
	Recipient      string                    `json:"recipient"`
	Message        string                    `json:"message" validate:"required"`
}

func (r *RecordNotificationRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.Channel.Validate()
}

func (r *RecordNotificationRequest) ToNotification(now time.Time) *notification.Notification {
	return &notification.Notification{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_NOTIFICATION),
		SubscriptionID: r.SubscriptionID,
		PriceChangeID:  r.PriceChangeID,
		Event:          r.Event,
		Channel:        r.Channel,
		Recipient:      r.Recipient,
		Message:        r.Message,
		CreatedAt:      now,
	}
}
