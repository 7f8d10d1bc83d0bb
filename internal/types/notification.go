package types

import (
	ierr "github.com/paylinks/pricechange/internal/errors"
	"github.com/samber/lo"
)

// NotificationChannel is the delivery channel a notification record is addressed to
type NotificationChannel string

const (
	NotificationChannelSMS      NotificationChannel = "sms"
	NotificationChannelWhatsApp NotificationChannel = "whatsapp"
	NotificationChannelEmail    NotificationChannel = "email"
)

func (c NotificationChannel) String() string {
	return string(c)
}

func (c NotificationChannel) Validate() error {
	allowed := []NotificationChannel{
		NotificationChannelSMS,
		NotificationChannelWhatsApp,
		NotificationChannelEmail,
	}
	if !lo.Contains(allowed, c) {
		return ierr.NewError("invalid notification channel").
			WithHint("Notification channel must be sms, whatsapp or email").
			WithReportableDetails(map[string]any{
				"channel":        c,
				"allowed_values": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// NotificationEvent names the domain event a notification record is about
type NotificationEvent string

const (
	NotificationEventPriceChangeApplied NotificationEvent = "price_change_applied"
)

// NotificationFilter narrows notification listings
type NotificationFilter struct {
	*QueryFilter

	SubscriptionID string              `json:"subscription_id,omitempty" form:"subscription_id"`
	Event          NotificationEvent   `json:"event,omitempty" form:"event"`
	Channel        NotificationChannel `json:"channel,omitempty" form:"channel"`
}

func NewNotificationFilter() *NotificationFilter {
	return &NotificationFilter{
		QueryFilter: NewDefaultQueryFilter(),
	}
}

func (f NotificationFilter) Validate() error {
	if f.QueryFilter != nil {
		if err := f.QueryFilter.Validate(); err != nil {
			return err
		}
	}
	if f.Channel != "" {
		return f.Channel.Validate()
	}
	return nil
}
