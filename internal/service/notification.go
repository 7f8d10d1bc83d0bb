package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"
	"github.com/paylinks/pricechange/internal/api/dto"
	"github.com/paylinks/pricechange/internal/domain/notification"
	"github.com/paylinks/pricechange/internal/domain/pricechange"
	"github.com/paylinks/pricechange/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// NotificationService records that a customer should be told about an event and
// hands a copy to the delivery service. Delivery happens elsewhere.
type NotificationService interface {
	RecordNotification(ctx context.Context, req dto.RecordNotificationRequest) (*notification.Notification, error)

	// RecordPriceChangeApplied records the applied change for the subscription's contact
	RecordPriceChangeApplied(ctx context.Context, pc *pricechange.PriceChange) error

	ListNotifications(ctx context.Context, filter *types.NotificationFilter) ([]*notification.Notification, error)
}

type notificationService struct {
	ServiceParams
}

func NewNotificationService(params ServiceParams) NotificationService {
	return &notificationService{ServiceParams: params}
}

func (s *notificationService) RecordNotification(ctx context.Context, req dto.RecordNotificationRequest) (*notification.Notification, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.Config.PriceChange.NotificationTimeout)
	defer cancel()

	n := req.ToNotification(s.Clock.Now())
	if err := s.NotificationRepo.Create(ctx, n); err != nil {
		return nil, err
	}

	if err := s.publish(ctx, n); err != nil {
		// the persisted record is authoritative, the delivery service can backfill from it
		s.Logger.WithContext(ctx).Warnw("failed to publish notification",
			"notification_id", n.ID,
			"subscription_id", n.SubscriptionID,
			"error", err)
	}

	return n, nil
}

func (s *notificationService) publish(ctx context.Context, n *notification.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}

	msg := message.NewMessage(n.ID, payload)
	msg.Metadata.Set("event", string(n.Event))
	msg.Metadata.Set("channel", string(n.Channel))
	msg.Metadata.Set("subscription_id", n.SubscriptionID)

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.Config.PriceChange.NotificationRetries)),
		ctx,
	)

	return backoff.Retry(func() error {
		return s.NotificationPublisher.Publish(ctx, s.Config.Notification.Topic, msg)
	}, policy)
}

func (s *notificationService) RecordPriceChangeApplied(ctx context.Context, pc *pricechange.PriceChange) error {
	sub, err := s.SubRepo.Get(ctx, pc.SubscriptionID)
	if err != nil {
		return err
	}

	channels := lo.Uniq([]types.NotificationChannel{
		s.Config.Notification.DefaultChannel,
		types.NotificationChannelWhatsApp,
		types.NotificationChannelSMS,
		types.NotificationChannelEmail,
	})
	channel, found := lo.Find(channels, func(c types.NotificationChannel) bool {
		return sub.ContactFor(c) != ""
	})
	if !found {
		s.Logger.WithContext(ctx).Warnw("subscription has no contact for price change notification",
			"subscription_id", sub.ID,
			"price_change_id", pc.ID)
		return nil
	}

	_, err = s.RecordNotification(ctx, dto.RecordNotificationRequest{
		SubscriptionID: sub.ID,
		PriceChangeID:  lo.ToPtr(pc.ID),
		Event:          types.NotificationEventPriceChangeApplied,
		Channel:        channel,
		Recipient:      sub.ContactFor(channel),
		Message: fmt.Sprintf("Hi %s, your subscription amount changed from %s to %s. Reason: %s",
			sub.CustomerName,
			formatAmount(pc.OldAmount, sub.Currency),
			formatAmount(pc.NewAmount, sub.Currency),
			pc.Reason),
	})
	return err
}

func (s *notificationService) ListNotifications(ctx context.Context, filter *types.NotificationFilter) ([]*notification.Notification, error) {
	if filter == nil {
		filter = types.NewNotificationFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return s.NotificationRepo.List(ctx, filter)
}

// formatAmount renders minor units with two decimals, e.g. 120000 usd -> "1200.00 USD"
func formatAmount(amount int64, currency string) string {
	return strings.TrimSpace(decimal.New(amount, -2).StringFixed(2) + " " + strings.ToUpper(currency))
}
