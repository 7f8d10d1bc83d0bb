package postgres

import (
	"context"

	"github.com/paylinks/pricechange/internal/domain/notification"
	ierr "github.com/paylinks/pricechange/internal/errors"
	"github.com/paylinks/pricechange/internal/logger"
	"github.com/paylinks/pricechange/internal/postgres"
	"github.com/paylinks/pricechange/internal/types"
)

type notificationRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewNotificationRepository(db *postgres.DB, logger *logger.Logger) notification.Repository {
	return &notificationRepository{db: db, logger: logger}
}

func (r *notificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	query := `
		INSERT INTO notifications (
			id,
			subscription_id,
			price_change_id,
			event,
			channel,
			recipient,
			message,
			created_at
		) VALUES (
			:id,
			:subscription_id,
			:price_change_id,
			:event,
			:channel,
			:recipient,
			:message,
			:created_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return ierr.FromDatabase(err, "Failed to record notification", map[string]any{
			"notification_id": n.ID,
			"subscription_id": n.SubscriptionID,
		})
	}
	return nil
}

func (r *notificationRepository) List(ctx context.Context, filter *types.NotificationFilter) ([]*notification.Notification, error) {
	if filter == nil {
		filter = types.NewNotificationFilter()
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}

	where := &whereBuilder{}
	if filter.SubscriptionID != "" {
		where.add("subscription_id = ?", filter.SubscriptionID)
	}
	if filter.Event != "" {
		where.add("event = ?", filter.Event)
	}
	if filter.Channel != "" {
		where.add("channel = ?", filter.Channel)
	}

	query := `
		SELECT id, subscription_id, price_change_id, event, channel, recipient, message, created_at
		FROM notifications` + where.sql()
	query += where.paginate(filter.QueryFilter, []string{"created_at"})

	var notifications []*notification.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, where.args...); err != nil {
		return nil, ierr.FromDatabase(err, "Failed to list notifications", nil)
	}
	return notifications, nil
}
