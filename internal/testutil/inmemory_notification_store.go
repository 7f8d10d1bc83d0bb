package testutil

import (
	"context"
	"fmt"

	"github.com/paylinks/pricechange/internal/domain/notification"
	"github.com/paylinks/pricechange/internal/types"
	"github.com/samber/lo"
)

var _ notification.Repository = (*InMemoryNotificationStore)(nil)

// InMemoryNotificationStore implements notification.Repository
type InMemoryNotificationStore struct {
	*InMemoryStore[notification.Notification]
}

func NewInMemoryNotificationStore() *InMemoryNotificationStore {
	return &InMemoryNotificationStore{
		InMemoryStore: NewInMemoryStore[notification.Notification](),
	}
}

func notificationFilterFn(ctx context.Context, n notification.Notification, filter interface{}) bool {
	f, ok := filter.(*types.NotificationFilter)
	if !ok || f == nil {
		return true
	}

	if f.SubscriptionID != "" && n.SubscriptionID != f.SubscriptionID {
		return false
	}
	if f.Event != "" && n.Event != f.Event {
		return false
	}
	if f.Channel != "" && n.Channel != f.Channel {
		return false
	}
	return true
}

func (s *InMemoryNotificationStore) Create(ctx context.Context, n *notification.Notification) error {
	if n == nil {
		return fmt.Errorf("notification cannot be nil")
	}
	return s.InMemoryStore.Create(ctx, n.ID, *n)
}

func (s *InMemoryNotificationStore) List(ctx context.Context, filter *types.NotificationFilter) ([]*notification.Notification, error) {
	if filter == nil {
		filter = types.NewNotificationFilter()
	}
	filter.QueryFilter = paginated(filter.QueryFilter)

	notifications, err := s.InMemoryStore.List(ctx, filter, notificationFilterFn, func(i, j notification.Notification) bool {
		return lessByCreatedAt(filter.GetOrder(), i.CreatedAt.UnixNano(), j.CreatedAt.UnixNano(), i.ID, j.ID)
	})
	if err != nil {
		return nil, err
	}
	return lo.ToSlicePtr(notifications), nil
}
