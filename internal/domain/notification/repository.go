package notification

import (
	"context"

	"github.com/paylinks/pricechange/internal/types"
)

type Repository interface {
	Create(ctx context.Context, notification *Notification) error
	List(ctx context.Context, filter *types.NotificationFilter) ([]*Notification, error)
}
