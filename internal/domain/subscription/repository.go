package subscription

import (
	"context"
	"time"

	"github.com/paylinks/pricechange/internal/types"
)

type Repository interface {
	Create(ctx context.Context, subscription *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	List(ctx context.Context, filter *types.SubscriptionFilter) ([]*Subscription, error)
	Count(ctx context.Context, filter *types.SubscriptionFilter) (int, error)

	// AttachPendingPriceChange points the subscription at a new price change.
	// Fails with ErrConflict when another change is already outstanding.
	AttachPendingPriceChange(ctx context.Context, id, priceChangeID string, at time.Time) error

	// ClearPendingPriceChange releases the pointer only if it still references priceChangeID
	ClearPendingPriceChange(ctx context.Context, id, priceChangeID string, at time.Time) error

	// ApplyPriceChange moves the amount, stamps the change date, bumps the history count,
	// releases the pending pointer and lifts any billing suspension. It only succeeds while
	// the pointer still references priceChangeID, otherwise ErrConflict.
	ApplyPriceChange(ctx context.Context, id, priceChangeID string, newAmount int64, at time.Time) error

	SetBillingSuspended(ctx context.Context, id string, suspended bool, at time.Time) error
}
