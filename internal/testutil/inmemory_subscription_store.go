package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/paylinks/pricechange/internal/domain/subscription"
	ierr "github.com/paylinks/pricechange/internal/errors"
	"github.com/paylinks/pricechange/internal/types"
	"github.com/samber/lo"
)

var _ subscription.Repository = (*InMemorySubscriptionStore)(nil)

// InMemorySubscriptionStore implements subscription.Repository
type InMemorySubscriptionStore struct {
	*InMemoryStore[subscription.Subscription]
}

func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		InMemoryStore: NewInMemoryStore[subscription.Subscription](),
	}
}

// subscriptionFilterFn implements filtering logic for subscriptions
func subscriptionFilterFn(ctx context.Context, sub subscription.Subscription, filter interface{}) bool {
	f, ok := filter.(*types.SubscriptionFilter)
	if !ok || f == nil {
		return true
	}

	if f.ProductID != "" && lo.FromPtr(sub.ProductID) != f.ProductID {
		return false
	}
	if f.CustomerID != "" && sub.CustomerID != f.CustomerID {
		return false
	}
	if len(f.SubscriptionStatus) > 0 && !lo.Contains(f.SubscriptionStatus, sub.SubscriptionStatus) {
		return false
	}
	if len(f.SubscriptionType) > 0 && !lo.Contains(f.SubscriptionType, sub.SubscriptionType) {
		return false
	}

	return true
}

func (s *InMemorySubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil {
		return fmt.Errorf("subscription cannot be nil")
	}
	return s.InMemoryStore.Create(ctx, sub.ID, *sub)
}

func (s *InMemorySubscriptionStore) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	sub, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *InMemorySubscriptionStore) List(ctx context.Context, filter *types.SubscriptionFilter) ([]*subscription.Subscription, error) {
	if filter == nil {
		filter = types.NewSubscriptionFilter()
	}
	filter.QueryFilter = paginated(filter.QueryFilter)

	subs, err := s.InMemoryStore.List(ctx, filter, subscriptionFilterFn, func(i, j subscription.Subscription) bool {
		return lessByCreatedAt(filter.GetOrder(), i.CreatedAt.UnixNano(), j.CreatedAt.UnixNano(), i.ID, j.ID)
	})
	if err != nil {
		return nil, err
	}
	return lo.ToSlicePtr(subs), nil
}

func (s *InMemorySubscriptionStore) Count(ctx context.Context, filter *types.SubscriptionFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filter, subscriptionFilterFn)
}

func (s *InMemorySubscriptionStore) AttachPendingPriceChange(ctx context.Context, id, priceChangeID string, at time.Time) error {
	return s.Mutate(ctx, id, func(sub *subscription.Subscription) error {
		if sub.HasPendingPriceChange() {
			return ierr.NewError("subscription already has a pending price change").
				WithHint("Subscription already has a pending price change").
				WithReportableDetails(map[string]any{"subscription_id": id}).
				Mark(ierr.ErrConflict)
		}
		sub.PendingPriceChangeID = lo.ToPtr(priceChangeID)
		sub.UpdatedAt = at
		sub.UpdatedBy = types.GetUserID(ctx)
		return nil
	})
}

func (s *InMemorySubscriptionStore) ClearPendingPriceChange(ctx context.Context, id, priceChangeID string, at time.Time) error {
	err := s.Mutate(ctx, id, func(sub *subscription.Subscription) error {
		if lo.FromPtr(sub.PendingPriceChangeID) != priceChangeID {
			return nil
		}
		sub.PendingPriceChangeID = nil
		sub.BillingSuspended = false
		sub.UpdatedAt = at
		sub.UpdatedBy = types.GetUserID(ctx)
		return nil
	})
	if ierr.IsNotFound(err) {
		return nil
	}
	return err
}

func (s *InMemorySubscriptionStore) ApplyPriceChange(ctx context.Context, id, priceChangeID string, newAmount int64, at time.Time) error {
	err := s.Mutate(ctx, id, func(sub *subscription.Subscription) error {
		if lo.FromPtr(sub.PendingPriceChangeID) != priceChangeID {
			return ierr.NewError("subscription is not waiting for this price change").
				WithHint("Subscription is no longer waiting for this price change").
				WithReportableDetails(map[string]any{
					"subscription_id": id,
					"price_change_id": priceChangeID,
				}).
				Mark(ierr.ErrConflict)
		}
		sub.Amount = newAmount
		sub.LastPriceChangeDate = lo.ToPtr(at)
		sub.PriceChangeHistoryCount++
		sub.PendingPriceChangeID = nil
		sub.BillingSuspended = false
		sub.UpdatedAt = at
		sub.UpdatedBy = types.GetUserID(ctx)
		return nil
	})
	if ierr.IsNotFound(err) {
		return ierr.WithError(err).Mark(ierr.ErrConflict)
	}
	return err
}

func (s *InMemorySubscriptionStore) SetBillingSuspended(ctx context.Context, id string, suspended bool, at time.Time) error {
	return s.Mutate(ctx, id, func(sub *subscription.Subscription) error {
		sub.BillingSuspended = suspended
		sub.UpdatedAt = at
		sub.UpdatedBy = types.GetUserID(ctx)
		return nil
	})
}
