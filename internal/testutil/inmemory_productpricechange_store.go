package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/paylinks/pricechange/internal/domain/productpricechange"
	ierr "github.com/paylinks/pricechange/internal/errors"
	"github.com/paylinks/pricechange/internal/types"
	"github.com/samber/lo"
)

var _ productpricechange.Repository = (*InMemoryProductPriceChangeStore)(nil)

// InMemoryProductPriceChangeStore implements productpricechange.Repository
type InMemoryProductPriceChangeStore struct {
	*InMemoryStore[productpricechange.ProductPriceChange]
}

func NewInMemoryProductPriceChangeStore() *InMemoryProductPriceChangeStore {
	return &InMemoryProductPriceChangeStore{
		InMemoryStore: NewInMemoryStore[productpricechange.ProductPriceChange](),
	}
}

func productPriceChangeFilterFn(ctx context.Context, ppc productpricechange.ProductPriceChange, filter interface{}) bool {
	f, ok := filter.(*types.ProductPriceChangeFilter)
	if !ok || f == nil {
		return true
	}
	return f.ProductID == "" || ppc.ProductID == f.ProductID
}

func (s *InMemoryProductPriceChangeStore) Create(ctx context.Context, ppc *productpricechange.ProductPriceChange) error {
	if ppc == nil {
		return fmt.Errorf("product price change cannot be nil")
	}
	return s.InMemoryStore.Create(ctx, ppc.ID, *ppc)
}

func (s *InMemoryProductPriceChangeStore) Get(ctx context.Context, id string) (*productpricechange.ProductPriceChange, error) {
	ppc, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ppc, nil
}

func (s *InMemoryProductPriceChangeStore) List(
	ctx context.Context,
	filter *types.ProductPriceChangeFilter,
) ([]*productpricechange.ProductPriceChange, error) {
	if filter == nil {
		filter = types.NewProductPriceChangeFilter()
	}
	filter.QueryFilter = paginated(filter.QueryFilter)

	changes, err := s.InMemoryStore.List(ctx, filter, productPriceChangeFilterFn, func(i, j productpricechange.ProductPriceChange) bool {
		return lessByCreatedAt(filter.GetOrder(), i.CreatedAt.UnixNano(), j.CreatedAt.UnixNano(), i.ID, j.ID)
	})
	if err != nil {
		return nil, err
	}
	return lo.ToSlicePtr(changes), nil
}

func (s *InMemoryProductPriceChangeStore) Count(ctx context.Context, filter *types.ProductPriceChangeFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filter, productPriceChangeFilterFn)
}

func (s *InMemoryProductPriceChangeStore) SetTotals(ctx context.Context, id string, total, pendingApproval, skipped int, at time.Time) error {
	return s.Mutate(ctx, id, func(ppc *productpricechange.ProductPriceChange) error {
		ppc.TotalSubscriptionsAffected = total
		ppc.SubscriptionsPendingApproval = pendingApproval
		ppc.SubscriptionsSkipped = skipped
		ppc.UpdatedAt = at
		return nil
	})
}

func (s *InMemoryProductPriceChangeStore) IncrementApplied(ctx context.Context, id string) error {
	return s.guarded(ctx, id, "Product price change progress is already complete", func(ppc *productpricechange.ProductPriceChange) bool {
		if ppc.SubscriptionsApplied+ppc.SubscriptionsFailed >= ppc.TotalSubscriptionsAffected {
			return false
		}
		ppc.SubscriptionsApplied++
		return true
	})
}

func (s *InMemoryProductPriceChangeStore) IncrementFailed(ctx context.Context, id string) error {
	return s.guarded(ctx, id, "Product price change progress is already complete", func(ppc *productpricechange.ProductPriceChange) bool {
		if ppc.SubscriptionsApplied+ppc.SubscriptionsFailed >= ppc.TotalSubscriptionsAffected {
			return false
		}
		ppc.SubscriptionsFailed++
		return true
	})
}

func (s *InMemoryProductPriceChangeStore) DecrementPendingApproval(ctx context.Context, id string) error {
	return s.guarded(ctx, id, "No approvals are pending on this product price change", func(ppc *productpricechange.ProductPriceChange) bool {
		if ppc.SubscriptionsPendingApproval <= 0 {
			return false
		}
		ppc.SubscriptionsPendingApproval--
		return true
	})
}

func (s *InMemoryProductPriceChangeStore) guarded(
	ctx context.Context,
	id, hint string,
	fn func(ppc *productpricechange.ProductPriceChange) bool,
) error {
	conflict := ierr.NewError("product price change update matched no rows").
		WithHint(hint).
		WithReportableDetails(map[string]any{"product_price_change_id": id}).
		Mark(ierr.ErrConflict)

	err := s.Mutate(ctx, id, func(ppc *productpricechange.ProductPriceChange) error {
		if !fn(ppc) {
			return conflict
		}
		return nil
	})
	if ierr.IsNotFound(err) {
		return conflict
	}
	return err
}
