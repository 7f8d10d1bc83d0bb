package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/paylinks/pricechange/internal/domain/pricechange"
	ierr "github.com/paylinks/pricechange/internal/errors"
	"github.com/paylinks/pricechange/internal/types"
	"github.com/samber/lo"
)

var _ pricechange.Repository = (*InMemoryPriceChangeStore)(nil)

// InMemoryPriceChangeStore implements pricechange.Repository with the same
// preconditions as the conditional updates of the postgres repository
type InMemoryPriceChangeStore struct {
	*InMemoryStore[pricechange.PriceChange]

	hookMu    sync.RWMutex
	applyHook func(id string) error
}

func NewInMemoryPriceChangeStore() *InMemoryPriceChangeStore {
	return &InMemoryPriceChangeStore{
		InMemoryStore: NewInMemoryStore[pricechange.PriceChange](),
	}
}

// SetApplyHook makes MarkApplied fail with the hook's error before touching the record.
// Pass nil to remove it.
func (s *InMemoryPriceChangeStore) SetApplyHook(hook func(id string) error) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.applyHook = hook
}

func priceChangeFilterFn(ctx context.Context, pc pricechange.PriceChange, filter interface{}) bool {
	f, ok := filter.(*types.PriceChangeFilter)
	if !ok || f == nil {
		return true
	}

	if f.SubscriptionID != "" && pc.SubscriptionID != f.SubscriptionID {
		return false
	}
	if f.ProductPriceChangeID != "" && lo.FromPtr(pc.ProductPriceChangeID) != f.ProductPriceChangeID {
		return false
	}
	if len(f.Status) > 0 && !lo.Contains(f.Status, pc.PriceChangeStatus) {
		return false
	}
	if len(f.ClientApprovalStatus) > 0 && !lo.Contains(f.ClientApprovalStatus, pc.ClientApprovalStatus) {
		return false
	}
	if f.TimeRangeFilter != nil {
		if f.StartTime != nil && pc.CreatedAt.Before(*f.StartTime) {
			return false
		}
		if f.EndTime != nil && !pc.CreatedAt.Before(*f.EndTime) {
			return false
		}
	}

	return true
}

func (s *InMemoryPriceChangeStore) Create(ctx context.Context, pc *pricechange.PriceChange) error {
	if pc == nil {
		return fmt.Errorf("price change cannot be nil")
	}

	return s.CreateUnique(ctx, pc.ID, *pc, func(existing pricechange.PriceChange) error {
		if existing.IsPending() && existing.SubscriptionID == pc.SubscriptionID {
			return ierr.NewError("duplicate pending price change").
				WithHint("Subscription already has a pending price change").
				WithReportableDetails(map[string]any{"subscription_id": pc.SubscriptionID}).
				Mark(ierr.ErrConflict)
		}
		if pc.ApprovalToken != nil && lo.FromPtr(existing.ApprovalToken) == *pc.ApprovalToken {
			return ierr.NewError("duplicate approval token").
				Mark(ierr.ErrAlreadyExists)
		}
		return nil
	})
}

func (s *InMemoryPriceChangeStore) Get(ctx context.Context, id string) (*pricechange.PriceChange, error) {
	pc, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &pc, nil
}

func (s *InMemoryPriceChangeStore) GetByApprovalToken(ctx context.Context, token string) (*pricechange.PriceChange, error) {
	pc, found := s.Find(ctx, func(item pricechange.PriceChange) bool {
		return item.ApprovalToken != nil && *item.ApprovalToken == token
	})
	if !found {
		return nil, ierr.NewError("price change not found").
			WithHint("Approval link is invalid or has already been used").
			Mark(ierr.ErrNotFound)
	}
	return &pc, nil
}

func (s *InMemoryPriceChangeStore) List(ctx context.Context, filter *types.PriceChangeFilter) ([]*pricechange.PriceChange, error) {
	if filter == nil {
		filter = types.NewPriceChangeFilter()
	}
	filter.QueryFilter = paginated(filter.QueryFilter)

	changes, err := s.InMemoryStore.List(ctx, filter, priceChangeFilterFn, func(i, j pricechange.PriceChange) bool {
		return lessByCreatedAt(filter.GetOrder(), i.CreatedAt.UnixNano(), j.CreatedAt.UnixNano(), i.ID, j.ID)
	})
	if err != nil {
		return nil, err
	}
	return lo.ToSlicePtr(changes), nil
}

func (s *InMemoryPriceChangeStore) Count(ctx context.Context, filter *types.PriceChangeFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filter, priceChangeFilterFn)
}

func (s *InMemoryPriceChangeStore) listOldestFirst(ctx context.Context, match func(pc pricechange.PriceChange) bool) []*pricechange.PriceChange {
	changes, _ := s.InMemoryStore.List(ctx, nil, func(_ context.Context, pc pricechange.PriceChange, _ interface{}) bool {
		return match(pc)
	}, nil)
	sort.SliceStable(changes, func(i, j int) bool {
		return lessByCreatedAt(types.OrderAsc, changes[i].CreatedAt.UnixNano(), changes[j].CreatedAt.UnixNano(), changes[i].ID, changes[j].ID)
	})
	return lo.ToSlicePtr(changes)
}

func (s *InMemoryPriceChangeStore) ListEligibleForApplication(ctx context.Context, now time.Time) ([]*pricechange.PriceChange, error) {
	return s.listOldestFirst(ctx, func(pc pricechange.PriceChange) bool {
		return pc.IsEligible(now)
	}), nil
}

func (s *InMemoryPriceChangeStore) ListExpiredApprovals(ctx context.Context, cutoff time.Time) ([]*pricechange.PriceChange, error) {
	return s.listOldestFirst(ctx, func(pc pricechange.PriceChange) bool {
		return pc.IsAwaitingApproval() && !pc.CreatedAt.After(cutoff)
	}), nil
}

func (s *InMemoryPriceChangeStore) ResolveApproval(
	ctx context.Context,
	id string,
	decision types.ClientApprovalStatus,
	method types.ApprovalMethod,
	at time.Time,
) error {
	if decision != types.ClientApprovalStatusApproved && decision != types.ClientApprovalStatusRejected {
		return ierr.NewError("approval can only resolve to approved or rejected").
			WithHint("Decision must be approved or rejected").
			Mark(ierr.ErrValidation)
	}

	return s.update(ctx, id, "Approval has already been resolved", func(pc *pricechange.PriceChange) bool {
		if !pc.IsAwaitingApproval() {
			return false
		}
		pc.ClientApprovalStatus = decision
		pc.ClientApprovalDate = lo.ToPtr(at)
		pc.ApprovalMethod = lo.ToPtr(method)
		if decision == types.ClientApprovalStatusRejected {
			pc.PriceChangeStatus = types.PriceChangeStatusCancelled
			pc.CancelledAt = lo.ToPtr(at)
			pc.CancellationReason = lo.ToPtr(types.CancellationReasonClientRejected)
		}
		pc.UpdatedAt = at
		pc.UpdatedBy = types.GetUserID(ctx)
		return true
	})
}

func (s *InMemoryPriceChangeStore) MarkApplied(ctx context.Context, id string, at time.Time) error {
	s.hookMu.RLock()
	hook := s.applyHook
	s.hookMu.RUnlock()
	if hook != nil {
		if err := hook(id); err != nil {
			return err
		}
	}

	return s.update(ctx, id, "Price change is no longer eligible to apply", func(pc *pricechange.PriceChange) bool {
		if !pc.IsPending() || !pc.IsApprovalSatisfied() {
			return false
		}
		pc.PriceChangeStatus = types.PriceChangeStatusApplied
		pc.AppliedAt = lo.ToPtr(at)
		pc.UpdatedAt = at
		pc.UpdatedBy = types.GetUserID(ctx)
		return true
	})
}

func (s *InMemoryPriceChangeStore) MarkCancelled(ctx context.Context, id string, reason types.CancellationReason, at time.Time) error {
	return s.update(ctx, id, "Price change is no longer pending", func(pc *pricechange.PriceChange) bool {
		if !pc.IsPending() {
			return false
		}
		pc.PriceChangeStatus = types.PriceChangeStatusCancelled
		pc.CancelledAt = lo.ToPtr(at)
		pc.CancellationReason = lo.ToPtr(reason)
		pc.UpdatedAt = at
		pc.UpdatedBy = types.GetUserID(ctx)
		return true
	})
}

func (s *InMemoryPriceChangeStore) RecordApplyFailure(ctx context.Context, id string, applyErr string, at time.Time) (int, error) {
	var attempts int
	err := s.update(ctx, id, "Price change is no longer pending", func(pc *pricechange.PriceChange) bool {
		if !pc.IsPending() {
			return false
		}
		pc.ApplyAttempts++
		pc.LastApplyError = lo.ToPtr(applyErr)
		pc.UpdatedAt = at
		attempts = pc.ApplyAttempts
		return true
	})
	if err != nil {
		return 0, err
	}
	return attempts, nil
}

// update applies fn when its precondition holds and reports ErrConflict otherwise,
// including for unknown ids, the way a conditional UPDATE matching no rows does
func (s *InMemoryPriceChangeStore) update(ctx context.Context, id, hint string, fn func(pc *pricechange.PriceChange) bool) error {
	conflict := ierr.NewError("price change precondition no longer holds").
		WithHint(hint).
		WithReportableDetails(map[string]any{"price_change_id": id}).
		Mark(ierr.ErrConflict)

	err := s.Mutate(ctx, id, func(pc *pricechange.PriceChange) error {
		if !fn(pc) {
			return conflict
		}
		return nil
	})
	if ierr.IsNotFound(err) {
		return conflict
	}
	return err
}
