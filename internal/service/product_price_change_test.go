package service

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/paylinks/pricechange/internal/api/dto"
	"github.com/paylinks/pricechange/internal/domain/product"
	"github.com/paylinks/pricechange/internal/domain/subscription"
	ierr "github.com/paylinks/pricechange/internal/errors"
	"github.com/paylinks/pricechange/internal/testutil"
	"github.com/paylinks/pricechange/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type ProductPriceChangeServiceSuite struct {
	engineSuite
}

func TestProductPriceChangeService(t *testing.T) {
	suite.Run(t, new(ProductPriceChangeServiceSuite))
}

func (s *ProductPriceChangeServiceSuite) bulkRequest(productID string, newBaseAmount int64) dto.CreateProductPriceChangeRequest {
	return dto.CreateProductPriceChangeRequest{
		ProductID:       productID,
		NewBaseAmount:   newBaseAmount,
		Reason:          "Rent increase",
		ChangeType:      types.PriceChangeTypeInflation,
		ApplicationType: types.ApplicationTypeImmediate,
	}
}

func (s *ProductPriceChangeServiceSuite) childrenOf(parentID string) []*dto.PriceChangeResponse {
	filter := types.NewNoLimitPriceChangeFilter()
	filter.ProductPriceChangeID = parentID
	resp, err := s.priceChanges.ListPriceChanges(s.GetContext(), filter)
	s.Require().NoError(err)
	return resp.Items
}

func (s *ProductPriceChangeServiceSuite) TestBulkChangeSkipsSubscriptionsWithOutstandingChange() {
	p := s.CreateProduct(100000)
	subs := make([]*subscription.Subscription, 0, 10)
	for i := 0; i < 10; i++ {
		subs = append(subs, s.CreateSubscription(testutil.WithProduct(p.ID)))
	}
	s.propose(subs[0].ID, 105000, false, types.ApplicationTypeImmediate, nil)
	s.propose(subs[1].ID, 105000, true, types.ApplicationTypeImmediate, nil)

	resp, err := s.bulk.ProposeBulkChange(s.GetContext(), s.bulkRequest(p.ID, 110000))
	s.Require().NoError(err)

	s.Equal(8, resp.TotalSubscriptionsAffected)
	s.Equal(2, resp.SubscriptionsSkipped)
	s.Zero(resp.SubscriptionsFailed, "skipped subscriptions are not failures")
	s.Zero(resp.SubscriptionsPendingApproval)
	s.Zero(resp.SubscriptionsApplied)
	s.Equal(int64(10000), resp.Difference)
	s.True(decimal.NewFromInt(10).Equal(resp.PercentageChange))
	s.Require().Len(resp.Skipped, 2)
	s.ElementsMatch(
		[]string{subs[0].ID, subs[1].ID},
		lo.Map(resp.Skipped, func(sk dto.SkippedSubscription, _ int) string { return sk.SubscriptionID }),
	)
	for _, sk := range resp.Skipped {
		s.Equal(dto.SkipReasonPendingPriceChange, sk.Reason)
	}

	children := s.childrenOf(resp.ID)
	s.Len(children, 8)
	for _, child := range children {
		s.Equal(resp.ID, lo.FromPtr(child.ProductPriceChangeID))
		s.Equal(int64(110000), child.NewAmount)
		s.Equal(child.ID, lo.FromPtr(s.MustGetSubscription(child.SubscriptionID).PendingPriceChangeID))
	}

	// the skipped subscriptions keep their own outstanding change
	for _, sub := range subs[:2] {
		stored := s.MustGetSubscription(sub.ID)
		s.NotNil(stored.PendingPriceChangeID)
		s.NotContains(lo.Map(children, func(c *dto.PriceChangeResponse, _ int) string { return c.ID }),
			lo.FromPtr(stored.PendingPriceChangeID))
	}

	// the product template itself is not repriced
	stored, err := s.GetStores().ProductRepo.Get(s.GetContext(), p.ID)
	s.Require().NoError(err)
	s.Equal(int64(100000), stored.BaseAmount)
}

func (s *ProductPriceChangeServiceSuite) TestBulkChangeAppliesAndCompletes() {
	p := s.CreateProduct(100000)
	for i := 0; i < 5; i++ {
		s.CreateSubscription(testutil.WithProduct(p.ID))
	}

	resp, err := s.bulk.ProposeBulkChange(s.GetContext(), s.bulkRequest(p.ID, 110000))
	s.Require().NoError(err)
	s.False(resp.Progress.IsComplete)
	s.True(decimal.Zero.Equal(resp.Progress.PercentComplete))

	summary := s.sweep()
	s.Equal(5, summary.Applied)

	progress, err := s.bulk.GetProgress(s.GetContext(), resp.ID)
	s.Require().NoError(err)
	s.Equal(5, progress.Applied)
	s.Equal(5, progress.Total)
	s.True(progress.IsComplete)
	s.True(decimal.NewFromInt(100).Equal(progress.PercentComplete))

	for _, child := range s.childrenOf(resp.ID) {
		s.Equal(types.PriceChangeStatusApplied, child.PriceChangeStatus)
		s.Equal(int64(110000), s.MustGetSubscription(child.SubscriptionID).Amount)
	}
}

func (s *ProductPriceChangeServiceSuite) TestBulkChangeAsksOnlyFixedSubscriptions() {
	p := s.CreateProduct(100000)
	fixed := s.CreateSubscription(testutil.WithProduct(p.ID))
	variable := s.CreateSubscription(testutil.WithProduct(p.ID), testutil.WithSubscriptionType(types.SubscriptionTypeVariable))
	paused := s.CreateSubscription(testutil.WithProduct(p.ID), testutil.WithSubscriptionStatus(types.SubscriptionStatusPaused))
	other := s.CreateSubscription()

	req := s.bulkRequest(p.ID, 120000)
	req.RequiresApprovalForFixed = true
	req.AutoSuspendFixedUntilApproval = true
	resp, err := s.bulk.ProposeBulkChange(s.GetContext(), req)
	s.Require().NoError(err)

	s.Equal(2, resp.TotalSubscriptionsAffected)
	s.Equal(1, resp.SubscriptionsPendingApproval)

	storedFixed := s.MustGetSubscription(fixed.ID)
	s.True(storedFixed.BillingSuspended)
	s.False(s.MustGetSubscription(variable.ID).BillingSuspended)
	s.Nil(s.MustGetSubscription(paused.ID).PendingPriceChangeID)
	s.Nil(s.MustGetSubscription(other.ID).PendingPriceChangeID)

	fixedChange := s.getChange(lo.FromPtr(storedFixed.PendingPriceChangeID))
	s.Equal(types.ClientApprovalStatusPending, fixedChange.ClientApprovalStatus)
	s.NotNil(fixedChange.ApprovalToken)

	variableChange := s.getChange(lo.FromPtr(s.MustGetSubscription(variable.ID).PendingPriceChangeID))
	s.Equal(types.ClientApprovalStatusNotRequired, variableChange.ClientApprovalStatus)
	s.Nil(variableChange.ApprovalToken)

	summary := s.sweep()
	s.Equal(1, summary.Applied)

	_, err = s.priceChanges.ResolveApproval(s.GetContext(), dto.ResolveApprovalRequest{
		Token:    lo.FromPtr(fixedChange.ApprovalToken),
		Decision: types.ApprovalDecisionApproved,
	})
	s.Require().NoError(err)

	progress, err := s.bulk.GetProgress(s.GetContext(), resp.ID)
	s.Require().NoError(err)
	s.Zero(progress.PendingApproval)
	s.False(progress.IsComplete)

	summary = s.sweep()
	s.Equal(1, summary.Applied)

	storedFixed = s.MustGetSubscription(fixed.ID)
	s.False(storedFixed.BillingSuspended)
	s.Equal(int64(120000), storedFixed.Amount)

	progress, err = s.bulk.GetProgress(s.GetContext(), resp.ID)
	s.Require().NoError(err)
	s.Equal(2, progress.Applied)
	s.True(progress.IsComplete)
}

func (s *ProductPriceChangeServiceSuite) TestRejectedChildCountsAsFailed() {
	p := s.CreateProduct(100000)
	sub := s.CreateSubscription(testutil.WithProduct(p.ID))
	s.CreateSubscription(testutil.WithProduct(p.ID))

	req := s.bulkRequest(p.ID, 120000)
	req.RequiresApprovalForFixed = true
	req.AutoSuspendFixedUntilApproval = true
	resp, err := s.bulk.ProposeBulkChange(s.GetContext(), req)
	s.Require().NoError(err)
	s.Equal(2, resp.SubscriptionsPendingApproval)

	child := s.getChange(lo.FromPtr(s.MustGetSubscription(sub.ID).PendingPriceChangeID))
	_, err = s.priceChanges.ResolveApproval(s.GetContext(), dto.ResolveApprovalRequest{
		Token:    lo.FromPtr(child.ApprovalToken),
		Decision: types.ApprovalDecisionRejected,
	})
	s.Require().NoError(err)

	progress, err := s.bulk.GetProgress(s.GetContext(), resp.ID)
	s.Require().NoError(err)
	s.Equal(1, progress.Failed)
	s.Equal(1, progress.PendingApproval)
	s.Zero(progress.Applied)

	stored := s.MustGetSubscription(sub.ID)
	s.False(stored.BillingSuspended)
	s.Nil(stored.PendingPriceChangeID)
	s.Equal(int64(100000), stored.Amount)
}

func (s *ProductPriceChangeServiceSuite) TestMerchantCancelledChildCountsAsFailed() {
	p := s.CreateProduct(100000)
	sub := s.CreateSubscription(testutil.WithProduct(p.ID))

	req := s.bulkRequest(p.ID, 120000)
	req.RequiresApprovalForFixed = true
	resp, err := s.bulk.ProposeBulkChange(s.GetContext(), req)
	s.Require().NoError(err)

	_, err = s.priceChanges.CancelChange(s.GetContext(), lo.FromPtr(s.MustGetSubscription(sub.ID).PendingPriceChangeID))
	s.Require().NoError(err)

	progress, err := s.bulk.GetProgress(s.GetContext(), resp.ID)
	s.Require().NoError(err)
	s.Equal(1, progress.Failed)
	s.Zero(progress.PendingApproval)
	s.True(progress.IsComplete)
}

func (s *ProductPriceChangeServiceSuite) TestBulkChildGivenUpAfterLastAttempt() {
	p := s.CreateProduct(100000)
	sub := s.CreateSubscription(testutil.WithProduct(p.ID))

	resp, err := s.bulk.ProposeBulkChange(s.GetContext(), s.bulkRequest(p.ID, 120000))
	s.Require().NoError(err)
	childID := lo.FromPtr(s.MustGetSubscription(sub.ID).PendingPriceChangeID)

	s.GetStores().PriceChangeRepo.SetApplyHook(func(string) error { return errStorageDown })

	maxAttempts := s.GetConfig().PriceChange.MaxApplyAttempts
	for attempt := 1; attempt < maxAttempts; attempt++ {
		summary := s.sweep()
		s.Equal(1, summary.Failed)
		s.Zero(summary.Exhausted)
		child := s.getChange(childID)
		s.Equal(types.PriceChangeStatusPending, child.PriceChangeStatus)
		s.Equal(attempt, child.ApplyAttempts)
	}

	last := s.sweep()
	s.Equal(1, last.Failed)
	s.Equal(1, last.Exhausted)

	child := s.getChange(childID)
	s.Equal(types.PriceChangeStatusCancelled, child.PriceChangeStatus)
	s.Equal(types.CancellationReasonApplyRetriesExhausted, lo.FromPtr(child.CancellationReason))
	s.Equal(maxAttempts, child.ApplyAttempts)

	stored := s.MustGetSubscription(sub.ID)
	s.Nil(stored.PendingPriceChangeID)
	s.Equal(int64(100000), stored.Amount)

	progress, err := s.bulk.GetProgress(s.GetContext(), resp.ID)
	s.Require().NoError(err)
	s.Equal(1, progress.Failed)
	s.True(progress.IsComplete)

	s.GetStores().PriceChangeRepo.SetApplyHook(nil)
	after := s.sweep()
	s.Zero(after.Applied)
	s.Zero(after.Failed)
}

func (s *ProductPriceChangeServiceSuite) TestProposeBulkChangeValidation() {
	active := s.CreateProduct(100000)
	archived := &product.Product{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PRODUCT),
		Name:       "Legacy plan",
		BaseAmount: 100000,
		Currency:   "kes",
		Status:     product.StatusArchived,
		BaseModel:  types.GetDefaultBaseModel(s.GetContext(), s.GetNow()),
	}
	s.Require().NoError(s.GetStores().ProductRepo.Create(s.GetContext(), archived))

	tests := []struct {
		name  string
		req   dto.CreateProductPriceChangeRequest
		check func(err error) bool
	}{
		{
			name:  "unknown product",
			req:   s.bulkRequest("prod_missing", 110000),
			check: ierr.IsNotFound,
		},
		{
			name:  "archived product",
			req:   s.bulkRequest(archived.ID, 110000),
			check: ierr.IsInvalidOperation,
		},
		{
			name:  "unchanged base amount",
			req:   s.bulkRequest(active.ID, 100000),
			check: ierr.IsValidation,
		},
		{
			name:  "non positive base amount",
			req:   s.bulkRequest(active.ID, 0),
			check: ierr.IsValidation,
		},
		{
			name: "scheduled without date",
			req: func() dto.CreateProductPriceChangeRequest {
				req := s.bulkRequest(active.ID, 110000)
				req.ApplicationType = types.ApplicationTypeScheduled
				return req
			}(),
			check: ierr.IsValidation,
		},
		{
			name: "blank reason",
			req: func() dto.CreateProductPriceChangeRequest {
				req := s.bulkRequest(active.ID, 110000)
				req.Reason = "   "
				return req
			}(),
			check: ierr.IsValidation,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			resp, err := s.bulk.ProposeBulkChange(s.GetContext(), tt.req)
			s.Nil(resp)
			s.Require().Error(err)
			s.True(tt.check(err), "unexpected error: %v", err)
		})
	}

	list, err := s.bulk.ListProductPriceChanges(s.GetContext(), nil)
	s.Require().NoError(err)
	s.Empty(list.Items)
}

func (s *ProductPriceChangeServiceSuite) TestEmptyProductIsCompleteImmediately() {
	p := s.CreateProduct(100000)

	resp, err := s.bulk.ProposeBulkChange(s.GetContext(), s.bulkRequest(p.ID, 110000))
	s.Require().NoError(err)
	s.Zero(resp.TotalSubscriptionsAffected)
	s.True(resp.Progress.IsComplete)
	s.True(decimal.NewFromInt(100).Equal(resp.Progress.PercentComplete))
}

func (s *ProductPriceChangeServiceSuite) TestGetAndListProductPriceChanges() {
	first := s.CreateProduct(100000)
	second := s.CreateProduct(200000)
	s.CreateSubscription(testutil.WithProduct(first.ID))

	a, err := s.bulk.ProposeBulkChange(s.GetContext(), s.bulkRequest(first.ID, 110000))
	s.Require().NoError(err)
	s.GetClock().Advance(time.Minute)
	b, err := s.bulk.ProposeBulkChange(s.GetContext(), s.bulkRequest(second.ID, 210000))
	s.Require().NoError(err)

	got, err := s.bulk.GetProductPriceChange(s.GetContext(), a.ID)
	s.Require().NoError(err)
	s.Equal(first.ID, got.ProductID)
	s.Equal(1, got.Progress.Total)
	s.Empty(got.Skipped)

	_, err = s.bulk.GetProductPriceChange(s.GetContext(), "ppc_missing")
	s.True(ierr.IsNotFound(err))
	_, err = s.bulk.GetProgress(s.GetContext(), "ppc_missing")
	s.True(ierr.IsNotFound(err))

	s.GetClock().Advance(time.Minute)
	third := s.CreateProduct(300000)
	c, err := s.bulk.ProposeBulkChange(s.GetContext(), s.bulkRequest(third.ID, 310000))
	s.Require().NoError(err)

	all, err := s.bulk.ListProductPriceChanges(s.GetContext(), nil)
	s.Require().NoError(err)
	s.Require().Len(all.Items, 3)
	s.Equal(c.ID, all.Items[0].ID)
	s.Equal(3, all.Pagination.Total)

	// total counts every match, not the page
	paged := types.NewProductPriceChangeFilter()
	paged.Limit = lo.ToPtr(2)
	firstPage, err := s.bulk.ListProductPriceChanges(s.GetContext(), paged)
	s.Require().NoError(err)
	s.Len(firstPage.Items, 2)
	s.Equal(3, firstPage.Pagination.Total)
	s.Equal(2, firstPage.Pagination.Limit)
	s.True(firstPage.Pagination.HasMore)

	paged = types.NewProductPriceChangeFilter()
	paged.Limit = lo.ToPtr(2)
	paged.Offset = lo.ToPtr(2)
	secondPage, err := s.bulk.ListProductPriceChanges(s.GetContext(), paged)
	s.Require().NoError(err)
	s.Require().Len(secondPage.Items, 1)
	s.Equal(a.ID, secondPage.Items[0].ID)
	s.Equal(3, secondPage.Pagination.Total)
	s.False(secondPage.Pagination.HasMore)

	filter := types.NewProductPriceChangeFilter()
	filter.ProductID = second.ID
	filtered, err := s.bulk.ListProductPriceChanges(s.GetContext(), filter)
	s.Require().NoError(err)
	s.Require().Len(filtered.Items, 1)
	s.Equal(b.ID, filtered.Items[0].ID)
	s.Equal(1, filtered.Pagination.Total)
}

// TestRandomInterleavingKeepsInvariants drives proposals, answers, cancellations and
// sweeps in a seeded random order and checks the cross-record invariants after each step
func (s *ProductPriceChangeServiceSuite) TestRandomInterleavingKeepsInvariants() {
	rng := rand.New(rand.NewPCG(7, 11))

	p := s.CreateProduct(100000)
	subs := make([]*subscription.Subscription, 0, 8)
	for i := 0; i < 8; i++ {
		opts := []testutil.SubscriptionOption{testutil.WithProduct(p.ID)}
		if i%3 == 0 {
			opts = append(opts, testutil.WithSubscriptionType(types.SubscriptionTypeVariable))
		}
		subs = append(subs, s.CreateSubscription(opts...))
	}
	var parents []string

	for step := 0; step < 200; step++ {
		switch rng.IntN(6) {
		case 0:
			sub := subs[rng.IntN(len(subs))]
			_, err := s.priceChanges.ProposeChange(s.GetContext(), dto.CreatePriceChangeRequest{
				SubscriptionID:         sub.ID,
				NewAmount:              int64(90000 + rng.IntN(40)*1000),
				Reason:                 "Adjustment",
				ChangeType:             types.PriceChangeTypeCustom,
				ApplicationType:        types.ApplicationTypeImmediate,
				RequiresClientApproval: rng.IntN(2) == 0,
			})
			if err != nil {
				s.True(ierr.IsConflict(err) || ierr.IsValidation(err), "unexpected error: %v", err)
			}
		case 1:
			req := s.bulkRequest(p.ID, int64(100000+(step+1)*100))
			req.RequiresApprovalForFixed = rng.IntN(2) == 0
			req.AutoSuspendFixedUntilApproval = req.RequiresApprovalForFixed
			resp, err := s.bulk.ProposeBulkChange(s.GetContext(), req)
			s.Require().NoError(err)
			parents = append(parents, resp.ID)
		case 2, 3:
			pending := s.pendingChanges()
			if len(pending) == 0 {
				continue
			}
			pc := pending[rng.IntN(len(pending))]
			token := s.getToken(pc.ID)
			if token == nil || !pc.IsAwaitingApproval() {
				continue
			}
			decision := types.ApprovalDecisionApproved
			if rng.IntN(2) == 0 {
				decision = types.ApprovalDecisionRejected
			}
			_, err := s.priceChanges.ResolveApproval(s.GetContext(), dto.ResolveApprovalRequest{
				Token:    lo.FromPtr(token),
				Decision: decision,
			})
			s.Require().NoError(err)
		case 4:
			pending := s.pendingChanges()
			if len(pending) == 0 {
				continue
			}
			_, err := s.priceChanges.CancelChange(s.GetContext(), pending[rng.IntN(len(pending))].ID)
			s.Require().NoError(err)
		case 5:
			s.GetClock().Advance(time.Duration(rng.IntN(72)) * time.Hour)
			s.sweep()
		}

		s.assertInvariants(subs, parents)
	}
}

func (s *ProductPriceChangeServiceSuite) pendingChanges() []*dto.PriceChangeResponse {
	filter := types.NewNoLimitPriceChangeFilter()
	filter.Status = []types.PriceChangeStatus{types.PriceChangeStatusPending}
	resp, err := s.priceChanges.ListPriceChanges(s.GetContext(), filter)
	s.Require().NoError(err)
	return resp.Items
}

func (s *ProductPriceChangeServiceSuite) getToken(id string) *string {
	return s.getChange(id).ApprovalToken
}

func (s *ProductPriceChangeServiceSuite) assertInvariants(subs []*subscription.Subscription, parents []string) {
	pendingBySub := lo.GroupBy(s.pendingChanges(), func(pc *dto.PriceChangeResponse) string {
		return pc.SubscriptionID
	})

	for _, sub := range subs {
		stored := s.MustGetSubscription(sub.ID)
		pending := pendingBySub[sub.ID]
		s.LessOrEqual(len(pending), 1, "subscription %s has more than one pending change", sub.ID)
		if len(pending) == 1 {
			s.Equal(pending[0].ID, lo.FromPtr(stored.PendingPriceChangeID))
		} else {
			s.Nil(stored.PendingPriceChangeID)
			s.False(stored.BillingSuspended)
		}
	}

	for _, id := range parents {
		parent, err := s.GetStores().ProductPriceChangeRepo.Get(s.GetContext(), id)
		s.Require().NoError(err)
		s.LessOrEqual(parent.SubscriptionsApplied+parent.SubscriptionsFailed, parent.TotalSubscriptionsAffected)
		s.GreaterOrEqual(parent.SubscriptionsPendingApproval, 0)
	}
}
