package service

import (
	"context"

	"github.com/paylinks/pricechange/internal/api/dto"
	"github.com/paylinks/pricechange/internal/domain/product"
	"github.com/paylinks/pricechange/internal/domain/productpricechange"
	"github.com/paylinks/pricechange/internal/domain/subscription"
	ierr "github.com/paylinks/pricechange/internal/errors"
	"github.com/paylinks/pricechange/internal/types"
	"github.com/samber/lo"
)

// ProductPriceChangeService fans a product level price change out to the product's subscriptions
type ProductPriceChangeService interface {
	// ProposeBulkChange creates the parent record and one child price change per active
	// subscription of the product. Subscriptions that already have an outstanding change
	// are skipped and reported, they do not count toward the total.
	ProposeBulkChange(ctx context.Context, req dto.CreateProductPriceChangeRequest) (*dto.ProductPriceChangeResponse, error)

	GetProductPriceChange(ctx context.Context, id string) (*dto.ProductPriceChangeResponse, error)

	// GetProgress is a pure read of the parent counters
	GetProgress(ctx context.Context, id string) (*productpricechange.Progress, error)

	ListProductPriceChanges(ctx context.Context, filter *types.ProductPriceChangeFilter) (*dto.ListProductPriceChangesResponse, error)
}

type productPriceChangeService struct {
	ServiceParams
	priceChanges *priceChangeService
}

func NewProductPriceChangeService(params ServiceParams, tokens ApprovalTokenService) ProductPriceChangeService {
	return &productPriceChangeService{
		ServiceParams: params,
		priceChanges: &priceChangeService{
			ServiceParams: params,
			tokens:        tokens,
		},
	}
}

func (s *productPriceChangeService) ProposeBulkChange(
	ctx context.Context,
	req dto.CreateProductPriceChangeRequest,
) (*dto.ProductPriceChangeResponse, error) {
	now := s.Clock.Now()
	if err := req.Validate(now); err != nil {
		return nil, err
	}

	p, err := s.ProductRepo.Get(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	if err := s.validateProduct(p, req.NewBaseAmount); err != nil {
		return nil, err
	}

	parent := req.ToProductPriceChange(ctx, p, now)
	log := s.Logger.WithContext(ctx).With("product_price_change_id", parent.ID, "product_id", p.ID)

	var skipped []dto.SkippedSubscription
	err = s.DB.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.ProductPriceChangeRepo.Create(txCtx, parent); err != nil {
			return err
		}

		filter := types.NewSubscriptionFilter()
		filter.ProductID = p.ID
		filter.SubscriptionStatus = []types.SubscriptionStatus{types.SubscriptionStatusActive}

		subs, err := s.SubRepo.List(txCtx, filter)
		if err != nil {
			return err
		}

		total, pendingApproval := 0, 0
		for _, sub := range subs {
			if reason, skip := skipReason(sub, req.NewBaseAmount); skip {
				skipped = append(skipped, dto.SkippedSubscription{SubscriptionID: sub.ID, Reason: reason})
				log.Infow("skipping subscription in bulk price change",
					"subscription_id", sub.ID,
					"reason", reason)
				continue
			}

			requiresApproval := req.RequiresApprovalForFixed && sub.SubscriptionType == types.SubscriptionTypeFixed
			childReq := req.ToChildRequest(parent.ID, sub.ID, requiresApproval)

			// each child gets its own savepoint so a lost race only skips that subscription
			err := s.DB.WithTx(txCtx, func(childCtx context.Context) error {
				_, err := s.priceChanges.propose(childCtx, childReq, now)
				return err
			})
			if err != nil {
				if ierr.IsConflict(err) {
					skipped = append(skipped, dto.SkippedSubscription{
						SubscriptionID: sub.ID,
						Reason:         dto.SkipReasonPendingPriceChange,
					})
					log.Infow("skipping subscription in bulk price change",
						"subscription_id", sub.ID,
						"reason", dto.SkipReasonPendingPriceChange)
					continue
				}
				return err
			}

			total++
			if requiresApproval {
				pendingApproval++
				if req.AutoSuspendFixedUntilApproval {
					if err := s.SubRepo.SetBillingSuspended(txCtx, sub.ID, true, now); err != nil {
						return err
					}
				}
			}
		}

		return s.ProductPriceChangeRepo.SetTotals(txCtx, parent.ID, total, pendingApproval, len(skipped), now)
	})
	if err != nil {
		return nil, err
	}

	created, err := s.ProductPriceChangeRepo.Get(ctx, parent.ID)
	if err != nil {
		return nil, err
	}

	log.Infow("bulk price change proposed",
		"total_subscriptions_affected", created.TotalSubscriptionsAffected,
		"subscriptions_pending_approval", created.SubscriptionsPendingApproval,
		"subscriptions_skipped", created.SubscriptionsSkipped)

	resp := dto.NewProductPriceChangeResponse(created)
	resp.Skipped = skipped
	return resp, nil
}

func (s *productPriceChangeService) validateProduct(p *product.Product, newBaseAmount int64) error {
	if p.Status != product.StatusActive {
		return ierr.NewError("product is archived").
			WithHint("Price changes can only be proposed on active products").
			WithReportableDetails(map[string]any{
				"product_id": p.ID,
				"status":     p.Status,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	if p.BaseAmount <= 0 {
		return ierr.NewError("product base amount must be positive").
			WithHint("Product has no base amount to change from").
			WithReportableDetails(map[string]any{
				"product_id":  p.ID,
				"base_amount": p.BaseAmount,
			}).
			Mark(ierr.ErrValidation)
	}

	if p.BaseAmount == newBaseAmount {
		return ierr.NewError("new base amount equals the current base amount").
			WithHint("New base amount must differ from the current base amount").
			WithReportableDetails(map[string]any{
				"product_id":  p.ID,
				"base_amount": p.BaseAmount,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// skipReason reports subscriptions that cannot receive a child record
func skipReason(sub *subscription.Subscription, newAmount int64) (dto.SkipReason, bool) {
	switch {
	case sub.HasPendingPriceChange():
		return dto.SkipReasonPendingPriceChange, true
	case sub.Amount <= 0:
		return dto.SkipReasonInvalidAmount, true
	case sub.Amount == newAmount:
		return dto.SkipReasonAmountUnchanged, true
	default:
		return "", false
	}
}

func (s *productPriceChangeService) GetProductPriceChange(ctx context.Context, id string) (*dto.ProductPriceChangeResponse, error) {
	change, err := s.ProductPriceChangeRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewProductPriceChangeResponse(change), nil
}

func (s *productPriceChangeService) GetProgress(ctx context.Context, id string) (*productpricechange.Progress, error) {
	change, err := s.ProductPriceChangeRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return lo.ToPtr(change.Progress()), nil
}

func (s *productPriceChangeService) ListProductPriceChanges(
	ctx context.Context,
	filter *types.ProductPriceChangeFilter,
) (*dto.ListProductPriceChangesResponse, error) {
	if filter == nil {
		filter = types.NewProductPriceChangeFilter()
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	changes, err := s.ProductPriceChangeRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	total, err := s.ProductPriceChangeRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := lo.Map(changes, func(change *productpricechange.ProductPriceChange, _ int) *dto.ProductPriceChangeResponse {
		return dto.NewProductPriceChangeResponse(change)
	})

	resp := types.NewListResponse(items, total, filter.GetLimit(), filter.GetOffset())
	return &resp, nil
}
