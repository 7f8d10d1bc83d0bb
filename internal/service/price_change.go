package service

import (
	"context"
	"time"

	"github.com/paylinks/pricechange/internal/api/dto"
	"github.com/paylinks/pricechange/internal/domain/pricechange"
	"github.com/paylinks/pricechange/internal/domain/subscription"
	ierr "github.com/paylinks/pricechange/internal/errors"
	"github.com/paylinks/pricechange/internal/types"
	"github.com/samber/lo"
)

// PriceChangeService proposes and resolves price changes on single subscriptions
type PriceChangeService interface {
	// ProposeChange creates a pending price change and attaches it to the subscription.
	// Fails with ErrConflict while another change is outstanding on the subscription.
	ProposeChange(ctx context.Context, req dto.CreatePriceChangeRequest) (*dto.PriceChangeResponse, error)

	// ResolveApproval consumes an approval token. Tokens are single use, a second
	// call fails with ErrNotFound.
	ResolveApproval(ctx context.Context, req dto.ResolveApprovalRequest) (*dto.PriceChangeResponse, error)

	// GetApprovalDetails returns the client facing view behind an approval link
	GetApprovalDetails(ctx context.Context, token string) (*dto.ApprovalDetailsResponse, error)

	// CancelChange withdraws a pending change on behalf of the merchant
	CancelChange(ctx context.Context, id string) (*dto.PriceChangeResponse, error)

	GetPriceChange(ctx context.Context, id string) (*dto.PriceChangeResponse, error)
	ListPriceChanges(ctx context.Context, filter *types.PriceChangeFilter) (*dto.ListPriceChangesResponse, error)
}

type priceChangeService struct {
	ServiceParams
	tokens ApprovalTokenService
}

func NewPriceChangeService(params ServiceParams, tokens ApprovalTokenService) PriceChangeService {
	return &priceChangeService{
		ServiceParams: params,
		tokens:        tokens,
	}
}

func (s *priceChangeService) ProposeChange(ctx context.Context, req dto.CreatePriceChangeRequest) (*dto.PriceChangeResponse, error) {
	now := s.Clock.Now()
	if err := req.Validate(now); err != nil {
		return nil, err
	}

	var pc *pricechange.PriceChange
	err := s.DB.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		pc, err = s.propose(txCtx, req, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	resp := dto.NewPriceChangeResponse(pc, s.Config.PriceChange.ApprovalWindow)
	resp.ApprovalToken = pc.ApprovalToken
	return resp, nil
}

// propose runs inside the caller's transaction. The bulk fan-out calls it once per subscription.
func (s *priceChangeService) propose(ctx context.Context, req dto.CreatePriceChangeRequest, now time.Time) (*pricechange.PriceChange, error) {
	sub, err := s.SubRepo.Get(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}

	if err := s.validateSubscription(sub, req.NewAmount); err != nil {
		return nil, err
	}

	var token *string
	if req.RequiresClientApproval {
		t, err := s.tokens.GenerateToken()
		if err != nil {
			return nil, err
		}
		token = lo.ToPtr(t)
	}

	pc := req.ToPriceChange(ctx, sub.Amount, token, now)

	// The guarded attach serializes concurrent proposals on the subscription row.
	// The foreign key to the record is checked at commit.
	if err := s.SubRepo.AttachPendingPriceChange(ctx, sub.ID, pc.ID, now); err != nil {
		return nil, err
	}

	if err := s.PriceChangeRepo.Create(ctx, pc); err != nil {
		return nil, err
	}

	kind := "single"
	if pc.IsBulkChild() {
		kind = "bulk_child"
	}
	s.Metrics.RecordProposed(kind)

	s.Logger.WithContext(ctx).Infow("price change proposed",
		"price_change_id", pc.ID,
		"subscription_id", pc.SubscriptionID,
		"product_price_change_id", lo.FromPtr(pc.ProductPriceChangeID),
		"old_amount", pc.OldAmount,
		"new_amount", pc.NewAmount,
		"application_type", pc.ApplicationType,
		"requires_client_approval", pc.RequiresClientApproval)

	return pc, nil
}

func (s *priceChangeService) validateSubscription(sub *subscription.Subscription, newAmount int64) error {
	switch sub.SubscriptionStatus {
	case types.SubscriptionStatusCancelled, types.SubscriptionStatusExpired:
		return ierr.NewError("subscription is no longer billed").
			WithHint("Price changes can only be proposed on active or paused subscriptions").
			WithReportableDetails(map[string]any{
				"subscription_id":     sub.ID,
				"subscription_status": sub.SubscriptionStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	if sub.HasPendingPriceChange() {
		return ierr.NewError("subscription already has a pending price change").
			WithHint("Resolve or cancel the outstanding price change first").
			WithReportableDetails(map[string]any{
				"subscription_id":         sub.ID,
				"pending_price_change_id": lo.FromPtr(sub.PendingPriceChangeID),
			}).
			Mark(ierr.ErrConflict)
	}

	if sub.Amount <= 0 {
		return ierr.NewError("subscription amount must be positive").
			WithHint("Subscription has no amount to change from").
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
				"amount":          sub.Amount,
			}).
			Mark(ierr.ErrValidation)
	}

	if sub.Amount == newAmount {
		return ierr.NewError("new amount equals the current amount").
			WithHint("New amount must differ from the current amount").
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
				"amount":          sub.Amount,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (s *priceChangeService) ResolveApproval(ctx context.Context, req dto.ResolveApprovalRequest) (*dto.PriceChangeResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	pc, err := s.tokens.ValidateToken(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	decision := types.ClientApprovalStatus(req.Decision)

	err = s.DB.WithTx(ctx, func(txCtx context.Context) error {
		return resolveApproval(txCtx, s.ServiceParams, pc, decision, types.ApprovalMethodToken, now)
	})
	if err != nil {
		if ierr.IsConflict(err) {
			// someone else consumed the approval between the read and the write
			return nil, ierr.WithError(err).
				WithHint("Approval link is invalid or has already been used").
				Mark(ierr.ErrNotFound)
		}
		return nil, err
	}

	return s.GetPriceChange(ctx, pc.ID)
}

// resolveApproval performs the guarded approval transition and its side effects.
// Shared by the client path and the timeout path of the scheduler.
func resolveApproval(
	ctx context.Context,
	params ServiceParams,
	pc *pricechange.PriceChange,
	decision types.ClientApprovalStatus,
	method types.ApprovalMethod,
	now time.Time,
) error {
	if err := params.PriceChangeRepo.ResolveApproval(ctx, pc.ID, decision, method, now); err != nil {
		return err
	}

	if decision == types.ClientApprovalStatusRejected {
		if err := params.SubRepo.ClearPendingPriceChange(ctx, pc.SubscriptionID, pc.ID, now); err != nil {
			return err
		}
	}

	if pc.IsBulkChild() {
		if err := adjustParent(ctx, params, pc, params.ProductPriceChangeRepo.DecrementPendingApproval); err != nil {
			return err
		}
		if decision == types.ClientApprovalStatusRejected {
			if err := adjustParent(ctx, params, pc, params.ProductPriceChangeRepo.IncrementFailed); err != nil {
				return err
			}
		}
	}

	params.Metrics.RecordApprovalResolved(string(decision), string(method))
	params.Logger.WithContext(ctx).Infow("price change approval resolved",
		"price_change_id", pc.ID,
		"subscription_id", pc.SubscriptionID,
		"decision", decision,
		"method", method)

	return nil
}

// adjustParent applies one counter update to the bulk parent of pc. A counter
// that refuses to move is reported and otherwise ignored so the child transition
// is never blocked by parent bookkeeping.
func adjustParent(
	ctx context.Context,
	params ServiceParams,
	pc *pricechange.PriceChange,
	update func(ctx context.Context, id string) error,
) error {
	parentID := lo.FromPtr(pc.ProductPriceChangeID)
	if err := update(ctx, parentID); err != nil {
		if !ierr.IsConflict(err) {
			return err
		}
		params.Logger.WithContext(ctx).Errorw("product price change counter refused update",
			"product_price_change_id", parentID,
			"price_change_id", pc.ID,
			"error", err)
		params.Sentry.CaptureExceptionWithTags(err, map[string]string{
			"product_price_change_id": parentID,
			"price_change_id":         pc.ID,
		})
	}
	return nil
}

func (s *priceChangeService) GetApprovalDetails(ctx context.Context, token string) (*dto.ApprovalDetailsResponse, error) {
	pc, err := s.tokens.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	sub, err := s.SubRepo.Get(ctx, pc.SubscriptionID)
	if err != nil {
		return nil, err
	}

	return &dto.ApprovalDetailsResponse{
		PriceChangeID:    pc.ID,
		SubscriptionID:   pc.SubscriptionID,
		CustomerName:     sub.CustomerName,
		Currency:         sub.Currency,
		OldAmount:        pc.OldAmount,
		NewAmount:        pc.NewAmount,
		Difference:       pc.Difference,
		PercentageChange: pc.PercentageChange,
		ChangeType:       pc.ChangeType,
		Reason:           pc.Reason,
		ApplicationType:  pc.ApplicationType,
		ScheduledDate:    pc.ScheduledDate,
		ApprovalDeadline: pc.CreatedAt.Add(s.Config.PriceChange.ApprovalWindow),
		ProposedAt:       pc.CreatedAt,
	}, nil
}

func (s *priceChangeService) CancelChange(ctx context.Context, id string) (*dto.PriceChangeResponse, error) {
	pc, err := s.PriceChangeRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !pc.IsPending() {
		return nil, ierr.NewError("price change is not pending").
			WithHint("Only pending price changes can be cancelled").
			WithReportableDetails(map[string]any{
				"price_change_id":     pc.ID,
				"price_change_status": pc.PriceChangeStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	now := s.Clock.Now()
	err = s.DB.WithTx(ctx, func(txCtx context.Context) error {
		return cancelPending(txCtx, s.ServiceParams, pc, types.CancellationReasonMerchantCancelled, now)
	})
	if err != nil {
		return nil, err
	}

	return s.GetPriceChange(ctx, pc.ID)
}

// cancelPending withdraws a pending record, releases its subscription and
// counts a bulk child as failed on the parent
func cancelPending(
	ctx context.Context,
	params ServiceParams,
	pc *pricechange.PriceChange,
	reason types.CancellationReason,
	now time.Time,
) error {
	if err := params.PriceChangeRepo.MarkCancelled(ctx, pc.ID, reason, now); err != nil {
		return err
	}

	if err := params.SubRepo.ClearPendingPriceChange(ctx, pc.SubscriptionID, pc.ID, now); err != nil {
		return err
	}

	if pc.IsBulkChild() {
		if pc.IsAwaitingApproval() {
			if err := adjustParent(ctx, params, pc, params.ProductPriceChangeRepo.DecrementPendingApproval); err != nil {
				return err
			}
		}
		if err := adjustParent(ctx, params, pc, params.ProductPriceChangeRepo.IncrementFailed); err != nil {
			return err
		}
	}

	params.Logger.WithContext(ctx).Infow("price change cancelled",
		"price_change_id", pc.ID,
		"subscription_id", pc.SubscriptionID,
		"reason", reason)

	return nil
}

func (s *priceChangeService) GetPriceChange(ctx context.Context, id string) (*dto.PriceChangeResponse, error) {
	pc, err := s.PriceChangeRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewPriceChangeResponse(pc, s.Config.PriceChange.ApprovalWindow), nil
}

func (s *priceChangeService) ListPriceChanges(ctx context.Context, filter *types.PriceChangeFilter) (*dto.ListPriceChangesResponse, error) {
	if filter == nil {
		filter = types.NewPriceChangeFilter()
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}

	if err := filter.Validate(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation)
	}

	changes, err := s.PriceChangeRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	total, err := s.PriceChangeRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := lo.Map(changes, func(pc *pricechange.PriceChange, _ int) *dto.PriceChangeResponse {
		return dto.NewPriceChangeResponse(pc, s.Config.PriceChange.ApprovalWindow)
	})

	resp := types.NewListResponse(items, total, filter.GetLimit(), filter.GetOffset())
	return &resp, nil
}
