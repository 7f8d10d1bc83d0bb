package service

import (
	"context"
	"sync"
	"time"

	"github.com/paylinks/pricechange/internal/api/dto"
	"github.com/paylinks/pricechange/internal/domain/pricechange"
	ierr "github.com/paylinks/pricechange/internal/errors"
	"github.com/paylinks/pricechange/internal/types"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
)

// PriceChangeSchedulerService runs the periodic sweep that applies eligible changes
// and turns expired approval windows into consent
type PriceChangeSchedulerService interface {
	// RunScheduledSweep processes every eligible record once. Per-record failures end up
	// in the summary and never abort the sweep. Safe to re-run at any time.
	RunScheduledSweep(ctx context.Context) (*dto.SweepSummary, error)

	// ApplyChange moves one eligible record to applied and updates its subscription
	ApplyChange(ctx context.Context, pc *pricechange.PriceChange, now time.Time) error
}

type priceChangeSchedulerService struct {
	ServiceParams
	notifications NotificationService
}

func NewPriceChangeSchedulerService(params ServiceParams, notifications NotificationService) PriceChangeSchedulerService {
	return &priceChangeSchedulerService{
		ServiceParams: params,
		notifications: notifications,
	}
}

// sweepRecorder collects per-record outcomes from concurrent workers
type sweepRecorder struct {
	mu      sync.Mutex
	summary *dto.SweepSummary
}

func (r *sweepRecorder) add(fn func(summary *dto.SweepSummary)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.summary)
}

func (r *sweepRecorder) recordError(pc *pricechange.PriceChange, pass dto.SweepPass, err error) {
	r.add(func(summary *dto.SweepSummary) {
		recordErr := dto.RecordError{Pass: pass, Error: err.Error()}
		if pc != nil {
			recordErr.PriceChangeID = pc.ID
			recordErr.SubscriptionID = pc.SubscriptionID
		}
		summary.Errors = append(summary.Errors, recordErr)
	})
}

func (s *priceChangeSchedulerService) RunScheduledSweep(ctx context.Context) (*dto.SweepSummary, error) {
	sweepID := types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SWEEP)
	ctx = types.SetSweepID(ctx, sweepID)
	ctx = types.SetUserID(ctx, types.SystemUserID)

	ctx, cancel := context.WithTimeout(ctx, s.Config.PriceChange.SweepTimeout)
	defer cancel()

	log := s.Logger.WithContext(ctx)
	now := s.Clock.Now()
	started := time.Now()

	recorder := &sweepRecorder{
		summary: &dto.SweepSummary{
			SweepID:   sweepID,
			StartedAt: now,
			Errors:    []dto.RecordError{},
		},
	}

	log.Infow("starting price change sweep", "now", now)

	s.applyEligible(ctx, now, recorder)
	s.autoApproveExpired(ctx, now, recorder)

	summary := recorder.summary
	summary.FinishedAt = s.Clock.Now()
	s.Metrics.ObserveSweep(time.Since(started))

	if ctx.Err() != nil {
		log.Warnw("price change sweep stopped early, remaining records wait for the next sweep",
			"error", ctx.Err())
	}

	log.Infow("finished price change sweep",
		"applied", summary.Applied,
		"auto_approved", summary.AutoApproved,
		"failed", summary.Failed,
		"exhausted", summary.Exhausted,
		"errors", len(summary.Errors))

	return summary, nil
}

// applyEligible is pass A: apply every pending record whose approval and date conditions hold
func (s *priceChangeSchedulerService) applyEligible(ctx context.Context, now time.Time, recorder *sweepRecorder) {
	eligible, err := s.PriceChangeRepo.ListEligibleForApplication(ctx, now)
	if err != nil {
		s.Logger.WithContext(ctx).Errorw("failed to list eligible price changes", "error", err)
		s.Sentry.CaptureExceptionWithTags(err, map[string]string{"sweep_id": types.GetSweepID(ctx)})
		recorder.recordError(nil, dto.SweepPassApply, err)
		return
	}

	p := pool.New().WithMaxGoroutines(s.Config.PriceChange.SweepConcurrency)
	for _, pc := range eligible {
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			s.applyAndRecord(ctx, pc, now, dto.SweepPassApply, recorder)
		})
	}
	p.Wait()
}

// autoApproveExpired is pass B: approve records whose client stayed silent for the whole
// approval window, then apply the ones that are eligible right away
func (s *priceChangeSchedulerService) autoApproveExpired(ctx context.Context, now time.Time, recorder *sweepRecorder) {
	cutoff := now.Add(-s.Config.PriceChange.ApprovalWindow)
	expired, err := s.PriceChangeRepo.ListExpiredApprovals(ctx, cutoff)
	if err != nil {
		s.Logger.WithContext(ctx).Errorw("failed to list expired approvals", "error", err)
		s.Sentry.CaptureExceptionWithTags(err, map[string]string{"sweep_id": types.GetSweepID(ctx)})
		recorder.recordError(nil, dto.SweepPassAutoApprove, err)
		return
	}

	p := pool.New().WithMaxGoroutines(s.Config.PriceChange.SweepConcurrency)
	for _, pc := range expired {
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			if !pc.IsApprovalExpired(now, s.Config.PriceChange.ApprovalWindow) {
				return
			}

			err := s.DB.WithTx(ctx, func(txCtx context.Context) error {
				return resolveApproval(txCtx, s.ServiceParams, pc, types.ClientApprovalStatusApproved, types.ApprovalMethodAutoTimeout, now)
			})
			if err != nil {
				if ierr.IsConflict(err) {
					// the client answered first
					s.Logger.WithContext(ctx).Debugw("approval resolved before timeout", "price_change_id", pc.ID)
					return
				}
				s.reportFailure(ctx, pc, dto.SweepPassAutoApprove, err)
				recorder.recordError(pc, dto.SweepPassAutoApprove, err)
				return
			}

			s.Metrics.RecordAutoApproved()
			recorder.add(func(summary *dto.SweepSummary) { summary.AutoApproved++ })

			approved := *pc
			approved.ClientApprovalStatus = types.ClientApprovalStatusApproved
			approved.ClientApprovalDate = lo.ToPtr(now)
			approved.ApprovalMethod = lo.ToPtr(types.ApprovalMethodAutoTimeout)
			if !approved.IsEligible(now) {
				// scheduled for later, pass A picks it up once the date arrives
				return
			}
			s.applyAndRecord(ctx, &approved, now, dto.SweepPassAutoApprove, recorder)
		})
	}
	p.Wait()
}

// applyAndRecord applies one record and does the retry bookkeeping on failure
func (s *priceChangeSchedulerService) applyAndRecord(
	ctx context.Context,
	pc *pricechange.PriceChange,
	now time.Time,
	pass dto.SweepPass,
	recorder *sweepRecorder,
) {
	applyErr := s.ApplyChange(ctx, pc, now)
	if applyErr == nil {
		recorder.add(func(summary *dto.SweepSummary) { summary.Applied++ })
		return
	}

	log := s.Logger.WithContext(ctx)

	attempts, err := s.PriceChangeRepo.RecordApplyFailure(ctx, pc.ID, applyErr.Error(), now)
	if err != nil {
		if ierr.IsConflict(err) {
			// applied or cancelled by a concurrent caller, nothing left to retry
			log.Debugw("price change left pending state during apply", "price_change_id", pc.ID)
			return
		}
		log.Errorw("failed to record apply failure", "price_change_id", pc.ID, "error", err)
	}

	s.Metrics.RecordApplyFailure()
	s.reportFailure(ctx, pc, pass, applyErr)
	recorder.add(func(summary *dto.SweepSummary) { summary.Failed++ })
	recorder.recordError(pc, pass, applyErr)

	if err != nil || !pc.IsBulkChild() || attempts < s.Config.PriceChange.MaxApplyAttempts {
		// standalone records stay pending and are retried on every sweep
		return
	}

	err = s.DB.WithTx(ctx, func(txCtx context.Context) error {
		return cancelPending(txCtx, s.ServiceParams, pc, types.CancellationReasonApplyRetriesExhausted, now)
	})
	if err != nil {
		if ierr.IsConflict(err) {
			return
		}
		log.Errorw("failed to give up on price change after last attempt",
			"price_change_id", pc.ID,
			"attempts", attempts,
			"error", err)
		recorder.recordError(pc, pass, err)
		return
	}

	s.Metrics.RecordRetriesExhausted()
	recorder.add(func(summary *dto.SweepSummary) { summary.Exhausted++ })
	log.Warnw("gave up on bulk price change after last attempt",
		"price_change_id", pc.ID,
		"product_price_change_id", lo.FromPtr(pc.ProductPriceChangeID),
		"attempts", attempts)
}

func (s *priceChangeSchedulerService) reportFailure(ctx context.Context, pc *pricechange.PriceChange, pass dto.SweepPass, err error) {
	s.Logger.WithContext(ctx).Warnw("failed to process price change",
		"price_change_id", pc.ID,
		"subscription_id", pc.SubscriptionID,
		"pass", pass,
		"transient", ierr.IsTransient(err),
		"error", err)
	s.Sentry.CaptureExceptionWithTags(err, map[string]string{
		"sweep_id":        types.GetSweepID(ctx),
		"price_change_id": pc.ID,
		"pass":            string(pass),
	})
}

func (s *priceChangeSchedulerService) ApplyChange(ctx context.Context, pc *pricechange.PriceChange, now time.Time) error {
	if !pc.IsEligible(now) {
		return ierr.NewError("price change is not eligible to apply").
			WithHint("Price change must be pending, approved and due").
			WithReportableDetails(map[string]any{
				"price_change_id":        pc.ID,
				"price_change_status":    pc.PriceChangeStatus,
				"client_approval_status": pc.ClientApprovalStatus,
				"application_type":       pc.ApplicationType,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	err := s.DB.WithTx(ctx, func(txCtx context.Context) error {
		// the guarded status write decides the winner before the subscription is touched
		if err := s.PriceChangeRepo.MarkApplied(txCtx, pc.ID, now); err != nil {
			return err
		}

		if err := s.SubRepo.ApplyPriceChange(txCtx, pc.SubscriptionID, pc.ID, pc.NewAmount, now); err != nil {
			return err
		}

		if pc.IsBulkChild() {
			return adjustParent(txCtx, s.ServiceParams, pc, s.ProductPriceChangeRepo.IncrementApplied)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Metrics.RecordApplied()
	s.Logger.WithContext(ctx).Infow("price change applied",
		"price_change_id", pc.ID,
		"subscription_id", pc.SubscriptionID,
		"old_amount", pc.OldAmount,
		"new_amount", pc.NewAmount)

	// best effort, the applied status is authoritative
	if err := s.notifications.RecordPriceChangeApplied(ctx, pc); err != nil {
		s.Logger.WithContext(ctx).Warnw("failed to record price change notification",
			"price_change_id", pc.ID,
			"subscription_id", pc.SubscriptionID,
			"error", err)
	}

	return nil
}
