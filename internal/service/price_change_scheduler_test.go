package service

import (
	"sync"
	"testing"
	"time"

	"github.com/paylinks/pricechange/internal/api/dto"
	ierr "github.com/paylinks/pricechange/internal/errors"
	"github.com/paylinks/pricechange/internal/testutil"
	"github.com/paylinks/pricechange/internal/types"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type PriceChangeSchedulerSuite struct {
	engineSuite
}

func TestPriceChangeScheduler(t *testing.T) {
	suite.Run(t, new(PriceChangeSchedulerSuite))
}

var errStorageDown = ierr.NewError("connection refused").
	WithHint("Storage is unavailable").
	Mark(ierr.ErrDatabase)

func (s *PriceChangeSchedulerSuite) TestImmediateChangeWithoutApprovalIsAppliedBySweep() {
	sub := s.CreateSubscription()
	resp := s.propose(sub.ID, 120000, false, types.ApplicationTypeImmediate, nil)

	summary := s.sweep()
	s.Equal(1, summary.Applied)
	s.Zero(summary.Failed)
	s.Empty(summary.Errors)
	s.NotEmpty(summary.SweepID)

	stored := s.MustGetSubscription(sub.ID)
	s.Equal(int64(120000), stored.Amount)
	s.Equal(1, stored.PriceChangeHistoryCount)
	s.Equal(s.GetNow(), lo.FromPtr(stored.LastPriceChangeDate))
	s.False(stored.HasPendingPriceChange())
	s.Equal(types.SystemUserID, stored.UpdatedBy)

	pc := s.getChange(resp.ID)
	s.Equal(types.PriceChangeStatusApplied, pc.PriceChangeStatus)
	s.Equal(s.GetNow(), lo.FromPtr(pc.AppliedAt))

	s.Equal(float64(1), promtestutil.ToFloat64(s.GetMetrics().Applied))

	// a second sweep finds nothing to do
	again := s.sweep()
	s.Zero(again.Applied)
	s.Equal(1, s.MustGetSubscription(sub.ID).PriceChangeHistoryCount)
}

func (s *PriceChangeSchedulerSuite) TestRejectedChangeIsNeverApplied() {
	sub := s.CreateSubscription()
	resp := s.propose(sub.ID, 120000, true, types.ApplicationTypeImmediate, nil)

	_, err := s.priceChanges.ResolveApproval(s.GetContext(), dto.ResolveApprovalRequest{
		Token:    s.token(resp),
		Decision: types.ApprovalDecisionRejected,
	})
	s.Require().NoError(err)

	s.GetClock().Advance(30 * 24 * time.Hour)
	summary := s.sweep()
	s.Zero(summary.Applied)
	s.Zero(summary.AutoApproved)

	s.Equal(int64(100000), s.MustGetSubscription(sub.ID).Amount)
	s.Equal(types.PriceChangeStatusCancelled, s.getChange(resp.ID).PriceChangeStatus)
}

func (s *PriceChangeSchedulerSuite) TestSilentClientIsAutoApprovedAfterWindow() {
	sub := s.CreateSubscription()
	resp := s.propose(sub.ID, 120000, true, types.ApplicationTypeImmediate, nil)

	s.GetClock().Advance(8 * 24 * time.Hour)
	summary := s.sweep()
	s.Equal(1, summary.AutoApproved)
	s.Equal(1, summary.Applied)

	pc := s.getChange(resp.ID)
	s.Equal(types.PriceChangeStatusApplied, pc.PriceChangeStatus)
	s.Equal(types.ClientApprovalStatusApproved, pc.ClientApprovalStatus)
	s.Equal(types.ApprovalMethodAutoTimeout, lo.FromPtr(pc.ApprovalMethod))
	s.Equal(int64(120000), s.MustGetSubscription(sub.ID).Amount)

	s.Equal(float64(1), promtestutil.ToFloat64(s.GetMetrics().AutoApproved))
}

func (s *PriceChangeSchedulerSuite) TestAutoApprovalFiresExactlyAtWindowAndOnlyOnce() {
	sub := s.CreateSubscription()
	resp := s.propose(sub.ID, 120000, true, types.ApplicationTypeNextCycle, nil)

	s.GetClock().Advance(s.window() - time.Second)
	early := s.sweep()
	s.Zero(early.AutoApproved)
	s.True(s.getChange(resp.ID).IsAwaitingApproval())

	s.GetClock().Advance(time.Second)
	onTime := s.sweep()
	s.Equal(1, onTime.AutoApproved)
	s.Equal(1, onTime.Applied)

	s.GetClock().Advance(time.Hour)
	later := s.sweep()
	s.Zero(later.AutoApproved)
	s.Zero(later.Applied)
	s.Equal(1, s.MustGetSubscription(sub.ID).PriceChangeHistoryCount)
}

func (s *PriceChangeSchedulerSuite) TestClientApprovedChangeIsAppliedOnNextSweep() {
	sub := s.CreateSubscription()
	resp := s.propose(sub.ID, 95000, true, types.ApplicationTypeImmediate, nil)

	pending := s.sweep()
	s.Zero(pending.Applied)

	_, err := s.priceChanges.ResolveApproval(s.GetContext(), dto.ResolveApprovalRequest{
		Token:    s.token(resp),
		Decision: types.ApprovalDecisionApproved,
	})
	s.Require().NoError(err)

	summary := s.sweep()
	s.Equal(1, summary.Applied)
	s.Zero(summary.AutoApproved)
	s.Equal(int64(95000), s.MustGetSubscription(sub.ID).Amount)
	s.Equal(types.ApprovalMethodToken, lo.FromPtr(s.getChange(resp.ID).ApprovalMethod))
}

func (s *PriceChangeSchedulerSuite) TestScheduledChangeWaitsForItsDate() {
	sub := s.CreateSubscription()
	scheduled := s.GetNow().Add(3 * 24 * time.Hour)
	resp := s.propose(sub.ID, 130000, false, types.ApplicationTypeScheduled, &scheduled)

	for _, offset := range []time.Duration{0, 24 * time.Hour, 3*24*time.Hour - time.Second} {
		s.GetClock().Set(resp.CreatedAt.Add(offset))
		summary := s.sweep()
		s.Zero(summary.Applied, "applied %s before the scheduled date", scheduled.Sub(s.GetNow()))
	}

	s.GetClock().Set(scheduled)
	summary := s.sweep()
	s.Equal(1, summary.Applied)
	s.Equal(int64(130000), s.MustGetSubscription(sub.ID).Amount)
}

func (s *PriceChangeSchedulerSuite) TestAutoApprovedScheduledChangeWaitsForItsDate() {
	sub := s.CreateSubscription()
	scheduled := s.GetNow().Add(10 * 24 * time.Hour)
	resp := s.propose(sub.ID, 130000, true, types.ApplicationTypeScheduled, &scheduled)

	s.GetClock().Advance(8 * 24 * time.Hour)
	approved := s.sweep()
	s.Equal(1, approved.AutoApproved)
	s.Zero(approved.Applied)

	pc := s.getChange(resp.ID)
	s.Equal(types.ClientApprovalStatusApproved, pc.ClientApprovalStatus)
	s.Equal(types.PriceChangeStatusPending, pc.PriceChangeStatus)

	s.GetClock().Set(scheduled.Add(time.Hour))
	applied := s.sweep()
	s.Zero(applied.AutoApproved)
	s.Equal(1, applied.Applied)
}

func (s *PriceChangeSchedulerSuite) TestFailingRecordDoesNotBlockOthers() {
	failing := s.CreateSubscription()
	healthy := s.CreateSubscription()
	failingChange := s.propose(failing.ID, 120000, false, types.ApplicationTypeImmediate, nil)
	s.propose(healthy.ID, 120000, false, types.ApplicationTypeImmediate, nil)

	s.GetStores().PriceChangeRepo.SetApplyHook(func(id string) error {
		if id == failingChange.ID {
			return errStorageDown
		}
		return nil
	})

	summary := s.sweep()
	s.Equal(1, summary.Applied)
	s.Equal(1, summary.Failed)
	s.Require().Len(summary.Errors, 1)
	s.Equal(failingChange.ID, summary.Errors[0].PriceChangeID)
	s.Equal(failing.ID, summary.Errors[0].SubscriptionID)
	s.Equal(dto.SweepPassApply, summary.Errors[0].Pass)

	s.Equal(int64(120000), s.MustGetSubscription(healthy.ID).Amount)
	s.Equal(int64(100000), s.MustGetSubscription(failing.ID).Amount)

	pc := s.getChange(failingChange.ID)
	s.Equal(types.PriceChangeStatusPending, pc.PriceChangeStatus)
	s.Equal(1, pc.ApplyAttempts)
	s.NotNil(pc.LastApplyError)
}

func (s *PriceChangeSchedulerSuite) TestStandaloneChangeIsRetriedUntilItSucceeds() {
	sub := s.CreateSubscription()
	resp := s.propose(sub.ID, 120000, false, types.ApplicationTypeImmediate, nil)

	s.GetStores().PriceChangeRepo.SetApplyHook(func(string) error { return errStorageDown })
	attempts := s.GetConfig().PriceChange.MaxApplyAttempts + 2
	for i := 0; i < attempts; i++ {
		summary := s.sweep()
		s.Equal(1, summary.Failed)
		s.Zero(summary.Exhausted)
	}

	pc := s.getChange(resp.ID)
	s.Equal(types.PriceChangeStatusPending, pc.PriceChangeStatus)
	s.Equal(attempts, pc.ApplyAttempts)
	s.Equal(float64(attempts), promtestutil.ToFloat64(s.GetMetrics().ApplyFailures))

	s.GetStores().PriceChangeRepo.SetApplyHook(nil)
	summary := s.sweep()
	s.Equal(1, summary.Applied)
	s.Equal(int64(120000), s.MustGetSubscription(sub.ID).Amount)
}

func (s *PriceChangeSchedulerSuite) TestApplyChangeRejectsIneligibleRecord() {
	sub := s.CreateSubscription()
	resp := s.propose(sub.ID, 120000, true, types.ApplicationTypeImmediate, nil)

	err := s.scheduler.ApplyChange(s.GetContext(), s.getChange(resp.ID), s.GetNow())
	s.True(ierr.IsInvalidOperation(err))
	s.Equal(int64(100000), s.MustGetSubscription(sub.ID).Amount)
}

func (s *PriceChangeSchedulerSuite) TestApplyChangeAppliesOnlyOnce() {
	sub := s.CreateSubscription()
	resp := s.propose(sub.ID, 120000, false, types.ApplicationTypeImmediate, nil)
	stale := s.getChange(resp.ID)

	s.Require().NoError(s.scheduler.ApplyChange(s.GetContext(), stale, s.GetNow()))

	err := s.scheduler.ApplyChange(s.GetContext(), stale, s.GetNow())
	s.True(ierr.IsConflict(err))
	s.Equal(1, s.MustGetSubscription(sub.ID).PriceChangeHistoryCount)
}

func (s *PriceChangeSchedulerSuite) TestAppliedChangeRecordsNotification() {
	sub := s.CreateSubscription()
	resp := s.propose(sub.ID, 120000, false, types.ApplicationTypeImmediate, nil)

	s.sweep()

	notifications, err := s.notifications.ListNotifications(s.GetContext(), &types.NotificationFilter{SubscriptionID: sub.ID})
	s.Require().NoError(err)
	s.Require().Len(notifications, 1)

	n := notifications[0]
	s.Equal(types.NotificationEventPriceChangeApplied, n.Event)
	s.Equal(types.NotificationChannelWhatsApp, n.Channel)
	s.Equal(lo.FromPtr(sub.CustomerPhone), n.Recipient)
	s.Equal(resp.ID, lo.FromPtr(n.PriceChangeID))
	s.Contains(n.Message, "1000.00 KES")
	s.Contains(n.Message, "1200.00 KES")

	messages := s.GetPubSub().GetMessages(s.GetConfig().Notification.Topic)
	s.Require().Len(messages, 1)
	s.Equal(n.ID, messages[0].UUID)
	s.Equal(string(types.NotificationEventPriceChangeApplied), messages[0].Metadata.Get("event"))
}

func (s *PriceChangeSchedulerSuite) TestNotificationFailureDoesNotUndoApplication() {
	sub := s.CreateSubscription()
	s.propose(sub.ID, 120000, false, types.ApplicationTypeImmediate, nil)

	s.GetPubSub().FailNext(100)
	summary := s.sweep()
	s.Equal(1, summary.Applied)
	s.Empty(summary.Errors)
	s.Equal(int64(120000), s.MustGetSubscription(sub.ID).Amount)

	// the record survives the failed publish, retries are bounded
	notifications, err := s.notifications.ListNotifications(s.GetContext(), nil)
	s.Require().NoError(err)
	s.Len(notifications, 1)
	s.Equal(s.GetConfig().PriceChange.NotificationRetries+1, s.GetPubSub().Attempts())
}

func (s *PriceChangeSchedulerSuite) TestSubscriptionWithoutContactGetsNoNotification() {
	sub := s.CreateSubscription(testutil.WithContact(nil, nil))
	s.propose(sub.ID, 120000, false, types.ApplicationTypeImmediate, nil)

	summary := s.sweep()
	s.Equal(1, summary.Applied)

	notifications, err := s.notifications.ListNotifications(s.GetContext(), nil)
	s.Require().NoError(err)
	s.Empty(notifications)
}

func (s *PriceChangeSchedulerSuite) TestClientApprovalRacingAutoApprovalAppliesOnce() {
	const subscriptions = 20
	tokens := make(map[string]string, subscriptions)
	for i := 0; i < subscriptions; i++ {
		sub := s.CreateSubscription()
		resp := s.propose(sub.ID, 120000, true, types.ApplicationTypeImmediate, nil)
		tokens[sub.ID] = s.token(resp)
	}

	s.GetClock().Advance(s.window())

	var wg sync.WaitGroup
	for _, token := range tokens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.priceChanges.ResolveApproval(s.GetContext(), dto.ResolveApprovalRequest{
				Token:    token,
				Decision: types.ApprovalDecisionApproved,
			})
			if err != nil {
				s.True(ierr.IsNotFound(err), "unexpected error: %v", err)
			}
		}()
	}
	_, err := s.scheduler.RunScheduledSweep(s.GetContext())
	wg.Wait()
	s.Require().NoError(err)

	// whatever the sweep left behind is applied by the next one
	s.sweep()

	for subID := range tokens {
		stored := s.MustGetSubscription(subID)
		s.Equal(int64(120000), stored.Amount)
		s.Equal(1, stored.PriceChangeHistoryCount)
		s.False(stored.HasPendingPriceChange())
	}
}

func (s *PriceChangeSchedulerSuite) TestClientRejectionRacingAutoApprovalIsConsistent() {
	const subscriptions = 20
	tokens := make(map[string]string, subscriptions)
	for i := 0; i < subscriptions; i++ {
		sub := s.CreateSubscription()
		resp := s.propose(sub.ID, 120000, true, types.ApplicationTypeImmediate, nil)
		tokens[sub.ID] = s.token(resp)
	}

	s.GetClock().Advance(s.window())

	var wg sync.WaitGroup
	for _, token := range tokens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.priceChanges.ResolveApproval(s.GetContext(), dto.ResolveApprovalRequest{
				Token:    token,
				Decision: types.ApprovalDecisionRejected,
			})
		}()
	}
	s.sweep()
	wg.Wait()
	s.sweep()

	for subID := range tokens {
		stored := s.MustGetSubscription(subID)
		s.False(stored.HasPendingPriceChange())

		changes, err := s.priceChanges.ListPriceChanges(s.GetContext(), &types.PriceChangeFilter{SubscriptionID: subID})
		s.Require().NoError(err)
		s.Require().Len(changes.Items, 1)

		switch changes.Items[0].PriceChangeStatus {
		case types.PriceChangeStatusApplied:
			s.Equal(types.ApprovalMethodAutoTimeout, lo.FromPtr(changes.Items[0].ApprovalMethod))
			s.Equal(int64(120000), stored.Amount)
			s.Equal(1, stored.PriceChangeHistoryCount)
		case types.PriceChangeStatusCancelled:
			s.Equal(types.ClientApprovalStatusRejected, changes.Items[0].ClientApprovalStatus)
			s.Equal(int64(100000), stored.Amount)
			s.Zero(stored.PriceChangeHistoryCount)
		default:
			s.Failf("unexpected status", "status %s", changes.Items[0].PriceChangeStatus)
		}
	}
}
