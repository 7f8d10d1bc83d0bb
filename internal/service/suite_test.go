package service

import (
	"time"

	"github.com/paylinks/pricechange/internal/api/dto"
	"github.com/paylinks/pricechange/internal/domain/pricechange"
	"github.com/paylinks/pricechange/internal/testutil"
	"github.com/paylinks/pricechange/internal/types"
	"github.com/samber/lo"
)

// engineSuite wires every service of the engine against the in-memory stores
type engineSuite struct {
	testutil.BaseServiceTestSuite
	params        ServiceParams
	tokens        ApprovalTokenService
	notifications NotificationService
	priceChanges  PriceChangeService
	scheduler     PriceChangeSchedulerService
	bulk          ProductPriceChangeService
}

func (s *engineSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.setupServices()
}

func (s *engineSuite) setupServices() {
	stores := s.GetStores()
	s.params = NewServiceParams(
		s.GetLogger(),
		s.GetConfig(),
		s.GetDB(),
		s.GetClock(),
		stores.SubscriptionRepo,
		stores.ProductRepo,
		stores.PriceChangeRepo,
		stores.ProductPriceChangeRepo,
		stores.NotificationRepo,
		s.GetPubSub(),
		s.GetSentry(),
		s.GetMetrics(),
	)
	s.tokens = NewApprovalTokenService(s.params)
	s.notifications = NewNotificationService(s.params)
	s.priceChanges = NewPriceChangeService(s.params, s.tokens)
	s.scheduler = NewPriceChangeSchedulerService(s.params, s.notifications)
	s.bulk = NewProductPriceChangeService(s.params, s.tokens)
}

func (s *engineSuite) window() time.Duration {
	return s.GetConfig().PriceChange.ApprovalWindow
}

// propose creates a change on subID and fails the test on error
func (s *engineSuite) propose(subID string, newAmount int64, requiresApproval bool, appType types.ApplicationType, scheduled *time.Time) *dto.PriceChangeResponse {
	resp, err := s.priceChanges.ProposeChange(s.GetContext(), dto.CreatePriceChangeRequest{
		SubscriptionID:         subID,
		NewAmount:              newAmount,
		Reason:                 "Annual price review",
		ChangeType:             types.PriceChangeTypeInflation,
		ApplicationType:        appType,
		ScheduledDate:          scheduled,
		RequiresClientApproval: requiresApproval,
	})
	s.Require().NoError(err)
	return resp
}

func (s *engineSuite) sweep() *dto.SweepSummary {
	summary, err := s.scheduler.RunScheduledSweep(s.GetContext())
	s.Require().NoError(err)
	return summary
}

func (s *engineSuite) getChange(id string) *pricechange.PriceChange {
	pc, err := s.GetStores().PriceChangeRepo.Get(s.GetContext(), id)
	s.Require().NoError(err)
	return pc
}

func (s *engineSuite) token(resp *dto.PriceChangeResponse) string {
	s.Require().NotNil(resp.ApprovalToken)
	return lo.FromPtr(resp.ApprovalToken)
}
