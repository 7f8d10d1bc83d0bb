package activities

import (
	"context"

	"github.com/paylinks/pricechange/internal/api/dto"
	"github.com/paylinks/pricechange/internal/service"
)

// PriceChangeActivities contains the activities of the price change sweep
type PriceChangeActivities struct {
	scheduler service.PriceChangeSchedulerService
}

// NewPriceChangeActivities creates a new PriceChangeActivities instance
func NewPriceChangeActivities(scheduler service.PriceChangeSchedulerService) *PriceChangeActivities {
	return &PriceChangeActivities{
		scheduler: scheduler,
	}
}

// RunScheduledSweep runs one sweep.
// This method will be registered as "RunScheduledSweep" in Temporal
func (a *PriceChangeActivities) RunScheduledSweep(ctx context.Context) (*dto.SweepSummary, error) {
	return a.scheduler.RunScheduledSweep(ctx)
}
