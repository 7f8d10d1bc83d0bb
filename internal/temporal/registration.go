package temporal

import (
	"github.com/paylinks/pricechange/internal/temporal/activities"
	"github.com/paylinks/pricechange/internal/temporal/workflows"
	"go.temporal.io/sdk/worker"
)

// RegisterWorkflowsAndActivities registers all workflows and activities with a Temporal worker.
func RegisterWorkflowsAndActivities(w worker.Registry, priceChangeActivities *activities.PriceChangeActivities) {
	w.RegisterWorkflow(workflows.PriceChangeSweepWorkflow)      // "PriceChangeSweepWorkflow"
	w.RegisterActivity(priceChangeActivities.RunScheduledSweep) // "RunScheduledSweep"
}
