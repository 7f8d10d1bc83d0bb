package workflows

import (
	"github.com/paylinks/pricechange/internal/api/dto"
	"github.com/paylinks/pricechange/internal/temporal/models"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// PriceChangeSweepWorkflow runs one price change sweep. It is started on a cron schedule.
func PriceChangeSweepWorkflow(ctx workflow.Context, input models.PriceChangeSweepWorkflowInput) (*dto.SweepSummary, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting price change sweep workflow")

	timeout := input.ActivityTimeout
	if timeout <= 0 {
		timeout = models.DefaultSweepActivityTimeout
	}

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    models.DefaultInitialInterval,
			BackoffCoefficient: 2.0,
			MaximumInterval:    models.DefaultMaximumInterval,
			MaximumAttempts:    models.DefaultMaximumAttempts,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var summary dto.SweepSummary
	if err := workflow.ExecuteActivity(ctx, models.RunScheduledSweepActivity).Get(ctx, &summary); err != nil {
		logger.Error("Price change sweep failed", "error", err)
		return nil, err
	}

	logger.Info("Price change sweep finished",
		"sweepID", summary.SweepID,
		"applied", summary.Applied,
		"autoApproved", summary.AutoApproved,
		"failed", summary.Failed)

	return &summary, nil
}
