package models

import "time"

const (
	// PriceChangeSweepWorkflowID is fixed so only one cron run of the sweep exists per namespace
	PriceChangeSweepWorkflowID = "price-change-sweep"

	// RunScheduledSweepActivity is the registered name of the sweep activity
	RunScheduledSweepActivity = "RunScheduledSweep"

	// DefaultSweepActivityTimeout bounds one sweep attempt
	DefaultSweepActivityTimeout = 15 * time.Minute

	// DefaultMaximumAttempts bounds retries of a sweep that could not list its records
	DefaultMaximumAttempts = 3

	// DefaultInitialInterval is the default initial interval for retry policies
	DefaultInitialInterval = time.Second

	// DefaultMaximumInterval is the default maximum interval for retry policies
	DefaultMaximumInterval = time.Minute
)

// PriceChangeSweepWorkflowInput is the input of PriceChangeSweepWorkflow
type PriceChangeSweepWorkflowInput struct {
	// ActivityTimeout overrides DefaultSweepActivityTimeout when set
	ActivityTimeout time.Duration `json:"activity_timeout,omitempty"`
}
