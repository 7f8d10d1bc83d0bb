package temporal

import (
	"context"
	"errors"

	"github.com/paylinks/pricechange/internal/config"
	"github.com/paylinks/pricechange/internal/logger"
	"github.com/paylinks/pricechange/internal/service"
	"github.com/paylinks/pricechange/internal/temporal/activities"
	"github.com/paylinks/pricechange/internal/temporal/models"
	"github.com/paylinks/pricechange/internal/temporal/workflows"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/fx"
)

// Worker manages the Temporal worker instance.
type Worker struct {
	client *TemporalClient
	worker worker.Worker
	cfg    *config.Configuration
	log    *logger.Logger
}

// NewWorker creates a new Temporal worker and registers workflows and activities.
func NewWorker(client *TemporalClient, cfg *config.Configuration, scheduler service.PriceChangeSchedulerService, log *logger.Logger) *Worker {
	w := worker.New(client.Client, cfg.Temporal.TaskQueue, worker.Options{})

	RegisterWorkflowsAndActivities(w, activities.NewPriceChangeActivities(scheduler))

	return &Worker{
		client: client,
		worker: w,
		cfg:    cfg,
		log:    log,
	}
}

// Start starts the Temporal worker.
func (w *Worker) Start() error {
	w.log.Infow("starting temporal worker", "task_queue", w.cfg.Temporal.TaskQueue)
	return w.worker.Start()
}

// Stop stops the Temporal worker.
func (w *Worker) Stop() {
	w.log.Info("stopping temporal worker")
	if w.worker != nil {
		w.worker.Stop()
	}
}

// EnsureSweepSchedule starts the cron run of the sweep workflow unless it is already running
func (w *Worker) EnsureSweepSchedule(ctx context.Context) error {
	options := client.StartWorkflowOptions{
		ID:           models.PriceChangeSweepWorkflowID,
		TaskQueue:    w.cfg.Temporal.TaskQueue,
		CronSchedule: w.cfg.Temporal.CronSchedule,
	}

	input := models.PriceChangeSweepWorkflowInput{ActivityTimeout: w.cfg.PriceChange.SweepTimeout}
	_, err := w.client.Client.ExecuteWorkflow(ctx, options, workflows.PriceChangeSweepWorkflow, input)
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &alreadyStarted) {
			w.log.Infow("price change sweep schedule already running", "workflow_id", models.PriceChangeSweepWorkflowID)
			return nil
		}
		return err
	}

	w.log.Infow("started price change sweep schedule",
		"workflow_id", models.PriceChangeSweepWorkflowID,
		"cron_schedule", w.cfg.Temporal.CronSchedule)
	return nil
}

// RegisterWithLifecycle registers the worker with the fx lifecycle.
func (w *Worker) RegisterWithLifecycle(lc fx.Lifecycle) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := w.Start(); err != nil {
				return err
			}
			return w.EnsureSweepSchedule(ctx)
		},
		OnStop: func(ctx context.Context) error {
			done := make(chan struct{})
			go func() {
				w.Stop()
				w.client.Close()
				close(done)
			}()

			select {
			case <-done:
				w.log.Info("temporal worker stopped")
			case <-ctx.Done():
				w.log.Error("timeout while stopping temporal worker")
			}
			return nil
		},
	})
}

// Module provides the temporal client and worker for the temporal_worker run mode
func Module() fx.Option {
	return fx.Options(
		fx.Provide(NewTemporalClient, NewWorker),
		fx.Invoke(func(lc fx.Lifecycle, w *Worker) {
			w.RegisterWithLifecycle(lc)
		}),
	)
}
