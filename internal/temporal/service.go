package temporal

import (
	"context"

	"github.com/paylinks/pricechange/internal/api/dto"
	"github.com/paylinks/pricechange/internal/config"
	"github.com/paylinks/pricechange/internal/logger"
	"github.com/paylinks/pricechange/internal/temporal/models"
	"github.com/paylinks/pricechange/internal/temporal/workflows"
	"github.com/paylinks/pricechange/internal/types"
	"go.temporal.io/sdk/client"
)

// Service starts price change workflows on demand
type Service struct {
	client *TemporalClient
	log    *logger.Logger
	cfg    *config.Configuration
}

// NewService creates a new Temporal service
func NewService(client *TemporalClient, cfg *config.Configuration, log *logger.Logger) *Service {
	return &Service{
		client: client,
		log:    log,
		cfg:    cfg,
	}
}

// TriggerSweep runs one sweep workflow outside the cron schedule and waits for its summary
func (s *Service) TriggerSweep(ctx context.Context) (*dto.SweepSummary, error) {
	workflowID := models.PriceChangeSweepWorkflowID + "-" + types.GenerateUUID()
	options := client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: s.cfg.Temporal.TaskQueue,
	}

	input := models.PriceChangeSweepWorkflowInput{ActivityTimeout: s.cfg.PriceChange.SweepTimeout}
	run, err := s.client.Client.ExecuteWorkflow(ctx, options, workflows.PriceChangeSweepWorkflow, input)
	if err != nil {
		s.log.Errorw("failed to start price change sweep workflow", "workflow_id", workflowID, "error", err)
		return nil, err
	}

	s.log.Infow("started price change sweep workflow", "workflow_id", workflowID, "run_id", run.GetRunID())

	var summary dto.SweepSummary
	if err := run.Get(ctx, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Close closes the temporal client
func (s *Service) Close() {
	if s.client != nil {
		s.client.Close()
	}
}
