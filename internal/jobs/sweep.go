package jobs

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-redsync/redsync/v4"
	"github.com/paylinks/pricechange/internal/api/dto"
	"github.com/paylinks/pricechange/internal/config"
	ierr "github.com/paylinks/pricechange/internal/errors"
	"github.com/paylinks/pricechange/internal/logger"
	"github.com/paylinks/pricechange/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
)

// sweepLockName is shared by every replica running the in-process trigger
const sweepLockName = "pricechange:sweep"

// SweepJob triggers the price change sweep on a cron schedule. A redis lock keeps
// overlapping triggers from different replicas down to one running sweep; the sweep
// itself stays correct without it.
type SweepJob struct {
	cron      *cron.Cron
	scheduler service.PriceChangeSchedulerService
	locks     *redsync.Redsync
	cfg       *config.Configuration
	logger    *logger.Logger
}

func NewSweepJob(
	cfg *config.Configuration,
	log *logger.Logger,
	scheduler service.PriceChangeSchedulerService,
	locks *redsync.Redsync,
) *SweepJob {
	return &SweepJob{
		cron:      cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		scheduler: scheduler,
		locks:     locks,
		cfg:       cfg,
		logger:    log,
	}
}

// Start registers the sweep on the configured schedule and starts the cron loop
func (j *SweepJob) Start() error {
	_, err := j.cron.AddFunc(j.cfg.PriceChange.SweepSchedule, func() {
		if _, _, err := j.RunOnce(context.Background()); err != nil {
			j.logger.Errorw("price change sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	j.cron.Start()
	j.logger.Infow("price change sweep scheduled", "schedule", j.cfg.PriceChange.SweepSchedule)
	return nil
}

// Stop waits for a running sweep to finish or for ctx to expire
func (j *SweepJob) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		j.logger.Info("price change sweep stopped")
		return nil
	case <-ctx.Done():
		j.logger.Warn("price change sweep did not stop in time")
		return ctx.Err()
	}
}

// RunOnce runs one sweep if no other replica holds the lock.
// The second return value reports whether the sweep ran.
func (j *SweepJob) RunOnce(ctx context.Context) (*dto.SweepSummary, bool, error) {
	mutex := j.locks.NewMutex(
		sweepLockName,
		redsync.WithExpiry(j.cfg.PriceChange.SweepLockTTL),
		redsync.WithTries(1),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if lockHeldElsewhere(err) {
			j.logger.Infow("skipping price change sweep, lock is held elsewhere", "error", err)
			return nil, false, nil
		}
		j.logger.Errorw("failed to acquire price change sweep lock", "lock", sweepLockName, "error", err)
		return nil, false, ierr.WithError(err).
			WithHint("Could not reach redis to take the sweep lock").
			WithReportableDetails(map[string]any{"lock": sweepLockName}).
			Mark(ierr.ErrSystem)
	}
	defer func() {
		if _, err := mutex.UnlockContext(context.Background()); err != nil {
			j.logger.Warnw("failed to release price change sweep lock", "error", err)
		}
	}()

	summary, err := j.scheduler.RunScheduledSweep(ctx)
	if err != nil {
		return nil, true, err
	}
	return summary, true, nil
}

// lockHeldElsewhere reports whether a lock attempt lost to another holder,
// as opposed to failing to reach redis
func lockHeldElsewhere(err error) bool {
	var taken *redsync.ErrTaken
	return errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken)
}

// Module wires the in-process trigger into the application lifecycle
func Module() fx.Option {
	return fx.Options(
		fx.Provide(NewSweepJob),
		fx.Invoke(RegisterWithLifecycle),
	)
}

func RegisterWithLifecycle(lc fx.Lifecycle, job *SweepJob) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return job.Start()
		},
		OnStop: func(ctx context.Context) error {
			return job.Stop(ctx)
		},
	})
}
