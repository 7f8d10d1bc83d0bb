package types

import (
	ierr "github.com/paylinks/pricechange/internal/errors"
	"github.com/samber/lo"
)

type RunMode string

const (
	// ModeLocal runs the cron sweep and the metrics listener in one process
	ModeLocal RunMode = "local"
	// ModeScheduler runs only the cron sweep
	ModeScheduler RunMode = "scheduler"
	// ModeTemporalWorker runs the temporal worker that executes sweep workflows
	ModeTemporalWorker RunMode = "temporal_worker"
)

func (m RunMode) Validate() error {
	allowed := []RunMode{ModeLocal, ModeScheduler, ModeTemporalWorker}
	if !lo.Contains(allowed, m) {
		return ierr.NewError("invalid run mode").
			WithHintf("Run mode must be one of %v", allowed).
			Mark(ierr.ErrValidation)
	}
	return nil
}

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// PubSubType selects the notification transport
type PubSubType string

const (
	MemoryPubSub PubSubType = "memory"
	KafkaPubSub  PubSubType = "kafka"
)
