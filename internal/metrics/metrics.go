package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/paylinks/pricechange/internal/config"
	"github.com/paylinks/pricechange/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

const namespace = "pricechange"

// Metrics holds all Prometheus metrics of the price change engine.
// A nil *Metrics records nothing.
type Metrics struct {
	Proposed          *prometheus.CounterVec
	ApprovalsResolved *prometheus.CounterVec
	Applied           prometheus.Counter
	AutoApproved      prometheus.Counter
	ApplyFailures     prometheus.Counter
	RetriesExhausted  prometheus.Counter
	SweepDuration     prometheus.Histogram
}

// NewMetrics registers every metric on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Proposed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proposed_total",
				Help:      "Total price changes proposed",
			},
			[]string{"kind"}, // "single", "bulk_child"
		),
		ApprovalsResolved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "approvals_resolved_total",
				Help:      "Total client approvals resolved",
			},
			[]string{"decision", "method"},
		),
		Applied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "applied_total",
			Help:      "Total price changes applied to subscriptions",
		}),
		AutoApproved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_approved_total",
			Help:      "Total price changes approved because the approval window expired",
		}),
		ApplyFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apply_failures_total",
			Help:      "Total failed attempts to apply a price change",
		}),
		RetriesExhausted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_exhausted_total",
			Help:      "Total bulk children cancelled after the last allowed apply attempt",
		}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of scheduler sweeps in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}),
	}
}

func (m *Metrics) RecordProposed(kind string) {
	if m == nil {
		return
	}
	m.Proposed.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordApprovalResolved(decision, method string) {
	if m == nil {
		return
	}
	m.ApprovalsResolved.WithLabelValues(decision, method).Inc()
}

func (m *Metrics) RecordApplied() {
	if m == nil {
		return
	}
	m.Applied.Inc()
}

func (m *Metrics) RecordAutoApproved() {
	if m == nil {
		return
	}
	m.AutoApproved.Inc()
}

func (m *Metrics) RecordApplyFailure() {
	if m == nil {
		return
	}
	m.ApplyFailures.Inc()
}

func (m *Metrics) RecordRetriesExhausted() {
	if m == nil {
		return
	}
	m.RetriesExhausted.Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(d.Seconds())
}

// Module provides metrics registered on the default registry and the /metrics listener
func Module() fx.Option {
	return fx.Options(
		fx.Provide(func() *Metrics {
			return NewMetrics(prometheus.DefaultRegisterer)
		}),
		fx.Invoke(RegisterServer),
	)
}

// RegisterServer exposes /metrics on the configured address when metrics are enabled
func RegisterServer(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) {
	if !cfg.Metrics.Enabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Infow("starting metrics listener", "address", cfg.Metrics.Address)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorw("metrics listener stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}
