package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordProposed("single")
	m.RecordProposed("single")
	m.RecordProposed("bulk_child")
	m.RecordApplied()
	m.RecordApprovalResolved("rejected", "token")
	m.ObserveSweep(250 * time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Proposed.WithLabelValues("single")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Proposed.WithLabelValues("bulk_child")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Applied))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ApprovalsResolved.WithLabelValues("rejected", "token")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SweepDuration))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordProposed("single")
		m.RecordApplied()
		m.RecordAutoApproved()
		m.RecordApplyFailure()
		m.RecordRetriesExhausted()
		m.RecordApprovalResolved("approved", "token")
		m.ObserveSweep(time.Second)
	})
}
