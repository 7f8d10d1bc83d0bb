package sentry

import (
	"context"
	"errors"
	"testing"

	"github.com/paylinks/pricechange/internal/config"
	"github.com/paylinks/pricechange/internal/logger"
	"github.com/stretchr/testify/assert"
)

func TestDisabledServiceIsNoop(t *testing.T) {
	svc := NewSentryService(config.GetDefaultConfig(), logger.NewNopLogger())

	ctx := context.Background()
	span, spanCtx := svc.StartDBSpan(ctx, "postgres.transaction", nil)
	assert.Nil(t, span)
	assert.Equal(t, ctx, spanCtx)

	tx, txCtx := svc.StartTransaction(ctx, "price_change.sweep")
	assert.Nil(t, tx)
	assert.Equal(t, ctx, txCtx)

	assert.True(t, svc.Flush(1))
	assert.NotPanics(t, func() {
		svc.CaptureException(errors.New("boom"))
		svc.CaptureExceptionWithTags(errors.New("boom"), map[string]string{"sweep_id": "sweep_1"})
		svc.AddBreadcrumb("sweep", "started", nil)
	})

	var nilSvc *Service
	assert.NotPanics(t, func() { nilSvc.CaptureException(errors.New("boom")) })
}
