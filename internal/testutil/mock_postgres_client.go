package testutil

import (
	"context"

	"github.com/paylinks/pricechange/internal/logger"
	"github.com/paylinks/pricechange/internal/postgres"
	"github.com/paylinks/pricechange/internal/types"
)

var _ postgres.IClient = (*MockPostgresClient)(nil) // Ensure MockPostgresClient implements IClient

// MockPostgresClient runs transactional functions directly against the in-memory stores.
// Nothing is rolled back, so callers that rely on atomicity must order guarded writes first.
type MockPostgresClient struct {
	logger *logger.Logger
}

// NewMockPostgresClient creates a new mock postgres client
func NewMockPostgresClient(logger *logger.Logger) postgres.IClient {
	return &MockPostgresClient{
		logger: logger,
	}
}

// WithTx executes the given function, marking the context as transactional
func (c *MockPostgresClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}
	return fn(context.WithValue(ctx, types.CtxDBTransaction, true))
}

// InTx reports whether ctx was produced by MockPostgresClient.WithTx
func InTx(ctx context.Context) bool {
	inTx, _ := ctx.Value(types.CtxDBTransaction).(bool)
	return inTx
}
