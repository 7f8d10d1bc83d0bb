package productpricechange

import (
	"context"
	"time"

	"github.com/paylinks/pricechange/internal/types"
)

// Repository persists bulk changes. Counter updates are single atomic statements,
// never read-modify-write, since many children complete concurrently during a sweep.
type Repository interface {
	Create(ctx context.Context, change *ProductPriceChange) error
	Get(ctx context.Context, id string) (*ProductPriceChange, error)
	List(ctx context.Context, filter *types.ProductPriceChangeFilter) ([]*ProductPriceChange, error)
	// Count ignores the pagination of filter
	Count(ctx context.Context, filter *types.ProductPriceChangeFilter) (int, error)

	// SetTotals records the outcome of the fan-out
	SetTotals(ctx context.Context, id string, total, pendingApproval, skipped int, at time.Time) error

	// IncrementApplied and IncrementFailed refuse to push applied+failed past the total
	// and fail with ErrConflict instead
	IncrementApplied(ctx context.Context, id string) error
	IncrementFailed(ctx context.Context, id string) error

	// DecrementPendingApproval never goes below zero
	DecrementPendingApproval(ctx context.Context, id string) error
}
