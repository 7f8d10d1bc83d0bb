package pricechange

import (
	"context"
	"time"

	"github.com/paylinks/pricechange/internal/types"
)

// Repository persists price changes. Every transition method is a conditional write
// on the current status and fails with ErrConflict when the precondition no longer holds,
// so concurrent callers racing on one record see exactly one winner.
type Repository interface {
	Create(ctx context.Context, priceChange *PriceChange) error
	Get(ctx context.Context, id string) (*PriceChange, error)
	GetByApprovalToken(ctx context.Context, token string) (*PriceChange, error)
	List(ctx context.Context, filter *types.PriceChangeFilter) ([]*PriceChange, error)
	Count(ctx context.Context, filter *types.PriceChangeFilter) (int, error)

	// ListEligibleForApplication returns pending records whose approval is satisfied
	// and whose application type allows applying at now, oldest first
	ListEligibleForApplication(ctx context.Context, now time.Time) ([]*PriceChange, error)

	// ListExpiredApprovals returns records still awaiting the client that were created at or before cutoff
	ListExpiredApprovals(ctx context.Context, cutoff time.Time) ([]*PriceChange, error)

	// ResolveApproval moves client_approval_status from pending to approved or rejected.
	// A rejection also cancels the record.
	ResolveApproval(ctx context.Context, id string, decision types.ClientApprovalStatus, method types.ApprovalMethod, at time.Time) error

	// MarkApplied moves a pending, approval satisfied record to applied
	MarkApplied(ctx context.Context, id string, at time.Time) error

	// MarkCancelled moves a pending record to cancelled
	MarkCancelled(ctx context.Context, id string, reason types.CancellationReason, at time.Time) error

	// RecordApplyFailure bumps the attempt counter of a pending record and returns the new value
	RecordApplyFailure(ctx context.Context, id string, applyErr string, at time.Time) (int, error)
}
