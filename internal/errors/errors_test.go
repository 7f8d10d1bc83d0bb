package errors

import (
	"database/sql"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestBuilderMarksSentinel(t *testing.T) {
	err := NewError("subscription already has a pending price change").
		WithHint("Resolve the outstanding change first").
		WithReportableDetails(map[string]any{"subscription_id": "subs_1"}).
		Mark(ErrConflict)

	assert.True(t, IsConflict(err))
	assert.False(t, IsNotFound(err))
	assert.False(t, IsTransient(err))
	assert.Equal(t, ErrCodeConflict, Code(err))
	assert.Contains(t, errors.FlattenHints(err), "Resolve the outstanding change first")
}

func TestFromDatabase(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		check     func(error) bool
		transient bool
	}{
		{
			name:  "no rows maps to not found",
			err:   sql.ErrNoRows,
			check: IsNotFound,
		},
		{
			name:  "unique violation maps to already exists",
			err:   &pq.Error{Code: "23505", Constraint: "price_changes_approval_token_key"},
			check: IsAlreadyExists,
		},
		{
			name:      "anything else is a transient database error",
			err:       errors.New("connection refused"),
			check:     IsDatabase,
			transient: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromDatabase(tt.err, "Failed", map[string]any{"id": "pc_1"})
			assert.True(t, tt.check(err))
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}

	assert.NoError(t, FromDatabase(nil, "Failed", nil))
}

func TestUniqueViolationConstraint(t *testing.T) {
	wrapped := errors.Wrap(&pq.Error{Code: "23505", Constraint: "uniq_subscription_pending"}, "insert")
	constraint, ok := UniqueViolation(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "uniq_subscription_pending", constraint)

	_, ok = UniqueViolation(&pq.Error{Code: "23503"})
	assert.False(t, ok)
}

func TestReportableDetailsMergesChain(t *testing.T) {
	inner := NewError("apply failed").
		WithReportableDetails(map[string]any{"price_change_id": "pc_1", "attempt": 2}).
		Mark(ErrDatabase)
	outer := WithError(inner).
		WithReportableDetails(map[string]any{"sweep_id": "sweep_1", "attempt": 3}).
		Mark(ErrDatabase)

	details := ReportableDetails(outer)
	assert.Equal(t, "pc_1", details["price_change_id"])
	assert.Equal(t, "sweep_1", details["sweep_id"])
	assert.EqualValues(t, 3, details["attempt"], "outermost value wins")

	bare := NewError("no details").WithReportableDetails(nil).Mark(ErrSystem)
	assert.Empty(t, ReportableDetails(bare))
}
