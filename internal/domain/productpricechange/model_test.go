package productpricechange

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestProgress(t *testing.T) {
	empty := &ProductPriceChange{}
	progress := empty.Progress()
	assert.True(t, decimal.NewFromInt(100).Equal(progress.PercentComplete))
	assert.True(t, progress.IsComplete)

	partial := &ProductPriceChange{
		TotalSubscriptionsAffected:   8,
		SubscriptionsApplied:         3,
		SubscriptionsPendingApproval: 2,
		SubscriptionsFailed:          1,
		SubscriptionsSkipped:         2,
	}
	progress = partial.Progress()
	assert.Equal(t, 8, progress.Total)
	assert.Equal(t, 2, progress.Skipped)
	assert.True(t, decimal.RequireFromString("37.5").Equal(progress.PercentComplete))
	assert.False(t, progress.IsComplete)

	partial.SubscriptionsApplied = 7
	progress = partial.Progress()
	assert.True(t, progress.IsComplete)
	assert.True(t, decimal.RequireFromString("87.5").Equal(progress.PercentComplete))
}
