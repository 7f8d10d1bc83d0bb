package postgres

import (
	"time"

	"github.com/paylinks/pricechange/internal/domain/pricechange"
	"github.com/paylinks/pricechange/internal/types"
	"github.com/shopspring/decimal"
)

func newPriceChangeFixture() *pricechange.PriceChange {
	now := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	return &pricechange.PriceChange{
		ID:                   "pc_1",
		SubscriptionID:       "subs_1",
		OldAmount:            100000,
		NewAmount:            120000,
		Difference:           20000,
		PercentageChange:     decimal.NewFromInt(20),
		ChangeType:           types.PriceChangeTypeInflation,
		Reason:               "Annual adjustment",
		ApplicationType:      types.ApplicationTypeImmediate,
		PriceChangeStatus:    types.PriceChangeStatusPending,
		ClientApprovalStatus: types.ClientApprovalStatusNotRequired,
		BaseModel:            types.BaseModel{CreatedAt: now, UpdatedAt: now},
	}
}
