package product

import (
	"github.com/paylinks/pricechange/internal/types"
)

// Status of a product template
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Product is a template subscriptions are created from
type Product struct {
	ID          string  `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Description *string `db:"description" json:"description,omitempty"`

	// BaseAmount is the template price in minor currency units
	BaseAmount int64  `db:"base_amount" json:"base_amount"`
	Currency   string `db:"currency" json:"currency"`
	Status     Status `db:"status" json:"status"`

	types.BaseModel
}
