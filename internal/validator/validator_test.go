package validator

import (
	"testing"

	ierr "github.com/paylinks/pricechange/internal/errors"
	"github.com/stretchr/testify/assert"
)

type sample struct {
	Reason string `validate:"required"`
	Amount int64  `validate:"required,gt=0"`
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(sample{Reason: "inflation", Amount: 10}))

	err := ValidateRequest(sample{Amount: -1})
	assert.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
}
