package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestValidationError(t *testing.T) {
	v := &ValidationError{}
	assert.NoError(t, v.OrNil())

	v.Add("items", "must not be empty")
	v.Add("items[0].quantity", "must be at least 1")
	err := v.OrNil()

	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "items: must not be empty; items[0].quantity: must be at least 1", err.Error())

	var ve *ValidationError
	assert.True(t, errors.As(fmt.Errorf("create: %w", err), &ve))
	assert.Len(t, ve.Fields, 2)
}

func TestKinds(t *testing.T) {
	assert.ErrorIs(t, &TransitionError{From: "served", To: "cancelled"}, ErrInvalidTransition)
	assert.ErrorIs(t, NotFound("order"), ErrNotFound)
	assert.Equal(t, "order not found", NotFound("order").Error())

	storeErr := Store("insert order", gorm.ErrInvalidData)
	assert.ErrorIs(t, storeErr, ErrStore)
	assert.ErrorIs(t, storeErr, gorm.ErrInvalidData)
	assert.NoError(t, Store("noop", nil))

	up := Upstream("completion", errors.New("boom"))
	assert.ErrorIs(t, up, ErrUpstreamUnavailable)
	assert.Equal(t, "completion: boom", up.Error())
}
