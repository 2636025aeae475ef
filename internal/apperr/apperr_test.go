package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{
		"name":      "is required",
		"parent_id": "does not exist",
	}}

	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "validation failed: name: is required; parent_id: does not exist", err.Error())

	wrapped := fmt.Errorf("create category: %w", Validation("name", "is required"))
	assert.True(t, errors.Is(wrapped, ErrValidation))

	var ve *ValidationError
	assert.True(t, errors.As(wrapped, &ve))
	assert.Equal(t, "is required", ve.Fields["name"])
}

func TestValidationError_NoFields(t *testing.T) {
	err := &ValidationError{}
	assert.Equal(t, "validation failed", err.Error())
}

func TestFromValidator(t *testing.T) {
	type input struct {
		Name  string `json:"name" validate:"required,max=5"`
		Level int    `json:"level" validate:"gte=0"`
	}

	v := NewValidator()

	err := FromValidator(v.Struct(input{Level: -1}))
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "is required", ve.Fields["name"])
	assert.Equal(t, "must be greater than or equal to 0", ve.Fields["level"])

	err = FromValidator(v.Struct(input{Name: "toolong"}))
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "must be at most 5", ve.Fields["name"])

	assert.NoError(t, FromValidator(v.Struct(input{Name: "ok"})))

	plain := errors.New("boom")
	assert.Same(t, plain, FromValidator(plain))
}
