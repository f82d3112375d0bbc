package utils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Message: "test error message",
	}

	assert.Equal(t, "test error message", err.Error())
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("validation failed")

	assert.Error(t, err)
	assert.Equal(t, "validation failed", err.Error())

	validationErr, ok := err.(*ValidationError)
	assert.True(t, ok)
	assert.Equal(t, "validation failed", validationErr.Message)
}

func TestNewValidationErrorf(t *testing.T) {
	err := NewValidationErrorf("top_n must be positive, got %d", -3)

	assert.Error(t, err)
	assert.Equal(t, "top_n must be positive, got -3", err.Error())
}

func TestNewFieldError(t *testing.T) {
	err := NewFieldError("price", "must be positive")
	assert.Equal(t, "price: must be positive", err.Error())
}

func TestIsValidationError(t *testing.T) {
	wrapped := fmt.Errorf("loading series: %w", NewValidationError("bad row"))

	assert.True(t, IsValidationError(wrapped))
	assert.False(t, IsValidationError(fmt.Errorf("plain")))
	assert.False(t, IsValidationError(nil))
}
