package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesByCode(t *testing.T) {
	err := NewDomainError(CodeInsufficientStock, "sku 1001: requested 5, sellable 2")

	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.False(t, errors.Is(err, ErrReservedExceedsRequestedStock))
	assert.Equal(t, "sku 1001: requested 5, sellable 2", err.Error())
}

func TestDomainError_WrappedStillMatches(t *testing.T) {
	wrapped := fmt.Errorf("reserve failed: %w", NewNotFoundError("inventory %d not found", 7))

	assert.True(t, IsNotFound(wrapped))

	var de *DomainError
	assert.True(t, errors.As(wrapped, &de))
	assert.Equal(t, CodeNotFound, de.Code)
}

func TestWrapDomainError_KeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapDomainError(CodeTransientSinkFailure, "index products", cause)

	assert.True(t, IsTransientSinkFailure(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "index products: connection refused", err.Error())
}

func TestNewValidationError_Formats(t *testing.T) {
	err := NewValidationError("duplicate slug %q", "red-shirt")
	assert.Equal(t, CodeValidation, err.Code)
	assert.Equal(t, `duplicate slug "red-shirt"`, err.Message)
}
