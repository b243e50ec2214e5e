package shared

import (
	"errors"
	"fmt"
)

// Error codes of the catalog engine taxonomy
const (
	CodeValidation                    = "VALIDATION_ERROR"
	CodeNotFound                      = "NOT_FOUND"
	CodeNotInCategory                 = "NOT_IN_CATEGORY"
	CodeInsufficientStock             = "INSUFFICIENT_STOCK"
	CodeReservedExceedsRequestedStock = "RESERVED_EXCEEDS_REQUESTED_STOCK"
	CodeConflict                      = "CONFLICT"
	CodeTransientSinkFailure          = "TRANSIENT_SINK_FAILURE"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	cause   error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a DomainError with the same code.
// It lets callers match on the sentinel values below with errors.Is
// regardless of the message carried by a particular instance.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WrapDomainError creates a domain error carrying an underlying cause
func WrapDomainError(code, message string, cause error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Sentinel domain errors, compare with errors.Is
var (
	ErrValidation                    = NewDomainError(CodeValidation, "Invalid input provided")
	ErrNotFound                      = NewDomainError(CodeNotFound, "Resource not found")
	ErrNotInCategory                 = NewDomainError(CodeNotInCategory, "Product is not a member of the category")
	ErrInsufficientStock             = NewDomainError(CodeInsufficientStock, "Insufficient stock available")
	ErrReservedExceedsRequestedStock = NewDomainError(CodeReservedExceedsRequestedStock, "Reserved quantity exceeds requested stock")
	ErrConflict                      = NewDomainError(CodeConflict, "Resource already exists")
	ErrTransientSinkFailure          = NewDomainError(CodeTransientSinkFailure, "Search index is unavailable")
)

// NewValidationError returns a validation error with a formatted message
func NewValidationError(format string, args ...any) *DomainError {
	return NewDomainError(CodeValidation, fmt.Sprintf(format, args...))
}

// NewNotFoundError returns a not-found error with a formatted message
func NewNotFoundError(format string, args ...any) *DomainError {
	return NewDomainError(CodeNotFound, fmt.Sprintf(format, args...))
}

// NewConflictError returns a conflict error with a formatted message
func NewConflictError(format string, args ...any) *DomainError {
	return NewDomainError(CodeConflict, fmt.Sprintf(format, args...))
}

// IsNotFound reports whether err is a not-found domain error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTransientSinkFailure reports whether err came from an unreachable search sink
func IsTransientSinkFailure(err error) bool {
	return errors.Is(err, ErrTransientSinkFailure)
}
