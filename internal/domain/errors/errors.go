package errors

import (
	"errors"
	"fmt"
)

var (
	// Transaction errors
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidCurrency        = errors.New("invalid currency")
	ErrInvalidInstrument      = errors.New("invalid payment instrument")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrMaxAttemptsExceeded    = errors.New("max attempts exceeded")
	ErrOptimisticLockFailed   = errors.New("optimistic lock conflict")

	// Idempotency errors
	ErrIdempotencyConflict = errors.New("idempotency key reused with different request")

	// Merchant errors
	ErrMerchantNotFound = errors.New("merchant not found")
	ErrEndpointNotFound = errors.New("webhook endpoint not found")

	// Acquirer errors
	ErrAcquirerNotFound    = errors.New("acquirer not found")
	ErrAcquirerUnavailable = errors.New("acquirer unavailable")
	ErrAcquirerTimeout     = errors.New("acquirer request timeout")

	// Webhook errors
	ErrDeliveryNotFound = errors.New("webhook delivery not found")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
