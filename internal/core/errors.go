package core

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the ledger. Callers match them with errors.Is.
var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidRequest = errors.New("invalid request")
	ErrConsistency    = errors.New("consistency failure")
)

// Field-level validation errors. Each one wraps ErrValidation.
var (
	ErrInvalidAmount     = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrNegativeAmount    = fmt.Errorf("%w: amount must be non-negative", ErrValidation)
	ErrAmountOutOfRange  = fmt.Errorf("%w: amount out of range", ErrInvalidAmount)
	ErrBalanceOutOfRange = fmt.Errorf("%w: balance limit exceeded", ErrValidation)
	ErrMissingAccount    = fmt.Errorf("%w: account is required", ErrValidation)
	ErrMissingToAccount  = fmt.Errorf("%w: destination account is required for transfers", ErrValidation)
	ErrMissingCategory   = fmt.Errorf("%w: category is required", ErrValidation)
	ErrMissingTitle      = fmt.Errorf("%w: title is required", ErrValidation)
	ErrMissingPerson     = fmt.Errorf("%w: person is required", ErrValidation)
	ErrInvalidType       = fmt.Errorf("%w: invalid type", ErrValidation)
	ErrNegativeRate      = fmt.Errorf("%w: interest rate must be non-negative", ErrValidation)
)

// ConsistencyError reports a multi-step mutation that could not complete.
// It matches both ErrConsistency and the underlying cause.
type ConsistencyError struct {
	Op    string
	Cause error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency failure during %s: %v", e.Op, e.Cause)
}

func (e *ConsistencyError) Unwrap() []error {
	return []error{ErrConsistency, e.Cause}
}

// NewConsistencyError wraps cause unless it already is a consistency error.
func NewConsistencyError(op string, cause error) error {
	var ce *ConsistencyError
	if errors.As(cause, &ce) {
		return cause
	}
	return &ConsistencyError{Op: op, Cause: cause}
}

// NotFoundf returns an ErrNotFound wrapping a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// InvalidRequestf returns an ErrInvalidRequest wrapping a formatted message.
func InvalidRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// Kind names the error category of err, for logs and API responses.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConsistency):
		return "consistency_failure"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return "internal_error"
	}
}
