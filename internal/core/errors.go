// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Configuration errors are fatal and raised at construction.
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}

	// Input errors abort a run before any result is produced.
	ErrNoData       = &Error{Code: "NO_DATA", Message: "no data available"}
	ErrInvalidInput = &Error{Code: "INVALID_INPUT", Message: "invalid input"}

	// Execution errors are recorded per order and never abort a run.
	ErrOrderRejected    = &Error{Code: "ORDER_REJECTED", Message: "order rejected"}
	ErrOrderResolved    = &Error{Code: "ORDER_RESOLVED", Message: "order already resolved"}
	ErrInsufficientCash = &Error{Code: "INSUFFICIENT_CASH", Message: "insufficient cash"}
	ErrPositionNotFound = &Error{Code: "POSITION_NOT_FOUND", Message: "position not found"}

	// Strategy errors
	ErrStrategyFailed = &Error{Code: "STRATEGY_FAILED", Message: "strategy failed"}

	// Bias violations flag a result as untrustworthy.
	ErrBiasViolation = &Error{Code: "BIAS_VIOLATION", Message: "look-ahead bias detected"}
)
