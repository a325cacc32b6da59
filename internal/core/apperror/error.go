// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes following domain-driven design
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"

	// Validation errors (400)
	CodeValidation      = "VALIDATION_ERROR"
	CodeInvalidQuantity = "INVALID_QUANTITY"

	// Business rule violations (422)
	CodeBusinessRule      = "BUSINESS_RULE_VIOLATION"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeOverReceipt       = "OVER_RECEIPT"
	CodeInvalidTransition = "INVALID_TRANSITION"

	// Idempotency guards (409)
	CodeAlreadyRefunded  = "ALREADY_REFUNDED"
	CodeAlreadyPaid      = "ALREADY_PAID"
	CodeAlreadyCancelled = "ALREADY_CANCELLED"
	CodeAlreadyReceived  = "ALREADY_RECEIVED"

	// Capability tokens (401)
	CodeTokenInvalid = "TOKEN_INVALID"
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeUnauthorized = "UNAUTHORIZED"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict                = "CONFLICT"
	CodeConflictingPendingOrder = "CONFLICTING_PENDING_ORDER"
	CodeIdempotency             = "IDEMPOTENCY_CONFLICT"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (unit ids, quantities, order ids)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidQuantity is returned for negative, zero (where forbidden) or non-integral quantities.
func NewInvalidQuantity(message string, quantity any) *AppError {
	return &AppError{
		Code:       CodeInvalidQuantity,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"quantity": quantity},
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a business rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInsufficientStock creates a stock shortage error naming the short unit.
func NewInsufficientStock(unitID string, requested, available int64) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    fmt.Sprintf("insufficient stock for unit %s, %d left", unitID, available),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"unit_id":   unitID,
			"requested": requested,
			"available": available,
		},
	}
}

// NewOverReceipt is returned when a receipt exceeds the ordered quantity.
func NewOverReceipt(lineID string, received, ordered int64) *AppError {
	return &AppError{
		Code:       CodeOverReceipt,
		Message:    fmt.Sprintf("received quantity %d exceeds ordered quantity %d", received, ordered),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"line_id":  lineID,
			"received": received,
			"ordered":  ordered,
		},
	}
}

// NewInvalidTransition is returned when a state machine guard is violated.
func NewInvalidTransition(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidTransition,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewConflictingPendingOrder refuses duplicate in-flight procurement.
func NewConflictingPendingOrder(kind string, key any) *AppError {
	return &AppError{
		Code:       CodeConflictingPendingOrder,
		Message:    fmt.Sprintf("a %s for this need is already pending or accepted", kind),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"kind": kind, "key": key},
	}
}

// NewAlready creates one of the idempotency guard errors (ALREADY_*).
func NewAlready(code, entity string, id any) *AppError {
	return &AppError{
		Code:       code,
		Message:    alreadyMessage(code, entity),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

func alreadyMessage(code, entity string) string {
	switch code {
	case CodeAlreadyRefunded:
		return entity + " is already refunded"
	case CodeAlreadyPaid:
		return entity + " is already paid"
	case CodeAlreadyCancelled:
		return entity + " is already cancelled"
	case CodeAlreadyReceived:
		return entity + " is already received"
	}
	return entity + " is already processed"
}

// NewTokenError creates a capability token failure (signature, format or expiry).
func NewTokenError(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewIdempotencyConflict creates error when operation is already in progress
func NewIdempotencyConflict(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Operation already in progress or completed",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewIdempotencyMismatch is returned when the same idempotency key is reused for
// a different request (different actor/operation/body hash).
func NewIdempotencyMismatch(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Idempotency key mismatch",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsCode reports whether err carries the given AppError code.
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}
