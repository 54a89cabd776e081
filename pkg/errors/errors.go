package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInternal           = errors.New("internal error")
	ErrConflict           = errors.New("conflict")
	ErrServiceUnavail     = errors.New("service unavailable")
	ErrRateLimited        = errors.New("rate limited")
	ErrValidationFailed   = errors.New("validation failed")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrPaymentInitFailed  = errors.New("payment initialization failed")
	ErrRedirectMalformed  = errors.New("gateway redirect malformed")
	ErrAmountMismatch     = errors.New("amount mismatch")
)

// FieldError describes a single rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
	Status  int          `json:"-"`
	Err     error        `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// ServiceUnavailable creates a 503 error for local dependencies (storage, broker).
func ServiceUnavailable(message string) *AppError {
	return &AppError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     ErrServiceUnavail,
	}
}

// RateLimited creates a 429 error.
func RateLimited(message string) *AppError {
	return &AppError{
		Code:    "RATE_LIMITED",
		Message: message,
		Status:  http.StatusTooManyRequests,
		Err:     ErrRateLimited,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// ValidationFailed creates a 422 error. When message is empty it is derived
// from the field list.
func ValidationFailed(message string, fields ...FieldError) *AppError {
	if message == "" {
		message = JoinFields(fields)
	}
	if message == "" {
		message = "validation failed"
	}
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Message: message,
		Fields:  fields,
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrValidationFailed,
	}
}

// BackendUnavailable creates a 503 error for an unreachable or failing order
// backend. The message is generic; the cause is kept for logs only.
func BackendUnavailable(cause error) *AppError {
	return &AppError{
		Code:    "BACKEND_UNAVAILABLE",
		Message: "the order service is temporarily unavailable, please try again",
		Status:  http.StatusServiceUnavailable,
		Err:     errors.Join(ErrBackendUnavailable, cause),
	}
}

// PaymentInitFailed creates a 502 error after every initialization attempt
// was exhausted. detail is the last backend message, if any.
func PaymentInitFailed(attempts int, detail string, cause error) *AppError {
	msg := fmt.Sprintf("payment could not be initialized after %d attempts", attempts)
	if detail != "" {
		msg += ": " + detail
	}
	return &AppError{
		Code:    "PAYMENT_INIT_FAILED",
		Message: msg,
		Status:  http.StatusBadGateway,
		Err:     errors.Join(ErrPaymentInitFailed, cause),
	}
}

// GatewayRedirectMalformed creates a 502 error for a success response whose
// payload carries no usable redirect.
func GatewayRedirectMalformed(reason string) *AppError {
	return &AppError{
		Code:    "GATEWAY_REDIRECT_MALFORMED",
		Message: "payment gateway returned an unusable redirect: " + reason,
		Status:  http.StatusBadGateway,
		Err:     ErrRedirectMalformed,
	}
}

// AmountMismatch creates a 409 error when the amount about to be charged
// disagrees with the confirmed order total.
func AmountMismatch(expected, actual string) *AppError {
	return &AppError{
		Code:    "AMOUNT_MISMATCH",
		Message: fmt.Sprintf("order total %s does not match cart total %s", expected, actual),
		Status:  http.StatusConflict,
		Err:     ErrAmountMismatch,
	}
}

// JoinFields renders field errors as "field: message; field: message".
func JoinFields(fields []FieldError) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		switch {
		case f.Field == "":
			parts = append(parts, f.Message)
		case f.Message == "":
			parts = append(parts, f.Field)
		default:
			parts = append(parts, f.Field+": "+f.Message)
		}
	}
	return strings.Join(parts, "; ")
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrAmountMismatch):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrValidationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrBackendUnavailable), errors.Is(err, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrPaymentInitFailed), errors.Is(err, ErrRedirectMalformed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
