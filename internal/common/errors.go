package common

import (
	"errors"
	"net/http"
)

// Error taxonomy shared by every domain package. Package-level sentinels wrap
// one of these so callers can branch with errors.Is regardless of origin.
var (
	ErrNotFound                = errors.New("not found")
	ErrValidation              = errors.New("validation failed")
	ErrInsufficientCredit      = errors.New("insufficient credit")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrAlreadyClaimed          = errors.New("already claimed")
	ErrConflict                = errors.New("conflict")
	ErrForbidden               = errors.New("forbidden")
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// Detailed builds an AppError for one of the taxonomy errors, carrying a
// caller-facing message and structured details.
func Detailed(kind error, message string, details any) *AppError {
	code, status := Classify(kind)
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: kind, Details: details}
}

// Classify maps an error onto its API code and HTTP status.
func Classify(err error) (string, int) {
	switch {
	case err == nil:
		return "", http.StatusOK
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND", http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR", http.StatusUnprocessableEntity
	case errors.Is(err, ErrInsufficientCredit):
		return "INSUFFICIENT_CREDIT", http.StatusPaymentRequired
	case errors.Is(err, ErrInvalidStatusTransition):
		return "INVALID_STATUS_TRANSITION", http.StatusConflict
	case errors.Is(err, ErrAlreadyClaimed):
		return "ALREADY_CLAIMED", http.StatusConflict
	case errors.Is(err, ErrConflict):
		return "CONFLICT", http.StatusConflict
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN", http.StatusForbidden
	default:
		return "INTERNAL", http.StatusInternalServerError
	}
}
