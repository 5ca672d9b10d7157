// Package gameerr provides coded domain errors for the game rules engine.
package gameerr

import (
	"errors"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeValidation        Code = "VALIDATION"
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
	CodeAlreadyPurchased  Code = "ALREADY_PURCHASED"
	CodeAlreadyGuessed    Code = "ALREADY_GUESSED"
	CodeChallengeClosed   Code = "CHALLENGE_CLOSED"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeNotFound          Code = "NOT_FOUND"
	CodeForbidden         Code = "FORBIDDEN"
	CodeConflict          Code = "CONFLICT"
	CodeExternalService   Code = "EXTERNAL_SERVICE"
	CodeInternal          Code = "INTERNAL"
)

// HTTPStatus maps a code to the status the HTTP layer answers with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation,
		CodeInsufficientFunds,
		CodeAlreadyPurchased,
		CodeAlreadyGuessed,
		CodeChallengeClosed:
		return http.StatusBadRequest
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code           // Machine-readable error code
	Message  string         // User-facing message
	Metadata map[string]any // Extra response fields (purchasedBy, minuteRemaining, ...)
	Cause    error          // Wrapped underlying error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithMetadata creates a domain error carrying extra response fields.
func WithMetadata(code Code, message string, metadata map[string]any) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinels for errors.Is checks. Matching is by code only.
var (
	ErrValidation        = New(CodeValidation, "validation failed")
	ErrInsufficientFunds = New(CodeInsufficientFunds, "insufficient funds")
	ErrAlreadyPurchased  = New(CodeAlreadyPurchased, "word already purchased")
	ErrAlreadyGuessed    = New(CodeAlreadyGuessed, "word already guessed")
	ErrChallengeClosed   = New(CodeChallengeClosed, "challenge is closed")
	ErrRateLimited       = New(CodeRateLimited, "rate limit exceeded")
	ErrNotFound          = New(CodeNotFound, "not found")
	ErrForbidden         = New(CodeForbidden, "forbidden")
	ErrConflict          = New(CodeConflict, "concurrent update conflict")
	ErrExternalService   = New(CodeExternalService, "external service failure")
)

// Validation is shorthand for a VALIDATION error.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// NotFound is shorthand for a NOT_FOUND error.
func NotFound(message string) *Error {
	return New(CodeNotFound, message)
}

// CodeOf returns the code of a domain error, or CodeInternal for anything else.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
