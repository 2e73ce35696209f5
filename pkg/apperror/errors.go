package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

const (
	prefixValidation  = "VAL_"
	prefixNotFound    = "NF_"
	prefixConsistency = "LED_"
)

// ---- Validation (VAL) ----

// Validation returns a VAL_001 error for malformed caller input.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New("VAL_001", "Movement amount must be non-zero", http.StatusBadRequest)
}

func ErrInvalidAttribute(err error) *AppError {
	return Wrap("VAL_001", "Invalid expiry or usage restriction", http.StatusBadRequest, err)
}

// ErrOffsetExceedsGroup is returned when an explicit per-group offset is larger
// than the group's outstanding magnitude.
func ErrOffsetExceedsGroup(group string, requested, available string) *AppError {
	return New("VAL_002",
		fmt.Sprintf("Requested offset %s exceeds outstanding %s for %s", requested, available, group),
		http.StatusUnprocessableEntity)
}

// ErrOffsetExceedsMovement is returned when explicit offsets together ask for
// more than the movement amount.
func ErrOffsetExceedsMovement(group string, requested, unallocated string) *AppError {
	return New("VAL_002",
		fmt.Sprintf("Requested offset %s for %s exceeds the %s left of the movement", requested, group, unallocated),
		http.StatusUnprocessableEntity)
}

// ---- Lookup (NF) ----

func ErrNotFound(entity string) *AppError {
	return New("NF_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Ledger consistency (LED) ----

// ErrConsistency marks a wallet whose ledger no longer satisfies its balance
// invariants. It is never patched silently.
func ErrConsistency(message string, err error) *AppError {
	return Wrap("LED_001", message, http.StatusConflict, err)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// CodeOf returns the AppError code carried by err, or "" when err is not an AppError.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func IsValidation(err error) bool {
	return strings.HasPrefix(CodeOf(err), prefixValidation)
}

func IsNotFound(err error) bool {
	return strings.HasPrefix(CodeOf(err), prefixNotFound)
}

func IsConsistency(err error) bool {
	return strings.HasPrefix(CodeOf(err), prefixConsistency)
}
