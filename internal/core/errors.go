// AngelaMos | 2026
// errors.go

package core

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
)

// Access denial codes surfaced to clients. Players key retry/upgrade
// behavior off these strings, so they are part of the API contract.
const (
	CodeUserNotFound     = "USER_NOT_FOUND"
	CodeAccountSuspended = "ACCOUNT_SUSPENDED"
	CodeAccountInactive  = "ACCOUNT_INACTIVE"
	CodeUpgradeRequired  = "UPGRADE_REQUIRED"
	CodeResolutionFailed = "RESOLUTION_FAILED"
)

// AppError is a structured, machine-readable error carried to the HTTP
// boundary. Details holds actionable hints such as requiredAction or
// upgradeUrl.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAppError(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func UnauthorizedError(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func ForbiddenError(message string) *AppError {
	return NewAppError(http.StatusForbidden, "FORBIDDEN", message)
}

func NotFoundError(resource string) *AppError {
	return NewAppError(
		http.StatusNotFound,
		"NOT_FOUND",
		fmt.Sprintf("%s not found", resource),
	)
}

// ResolutionError reports a failed upstream token resolution (no redirect
// or missing Location header). It is surfaced, never retried internally.
type ResolutionError struct {
	StreamID string
	Reason   string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf(
		"resolve stream %s: %s",
		e.StreamID,
		e.Reason,
	)
}

func IsResolutionError(err error) bool {
	var resErr *ResolutionError
	return errors.As(err, &resErr)
}
