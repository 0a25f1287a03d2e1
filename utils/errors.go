package utils

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ValidationError -> malformed input, rejected before any state mutation
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError -> invariant violation under concurrency; caller retries with fresh state
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

func NewConflictError(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError -> unknown id, or id belonging to a different session than expected
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return e.Msg }

func NewNotFoundError(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Msg: fmt.Sprintf(format, args...)}
}

// AuthorizationError -> actor lacks the role/capability for the requested action
type AuthorizationError struct {
	Msg string
}

func (e *AuthorizationError) Error() string { return e.Msg }

func NewAuthorizationError(format string, args ...interface{}) *AuthorizationError {
	return &AuthorizationError{Msg: fmt.Sprintf(format, args...)}
}

// ProviderError -> upstream provider failure; recorded but never corrupts local state
type ProviderError struct {
	Msg string
	Err error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

func NewProviderError(msg string, err error) *ProviderError {
	return &ProviderError{Msg: msg, Err: err}
}

// RespondAppError -> map taxonomy errors to HTTP status codes
func RespondAppError(c *gin.Context, err error) {
	var (
		validationErr    *ValidationError
		conflictErr      *ConflictError
		notFoundErr      *NotFoundError
		authorizationErr *AuthorizationError
		providerErr      *ProviderError
	)

	switch {
	case errors.As(err, &validationErr):
		RespondError(c, http.StatusBadRequest, err)
	case errors.As(err, &conflictErr):
		RespondError(c, http.StatusConflict, err)
	case errors.As(err, &notFoundErr):
		RespondError(c, http.StatusNotFound, err)
	case errors.As(err, &authorizationErr):
		RespondError(c, http.StatusForbidden, err)
	case errors.As(err, &providerErr):
		RespondError(c, http.StatusBadGateway, err)
	default:
		RespondError(c, http.StatusInternalServerError, err)
	}
}
