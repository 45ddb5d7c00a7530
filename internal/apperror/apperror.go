// Package apperror defines the domain error taxonomy shared by every layer.
//
// Services and repositories return *AppError values wrapping one of the
// sentinels below. The HTTP layer maps sentinels to status codes; nothing
// below the handler package knows about HTTP.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrOptimisticLock means a conditional write matched no row: the
	// caller's version is stale or the row is gone. Clients should refetch
	// and re-apply their change.
	ErrOptimisticLock = errors.New("optimistic lock")
)

type AppError struct {
	Err      error  // sentinel
	Message  string // Human-readable error message
	Field    string // Optional: field causing the error
	Resource string // Optional: resource kind, e.g. "template"
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:      ErrNotFound,
		Message:  fmt.Sprintf("%s not found with id %s", resource, id),
		Resource: resource,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports a uniqueness or referential conflict that refetching
// will not resolve (duplicate email, topic still in use, already liked).
func Conflict(resource, message string) *AppError {
	return &AppError{
		Err:      ErrConflict,
		Message:  message,
		Resource: resource,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized means the caller is not authenticated (or the credentials
// are wrong). HTTP handlers map this to 401.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// OptimisticLock builds the conflict returned when a versioned write
// matched zero rows.
func OptimisticLock(resource, id string) *AppError {
	return &AppError{
		Err:      ErrOptimisticLock,
		Message:  fmt.Sprintf("%s %s was modified or deleted by another request; refetch and try again", resource, id),
		Resource: resource,
	}
}

// IsOptimisticLock reports whether err (or anything it wraps) is a
// version conflict.
func IsOptimisticLock(err error) bool {
	return errors.Is(err, ErrOptimisticLock)
}

// ResourceOf returns the resource recorded on the first AppError in the
// chain, or "" if there is none.
func ResourceOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Resource
	}
	return ""
}
