package handler

// RESPONSE HELPERS:
// These functions standardise how we read JSON requests and send JSON
// responses and errors, so every handler stays a few lines long:
//
//	writeJSON(w, http.StatusOK, data)
//	writeError(w, err)
//
// CONSISTENT ERROR FORMAT:
// Every error response from our API has the same shape:
//
//	{"error": "not_found", "message": "template not found with id abc123"}
//
// The one special tag is OPTIMISTIC_LOCK_ERROR: the client sent a version
// that is no longer current and should reload before retrying.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/readyforms/readyforms-api/internal/apperror"
	"github.com/readyforms/readyforms-api/internal/auth"
	"github.com/readyforms/readyforms-api/internal/model"
)

// OptimisticLockErrorTag is the "error" value of a stale-version response.
const OptimisticLockErrorTag = "OPTIMISTIC_LOCK_ERROR"

// maxBodyBytes caps request bodies. A template with every question filled
// in stays far below it.
const maxBodyBytes = 1 << 20

// optimisticLockConflicts counts rejected stale writes per resource.
var optimisticLockConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "readyforms_optimistic_lock_conflicts_total",
	Help: "Writes rejected because the client's version was stale, by resource.",
}, []string{"resource"})

// errNotSignedIn guards handlers mounted behind RequireAuth in case the
// route table changes.
var errNotSignedIn = apperror.Unauthorized("valid authentication required")

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Offending input field for validation errors
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE the body is written. Once Encode
// writes, any header change is silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeVersioned sends a versioned record with its ETag.
func writeVersioned(w http.ResponseWriter, status int, version int64, data any) {
	setETag(w, version)
	writeJSON(w, status, data)
}

// writeDeleted confirms a successful versioned DELETE: 200 {"message": "<resource> deleted"}.
func writeDeleted(w http.ResponseWriter, resource string) {
	writeJSON(w, http.StatusOK, map[string]string{"message": resource + " deleted"})
}

// setETag echoes the record version as a strong entity tag: ETag: "3".
func setETag(w http.ResponseWriter, version int64) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(version, 10)))
}

// handleOptimisticLockError writes 409 OPTIMISTIC_LOCK_ERROR when err is a
// version conflict and reports whether it did. Callers fall back to
// writeError when it returns false.
func handleOptimisticLockError(w http.ResponseWriter, err error) bool {
	if !apperror.IsOptimisticLock(err) {
		return false
	}
	resource := apperror.ResourceOf(err)
	if resource == "" {
		resource = "unknown"
	}
	optimisticLockConflicts.WithLabelValues(resource).Inc()

	message := "the record was modified by someone else; reload it and try again"
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		message = appErr.Message
	}
	writeJSON(w, http.StatusConflict, ErrorResponse{Error: OptimisticLockErrorTag, Message: message})
	return true
}

// writeMutationError is the error path of every versioned PUT and DELETE.
func writeMutationError(w http.ResponseWriter, err error) {
	if handleOptimisticLockError(w, err) {
		return
	}
	writeError(w, err)
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// errors.Is() walks the whole chain, so a service error such as
//
//	fmt.Errorf("service/template: updating template x: %w", apperror.NotFound(...))
//
// still maps to 404.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest // 400
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized // 401
			errorType = "unauthorized"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden // 403
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound // 404
			errorType = "not_found"
		case errors.Is(err, apperror.ErrOptimisticLock):
			status = http.StatusConflict // 409
			errorType = OptimisticLockErrorTag
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict // 409
			errorType = "conflict"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
			Field:   appErr.Field,
		})
		return
	}

	// Unknown error: never expose internal details (SQL, file paths) to
	// the client. The service layer has already logged it.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst at its
// zero value, so a DELETE without a body fails later on the missing
// version rather than here.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	default:
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperror.ValidationFailed("", fmt.Sprintf("request body must be at most %d bytes", maxBodyBytes))
		}
		return apperror.ValidationFailed("", "invalid JSON body: "+err.Error())
	}
}

// versionBody is the body of DELETE requests on versioned records.
type versionBody struct {
	Version int64 `json:"version"`
}

func decodeVersion(w http.ResponseWriter, r *http.Request) (int64, error) {
	var body versionBody
	if err := decodeJSON(w, r, &body); err != nil {
		return 0, err
	}
	return body.Version, nil
}

// actorFrom returns the signed-in user, or nil for anonymous requests.
func actorFrom(r *http.Request) *model.User {
	user, _ := auth.UserFromContext(r.Context())
	return user
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(name, name+" must be an integer")
	}
	return n, nil
}

// pagination reads limit and offset. The service clamps the values.
func pagination(r *http.Request) (limit, offset int, err error) {
	if limit, err = queryInt(r, "limit"); err != nil {
		return 0, 0, err
	}
	if offset, err = queryInt(r, "offset"); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}
