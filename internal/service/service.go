// Package service contains the business rules of ReadyForms.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP)     → decodes requests, writes responses, maps errors to status codes
//	Service (business) → validates input, checks ownership, orchestrates repositories
//	Repository (data)  → SQL, transactions, versioned writes
//
// Services depend on the repository interfaces, never on sqlstore, so the
// tests in this package can use hand-written fakes or an in-memory SQLite
// store interchangeably.
//
// VERSIONED WRITES:
// Every update and delete takes the version the client last read. The
// repository turns it into a single conditional statement; when that
// statement matches nothing the service gets apperror.ErrOptimisticLock.
// Because the repository cannot tell "row is gone" from "row changed", the
// service rechecks the row once after a conflict (see afterConflict) so that
// a deleted record is reported as 404 instead of 409.
//
// ACTORS:
// Methods that need a caller take actor *model.User; nil means anonymous.
// Ownership is checked here, not in the repository.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/readyforms/readyforms-api/internal/apperror"
	"github.com/readyforms/readyforms-api/internal/model"
	"github.com/readyforms/readyforms-api/internal/repository"
)

// Listing bounds shared by every paginated endpoint.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// validate checks the struct tags on the *Input types. A single instance
// caches struct metadata across calls.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names ("topicId") rather than Go names ("TopicID").
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateInput runs the struct validator and converts the first failure
// into an apperror validation error.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperror.ValidationFailed("", err.Error())
	}
	fe := fieldErrs[0]
	field := fe.Field()
	if ns := fe.Namespace(); strings.Contains(ns, ".") {
		// Drop the struct name: "CreateTemplateInput.questions[0].title" → "questions[0].title".
		_, field, _ = strings.Cut(ns, ".")
	}
	return apperror.ValidationFailed(field, describe(field, fe))
}

func describe(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be %s characters or fewer", field, fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at most %s item(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid", field)
}

// requireVersion rejects a missing (zero) or negative version before any
// store access.
func requireVersion(version int64) error {
	if version < 1 {
		return apperror.ValidationFailed("version", "version is required and must be at least 1")
	}
	return nil
}

// afterConflict runs only when a versioned write failed. If the failure is
// a version conflict it rechecks the row: a vanished row becomes the recheck's
// NotFound error, otherwise the conflict is returned unchanged.
func afterConflict(ctx context.Context, err error, recheck func(context.Context) error) error {
	if !apperror.IsOptimisticLock(err) {
		return err
	}
	if perr := recheck(ctx); perr != nil && errors.Is(perr, apperror.ErrNotFound) {
		return perr
	}
	return err
}

// logUnexpected logs err at Error level unless it is an expected domain
// error (anything carrying an *apperror.AppError).
func logUnexpected(logger *slog.Logger, msg string, err error, attrs ...any) {
	var appErr *apperror.AppError
	if err == nil || errors.As(err, &appErr) {
		return
	}
	logger.Error(msg, append(attrs, slog.String("error", err.Error()))...)
}

// clampList applies the default and maximum page size.
func clampList(limit, offset int) repository.ListOptions {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return repository.ListOptions{Limit: limit, Offset: offset}
}

func requireActor(actor *model.User) error {
	if actor == nil {
		return apperror.Unauthorized("valid authentication required")
	}
	return nil
}

// canManage reports whether actor may modify a record owned by ownerID.
func canManage(actor *model.User, ownerID string) bool {
	return actor != nil && (actor.IsAdmin || actor.ID == ownerID)
}

// canView applies the template visibility rule for actor.
func canView(actor *model.User, t *model.Template) bool {
	if actor != nil && actor.IsAdmin {
		return true
	}
	var id string
	if actor != nil {
		id = actor.ID
	}
	return t.CanView(id)
}

// visibleTemplate loads a template and checks that actor may see it.
// Anonymous callers get 401 for private templates so the client can offer a
// login; signed-in callers get 403.
func visibleTemplate(ctx context.Context, repo repository.TemplateRepository, actor *model.User, id string) (*model.Template, error) {
	t, err := repo.GetTemplateByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, t) {
		if actor == nil {
			return nil, apperror.Unauthorized("sign in to open this template")
		}
		return nil, apperror.Forbidden("this template is not shared with you")
	}
	return t, nil
}

// StatsInvalidator drops cached statistics of a template. AnalyticsService
// implements it; services that change responses or questions call it.
type StatsInvalidator interface {
	Invalidate(ctx context.Context, templateID string)
}

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(context.Context, string) {}
