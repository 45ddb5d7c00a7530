package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/readyforms/readyforms-api/internal/model"
	"github.com/readyforms/readyforms-api/internal/repository"
)

// UserService backs the admin user table. Routes using it are wrapped in
// auth.RequireAdmin, so the methods do not re-check the role.
type UserService struct {
	users  repository.UserRepository
	stats  StatsInvalidator
	logger *slog.Logger
}

// NewUserService builds the service. stats may be nil when nothing caches
// template statistics.
func NewUserService(users repository.UserRepository, stats StatsInvalidator, logger *slog.Logger) *UserService {
	if stats == nil {
		stats = nopInvalidator{}
	}
	return &UserService{users: users, stats: stats, logger: logger}
}

// UpdateUserInput is the admin edit. Nil fields are left unchanged.
type UpdateUserInput struct {
	Version   int64   `json:"version"`
	Name      *string `json:"name" validate:"omitempty,min=1,max=100"`
	IsAdmin   *bool   `json:"isAdmin"`
	IsBlocked *bool   `json:"isBlocked"`
}

func (s *UserService) List(ctx context.Context, limit, offset int) ([]model.User, error) {
	users, err := s.users.ListUsers(ctx, clampList(limit, offset))
	if err != nil {
		logUnexpected(s.logger, "listing users", err)
		return nil, fmt.Errorf("service/user: listing users: %w", err)
	}
	return users, nil
}

// Update applies an admin edit if the client's version is current.
// Admins may demote or block themselves.
func (s *UserService) Update(ctx context.Context, id string, in UpdateUserInput) (*model.User, error) {
	if err := requireVersion(in.Version); err != nil {
		return nil, err
	}
	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		in.Name = &trimmed
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	updated, err := s.users.UpdateUser(ctx, id, in.Version, repository.UserPatch{
		Name:      in.Name,
		IsAdmin:   in.IsAdmin,
		IsBlocked: in.IsBlocked,
	})
	if err != nil {
		err = afterConflict(ctx, err, func(ctx context.Context) error {
			_, err := s.users.GetUserByID(ctx, id)
			return err
		})
		logUnexpected(s.logger, "updating user", err, slog.String("userID", id))
		return nil, fmt.Errorf("service/user: updating user %s: %w", id, err)
	}

	s.logger.Info("user updated",
		slog.String("userID", id),
		slog.Int64("version", updated.Version),
	)
	return updated, nil
}

// Delete removes the user and everything they own. Statistics of other
// templates the user answered are invalidated afterwards.
func (s *UserService) Delete(ctx context.Context, id string, version int64) error {
	if err := requireVersion(version); err != nil {
		return err
	}
	answered, err := s.users.DeleteUser(ctx, id, version)
	if err != nil {
		err = afterConflict(ctx, err, func(ctx context.Context) error {
			_, err := s.users.GetUserByID(ctx, id)
			return err
		})
		logUnexpected(s.logger, "deleting user", err, slog.String("userID", id))
		return fmt.Errorf("service/user: deleting user %s: %w", id, err)
	}
	for _, templateID := range answered {
		s.stats.Invalidate(ctx, templateID)
	}
	s.logger.Info("user deleted",
		slog.String("userID", id),
		slog.Int("answeredTemplates", len(answered)),
	)
	return nil
}

// Promote grants admin rights by email. It backs the "promote" CLI command
// used to bootstrap the first admin. Promoting an admin is a no-op.
func (s *UserService) Promote(ctx context.Context, email string) (*model.User, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("service/user: loading %s: %w", email, err)
	}
	if user.IsAdmin {
		return user, nil
	}
	admin := true
	updated, err := s.users.UpdateUser(ctx, user.ID, user.Version, repository.UserPatch{IsAdmin: &admin})
	if err != nil {
		return nil, fmt.Errorf("service/user: promoting %s: %w", email, err)
	}
	s.logger.Info("user promoted to admin", slog.String("userID", updated.ID))
	return updated, nil
}
