package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/readyforms/readyforms-api/internal/apperror"
	"github.com/readyforms/readyforms-api/internal/auth"
	"github.com/readyforms/readyforms-api/internal/model"
	"github.com/readyforms/readyforms-api/internal/repository"
)

// AuthService registers users, checks credentials and issues tokens.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                               ↘ TokenService (JWT), PasswordService (bcrypt)
//
// It does not touch cookies or requests; that is the handler's job.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
	now       func() time.Time
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
		now:       time.Now,
	}
}

// AuthResult bundles the user and the issued JWT so the handler can set the
// cookie and respond in one step.
type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// errBadCredentials is deliberately the same for an unknown email and a
// wrong password.
var errBadCredentials = apperror.Unauthorized("invalid email or password")

// Register creates a password account and signs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{Name: in.Name, Email: in.Email, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		logUnexpected(s.logger, "register: creating user", err)
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	return s.signIn(ctx, user)
}

// Login checks an email/password pair.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, errBadCredentials
		}
		logUnexpected(s.logger, "login: loading user", err)
		return nil, fmt.Errorf("service/auth: loading user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, in.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, errBadCredentials
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}
	return s.signIn(ctx, user)
}

// LoginWithGitHub finds the local account for a GitHub profile: first by
// linked GitHub id, then by email (linking the account), otherwise it
// creates a GitHub-only account without a password.
func (s *AuthService) LoginWithGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil || gh.ID == 0 {
		return nil, errors.New("service/auth: GitHub user must not be empty")
	}

	user, err := s.users.GetUserByGitHubID(ctx, gh.ID)
	switch {
	case err == nil:
		return s.signIn(ctx, user)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: loading user by GitHub id: %w", err)
	}

	user, err = s.users.GetUserByEmail(ctx, gh.Email)
	switch {
	case err == nil:
		githubID := gh.ID
		linked, err := s.users.UpdateUser(ctx, user.ID, user.Version, repository.UserPatch{GitHubID: &githubID})
		if err != nil {
			return nil, fmt.Errorf("service/auth: linking GitHub account: %w", err)
		}
		s.logger.Info("GitHub account linked", slog.String("userID", linked.ID), slog.Int64("githubID", gh.ID))
		return s.signIn(ctx, linked)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: loading user by email: %w", err)
	}

	githubID := gh.ID
	user = &model.User{Name: gh.DisplayName(), Email: gh.Email, GitHubID: &githubID}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating GitHub user: %w", err)
	}
	s.logger.Info("user registered via GitHub", slog.String("userID", user.ID), slog.Int64("githubID", gh.ID))
	return s.signIn(ctx, user)
}

// signIn rejects blocked accounts, stamps the login time and issues a token.
func (s *AuthService) signIn(ctx context.Context, user *model.User) (*AuthResult, error) {
	if user.IsBlocked {
		return nil, apperror.Forbidden("account is blocked")
	}

	now := s.now().UTC()
	if err := s.users.TouchLogin(ctx, user.ID, now); err != nil {
		// Bookkeeping only; the login itself is still valid.
		s.logger.Warn("recording login time", slog.String("userID", user.ID), slog.String("error", err.Error()))
	} else {
		user.LastLoginAt = &now
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}
