package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/readyforms/readyforms-api/internal/apperror"
	"github.com/readyforms/readyforms-api/internal/model"
	"github.com/readyforms/readyforms-api/internal/repository"
	"github.com/readyforms/readyforms-api/internal/repository/optlock"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, name, email, password_hash, github_id, is_admin, is_blocked,
	last_login_at, version, created_at, updated_at`

var usersTable = optlock.Table[*model.User]{
	Name:     "users",
	Resource: "user",
	Columns:  userColumns,
	Scan:     scanUser,
}

func scanUser(row optlock.Row) (*model.User, error) {
	var (
		u         model.User
		githubID  sql.NullInt64
		lastLogin sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &githubID,
		&u.IsAdmin, &u.IsBlocked, &lastLogin, &u.Version,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if githubID.Valid {
		id := githubID.Int64
		u.GitHubID = &id
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

// CreateUser inserts a user with version 1. The email is stored
// lower-cased; a duplicate email or GitHub id is a Conflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Version = 1

	var githubID any
	if user.GitHubID != nil {
		githubID = *user.GitHubID
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, github_id, is_admin, is_blocked,
		                    version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Email, user.PasswordHash, githubID,
		user.IsAdmin, user.IsBlocked, user.Version, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", "a user with this email already exists")
		}
		return fmt.Errorf("sqlstore: creating user: %w", err)
	}
	return nil
}

func (db *DB) getUser(ctx context.Context, where string, arg any, label string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", label)
		}
		return nil, fmt.Errorf("sqlstore: getting user %s: %w", label, err)
	}
	return u, nil
}

// GetUserByID retrieves a user by internal ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, "id = ?", id, id)
}

// GetUserByEmail looks a user up by email, case-insensitively.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return db.getUser(ctx, "email = ?", email, email)
}

// GetUserByGitHubID looks a user up by linked GitHub account.
func (db *DB) GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return db.getUser(ctx, "github_id = ?", githubID, fmt.Sprintf("github:%d", githubID))
}

// ListUsers returns users oldest first.
func (db *DB) ListUsers(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	limit, offset := clamp(opts)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating users: %w", err)
	}
	return users, nil
}

// UpdateUser applies patch if the stored version equals version.
func (db *DB) UpdateUser(ctx context.Context, id string, version int64, patch repository.UserPatch) (*model.User, error) {
	var p optlock.Patch
	if patch.Name != nil {
		p.Set("name", *patch.Name)
	}
	if patch.IsAdmin != nil {
		p.Set("is_admin", *patch.IsAdmin)
	}
	if patch.IsBlocked != nil {
		p.Set("is_blocked", *patch.IsBlocked)
	}
	if patch.GitHubID != nil {
		p.Set("github_id", *patch.GitHubID)
	}
	p.Set("updated_at", time.Now().UTC())

	u, err := optlock.Update(ctx, db.conn, usersTable, id, version, p)
	if err != nil && isUniqueViolation(err) {
		return nil, apperror.Conflict("user", "GitHub account is already linked to another user")
	}
	return u, err
}

// TouchLogin stamps last_login_at. It is bookkeeping, not an edit, so the
// version is left alone.
func (db *DB) TouchLogin(ctx context.Context, id string, at time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE users SET last_login_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlstore: touching login for %s: %w", id, err)
	}
	return nil
}

// DeleteUser removes the user's likes, comments and responses, then each
// template they own (with its dependents), then the user row itself. The
// final delete is version-checked; any failure rolls everything back.
//
// It returns the ids of the other users' templates that lost responses, so
// the caller can drop their cached statistics.
func (db *DB) DeleteUser(ctx context.Context, id string, version int64) ([]string, error) {
	var answered []string
	err := db.inTx(ctx, func(c conn) error {
		var err error
		answered, err = queryStrings(ctx, c,
			`SELECT DISTINCT r.template_id FROM form_responses r
			 JOIN templates t ON t.id = r.template_id
			 WHERE r.user_id = ? AND t.user_id <> ?`, id, id)
		if err != nil {
			return fmt.Errorf("sqlstore: listing templates answered by user %s: %w", id, err)
		}

		for _, stmt := range []string{
			`DELETE FROM likes WHERE user_id = ?`,
			`DELETE FROM comments WHERE user_id = ?`,
			`DELETE FROM form_responses WHERE user_id = ?`,
		} {
			if _, err := c.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("sqlstore: deleting content of user %s: %w", id, err)
			}
		}

		ids, err := queryStrings(ctx, c, `SELECT id FROM templates WHERE user_id = ?`, id)
		if err != nil {
			return fmt.Errorf("sqlstore: listing templates of user %s: %w", id, err)
		}
		for _, tid := range ids {
			if err := deleteTemplateDependents(ctx, c, tid); err != nil {
				return err
			}
			if _, err := c.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, tid); err != nil {
				return fmt.Errorf("sqlstore: deleting template %s: %w", tid, err)
			}
		}

		_, err = optlock.Delete(ctx, c, "users", "user", id, version)
		return err
	})
	if err != nil {
		return nil, err
	}
	return answered, nil
}

// queryStrings runs a single-column query and collects the values.
func queryStrings(ctx context.Context, c conn, query string, args ...any) ([]string, error) {
	rows, err := c.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// clamp applies the default and maximum page size.
func clamp(opts repository.ListOptions) (limit, offset int) {
	limit = opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset = opts.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
