package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/readyforms/readyforms-api/internal/apperror"
	"github.com/readyforms/readyforms-api/internal/model"
	"github.com/readyforms/readyforms-api/internal/repository"
	"github.com/readyforms/readyforms-api/internal/repository/optlock"
)

var _ repository.LikeRepository = (*DB)(nil)

const likeColumns = `id, template_id, user_id, version, created_at, updated_at`

func scanLike(row optlock.Row) (*model.Like, error) {
	var l model.Like
	if err := row.Scan(&l.ID, &l.TemplateID, &l.UserID, &l.Version, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateLike relies on the UNIQUE (template_id, user_id) constraint to
// reject a second like from the same user.
func (db *DB) CreateLike(ctx context.Context, like *model.Like) error {
	now := time.Now().UTC()
	like.ID = xid.New().String()
	like.CreatedAt = now
	like.UpdatedAt = now
	like.Version = 1

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO likes (id, template_id, user_id, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		like.ID, like.TemplateID, like.UserID, like.Version, like.CreatedAt, like.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("like", "template already liked")
		}
		return fmt.Errorf("sqlstore: creating like: %w", err)
	}
	return nil
}

func (db *DB) getLike(ctx context.Context, where string, label string, args ...any) (*model.Like, error) {
	l, err := scanLike(db.conn.QueryRowContext(ctx,
		`SELECT `+likeColumns+` FROM likes WHERE `+where, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("like", label)
		}
		return nil, fmt.Errorf("sqlstore: getting like %s: %w", label, err)
	}
	return l, nil
}

func (db *DB) GetLikeByID(ctx context.Context, id string) (*model.Like, error) {
	return db.getLike(ctx, "id = ?", id, id)
}

func (db *DB) FindLike(ctx context.Context, templateID, userID string) (*model.Like, error) {
	return db.getLike(ctx, "template_id = ? AND user_id = ?", templateID+"/"+userID, templateID, userID)
}

func (db *DB) CountLikes(ctx context.Context, templateID string) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM likes WHERE template_id = ?`, templateID).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlstore: counting likes: %w", err)
	}
	return n, nil
}

func (db *DB) DeleteLike(ctx context.Context, id string, version int64) error {
	_, err := optlock.Delete(ctx, db.conn, "likes", "like", id, version)
	return err
}
