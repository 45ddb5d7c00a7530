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

var _ repository.CommentRepository = (*DB)(nil)

func (db *DB) CreateComment(ctx context.Context, c *model.Comment) error {
	now := time.Now().UTC()
	c.ID = xid.New().String()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Version = 1

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO comments (id, template_id, user_id, content, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TemplateID, c.UserID, c.Content, c.Version, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: creating comment: %w", err)
	}
	return nil
}

// commentSelect joins the author's name for display.
const commentSelect = `SELECT c.id, c.template_id, c.user_id, COALESCE(u.name, ''), c.content,
	c.version, c.created_at, c.updated_at
	FROM comments c LEFT JOIN users u ON u.id = c.user_id`

func scanComment(row optlock.Row) (*model.Comment, error) {
	var c model.Comment
	err := row.Scan(&c.ID, &c.TemplateID, &c.UserID, &c.AuthorName, &c.Content,
		&c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *DB) GetCommentByID(ctx context.Context, id string) (*model.Comment, error) {
	c, err := scanComment(db.conn.QueryRowContext(ctx, commentSelect+` WHERE c.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("comment", id)
		}
		return nil, fmt.Errorf("sqlstore: getting comment %s: %w", id, err)
	}
	return c, nil
}

// ListComments returns a template's comments oldest first, like a thread.
func (db *DB) ListComments(ctx context.Context, templateID string, opts repository.ListOptions) ([]model.Comment, error) {
	limit, offset := clamp(opts)
	rows, err := db.conn.QueryContext(ctx,
		commentSelect+` WHERE c.template_id = ? ORDER BY c.created_at, c.id LIMIT ? OFFSET ?`,
		templateID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing comments: %w", err)
	}
	defer rows.Close()

	out := make([]model.Comment, 0, limit)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scanning comment row: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating comments: %w", err)
	}
	return out, nil
}

func (db *DB) CountComments(ctx context.Context, templateID string) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM comments WHERE template_id = ?`, templateID).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlstore: counting comments: %w", err)
	}
	return n, nil
}

func (db *DB) DeleteComment(ctx context.Context, id string, version int64) error {
	_, err := optlock.Delete(ctx, db.conn, "comments", "comment", id, version)
	return err
}
