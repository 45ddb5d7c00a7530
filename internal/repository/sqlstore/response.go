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

var _ repository.ResponseRepository = (*DB)(nil)

const responseColumns = `id, template_id, user_id, answers, version, created_at, updated_at`

var responsesTable = optlock.Table[*model.FormResponse]{
	Name:     "form_responses",
	Resource: "response",
	Columns:  responseColumns,
	Scan:     scanResponse,
}

func scanResponse(row optlock.Row) (*model.FormResponse, error) {
	var (
		r       model.FormResponse
		answers string
	)
	if err := row.Scan(&r.ID, &r.TemplateID, &r.UserID, &answers, &r.Version, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := decodeJSON(answers, &r.Answers); err != nil {
		return nil, fmt.Errorf("decoding answers: %w", err)
	}
	return &r, nil
}

func (db *DB) CreateResponse(ctx context.Context, resp *model.FormResponse) error {
	now := time.Now().UTC()
	resp.ID = xid.New().String()
	resp.CreatedAt = now
	resp.UpdatedAt = now
	resp.Version = 1

	answers, err := encodeJSON(resp.Answers)
	if err != nil {
		return fmt.Errorf("sqlstore: encoding answers: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO form_responses (id, template_id, user_id, answers, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		resp.ID, resp.TemplateID, resp.UserID, answers, resp.Version, resp.CreatedAt, resp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: creating response: %w", err)
	}
	return nil
}

func (db *DB) GetResponseByID(ctx context.Context, id string) (*model.FormResponse, error) {
	r, err := scanResponse(db.conn.QueryRowContext(ctx,
		`SELECT `+responseColumns+` FROM form_responses WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("response", id)
		}
		return nil, fmt.Errorf("sqlstore: getting response %s: %w", id, err)
	}
	return r, nil
}

func (db *DB) listResponses(ctx context.Context, column, value string, opts repository.ListOptions) ([]model.FormResponse, error) {
	limit, offset := clamp(opts)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+responseColumns+` FROM form_responses WHERE `+column+` = ?
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		value, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing responses: %w", err)
	}
	defer rows.Close()

	out := make([]model.FormResponse, 0, limit)
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scanning response row: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating responses: %w", err)
	}
	return out, nil
}

// ListResponsesByTemplate returns a page of a template's responses, newest first.
func (db *DB) ListResponsesByTemplate(ctx context.Context, templateID string, opts repository.ListOptions) ([]model.FormResponse, error) {
	return db.listResponses(ctx, "template_id", templateID, opts)
}

// ListResponsesByUser returns a page of the user's own responses.
func (db *DB) ListResponsesByUser(ctx context.Context, userID string, opts repository.ListOptions) ([]model.FormResponse, error) {
	return db.listResponses(ctx, "user_id", userID, opts)
}

// AllAnswers calls fn with the answers of every response to the template.
// Rows are decoded one at a time so large templates are not held in memory.
func (db *DB) AllAnswers(ctx context.Context, templateID string, fn func([]model.Answer) error) error {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT answers FROM form_responses WHERE template_id = ?`, templateID)
	if err != nil {
		return fmt.Errorf("sqlstore: reading answers of template %s: %w", templateID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("sqlstore: scanning answers: %w", err)
		}
		var answers []model.Answer
		if err := decodeJSON(raw, &answers); err != nil {
			return fmt.Errorf("sqlstore: decoding answers: %w", err)
		}
		if err := fn(answers); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (db *DB) UpdateResponse(ctx context.Context, id string, version int64, answers []model.Answer) (*model.FormResponse, error) {
	encoded, err := encodeJSON(answers)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: encoding answers: %w", err)
	}
	var p optlock.Patch
	p.Set("answers", encoded).Set("updated_at", time.Now().UTC())
	return optlock.Update(ctx, db.conn, responsesTable, id, version, p)
}

func (db *DB) DeleteResponse(ctx context.Context, id string, version int64) error {
	_, err := optlock.Delete(ctx, db.conn, "form_responses", "response", id, version)
	return err
}
