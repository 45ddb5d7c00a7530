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

var _ repository.TemplateRepository = (*DB)(nil)

const templateColumns = `id, user_id, topic_id, title, description, image_url, is_public,
	allowed_users, questions, version, created_at, updated_at`

var templatesTable = optlock.Table[*model.Template]{
	Name:     "templates",
	Resource: "template",
	Columns:  templateColumns,
	Scan:     scanTemplate,
}

func scanTemplate(row optlock.Row) (*model.Template, error) {
	var (
		t                  model.Template
		allowed, questions string
	)
	err := row.Scan(
		&t.ID, &t.UserID, &t.TopicID, &t.Title, &t.Description, &t.ImageURL,
		&t.IsPublic, &allowed, &questions, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := decodeJSON(allowed, &t.AllowedUsers); err != nil {
		return nil, fmt.Errorf("decoding allowed_users: %w", err)
	}
	if err := decodeJSON(questions, &t.Questions); err != nil {
		return nil, fmt.Errorf("decoding questions: %w", err)
	}
	t.Tags = []string{}
	return &t, nil
}

// CreateTemplate inserts the template and links its tags in one
// transaction. Tags that do not exist yet are created.
func (db *DB) CreateTemplate(ctx context.Context, tmpl *model.Template) error {
	now := time.Now().UTC()
	tmpl.ID = xid.New().String()
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now
	tmpl.Version = 1

	allowed, err := encodeJSON(tmpl.AllowedUsers)
	if err != nil {
		return fmt.Errorf("sqlstore: encoding allowed users: %w", err)
	}
	questions, err := encodeJSON(tmpl.Questions)
	if err != nil {
		return fmt.Errorf("sqlstore: encoding questions: %w", err)
	}

	return db.inTx(ctx, func(c conn) error {
		_, err := c.ExecContext(ctx,
			`INSERT INTO templates (id, user_id, topic_id, title, description, image_url, is_public,
			                        allowed_users, questions, version, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			tmpl.ID, tmpl.UserID, tmpl.TopicID, tmpl.Title, tmpl.Description, tmpl.ImageURL,
			tmpl.IsPublic, allowed, questions, tmpl.Version, tmpl.CreatedAt, tmpl.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("sqlstore: creating template: %w", err)
		}
		return setTemplateTags(ctx, c, tmpl.ID, tmpl.Tags)
	})
}

// GetTemplateByID returns the template with its tags.
func (db *DB) GetTemplateByID(ctx context.Context, id string) (*model.Template, error) {
	t, err := scanTemplate(db.conn.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("template", id)
		}
		return nil, fmt.Errorf("sqlstore: getting template %s: %w", id, err)
	}

	tags, err := db.TemplateTags(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Tags = tags
	return t, nil
}

// ListTemplates builds the WHERE clause from filter. Non-admin viewers see
// public templates, their own, and those that list them in allowed_users.
func (db *DB) ListTemplates(ctx context.Context, f repository.TemplateFilter) ([]model.TemplateSummary, error) {
	limit, offset := clamp(f.ListOptions)

	var (
		where []string
		args  []any
	)
	if q := strings.TrimSpace(f.Query); q != "" {
		pattern := "%" + escapeLike(strings.ToLower(q)) + "%"
		where = append(where, `(LOWER(t.title) LIKE ? ESCAPE '\' OR LOWER(t.description) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if f.TopicID != "" {
		where = append(where, `t.topic_id = ?`)
		args = append(args, f.TopicID)
	}
	if f.OwnerID != "" {
		where = append(where, `t.user_id = ?`)
		args = append(args, f.OwnerID)
	}
	if tag := strings.ToLower(strings.TrimSpace(f.Tag)); tag != "" {
		where = append(where, `EXISTS (SELECT 1 FROM template_tags tt JOIN tags g ON g.id = tt.tag_id
		                              WHERE tt.template_id = t.id AND g.name = ?)`)
		args = append(args, tag)
	}
	if !f.ViewerIsAdmin {
		if f.ViewerID == "" {
			where = append(where, `t.is_public = ?`)
			args = append(args, true)
		} else {
			where = append(where, `(t.is_public = ? OR t.user_id = ? OR t.allowed_users LIKE ? ESCAPE '\')`)
			args = append(args, true, f.ViewerID, `%"`+escapeLike(f.ViewerID)+`"%`)
		}
	}

	query := `SELECT ` + prefixColumns("t.", templateColumns) + `,
		(SELECT COUNT(*) FROM likes l WHERE l.template_id = t.id) AS like_count
		FROM templates t`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Sort == repository.SortPopular {
		query += " ORDER BY like_count DESC, t.created_at DESC, t.id DESC"
	} else {
		query += " ORDER BY t.created_at DESC, t.id DESC"
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing templates: %w", err)
	}
	defer rows.Close()

	out := make([]model.TemplateSummary, 0, limit)
	for rows.Next() {
		var likeCount int
		t, err := scanTemplate(scanWithExtra{rows, &likeCount})
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scanning template row: %w", err)
		}
		out = append(out, model.TemplateSummary{Template: *t, LikeCount: likeCount})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating templates: %w", err)
	}

	if err := db.fillTags(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// fillTags loads tags for a page of templates with a single query.
func (db *DB) fillTags(ctx context.Context, page []model.TemplateSummary) error {
	if len(page) == 0 {
		return nil
	}
	index := make(map[string]int, len(page))
	args := make([]any, len(page))
	for i := range page {
		index[page[i].ID] = i
		args[i] = page[i].ID
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT tt.template_id, g.name FROM template_tags tt JOIN tags g ON g.id = tt.tag_id
		 WHERE tt.template_id IN (`+placeholders(len(args))+`) ORDER BY g.name`, args...)
	if err != nil {
		return fmt.Errorf("sqlstore: loading template tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return fmt.Errorf("sqlstore: scanning template tag: %w", err)
		}
		if i, ok := index[id]; ok {
			page[i].Tags = append(page[i].Tags, name)
		}
	}
	return rows.Err()
}

// UpdateTemplate applies patch with a version check. Tag replacement and
// the versioned update commit together; on a version conflict the tag
// changes are rolled back.
func (db *DB) UpdateTemplate(ctx context.Context, id string, version int64, patch repository.TemplatePatch) (*model.Template, error) {
	var p optlock.Patch
	if patch.Title != nil {
		p.Set("title", *patch.Title)
	}
	if patch.Description != nil {
		p.Set("description", *patch.Description)
	}
	if patch.ImageURL != nil {
		p.Set("image_url", *patch.ImageURL)
	}
	if patch.TopicID != nil {
		p.Set("topic_id", *patch.TopicID)
	}
	if patch.IsPublic != nil {
		p.Set("is_public", *patch.IsPublic)
	}
	if patch.AllowedUsers != nil {
		s, err := encodeJSON(*patch.AllowedUsers)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: encoding allowed users: %w", err)
		}
		p.Set("allowed_users", s)
	}
	if patch.Questions != nil {
		s, err := encodeJSON(*patch.Questions)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: encoding questions: %w", err)
		}
		p.Set("questions", s)
	}
	p.Set("updated_at", time.Now().UTC())

	var updated *model.Template
	err := db.inTx(ctx, func(c conn) error {
		t, err := optlock.Update(ctx, c, templatesTable, id, version, p)
		if err != nil {
			return err
		}
		if patch.Tags != nil {
			if err := setTemplateTags(ctx, c, id, *patch.Tags); err != nil {
				return err
			}
		}
		tags, err := queryStrings(ctx, c,
			`SELECT g.name FROM template_tags tt JOIN tags g ON g.id = tt.tag_id
			 WHERE tt.template_id = ? ORDER BY g.name`, id)
		if err != nil {
			return fmt.Errorf("sqlstore: loading tags of template %s: %w", id, err)
		}
		t.Tags = nonNil(tags)
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTemplate deletes dependents first, then the template itself with a
// version check, all in one transaction. A stale version rolls back the
// dependent deletes too.
func (db *DB) DeleteTemplate(ctx context.Context, id string, version int64) error {
	return db.inTx(ctx, func(c conn) error {
		if err := deleteTemplateDependents(ctx, c, id); err != nil {
			return err
		}
		_, err := optlock.Delete(ctx, c, "templates", "template", id, version)
		return err
	})
}

func deleteTemplateDependents(ctx context.Context, c conn, templateID string) error {
	for _, stmt := range []string{
		`DELETE FROM comments WHERE template_id = ?`,
		`DELETE FROM likes WHERE template_id = ?`,
		`DELETE FROM form_responses WHERE template_id = ?`,
		`DELETE FROM template_tags WHERE template_id = ?`,
	} {
		if _, err := c.ExecContext(ctx, stmt, templateID); err != nil {
			return fmt.Errorf("sqlstore: deleting dependents of template %s: %w", templateID, err)
		}
	}
	return nil
}

// setTemplateTags replaces the template's tag links, creating missing tags.
func setTemplateTags(ctx context.Context, c conn, templateID string, names []string) error {
	if _, err := c.ExecContext(ctx, `DELETE FROM template_tags WHERE template_id = ?`, templateID); err != nil {
		return fmt.Errorf("sqlstore: clearing tags of template %s: %w", templateID, err)
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		_, err := c.ExecContext(ctx,
			`INSERT INTO tags (id, name, version, created_at, updated_at) VALUES (?, ?, 1, ?, ?)
			 ON CONFLICT (name) DO NOTHING`,
			xid.New().String(), name, now, now,
		)
		if err != nil {
			return fmt.Errorf("sqlstore: creating tag %q: %w", name, err)
		}

		var tagID string
		if err := c.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&tagID); err != nil {
			return fmt.Errorf("sqlstore: looking up tag %q: %w", name, err)
		}
		if _, err := c.ExecContext(ctx,
			`INSERT INTO template_tags (template_id, tag_id) VALUES (?, ?)`, templateID, tagID); err != nil {
			return fmt.Errorf("sqlstore: linking tag %q: %w", name, err)
		}
	}
	return nil
}

// scanWithExtra scans the template columns followed by extra trailing
// columns (computed aggregates).
type scanWithExtra struct {
	row   optlock.Row
	extra any
}

func (s scanWithExtra) Scan(dest ...any) error {
	return s.row.Scan(append(dest, s.extra)...)
}

func prefixColumns(prefix, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
