package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/readyforms/readyforms-api/internal/model"
	"github.com/readyforms/readyforms-api/internal/repository"
)

var _ repository.TagRepository = (*DB)(nil)

// ListTags returns tags with the number of templates using them, most used
// first. prefix narrows the result for autocomplete.
func (db *DB) ListTags(ctx context.Context, prefix string, limit int) ([]model.TagCount, error) {
	limit, _ = clamp(repository.ListOptions{Limit: limit})

	query := `SELECT g.name, COUNT(tt.template_id) AS uses
		FROM tags g LEFT JOIN template_tags tt ON tt.tag_id = g.id`
	var args []any
	if prefix = strings.ToLower(strings.TrimSpace(prefix)); prefix != "" {
		query += ` WHERE g.name LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(prefix)+"%")
	}
	query += ` GROUP BY g.name ORDER BY uses DESC, g.name LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing tags: %w", err)
	}
	defer rows.Close()

	out := []model.TagCount{}
	for rows.Next() {
		var tc model.TagCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, fmt.Errorf("sqlstore: scanning tag row: %w", err)
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating tags: %w", err)
	}
	return out, nil
}

// TemplateTags returns the tag names of one template, sorted.
func (db *DB) TemplateTags(ctx context.Context, templateID string) ([]string, error) {
	tags, err := queryStrings(ctx, db.conn,
		`SELECT g.name FROM template_tags tt JOIN tags g ON g.id = tt.tag_id
		 WHERE tt.template_id = ? ORDER BY g.name`, templateID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: loading tags of template %s: %w", templateID, err)
	}
	return nonNil(tags), nil
}
