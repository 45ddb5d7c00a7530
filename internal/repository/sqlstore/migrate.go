package sqlstore

import (
	"context"
	"fmt"
)

// migrations are applied in order. Every statement is idempotent
// (IF NOT EXISTS), so running them on an existing database is a no-op.
var migrations = []struct {
	name string
	sql  []string
}{
	{
		name: "users",
		sql: []string{`
			CREATE TABLE IF NOT EXISTS users (
				id            TEXT PRIMARY KEY,
				name          TEXT NOT NULL,
				email         TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL DEFAULT '',
				github_id     BIGINT UNIQUE,
				is_admin      BOOLEAN NOT NULL DEFAULT FALSE,
				is_blocked    BOOLEAN NOT NULL DEFAULT FALSE,
				last_login_at TIMESTAMP,
				version       BIGINT NOT NULL DEFAULT 1,
				created_at    TIMESTAMP NOT NULL,
				updated_at    TIMESTAMP NOT NULL
			)`,
		},
	},
	{
		name: "topics",
		sql: []string{`
			CREATE TABLE IF NOT EXISTS topics (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL UNIQUE,
				version    BIGINT NOT NULL DEFAULT 1,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`,
		},
	},
	{
		name: "templates",
		sql: []string{`
			CREATE TABLE IF NOT EXISTS templates (
				id            TEXT PRIMARY KEY,
				user_id       TEXT NOT NULL REFERENCES users(id),
				topic_id      TEXT NOT NULL REFERENCES topics(id),
				title         TEXT NOT NULL,
				description   TEXT NOT NULL DEFAULT '',
				image_url     TEXT NOT NULL DEFAULT '',
				is_public     BOOLEAN NOT NULL DEFAULT TRUE,
				allowed_users TEXT NOT NULL DEFAULT '[]',
				questions     TEXT NOT NULL DEFAULT '[]',
				version       BIGINT NOT NULL DEFAULT 1,
				created_at    TIMESTAMP NOT NULL,
				updated_at    TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_templates_user_id ON templates(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_templates_topic_id ON templates(topic_id)`,
			`CREATE INDEX IF NOT EXISTS idx_templates_created_at ON templates(created_at)`,
		},
	},
	{
		name: "tags",
		sql: []string{`
			CREATE TABLE IF NOT EXISTS tags (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL UNIQUE,
				version    BIGINT NOT NULL DEFAULT 1,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`, `
			CREATE TABLE IF NOT EXISTS template_tags (
				template_id TEXT NOT NULL REFERENCES templates(id),
				tag_id      TEXT NOT NULL REFERENCES tags(id),
				PRIMARY KEY (template_id, tag_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_template_tags_tag_id ON template_tags(tag_id)`,
		},
	},
	{
		name: "form_responses",
		sql: []string{`
			CREATE TABLE IF NOT EXISTS form_responses (
				id          TEXT PRIMARY KEY,
				template_id TEXT NOT NULL REFERENCES templates(id),
				user_id     TEXT NOT NULL REFERENCES users(id),
				answers     TEXT NOT NULL DEFAULT '[]',
				version     BIGINT NOT NULL DEFAULT 1,
				created_at  TIMESTAMP NOT NULL,
				updated_at  TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_form_responses_template_id ON form_responses(template_id)`,
			`CREATE INDEX IF NOT EXISTS idx_form_responses_user_id ON form_responses(user_id)`,
		},
	},
	{
		name: "comments",
		sql: []string{`
			CREATE TABLE IF NOT EXISTS comments (
				id          TEXT PRIMARY KEY,
				template_id TEXT NOT NULL REFERENCES templates(id),
				user_id     TEXT NOT NULL REFERENCES users(id),
				content     TEXT NOT NULL,
				version     BIGINT NOT NULL DEFAULT 1,
				created_at  TIMESTAMP NOT NULL,
				updated_at  TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_comments_template_id ON comments(template_id)`,
		},
	},
	{
		name: "likes",
		sql: []string{`
			CREATE TABLE IF NOT EXISTS likes (
				id          TEXT PRIMARY KEY,
				template_id TEXT NOT NULL REFERENCES templates(id),
				user_id     TEXT NOT NULL REFERENCES users(id),
				version     BIGINT NOT NULL DEFAULT 1,
				created_at  TIMESTAMP NOT NULL,
				updated_at  TIMESTAMP NOT NULL,
				UNIQUE (template_id, user_id)
			)`,
		},
	},
}

// Migrate creates or updates the schema.
func (db *DB) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		for _, stmt := range m.sql {
			if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration %s: %w", m.name, err)
			}
		}
	}
	return nil
}
