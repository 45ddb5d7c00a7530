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

var _ repository.TopicRepository = (*DB)(nil)

const topicColumns = `id, name, version, created_at, updated_at`

var topicsTable = optlock.Table[*model.Topic]{
	Name:     "topics",
	Resource: "topic",
	Columns:  topicColumns,
	Scan:     scanTopic,
}

func scanTopic(row optlock.Row) (*model.Topic, error) {
	var t model.Topic
	if err := row.Scan(&t.ID, &t.Name, &t.Version, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (db *DB) CreateTopic(ctx context.Context, topic *model.Topic) error {
	now := time.Now().UTC()
	topic.ID = xid.New().String()
	topic.CreatedAt = now
	topic.UpdatedAt = now
	topic.Version = 1

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO topics (id, name, version, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		topic.ID, topic.Name, topic.Version, topic.CreatedAt, topic.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("topic", fmt.Sprintf("topic %q already exists", topic.Name))
		}
		return fmt.Errorf("sqlstore: creating topic: %w", err)
	}
	return nil
}

func (db *DB) GetTopicByID(ctx context.Context, id string) (*model.Topic, error) {
	t, err := scanTopic(db.conn.QueryRowContext(ctx,
		`SELECT `+topicColumns+` FROM topics WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("topic", id)
		}
		return nil, fmt.Errorf("sqlstore: getting topic %s: %w", id, err)
	}
	return t, nil
}

// ListTopics returns all topics alphabetically. The list is small and
// admin-curated, so it is not paginated.
func (db *DB) ListTopics(ctx context.Context) ([]model.Topic, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+topicColumns+` FROM topics ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing topics: %w", err)
	}
	defer rows.Close()

	topics := []model.Topic{}
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scanning topic row: %w", err)
		}
		topics = append(topics, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating topics: %w", err)
	}
	return topics, nil
}

func (db *DB) UpdateTopic(ctx context.Context, id string, version int64, name string) (*model.Topic, error) {
	var p optlock.Patch
	p.Set("name", name).Set("updated_at", time.Now().UTC())

	t, err := optlock.Update(ctx, db.conn, topicsTable, id, version, p)
	if err != nil && isUniqueViolation(err) {
		return nil, apperror.Conflict("topic", fmt.Sprintf("topic %q already exists", name))
	}
	return t, err
}

// DeleteTopic refuses to remove a topic that templates still point at. The
// usage check and the delete share a transaction; a template inserted
// concurrently still trips the foreign key, reported the same way.
func (db *DB) DeleteTopic(ctx context.Context, id string, version int64) error {
	return db.inTx(ctx, func(c conn) error {
		var n int
		if err := c.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM templates WHERE topic_id = ?`, id).Scan(&n); err != nil {
			return fmt.Errorf("sqlstore: counting templates for topic %s: %w", id, err)
		}
		if n > 0 {
			return apperror.Conflict("topic", fmt.Sprintf("topic is used by %d template(s)", n))
		}
		return deleteTopicRow(ctx, c, id, version)
	})
}

func deleteTopicRow(ctx context.Context, c conn, id string, version int64) error {
	_, err := optlock.Delete(ctx, c, "topics", "topic", id, version)
	if isForeignKeyViolation(err) {
		return apperror.Conflict("topic", "topic is used by templates")
	}
	return err
}
