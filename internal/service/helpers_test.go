package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readyforms/readyforms-api/internal/apperror"
	"github.com/readyforms/readyforms-api/internal/model"
	"github.com/readyforms/readyforms-api/internal/repository/sqlstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newStore opens an in-memory database. The services are exercised against
// the real SQL store so versioned writes behave exactly as in production.
func newStore(t *testing.T) *sqlstore.DB {
	t.Helper()
	db, err := sqlstore.Open(context.Background(), sqlstore.SQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func mustUser(t *testing.T, db *sqlstore.DB, name string, admin bool) *model.User {
	t.Helper()
	u := &model.User{Name: name, Email: name + "@example.com", IsAdmin: admin}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

func mustTopic(t *testing.T, db *sqlstore.DB, name string) *model.Topic {
	t.Helper()
	topic := &model.Topic{Name: name}
	require.NoError(t, db.CreateTopic(context.Background(), topic))
	return topic
}

// recordingInvalidator remembers which templates had their stats dropped.
type recordingInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func (r *recordingInvalidator) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

// memoryCache is a map-backed cache.Cache.
type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
	fail bool
}

func newMemoryCache() *memoryCache { return &memoryCache{data: make(map[string][]byte)} }

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, false, errors.New("cache down")
	}
	b, ok := m.data[key]
	return b, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("cache down")
	}
	m.data[key] = value
	return nil
}

func (m *memoryCache) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("cache down")
	}
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func assertKind(t *testing.T, err error, kind error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, kind), "want %v, got %v", kind, err)
}

func ptr[T any](v T) *T { return &v }

// =========================================================================
// SHARED HELPERS
// =========================================================================

func TestValidateInput_ReportsJSONFieldNames(t *testing.T) {
	err := validateInput(CreateTemplateInput{
		TopicID:   "t",
		Title:     "ok",
		Questions: []QuestionInput{{Type: "text", Title: ""}},
	})
	require.Error(t, err)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "questions[0].title", appErr.Field)
	assert.Equal(t, "questions[0].title is required", appErr.Message)

	err = validateInput(RegisterInput{Name: "a", Email: "not-an-email", Password: "secret"})
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "email", appErr.Field)
}

func TestRequireVersion(t *testing.T) {
	assertKind(t, requireVersion(0), apperror.ErrValidation)
	assertKind(t, requireVersion(-3), apperror.ErrValidation)
	assert.NoError(t, requireVersion(1))
}

func TestAfterConflict(t *testing.T) {
	ctx := context.Background()
	lock := apperror.OptimisticLock("template", "t1")
	gone := func(context.Context) error { return apperror.NotFound("template", "t1") }
	present := func(context.Context) error { return nil }
	recheckNotCalled := func(context.Context) error {
		t.Fatal("recheck should not run for non-conflict errors")
		return nil
	}

	assertKind(t, afterConflict(ctx, lock, gone), apperror.ErrNotFound)
	assertKind(t, afterConflict(ctx, lock, present), apperror.ErrOptimisticLock)

	other := errors.New("disk full")
	assert.Same(t, other, afterConflict(ctx, other, recheckNotCalled))
}

func TestClampList(t *testing.T) {
	assert.Equal(t, DefaultListLimit, clampList(0, 0).Limit)
	assert.Equal(t, MaxListLimit, clampList(1000, 0).Limit)
	assert.Equal(t, 0, clampList(10, -5).Offset)
}
