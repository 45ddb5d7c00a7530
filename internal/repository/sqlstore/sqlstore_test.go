package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readyforms/readyforms-api/internal/apperror"
	"github.com/readyforms/readyforms-api/internal/model"
	"github.com/readyforms/readyforms-api/internal/repository"
)

// newTestDB opens a fresh in-memory SQLite database with the schema applied.
// Each test gets its own database; it disappears when the connection closes.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), SQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, email string) *model.User {
	t.Helper()
	u := &model.User{Name: "User " + email, Email: email, PasswordHash: "hash"}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

func createTestTopic(t *testing.T, db *DB, name string) *model.Topic {
	t.Helper()
	topic := &model.Topic{Name: name}
	require.NoError(t, db.CreateTopic(context.Background(), topic))
	return topic
}

func createTestTemplate(t *testing.T, db *DB, owner *model.User, topic *model.Topic, title string) *model.Template {
	t.Helper()
	tmpl := &model.Template{
		UserID:   owner.ID,
		TopicID:  topic.ID,
		Title:    title,
		IsPublic: true,
		Questions: []model.Question{
			{ID: "q1", Type: model.QuestionText, Title: "Name", Required: true},
			{ID: "q2", Type: model.QuestionInteger, Title: "Age"},
		},
		Tags: []string{"Survey", "poll"},
	}
	require.NoError(t, db.CreateTemplate(context.Background(), tmpl))
	return tmpl
}

func assertOptimisticLock(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrOptimisticLock), "want optimistic lock error, got %v", err)
}

// =========================================================================
// DIALECT
// =========================================================================

func TestRebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		in      string
		want    string
	}{
		{"sqlite untouched", SQLite, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{"postgres numbered", Postgres, "UPDATE t SET a = ? WHERE id = ? AND version = ?", "UPDATE t SET a = $1 WHERE id = $2 AND version = $3"},
		{"postgres skips quoted", Postgres, "SELECT '?' FROM t WHERE a = ?", "SELECT '?' FROM t WHERE a = $1"},
		{"no placeholders", Postgres, "SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.rebind(tt.in))
		})
	}
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)

	d, err = ParseDialect("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)

	_, err = ParseDialect("oracle")
	assert.Error(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))
}

// =========================================================================
// USERS
// =========================================================================

func TestCreateUser_SetsVersionOne(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "Alice@Example.com")

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, int64(1), u.Version)
	assert.Equal(t, "alice@example.com", u.Email)

	got, err := db.GetUserByEmail(context.Background(), "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, int64(1), got.Version)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "a@example.com")

	err := db.CreateUser(context.Background(), &model.User{Name: "Other", Email: "A@example.com"})
	assert.True(t, errors.Is(err, apperror.ErrConflict), "got %v", err)
}

func TestGetUserByID_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetUserByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestUpdateUser_BumpsVersion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "a@example.com")

	blocked := true
	updated, err := db.UpdateUser(ctx, u.ID, 1, repository.UserPatch{IsBlocked: &blocked})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.True(t, updated.IsBlocked)

	// Reusing the old version fails and leaves the row as it was.
	admin := true
	_, err = db.UpdateUser(ctx, u.ID, 1, repository.UserPatch{IsAdmin: &admin})
	assertOptimisticLock(t, err)

	got, err := db.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.False(t, got.IsAdmin)
}

func TestTouchLogin_KeepsVersion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "a@example.com")

	require.NoError(t, db.TouchLogin(ctx, u.ID, u.CreatedAt))

	got, err := db.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	require.NotNil(t, got.LastLoginAt)
}

func TestDeleteUser_CascadesOwnedContent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "owner@example.com")
	other := createTestUser(t, db, "other@example.com")
	topic := createTestTopic(t, db, "Quiz")
	tmpl := createTestTemplate(t, db, owner, topic, "Owned")

	resp := &model.FormResponse{TemplateID: tmpl.ID, UserID: other.ID, Answers: []model.Answer{{QuestionID: "q1", Value: "x"}}}
	require.NoError(t, db.CreateResponse(ctx, resp))
	require.NoError(t, db.CreateLike(ctx, &model.Like{TemplateID: tmpl.ID, UserID: other.ID}))

	answered, err := db.DeleteUser(ctx, owner.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, answered, "the owner's own template is not reported")

	_, err = db.GetUserByID(ctx, owner.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	_, err = db.GetTemplateByID(ctx, tmpl.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	_, err = db.GetResponseByID(ctx, resp.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	// The other user survives.
	_, err = db.GetUserByID(ctx, other.ID)
	assert.NoError(t, err)
}

func TestDeleteUser_ReportsAnsweredTemplates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "owner@example.com")
	filler := createTestUser(t, db, "filler@example.com")
	topic := createTestTopic(t, db, "Quiz")
	first := createTestTemplate(t, db, owner, topic, "First")
	second := createTestTemplate(t, db, owner, topic, "Second")
	createTestTemplate(t, db, owner, topic, "Unanswered")
	own := createTestTemplate(t, db, filler, topic, "Filler's own")

	for _, tmpl := range []*model.Template{first, second, own} {
		resp := &model.FormResponse{TemplateID: tmpl.ID, UserID: filler.ID, Answers: []model.Answer{{QuestionID: "q1", Value: "x"}}}
		require.NoError(t, db.CreateResponse(ctx, resp))
	}

	answered, err := db.DeleteUser(ctx, filler.ID, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, answered)
}

func TestDeleteUser_StaleVersionRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "owner@example.com")
	topic := createTestTopic(t, db, "Quiz")
	tmpl := createTestTemplate(t, db, owner, topic, "Owned")

	_, err := db.DeleteUser(ctx, owner.ID, 7)
	assertOptimisticLock(t, err)

	// Nothing was removed: the template and its tags are still there.
	got, err := db.GetTemplateByID(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"poll", "survey"}, got.Tags)
}

// =========================================================================
// TOPICS
// =========================================================================

func TestTopic_CRUD(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	topic := createTestTopic(t, db, "Education")
	createTestTopic(t, db, "Art")

	topics, err := db.ListTopics(ctx)
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, "Art", topics[0].Name)

	updated, err := db.UpdateTopic(ctx, topic.ID, 1, "Learning")
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	_, err = db.UpdateTopic(ctx, topic.ID, 1, "Again")
	assertOptimisticLock(t, err)

	_, err = db.UpdateTopic(ctx, topic.ID, 2, "Art")
	assert.True(t, errors.Is(err, apperror.ErrConflict), "got %v", err)

	assertOptimisticLock(t, db.DeleteTopic(ctx, topic.ID, 1))
	require.NoError(t, db.DeleteTopic(ctx, topic.ID, 2))
}

func TestDeleteTopic_InUse(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "a@example.com")
	topic := createTestTopic(t, db, "Quiz")
	createTestTemplate(t, db, owner, topic, "T")

	err := db.DeleteTopic(ctx, topic.ID, 1)
	assert.True(t, errors.Is(err, apperror.ErrConflict), "got %v", err)
}

// A template that appears after the usage count is taken still blocks the
// delete through the foreign key, and is reported as a conflict.
func TestDeleteTopicRow_ForeignKeyIsConflict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "a@example.com")
	topic := createTestTopic(t, db, "Quiz")
	createTestTemplate(t, db, owner, topic, "T")

	err := db.inTx(ctx, func(c conn) error {
		return deleteTopicRow(ctx, c, topic.ID, 1)
	})
	assert.True(t, errors.Is(err, apperror.ErrConflict), "got %v", err)

	_, err = db.GetTopicByID(ctx, topic.ID)
	assert.NoError(t, err, "topic survives")
}

func TestIsForeignKeyViolation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "a@example.com")

	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO templates (id, user_id, topic_id, title, created_at, updated_at)
		 VALUES ('t-1', ?, 'no-such-topic', 'T', ?, ?)`, owner.ID, time.Now().UTC(), time.Now().UTC())
	require.Error(t, err)
	assert.True(t, isForeignKeyViolation(err), "got %v", err)
	assert.False(t, isUniqueViolation(err))
	assert.False(t, isForeignKeyViolation(errors.New("disk full")))
}

// =========================================================================
// TEMPLATES
// =========================================================================

func TestCreateTemplate_StoresQuestionsAndTags(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "a@example.com")
	topic := createTestTopic(t, db, "Quiz")
	tmpl := createTestTemplate(t, db, owner, topic, "First")

	got, err := db.GetTemplateByID(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, "First", got.Title)
	require.Len(t, got.Questions, 2)
	assert.Equal(t, model.QuestionInteger, got.Questions[1].Type)
	assert.Equal(t, []string{"poll", "survey"}, got.Tags)
	assert.Equal(t, []string{}, got.AllowedUsers)
}

func TestUpdateTemplate_ScenarioTwoEditors(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "a@example.com")
	topic := createTestTopic(t, db, "Quiz")
	tmpl := createTestTemplate(t, db, owner, topic, "Original")

	// A and B both read version 1.
	titleA, titleB := "From A", "From B"

	a, err := db.UpdateTemplate(ctx, tmpl.ID, 1, repository.TemplatePatch{Title: &titleA})
	require.NoError(t, err)
	assert.Equal(t, int64(2), a.Version)

	_, err = db.UpdateTemplate(ctx, tmpl.ID, 1, repository.TemplatePatch{Title: &titleB})
	assertOptimisticLock(t, err)

	// B refetches and retries with the fresh version.
	fresh, err := db.GetTemplateByID(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "From A", fresh.Title)

	b, err := db.UpdateTemplate(ctx, tmpl.ID, fresh.Version, repository.TemplatePatch{Title: &titleB})
	require.NoError(t, err)
	assert.Equal(t, int64(3), b.Version)
	assert.Equal(t, "From B", b.Title)
}

func TestUpdateTemplate_TagsRolledBackOnConflict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "a@example.com")
	topic := createTestTopic(t, db, "Quiz")
	tmpl := createTestTemplate(t, db, owner, topic, "T")

	tags := []string{"replaced"}
	_, err := db.UpdateTemplate(ctx, tmpl.ID, 5, repository.TemplatePatch{Tags: &tags})
	assertOptimisticLock(t, err)

	got, err := db.GetTemplateByID(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"poll", "survey"}, got.Tags)
	assert.Equal(t, int64(1), got.Version)

	updated, err := db.UpdateTemplate(ctx, tmpl.ID, 1, repository.TemplatePatch{Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, []string{"replaced"}, updated.Tags)
}

func TestUpdateTemplate_MissingRow(t *testing.T) {
	db := newTestDB(t)
	title := "x"
	_, err := db.UpdateTemplate(context.Background(), "nope", 1, repository.TemplatePatch{Title: &title})
	assertOptimisticLock(t, err)
}

func TestUpdateTemplate_ConcurrentSingleWinner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "a@example.com")
	topic := createTestTopic(t, db, "Quiz")
	tmpl := createTestTemplate(t, db, owner, topic, "Race")

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			title := "writer"
			_, err := db.UpdateTemplate(ctx, tmpl.ID, 1, repository.TemplatePatch{Title: &title})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, apperror.ErrOptimisticLock):
				conflicts++
			default:
				t.Errorf("writer %d: unexpected error %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, writers-1, conflicts)

	got, err := db.GetTemplateByID(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}

func TestDeleteTemplate_Cascade(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "a@example.com")
	topic := createTestTopic(t, db, "Quiz")
	tmpl := createTestTemplate(t, db, owner, topic, "T")

	c := &model.Comment{TemplateID: tmpl.ID, UserID: owner.ID, Content: "hi"}
	require.NoError(t, db.CreateComment(ctx, c))

	// Stale delete leaves dependents in place.
	assertOptimisticLock(t, db.DeleteTemplate(ctx, tmpl.ID, 2))
	n, err := db.CountComments(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, db.DeleteTemplate(ctx, tmpl.ID, 1))
	_, err = db.GetCommentByID(ctx, c.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	// A second delete with the same version finds nothing.
	assertOptimisticLock(t, db.DeleteTemplate(ctx, tmpl.ID, 1))
}

func TestListTemplates_Visibility(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "owner@example.com")
	friend := createTestUser(t, db, "friend@example.com")
	stranger := createTestUser(t, db, "stranger@example.com")
	topic := createTestTopic(t, db, "Quiz")

	createTestTemplate(t, db, owner, topic, "Public")
	private := &model.Template{
		UserID: owner.ID, TopicID: topic.ID, Title: "Private",
		AllowedUsers: []string{friend.ID},
		Questions:    []model.Question{{ID: "q1", Type: model.QuestionCheckbox, Title: "Ok?"}},
	}
	require.NoError(t, db.CreateTemplate(ctx, private))

	titles := func(f repository.TemplateFilter) []string {
		t.Helper()
		list, err := db.ListTemplates(ctx, f)
		require.NoError(t, err)
		out := make([]string, 0, len(list))
		for _, s := range list {
			out = append(out, s.Title)
		}
		return out
	}

	assert.ElementsMatch(t, []string{"Public"}, titles(repository.TemplateFilter{}))
	assert.ElementsMatch(t, []string{"Public"}, titles(repository.TemplateFilter{ViewerID: stranger.ID}))
	assert.ElementsMatch(t, []string{"Public", "Private"}, titles(repository.TemplateFilter{ViewerID: friend.ID}))
	assert.ElementsMatch(t, []string{"Public", "Private"}, titles(repository.TemplateFilter{ViewerID: owner.ID}))
	assert.ElementsMatch(t, []string{"Public", "Private"}, titles(repository.TemplateFilter{ViewerIsAdmin: true}))
}

func TestListTemplates_FiltersAndPopularity(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "owner@example.com")
	fan := createTestUser(t, db, "fan@example.com")
	quiz := createTestTopic(t, db, "Quiz")
	art := createTestTopic(t, db, "Art")

	first := createTestTemplate(t, db, owner, quiz, "Math quiz")
	createTestTemplate(t, db, owner, art, "Painting 100% fun")
	require.NoError(t, db.CreateLike(ctx, &model.Like{TemplateID: first.ID, UserID: fan.ID}))

	list, err := db.ListTemplates(ctx, repository.TemplateFilter{Sort: repository.SortPopular})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, 1, list[0].LikeCount)
	assert.Equal(t, []string{"poll", "survey"}, list[0].Tags)

	list, err = db.ListTemplates(ctx, repository.TemplateFilter{TopicID: art.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Painting 100% fun", list[0].Title)

	// "%" is matched literally.
	list, err = db.ListTemplates(ctx, repository.TemplateFilter{Query: "100%"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = db.ListTemplates(ctx, repository.TemplateFilter{Query: "MATH"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = db.ListTemplates(ctx, repository.TemplateFilter{Tag: "POLL"})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = db.ListTemplates(ctx, repository.TemplateFilter{ListOptions: repository.ListOptions{Limit: 1}})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// =========================================================================
// RESPONSES, COMMENTS, LIKES, TAGS
// =========================================================================

func TestResponse_UpdateAndDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "owner@example.com")
	topic := createTestTopic(t, db, "Quiz")
	tmpl := createTestTemplate(t, db, owner, topic, "T")

	resp := &model.FormResponse{TemplateID: tmpl.ID, UserID: owner.ID,
		Answers: []model.Answer{{QuestionID: "q1", Value: "Ann"}, {QuestionID: "q2", Value: "30"}}}
	require.NoError(t, db.CreateResponse(ctx, resp))
	assert.Equal(t, int64(1), resp.Version)

	updated, err := db.UpdateResponse(ctx, resp.ID, 1, []model.Answer{{QuestionID: "q1", Value: "Bob"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, "Bob", updated.Answers[0].Value)

	_, err = db.UpdateResponse(ctx, resp.ID, 1, nil)
	assertOptimisticLock(t, err)

	mine, err := db.ListResponsesByUser(ctx, owner.ID, repository.ListOptions{})
	require.NoError(t, err)
	require.Len(t, mine, 1)

	var seen int
	require.NoError(t, db.AllAnswers(ctx, tmpl.ID, func(a []model.Answer) error {
		seen += len(a)
		return nil
	}))
	assert.Equal(t, 1, seen)

	assertOptimisticLock(t, db.DeleteResponse(ctx, resp.ID, 1))
	require.NoError(t, db.DeleteResponse(ctx, resp.ID, 2))

	list, err := db.ListResponsesByTemplate(ctx, tmpl.ID, repository.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestComments_AuthorNameAndOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "owner@example.com")
	topic := createTestTopic(t, db, "Quiz")
	tmpl := createTestTemplate(t, db, owner, topic, "T")

	for _, text := range []string{"first", "second"} {
		require.NoError(t, db.CreateComment(ctx, &model.Comment{TemplateID: tmpl.ID, UserID: owner.ID, Content: text}))
	}

	list, err := db.ListComments(ctx, tmpl.ID, repository.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "first", list[0].Content)
	assert.Equal(t, owner.Name, list[0].AuthorName)

	require.NoError(t, db.DeleteComment(ctx, list[0].ID, 1))
	assertOptimisticLock(t, db.DeleteComment(ctx, list[0].ID, 1))
}

func TestLikes_OnePerUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "owner@example.com")
	topic := createTestTopic(t, db, "Quiz")
	tmpl := createTestTemplate(t, db, owner, topic, "T")

	like := &model.Like{TemplateID: tmpl.ID, UserID: owner.ID}
	require.NoError(t, db.CreateLike(ctx, like))

	err := db.CreateLike(ctx, &model.Like{TemplateID: tmpl.ID, UserID: owner.ID})
	assert.True(t, errors.Is(err, apperror.ErrConflict), "got %v", err)

	found, err := db.FindLike(ctx, tmpl.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, like.ID, found.ID)

	n, err := db.CountLikes(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, db.DeleteLike(ctx, like.ID, 1))
	_, err = db.FindLike(ctx, tmpl.ID, owner.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestListTags_PrefixAndCounts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "owner@example.com")
	topic := createTestTopic(t, db, "Quiz")
	createTestTemplate(t, db, owner, topic, "A")
	other := &model.Template{UserID: owner.ID, TopicID: topic.ID, Title: "B", IsPublic: true,
		Questions: []model.Question{{ID: "q1", Type: model.QuestionText, Title: "x"}},
		Tags:      []string{"poll", "politics"}}
	require.NoError(t, db.CreateTemplate(ctx, other))

	tags, err := db.ListTags(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, tags, 3)
	assert.Equal(t, model.TagCount{Name: "poll", Count: 2}, tags[0])

	tags, err = db.ListTags(ctx, "Pol", 10)
	require.NoError(t, err)
	assert.Len(t, tags, 2)
}
