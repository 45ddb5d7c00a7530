package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readyforms/readyforms-api/internal/apperror"
	"github.com/readyforms/readyforms-api/internal/model"
	"github.com/readyforms/readyforms-api/internal/repository"
	"github.com/readyforms/readyforms-api/internal/repository/sqlstore"
)

type responseFixture struct {
	svc   *ResponseService
	db    *sqlstore.DB
	inv   *recordingInvalidator
	owner *model.User
	tmpl  *model.Template
}

func newResponseFixture(t *testing.T) *responseFixture {
	t.Helper()
	db := newStore(t)
	inv := &recordingInvalidator{}
	owner := mustUser(t, db, "owner", false)
	topic := mustTopic(t, db, "Work")
	tmpl := &model.Template{
		UserID:   owner.ID,
		TopicID:  topic.ID,
		Title:    "Feedback",
		IsPublic: true,
		Questions: []model.Question{
			{ID: "q-name", Type: model.QuestionText, Title: "Name", Required: true},
			{ID: "q-notes", Type: model.QuestionTextarea, Title: "Notes"},
			{ID: "q-age", Type: model.QuestionInteger, Title: "Age"},
			{ID: "q-ok", Type: model.QuestionCheckbox, Title: "OK?"},
		},
	}
	require.NoError(t, db.CreateTemplate(context.Background(), tmpl))
	return &responseFixture{
		svc:   NewResponseService(db, db, inv, discardLogger()),
		db:    db,
		inv:   inv,
		owner: owner,
		tmpl:  tmpl,
	}
}

func TestCheckAnswers(t *testing.T) {
	tmpl := &model.Template{Questions: []model.Question{
		{ID: "name", Type: model.QuestionText, Title: "Name", Required: true},
		{ID: "notes", Type: model.QuestionTextarea, Title: "Notes"},
		{ID: "age", Type: model.QuestionInteger, Title: "Age"},
		{ID: "ok", Type: model.QuestionCheckbox, Title: "OK?"},
	}}

	tests := []struct {
		name    string
		in      []AnswerInput
		want    []model.Answer
		wantErr bool
	}{
		{
			name: "question order and normalization",
			in: []AnswerInput{
				{QuestionID: "ok", Value: "true"},
				{QuestionID: "age", Value: " 007 "},
				{QuestionID: "name", Value: " Ann "},
			},
			want: []model.Answer{
				{QuestionID: "name", Value: "Ann"},
				{QuestionID: "age", Value: "7"},
				{QuestionID: "ok", Value: "true"},
			},
		},
		{
			name: "textarea keeps whitespace and empty optional is dropped",
			in: []AnswerInput{
				{QuestionID: "name", Value: "Ann"},
				{QuestionID: "notes", Value: "  line one\n"},
				{QuestionID: "age", Value: ""},
			},
			want: []model.Answer{
				{QuestionID: "name", Value: "Ann"},
				{QuestionID: "notes", Value: "  line one\n"},
			},
		},
		{name: "required missing", in: []AnswerInput{{QuestionID: "age", Value: "3"}}, wantErr: true},
		{name: "required blank", in: []AnswerInput{{QuestionID: "name", Value: "   "}}, wantErr: true},
		{name: "unknown question", in: []AnswerInput{{QuestionID: "name", Value: "a"}, {QuestionID: "zzz", Value: "a"}}, wantErr: true},
		{name: "duplicate", in: []AnswerInput{{QuestionID: "name", Value: "a"}, {QuestionID: "name", Value: "b"}}, wantErr: true},
		{name: "negative integer", in: []AnswerInput{{QuestionID: "name", Value: "a"}, {QuestionID: "age", Value: "-1"}}, wantErr: true},
		{name: "not an integer", in: []AnswerInput{{QuestionID: "name", Value: "a"}, {QuestionID: "age", Value: "1.5"}}, wantErr: true},
		{name: "bad checkbox", in: []AnswerInput{{QuestionID: "name", Value: "a"}, {QuestionID: "ok", Value: "yes"}}, wantErr: true},
		{name: "text too long", in: []AnswerInput{{QuestionID: "name", Value: strings.Repeat("x", MaxTextAnswer+1)}}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := checkAnswers(tmpl, tc.in)
			if tc.wantErr {
				assertKind(t, err, apperror.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResponseSubmit(t *testing.T) {
	f := newResponseFixture(t)
	ctx := context.Background()
	user := mustUser(t, f.db, "user", false)

	resp, err := f.svc.Submit(ctx, user, f.tmpl.ID, SubmitResponseInput{Answers: []AnswerInput{
		{QuestionID: "q-name", Value: "Ann"},
		{QuestionID: "q-age", Value: "30"},
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Version)
	assert.Equal(t, user.ID, resp.UserID)
	assert.Equal(t, []string{f.tmpl.ID}, f.inv.calls())

	_, err = f.svc.Submit(ctx, nil, f.tmpl.ID, SubmitResponseInput{})
	assertKind(t, err, apperror.ErrUnauthorized)

	_, err = f.svc.Submit(ctx, user, "missing", SubmitResponseInput{})
	assertKind(t, err, apperror.ErrNotFound)
}

func TestResponseSubmit_PrivateTemplate(t *testing.T) {
	f := newResponseFixture(t)
	ctx := context.Background()
	stranger := mustUser(t, f.db, "stranger", false)

	_, err := f.db.UpdateTemplate(ctx, f.tmpl.ID, 1, repository.TemplatePatch{IsPublic: ptr(false)})
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, stranger, f.tmpl.ID, SubmitResponseInput{Answers: []AnswerInput{{QuestionID: "q-name", Value: "x"}}})
	assertKind(t, err, apperror.ErrForbidden)
}

func TestResponseUpdate_Versioning(t *testing.T) {
	f := newResponseFixture(t)
	ctx := context.Background()
	author := mustUser(t, f.db, "author", false)
	other := mustUser(t, f.db, "other", false)
	resp, err := f.svc.Submit(ctx, author, f.tmpl.ID, SubmitResponseInput{Answers: []AnswerInput{{QuestionID: "q-name", Value: "v1"}}})
	require.NoError(t, err)

	in := func(version int64, name string) UpdateResponseInput {
		return UpdateResponseInput{Version: version, Answers: []AnswerInput{{QuestionID: "q-name", Value: name}}}
	}

	_, err = f.svc.Update(ctx, author, resp.ID, in(0, "x"))
	assertKind(t, err, apperror.ErrValidation)

	_, err = f.svc.Update(ctx, other, resp.ID, in(1, "x"))
	assertKind(t, err, apperror.ErrForbidden)

	_, err = f.svc.Update(ctx, f.owner, resp.ID, in(1, "x"))
	// Template owners may read responses but not edit them.
	assertKind(t, err, apperror.ErrForbidden)

	updated, err := f.svc.Update(ctx, author, resp.ID, in(1, "v2"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, "v2", updated.Answers[0].Value)

	_, err = f.svc.Update(ctx, author, resp.ID, in(1, "stale"))
	assertKind(t, err, apperror.ErrOptimisticLock)

	stored, err := f.db.GetResponseByID(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", stored.Answers[0].Value)
}

func TestResponseGetAndDelete(t *testing.T) {
	f := newResponseFixture(t)
	ctx := context.Background()
	author := mustUser(t, f.db, "author", false)
	other := mustUser(t, f.db, "other", false)
	resp, err := f.svc.Submit(ctx, author, f.tmpl.ID, SubmitResponseInput{Answers: []AnswerInput{{QuestionID: "q-name", Value: "v1"}}})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, f.owner, resp.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, other, resp.ID)
	assertKind(t, err, apperror.ErrForbidden)

	assertKind(t, f.svc.Delete(ctx, other, resp.ID, 1), apperror.ErrForbidden)
	assertKind(t, f.svc.Delete(ctx, f.owner, resp.ID, 2), apperror.ErrOptimisticLock)
	require.NoError(t, f.svc.Delete(ctx, f.owner, resp.ID, 1))
	assertKind(t, f.svc.Delete(ctx, f.owner, resp.ID, 1), apperror.ErrNotFound)
}

func TestResponseLists(t *testing.T) {
	f := newResponseFixture(t)
	ctx := context.Background()
	author := mustUser(t, f.db, "author", false)
	for i := 0; i < 3; i++ {
		_, err := f.svc.Submit(ctx, author, f.tmpl.ID, SubmitResponseInput{Answers: []AnswerInput{{QuestionID: "q-name", Value: "x"}}})
		require.NoError(t, err)
	}

	all, err := f.svc.ListForTemplate(ctx, f.owner, f.tmpl.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = f.svc.ListForTemplate(ctx, author, f.tmpl.ID, 0, 0)
	assertKind(t, err, apperror.ErrForbidden)

	mine, err := f.svc.ListMine(ctx, author, 2, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}
