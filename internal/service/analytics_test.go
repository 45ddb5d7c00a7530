package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readyforms/readyforms-api/internal/apperror"
	"github.com/readyforms/readyforms-api/internal/model"
	"github.com/readyforms/readyforms-api/internal/repository"
)

// plantStats stores a cache entry under the initial (empty) generation.
func plantStats(t *testing.T, mc *memoryCache, templateID string, version int64, total int) {
	t.Helper()
	b, err := json.Marshal(cachedStats{Stats: &model.TemplateStats{
		TemplateID:      templateID,
		TemplateVersion: version,
		TotalResponses:  total,
	}})
	require.NoError(t, err)
	mc.data[statsKey(templateID)] = b
}

// racingResponses runs hook once, after the first aggregation finished
// reading but before its result is cached.
type racingResponses struct {
	repository.ResponseRepository
	hook func()
}

func (r *racingResponses) AllAnswers(ctx context.Context, templateID string, fn func([]model.Answer) error) error {
	if err := r.ResponseRepository.AllAnswers(ctx, templateID, fn); err != nil {
		return err
	}
	if r.hook != nil {
		hook := r.hook
		r.hook = nil
		hook()
	}
	return nil
}

func TestAnalyticsStats(t *testing.T) {
	f := newResponseFixture(t)
	ctx := context.Background()
	mc := newMemoryCache()
	svc := NewAnalyticsService(f.db, f.db, mc, time.Minute, discardLogger())

	submit := func(name, age, ok string) {
		t.Helper()
		answers := []AnswerInput{{QuestionID: "q-name", Value: name}}
		if age != "" {
			answers = append(answers, AnswerInput{QuestionID: "q-age", Value: age})
		}
		if ok != "" {
			answers = append(answers, AnswerInput{QuestionID: "q-ok", Value: ok})
		}
		_, err := f.svc.Submit(ctx, f.owner, f.tmpl.ID, SubmitResponseInput{Answers: answers})
		require.NoError(t, err)
	}
	submit("bob", "20", "true")
	submit("ann", "30", "false")
	submit("bob", "", "true")

	stats, err := svc.Stats(ctx, f.owner, f.tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalResponses)
	assert.Equal(t, int64(1), stats.TemplateVersion)
	require.Len(t, stats.Questions, 4)

	name := stats.Questions[0]
	assert.Equal(t, 3, name.Answered)
	assert.Equal(t, []model.ValueCount{{Value: "bob", Count: 2}, {Value: "ann", Count: 1}}, name.TopValues)

	notes := stats.Questions[1]
	assert.Equal(t, 0, notes.Answered)
	assert.Empty(t, notes.TopValues)

	age := stats.Questions[2]
	assert.Equal(t, 2, age.Answered)
	require.NotNil(t, age.Min)
	assert.Equal(t, int64(20), *age.Min)
	assert.Equal(t, int64(30), *age.Max)
	assert.InDelta(t, 25.0, *age.Average, 0.001)

	ok := stats.Questions[3]
	require.NotNil(t, ok.TrueCount)
	assert.Equal(t, 2, *ok.TrueCount)
	assert.Equal(t, 1, *ok.FalseCount)

	assert.Contains(t, mc.data, statsKey(f.tmpl.ID))
}

func TestAnalyticsStats_Access(t *testing.T) {
	f := newResponseFixture(t)
	ctx := context.Background()
	svc := NewAnalyticsService(f.db, f.db, nil, time.Minute, discardLogger())
	other := mustUser(t, f.db, "other", false)
	admin := mustUser(t, f.db, "admin", true)

	_, err := svc.Stats(ctx, nil, f.tmpl.ID)
	assertKind(t, err, apperror.ErrUnauthorized)
	_, err = svc.Stats(ctx, other, f.tmpl.ID)
	assertKind(t, err, apperror.ErrForbidden)
	_, err = svc.Stats(ctx, admin, "missing")
	assertKind(t, err, apperror.ErrNotFound)

	stats, err := svc.Stats(ctx, admin, f.tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalResponses)
}

func TestAnalyticsStats_CacheHitAndInvalidate(t *testing.T) {
	f := newResponseFixture(t)
	ctx := context.Background()
	mc := newMemoryCache()
	svc := NewAnalyticsService(f.db, f.db, mc, time.Minute, discardLogger())

	// A planted entry with the current version is served as is.
	plantStats(t, mc, f.tmpl.ID, 1, 99)

	stats, err := svc.Stats(ctx, f.owner, f.tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 99, stats.TotalResponses)

	svc.Invalidate(ctx, f.tmpl.ID)
	assert.NotContains(t, mc.data, statsKey(f.tmpl.ID))
	assert.Contains(t, mc.data, generationKey(f.tmpl.ID))

	stats, err = svc.Stats(ctx, f.owner, f.tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalResponses)
}

func TestAnalyticsStats_IgnoresEntryForOtherVersion(t *testing.T) {
	f := newResponseFixture(t)
	ctx := context.Background()
	mc := newMemoryCache()
	svc := NewAnalyticsService(f.db, f.db, mc, time.Minute, discardLogger())

	plantStats(t, mc, f.tmpl.ID, 1, 99)

	// Edit the template behind the cache's back.
	_, err := f.db.UpdateTemplate(ctx, f.tmpl.ID, 1, repository.TemplatePatch{Title: ptr("Renamed")})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, f.owner, f.tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalResponses)
	assert.Equal(t, int64(2), stats.TemplateVersion)
}

func TestAnalyticsStats_InvalidateDuringComputeIsNotLost(t *testing.T) {
	f := newResponseFixture(t)
	ctx := context.Background()
	mc := newMemoryCache()
	filler := mustUser(t, f.db, "filler", false)
	responses := &racingResponses{ResponseRepository: f.db}
	svc := NewAnalyticsService(f.db, responses, mc, time.Minute, discardLogger())

	_, err := f.svc.Submit(ctx, f.owner, f.tmpl.ID, SubmitResponseInput{Answers: []AnswerInput{{QuestionID: "q-name", Value: "ann"}}})
	require.NoError(t, err)

	// A response lands, and is invalidated, while the first Stats call is
	// between reading answers and caching its result.
	responses.hook = func() {
		_, err := f.svc.Submit(ctx, filler, f.tmpl.ID, SubmitResponseInput{Answers: []AnswerInput{{QuestionID: "q-name", Value: "bob"}}})
		require.NoError(t, err)
		svc.Invalidate(ctx, f.tmpl.ID)
	}

	stats, err := svc.Stats(ctx, f.owner, f.tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalResponses)
	assert.Contains(t, mc.data, statsKey(f.tmpl.ID), "the stale result was still written")

	stats, err = svc.Stats(ctx, f.owner, f.tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalResponses, "entry from the previous generation must be ignored")

	stats, err = svc.Stats(ctx, f.owner, f.tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalResponses)
}

func TestAnalyticsStats_UserDeletionInvalidatesAnsweredTemplates(t *testing.T) {
	f := newResponseFixture(t)
	ctx := context.Background()
	mc := newMemoryCache()
	svc := NewAnalyticsService(f.db, f.db, mc, time.Minute, discardLogger())
	users := NewUserService(f.db, svc, discardLogger())
	filler := mustUser(t, f.db, "filler", false)

	_, err := f.svc.Submit(ctx, filler, f.tmpl.ID, SubmitResponseInput{Answers: []AnswerInput{{QuestionID: "q-name", Value: "ann"}}})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, f.owner, f.tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalResponses)

	require.NoError(t, users.Delete(ctx, filler.ID, 1))

	stats, err = svc.Stats(ctx, f.owner, f.tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalResponses)
	assert.Empty(t, stats.Questions[0].TopValues)
}

func TestAnalyticsStats_CacheFailureFallsBack(t *testing.T) {
	f := newResponseFixture(t)
	ctx := context.Background()
	mc := newMemoryCache()
	mc.fail = true
	svc := NewAnalyticsService(f.db, f.db, mc, time.Minute, discardLogger())

	stats, err := svc.Stats(ctx, f.owner, f.tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, f.tmpl.ID, stats.TemplateID)

	svc.Invalidate(ctx, f.tmpl.ID) // logged, not returned
}

func TestTopValues(t *testing.T) {
	counts := map[string]int{"b": 2, "a": 2, "c": 5, "d": 1}
	assert.Equal(t, []model.ValueCount{
		{Value: "c", Count: 5},
		{Value: "a", Count: 2},
		{Value: "b", Count: 2},
	}, topValues(counts, 3))
}
