package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/rs/xid"

	"github.com/readyforms/readyforms-api/internal/apperror"
	"github.com/readyforms/readyforms-api/internal/cache"
	"github.com/readyforms/readyforms-api/internal/model"
	"github.com/readyforms/readyforms-api/internal/repository"
)

// TopValuesLimit is how many distinct text answers a question reports.
const TopValuesLimit = 5

// AnalyticsService aggregates a template's responses per question.
//
// Results are cached as JSON under "stats:<templateID>". Writers call
// Invalidate, which also rotates a generation token under
// "stats-gen:<templateID>". Stats reads the token before aggregating and
// stores it with the result, so an entry computed across an invalidation
// is ignored on the next read. A cached entry is likewise ignored when its
// TemplateVersion differs from the template's current version.
type AnalyticsService struct {
	templates repository.TemplateRepository
	responses repository.ResponseRepository
	cache     cache.Cache
	ttl       time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewAnalyticsService(
	templates repository.TemplateRepository,
	responses repository.ResponseRepository,
	c cache.Cache,
	ttl time.Duration,
	logger *slog.Logger,
) *AnalyticsService {
	if c == nil {
		c = cache.Nop{}
	}
	return &AnalyticsService{
		templates: templates,
		responses: responses,
		cache:     c,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

var _ StatsInvalidator = (*AnalyticsService)(nil)

func statsKey(templateID string) string { return "stats:" + templateID }

func generationKey(templateID string) string { return "stats-gen:" + templateID }

// cachedStats is the value stored under statsKey.
type cachedStats struct {
	Generation string               `json:"generation"`
	Stats      *model.TemplateStats `json:"stats"`
}

// Stats returns the aggregates for the template owner or an admin.
func (s *AnalyticsService) Stats(ctx context.Context, actor *model.User, templateID string) (*model.TemplateStats, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	tmpl, err := s.templates.GetTemplateByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, tmpl.UserID) {
		return nil, apperror.Forbidden("only the template owner or an admin can view statistics")
	}

	// The generation is read before aggregating. If an Invalidate lands
	// while compute runs, the entry written below carries the old token.
	generation, cacheOK := s.generation(ctx, templateID)
	if cacheOK {
		if cached, ok := s.fromCache(ctx, tmpl, generation); ok {
			return cached, nil
		}
	}

	stats, err := s.compute(ctx, tmpl)
	if err != nil {
		logUnexpected(s.logger, "computing stats", err, slog.String("templateID", templateID))
		return nil, fmt.Errorf("service/analytics: computing stats of %s: %w", templateID, err)
	}

	if !cacheOK {
		return stats, nil
	}
	if b, err := json.Marshal(cachedStats{Generation: generation, Stats: stats}); err == nil {
		if err := s.cache.Set(ctx, statsKey(templateID), b, s.ttl); err != nil {
			s.logger.Warn("caching stats", slog.String("templateID", templateID), slog.String("error", err.Error()))
		}
	}
	return stats, nil
}

// Invalidate rotates the template's generation token and drops the cached
// stats. Cache failures are logged, never returned: the cache is an
// optimisation and the write has already happened.
func (s *AnalyticsService) Invalidate(ctx context.Context, templateID string) {
	// The token outlives any entry written under the previous one.
	if err := s.cache.Set(ctx, generationKey(templateID), []byte(xid.New().String()), 2*s.ttl); err != nil {
		s.logger.Warn("rotating stats generation", slog.String("templateID", templateID), slog.String("error", err.Error()))
	}
	if err := s.cache.Delete(ctx, statsKey(templateID)); err != nil {
		s.logger.Warn("invalidating stats", slog.String("templateID", templateID), slog.String("error", err.Error()))
	}
}

// generation returns the current token, empty when none was ever set. The
// bool is false when the cache cannot be read; Stats then bypasses it.
func (s *AnalyticsService) generation(ctx context.Context, templateID string) (string, bool) {
	b, _, err := s.cache.Get(ctx, generationKey(templateID))
	if err != nil {
		s.logger.Warn("reading stats generation", slog.String("templateID", templateID), slog.String("error", err.Error()))
		return "", false
	}
	return string(b), true
}

func (s *AnalyticsService) fromCache(ctx context.Context, tmpl *model.Template, generation string) (*model.TemplateStats, bool) {
	b, ok, err := s.cache.Get(ctx, statsKey(tmpl.ID))
	if err != nil {
		s.logger.Warn("reading cached stats", slog.String("templateID", tmpl.ID), slog.String("error", err.Error()))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var entry cachedStats
	if err := json.Unmarshal(b, &entry); err != nil || entry.Stats == nil {
		return nil, false
	}
	if entry.Generation != generation || entry.Stats.TemplateVersion != tmpl.Version {
		return nil, false
	}
	return entry.Stats, true
}

// questionAgg accumulates the answers to one question.
type questionAgg struct {
	q        model.Question
	answered int
	counts   map[string]int // text, textarea
	min, max int64          // integer
	sum      float64
	trues    int // checkbox
	falses   int
}

func (s *AnalyticsService) compute(ctx context.Context, tmpl *model.Template) (*model.TemplateStats, error) {
	aggs := make(map[string]*questionAgg, len(tmpl.Questions))
	for _, q := range tmpl.Questions {
		aggs[q.ID] = &questionAgg{q: q, counts: make(map[string]int)}
	}

	total := 0
	err := s.responses.AllAnswers(ctx, tmpl.ID, func(answers []model.Answer) error {
		total++
		for _, a := range answers {
			// Answers to questions removed since are ignored.
			if agg, ok := aggs[a.QuestionID]; ok {
				agg.add(a.Value)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &model.TemplateStats{
		TemplateID:      tmpl.ID,
		TemplateVersion: tmpl.Version,
		TotalResponses:  total,
		Questions:       make([]model.QuestionStats, 0, len(tmpl.Questions)),
		GeneratedAt:     s.now().UTC(),
	}
	for _, q := range tmpl.Questions {
		out.Questions = append(out.Questions, aggs[q.ID].result())
	}
	return out, nil
}

func (a *questionAgg) add(value string) {
	switch a.q.Type {
	case model.QuestionInteger:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return
		}
		if a.answered == 0 || n < a.min {
			a.min = n
		}
		if a.answered == 0 || n > a.max {
			a.max = n
		}
		a.sum += float64(n)
	case model.QuestionCheckbox:
		if value == "true" {
			a.trues++
		} else {
			a.falses++
		}
	default:
		a.counts[value]++
	}
	a.answered++
}

func (a *questionAgg) result() model.QuestionStats {
	qs := model.QuestionStats{
		QuestionID: a.q.ID,
		Title:      a.q.Title,
		Type:       a.q.Type,
		Answered:   a.answered,
	}
	switch a.q.Type {
	case model.QuestionInteger:
		if a.answered > 0 {
			lo, hi := a.min, a.max
			avg := a.sum / float64(a.answered)
			qs.Min, qs.Max, qs.Average = &lo, &hi, &avg
		}
	case model.QuestionCheckbox:
		t, f := a.trues, a.falses
		qs.TrueCount, qs.FalseCount = &t, &f
	default:
		qs.TopValues = topValues(a.counts, TopValuesLimit)
	}
	return qs
}

// topValues returns the n most frequent values, ties broken alphabetically.
func topValues(counts map[string]int, n int) []model.ValueCount {
	out := make([]model.ValueCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, model.ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
