package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"

	"github.com/readyforms/readyforms-api/internal/apperror"
	"github.com/readyforms/readyforms-api/internal/model"
	"github.com/readyforms/readyforms-api/internal/repository"
)

// TemplateService owns template authoring, browsing and visibility.
type TemplateService struct {
	templates repository.TemplateRepository
	topics    repository.TopicRepository
	likes     repository.LikeRepository
	comments  repository.CommentRepository
	stats     StatsInvalidator
	logger    *slog.Logger
}

func NewTemplateService(
	templates repository.TemplateRepository,
	topics repository.TopicRepository,
	likes repository.LikeRepository,
	comments repository.CommentRepository,
	stats StatsInvalidator,
	logger *slog.Logger,
) *TemplateService {
	if stats == nil {
		stats = nopInvalidator{}
	}
	return &TemplateService{
		templates: templates,
		topics:    topics,
		likes:     likes,
		comments:  comments,
		stats:     stats,
		logger:    logger,
	}
}

// QuestionInput is a question as sent by the editor. ID is empty for new
// questions and must be echoed back for existing ones so their answers stay
// attached.
type QuestionInput struct {
	ID          string `json:"id" validate:"omitempty,max=40"`
	Type        string `json:"type" validate:"required,oneof=text textarea integer checkbox"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=1000"`
	Required    bool   `json:"required"`
	ShowInTable bool   `json:"showInTable"`
}

type CreateTemplateInput struct {
	TopicID      string          `json:"topicId" validate:"required"`
	Title        string          `json:"title" validate:"required,max=200"`
	Description  string          `json:"description" validate:"max=5000"`
	ImageURL     string          `json:"imageUrl" validate:"omitempty,url,max=2048"`
	IsPublic     *bool           `json:"isPublic"`
	AllowedUsers []string        `json:"allowedUsers" validate:"max=500,dive,required"`
	Questions    []QuestionInput `json:"questions" validate:"required,min=1,dive"`
	Tags         []string        `json:"tags" validate:"max=20,dive,required,max=40"`
}

// UpdateTemplateInput is a partial edit; nil fields keep their value.
// Questions and Tags, when present, replace the whole list.
type UpdateTemplateInput struct {
	Version      int64            `json:"version"`
	TopicID      *string          `json:"topicId" validate:"omitempty,min=1"`
	Title        *string          `json:"title" validate:"omitempty,min=1,max=200"`
	Description  *string          `json:"description" validate:"omitempty,max=5000"`
	ImageURL     *string          `json:"imageUrl" validate:"omitempty,max=2048"`
	IsPublic     *bool            `json:"isPublic"`
	AllowedUsers *[]string        `json:"allowedUsers" validate:"omitempty,max=500,dive,required"`
	Questions    *[]QuestionInput `json:"questions" validate:"omitempty,min=1,dive"`
	Tags         *[]string        `json:"tags" validate:"omitempty,max=20,dive,required,max=40"`
}

// ListInput carries the query string of GET /api/templates.
type ListInput struct {
	Query   string
	TopicID string
	Tag     string
	OwnerID string
	Sort    string
	Limit   int
	Offset  int
}

// Create stores a new template owned by actor.
func (s *TemplateService) Create(ctx context.Context, actor *model.User, in CreateTemplateInput) (*model.Template, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	questions, err := buildQuestions(in.Questions, nil)
	if err != nil {
		return nil, err
	}
	if err := s.checkTopic(ctx, in.TopicID); err != nil {
		return nil, err
	}

	isPublic := true
	if in.IsPublic != nil {
		isPublic = *in.IsPublic
	}

	tmpl := &model.Template{
		UserID:       actor.ID,
		TopicID:      in.TopicID,
		Title:        in.Title,
		Description:  in.Description,
		ImageURL:     in.ImageURL,
		IsPublic:     isPublic,
		AllowedUsers: dedupe(in.AllowedUsers),
		Questions:    questions,
		Tags:         normalizeTags(in.Tags),
	}
	if err := s.templates.CreateTemplate(ctx, tmpl); err != nil {
		logUnexpected(s.logger, "creating template", err, slog.String("userID", actor.ID))
		return nil, fmt.Errorf("service/template: creating template: %w", err)
	}

	s.logger.Info("template created",
		slog.String("templateID", tmpl.ID),
		slog.String("userID", actor.ID),
	)
	return tmpl, nil
}

// Get returns the template with its social counters. The counters are
// independent reads, so they run concurrently.
func (s *TemplateService) Get(ctx context.Context, actor *model.User, id string) (*model.TemplateDetail, error) {
	tmpl, err := visibleTemplate(ctx, s.templates, actor, id)
	if err != nil {
		return nil, err
	}

	detail := &model.TemplateDetail{Template: *tmpl}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.likes.CountLikes(gctx, id)
		detail.LikeCount = n
		return err
	})
	g.Go(func() error {
		n, err := s.comments.CountComments(gctx, id)
		detail.CommentCount = n
		return err
	})
	if actor != nil {
		g.Go(func() error {
			like, err := s.likes.FindLike(gctx, id, actor.ID)
			if errors.Is(err, apperror.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			detail.MyLike = like
			detail.LikedByMe = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logUnexpected(s.logger, "loading template detail", err, slog.String("templateID", id))
		return nil, fmt.Errorf("service/template: loading detail of %s: %w", id, err)
	}
	return detail, nil
}

// List searches templates visible to actor.
func (s *TemplateService) List(ctx context.Context, actor *model.User, in ListInput) ([]model.TemplateSummary, error) {
	sort := in.Sort
	switch sort {
	case "", repository.SortLatest:
		sort = repository.SortLatest
	case repository.SortPopular:
	default:
		return nil, apperror.ValidationFailed("sort", "sort must be one of: latest popular")
	}

	f := repository.TemplateFilter{
		ListOptions: clampList(in.Limit, in.Offset),
		Query:       in.Query,
		TopicID:     in.TopicID,
		Tag:         in.Tag,
		OwnerID:     in.OwnerID,
		Sort:        sort,
	}
	if actor != nil {
		f.ViewerID = actor.ID
		f.ViewerIsAdmin = actor.IsAdmin
	}

	list, err := s.templates.ListTemplates(ctx, f)
	if err != nil {
		logUnexpected(s.logger, "listing templates", err)
		return nil, fmt.Errorf("service/template: listing templates: %w", err)
	}
	return list, nil
}

// Update applies a partial edit for the owner or an admin.
func (s *TemplateService) Update(ctx context.Context, actor *model.User, id string, in UpdateTemplateInput) (*model.Template, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := requireVersion(in.Version); err != nil {
		return nil, err
	}
	if in.Title != nil {
		trimmed := strings.TrimSpace(*in.Title)
		in.Title = &trimmed
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	current, err := s.templates.GetTemplateByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, current.UserID) {
		return nil, apperror.Forbidden("only the owner or an admin can edit this template")
	}

	patch := repository.TemplatePatch{
		Title:       in.Title,
		Description: in.Description,
		ImageURL:    in.ImageURL,
		IsPublic:    in.IsPublic,
	}
	if in.TopicID != nil && *in.TopicID != current.TopicID {
		if err := s.checkTopic(ctx, *in.TopicID); err != nil {
			return nil, err
		}
		patch.TopicID = in.TopicID
	}
	if in.AllowedUsers != nil {
		allowed := dedupe(*in.AllowedUsers)
		patch.AllowedUsers = &allowed
	}
	if in.Questions != nil {
		questions, err := buildQuestions(*in.Questions, current.Questions)
		if err != nil {
			return nil, err
		}
		patch.Questions = &questions
	}
	if in.Tags != nil {
		tags := normalizeTags(*in.Tags)
		patch.Tags = &tags
	}

	updated, err := s.templates.UpdateTemplate(ctx, id, in.Version, patch)
	if err != nil {
		err = afterConflict(ctx, err, s.recheck(id))
		logUnexpected(s.logger, "updating template", err, slog.String("templateID", id))
		return nil, fmt.Errorf("service/template: updating template %s: %w", id, err)
	}

	s.stats.Invalidate(ctx, id)
	s.logger.Info("template updated",
		slog.String("templateID", id),
		slog.Int64("version", updated.Version),
	)
	return updated, nil
}

// Delete removes the template and its dependents for the owner or an admin.
func (s *TemplateService) Delete(ctx context.Context, actor *model.User, id string, version int64) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if err := requireVersion(version); err != nil {
		return err
	}

	current, err := s.templates.GetTemplateByID(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(actor, current.UserID) {
		return apperror.Forbidden("only the owner or an admin can delete this template")
	}

	if err := s.templates.DeleteTemplate(ctx, id, version); err != nil {
		err = afterConflict(ctx, err, s.recheck(id))
		logUnexpected(s.logger, "deleting template", err, slog.String("templateID", id))
		return fmt.Errorf("service/template: deleting template %s: %w", id, err)
	}

	s.stats.Invalidate(ctx, id)
	s.logger.Info("template deleted", slog.String("templateID", id))
	return nil
}

func (s *TemplateService) recheck(id string) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := s.templates.GetTemplateByID(ctx, id)
		return err
	}
}

// checkTopic turns an unknown topic id into a validation error on topicId.
func (s *TemplateService) checkTopic(ctx context.Context, topicID string) error {
	if _, err := s.topics.GetTopicByID(ctx, topicID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.ValidationFailed("topicId", "unknown topic")
		}
		return fmt.Errorf("service/template: checking topic: %w", err)
	}
	return nil
}

// buildQuestions validates the question list and assigns ids to new
// questions. An id that is not new must belong to the existing template.
func buildQuestions(in []QuestionInput, existing []model.Question) ([]model.Question, error) {
	if len(in) == 0 {
		return nil, apperror.ValidationFailed("questions", "a template needs at least one question")
	}
	known := make(map[string]bool, len(existing))
	for _, q := range existing {
		known[q.ID] = true
	}

	perType := make(map[model.QuestionType]int)
	seen := make(map[string]bool, len(in))
	out := make([]model.Question, 0, len(in))
	for i, q := range in {
		qt := model.QuestionType(q.Type)
		if !qt.Valid() {
			return nil, apperror.ValidationFailed(fmt.Sprintf("questions[%d].type", i), "unknown question type")
		}
		perType[qt]++
		if perType[qt] > model.MaxQuestionsPerType {
			return nil, apperror.ValidationFailed("questions",
				fmt.Sprintf("at most %d %s questions are allowed", model.MaxQuestionsPerType, qt))
		}

		id := q.ID
		if id == "" {
			id = xid.New().String()
		} else if !known[id] {
			return nil, apperror.ValidationFailed(fmt.Sprintf("questions[%d].id", i), "unknown question id "+id)
		}
		if seen[id] {
			return nil, apperror.ValidationFailed(fmt.Sprintf("questions[%d].id", i), "duplicate question id "+id)
		}
		seen[id] = true

		out = append(out, model.Question{
			ID:          id,
			Type:        qt,
			Title:       strings.TrimSpace(q.Title),
			Description: q.Description,
			Required:    q.Required,
			ShowInTable: q.ShowInTable,
		})
	}
	return out, nil
}

// normalizeTags lower-cases, trims and de-duplicates, keeping first-seen
// order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
