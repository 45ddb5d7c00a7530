package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/readyforms/readyforms-api/internal/apperror"
	"github.com/readyforms/readyforms-api/internal/model"
	"github.com/readyforms/readyforms-api/internal/repository"
)

// Answer length limits per question type.
const (
	MaxTextAnswer     = 255
	MaxTextareaAnswer = 5000
)

// ResponseService handles filling in forms and managing filled-in forms.
type ResponseService struct {
	templates repository.TemplateRepository
	responses repository.ResponseRepository
	stats     StatsInvalidator
	logger    *slog.Logger
}

func NewResponseService(
	templates repository.TemplateRepository,
	responses repository.ResponseRepository,
	stats StatsInvalidator,
	logger *slog.Logger,
) *ResponseService {
	if stats == nil {
		stats = nopInvalidator{}
	}
	return &ResponseService{templates: templates, responses: responses, stats: stats, logger: logger}
}

type AnswerInput struct {
	QuestionID string `json:"questionId" validate:"required"`
	Value      string `json:"value"`
}

type SubmitResponseInput struct {
	Answers []AnswerInput `json:"answers" validate:"max=16,dive"`
}

type UpdateResponseInput struct {
	Version int64         `json:"version"`
	Answers []AnswerInput `json:"answers" validate:"max=16,dive"`
}

// Submit records actor's answers to a template they can see.
func (s *ResponseService) Submit(ctx context.Context, actor *model.User, templateID string, in SubmitResponseInput) (*model.FormResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	tmpl, err := visibleTemplate(ctx, s.templates, actor, templateID)
	if err != nil {
		return nil, err
	}
	answers, err := checkAnswers(tmpl, in.Answers)
	if err != nil {
		return nil, err
	}

	resp := &model.FormResponse{TemplateID: templateID, UserID: actor.ID, Answers: answers}
	if err := s.responses.CreateResponse(ctx, resp); err != nil {
		logUnexpected(s.logger, "creating response", err, slog.String("templateID", templateID))
		return nil, fmt.Errorf("service/response: creating response: %w", err)
	}

	s.stats.Invalidate(ctx, templateID)
	s.logger.Info("response submitted",
		slog.String("responseID", resp.ID),
		slog.String("templateID", templateID),
	)
	return resp, nil
}

// ListForTemplate is the owner's (or an admin's) view of all responses.
func (s *ResponseService) ListForTemplate(ctx context.Context, actor *model.User, templateID string, limit, offset int) ([]model.FormResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	tmpl, err := s.templates.GetTemplateByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, tmpl.UserID) {
		return nil, apperror.Forbidden("only the template owner or an admin can list its responses")
	}
	list, err := s.responses.ListResponsesByTemplate(ctx, templateID, clampList(limit, offset))
	if err != nil {
		logUnexpected(s.logger, "listing responses", err, slog.String("templateID", templateID))
		return nil, fmt.Errorf("service/response: listing responses: %w", err)
	}
	return list, nil
}

// ListMine returns the responses actor has submitted.
func (s *ResponseService) ListMine(ctx context.Context, actor *model.User, limit, offset int) ([]model.FormResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	list, err := s.responses.ListResponsesByUser(ctx, actor.ID, clampList(limit, offset))
	if err != nil {
		logUnexpected(s.logger, "listing own responses", err, slog.String("userID", actor.ID))
		return nil, fmt.Errorf("service/response: listing own responses: %w", err)
	}
	return list, nil
}

// Get is allowed for the author, the template owner and admins.
func (s *ResponseService) Get(ctx context.Context, actor *model.User, id string) (*model.FormResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	resp, err := s.responses.GetResponseByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok, err := s.canRead(ctx, actor, resp); err != nil || !ok {
		if err != nil {
			return nil, err
		}
		return nil, apperror.Forbidden("you cannot view this response")
	}
	return resp, nil
}

// Update replaces the answers. Only the author or an admin may edit; the
// new answers are checked against the template's current questions.
func (s *ResponseService) Update(ctx context.Context, actor *model.User, id string, in UpdateResponseInput) (*model.FormResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := requireVersion(in.Version); err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	current, err := s.responses.GetResponseByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, current.UserID) {
		return nil, apperror.Forbidden("only the author or an admin can edit this response")
	}
	tmpl, err := s.templates.GetTemplateByID(ctx, current.TemplateID)
	if err != nil {
		return nil, err
	}
	answers, err := checkAnswers(tmpl, in.Answers)
	if err != nil {
		return nil, err
	}

	updated, err := s.responses.UpdateResponse(ctx, id, in.Version, answers)
	if err != nil {
		err = afterConflict(ctx, err, s.recheck(id))
		logUnexpected(s.logger, "updating response", err, slog.String("responseID", id))
		return nil, fmt.Errorf("service/response: updating response %s: %w", id, err)
	}

	s.stats.Invalidate(ctx, current.TemplateID)
	return updated, nil
}

// Delete is allowed for the author, the template owner and admins.
func (s *ResponseService) Delete(ctx context.Context, actor *model.User, id string, version int64) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if err := requireVersion(version); err != nil {
		return err
	}

	current, err := s.responses.GetResponseByID(ctx, id)
	if err != nil {
		return err
	}
	if ok, err := s.canRead(ctx, actor, current); err != nil || !ok {
		if err != nil {
			return err
		}
		return apperror.Forbidden("you cannot delete this response")
	}

	if err := s.responses.DeleteResponse(ctx, id, version); err != nil {
		err = afterConflict(ctx, err, s.recheck(id))
		logUnexpected(s.logger, "deleting response", err, slog.String("responseID", id))
		return fmt.Errorf("service/response: deleting response %s: %w", id, err)
	}

	s.stats.Invalidate(ctx, current.TemplateID)
	return nil
}

// canRead: author, admin, or owner of the template answered.
func (s *ResponseService) canRead(ctx context.Context, actor *model.User, resp *model.FormResponse) (bool, error) {
	if canManage(actor, resp.UserID) {
		return true, nil
	}
	tmpl, err := s.templates.GetTemplateByID(ctx, resp.TemplateID)
	if err != nil {
		return false, err
	}
	return tmpl.UserID == actor.ID, nil
}

func (s *ResponseService) recheck(id string) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := s.responses.GetResponseByID(ctx, id)
		return err
	}
}

// checkAnswers validates answers against the template's questions and
// returns them normalized and in question order. Empty values count as
// unanswered.
func checkAnswers(tmpl *model.Template, in []AnswerInput) ([]model.Answer, error) {
	given := make(map[string]string, len(in))
	for i, a := range in {
		if _, ok := tmpl.Question(a.QuestionID); !ok {
			return nil, apperror.ValidationFailed(fmt.Sprintf("answers[%d].questionId", i), "unknown question "+a.QuestionID)
		}
		if _, dup := given[a.QuestionID]; dup {
			return nil, apperror.ValidationFailed(fmt.Sprintf("answers[%d].questionId", i), "question answered twice: "+a.QuestionID)
		}
		given[a.QuestionID] = a.Value
	}

	out := make([]model.Answer, 0, len(given))
	for _, q := range tmpl.Questions {
		raw, ok := given[q.ID]
		value := raw
		if q.Type != model.QuestionTextarea {
			value = strings.TrimSpace(raw)
		}
		if !ok || strings.TrimSpace(value) == "" {
			if q.Required {
				return nil, apperror.ValidationFailed("answers", fmt.Sprintf("question %q is required", q.Title))
			}
			continue
		}

		normalized, err := checkValue(q, value)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Answer{QuestionID: q.ID, Value: normalized})
	}
	return out, nil
}

func checkValue(q model.Question, value string) (string, error) {
	invalid := func(msg string) error {
		return apperror.ValidationFailed("answers", fmt.Sprintf("question %q: %s", q.Title, msg))
	}
	switch q.Type {
	case model.QuestionText:
		if utf8.RuneCountInString(value) > MaxTextAnswer {
			return "", invalid(fmt.Sprintf("must be %d characters or fewer", MaxTextAnswer))
		}
	case model.QuestionTextarea:
		if utf8.RuneCountInString(value) > MaxTextareaAnswer {
			return "", invalid(fmt.Sprintf("must be %d characters or fewer", MaxTextareaAnswer))
		}
	case model.QuestionInteger:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return "", invalid("must be a non-negative whole number")
		}
		return strconv.FormatInt(n, 10), nil
	case model.QuestionCheckbox:
		switch value {
		case "true", "false":
		default:
			return "", invalid(`must be "true" or "false"`)
		}
	}
	return value, nil
}
