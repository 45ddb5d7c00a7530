package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/readyforms/readyforms-api/internal/apperror"
	"github.com/readyforms/readyforms-api/internal/model"
	"github.com/readyforms/readyforms-api/internal/repository"
)

// CommentService manages the discussion under a template.
type CommentService struct {
	templates repository.TemplateRepository
	comments  repository.CommentRepository
	logger    *slog.Logger
}

func NewCommentService(templates repository.TemplateRepository, comments repository.CommentRepository, logger *slog.Logger) *CommentService {
	return &CommentService{templates: templates, comments: comments, logger: logger}
}

type CommentInput struct {
	Content string `json:"content" validate:"required,max=2000"`
}

// List returns comments of a template the caller can see, oldest first.
func (s *CommentService) List(ctx context.Context, actor *model.User, templateID string, limit, offset int) ([]model.Comment, error) {
	if _, err := visibleTemplate(ctx, s.templates, actor, templateID); err != nil {
		return nil, err
	}
	list, err := s.comments.ListComments(ctx, templateID, clampList(limit, offset))
	if err != nil {
		logUnexpected(s.logger, "listing comments", err, slog.String("templateID", templateID))
		return nil, fmt.Errorf("service/comment: listing comments: %w", err)
	}
	return list, nil
}

func (s *CommentService) Add(ctx context.Context, actor *model.User, templateID string, in CommentInput) (*model.Comment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	in.Content = strings.TrimSpace(in.Content)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if _, err := visibleTemplate(ctx, s.templates, actor, templateID); err != nil {
		return nil, err
	}

	c := &model.Comment{TemplateID: templateID, UserID: actor.ID, AuthorName: actor.Name, Content: in.Content}
	if err := s.comments.CreateComment(ctx, c); err != nil {
		logUnexpected(s.logger, "creating comment", err, slog.String("templateID", templateID))
		return nil, fmt.Errorf("service/comment: creating comment: %w", err)
	}
	return c, nil
}

// Delete is allowed for the author and admins.
func (s *CommentService) Delete(ctx context.Context, actor *model.User, id string, version int64) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if err := requireVersion(version); err != nil {
		return err
	}
	current, err := s.comments.GetCommentByID(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(actor, current.UserID) {
		return apperror.Forbidden("only the author or an admin can delete this comment")
	}

	if err := s.comments.DeleteComment(ctx, id, version); err != nil {
		err = afterConflict(ctx, err, func(ctx context.Context) error {
			_, err := s.comments.GetCommentByID(ctx, id)
			return err
		})
		logUnexpected(s.logger, "deleting comment", err, slog.String("commentID", id))
		return fmt.Errorf("service/comment: deleting comment %s: %w", id, err)
	}
	return nil
}
