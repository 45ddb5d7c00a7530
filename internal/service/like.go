package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/readyforms/readyforms-api/internal/model"
	"github.com/readyforms/readyforms-api/internal/repository"
)

// LikeService toggles likes. A like is a versioned row like any other, so
// unliking needs the version returned when it was created.
type LikeService struct {
	templates repository.TemplateRepository
	likes     repository.LikeRepository
	logger    *slog.Logger
}

func NewLikeService(templates repository.TemplateRepository, likes repository.LikeRepository, logger *slog.Logger) *LikeService {
	return &LikeService{templates: templates, likes: likes, logger: logger}
}

// LikeState is returned by both like and unlike.
type LikeState struct {
	Liked bool        `json:"liked"`
	Count int         `json:"count"`
	Like  *model.Like `json:"like,omitempty"`
}

// Like adds actor's like. Liking twice is a conflict.
func (s *LikeService) Like(ctx context.Context, actor *model.User, templateID string) (*LikeState, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if _, err := visibleTemplate(ctx, s.templates, actor, templateID); err != nil {
		return nil, err
	}

	like := &model.Like{TemplateID: templateID, UserID: actor.ID}
	if err := s.likes.CreateLike(ctx, like); err != nil {
		logUnexpected(s.logger, "creating like", err, slog.String("templateID", templateID))
		return nil, fmt.Errorf("service/like: liking template %s: %w", templateID, err)
	}
	return s.state(ctx, templateID, like)
}

// Unlike removes actor's like if version matches the stored like.
func (s *LikeService) Unlike(ctx context.Context, actor *model.User, templateID string, version int64) (*LikeState, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := requireVersion(version); err != nil {
		return nil, err
	}

	like, err := s.likes.FindLike(ctx, templateID, actor.ID)
	if err != nil {
		return nil, err
	}
	if err := s.likes.DeleteLike(ctx, like.ID, version); err != nil {
		err = afterConflict(ctx, err, func(ctx context.Context) error {
			_, err := s.likes.GetLikeByID(ctx, like.ID)
			return err
		})
		logUnexpected(s.logger, "deleting like", err, slog.String("likeID", like.ID))
		return nil, fmt.Errorf("service/like: unliking template %s: %w", templateID, err)
	}
	return s.state(ctx, templateID, nil)
}

func (s *LikeService) state(ctx context.Context, templateID string, like *model.Like) (*LikeState, error) {
	n, err := s.likes.CountLikes(ctx, templateID)
	if err != nil {
		logUnexpected(s.logger, "counting likes", err, slog.String("templateID", templateID))
		return nil, fmt.Errorf("service/like: counting likes: %w", err)
	}
	return &LikeState{Liked: like != nil, Count: n, Like: like}, nil
}
