package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/readyforms/readyforms-api/internal/model"
	"github.com/readyforms/readyforms-api/internal/repository"
)

// TagService serves the tag cloud and tag autocomplete.
type TagService struct {
	tags   repository.TagRepository
	logger *slog.Logger
}

func NewTagService(tags repository.TagRepository, logger *slog.Logger) *TagService {
	return &TagService{tags: tags, logger: logger}
}

// List returns the most used tags, optionally those starting with prefix.
func (s *TagService) List(ctx context.Context, prefix string, limit int) ([]model.TagCount, error) {
	tags, err := s.tags.ListTags(ctx, prefix, clampList(limit, 0).Limit)
	if err != nil {
		logUnexpected(s.logger, "listing tags", err)
		return nil, fmt.Errorf("service/tag: listing tags: %w", err)
	}
	return tags, nil
}
