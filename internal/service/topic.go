package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/readyforms/readyforms-api/internal/model"
	"github.com/readyforms/readyforms-api/internal/repository"
)

// TopicService manages the admin-curated topic list.
type TopicService struct {
	topics repository.TopicRepository
	logger *slog.Logger
}

func NewTopicService(topics repository.TopicRepository, logger *slog.Logger) *TopicService {
	return &TopicService{topics: topics, logger: logger}
}

type TopicInput struct {
	Name string `json:"name" validate:"required,max=60"`
}

type UpdateTopicInput struct {
	Version int64  `json:"version"`
	Name    string `json:"name" validate:"required,max=60"`
}

func (s *TopicService) List(ctx context.Context) ([]model.Topic, error) {
	topics, err := s.topics.ListTopics(ctx)
	if err != nil {
		logUnexpected(s.logger, "listing topics", err)
		return nil, fmt.Errorf("service/topic: listing topics: %w", err)
	}
	return topics, nil
}

func (s *TopicService) Create(ctx context.Context, in TopicInput) (*model.Topic, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	topic := &model.Topic{Name: in.Name}
	if err := s.topics.CreateTopic(ctx, topic); err != nil {
		logUnexpected(s.logger, "creating topic", err)
		return nil, fmt.Errorf("service/topic: creating topic: %w", err)
	}
	return topic, nil
}

func (s *TopicService) Update(ctx context.Context, id string, in UpdateTopicInput) (*model.Topic, error) {
	if err := requireVersion(in.Version); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	topic, err := s.topics.UpdateTopic(ctx, id, in.Version, in.Name)
	if err != nil {
		err = afterConflict(ctx, err, s.recheck(id))
		logUnexpected(s.logger, "updating topic", err, slog.String("topicID", id))
		return nil, fmt.Errorf("service/topic: updating topic %s: %w", id, err)
	}
	return topic, nil
}

// Delete fails with a conflict while templates still use the topic.
func (s *TopicService) Delete(ctx context.Context, id string, version int64) error {
	if err := requireVersion(version); err != nil {
		return err
	}
	if err := s.topics.DeleteTopic(ctx, id, version); err != nil {
		err = afterConflict(ctx, err, s.recheck(id))
		logUnexpected(s.logger, "deleting topic", err, slog.String("topicID", id))
		return fmt.Errorf("service/topic: deleting topic %s: %w", id, err)
	}
	return nil
}

func (s *TopicService) recheck(id string) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := s.topics.GetTopicByID(ctx, id)
		return err
	}
}
