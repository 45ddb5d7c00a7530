// Package repository declares the storage interfaces the service layer
// depends on. internal/repository/sqlstore implements all of them.
//
// Every Update*/Delete* method that takes a version is an optimistic write:
// it fails with apperror.ErrOptimisticLock when the stored version differs
// (or the row is gone) and leaves the row untouched.
package repository

import (
	"context"
	"time"

	"github.com/readyforms/readyforms-api/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// Template list orderings.
const (
	SortLatest  = "latest"
	SortPopular = "popular"
)

// TemplateFilter narrows a template listing.
type TemplateFilter struct {
	ListOptions
	Query   string // substring of title or description, case-insensitive
	TopicID string
	Tag     string
	OwnerID string
	Sort    string

	// ViewerID/ViewerIsAdmin decide which non-public templates are visible.
	ViewerID      string
	ViewerIsAdmin bool
}

// UserPatch lists the user fields an update may change. Nil means "keep".
type UserPatch struct {
	Name      *string
	IsAdmin   *bool
	IsBlocked *bool
	GitHubID  *int64
}

// TemplatePatch lists the template fields an update may change. Nil means
// "keep". Tags, when set, replace the whole tag set.
type TemplatePatch struct {
	Title        *string
	Description  *string
	ImageURL     *string
	TopicID      *string
	IsPublic     *bool
	AllowedUsers *[]string
	Questions    *[]model.Question
	Tags         *[]string
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	ListUsers(ctx context.Context, opts ListOptions) ([]model.User, error)
	UpdateUser(ctx context.Context, id string, version int64, patch UserPatch) (*model.User, error)
	// TouchLogin records a login time without bumping the version.
	TouchLogin(ctx context.Context, id string, at time.Time) error
	// DeleteUser removes the user and everything they own in one
	// transaction. It returns the ids of other users' templates whose
	// responses were removed along the way.
	DeleteUser(ctx context.Context, id string, version int64) ([]string, error)
}

type TopicRepository interface {
	CreateTopic(ctx context.Context, topic *model.Topic) error
	GetTopicByID(ctx context.Context, id string) (*model.Topic, error)
	ListTopics(ctx context.Context) ([]model.Topic, error)
	UpdateTopic(ctx context.Context, id string, version int64, name string) (*model.Topic, error)
	// DeleteTopic fails with apperror.ErrConflict while templates use it.
	DeleteTopic(ctx context.Context, id string, version int64) error
}

type TemplateRepository interface {
	CreateTemplate(ctx context.Context, tmpl *model.Template) error
	GetTemplateByID(ctx context.Context, id string) (*model.Template, error)
	ListTemplates(ctx context.Context, filter TemplateFilter) ([]model.TemplateSummary, error)
	UpdateTemplate(ctx context.Context, id string, version int64, patch TemplatePatch) (*model.Template, error)
	// DeleteTemplate removes the template with its comments, likes,
	// responses and tag links in one transaction.
	DeleteTemplate(ctx context.Context, id string, version int64) error
}

type ResponseRepository interface {
	CreateResponse(ctx context.Context, resp *model.FormResponse) error
	GetResponseByID(ctx context.Context, id string) (*model.FormResponse, error)
	ListResponsesByTemplate(ctx context.Context, templateID string, opts ListOptions) ([]model.FormResponse, error)
	ListResponsesByUser(ctx context.Context, userID string, opts ListOptions) ([]model.FormResponse, error)
	// AllAnswers streams every response's answers for a template (analytics).
	AllAnswers(ctx context.Context, templateID string, fn func([]model.Answer) error) error
	UpdateResponse(ctx context.Context, id string, version int64, answers []model.Answer) (*model.FormResponse, error)
	DeleteResponse(ctx context.Context, id string, version int64) error
}

type CommentRepository interface {
	CreateComment(ctx context.Context, c *model.Comment) error
	GetCommentByID(ctx context.Context, id string) (*model.Comment, error)
	ListComments(ctx context.Context, templateID string, opts ListOptions) ([]model.Comment, error)
	CountComments(ctx context.Context, templateID string) (int, error)
	DeleteComment(ctx context.Context, id string, version int64) error
}

type LikeRepository interface {
	// CreateLike fails with apperror.ErrConflict if the user already liked
	// the template.
	CreateLike(ctx context.Context, like *model.Like) error
	GetLikeByID(ctx context.Context, id string) (*model.Like, error)
	// FindLike returns apperror.ErrNotFound when userID has not liked it.
	FindLike(ctx context.Context, templateID, userID string) (*model.Like, error)
	CountLikes(ctx context.Context, templateID string) (int, error)
	DeleteLike(ctx context.Context, id string, version int64) error
}

type TagRepository interface {
	ListTags(ctx context.Context, prefix string, limit int) ([]model.TagCount, error)
	TemplateTags(ctx context.Context, templateID string) ([]string, error)
}
