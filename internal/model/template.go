package model

import "time"

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	QuestionText     QuestionType = "text"     // single-line string
	QuestionTextarea QuestionType = "textarea" // multi-line text
	QuestionInteger  QuestionType = "integer"  // non-negative integer
	QuestionCheckbox QuestionType = "checkbox" // yes/no
)

// MaxQuestionsPerType caps how many questions of one type a template holds.
const MaxQuestionsPerType = 4

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionText, QuestionTextarea, QuestionInteger, QuestionCheckbox:
		return true
	}
	return false
}

// Question is one field of a form. IDs are generated on first save and
// kept across edits so existing answers stay attached.
type Question struct {
	ID          string       `json:"id"`
	Type        QuestionType `json:"type"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Required    bool         `json:"required"`
	ShowInTable bool         `json:"showInTable"`
}

// Topic groups templates (e.g. "Education", "Quiz"). Admin-managed.
type Topic struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Versioned
}

// Template is a form definition owned by a user.
//
// When IsPublic is false only the owner, admins and AllowedUsers may open
// and fill the form.
type Template struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	TopicID      string     `json:"topicId"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	ImageURL     string     `json:"imageUrl,omitempty"`
	IsPublic     bool       `json:"isPublic"`
	AllowedUsers []string   `json:"allowedUsers"`
	Questions    []Question `json:"questions"`
	Tags         []string   `json:"tags"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	Versioned
}

// Question returns the question with the given id.
func (t *Template) Question(id string) (Question, bool) {
	for _, q := range t.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// CanView reports whether userID may open the template. Admin status is
// checked by the caller.
func (t *Template) CanView(userID string) bool {
	if t.IsPublic || (userID != "" && t.UserID == userID) {
		return true
	}
	for _, id := range t.AllowedUsers {
		if id == userID && userID != "" {
			return true
		}
	}
	return false
}

// TemplateDetail is the template view returned by GET /api/templates/{id}.
type TemplateDetail struct {
	Template
	LikeCount    int  `json:"likeCount"`
	LikedByMe    bool `json:"likedByMe"`
	CommentCount int  `json:"commentCount"`
	// MyLike carries the caller's like version so the client can unlike.
	MyLike *Like `json:"myLike,omitempty"`
}

// TemplateSummary is a list row: the template plus its like count.
type TemplateSummary struct {
	Template
	LikeCount int `json:"likeCount"`
}
