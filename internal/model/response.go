package model

import "time"

// Answer is the value given to one question. Values are always strings:
// free text for text/textarea, a base-10 integer for integer questions and
// "true"/"false" for checkboxes.
type Answer struct {
	QuestionID string `json:"questionId"`
	Value      string `json:"value"`
}

// FormResponse is one filled-in form.
type FormResponse struct {
	ID         string    `json:"id"`
	TemplateID string    `json:"templateId"`
	UserID     string    `json:"userId"`
	Answers    []Answer  `json:"answers"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Versioned
}

// Comment is a remark left on a template.
type Comment struct {
	ID         string    `json:"id"`
	TemplateID string    `json:"templateId"`
	UserID     string    `json:"userId"`
	AuthorName string    `json:"authorName,omitempty"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Versioned
}

// Like records that a user liked a template. One per (template, user).
type Like struct {
	ID         string    `json:"id"`
	TemplateID string    `json:"templateId"`
	UserID     string    `json:"userId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Versioned
}

// Tag is a free-form label. Names are stored lower-cased.
type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Versioned
}

// TagCount is a tag with the number of templates using it (tag cloud).
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
