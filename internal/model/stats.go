package model

import "time"

// ValueCount is one answer value and how often it occurred.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// QuestionStats aggregates the answers to one question. Only the fields
// relevant to the question type are filled.
type QuestionStats struct {
	QuestionID string       `json:"questionId"`
	Title      string       `json:"title"`
	Type       QuestionType `json:"type"`
	Answered   int          `json:"answered"`

	// text / textarea
	TopValues []ValueCount `json:"topValues,omitempty"`

	// integer
	Min     *int64   `json:"min,omitempty"`
	Max     *int64   `json:"max,omitempty"`
	Average *float64 `json:"average,omitempty"`

	// checkbox
	TrueCount  *int `json:"trueCount,omitempty"`
	FalseCount *int `json:"falseCount,omitempty"`
}

// TemplateStats is the analytics view of a template's responses.
type TemplateStats struct {
	TemplateID      string          `json:"templateId"`
	TemplateVersion int64           `json:"templateVersion"`
	TotalResponses  int             `json:"totalResponses"`
	Questions       []QuestionStats `json:"questions"`
	GeneratedAt     time.Time       `json:"generatedAt"`
}
