package survey

import (
	"fmt"
	"strings"

	"gorm.io/datatypes"
)

// QuestionType enumerates the supported answer controls.
type QuestionType string

const (
	// QuestionTypeShortText is a single-line free text answer.
	QuestionTypeShortText QuestionType = "short_text"
	// QuestionTypeLongText is a multi-line free text answer.
	QuestionTypeLongText QuestionType = "long_text"
	// QuestionTypeRating is a 1..5 score.
	QuestionTypeRating QuestionType = "rating"
	// QuestionTypeDropdown picks one of the question's options.
	QuestionTypeDropdown QuestionType = "dropdown"
)

// ParseQuestionType validates raw input against the closed set of question types.
func ParseQuestionType(raw string) (QuestionType, error) {
	switch candidate := QuestionType(strings.ToLower(strings.TrimSpace(raw))); candidate {
	case QuestionTypeShortText, QuestionTypeLongText, QuestionTypeRating, QuestionTypeDropdown:
		return candidate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, raw)
	}
}

func (t QuestionType) multiLine() bool {
	return t == QuestionTypeLongText
}

// Question is a survey prompt positioned by a dense sort order.
type Question struct {
	ID        uint             `gorm:"column:id;primaryKey;autoIncrement"`
	Text      string           `gorm:"column:question_text;type:text;not null"`
	Type      QuestionType     `gorm:"column:question_type;size:32;not null"`
	Required  bool             `gorm:"column:is_required;not null;default:false"`
	SortOrder int              `gorm:"column:sort_order;not null;default:0;index"`
	Options   []DropdownOption `gorm:"-"`
}

// TableName provides the explicit table binding for GORM.
func (Question) TableName() string {
	return "survey_questions"
}

// OptionValues returns the option strings in their sort order.
func (q Question) OptionValues() []string {
	values := make([]string, 0, len(q.Options))
	for _, option := range q.Options {
		values = append(values, option.Value)
	}
	return values
}

// DropdownOption is one choice of a dropdown question.
type DropdownOption struct {
	ID         uint   `gorm:"column:id;primaryKey;autoIncrement"`
	QuestionID uint   `gorm:"column:question_id;not null;index"`
	Value      string `gorm:"column:option_value;size:255;not null"`
	SortOrder  int    `gorm:"column:sort_order;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (DropdownOption) TableName() string {
	return "survey_dropdown_options"
}

// Submission records one completed survey.
type Submission struct {
	ID                 uint   `gorm:"column:id;primaryKey;autoIncrement"`
	UserID             string `gorm:"column:user_id;size:190;not null;index"`
	SubmittedAtSeconds int64  `gorm:"column:submitted_at_s;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (Submission) TableName() string {
	return "survey_submissions"
}

// QuestionSnapshot freezes the prompt an answer was given against.
type QuestionSnapshot struct {
	Text     string       `json:"text"`
	Type     QuestionType `json:"type"`
	Required bool         `json:"required"`
}

// Answer stores the sanitized value for one question of one submission.
type Answer struct {
	ID           uint                                `gorm:"column:id;primaryKey;autoIncrement"`
	SubmissionID uint                                `gorm:"column:submission_id;not null;index"`
	QuestionID   uint                                `gorm:"column:question_id;not null;index"`
	Value        string                              `gorm:"column:answer_value;type:text;not null"`
	Snapshot     datatypes.JSONType[QuestionSnapshot] `gorm:"column:question_snapshot"`
}

// TableName provides the explicit table binding for GORM.
func (Answer) TableName() string {
	return "survey_answers"
}

// Settings carries the survey-wide configuration consumed by the projector and form renderer.
type Settings struct {
	ID                   uint   `gorm:"column:id;primaryKey"`
	BackgroundColor      string `gorm:"column:background_color;size:16;not null"`
	TicketQuestionID     uint   `gorm:"column:ticket_question_id;not null;default:0"`
	TechnicianQuestionID uint   `gorm:"column:technician_question_id;not null;default:0"`
	TicketURLBase        string `gorm:"column:ticket_url_base;size:512;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (Settings) TableName() string {
	return "survey_settings"
}

// Models lists every table owned by the survey package, in migration order.
func Models() []any {
	return []any{&Question{}, &DropdownOption{}, &Submission{}, &Answer{}, &Settings{}}
}
