package survey

import (
	"github.com/MarcoPoloResearchLab/ticket-survey/internal/ordering"
	"gorm.io/gorm"
)

const (
	defaultTicketQuestionText     = "What is your ticket number?"
	defaultTechnicianQuestionText = "Who was your technician for this ticket?"
)

var defaultQuestionLabels = map[string]string{
	defaultTicketQuestionText:     labelTicket,
	defaultTechnicianQuestionText: labelTechnician,
	"Overall, how would you rate the handling of your issue by the IT department?":                    "Overall Rating",
	"Were you helped in a timely manner?":                                                             "Timeliness",
	"Was your technician helpful?":                                                                    "Helpfulness",
	"Was your technician courteous?":                                                                  "Courtesy",
	"Did your technician demonstrate a reasonable understanding of your issue?":                       "Understanding",
	"Do you feel we could make an improvement, or have concerns about how your ticket was handled?": "Comments",
}

// DefaultQuestion is one entry of the catalog seeded on first install.
type DefaultQuestion struct {
	Text     string
	Type     QuestionType
	Required bool
	Options  []string
}

// DefaultQuestions returns the seed catalog in display order.
func DefaultQuestions() []DefaultQuestion {
	return []DefaultQuestion{
		{Text: defaultTicketQuestionText, Type: QuestionTypeShortText, Required: true},
		{
			Text:     defaultTechnicianQuestionText,
			Type:     QuestionTypeDropdown,
			Required: true,
			Options:  []string{"Technician A", "Technician B", "Technician C", "Technician D"},
		},
		{Text: "Overall, how would you rate the handling of your issue by the IT department?", Type: QuestionTypeRating, Required: true},
		{Text: "Were you helped in a timely manner?", Type: QuestionTypeRating, Required: true},
		{Text: "Was your technician helpful?", Type: QuestionTypeRating, Required: true},
		{Text: "Was your technician courteous?", Type: QuestionTypeRating, Required: true},
		{Text: "Did your technician demonstrate a reasonable understanding of your issue?", Type: QuestionTypeRating, Required: true},
		{Text: "Do you feel we could make an improvement, or have concerns about how your ticket was handled?", Type: QuestionTypeLongText, Required: false},
	}
}

// SeedDefaultQuestions appends every default question whose text is not already present
// and returns how many were inserted. Positions are left for ReindexCatalog to normalize.
func SeedDefaultQuestions(tx *gorm.DB) (int, error) {
	questionOrder, _ := newOrderEngines()
	inserted := 0
	for _, seed := range DefaultQuestions() {
		var existing int64
		if err := tx.Model(&Question{}).Where("question_text = ?", seed.Text).Count(&existing).Error; err != nil {
			return inserted, err
		}
		if existing > 0 {
			continue
		}
		position, err := questionOrder.Count(tx, ordering.Scope{})
		if err != nil {
			return inserted, err
		}
		question := Question{
			Text:      seed.Text,
			Type:      seed.Type,
			Required:  seed.Required,
			SortOrder: position,
		}
		if err := tx.Create(&question).Error; err != nil {
			return inserted, err
		}
		if seed.Type == QuestionTypeDropdown {
			if err := insertOptions(tx, question.ID, seed.Options); err != nil {
				return inserted, err
			}
		}
		inserted++
	}
	return inserted, nil
}
