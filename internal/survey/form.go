package survey

import (
	"context"
	"strconv"
	"strings"
)

// Control names the input widget a field renders as.
type Control string

const (
	ControlText     Control = "text"
	ControlTextarea Control = "textarea"
	ControlRadio    Control = "radio"
	ControlSelect   Control = "select"
)

const (
	inputNamePrefix = "q_"
	ratingMin       = 1
	ratingMax       = 5
)

// FormPrefill carries values passed in from the ticket notification link.
type FormPrefill struct {
	TicketID       string
	TechnicianName string
}

// Choice is one selectable value of a radio or select control.
type Choice struct {
	Value    string
	Label    string
	Selected bool
}

// InputSpec tells the renderer how to draw one question.
type InputSpec struct {
	Name     string
	Control  Control
	Required bool
	Value    string
	Choices  []Choice
}

// FormField is one numbered question of the rendered form.
type FormField struct {
	Number   int
	Question Question
	Input    InputSpec
}

// Form is the survey as the respondent sees it.
type Form struct {
	BackgroundColor string
	Fields          []FormField
}

// InputName returns the form field name for a question id.
func InputName(questionID uint) string {
	return inputNamePrefix + strconv.FormatUint(uint64(questionID), 10)
}

// ParseInputName reverses InputName.
func ParseInputName(name string) (uint, bool) {
	if !strings.HasPrefix(name, inputNamePrefix) {
		return 0, false
	}
	value, err := strconv.ParseUint(strings.TrimPrefix(name, inputNamePrefix), 10, 64)
	if err != nil || value == 0 {
		return 0, false
	}
	return uint(value), true
}

// RenderForm describes the current catalog as form fields, applying ticket and technician prefill.
func (s *Service) RenderForm(ctx context.Context, settings Settings, prefill FormPrefill) (Form, error) {
	if s.db == nil {
		return Form{}, s.fail(opRenderForm, reasonMissingDB, ErrPersistence, errMissingDatabase)
	}
	questions, err := loadQuestions(s.db.WithContext(ctx))
	if err != nil {
		return Form{}, s.fail(opRenderForm, reasonQueryFailed, ErrPersistence, err)
	}
	return BuildForm(questions, settings, prefill), nil
}

// BuildForm builds the form description from already loaded questions.
func BuildForm(questions []Question, settings Settings, prefill FormPrefill) Form {
	ticketID := sanitizeSingleLine(prefill.TicketID)
	technician := sanitizeSingleLine(prefill.TechnicianName)

	fields := make([]FormField, 0, len(questions))
	for index, question := range questions {
		input := InputSpec{
			Name:     InputName(question.ID),
			Required: question.Required,
		}
		switch question.Type {
		case QuestionTypeLongText:
			input.Control = ControlTextarea
		case QuestionTypeRating:
			input.Control = ControlRadio
			input.Choices = ratingChoices()
		case QuestionTypeDropdown:
			input.Control = ControlSelect
			input.Choices = optionChoices(question, question.ID == settings.TechnicianQuestionID, technician)
			for _, choice := range input.Choices {
				if choice.Selected {
					input.Value = choice.Value
				}
			}
		default:
			input.Control = ControlText
			if question.ID == settings.TicketQuestionID {
				input.Value = ticketID
			}
		}
		fields = append(fields, FormField{
			Number:   index + 1,
			Question: question,
			Input:    input,
		})
	}

	return Form{BackgroundColor: settings.BackgroundColor, Fields: fields}
}

func ratingChoices() []Choice {
	choices := make([]Choice, 0, ratingMax-ratingMin+1)
	for score := ratingMin; score <= ratingMax; score++ {
		value := strconv.Itoa(score)
		choices = append(choices, Choice{Value: value, Label: value})
	}
	return choices
}

func optionChoices(question Question, prefillable bool, technician string) []Choice {
	choices := make([]Choice, 0, len(question.Options))
	matched := false
	for _, option := range question.Options {
		selected := prefillable && !matched && technician != "" && strings.EqualFold(option.Value, technician)
		if selected {
			matched = true
		}
		choices = append(choices, Choice{Value: option.Value, Label: option.Value, Selected: selected})
	}
	return choices
}
