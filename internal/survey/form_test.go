package survey

import (
	"context"
	"testing"
)

func TestRenderFormAppliesPrefill(testContext *testing.T) {
	service := newTestService(testContext, openTestDatabase(testContext), nil)
	ticket := mustAddQuestion(testContext, service, QuestionInput{Text: "Ticket", Type: "short_text", Required: true})
	technician := mustAddQuestion(testContext, service, QuestionInput{
		Text:    "Technician",
		Type:    "dropdown",
		Options: []string{"Alice Smith", "Bob Jones"},
	})
	rating := mustAddQuestion(testContext, service, QuestionInput{Text: "Rating", Type: "rating"})
	comments := mustAddQuestion(testContext, service, QuestionInput{Text: "Comments", Type: "long_text"})

	settings := service.DefaultSettings()
	settings.TicketQuestionID = ticket.ID
	settings.TechnicianQuestionID = technician.ID

	form, err := service.RenderForm(context.Background(), settings, FormPrefill{
		TicketID:       " 4521<script> ",
		TechnicianName: "bob jones",
	})
	if err != nil {
		testContext.Fatalf("render failed: %v", err)
	}
	if form.BackgroundColor != "#c0d7e5" {
		testContext.Fatalf("unexpected background color %q", form.BackgroundColor)
	}
	if len(form.Fields) != 4 {
		testContext.Fatalf("expected four fields, got %d", len(form.Fields))
	}

	ticketField := form.Fields[0]
	if ticketField.Number != 1 || ticketField.Input.Control != ControlText || !ticketField.Input.Required {
		testContext.Fatalf("unexpected ticket field %+v", ticketField)
	}
	if ticketField.Input.Value != "4521" {
		testContext.Fatalf("expected sanitized ticket prefill, got %q", ticketField.Input.Value)
	}
	if ticketField.Input.Name != InputName(ticket.ID) {
		testContext.Fatalf("unexpected input name %q", ticketField.Input.Name)
	}

	technicianField := form.Fields[1]
	if technicianField.Input.Control != ControlSelect || technicianField.Input.Value != "Bob Jones" {
		testContext.Fatalf("expected technician preselected, got %+v", technicianField.Input)
	}
	if technicianField.Input.Choices[0].Selected || !technicianField.Input.Choices[1].Selected {
		testContext.Fatalf("unexpected choice selection %+v", technicianField.Input.Choices)
	}

	ratingField := form.Fields[2]
	if ratingField.Question.ID != rating.ID || ratingField.Input.Control != ControlRadio || len(ratingField.Input.Choices) != 5 {
		testContext.Fatalf("unexpected rating field %+v", ratingField)
	}
	if ratingField.Input.Choices[0].Value != "1" || ratingField.Input.Choices[4].Value != "5" {
		testContext.Fatalf("unexpected rating choices %+v", ratingField.Input.Choices)
	}

	commentsField := form.Fields[3]
	if commentsField.Question.ID != comments.ID || commentsField.Input.Control != ControlTextarea || commentsField.Number != 4 {
		testContext.Fatalf("unexpected comments field %+v", commentsField)
	}
}

func TestBuildFormIgnoresPrefillWithoutConfiguredQuestions(testContext *testing.T) {
	questions := []Question{
		{ID: 1, Text: "Ticket", Type: QuestionTypeShortText},
		{ID: 2, Text: "Tech", Type: QuestionTypeDropdown, Options: []DropdownOption{{Value: "A"}}},
	}
	form := BuildForm(questions, Settings{}, FormPrefill{TicketID: "12", TechnicianName: "a"})
	if form.Fields[0].Input.Value != "" {
		testContext.Fatalf("expected no ticket prefill, got %q", form.Fields[0].Input.Value)
	}
	if form.Fields[1].Input.Choices[0].Selected {
		testContext.Fatalf("expected no technician selection")
	}
}

func TestParseInputName(testContext *testing.T) {
	if id, ok := ParseInputName(InputName(17)); !ok || id != 17 {
		testContext.Fatalf("expected round trip, got %d %v", id, ok)
	}
	for _, name := range []string{"17", "q_", "q_x", "q_0", "ats_q_3"} {
		if _, ok := ParseInputName(name); ok {
			testContext.Fatalf("expected %q to be rejected", name)
		}
	}
}
