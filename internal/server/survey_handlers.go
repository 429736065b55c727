package server

import (
	"net/http"
	"strconv"

	"github.com/MarcoPoloResearchLab/ticket-survey/internal/auth"
	"github.com/MarcoPoloResearchLab/ticket-survey/internal/survey"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type formResponsePayload struct {
	BackgroundColor string             `json:"background_color"`
	Fields          []formFieldPayload `json:"fields"`
	FormToken       string             `json:"form_token"`
	ExpiresIn       int64              `json:"expires_in"`
}

type formFieldPayload struct {
	Number   int             `json:"number"`
	Question questionPayload `json:"question"`
	Input    inputPayload    `json:"input"`
}

type inputPayload struct {
	Name     string          `json:"name"`
	Control  string          `json:"control"`
	Required bool            `json:"required"`
	Value    string          `json:"value,omitempty"`
	Choices  []choicePayload `json:"choices,omitempty"`
}

type choicePayload struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

func (h *httpHandler) handleRenderForm(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.GetString(userIDContextKey)

	settings, err := h.survey.LoadSettings(ctx)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	form, err := h.survey.RenderForm(ctx, settings, survey.FormPrefill{
		TicketID:       c.Query("ticket_id"),
		TechnicianName: c.Query("tech"),
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	token, expiresIn, err := h.formTokens.Issue(ctx, userID, auth.ActionSubmitSurvey)
	if err != nil {
		h.logger.Error("failed to issue form token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	response := formResponsePayload{
		BackgroundColor: form.BackgroundColor,
		Fields:          make([]formFieldPayload, 0, len(form.Fields)),
		FormToken:       token,
		ExpiresIn:       expiresIn,
	}
	for _, field := range form.Fields {
		input := inputPayload{
			Name:     field.Input.Name,
			Control:  string(field.Input.Control),
			Required: field.Input.Required,
			Value:    field.Input.Value,
		}
		for _, choice := range field.Input.Choices {
			input.Choices = append(input.Choices, choicePayload{
				Value:    choice.Value,
				Label:    choice.Label,
				Selected: choice.Selected,
			})
		}
		response.Fields = append(response.Fields, formFieldPayload{
			Number:   field.Number,
			Question: newQuestionPayload(field.Question),
			Input:    input,
		})
	}
	c.JSON(http.StatusOK, response)
}

type submitRequestPayload struct {
	FormToken string            `json:"form_token"`
	Answers   map[string]string `json:"answers"`
}

type submitResponsePayload struct {
	SubmissionID       uint   `json:"submission_id"`
	SubmittedAtSeconds int64  `json:"submitted_at_s"`
	MissingRequired    []uint `json:"missing_required"`
}

func (h *httpHandler) handleSubmit(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.GetString(userIDContextKey)

	var request submitRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidInput})
		return
	}

	answers := make(map[uint]string, len(request.Answers))
	for key, value := range request.Answers {
		questionID, ok := parseAnswerKey(key)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidInput, "field": key})
			return
		}
		answers[questionID] = value
	}

	if err := h.formTokens.Redeem(ctx, request.FormToken, userID, auth.ActionSubmitSurvey); err != nil {
		if !isFormTokenRejection(err) {
			h.logger.Error("form token redemption failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "form_token_unavailable"})
			return
		}
		h.logger.Warn("submission form token rejected", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid_form_token"})
		return
	}

	result, err := h.survey.Submit(ctx, userID, answers)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	missing := result.MissingRequired
	if missing == nil {
		missing = []uint{}
	}
	c.JSON(http.StatusCreated, submitResponsePayload{
		SubmissionID:       result.SubmissionID,
		SubmittedAtSeconds: result.SubmittedAtSeconds,
		MissingRequired:    missing,
	})
}

// parseAnswerKey accepts either a bare question id or a form input name.
func parseAnswerKey(key string) (uint, bool) {
	if questionID, ok := survey.ParseInputName(key); ok {
		return questionID, true
	}
	parsed, err := strconv.ParseUint(key, 10, 64)
	if err != nil || parsed == 0 {
		return 0, false
	}
	return uint(parsed), true
}
