package server

import (
	"net/http"
	"strconv"

	"github.com/MarcoPoloResearchLab/ticket-survey/internal/auth"
	"github.com/MarcoPoloResearchLab/ticket-survey/internal/survey"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type questionPayload struct {
	ID        uint     `json:"id"`
	Text      string   `json:"text"`
	Type      string   `json:"type"`
	Required  bool     `json:"required"`
	SortOrder int      `json:"sort_order"`
	Options   []string `json:"options"`
}

func newQuestionPayload(question survey.Question) questionPayload {
	return questionPayload{
		ID:        question.ID,
		Text:      question.Text,
		Type:      string(question.Type),
		Required:  question.Required,
		SortOrder: question.SortOrder,
		Options:   question.OptionValues(),
	}
}

// questionRequestPayload carries options as the raw comma separated list typed by the admin.
type questionRequestPayload struct {
	Text     string `json:"text"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Options  string `json:"options"`
	Position *int   `json:"position"`
}

func (p questionRequestPayload) input() survey.QuestionInput {
	return survey.QuestionInput{
		Text:     p.Text,
		Type:     p.Type,
		Required: p.Required,
		Options:  survey.ParseOptions(p.Options),
		Position: p.Position,
	}
}

func (h *httpHandler) handleIssueAdminToken(c *gin.Context) {
	token, expiresIn, err := h.formTokens.Issue(c.Request.Context(), c.GetString(userIDContextKey), auth.ActionAdminMutation)
	if err != nil {
		h.logger.Error("failed to issue admin form token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"form_token": token, "expires_in": expiresIn})
}

func (h *httpHandler) handleListQuestions(c *gin.Context) {
	questions, err := h.survey.ListQuestions(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	response := make([]questionPayload, 0, len(questions))
	for _, question := range questions {
		response = append(response, newQuestionPayload(question))
	}
	c.JSON(http.StatusOK, gin.H{"questions": response})
}

func (h *httpHandler) handleAddQuestion(c *gin.Context) {
	var request questionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidInput})
		return
	}
	question, err := h.survey.AddQuestion(c.Request.Context(), request.input())
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newQuestionPayload(question))
}

func (h *httpHandler) handleUpdateQuestion(c *gin.Context) {
	questionID, ok := parseIDParam(c)
	if !ok {
		return
	}
	var request questionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidInput})
		return
	}
	question, err := h.survey.UpdateQuestion(c.Request.Context(), questionID, request.input())
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newQuestionPayload(question))
}

func (h *httpHandler) handleDeleteQuestion(c *gin.Context) {
	questionID, ok := parseIDParam(c)
	if !ok {
		return
	}
	if err := h.survey.DeleteQuestion(c.Request.Context(), questionID); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleReindexQuestions(c *gin.Context) {
	rewritten, err := h.survey.ReindexQuestions(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows_rewritten": rewritten})
}

type submissionPayload struct {
	ID                 uint              `json:"id"`
	UserID             string            `json:"user_id"`
	SubmittedAtSeconds int64             `json:"submitted_at_s"`
	Answers            map[string]string `json:"answers"`
}

func (h *httpHandler) handleListSubmissions(c *gin.Context) {
	records, err := h.survey.ListSubmissions(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	response := make([]submissionPayload, 0, len(records))
	for _, record := range records {
		answers := make(map[string]string, len(record.Answers))
		for questionID, answer := range record.Answers {
			answers[strconv.FormatUint(uint64(questionID), 10)] = answer.Value
		}
		response = append(response, submissionPayload{
			ID:                 record.Submission.ID,
			UserID:             record.Submission.UserID,
			SubmittedAtSeconds: record.Submission.SubmittedAtSeconds,
			Answers:            answers,
		})
	}
	c.JSON(http.StatusOK, gin.H{"submissions": response})
}

type deleteSubmissionsPayload struct {
	IDs []uint `json:"ids"`
}

func (h *httpHandler) handleDeleteSubmissions(c *gin.Context) {
	var request deleteSubmissionsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidInput})
		return
	}
	deleted, err := h.survey.DeleteSubmissions(c.Request.Context(), request.IDs)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

type resultsPayload struct {
	Columns []columnPayload    `json:"columns"`
	Rows    []resultRowPayload `json:"rows"`
}

type columnPayload struct {
	QuestionID uint   `json:"question_id"`
	Label      string `json:"label"`
	Text       string `json:"text"`
}

type resultRowPayload struct {
	SubmissionID       uint          `json:"submission_id"`
	UserID             string        `json:"user_id"`
	SubmittedAtSeconds int64         `json:"submitted_at_s"`
	Cells              []cellPayload `json:"cells"`
}

type cellPayload struct {
	QuestionID uint   `json:"question_id"`
	Value      string `json:"value"`
	Answered   bool   `json:"answered"`
	Link       string `json:"link,omitempty"`
}

func (h *httpHandler) handleResults(c *gin.Context) {
	ctx := c.Request.Context()
	settings, err := h.survey.LoadSettings(ctx)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	results, err := h.survey.ProjectResults(ctx, settings)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	response := resultsPayload{
		Columns: make([]columnPayload, 0, len(results.Columns)),
		Rows:    make([]resultRowPayload, 0, len(results.Rows)),
	}
	for _, column := range results.Columns {
		response.Columns = append(response.Columns, columnPayload{
			QuestionID: column.QuestionID,
			Label:      column.Label,
			Text:       column.Question.Text,
		})
	}
	for _, row := range results.Rows {
		cells := make([]cellPayload, 0, len(row.Cells))
		for _, cell := range row.Cells {
			cells = append(cells, cellPayload{
				QuestionID: cell.QuestionID,
				Value:      cell.Value,
				Answered:   cell.Answered,
				Link:       cell.Link,
			})
		}
		response.Rows = append(response.Rows, resultRowPayload{
			SubmissionID:       row.SubmissionID,
			UserID:             row.UserID,
			SubmittedAtSeconds: row.SubmittedAtSeconds,
			Cells:              cells,
		})
	}
	c.JSON(http.StatusOK, response)
}

type settingsPayload struct {
	BackgroundColor      string `json:"background_color"`
	TicketQuestionID     uint   `json:"ticket_question_id"`
	TechnicianQuestionID uint   `json:"technician_question_id"`
	TicketURLBase        string `json:"ticket_url_base"`
}

func newSettingsPayload(settings survey.Settings) settingsPayload {
	return settingsPayload{
		BackgroundColor:      settings.BackgroundColor,
		TicketQuestionID:     settings.TicketQuestionID,
		TechnicianQuestionID: settings.TechnicianQuestionID,
		TicketURLBase:        settings.TicketURLBase,
	}
}

func (h *httpHandler) handleGetSettings(c *gin.Context) {
	settings, err := h.survey.LoadSettings(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSettingsPayload(settings))
}

func (h *httpHandler) handleSaveSettings(c *gin.Context) {
	var request settingsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidInput})
		return
	}
	saved, err := h.survey.SaveSettings(c.Request.Context(), survey.Settings{
		BackgroundColor:      request.BackgroundColor,
		TicketQuestionID:     request.TicketQuestionID,
		TechnicianQuestionID: request.TechnicianQuestionID,
		TicketURLBase:        request.TicketURLBase,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSettingsPayload(saved))
}

func parseIDParam(c *gin.Context) (uint, bool) {
	parsed, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || parsed == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidInput})
		return 0, false
	}
	return uint(parsed), true
}
