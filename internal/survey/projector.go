package survey

import (
	"context"
	"math"
	"strconv"
	"strings"
)

const (
	labelTicket     = "Ticket #"
	labelTechnician = "Technician"
	summaryWords    = 3
)

// Column is one projected question with its short header label.
type Column struct {
	QuestionID uint
	Label      string
	Question   Question
}

// Cell is one answer slot. Answered is false when the submission has no answer for the column.
type Cell struct {
	QuestionID uint
	Value      string
	Answered   bool
	Link       string
}

// ResultRow is one submission projected onto the current columns.
type ResultRow struct {
	SubmissionID       uint
	UserID             string
	SubmittedAtSeconds int64
	Cells              []Cell
}

// Results is the tabular results view.
type Results struct {
	Columns []Column
	Rows    []ResultRow
}

// ProjectResults joins every submission, newest first, against the current catalog.
// Answers to questions that no longer exist are not shown.
func (s *Service) ProjectResults(ctx context.Context, settings Settings) (Results, error) {
	if s.db == nil {
		return Results{}, s.fail(opProjectResults, reasonMissingDB, ErrPersistence, errMissingDatabase)
	}
	db := s.db.WithContext(ctx)

	questions, err := loadQuestions(db)
	if err != nil {
		return Results{}, s.fail(opProjectResults, reasonQueryFailed, ErrPersistence, err)
	}
	records, err := loadSubmissionRecords(db)
	if err != nil {
		return Results{}, s.fail(opProjectResults, reasonQueryFailed, ErrPersistence, err)
	}
	return Project(questions, records, settings), nil
}

// Project builds the results table from already loaded questions and submissions.
func Project(questions []Question, records []SubmissionRecord, settings Settings) Results {
	columns := make([]Column, 0, len(questions))
	for _, question := range questions {
		columns = append(columns, Column{
			QuestionID: question.ID,
			Label:      Summarize(question, settings),
			Question:   question,
		})
	}

	rows := make([]ResultRow, 0, len(records))
	for _, record := range records {
		cells := make([]Cell, 0, len(columns))
		for _, column := range columns {
			cell := Cell{QuestionID: column.QuestionID}
			if answer, ok := record.Answers[column.QuestionID]; ok {
				cell.Value = answer.Value
				cell.Answered = true
				if column.QuestionID == settings.TicketQuestionID {
					if link, ok := TicketLink(settings.TicketURLBase, answer.Value); ok {
						cell.Link = link
					}
				}
			}
			cells = append(cells, cell)
		}
		rows = append(rows, ResultRow{
			SubmissionID:       record.Submission.ID,
			UserID:             record.Submission.UserID,
			SubmittedAtSeconds: record.Submission.SubmittedAtSeconds,
			Cells:              cells,
		})
	}

	return Results{Columns: columns, Rows: rows}
}

// Summarize produces a short column header for a question.
func Summarize(question Question, settings Settings) string {
	if settings.TicketQuestionID != 0 && question.ID == settings.TicketQuestionID {
		return labelTicket
	}
	if settings.TechnicianQuestionID != 0 && question.ID == settings.TechnicianQuestionID {
		return labelTechnician
	}
	if label, ok := defaultQuestionLabels[strings.TrimSpace(question.Text)]; ok {
		return label
	}
	words := strings.Fields(question.Text)
	if len(words) > summaryWords {
		words = words[:summaryWords]
	}
	return strings.Join(words, " ") + "..."
}

// TicketLink builds a deep link into the ticket system when the value is numeric.
func TicketLink(base, value string) (string, bool) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", false
	}
	ticket, ok := ticketNumber(strings.TrimSpace(value))
	if !ok {
		return "", false
	}
	return base + strconv.FormatInt(ticket, 10), true
}

// ticketNumber accepts positive integers, truncating decimals. Values outside
// [1, MaxInt64] are not ticket numbers.
func ticketNumber(value string) (int64, bool) {
	if number, err := strconv.ParseInt(value, 10, 64); err == nil {
		return number, number >= 1
	}
	number, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(number) || number < 1 || number >= math.MaxInt64 {
		return 0, false
	}
	return int64(number), true
}
