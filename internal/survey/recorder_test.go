package survey

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSubmitSkipsMissingAnswersButRecordsSubmission(testContext *testing.T) {
	database := openTestDatabase(testContext)
	core, logs := observer.New(zapcore.DebugLevel)
	service := newTestService(testContext, database, zap.New(core))
	required := mustAddQuestion(testContext, service, QuestionInput{Text: "A", Type: "short_text", Required: true})
	optional := mustAddQuestion(testContext, service, QuestionInput{Text: "B", Type: "short_text"})

	result, err := service.Submit(context.Background(), "user-1", map[uint]string{required.ID: "answered"})
	if err != nil {
		testContext.Fatalf("submit failed: %v", err)
	}
	if result.SubmissionID == 0 {
		testContext.Fatalf("expected submission id")
	}
	if result.SubmittedAtSeconds != testClockTime.Unix() {
		testContext.Fatalf("unexpected submitted at %d", result.SubmittedAtSeconds)
	}
	if len(result.MissingRequired) != 0 {
		testContext.Fatalf("expected no missing required answers, got %v", result.MissingRequired)
	}

	var answers []Answer
	if err := database.Where("submission_id = ?", result.SubmissionID).Find(&answers).Error; err != nil {
		testContext.Fatalf("failed to load answers: %v", err)
	}
	if len(answers) != 1 || answers[0].QuestionID != required.ID {
		testContext.Fatalf("expected one answer for the required question, got %+v", answers)
	}
	for _, answer := range answers {
		if answer.QuestionID == optional.ID {
			testContext.Fatalf("expected no answer row for the optional question")
		}
	}
	snapshot := answers[0].Snapshot.Data()
	if snapshot.Text != "A" || !snapshot.Required || snapshot.Type != QuestionTypeShortText {
		testContext.Fatalf("unexpected question snapshot %+v", snapshot)
	}
	if warnings := logs.FilterLevelExact(zapcore.WarnLevel).Len(); warnings != 0 {
		testContext.Fatalf("expected no warnings, got %d", warnings)
	}
}

func TestSubmitReportsMissingRequiredAnswers(testContext *testing.T) {
	database := openTestDatabase(testContext)
	core, logs := observer.New(zapcore.DebugLevel)
	service := newTestService(testContext, database, zap.New(core))
	ticket := mustAddQuestion(testContext, service, QuestionInput{Text: "Ticket", Type: "short_text", Required: true})
	rating := mustAddQuestion(testContext, service, QuestionInput{Text: "Rating", Type: "rating", Required: true})

	result, err := service.Submit(context.Background(), "user-2", map[uint]string{
		rating.ID: "4",
		9999:      "stray",
	})
	if err != nil {
		testContext.Fatalf("submit failed: %v", err)
	}
	if len(result.MissingRequired) != 1 || result.MissingRequired[0] != ticket.ID {
		testContext.Fatalf("expected ticket question to be reported missing, got %v", result.MissingRequired)
	}
	if len(result.AnsweredQuestionIDs) != 1 || result.AnsweredQuestionIDs[0] != rating.ID {
		testContext.Fatalf("unexpected answered ids %v", result.AnsweredQuestionIDs)
	}

	warnings := logs.FilterMessage("required question not answered").All()
	if len(warnings) != 1 || warnings[0].Level != zapcore.WarnLevel {
		testContext.Fatalf("expected one warning for the missing answer, got %+v", warnings)
	}
	if logs.FilterMessage("answer for unknown question ignored").Len() != 1 {
		testContext.Fatalf("expected the stray answer to be logged")
	}

	var submissionCount int64
	if err := database.Model(&Submission{}).Count(&submissionCount).Error; err != nil {
		testContext.Fatalf("failed to count submissions: %v", err)
	}
	if submissionCount != 1 {
		testContext.Fatalf("expected submission to be recorded, got %d", submissionCount)
	}
}

func TestSubmitStoresSubmittedBlankAnswers(testContext *testing.T) {
	database := openTestDatabase(testContext)
	core, logs := observer.New(zapcore.DebugLevel)
	service := newTestService(testContext, database, zap.New(core))
	ticket := mustAddQuestion(testContext, service, QuestionInput{Text: "Ticket", Type: "short_text", Required: true})
	comments := mustAddQuestion(testContext, service, QuestionInput{Text: "Comments", Type: "long_text"})

	result, err := service.Submit(context.Background(), "user-4", map[uint]string{
		ticket.ID:   "   ",
		comments.ID: " <p></p> ",
	})
	if err != nil {
		testContext.Fatalf("submit failed: %v", err)
	}
	if len(result.MissingRequired) != 0 {
		testContext.Fatalf("expected submitted keys not to count as missing, got %v", result.MissingRequired)
	}
	if len(result.AnsweredQuestionIDs) != 2 {
		testContext.Fatalf("expected both questions to be recorded, got %v", result.AnsweredQuestionIDs)
	}
	if logs.FilterMessage("required question not answered").Len() != 0 {
		testContext.Fatalf("expected no missing answer warning")
	}

	var answers []Answer
	if err := database.Where("submission_id = ?", result.SubmissionID).Order("question_id ASC").Find(&answers).Error; err != nil {
		testContext.Fatalf("failed to load answers: %v", err)
	}
	if len(answers) != 2 {
		testContext.Fatalf("expected two answer rows, got %d", len(answers))
	}
	for _, answer := range answers {
		if answer.Value != "" {
			testContext.Fatalf("expected blank stored value, got %q", answer.Value)
		}
	}
}

func TestSubmitSanitizesByQuestionType(testContext *testing.T) {
	database := openTestDatabase(testContext)
	service := newTestService(testContext, database, nil)
	short := mustAddQuestion(testContext, service, QuestionInput{Text: "Ticket", Type: "short_text"})
	long := mustAddQuestion(testContext, service, QuestionInput{Text: "Comments", Type: "long_text"})

	result, err := service.Submit(context.Background(), "user-3", map[uint]string{
		short.ID: "  12345 \n ",
		long.ID:  "  First line\r\nSecond <b>line</b>\n\nThird  ",
	})
	if err != nil {
		testContext.Fatalf("submit failed: %v", err)
	}

	records, err := service.ListSubmissions(context.Background())
	if err != nil {
		testContext.Fatalf("list failed: %v", err)
	}
	if len(records) != 1 || records[0].Submission.ID != result.SubmissionID {
		testContext.Fatalf("unexpected records %+v", records)
	}
	answers := records[0].Answers
	if got := answers[short.ID].Value; got != "12345" {
		testContext.Fatalf("unexpected short answer %q", got)
	}
	if got := answers[long.ID].Value; got != "First line\nSecond line\n\nThird" {
		testContext.Fatalf("unexpected long answer %q", got)
	}
}

func TestSubmitRequiresUserID(testContext *testing.T) {
	service := newTestService(testContext, openTestDatabase(testContext), nil)
	_, err := service.Submit(context.Background(), " ", map[uint]string{})
	if !errors.Is(err, ErrValidation) {
		testContext.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSubmitReportsPersistenceErrorWhenSubmissionCannotBeCreated(testContext *testing.T) {
	database := openTestDatabase(testContext)
	service := newTestService(testContext, database, nil)
	question := mustAddQuestion(testContext, service, QuestionInput{Text: "Ticket", Type: "short_text"})

	if err := database.Migrator().DropTable(&Submission{}); err != nil {
		testContext.Fatalf("failed to drop submissions table: %v", err)
	}

	_, err := service.Submit(context.Background(), "user-4", map[uint]string{question.ID: "1"})
	if !errors.Is(err, ErrPersistence) {
		testContext.Fatalf("expected ErrPersistence, got %v", err)
	}
	if code := serviceErrorCode(testContext, err); code != "survey.submit.submission_insert_failed" {
		testContext.Fatalf("unexpected error code %q", code)
	}

	var answerCount int64
	if err := database.Model(&Answer{}).Count(&answerCount).Error; err != nil {
		testContext.Fatalf("failed to count answers: %v", err)
	}
	if answerCount != 0 {
		testContext.Fatalf("expected nothing recorded, got %d answers", answerCount)
	}
}

func TestListSubmissionsNewestFirstAndBulkDelete(testContext *testing.T) {
	database := openTestDatabase(testContext)
	clockNow := testClockTime
	service, err := NewService(ServiceConfig{
		Database: database,
		Clock: func() time.Time {
			clockNow = clockNow.Add(time.Minute)
			return clockNow
		},
	})
	if err != nil {
		testContext.Fatalf("failed to construct service: %v", err)
	}
	question := mustAddQuestion(testContext, service, QuestionInput{Text: "Ticket", Type: "short_text"})

	submissionIDs := make([]uint, 0, 3)
	for _, value := range []string{"1", "2", "3"} {
		result, err := service.Submit(context.Background(), "user-5", map[uint]string{question.ID: value})
		if err != nil {
			testContext.Fatalf("submit failed: %v", err)
		}
		submissionIDs = append(submissionIDs, result.SubmissionID)
	}

	records, err := service.ListSubmissions(context.Background())
	if err != nil {
		testContext.Fatalf("list failed: %v", err)
	}
	if len(records) != 3 || records[0].Submission.ID != submissionIDs[2] || records[2].Submission.ID != submissionIDs[0] {
		testContext.Fatalf("expected newest first, got %+v", records)
	}

	deleted, err := service.DeleteSubmissions(context.Background(), []uint{submissionIDs[0], submissionIDs[2], 999})
	if err != nil {
		testContext.Fatalf("delete failed: %v", err)
	}
	if deleted != 2 {
		testContext.Fatalf("expected two submissions deleted, got %d", deleted)
	}

	var answerCount int64
	if err := database.Model(&Answer{}).Count(&answerCount).Error; err != nil {
		testContext.Fatalf("failed to count answers: %v", err)
	}
	if answerCount != 1 {
		testContext.Fatalf("expected one remaining answer, got %d", answerCount)
	}

	if _, err := service.DeleteSubmissions(context.Background(), nil); !errors.Is(err, ErrValidation) {
		testContext.Fatalf("expected ErrValidation for empty ids, got %v", err)
	}
}
