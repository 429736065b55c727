package survey

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testClockTime = time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

func openTestDatabase(testContext *testing.T) *gorm.DB {
	testContext.Helper()
	databasePath := filepath.Join(testContext.TempDir(), "survey.db")
	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	testContext.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := database.AutoMigrate(Models()...); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}
	return database
}

func newTestService(testContext *testing.T, database *gorm.DB, logger *zap.Logger) *Service {
	testContext.Helper()
	service, err := NewService(ServiceConfig{
		Database: database,
		Clock: func() time.Time {
			return testClockTime
		},
		Logger: logger,
		DefaultSettings: Settings{
			TicketURLBase: "https://helpdesk.example.com/tickets/",
		},
	})
	if err != nil {
		testContext.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func intPointer(value int) *int {
	return &value
}

func mustAddQuestion(testContext *testing.T, service *Service, input QuestionInput) Question {
	testContext.Helper()
	question, err := service.AddQuestion(context.Background(), input)
	if err != nil {
		testContext.Fatalf("failed to add question %q: %v", input.Text, err)
	}
	return question
}

func questionTexts(testContext *testing.T, service *Service) []string {
	testContext.Helper()
	questions, err := service.ListQuestions(context.Background())
	if err != nil {
		testContext.Fatalf("failed to list questions: %v", err)
	}
	texts := make([]string, 0, len(questions))
	for index, question := range questions {
		if question.SortOrder != index {
			testContext.Fatalf("expected dense order, %q has position %d at index %d", question.Text, question.SortOrder, index)
		}
		texts = append(texts, question.Text)
	}
	return texts
}

func assertStrings(testContext *testing.T, got []string, want ...string) {
	testContext.Helper()
	if len(got) != len(want) {
		testContext.Fatalf("unexpected values: got %q want %q", got, want)
	}
	for index := range want {
		if got[index] != want[index] {
			testContext.Fatalf("unexpected values: got %q want %q", got, want)
		}
	}
}

func serviceErrorCode(testContext *testing.T, err error) string {
	testContext.Helper()
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		testContext.Fatalf("expected *ServiceError, got %T (%v)", err, err)
	}
	return serviceErr.Code()
}
