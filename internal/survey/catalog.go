package survey

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/MarcoPoloResearchLab/ticket-survey/internal/ordering"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QuestionInput describes an add or edit from the admin surface.
// A nil Position appends on add and keeps the current position on update.
type QuestionInput struct {
	Text     string
	Type     string
	Required bool
	Options  []string
	Position *int
}

type validatedQuestion struct {
	text     string
	qType    QuestionType
	required bool
	options  []string
}

// ParseOptions splits a comma separated option list, trimming entries and dropping empty ones.
func ParseOptions(raw string) []string {
	return normalizeOptions(strings.Split(raw, ","))
}

func normalizeOptions(values []string) []string {
	options := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		options = append(options, trimmed)
	}
	return options
}

func (s *Service) validateQuestion(operation string, input QuestionInput) (validatedQuestion, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return validatedQuestion{}, s.fail(operation, reasonMissingText, ErrValidation, errMissingText)
	}
	qType, err := ParseQuestionType(input.Type)
	if err != nil {
		return validatedQuestion{}, s.fail(operation, reasonInvalidType, ErrInvalidType, err)
	}
	return validatedQuestion{
		text:     text,
		qType:    qType,
		required: input.Required,
		options:  normalizeOptions(input.Options),
	}, nil
}

// AddQuestion inserts a question at the requested position, shifting the questions at or after it.
func (s *Service) AddQuestion(ctx context.Context, input QuestionInput) (Question, error) {
	if s.db == nil {
		return Question{}, s.fail(opAddQuestion, reasonMissingDB, ErrPersistence, errMissingDatabase)
	}
	validated, err := s.validateQuestion(opAddQuestion, input)
	if err != nil {
		return Question{}, err
	}

	requested := math.MaxInt32
	if input.Position != nil {
		requested = *input.Position
	}

	var stored Question
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		position, err := s.questionOrder.InsertAt(tx, ordering.Scope{}, requested)
		if err != nil {
			return s.fail(opAddQuestion, "shift_failed", ErrPersistence, err)
		}

		question := Question{
			Text:      validated.text,
			Type:      validated.qType,
			Required:  validated.required,
			SortOrder: position,
		}
		if err := tx.Create(&question).Error; err != nil {
			return s.fail(opAddQuestion, "question_insert_failed", ErrPersistence, err)
		}

		if validated.qType == QuestionTypeDropdown {
			if err := insertOptions(tx, question.ID, validated.options); err != nil {
				return s.fail(opAddQuestion, reasonOptionsFailed, ErrPersistence, err,
					zap.Uint("question_id", question.ID))
			}
		}

		if err := reindexQuestions(tx, s.questionOrder); err != nil {
			return s.fail(opAddQuestion, reasonReindexFailed, ErrPersistence, err)
		}

		stored, err = loadQuestion(tx, question.ID)
		if err != nil {
			return s.fail(opAddQuestion, reasonQueryFailed, ErrPersistence, err)
		}
		return nil
	})
	if txErr != nil {
		return Question{}, txErr
	}
	return stored, nil
}

// UpdateQuestion replaces a question's definition and moves it when a position is given.
// Dropdown options are replaced wholesale; switching away from dropdown drops them.
func (s *Service) UpdateQuestion(ctx context.Context, id uint, input QuestionInput) (Question, error) {
	if s.db == nil {
		return Question{}, s.fail(opUpdateQuestion, reasonMissingDB, ErrPersistence, errMissingDatabase)
	}
	validated, err := s.validateQuestion(opUpdateQuestion, input)
	if err != nil {
		return Question{}, err
	}

	var stored Question
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Question
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.fail(opUpdateQuestion, reasonNotFound, ErrNotFound, err, zap.Uint("question_id", id))
		}
		if err != nil {
			return s.fail(opUpdateQuestion, reasonQueryFailed, ErrPersistence, err, zap.Uint("question_id", id))
		}

		if input.Position != nil {
			if _, err := s.questionOrder.MoveTo(tx, ordering.Scope{}, int64(id), *input.Position); err != nil {
				return s.fail(opUpdateQuestion, "move_failed", ErrPersistence, err, zap.Uint("question_id", id))
			}
		}

		err = tx.Model(&Question{}).Where("id = ?", id).Updates(map[string]any{
			"question_text": validated.text,
			"question_type": validated.qType,
			"is_required":   validated.required,
		}).Error
		if err != nil {
			return s.fail(opUpdateQuestion, "question_update_failed", ErrPersistence, err, zap.Uint("question_id", id))
		}

		if err := tx.Where("question_id = ?", id).Delete(&DropdownOption{}).Error; err != nil {
			return s.fail(opUpdateQuestion, reasonOptionsFailed, ErrPersistence, err, zap.Uint("question_id", id))
		}
		if validated.qType == QuestionTypeDropdown {
			if err := insertOptions(tx, id, validated.options); err != nil {
				return s.fail(opUpdateQuestion, reasonOptionsFailed, ErrPersistence, err, zap.Uint("question_id", id))
			}
		} else if existing.Type == QuestionTypeDropdown {
			if err := clearTechnicianReference(tx, id); err != nil {
				return s.fail(opUpdateQuestion, "settings_update_failed", ErrPersistence, err, zap.Uint("question_id", id))
			}
			s.loggerOrDefault().Info("dropdown options dropped on type change",
				zap.Uint("question_id", id),
				zap.String("question_type", string(validated.qType)))
		}

		if err := reindexQuestions(tx, s.questionOrder); err != nil {
			return s.fail(opUpdateQuestion, reasonReindexFailed, ErrPersistence, err)
		}

		stored, err = loadQuestion(tx, id)
		if err != nil {
			return s.fail(opUpdateQuestion, reasonQueryFailed, ErrPersistence, err, zap.Uint("question_id", id))
		}
		return nil
	})
	if txErr != nil {
		return Question{}, txErr
	}
	return stored, nil
}

// DeleteQuestion removes a question with its options and every answer given to it,
// in that order, then restores a dense order.
func (s *Service) DeleteQuestion(ctx context.Context, id uint) error {
	if s.db == nil {
		return s.fail(opDeleteQuestion, reasonMissingDB, ErrPersistence, errMissingDatabase)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Question
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.fail(opDeleteQuestion, reasonNotFound, ErrNotFound, err, zap.Uint("question_id", id))
		}
		if err != nil {
			return s.fail(opDeleteQuestion, reasonQueryFailed, ErrPersistence, err, zap.Uint("question_id", id))
		}

		if err := tx.Where("question_id = ?", id).Delete(&DropdownOption{}).Error; err != nil {
			return s.fail(opDeleteQuestion, reasonOptionsFailed, ErrPersistence, err, zap.Uint("question_id", id))
		}
		if err := tx.Where("question_id = ?", id).Delete(&Answer{}).Error; err != nil {
			return s.fail(opDeleteQuestion, reasonAnswersFailed, ErrPersistence, err, zap.Uint("question_id", id))
		}
		if err := s.questionOrder.Remove(tx, ordering.Scope{}, int64(id)); err != nil {
			return s.fail(opDeleteQuestion, "question_delete_failed", ErrPersistence, err, zap.Uint("question_id", id))
		}
		if err := clearSettingsReferences(tx, id); err != nil {
			return s.fail(opDeleteQuestion, "settings_update_failed", ErrPersistence, err, zap.Uint("question_id", id))
		}
		if err := reindexQuestions(tx, s.questionOrder); err != nil {
			return s.fail(opDeleteQuestion, reasonReindexFailed, ErrPersistence, err)
		}
		return nil
	})
}

// ListQuestions returns the catalog in display order with dropdown options attached.
func (s *Service) ListQuestions(ctx context.Context) ([]Question, error) {
	if s.db == nil {
		return nil, s.fail(opListQuestions, reasonMissingDB, ErrPersistence, errMissingDatabase)
	}
	questions, err := loadQuestions(s.db.WithContext(ctx))
	if err != nil {
		return nil, s.fail(opListQuestions, reasonQueryFailed, ErrPersistence, err)
	}
	return questions, nil
}

// GetQuestion returns one question with its options.
func (s *Service) GetQuestion(ctx context.Context, id uint) (Question, error) {
	if s.db == nil {
		return Question{}, s.fail(opGetQuestion, reasonMissingDB, ErrPersistence, errMissingDatabase)
	}
	question, err := loadQuestion(s.db.WithContext(ctx), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Question{}, newServiceError(opGetQuestion, reasonNotFound, ErrNotFound, err)
	}
	if err != nil {
		return Question{}, s.fail(opGetQuestion, reasonQueryFailed, ErrPersistence, err, zap.Uint("question_id", id))
	}
	return question, nil
}

// ReindexQuestions is the maintenance entry point that restores dense ordering for
// questions and for the options of every dropdown question.
func (s *Service) ReindexQuestions(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, s.fail(opReindexQuestions, reasonMissingDB, ErrPersistence, errMissingDatabase)
	}
	var rewritten int
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		count, err := reindexCatalog(tx, s.questionOrder, s.optionOrder)
		if err != nil {
			return s.fail(opReindexQuestions, reasonReindexFailed, ErrPersistence, err)
		}
		rewritten = count
		return nil
	})
	if txErr != nil {
		return 0, txErr
	}
	s.loggerOrDefault().Info("question order reindexed", zap.Int("rows_rewritten", rewritten))
	return rewritten, nil
}

// ReindexCatalog restores dense ordering on the given handle. Install and upgrade
// paths call it after seeding.
func ReindexCatalog(tx *gorm.DB) (int, error) {
	questionOrder, optionOrder := newOrderEngines()
	return reindexCatalog(tx, questionOrder, optionOrder)
}

func reindexCatalog(tx *gorm.DB, questionOrder, optionOrder *ordering.Engine) (int, error) {
	rewritten, err := questionOrder.Reindex(tx, ordering.Scope{})
	if err != nil {
		return rewritten, err
	}
	var dropdownIDs []uint
	err = tx.Model(&Question{}).
		Where("question_type = ?", QuestionTypeDropdown).
		Order("id ASC").
		Pluck("id", &dropdownIDs).Error
	if err != nil {
		return rewritten, err
	}
	for _, questionID := range dropdownIDs {
		count, err := optionOrder.Reindex(tx, optionScope(questionID))
		rewritten += count
		if err != nil {
			return rewritten, err
		}
	}
	return rewritten, nil
}

func reindexQuestions(tx *gorm.DB, questionOrder *ordering.Engine) error {
	_, err := questionOrder.Reindex(tx, ordering.Scope{})
	return err
}

func insertOptions(tx *gorm.DB, questionID uint, values []string) error {
	if len(values) == 0 {
		return nil
	}
	options := make([]DropdownOption, 0, len(values))
	for position, value := range values {
		options = append(options, DropdownOption{
			QuestionID: questionID,
			Value:      value,
			SortOrder:  position,
		})
	}
	return tx.Create(&options).Error
}

func clearSettingsReferences(tx *gorm.DB, questionID uint) error {
	if err := tx.Model(&Settings{}).
		Where("ticket_question_id = ?", questionID).
		Update("ticket_question_id", 0).Error; err != nil {
		return err
	}
	return clearTechnicianReference(tx, questionID)
}

// clearTechnicianReference unsets the technician question; it must always be a dropdown.
func clearTechnicianReference(tx *gorm.DB, questionID uint) error {
	return tx.Model(&Settings{}).
		Where("technician_question_id = ?", questionID).
		Update("technician_question_id", 0).Error
}

func loadQuestion(db *gorm.DB, id uint) (Question, error) {
	var question Question
	if err := db.Where("id = ?", id).Take(&question).Error; err != nil {
		return Question{}, err
	}
	if question.Type == QuestionTypeDropdown {
		if err := db.Where("question_id = ?", id).
			Order("sort_order ASC, id ASC").
			Find(&question.Options).Error; err != nil {
			return Question{}, err
		}
	}
	return question, nil
}

func loadQuestions(db *gorm.DB) ([]Question, error) {
	var questions []Question
	if err := db.Order("sort_order ASC, id ASC").Find(&questions).Error; err != nil {
		return nil, err
	}

	dropdownIDs := make([]uint, 0)
	for _, question := range questions {
		if question.Type == QuestionTypeDropdown {
			dropdownIDs = append(dropdownIDs, question.ID)
		}
	}
	if len(dropdownIDs) == 0 {
		return questions, nil
	}

	var options []DropdownOption
	if err := db.Where("question_id IN ?", dropdownIDs).
		Order("question_id ASC, sort_order ASC, id ASC").
		Find(&options).Error; err != nil {
		return nil, err
	}
	byQuestion := make(map[uint][]DropdownOption, len(dropdownIDs))
	for _, option := range options {
		byQuestion[option.QuestionID] = append(byQuestion[option.QuestionID], option)
	}
	for index := range questions {
		questions[index].Options = byQuestion[questions[index].ID]
	}
	return questions, nil
}
