package survey

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SubmitResult reports what a submission actually stored.
type SubmitResult struct {
	SubmissionID        uint
	SubmittedAtSeconds  int64
	AnsweredQuestionIDs []uint
	// MissingRequired lists required questions that arrived without an answer.
	// The submission is still recorded.
	MissingRequired []uint
}

// SubmissionRecord pairs a submission with its answers keyed by question id.
type SubmissionRecord struct {
	Submission Submission
	Answers    map[uint]Answer
}

// Submit records a submission and one answer per answered question, walking the
// catalog in display order. A submitted key is stored even when it sanitizes to an empty
// value; only keys that were not sent count as missing. Missing required answers
// are logged and reported in the result rather than rejecting the submission.
func (s *Service) Submit(ctx context.Context, userID string, answersByQuestionID map[uint]string) (SubmitResult, error) {
	if s.db == nil {
		return SubmitResult{}, s.fail(opSubmit, reasonMissingDB, ErrPersistence, errMissingDatabase)
	}
	respondent := strings.TrimSpace(userID)
	if respondent == "" {
		return SubmitResult{}, s.fail(opSubmit, reasonMissingUserID, ErrValidation, errMissingUserID)
	}

	var result SubmitResult
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var questions []Question
		if err := tx.Order("sort_order ASC, id ASC").Find(&questions).Error; err != nil {
			return s.fail(opSubmit, reasonQueryFailed, ErrPersistence, err)
		}

		submission := Submission{
			UserID:             respondent,
			SubmittedAtSeconds: s.clock().UTC().Unix(),
		}
		if err := tx.Create(&submission).Error; err != nil {
			return s.fail(opSubmit, "submission_insert_failed", ErrPersistence, err, zap.String("user_id", respondent))
		}

		result = SubmitResult{
			SubmissionID:        submission.ID,
			SubmittedAtSeconds:  submission.SubmittedAtSeconds,
			AnsweredQuestionIDs: make([]uint, 0, len(questions)),
		}

		known := make(map[uint]struct{}, len(questions))
		answers := make([]Answer, 0, len(questions))
		for _, question := range questions {
			known[question.ID] = struct{}{}
			raw, present := answersByQuestionID[question.ID]
			if !present {
				if question.Required {
					s.loggerOrDefault().Warn("required question not answered",
						zap.Uint("submission_id", submission.ID),
						zap.Uint("question_id", question.ID))
					result.MissingRequired = append(result.MissingRequired, question.ID)
				}
				continue
			}
			answers = append(answers, Answer{
				SubmissionID: submission.ID,
				QuestionID:   question.ID,
				Value:        SanitizeAnswer(question.Type, raw),
				Snapshot: datatypes.NewJSONType(QuestionSnapshot{
					Text:     question.Text,
					Type:     question.Type,
					Required: question.Required,
				}),
			})
			result.AnsweredQuestionIDs = append(result.AnsweredQuestionIDs, question.ID)
		}

		for questionID := range answersByQuestionID {
			if _, ok := known[questionID]; !ok {
				s.loggerOrDefault().Debug("answer for unknown question ignored",
					zap.Uint("submission_id", submission.ID),
					zap.Uint("question_id", questionID))
			}
		}

		if len(answers) > 0 {
			if err := tx.Create(&answers).Error; err != nil {
				return s.fail(opSubmit, "answer_insert_failed", ErrPersistence, err,
					zap.Uint("submission_id", submission.ID))
			}
		}
		return nil
	})
	if txErr != nil {
		return SubmitResult{}, txErr
	}
	return result, nil
}

// ListSubmissions returns every submission newest first with its answers.
func (s *Service) ListSubmissions(ctx context.Context) ([]SubmissionRecord, error) {
	if s.db == nil {
		return nil, s.fail(opListSubmissions, reasonMissingDB, ErrPersistence, errMissingDatabase)
	}
	records, err := loadSubmissionRecords(s.db.WithContext(ctx))
	if err != nil {
		return nil, s.fail(opListSubmissions, reasonQueryFailed, ErrPersistence, err)
	}
	return records, nil
}

// DeleteSubmissions removes the given submissions and their answers, answers first.
// It returns the number of submissions deleted.
func (s *Service) DeleteSubmissions(ctx context.Context, ids []uint) (int64, error) {
	if s.db == nil {
		return 0, s.fail(opDeleteSubmissions, reasonMissingDB, ErrPersistence, errMissingDatabase)
	}
	if len(ids) == 0 {
		return 0, s.fail(opDeleteSubmissions, reasonMissingIDs, ErrValidation, errMissingIDs)
	}

	var deleted int64
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("submission_id IN ?", ids).Delete(&Answer{}).Error; err != nil {
			return s.fail(opDeleteSubmissions, reasonAnswersFailed, ErrPersistence, err)
		}
		result := tx.Where("id IN ?", ids).Delete(&Submission{})
		if result.Error != nil {
			return s.fail(opDeleteSubmissions, "submission_delete_failed", ErrPersistence, result.Error)
		}
		deleted = result.RowsAffected
		return nil
	})
	if txErr != nil {
		return 0, txErr
	}
	s.loggerOrDefault().Info("submissions deleted",
		zap.Int("requested", len(ids)),
		zap.Int64("deleted", deleted))
	return deleted, nil
}

func loadSubmissionRecords(db *gorm.DB) ([]SubmissionRecord, error) {
	var submissions []Submission
	if err := db.Order("submitted_at_s DESC, id DESC").Find(&submissions).Error; err != nil {
		return nil, err
	}
	if len(submissions) == 0 {
		return []SubmissionRecord{}, nil
	}

	ids := make([]uint, 0, len(submissions))
	for _, submission := range submissions {
		ids = append(ids, submission.ID)
	}
	var answers []Answer
	if err := db.Where("submission_id IN ?", ids).Order("id ASC").Find(&answers).Error; err != nil {
		return nil, err
	}

	bySubmission := make(map[uint]map[uint]Answer, len(submissions))
	for _, answer := range answers {
		perQuestion, ok := bySubmission[answer.SubmissionID]
		if !ok {
			perQuestion = make(map[uint]Answer)
			bySubmission[answer.SubmissionID] = perQuestion
		}
		perQuestion[answer.QuestionID] = answer
	}

	records := make([]SubmissionRecord, 0, len(submissions))
	for _, submission := range submissions {
		perQuestion := bySubmission[submission.ID]
		if perQuestion == nil {
			perQuestion = map[uint]Answer{}
		}
		records = append(records, SubmissionRecord{Submission: submission, Answers: perQuestion})
	}
	return records, nil
}
