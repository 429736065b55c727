package survey

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidType reports a question type outside the supported set.
	ErrInvalidType = errors.New("survey: invalid question type")
	// ErrNotFound reports an operation on a question or submission that does not exist.
	ErrNotFound = errors.New("survey: not found")
	// ErrPersistence reports a failed read or write against the store.
	ErrPersistence = errors.New("survey: persistence failure")
	// ErrValidation reports missing or malformed input.
	ErrValidation = errors.New("survey: validation failed")
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingText     = errors.New("question text is required")
	errMissingUserID   = errors.New("user identifier is required")
	errMissingIDs      = errors.New("at least one identifier is required")
)

// ServiceError carries a dotted "<operation>.<reason>" code alongside its error kind.
type ServiceError struct {
	code string
	kind error
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Is matches the error kind, so errors.Is(err, ErrNotFound) works on any service error.
func (e *ServiceError) Is(target error) bool {
	return e.kind != nil && target == e.kind
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew         = "survey.service.new"
	opAddQuestion        = "survey.add_question"
	opUpdateQuestion     = "survey.update_question"
	opDeleteQuestion     = "survey.delete_question"
	opListQuestions      = "survey.list_questions"
	opGetQuestion        = "survey.get_question"
	opReindexQuestions   = "survey.reindex_questions"
	opSubmit             = "survey.submit"
	opListSubmissions    = "survey.list_submissions"
	opDeleteSubmissions  = "survey.delete_submissions"
	opProjectResults     = "survey.project_results"
	opRenderForm         = "survey.render_form"
	opLoadSettings       = "survey.load_settings"
	opSaveSettings       = "survey.save_settings"
	reasonMissingDB      = "missing_database"
	reasonQueryFailed    = "query_failed"
	reasonNotFound       = "not_found"
	reasonInvalidType    = "invalid_type"
	reasonMissingText    = "missing_text"
	reasonReindexFailed  = "reindex_failed"
	reasonOptionsFailed  = "options_write_failed"
	reasonAnswersFailed  = "answers_delete_failed"
	reasonMissingUserID  = "missing_user_id"
	reasonMissingIDs     = "missing_ids"
	reasonInvalidSetting = "invalid_setting"
)

func newServiceError(operation, reason string, kind, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, kind: kind, err: cause}
}
