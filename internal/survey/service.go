package survey

import (
	"time"

	"github.com/MarcoPoloResearchLab/ticket-survey/internal/ordering"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultBackgroundColor = "#c0d7e5"

var noOpLogger = zap.NewNop()

type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
	// DefaultSettings apply until an administrator saves settings.
	DefaultSettings Settings
}

// Service owns the question catalog, submissions and the read models built from them.
type Service struct {
	db              *gorm.DB
	clock           func() time.Time
	logger          *zap.Logger
	defaultSettings Settings
	questionOrder   *ordering.Engine
	optionOrder     *ordering.Engine
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDB, ErrPersistence, errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	defaults := cfg.DefaultSettings
	if defaults.BackgroundColor == "" {
		defaults.BackgroundColor = defaultBackgroundColor
	}
	defaults.ID = settingsRowID

	questionOrder, optionOrder := newOrderEngines()

	return &Service{
		db:              cfg.Database,
		clock:           clock,
		logger:          logger,
		defaultSettings: defaults,
		questionOrder:   questionOrder,
		optionOrder:     optionOrder,
	}, nil
}

func newOrderEngines() (*ordering.Engine, *ordering.Engine) {
	questionOrder, err := ordering.NewEngine(ordering.Config{Table: Question{}.TableName()})
	if err != nil {
		panic(err)
	}
	optionOrder, err := ordering.NewEngine(ordering.Config{Table: DropdownOption{}.TableName()})
	if err != nil {
		panic(err)
	}
	return questionOrder, optionOrder
}

func optionScope(questionID uint) ordering.Scope {
	return ordering.Scope{Column: "question_id", Value: questionID}
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("survey service error", attrs...)
}

// fail logs and builds a service error in one step.
func (s *Service) fail(operation, reason string, kind, cause error, fields ...zap.Field) error {
	s.logError(operation, reason, cause, fields...)
	return newServiceError(operation, reason, kind, cause)
}
