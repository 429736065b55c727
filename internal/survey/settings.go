package survey

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const settingsRowID = 1

var hexColorPattern = regexp.MustCompile(`^#(?:[0-9a-f]{3}|[0-9a-f]{6})$`)

// DefaultSettings returns the settings used before an administrator saves any.
func (s *Service) DefaultSettings() Settings {
	return s.defaultSettings
}

// LoadSettings returns the stored settings, falling back to the configured defaults.
func (s *Service) LoadSettings(ctx context.Context) (Settings, error) {
	if s.db == nil {
		return Settings{}, s.fail(opLoadSettings, reasonMissingDB, ErrPersistence, errMissingDatabase)
	}
	var stored Settings
	err := s.db.WithContext(ctx).Where("id = ?", settingsRowID).Take(&stored).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.defaultSettings, nil
	}
	if err != nil {
		return Settings{}, s.fail(opLoadSettings, reasonQueryFailed, ErrPersistence, err)
	}
	return stored, nil
}

// SaveSettings validates and stores the settings row. A non-zero ticket question id must
// reference an existing question; a non-zero technician question id must reference a dropdown.
func (s *Service) SaveSettings(ctx context.Context, settings Settings) (Settings, error) {
	if s.db == nil {
		return Settings{}, s.fail(opSaveSettings, reasonMissingDB, ErrPersistence, errMissingDatabase)
	}
	normalized, err := normalizeSettings(settings)
	if err != nil {
		return Settings{}, s.fail(opSaveSettings, reasonInvalidSetting, ErrValidation, err)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if normalized.TicketQuestionID != 0 {
			if _, err := s.referencedQuestion(tx, normalized.TicketQuestionID); err != nil {
				return err
			}
		}
		if normalized.TechnicianQuestionID != 0 {
			question, err := s.referencedQuestion(tx, normalized.TechnicianQuestionID)
			if err != nil {
				return err
			}
			if question.Type != QuestionTypeDropdown {
				return s.fail(opSaveSettings, reasonInvalidSetting, ErrValidation,
					fmt.Errorf("technician question %d must be a dropdown", question.ID))
			}
		}
		if err := tx.Save(&normalized).Error; err != nil {
			return s.fail(opSaveSettings, "settings_write_failed", ErrPersistence, err)
		}
		return nil
	})
	if txErr != nil {
		return Settings{}, txErr
	}
	s.loggerOrDefault().Info("survey settings saved",
		zap.Uint("ticket_question_id", normalized.TicketQuestionID),
		zap.Uint("technician_question_id", normalized.TechnicianQuestionID))
	return normalized, nil
}

func (s *Service) referencedQuestion(tx *gorm.DB, id uint) (Question, error) {
	var question Question
	err := tx.Where("id = ?", id).Take(&question).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Question{}, s.fail(opSaveSettings, reasonInvalidSetting, ErrValidation,
			fmt.Errorf("question %d does not exist", id))
	}
	if err != nil {
		return Question{}, s.fail(opSaveSettings, reasonQueryFailed, ErrPersistence, err)
	}
	return question, nil
}

func normalizeSettings(settings Settings) (Settings, error) {
	normalized := settings
	normalized.ID = settingsRowID

	normalized.BackgroundColor = strings.ToLower(strings.TrimSpace(settings.BackgroundColor))
	if !hexColorPattern.MatchString(normalized.BackgroundColor) {
		return Settings{}, fmt.Errorf("background color %q must be #rgb or #rrggbb", settings.BackgroundColor)
	}

	normalized.TicketURLBase = strings.TrimSpace(settings.TicketURLBase)
	if normalized.TicketURLBase != "" {
		parsed, err := url.Parse(normalized.TicketURLBase)
		if err != nil {
			return Settings{}, fmt.Errorf("ticket url base: %w", err)
		}
		if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return Settings{}, fmt.Errorf("ticket url base %q must be an absolute http(s) url", settings.TicketURLBase)
		}
	}
	return normalized, nil
}
