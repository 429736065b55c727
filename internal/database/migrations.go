package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/ticket-survey/internal/survey"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationSeedDefaultQuestions = "2024-09-01_seed_default_questions"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB, *zap.Logger) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationSeedDefaultQuestions, apply: seedDefaultQuestions},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx, logger); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func seedDefaultQuestions(tx *gorm.DB, logger *zap.Logger) error {
	inserted, err := survey.SeedDefaultQuestions(tx)
	if err != nil {
		return err
	}
	if logger != nil {
		logger.Info("default questions seeded", zap.Int("inserted", inserted))
	}
	return nil
}
