package database

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/ticket-survey/internal/auth"
	"github.com/MarcoPoloResearchLab/ticket-survey/internal/survey"
	"github.com/MarcoPoloResearchLab/ticket-survey/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects the backing store.
type Options struct {
	Driver string
	Path   string
	DSN    string
}

// Open connects to the configured store, migrates the schema, seeds the default
// catalog once and normalizes question order.
func Open(opts Options, logger *zap.Logger) (*gorm.DB, error) {
	db, err := Connect(opts)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, logger); err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("database initialized", zap.String("driver", opts.Driver))
	}
	return db, nil
}

// Connect opens the store without touching the schema.
func Connect(opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case DriverSQLite, "":
		if opts.Path == "" {
			return nil, fmt.Errorf("database path is required")
		}
		dialector = sqlite.Open(opts.Path)
	case DriverPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("database dsn is required")
		}
		dialector = postgres.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if db.Dialector.Name() == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate applies the schema, pending named migrations and the install-time reindex.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	models := append(survey.Models(), &users.Respondent{}, &auth.FormTokenRedemption{}, &migrationRecord{})
	if err := db.AutoMigrate(models...); err != nil {
		return err
	}

	if err := applyMigrations(db, logger); err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		rewritten, err := survey.ReindexCatalog(tx)
		if err != nil {
			return err
		}
		if rewritten > 0 && logger != nil {
			logger.Info("question order normalized", zap.Int("rows_rewritten", rewritten))
		}
		return nil
	})
}
