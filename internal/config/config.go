package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "SURVEY"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabaseDriver   = DatabaseDriverSQLite
	defaultDatabasePath     = "survey.db"
	defaultLogLevel         = "info"
	defaultCookieName       = "app_session"
	defaultSessionIssuer    = "help-desk"
	defaultFormTokenTTL     = 60
	defaultBackgroundColor  = "#c0d7e5"
	defaultAllowedOrigin    = "*"
	DatabaseDriverSQLite    = "sqlite"
	DatabaseDriverPostgres  = "postgres"
	formTokenIssuer         = "ticket-survey"
	formTokenTTLMinutesKey  = "form_token.ttl_minutes"
	sessionSigningSecretKey = "session.signing_secret"
)

// AppConfig captures runtime configuration for the API server and maintenance commands.
type AppConfig struct {
	HTTPAddress          string
	DatabaseDriver       string
	DatabasePath         string
	DatabaseDSN          string
	LogLevel             string
	SessionSigningSecret string
	SessionIssuer        string
	SessionCookieName    string
	FormTokenIssuer      string
	FormTokenTTL         time.Duration
	AllowedOrigins       []string
	BackgroundColor      string
	TicketURLBase        string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault(formTokenTTLMinutesKey, defaultFormTokenTTL)
	configViper.SetDefault("cors.allowed_origins", []string{defaultAllowedOrigin})
	configViper.SetDefault("survey.background_color", defaultBackgroundColor)
	configViper.SetDefault("survey.ticket_url_base", "")
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		DatabaseDriver:       strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:         configViper.GetString("database.path"),
		DatabaseDSN:          configViper.GetString("database.dsn"),
		LogLevel:             configViper.GetString("log.level"),
		SessionSigningSecret: configViper.GetString(sessionSigningSecretKey),
		SessionIssuer:        configViper.GetString("session.issuer"),
		SessionCookieName:    configViper.GetString("session.cookie_name"),
		FormTokenIssuer:      formTokenIssuer,
		FormTokenTTL:         time.Duration(configViper.GetInt(formTokenTTLMinutesKey)) * time.Minute,
		AllowedOrigins:       configViper.GetStringSlice("cors.allowed_origins"),
		BackgroundColor:      configViper.GetString("survey.background_color"),
		TicketURLBase:        configViper.GetString("survey.ticket_url_base"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadStorage parses only the settings maintenance commands need to reach the database.
func LoadStorage(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:   configViper.GetString("database.path"),
		DatabaseDSN:    configViper.GetString("database.dsn"),
		LogLevel:       configViper.GetString("log.level"),
	}
	if err := cfg.validateStorage(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("%s is required", sessionSigningSecretKey)
	}
	if strings.TrimSpace(c.SessionIssuer) == "" {
		return fmt.Errorf("session.issuer is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.FormTokenTTL <= 0 {
		return fmt.Errorf("%s must be positive", formTokenTTLMinutesKey)
	}
	if base := strings.TrimSpace(c.TicketURLBase); base != "" {
		parsed, err := url.Parse(base)
		if err != nil || parsed.Host == "" {
			return fmt.Errorf("survey.ticket_url_base must be an absolute url")
		}
	}
	return nil
}

func (c AppConfig) validateStorage() error {
	switch c.DatabaseDriver {
	case DatabaseDriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case DatabaseDriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	return nil
}
