package backend

import (
	"errors"
	"fmt"

	"bilancio/internal/config"
	gsheet "bilancio/internal/sheets/google"
	"bilancio/internal/storage"
)

// Config describes the infrastructure to open.
type Config struct {
	Dialect storage.Dialect
	DSN     string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	// RequireBus makes a missing or unreachable broker fatal.
	RequireBus bool

	Sheets gsheet.Config

	TelegramBotToken string
	TelegramAPIURL   string
}

// FromAppConfig converts the application config to backend config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	dialect, err := storage.ParseDialect(appConfig.DBDriver)
	if err != nil {
		return Config{}, err
	}
	dsn := appConfig.SQLiteDBPath
	if dialect == storage.DialectPostgres {
		dsn = appConfig.DatabaseURL
	}

	return Config{
		Dialect: dialect,
		DSN:     dsn,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		Sheets: gsheet.Config{
			SpreadsheetID:   appConfig.GoogleSpreadsheetID,
			SheetName:       appConfig.GoogleSheetName,
			CredentialsJSON: appConfig.GoogleServiceAccountJSON,
			CredentialsFile: appConfig.GoogleServiceAccountFile,
		},

		TelegramBotToken: appConfig.TelegramBotToken,
		TelegramAPIURL:   appConfig.TelegramAPIURL,
	}, nil
}

// Validate checks the backend configuration.
func (c Config) Validate() error {
	switch c.Dialect {
	case storage.DialectSQLite:
		if c.DSN == "" {
			return errors.New("SQLite database path is required for the sqlite driver")
		}
	case storage.DialectPostgres:
		if c.DSN == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid database dialect: %q", c.Dialect)
	}
	if c.RequireBus && c.AMQPURL == "" {
		return errors.New("AMQP_URL is required")
	}
	if c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == "") {
		return errors.New("AMQP_EXCHANGE and AMQP_QUEUE are required with AMQP_URL")
	}
	return nil
}
