package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/log"
	gsheet "bilancio/internal/sheets/google"
	"bilancio/internal/storage"
	"bilancio/internal/telegram"
)

const telegramTimeout = 10 * time.Second

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend opens the database and the configured integrations. On
// error everything opened so far is closed again.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (_ *Result, err error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	res := &Result{}
	defer func() {
		if err != nil {
			_ = res.close()
		}
	}()

	res.Store, err = storage.Open(ctx, config.Dialect, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", config.Dialect, err)
	}
	f.logger.Info("Initialized storage", "driver", config.Dialect)

	if config.AMQPURL != "" {
		bus, busErr := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		switch {
		case busErr == nil:
			res.Bus = bus
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		case config.RequireBus:
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", busErr)
		default:
			f.logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, busErr)
		}
	}

	if config.Sheets.SpreadsheetID != "" {
		sheet, sheetErr := gsheet.New(ctx, config.Sheets)
		if sheetErr != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", sheetErr)
		}
		res.Sheet = sheet
		f.logger.Info("Initialized Google Sheets mirror", "spreadsheet_id", config.Sheets.SpreadsheetID)
	}

	if config.TelegramBotToken != "" {
		res.Sender = telegram.NewClient(config.TelegramAPIURL, config.TelegramBotToken,
			&http.Client{Timeout: telegramTimeout})
		f.logger.Info("Initialized Telegram client")
	}

	res.Cleanup = res.close
	return res, nil
}

func (r *Result) close() error {
	var errs []error
	if r.Bus != nil {
		if err := r.Bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close AMQP client: %w", err))
		}
	}
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
