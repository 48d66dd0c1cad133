package backend

import (
	"context"

	"bilancio/internal/amqp"
	"bilancio/internal/sheets"
	"bilancio/internal/storage"
	"bilancio/internal/telegram"
)

// CleanupFunc releases the resources of a Result.
type CleanupFunc func() error

// Result holds the infrastructure a process runs on. Bus, Sheet and
// Sender are nil when the matching integration is not configured.
type Result struct {
	Store   *storage.Store
	Bus     *amqp.Client
	Sheet   sheets.RowAppender
	Sender  telegram.Sender
	Cleanup CleanupFunc
}

// Factory opens the infrastructure described by a Config.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}
