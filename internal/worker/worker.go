package worker

import (
	"context"
	"errors"
	"fmt"

	"bilancio/internal/amqp"
	"bilancio/internal/log"
	"bilancio/internal/telegram"

	"golang.org/x/sync/errgroup"
)

// Consumer delivers events from the bus until ctx is cancelled.
type Consumer interface {
	Consume(ctx context.Context, handler amqp.Handler) error
}

// UpdateHandler answers one Telegram update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u telegram.Update) error
}

// Worker routes bus events to the mirror and the bot and runs the report
// scheduler. Mirror, Bot and Reporter are optional.
type Worker struct {
	consumer Consumer
	mirror   *Mirror
	bot      UpdateHandler
	reporter *Reporter
	logger   *log.Logger
}

type Option func(*Worker)

func WithMirror(m *Mirror) Option { return func(w *Worker) { w.mirror = m } }

func WithBot(b UpdateHandler) Option { return func(w *Worker) { w.bot = b } }

func WithReporter(r *Reporter) Option { return func(w *Worker) { w.reporter = r } }

func New(consumer Consumer, logger *log.Logger, opts ...Option) *Worker {
	w := &Worker{consumer: consumer, logger: logger}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Handle processes one event. Events nobody is configured to handle are
// acknowledged and dropped.
func (w *Worker) Handle(ctx context.Context, ev *amqp.Event) error {
	logger := w.logger.With(log.FieldEventType, ev.Type, "event_id", ev.ID)
	ctx = log.NewContext(ctx, logger)

	switch ev.Type {
	case amqp.TypeTransactionCreated:
		if w.mirror == nil {
			return nil
		}
		var p amqp.TransactionPayload
		if err := ev.Decode(&p); err != nil {
			logger.ErrorContext(ctx, "Dropping malformed event", log.FieldError, err)
			return nil
		}
		return w.mirror.Sync(ctx, p)

	case amqp.TypeTelegramUpdate:
		if w.bot == nil {
			logger.WarnContext(ctx, "Telegram update dropped, bot disabled")
			return nil
		}
		var u telegram.Update
		if err := ev.Decode(&u); err != nil {
			logger.ErrorContext(ctx, "Dropping malformed event", log.FieldError, err)
			return nil
		}
		// Never redelivered: the chat may already have a reply.
		if err := w.bot.HandleUpdate(ctx, u); err != nil {
			logger.ErrorContext(ctx, "Telegram update failed", log.FieldError, err)
		}
		return nil

	case amqp.TypeTransactionDeleted:
		logger.DebugContext(ctx, "Deletion not mirrored")
		return nil

	default:
		logger.WarnContext(ctx, "Unknown event type")
		return nil
	}
}

// Run consumes events and runs the report scheduler until ctx is
// cancelled or one of them fails.
func (w *Worker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if w.consumer != nil {
		g.Go(func() error {
			err := w.consumer.Consume(gctx, w.Handle)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("consume events: %w", err)
			}
			return nil
		})
	}
	if w.reporter != nil {
		g.Go(func() error {
			return w.reporter.Run(log.NewContext(gctx, w.logger))
		})
	}
	return g.Wait()
}
