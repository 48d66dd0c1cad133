// Package services holds the application logic between the HTTP/Telegram
// edges and storage: validation that needs the database, installment
// plans, cache invalidation and event publishing.
package services

import (
	"context"
	"errors"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/log"
)

// Publisher sends events to the bus. *amqp.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, ev *amqp.Event) error
}

// Invalidator drops cached per-user aggregates after a write.
type Invalidator interface {
	Invalidate(userID int64)
}

// publish is best effort: a failure is logged and never reaches the caller.
func publish(ctx context.Context, p Publisher, typ string, payload amqp.TransactionPayload) {
	if p == nil || len(payload.IDs) == 0 {
		return
	}
	ev, err := amqp.NewEvent(typ, payload)
	if err == nil {
		err = p.Publish(ctx, ev)
	}
	if err != nil {
		log.LogError(ctx, "Failed to publish event", err, log.ComponentAMQP, log.OpPublish,
			log.NewFields().WithUser(payload.UserID))
		return
	}
	log.FromContext(ctx).DebugContext(ctx, "Event published",
		log.FieldEventType, typ, log.FieldKind, payload.Kind, "count", len(payload.IDs))
}

func invalidate(inv Invalidator, userID int64) {
	if inv != nil {
		inv.Invalidate(userID)
	}
}

// referenceError turns a missing referenced row into a validation error on
// field; other errors pass through.
func referenceError(field string, err error) error {
	if errors.Is(err, core.ErrNotFound) {
		return core.Invalid(field, core.ErrUnknownReference)
	}
	return err
}

// monthRange returns [first day of month, first day of next month).
func monthRange(year, month int) (core.Date, core.Date) {
	from := core.NewDate(year, month, 1)
	return from, from.AddMonths(1)
}

func today(now func() time.Time) core.Date {
	return core.DateOf(now().UTC())
}
