package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/telegram"

	"github.com/robfig/cron/v3"
)

// ReportSource lists the linked chats and computes their summaries.
type ReportSource interface {
	LinkedChats(ctx context.Context) ([]core.TelegramLink, error)
	MonthSummary(ctx context.Context, userID int64, year, month int) (core.MonthSummary, error)
}

// Reporter sends every linked chat the summary of the previous month on
// a cron schedule.
type Reporter struct {
	source   ReportSource
	sender   telegram.Sender
	schedule cron.Schedule
	spec     string
	now      func() time.Time
}

// NewReporter parses spec as a standard five-field cron expression.
func NewReporter(source ReportSource, sender telegram.Sender, spec string) (*Reporter, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse report schedule %q: %w", spec, err)
	}
	return &Reporter{source: source, sender: sender, schedule: schedule, spec: spec, now: time.Now}, nil
}

// previousMonth returns the year and month before the one containing t.
func previousMonth(t time.Time) (int, int) {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	prev := first.AddDate(0, -1, 0)
	return prev.Year(), int(prev.Month())
}

// SendMonthly delivers last month's summary to every linked chat. A
// failing chat does not stop the others; all failures are returned.
func (r *Reporter) SendMonthly(ctx context.Context) error {
	logger := log.FromContext(ctx).WithComponent(log.ComponentReport)
	links, err := r.source.LinkedChats(ctx)
	if err != nil {
		return fmt.Errorf("list linked chats: %w", err)
	}
	year, month := previousMonth(r.now().UTC())

	var errs []error
	sent := 0
	for _, link := range links {
		summary, err := r.source.MonthSummary(ctx, link.UserID, year, month)
		if err != nil {
			errs = append(errs, fmt.Errorf("summary for user %d: %w", link.UserID, err))
			continue
		}
		if err := r.sender.SendMessage(ctx, link.ChatID, telegram.FormatSummary(summary)); err != nil {
			errs = append(errs, fmt.Errorf("send to chat %d: %w", link.ChatID, err))
			continue
		}
		sent++
	}
	logger.InfoContext(ctx, "Monthly report sent",
		"year", year, "month", month, "chats", len(links), "sent", sent, "failed", len(errs))
	return errors.Join(errs...)
}

// Run schedules SendMonthly until ctx is cancelled, then waits for a
// running report to finish.
func (r *Reporter) Run(ctx context.Context) error {
	logger := log.FromContext(ctx).WithComponent(log.ComponentReport)
	c := cron.New(cron.WithLocation(time.UTC))
	c.Schedule(r.schedule, cron.FuncJob(func() {
		if err := r.SendMonthly(ctx); err != nil {
			logger.ErrorContext(ctx, "Monthly report failed", log.FieldError, err)
		}
	}))
	c.Start()
	logger.InfoContext(ctx, "Report scheduler started", "schedule", r.spec,
		"next_run", r.schedule.Next(r.now().UTC()))

	<-ctx.Done()
	<-c.Stop().Done()
	logger.InfoContext(ctx, "Report scheduler stopped")
	return nil
}
