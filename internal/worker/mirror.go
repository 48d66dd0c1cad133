// Package worker consumes bilancio's events: it mirrors new transactions
// into Google Sheets, answers Telegram updates queued by the API and sends
// the monthly report.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/cache"
	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/sheets"
)

// Records is the read access the mirror needs to resolve references.
type Records interface {
	GetUser(ctx context.Context, id int64) (core.User, error)
	GetIncome(ctx context.Context, userID, id int64) (core.Income, error)
	GetExpense(ctx context.Context, userID, id int64) (core.Expense, error)
	GetCategory(ctx context.Context, userID, id int64) (core.Category, error)
	GetBank(ctx context.Context, userID, id int64) (core.Bank, error)
}

const (
	mirroredSize = 10000
	mirroredTTL  = 24 * time.Hour
)

// Mirror appends created transactions to a spreadsheet. It remembers the
// rows it appended so a redelivered event does not append them twice.
type Mirror struct {
	records  Records
	sheet    sheets.RowAppender
	mirrored cache.Cache[struct{}]
}

func NewMirror(records Records, sheet sheets.RowAppender) *Mirror {
	return &Mirror{
		records:  records,
		sheet:    sheet,
		mirrored: cache.NewLRUCache[struct{}](mirroredSize, mirroredTTL),
	}
}

func mirroredKey(kind core.EntryKind, id int64) string {
	return string(kind) + ":" + strconv.FormatInt(id, 10)
}

// Sync appends one row per transaction in p. Rows deleted before the
// event is processed are skipped.
func (m *Mirror) Sync(ctx context.Context, p amqp.TransactionPayload) error {
	kind := core.EntryKind(p.Kind)
	if !kind.Valid() {
		return fmt.Errorf("mirror: unknown kind %q", p.Kind)
	}
	logger := log.FromContext(ctx).WithComponent(log.ComponentSheets)

	user, err := m.records.GetUser(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			logger.WarnContext(ctx, "Skipping mirror for missing user", log.FieldUserID, p.UserID)
			return nil
		}
		return fmt.Errorf("load user %d: %w", p.UserID, err)
	}

	for _, id := range p.IDs {
		key := mirroredKey(kind, id)
		if _, done := m.mirrored.Get(key); done {
			logger.DebugContext(ctx, "Transaction already mirrored",
				log.FieldKind, kind, log.FieldTransactionID, id)
			continue
		}
		tx, err := m.load(ctx, kind, p.UserID, id)
		if errors.Is(err, core.ErrNotFound) {
			logger.InfoContext(ctx, "Transaction gone before mirroring",
				log.FieldKind, kind, log.FieldTransactionID, id)
			continue
		}
		if err != nil {
			return err
		}

		row, err := m.row(ctx, kind, tx, user.Email)
		if err != nil {
			return err
		}
		ref, err := m.sheet.AppendRow(ctx, row)
		if err != nil {
			return fmt.Errorf("append %s %d: %w", kind, id, err)
		}
		m.mirrored.Set(key, struct{}{})
		logger.InfoContext(ctx, "Transaction mirrored",
			log.NewFields().WithUser(p.UserID).WithTransaction(string(kind), id, tx.Amount.Cents).ToSlice()...)
		logger.DebugContext(ctx, "Mirror range", slog.String("ref", ref))
	}
	return nil
}

func (m *Mirror) load(ctx context.Context, kind core.EntryKind, userID, id int64) (core.Transaction, error) {
	if kind == core.KindIncome {
		in, err := m.records.GetIncome(ctx, userID, id)
		return in.Transaction, err
	}
	e, err := m.records.GetExpense(ctx, userID, id)
	return e.Transaction, err
}

// row resolves category and bank names. A reference removed in the
// meantime renders as an empty cell.
func (m *Mirror) row(ctx context.Context, kind core.EntryKind, tx core.Transaction, email string) (sheets.Row, error) {
	row := sheets.Row{
		Date:        tx.Date,
		Kind:        kind,
		Description: tx.Description,
		Amount:      tx.Amount,
		Category:    core.UncategorizedName,
		UserEmail:   email,
	}
	if tx.CategoryID != 0 {
		cat, err := m.records.GetCategory(ctx, tx.UserID, tx.CategoryID)
		switch {
		case err == nil:
			row.Category = cat.Name
		case !errors.Is(err, core.ErrNotFound):
			return sheets.Row{}, fmt.Errorf("load category %d: %w", tx.CategoryID, err)
		}
	}
	if tx.BankID != 0 {
		bank, err := m.records.GetBank(ctx, tx.UserID, tx.BankID)
		switch {
		case err == nil:
			row.Bank = bank.Name
		case !errors.Is(err, core.ErrNotFound):
			return sheets.Row{}, fmt.Errorf("load bank %d: %w", tx.BankID, err)
		}
	}
	return row, nil
}
