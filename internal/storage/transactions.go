package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"bilancio/internal/core"
)

// TransactionFilter narrows income and expense listings. Zero values mean
// "no constraint". From is inclusive and To exclusive.
type TransactionFilter struct {
	From       core.Date
	To         core.Date
	CategoryID int64
	BankID     int64
	Recurring  *bool
	Limit      int
}

const txColumns = `id, user_id, category_id, subcategory_id, bank_id, description, amount_cents,
	date, is_recurring, start_date, end_date, created_at, updated_at`

const expenseColumns = txColumns + `, payment_method, installment_group, installment_number, total_installments`

func txDest(t *core.Transaction) []any {
	return []any{
		&t.ID, &t.UserID, idCol{&t.CategoryID}, idCol{&t.SubCategoryID}, idCol{&t.BankID},
		&t.Description, &t.Amount.Cents, dateCol{&t.Date}, &t.IsRecurring,
		dateCol{&t.StartDate}, dateCol{&t.EndDate}, timeCol{&t.CreatedAt}, timeCol{&t.UpdatedAt},
	}
}

func scanIncome(row interface{ Scan(...any) error }) (core.Income, error) {
	var in core.Income
	err := row.Scan(txDest(&in.Transaction)...)
	return in, err
}

func scanExpense(row interface{ Scan(...any) error }) (core.Expense, error) {
	var e core.Expense
	dest := append(txDest(&e.Transaction), &e.PaymentMethod, &e.InstallmentGroup, &e.InstallmentNumber, &e.TotalInstallments)
	err := row.Scan(dest...)
	return e, err
}

func table(kind core.EntryKind) string {
	if kind == core.KindIncome {
		return "incomes"
	}
	return "expenses"
}

func (s *Store) CreateIncome(ctx context.Context, in core.Income) (core.Income, error) {
	now := s.now().UTC()
	in.CreatedAt, in.UpdatedAt = now, now
	t := in.Transaction
	err := s.queryRow(ctx, s.db,
		`INSERT INTO incomes (user_id, category_id, subcategory_id, bank_id, description, amount_cents,
			date, is_recurring, start_date, end_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		t.UserID, nullID(t.CategoryID), nullID(t.SubCategoryID), nullID(t.BankID), t.Description, t.Amount.Cents,
		dateArg(t.Date), t.IsRecurring, dateArg(t.StartDate), dateArg(t.EndDate), timeArg(now), timeArg(now),
	).Scan(&in.ID)
	if err != nil {
		return core.Income{}, fmt.Errorf("create income: %w", classify(err))
	}
	return in, nil
}

// CreateExpenses inserts all rows in one transaction, so an installment
// plan is stored entirely or not at all.
func (s *Store) CreateExpenses(ctx context.Context, rows []core.Expense) ([]core.Expense, error) {
	now := s.now().UTC()
	out := make([]core.Expense, len(rows))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for i, e := range rows {
			e.CreatedAt, e.UpdatedAt = now, now
			t := e.Transaction
			err := s.queryRow(ctx, tx,
				`INSERT INTO expenses (user_id, category_id, subcategory_id, bank_id, description, amount_cents,
					date, is_recurring, start_date, end_date, payment_method, installment_group,
					installment_number, total_installments, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
				t.UserID, nullID(t.CategoryID), nullID(t.SubCategoryID), nullID(t.BankID), t.Description, t.Amount.Cents,
				dateArg(t.Date), t.IsRecurring, dateArg(t.StartDate), dateArg(t.EndDate), e.PaymentMethod,
				e.InstallmentGroup, e.InstallmentNumber, e.TotalInstallments, timeArg(now), timeArg(now),
			).Scan(&e.ID)
			if err != nil {
				return fmt.Errorf("create expense: %w", classify(err))
			}
			out[i] = e
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetIncome(ctx context.Context, userID, id int64) (core.Income, error) {
	in, err := scanIncome(s.queryRow(ctx, s.db,
		`SELECT `+txColumns+` FROM incomes WHERE id = ? AND user_id = ?`, id, userID))
	if err != nil {
		return core.Income{}, fmt.Errorf("get income %d: %w", id, classify(err))
	}
	return in, nil
}

func (s *Store) GetExpense(ctx context.Context, userID, id int64) (core.Expense, error) {
	e, err := scanExpense(s.queryRow(ctx, s.db,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND user_id = ?`, id, userID))
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, classify(err))
	}
	return e, nil
}

// updateTx replaces the editable columns shared by incomes and expenses.
func (s *Store) updateTx(ctx context.Context, kind core.EntryKind, t core.Transaction, extra string, extraArgs ...any) error {
	args := []any{
		nullID(t.CategoryID), nullID(t.SubCategoryID), nullID(t.BankID), t.Description, t.Amount.Cents,
		dateArg(t.Date), t.IsRecurring, dateArg(t.StartDate), dateArg(t.EndDate), timeArg(s.now()),
	}
	args = append(args, extraArgs...)
	args = append(args, t.ID, t.UserID)

	res, err := s.exec(ctx, s.db,
		`UPDATE `+table(kind)+` SET category_id = ?, subcategory_id = ?, bank_id = ?, description = ?,
			amount_cents = ?, date = ?, is_recurring = ?, start_date = ?, end_date = ?, updated_at = ?`+extra+`
		 WHERE id = ? AND user_id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update %s %d: %w", kind, t.ID, classify(err))
	}
	if err := checkAffected(res); err != nil {
		return fmt.Errorf("update %s %d: %w", kind, t.ID, err)
	}
	return nil
}

func (s *Store) UpdateIncome(ctx context.Context, in core.Income) (core.Income, error) {
	if err := s.updateTx(ctx, core.KindIncome, in.Transaction, ""); err != nil {
		return core.Income{}, err
	}
	return s.GetIncome(ctx, in.UserID, in.ID)
}

// UpdateExpense leaves the installment columns untouched.
func (s *Store) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := s.updateTx(ctx, core.KindExpense, e.Transaction, `, payment_method = ?`, e.PaymentMethod); err != nil {
		return core.Expense{}, err
	}
	return s.GetExpense(ctx, e.UserID, e.ID)
}

// DeleteTransaction removes one row of the given kind, recurring or not.
func (s *Store) DeleteTransaction(ctx context.Context, kind core.EntryKind, userID, id int64) error {
	res, err := s.exec(ctx, s.db, `DELETE FROM `+table(kind)+` WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", kind, id, classify(err))
	}
	if err := checkAffected(res); err != nil {
		return fmt.Errorf("delete %s %d: %w", kind, id, err)
	}
	return nil
}

// BulkDelete removes the listed non-recurring rows and returns the ids it
// actually deleted. Recurring rows and ids of other users are skipped.
func (s *Store) BulkDelete(ctx context.Context, kind core.EntryKind, userID int64, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return []int64{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+2)
	args = append(args, userID, false)
	for _, id := range ids {
		args = append(args, id)
	}
	where := ` WHERE user_id = ? AND is_recurring = ? AND id IN (` + placeholders + `)`

	var deleted []int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := s.query(ctx, tx, `SELECT id FROM `+table(kind)+where+` ORDER BY id`, args...)
		if err != nil {
			return fmt.Errorf("select %s for bulk delete: %w", kind, err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scan id: %w", err)
			}
			deleted = append(deleted, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if _, err := s.exec(ctx, tx, `DELETE FROM `+table(kind)+where, args...); err != nil {
			return fmt.Errorf("bulk delete %s: %w", kind, classify(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if deleted == nil {
		deleted = []int64{}
	}
	return deleted, nil
}

func (s *Store) filterClause(userID int64, f TransactionFilter) (string, []any) {
	var b strings.Builder
	args := []any{userID}
	b.WriteString(` WHERE user_id = ?`)
	if !f.From.IsZero() {
		b.WriteString(` AND date >= ?`)
		args = append(args, dateArg(f.From))
	}
	if !f.To.IsZero() {
		b.WriteString(` AND date < ?`)
		args = append(args, dateArg(f.To))
	}
	if f.CategoryID != 0 {
		b.WriteString(` AND category_id = ?`)
		args = append(args, f.CategoryID)
	}
	if f.BankID != 0 {
		b.WriteString(` AND bank_id = ?`)
		args = append(args, f.BankID)
	}
	if f.Recurring != nil {
		b.WriteString(` AND is_recurring = ?`)
		args = append(args, *f.Recurring)
	}
	b.WriteString(` ORDER BY date DESC, id DESC`)
	if f.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, f.Limit)
	}
	return b.String(), args
}

func (s *Store) ListIncomes(ctx context.Context, userID int64, f TransactionFilter) ([]core.Income, error) {
	clause, args := s.filterClause(userID, f)
	rows, err := s.query(ctx, s.db, `SELECT `+txColumns+` FROM incomes`+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	defer rows.Close()

	out := []core.Income{}
	for rows.Next() {
		in, err := scanIncome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *Store) ListExpenses(ctx context.Context, userID int64, f TransactionFilter) ([]core.Expense, error) {
	clause, args := s.filterClause(userID, f)
	rows, err := s.query(ctx, s.db, `SELECT `+expenseColumns+` FROM expenses`+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListRecurring loads every recurring row of one kind for the projection.
// bankID restricts the scan to one bank when non-zero.
func (s *Store) ListRecurring(ctx context.Context, kind core.EntryKind, userID, bankID int64) ([]core.RecurringEntry, error) {
	q := `SELECT id, amount_cents, date, start_date, end_date, category_id, bank_id FROM ` + table(kind) +
		` WHERE user_id = ? AND is_recurring = ?`
	args := []any{userID, true}
	if bankID != 0 {
		q += ` AND bank_id = ?`
		args = append(args, bankID)
	}
	q += ` ORDER BY id`

	rows, err := s.query(ctx, s.db, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list recurring %s: %w", kind, err)
	}
	defer rows.Close()

	out := []core.RecurringEntry{}
	for rows.Next() {
		var t core.Transaction
		if err := rows.Scan(&t.ID, &t.Amount.Cents, dateCol{&t.Date}, dateCol{&t.StartDate}, dateCol{&t.EndDate},
			idCol{&t.CategoryID}, idCol{&t.BankID}); err != nil {
			return nil, fmt.Errorf("scan recurring %s: %w", kind, err)
		}
		out = append(out, core.RecurringEntryOf(kind, t))
	}
	return out, rows.Err()
}
