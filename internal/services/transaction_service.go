package services

import (
	"context"
	"fmt"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/storage"

	"github.com/google/uuid"
)

// TransactionService manages incomes and expenses of a user.
type TransactionService struct {
	store       *storage.Store
	publisher   Publisher
	invalidator Invalidator
	now         func() time.Time
}

// NewTransactionService wires the service. publisher and invalidator may
// be nil.
func NewTransactionService(store *storage.Store, publisher Publisher, invalidator Invalidator) *TransactionService {
	return &TransactionService{
		store:       store,
		publisher:   publisher,
		invalidator: invalidator,
		now:         time.Now,
	}
}

// ListQuery is the listing filter accepted by the API.
type ListQuery struct {
	Year       int
	Month      int
	CategoryID int64
	BankID     int64
	Recurring  *bool
	Limit      int
}

// filter converts the query into a storage filter. A month without a year
// refers to the current year; a year alone spans the whole year.
func (q ListQuery) filter(now time.Time) (storage.TransactionFilter, error) {
	f := storage.TransactionFilter{
		CategoryID: q.CategoryID,
		BankID:     q.BankID,
		Recurring:  q.Recurring,
		Limit:      q.Limit,
	}
	if q.Month != 0 && (q.Month < 1 || q.Month > 12) {
		return f, core.Invalid("month", fmt.Errorf("month must be between 1 and 12"))
	}
	year := q.Year
	if year == 0 && q.Month != 0 {
		year = now.Year()
	}
	switch {
	case q.Month != 0:
		f.From, f.To = monthRange(year, q.Month)
	case year != 0:
		f.From = core.NewDate(year, 1, 1)
		f.To = core.NewDate(year+1, 1, 1)
	}
	return f, nil
}

// checkReferences verifies that the category, subcategory and bank of t
// belong to the user and fit the transaction kind.
func (s *TransactionService) checkReferences(ctx context.Context, kind core.EntryKind, t core.Transaction) error {
	if t.CategoryID != 0 {
		cat, err := s.store.GetCategory(ctx, t.UserID, t.CategoryID)
		if err != nil {
			return referenceError("categoryId", err)
		}
		if cat.Type != kind {
			return core.Invalid("categoryId", core.ErrKindMismatch)
		}
	}
	if t.SubCategoryID != 0 {
		sub, err := s.store.GetSubCategory(ctx, t.UserID, t.SubCategoryID)
		if err != nil {
			return referenceError("subcategoryId", err)
		}
		if sub.CategoryID != t.CategoryID {
			return core.Invalid("subcategoryId", fmt.Errorf("subcategory %d does not belong to category %d", sub.ID, t.CategoryID))
		}
	}
	if t.BankID != 0 {
		if _, err := s.store.GetBank(ctx, t.UserID, t.BankID); err != nil {
			return referenceError("bankId", err)
		}
	}
	return nil
}

func (s *TransactionService) CreateIncome(ctx context.Context, userID int64, in core.Income) (core.Income, error) {
	in.UserID = userID
	in.Normalize()
	if err := in.Validate(); err != nil {
		return core.Income{}, err
	}
	if err := s.checkReferences(ctx, core.KindIncome, in.Transaction); err != nil {
		return core.Income{}, err
	}

	created, err := s.store.CreateIncome(ctx, in)
	if err != nil {
		return core.Income{}, fmt.Errorf("create income: %w", err)
	}
	s.afterWrite(ctx, amqp.TypeTransactionCreated, core.KindIncome, userID, created.ID)
	log.FromContext(ctx).InfoContext(ctx, "Income created",
		log.NewFields().WithUser(userID).WithTransaction(string(core.KindIncome), created.ID, created.Amount.Cents).ToSlice()...)
	return created, nil
}

// CreateExpense stores a single expense, or an installment plan when
// TotalInstallments is above one. It returns every stored row.
func (s *TransactionService) CreateExpense(ctx context.Context, userID int64, e core.Expense) ([]core.Expense, error) {
	e.UserID = userID
	e.Normalize()
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, core.KindExpense, e.Transaction); err != nil {
		return nil, err
	}

	rows := []core.Expense{e}
	if e.TotalInstallments > 1 {
		split, err := core.SplitInstallments(e, e.TotalInstallments, uuid.NewString())
		if err != nil {
			return nil, err
		}
		rows = split
	} else {
		rows[0].InstallmentGroup = ""
		rows[0].InstallmentNumber = 1
		rows[0].TotalInstallments = 1
	}

	created, err := s.store.CreateExpenses(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("create expense: %w", err)
	}
	ids := make([]int64, len(created))
	for i, row := range created {
		ids[i] = row.ID
	}
	s.afterWrite(ctx, amqp.TypeTransactionCreated, core.KindExpense, userID, ids...)
	log.FromContext(ctx).InfoContext(ctx, "Expense created",
		log.NewFields().WithUser(userID).WithTransaction(string(core.KindExpense), ids[0], e.Amount.Cents).ToSlice()...)
	return created, nil
}

func (s *TransactionService) GetIncome(ctx context.Context, userID, id int64) (core.Income, error) {
	return s.store.GetIncome(ctx, userID, id)
}

func (s *TransactionService) GetExpense(ctx context.Context, userID, id int64) (core.Expense, error) {
	return s.store.GetExpense(ctx, userID, id)
}

// UpdateIncome replaces the editable fields of income id.
func (s *TransactionService) UpdateIncome(ctx context.Context, userID, id int64, in core.Income) (core.Income, error) {
	in.ID, in.UserID = id, userID
	in.Normalize()
	if err := in.Validate(); err != nil {
		return core.Income{}, err
	}
	if err := s.checkReferences(ctx, core.KindIncome, in.Transaction); err != nil {
		return core.Income{}, err
	}
	updated, err := s.store.UpdateIncome(ctx, in)
	if err != nil {
		return core.Income{}, err
	}
	invalidate(s.invalidator, userID)
	return updated, nil
}

// UpdateExpense replaces the editable fields of expense id. Installment
// rows keep their plan and cannot become recurring.
func (s *TransactionService) UpdateExpense(ctx context.Context, userID, id int64, e core.Expense) (core.Expense, error) {
	current, err := s.store.GetExpense(ctx, userID, id)
	if err != nil {
		return core.Expense{}, err
	}
	e.ID, e.UserID = id, userID
	e.InstallmentGroup = current.InstallmentGroup
	e.InstallmentNumber = current.InstallmentNumber
	e.TotalInstallments = current.TotalInstallments
	e.Normalize()
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if err := s.checkReferences(ctx, core.KindExpense, e.Transaction); err != nil {
		return core.Expense{}, err
	}
	updated, err := s.store.UpdateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, err
	}
	invalidate(s.invalidator, userID)
	return updated, nil
}

// Delete removes one row, recurring or not.
func (s *TransactionService) Delete(ctx context.Context, kind core.EntryKind, userID, id int64) error {
	if err := s.store.DeleteTransaction(ctx, kind, userID, id); err != nil {
		return err
	}
	s.afterWrite(ctx, amqp.TypeTransactionDeleted, kind, userID, id)
	return nil
}

// BulkDelete removes the listed rows, skipping recurring ones, and
// reports how many were deleted.
func (s *TransactionService) BulkDelete(ctx context.Context, kind core.EntryKind, userID int64, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, core.Invalid("ids", fmt.Errorf("at least one id is required"))
	}
	deleted, err := s.store.BulkDelete(ctx, kind, userID, ids)
	if err != nil {
		return 0, err
	}
	if len(deleted) > 0 {
		s.afterWrite(ctx, amqp.TypeTransactionDeleted, kind, userID, deleted...)
	}
	log.FromContext(ctx).InfoContext(ctx, "Bulk delete completed",
		log.FieldUserID, userID, log.FieldKind, kind, "requested", len(ids), "deleted", len(deleted))
	return len(deleted), nil
}

func (s *TransactionService) ListIncomes(ctx context.Context, userID int64, q ListQuery) ([]core.Income, error) {
	f, err := q.filter(s.now())
	if err != nil {
		return nil, err
	}
	return s.store.ListIncomes(ctx, userID, f)
}

func (s *TransactionService) ListExpenses(ctx context.Context, userID int64, q ListQuery) ([]core.Expense, error) {
	f, err := q.filter(s.now())
	if err != nil {
		return nil, err
	}
	return s.store.ListExpenses(ctx, userID, f)
}

func (s *TransactionService) afterWrite(ctx context.Context, typ string, kind core.EntryKind, userID int64, ids ...int64) {
	invalidate(s.invalidator, userID)
	publish(ctx, s.publisher, typ, amqp.TransactionPayload{Kind: string(kind), UserID: userID, IDs: ids})
}
