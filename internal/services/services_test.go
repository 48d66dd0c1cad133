package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/auth"
	"bilancio/internal/cache"
	"bilancio/internal/core"
	"bilancio/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []*amqp.Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, ev *amqp.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) payloads(t *testing.T) []amqp.TransactionPayload {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.TransactionPayload, len(p.events))
	for i, ev := range p.events {
		if err := ev.Decode(&out[i]); err != nil {
			t.Fatalf("decode event: %v", err)
		}
	}
	return out
}

type fixture struct {
	store        *storage.Store
	publisher    *fakePublisher
	summaries    *cache.LRUCache[core.MonthSummary]
	dashboard    *DashboardService
	transactions *TransactionService
	catalog      *CatalogService
	goals        *GoalService
	telegram     *TelegramService
	accounts     *AccountService
}

var fixedNow = time.Date(2023, 4, 17, 10, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.Open(context.Background(), storage.DialectSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		store:     store,
		publisher: &fakePublisher{},
		summaries: cache.NewLRUCache[core.MonthSummary](100, SummaryTTL),
	}
	f.dashboard = NewDashboardService(store, f.summaries, 24)
	f.dashboard.now = func() time.Time { return fixedNow }
	f.transactions = NewTransactionService(store, f.publisher, f.dashboard)
	f.transactions.now = func() time.Time { return fixedNow }
	f.catalog = NewCatalogService(store, f.dashboard)
	f.goals = NewGoalService(store)
	f.telegram = NewTelegramService(store, f.transactions, f.dashboard)
	f.telegram.now = func() time.Time { return fixedNow }
	f.accounts = NewAccountService(store, auth.NewTokens("0123456789abcdef", time.Hour), bcrypt.MinCost)
	return f
}

func (f *fixture) user(t *testing.T, email string) int64 {
	t.Helper()
	s, err := f.accounts.Register(context.Background(), "Test", email, "password123")
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return s.User.ID
}

func (f *fixture) bank(t *testing.T, userID int64, name string, cents int64) core.Bank {
	t.Helper()
	b, err := f.catalog.CreateBank(context.Background(), userID, core.Bank{Name: name, Balance: core.Money{Cents: cents}})
	if err != nil {
		t.Fatalf("create bank: %v", err)
	}
	return b
}

func (f *fixture) category(t *testing.T, userID int64, name string, kind core.EntryKind) core.Category {
	t.Helper()
	c, err := f.catalog.CreateCategory(context.Background(), userID, core.Category{Name: name, Type: kind})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	return c
}

func expenseOn(d core.Date, cents int64, desc string) core.Expense {
	return core.Expense{Transaction: core.Transaction{Description: desc, Amount: core.Money{Cents: cents}, Date: d}}
}

func incomeOn(d core.Date, cents int64, desc string) core.Income {
	return core.Income{Transaction: core.Transaction{Description: desc, Amount: core.Money{Cents: cents}, Date: d}}
}

func isValidation(err error) bool {
	var ve *core.ValidationError
	return errors.As(err, &ve)
}

func TestCreateExpenseInstallments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "a@example.com")

	e := expenseOn(core.NewDate(2023, 1, 31), 10000, "Laptop")
	e.TotalInstallments = 3
	rows, err := f.transactions.CreateExpense(ctx, uid, e)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	var sum int64
	wantDates := []string{"2023-01-31", "2023-02-28", "2023-03-31"}
	for i, r := range rows {
		sum += r.Amount.Cents
		if r.Date.String() != wantDates[i] {
			t.Fatalf("row %d: date %s, want %s", i, r.Date, wantDates[i])
		}
		if r.InstallmentGroup == "" || r.InstallmentGroup != rows[0].InstallmentGroup {
			t.Fatalf("row %d: group %q not shared", i, r.InstallmentGroup)
		}
		if r.InstallmentNumber != i+1 || r.TotalInstallments != 3 {
			t.Fatalf("row %d: installment %d/%d", i, r.InstallmentNumber, r.TotalInstallments)
		}
	}
	if sum != 10000 || rows[0].Amount.Cents != 3334 {
		t.Fatalf("unexpected split: sum %d, first %d", sum, rows[0].Amount.Cents)
	}

	payloads := f.publisher.payloads(t)
	if len(payloads) != 1 || len(payloads[0].IDs) != 3 || payloads[0].Kind != "expense" {
		t.Fatalf("unexpected events %+v", payloads)
	}
}

func TestCreateExpenseSingleRow(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "a@example.com")

	rows, err := f.transactions.CreateExpense(context.Background(), uid, expenseOn(core.NewDate(2023, 4, 2), 1250, "  Pizza  "))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	r := rows[0]
	if r.Description != "Pizza" || r.InstallmentNumber != 1 || r.TotalInstallments != 1 || r.InstallmentGroup != "" {
		t.Fatalf("unexpected row %+v", r)
	}
}

func TestCreateRejectsForeignOrMismatchedReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "a@example.com")
	other := f.user(t, "b@example.com")

	incomeCat := f.category(t, uid, "Stipendio", core.KindIncome)
	food := f.category(t, uid, "Cibo", core.KindExpense)
	home := f.category(t, uid, "Casa", core.KindExpense)
	sub, err := f.catalog.CreateSubCategory(ctx, uid, home.ID, "Affitto")
	if err != nil {
		t.Fatalf("create subcategory: %v", err)
	}
	foreignBank := f.bank(t, other, "Altra", 0)

	tests := []struct {
		name    string
		mutate  func(*core.Expense)
		wantErr error
	}{
		{"income category on expense", func(e *core.Expense) { e.CategoryID = incomeCat.ID }, core.ErrKindMismatch},
		{"unknown category", func(e *core.Expense) { e.CategoryID = 9999 }, core.ErrUnknownReference},
		{"foreign bank", func(e *core.Expense) { e.BankID = foreignBank.ID }, core.ErrUnknownReference},
		{"subcategory of another category", func(e *core.Expense) { e.CategoryID = food.ID; e.SubCategoryID = sub.ID }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := expenseOn(core.NewDate(2023, 4, 1), 100, "x")
			tt.mutate(&e)
			_, err := f.transactions.CreateExpense(ctx, uid, e)
			if !isValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	e := expenseOn(core.NewDate(2023, 4, 1), 100, "rent")
	e.CategoryID, e.SubCategoryID = home.ID, sub.ID
	if _, err := f.transactions.CreateExpense(ctx, uid, e); err != nil {
		t.Fatalf("matching subcategory should be accepted: %v", err)
	}
}

func TestPublishFailureDoesNotFailCreate(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")
	uid := f.user(t, "a@example.com")

	if _, err := f.transactions.CreateIncome(context.Background(), uid, incomeOn(core.NewDate(2023, 4, 1), 100, "gift")); err != nil {
		t.Fatalf("create should succeed without the bus: %v", err)
	}
}

func TestRecurringIncomeDefaultsStartDate(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "a@example.com")

	in := incomeOn(core.NewDate(2023, 3, 27), 250000, "Salary")
	in.IsRecurring = true
	created, err := f.transactions.CreateIncome(context.Background(), uid, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.StartDate.String() != "2023-03-27" {
		t.Fatalf("expected start date to default to date, got %s", created.StartDate)
	}

	in.EndDate = core.NewDate(2023, 1, 1)
	if _, err := f.transactions.CreateIncome(context.Background(), uid, in); !errors.Is(err, core.ErrDateRange) {
		t.Fatalf("expected date range error, got %v", err)
	}
}

func TestBulkDeleteSkipsRecurring(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "a@example.com")

	var ids []int64
	for i := 0; i < 3; i++ {
		rows, err := f.transactions.CreateExpense(ctx, uid, expenseOn(core.NewDate(2023, 4, 1+i), 100, "x"))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, rows[0].ID)
	}
	rec := expenseOn(core.NewDate(2023, 1, 1), 5000, "Rent")
	rec.IsRecurring = true
	rows, err := f.transactions.CreateExpense(ctx, uid, rec)
	if err != nil {
		t.Fatalf("create recurring: %v", err)
	}
	ids = append(ids, rows[0].ID)

	n, err := f.transactions.BulkDelete(ctx, core.KindExpense, uid, ids)
	if err != nil {
		t.Fatalf("bulk delete: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 deleted, got %d", n)
	}
	left, err := f.transactions.ListExpenses(ctx, uid, ListQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(left) != 1 || !left[0].IsRecurring {
		t.Fatalf("expected only the recurring row to remain, got %+v", left)
	}

	if _, err := f.transactions.BulkDelete(ctx, core.KindExpense, uid, nil); !isValidation(err) {
		t.Fatalf("expected validation error for empty ids, got %v", err)
	}
}

func TestUpdateExpenseKeepsInstallmentPlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "a@example.com")

	e := expenseOn(core.NewDate(2023, 4, 1), 900, "Phone")
	e.TotalInstallments = 3
	rows, err := f.transactions.CreateExpense(ctx, uid, e)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	edit := expenseOn(core.NewDate(2023, 4, 5), 350, "Phone case")
	edit.TotalInstallments = 1
	edit.InstallmentGroup = "other"
	updated, err := f.transactions.UpdateExpense(ctx, uid, rows[1].ID, edit)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Description != "Phone case" || updated.Amount.Cents != 350 {
		t.Fatalf("editable fields not updated: %+v", updated)
	}
	if updated.InstallmentGroup != rows[1].InstallmentGroup || updated.InstallmentNumber != 2 || updated.TotalInstallments != 3 {
		t.Fatalf("installment plan changed: %+v", updated)
	}

	edit.IsRecurring = true
	if _, err := f.transactions.UpdateExpense(ctx, uid, rows[1].ID, edit); !isValidation(err) {
		t.Fatalf("installment rows cannot become recurring, got %v", err)
	}
}

func TestListQueryFilter(t *testing.T) {
	yes := true
	tests := []struct {
		name     string
		q        ListQuery
		from, to string
		wantErr  bool
	}{
		{name: "no dates", q: ListQuery{Recurring: &yes}},
		{name: "year and month", q: ListQuery{Year: 2023, Month: 12}, from: "2023-12-01", to: "2024-01-01"},
		{name: "year only", q: ListQuery{Year: 2022}, from: "2022-01-01", to: "2023-01-01"},
		{name: "month uses current year", q: ListQuery{Month: 2}, from: "2023-02-01", to: "2023-03-01"},
		{name: "bad month", q: ListQuery{Month: 13}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := tt.q.filter(fixedNow)
			if (err != nil) != tt.wantErr {
				t.Fatalf("filter() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.from == "" {
				if !f.From.IsZero() || !f.To.IsZero() {
					t.Fatalf("expected no date bounds, got %s..%s", f.From, f.To)
				}
				return
			}
			if f.From.String() != tt.from || f.To.String() != tt.to {
				t.Fatalf("got %s..%s, want %s..%s", f.From, f.To, tt.from, tt.to)
			}
		})
	}
}

func TestSummaryIsCachedAndInvalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "a@example.com")
	f.bank(t, uid, "Conto", 100000)
	food := f.category(t, uid, "Cibo", core.KindExpense)

	e := expenseOn(core.NewDate(2023, 4, 3), 2500, "Spesa")
	e.CategoryID = food.ID
	if _, err := f.transactions.CreateExpense(ctx, uid, e); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.transactions.CreateIncome(ctx, uid, incomeOn(core.NewDate(2023, 4, 1), 10000, "Bonus")); err != nil {
		t.Fatalf("create income: %v", err)
	}
	// outside the month
	if _, err := f.transactions.CreateExpense(ctx, uid, expenseOn(core.NewDate(2023, 5, 1), 999, "Later")); err != nil {
		t.Fatalf("create: %v", err)
	}

	s, err := f.dashboard.Summary(ctx, uid, 2023, 4)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if s.TotalExpenses.Cents != 2500 || s.TotalIncomes.Cents != 10000 || s.Net.Cents != 7500 || s.BankTotal.Cents != 100000 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if len(s.ExpensesByCategory) != 1 || s.ExpensesByCategory[0].Name != "Cibo" {
		t.Fatalf("unexpected breakdown %+v", s.ExpensesByCategory)
	}
	if s.IncomesByCategory[0].Name != core.UncategorizedName {
		t.Fatalf("expected uncategorized income, got %+v", s.IncomesByCategory)
	}
	if _, ok := f.summaries.Get(summaryKey(uid, 2023, 4)); !ok {
		t.Fatalf("expected summary to be cached")
	}

	if _, err := f.transactions.CreateExpense(ctx, uid, expenseOn(core.NewDate(2023, 4, 20), 500, "Bar")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := f.summaries.Get(summaryKey(uid, 2023, 4)); ok {
		t.Fatalf("expected cache entry to be invalidated by a write")
	}
	s, err = f.dashboard.Summary(ctx, uid, 0, 0)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if s.Year != 2023 || s.Month != 4 || s.TotalExpenses.Cents != 3000 {
		t.Fatalf("unexpected refreshed summary %+v", s)
	}
}

func TestInvalidateOnlyTouchesOneUser(t *testing.T) {
	f := newFixture(t)
	f.summaries.Set(summaryKey(1, 2023, 4), core.MonthSummary{})
	f.summaries.Set(summaryKey(12, 2023, 4), core.MonthSummary{})

	f.dashboard.Invalidate(1)

	if _, ok := f.summaries.Get(summaryKey(1, 2023, 4)); ok {
		t.Fatalf("user 1 entry should be gone")
	}
	if _, ok := f.summaries.Get(summaryKey(12, 2023, 4)); !ok {
		t.Fatalf("user 12 entry should survive")
	}
}

func TestRecentMergesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "a@example.com")

	for i, d := range []int{1, 5, 9} {
		if _, err := f.transactions.CreateExpense(ctx, uid, expenseOn(core.NewDate(2023, 4, d), int64(100+i), "e")); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	for _, d := range []int{3, 7} {
		if _, err := f.transactions.CreateIncome(ctx, uid, incomeOn(core.NewDate(2023, 4, d), 100, "i")); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	recent, err := f.dashboard.Recent(ctx, uid, 4)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	want := []struct {
		day  int
		kind core.EntryKind
	}{{9, core.KindExpense}, {7, core.KindIncome}, {5, core.KindExpense}, {3, core.KindIncome}}
	if len(recent) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(recent))
	}
	for i, w := range want {
		if recent[i].Date.Day() != w.day || recent[i].Kind != w.kind {
			t.Fatalf("row %d: got %s %s, want day %d %s", i, recent[i].Kind, recent[i].Date, w.day, w.kind)
		}
	}
}

func TestBalanceTrend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "a@example.com")
	main := f.bank(t, uid, "Main", 100000)
	f.bank(t, uid, "Savings", 50000)

	salary := incomeOn(core.NewDate(2023, 4, 1), 200000, "Salary")
	salary.IsRecurring = true
	salary.BankID = main.ID
	if _, err := f.transactions.CreateIncome(ctx, uid, salary); err != nil {
		t.Fatalf("create: %v", err)
	}
	rent := expenseOn(core.NewDate(2023, 4, 1), 100000, "Rent")
	rent.IsRecurring = true
	rent.EndDate = core.NewDate(2023, 5, 31)
	if _, err := f.transactions.CreateExpense(ctx, uid, rent); err != nil {
		t.Fatalf("create: %v", err)
	}

	t.Run("all banks", func(t *testing.T) {
		bt, err := f.dashboard.BalanceTrend(ctx, uid, 3, 0)
		if err != nil {
			t.Fatalf("trend: %v", err)
		}
		if bt.Seed.Cents != 150000 || len(bt.Projection.Months) != 3 {
			t.Fatalf("unexpected trend %+v", bt)
		}
		wantExp := []int64{100000, 100000, 0}
		for i, m := range bt.Projection.Months {
			if m.Incomes.Cents != 200000 || m.Expenses.Cents != wantExp[i] {
				t.Fatalf("month %s: %+v", m.Date.MonthKey(), m)
			}
		}
		if bt.Summary.FinalBalance.Cents != 150000+600000-200000 {
			t.Fatalf("unexpected final balance %s", bt.Summary.FinalBalance)
		}
	})

	t.Run("single bank", func(t *testing.T) {
		bt, err := f.dashboard.BalanceTrend(ctx, uid, 2, main.ID)
		if err != nil {
			t.Fatalf("trend: %v", err)
		}
		if bt.Seed.Cents != 100000 || bt.Summary.TotalExpenses.Cents != 0 || bt.Summary.TotalIncomes.Cents != 400000 {
			t.Fatalf("unexpected bank trend %+v", bt.Summary)
		}
	})

	t.Run("clamped", func(t *testing.T) {
		bt, err := f.dashboard.BalanceTrend(ctx, uid, 1000, 0)
		if err != nil {
			t.Fatalf("trend: %v", err)
		}
		if bt.Horizon != 24 || len(bt.Projection.Months) != 24 {
			t.Fatalf("expected clamp to 24, got %d", bt.Horizon)
		}
	})

	t.Run("zero months", func(t *testing.T) {
		bt, err := f.dashboard.BalanceTrend(ctx, uid, 0, 0)
		if err != nil {
			t.Fatalf("trend: %v", err)
		}
		if len(bt.Projection.Months) != 0 || bt.Summary.FinalBalance.Cents != 150000 {
			t.Fatalf("unexpected empty trend %+v", bt)
		}
	})

	t.Run("negative months", func(t *testing.T) {
		if _, err := f.dashboard.BalanceTrend(ctx, uid, -1, 0); !isValidation(err) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("foreign bank", func(t *testing.T) {
		other := f.user(t, "b@example.com")
		if _, err := f.dashboard.BalanceTrend(ctx, other, 3, main.ID); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestAccountRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.accounts.Register(ctx, "Ada", " Ada@Example.com ", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if s.Token == "" || s.User.Email != "ada@example.com" {
		t.Fatalf("unexpected session %+v", s)
	}

	if _, err := f.accounts.Register(ctx, "Ada", "ada@example.com", "password123"); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := f.accounts.Register(ctx, "Bob", "bob@example.com", "short"); !errors.Is(err, core.ErrWeakPassword) {
		t.Fatalf("expected weak password, got %v", err)
	}

	if _, err := f.accounts.Login(ctx, "ADA@example.com", "password123"); err != nil {
		t.Fatalf("login: %v", err)
	}
	for _, tc := range []struct{ email, password string }{
		{"ada@example.com", "wrong-password"},
		{"nobody@example.com", "password123"},
	} {
		if _, err := f.accounts.Login(ctx, tc.email, tc.password); !errors.Is(err, core.ErrUnauthorized) {
			t.Fatalf("login %s: expected unauthorized, got %v", tc.email, err)
		}
	}
}

func TestGoalContribute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "a@example.com")

	g, err := f.goals.Create(ctx, uid, core.Goal{Name: "Vacanza", TargetAmount: core.Money{Cents: 100000}})
	if err != nil {
		t.Fatalf("create goal: %v", err)
	}
	g, err = f.goals.Contribute(ctx, uid, g.ID, core.Money{Cents: 25000})
	if err != nil {
		t.Fatalf("contribute: %v", err)
	}
	if g.CurrentAmount.Cents != 25000 || g.Progress != 25 || g.Achieved {
		t.Fatalf("unexpected goal %+v", g)
	}
	if _, err := f.goals.Contribute(ctx, uid, g.ID, core.Money{Cents: -30000}); !isValidation(err) {
		t.Fatalf("expected over-withdrawal to fail, got %v", err)
	}
	g, err = f.goals.Contribute(ctx, uid, g.ID, core.Money{Cents: 90000})
	if err != nil {
		t.Fatalf("contribute: %v", err)
	}
	if g.Progress != 100 || !g.Achieved {
		t.Fatalf("expected achieved goal, got %+v", g)
	}
}

func TestCatalogDeleteCategoryInUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "a@example.com")
	food := f.category(t, uid, "Cibo", core.KindExpense)

	e := expenseOn(core.NewDate(2023, 4, 1), 100, "x")
	e.CategoryID = food.ID
	if _, err := f.transactions.CreateExpense(ctx, uid, e); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.catalog.DeleteCategory(ctx, uid, food.ID); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := f.catalog.ListCategories(ctx, uid, "transfer"); !isValidation(err) {
		t.Fatalf("expected invalid kind, got %v", err)
	}
}

func TestTelegramLinkAndQuickExpense(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "a@example.com")
	f.category(t, uid, "Cibo", core.KindExpense)

	status, err := f.telegram.Status(ctx, uid)
	if err != nil || status.Linked {
		t.Fatalf("expected unlinked status, got %+v, %v", status, err)
	}

	code, exp, err := f.telegram.IssueCode(ctx, uid)
	if err != nil {
		t.Fatalf("issue code: %v", err)
	}
	if len(code) != 6 || !exp.Equal(fixedNow.Add(VerificationCodeTTL)) {
		t.Fatalf("unexpected code %q expiring %v", code, exp)
	}

	if _, err := f.telegram.LinkChat(ctx, "", 42); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found for empty code, got %v", err)
	}
	linked, err := f.telegram.LinkChat(ctx, code, 42)
	if err != nil || linked != uid {
		t.Fatalf("link chat: %d, %v", linked, err)
	}
	if got, err := f.telegram.UserForChat(ctx, 42); err != nil || got != uid {
		t.Fatalf("user for chat: %d, %v", got, err)
	}
	status, err = f.telegram.Status(ctx, uid)
	if err != nil || !status.Linked || status.ChatID != 42 || status.VerifiedAt == nil {
		t.Fatalf("unexpected status %+v, %v", status, err)
	}

	e, err := f.telegram.QuickExpense(ctx, uid, core.Money{Cents: 1250}, "Pizza", "cibo")
	if err != nil {
		t.Fatalf("quick expense: %v", err)
	}
	if e.CategoryID == 0 || e.Date.String() != "2023-04-17" {
		t.Fatalf("unexpected expense %+v", e)
	}
	if _, err := f.telegram.QuickExpense(ctx, uid, core.Money{Cents: 100}, "Bus", "trasporti"); !errors.Is(err, core.ErrUnknownReference) {
		t.Fatalf("expected unknown category, got %v", err)
	}

	if err := f.telegram.Unlink(ctx, uid); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if _, err := f.telegram.UserForChat(ctx, 42); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected chat to be unlinked, got %v", err)
	}
}

func codeSequence(codes ...string) func() (string, error) {
	return func() (string, error) {
		if len(codes) == 0 {
			return "", errors.New("no more codes")
		}
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
}

func TestIssueCodeRetriesOnCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, "a@example.com")
	b := f.user(t, "b@example.com")

	f.telegram.newCode = codeSequence("123456", "123456", "123456", "654321")
	codeA, _, err := f.telegram.IssueCode(ctx, a)
	if err != nil || codeA != "123456" {
		t.Fatalf("issue for a: %q, %v", codeA, err)
	}
	codeB, _, err := f.telegram.IssueCode(ctx, b)
	if err != nil || codeB != "654321" {
		t.Fatalf("issue for b must skip the live code, got %q, %v", codeB, err)
	}

	if got, err := f.telegram.LinkChat(ctx, codeA, 777); err != nil || got != a {
		t.Fatalf("code of a linked %d, %v", got, err)
	}
	if got, err := f.telegram.LinkChat(ctx, codeB, 778); err != nil || got != b {
		t.Fatalf("code of b linked %d, %v", got, err)
	}

	f.telegram.newCode = func() (string, error) { return "111111", nil }
	if _, _, err := f.telegram.IssueCode(ctx, a); err != nil {
		t.Fatalf("issue 111111: %v", err)
	}
	if _, _, err := f.telegram.IssueCode(ctx, b); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected ErrConflict after %d collisions, got %v", issueAttempts, err)
	}
}

func TestSummaryFollowsWritesFromOtherProcesses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "a@example.com")

	before, err := f.dashboard.Summary(ctx, uid, 2023, 4)
	if err != nil || before.TotalExpenses.Cents != 0 {
		t.Fatalf("summary before: %+v, %v", before, err)
	}

	// the worker records quick expenses with its own, uncached services
	bus := &fakePublisher{}
	workerDashboard := NewDashboardService(f.store, nil, 24)
	workerTransactions := NewTransactionService(f.store, bus, workerDashboard)
	workerTransactions.now = func() time.Time { return fixedNow }
	workerTelegram := NewTelegramService(f.store, workerTransactions, workerDashboard)
	workerTelegram.now = func() time.Time { return fixedNow }
	if _, err := workerTelegram.QuickExpense(ctx, uid, core.Money{Cents: 1250}, "Pizza", ""); err != nil {
		t.Fatalf("quick expense: %v", err)
	}

	update, err := amqp.NewEvent(amqp.TypeTelegramUpdate, map[string]int64{"update_id": 1})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if err := f.dashboard.HandleEvent(ctx, update); err != nil {
		t.Fatalf("handle update event: %v", err)
	}
	if _, ok := f.summaries.Get(summaryKey(uid, 2023, 4)); !ok {
		t.Fatalf("non-transaction events must not drop cached summaries")
	}

	if len(bus.events) != 1 {
		t.Fatalf("expected one published event, got %d", len(bus.events))
	}
	for _, ev := range bus.events {
		if err := f.dashboard.HandleEvent(ctx, ev); err != nil {
			t.Fatalf("handle event: %v", err)
		}
	}
	after, err := f.dashboard.Summary(ctx, uid, 2023, 4)
	if err != nil {
		t.Fatalf("summary after: %v", err)
	}
	if after.TotalExpenses.Cents != 1250 {
		t.Fatalf("summary after quick expense: expenses %s, want 12.50", after.TotalExpenses)
	}

	malformed := &amqp.Event{Type: amqp.TypeTransactionDeleted, Payload: []byte(`"oops"`)}
	if err := f.dashboard.HandleEvent(ctx, malformed); err != nil {
		t.Fatalf("malformed events are ignored, got %v", err)
	}
}
