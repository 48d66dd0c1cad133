package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/cache"
	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/storage"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultRecentLimit = 10
	MaxRecentLimit     = 50

	// SummaryTTL bounds how long a cached month summary is served.
	SummaryTTL = 5 * time.Minute
)

// RecentTransaction is one row of the merged recent activity feed.
type RecentTransaction struct {
	Kind core.EntryKind `json:"kind"`
	core.Transaction
}

// BalanceTrend is the projection together with the horizon actually used.
type BalanceTrend struct {
	core.Projection
	Horizon int
	BankID  int64
}

// DashboardService computes the read-only aggregates of the dashboard.
type DashboardService struct {
	store     *storage.Store
	summaries cache.Cache[core.MonthSummary]
	maxMonths int
	now       func() time.Time
}

// NewDashboardService wires the service. summaries may be nil to disable
// caching; maxMonths bounds the projection horizon.
func NewDashboardService(store *storage.Store, summaries cache.Cache[core.MonthSummary], maxMonths int) *DashboardService {
	if maxMonths <= 0 {
		maxMonths = 120
	}
	return &DashboardService{
		store:     store,
		summaries: summaries,
		maxMonths: maxMonths,
		now:       time.Now,
	}
}

func summaryPrefix(userID int64) string {
	return "summary:" + strconv.FormatInt(userID, 10) + ":"
}

func summaryKey(userID int64, year, month int) string {
	return fmt.Sprintf("%s%04d-%02d", summaryPrefix(userID), year, month)
}

// Invalidate drops every cached summary of userID.
func (s *DashboardService) Invalidate(userID int64) {
	if s.summaries == nil {
		return
	}
	s.summaries.DeletePrefix(summaryPrefix(userID))
}

// HandleEvent drops the cached summaries of the user named by a
// transaction event. Writes made by other processes reach the cache this
// way. Other event types are ignored.
func (s *DashboardService) HandleEvent(ctx context.Context, ev *amqp.Event) error {
	if ev.Type != amqp.TypeTransactionCreated && ev.Type != amqp.TypeTransactionDeleted {
		return nil
	}
	var p amqp.TransactionPayload
	if err := ev.Decode(&p); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Ignoring malformed event", log.FieldEventType, ev.Type, log.FieldError, err)
		return nil
	}
	s.Invalidate(p.UserID)
	return nil
}

// Summary returns the totals and per-category breakdown of one month.
// Zero year or month default to the current one.
func (s *DashboardService) Summary(ctx context.Context, userID int64, year, month int) (core.MonthSummary, error) {
	now := s.now().UTC()
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = int(now.Month())
	}
	if month < 1 || month > 12 {
		return core.MonthSummary{}, core.Invalid("month", fmt.Errorf("month must be between 1 and 12"))
	}

	key := summaryKey(userID, year, month)
	if s.summaries != nil {
		if cached, ok := s.summaries.Get(key); ok {
			return cached, nil
		}
	}

	from, to := monthRange(year, month)
	filter := storage.TransactionFilter{From: from, To: to}

	var (
		incomes    []core.Income
		expenses   []core.Expense
		banks      []core.Bank
		categories []core.Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		incomes, err = s.store.ListIncomes(gctx, userID, filter)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = s.store.ListExpenses(gctx, userID, filter)
		return err
	})
	g.Go(func() error {
		var err error
		banks, err = s.store.ListBanks(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = s.store.ListCategories(gctx, userID, "")
		return err
	})
	if err := g.Wait(); err != nil {
		return core.MonthSummary{}, fmt.Errorf("load month %04d-%02d: %w", year, month, err)
	}

	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	summary := core.Summarize(year, month, incomes, expenses, banks, names)
	if s.summaries != nil {
		s.summaries.Set(key, summary)
	}
	return summary, nil
}

// TotalBalance sums the balances of every bank of the user.
func (s *DashboardService) TotalBalance(ctx context.Context, userID int64) (core.Money, error) {
	banks, err := s.store.ListBanks(ctx, userID)
	if err != nil {
		return core.Money{}, err
	}
	return core.TotalBalance(banks), nil
}

// Recent merges the latest incomes and expenses, newest first.
func (s *DashboardService) Recent(ctx context.Context, userID int64, limit int) ([]RecentTransaction, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	var (
		incomes  []core.Income
		expenses []core.Expense
	)
	filter := storage.TransactionFilter{Limit: limit}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		incomes, err = s.store.ListIncomes(gctx, userID, filter)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = s.store.ListExpenses(gctx, userID, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load recent transactions: %w", err)
	}

	out := make([]RecentTransaction, 0, len(incomes)+len(expenses))
	for _, in := range incomes {
		out = append(out, RecentTransaction{Kind: core.KindIncome, Transaction: in.Transaction})
	}
	for _, e := range expenses {
		out = append(out, RecentTransaction{Kind: core.KindExpense, Transaction: e.Transaction})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.After(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// BalanceTrend projects the recurring entries of the user over months
// calendar months starting with the current one. With bankID the seed is
// that bank's balance and only entries booked on it count; otherwise the
// seed is the sum of all balances. months above the configured maximum is
// clamped.
func (s *DashboardService) BalanceTrend(ctx context.Context, userID int64, months int, bankID int64) (BalanceTrend, error) {
	if months < 0 {
		return BalanceTrend{}, core.Invalid("months", fmt.Errorf("months must not be negative"))
	}
	if months > s.maxMonths {
		months = s.maxMonths
	}

	var (
		seed     core.Money
		incomes  []core.RecurringEntry
		expenses []core.RecurringEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if bankID != 0 {
			bank, err := s.store.GetBank(gctx, userID, bankID)
			if err != nil {
				return err
			}
			seed = bank.Balance
			return nil
		}
		banks, err := s.store.ListBanks(gctx, userID)
		if err != nil {
			return err
		}
		seed = core.TotalBalance(banks)
		return nil
	})
	g.Go(func() error {
		var err error
		incomes, err = s.store.ListRecurring(gctx, core.KindIncome, userID, bankID)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = s.store.ListRecurring(gctx, core.KindExpense, userID, bankID)
		return err
	})
	if err := g.Wait(); err != nil {
		return BalanceTrend{}, fmt.Errorf("load recurring entries: %w", err)
	}

	entries := append(incomes, expenses...)
	p := core.Project(today(s.now), months, seed, entries)
	log.FromContext(ctx).DebugContext(ctx, "Balance trend projected",
		log.FieldUserID, userID, log.FieldMonths, months, "entries", len(entries), "bank_id", bankID)
	return BalanceTrend{Projection: p, Horizon: months, BankID: bankID}, nil
}
