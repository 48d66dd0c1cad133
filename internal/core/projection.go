package core

// DefaultProjectionMonths is used when the caller does not ask for a
// specific horizon.
const DefaultProjectionMonths = 12

// RecurringEntry is the projection view of a recurring income or expense.
// A zero EndDate means open-ended.
type RecurringEntry struct {
	ID         int64
	Kind       EntryKind
	Amount     Money
	StartDate  Date
	EndDate    Date
	CategoryID int64
	BankID     int64
}

// ActiveIn reports whether the entry contributes to the month starting on
// monthStart: monthStart >= StartDate and (no end or monthStart <= EndDate).
func (e RecurringEntry) ActiveIn(monthStart Date) bool {
	if monthStart.Before(e.StartDate) {
		return false
	}
	if !e.EndDate.IsZero() && monthStart.After(e.EndDate) {
		return false
	}
	return true
}

// RecurringEntryOf builds the projection view of a recurring row.
func RecurringEntryOf(kind EntryKind, t Transaction) RecurringEntry {
	start := t.StartDate
	if start.IsZero() {
		start = t.Date
	}
	return RecurringEntry{
		ID:         t.ID,
		Kind:       kind,
		Amount:     t.Amount,
		StartDate:  start,
		EndDate:    t.EndDate,
		CategoryID: t.CategoryID,
		BankID:     t.BankID,
	}
}

type ProjectionMonth struct {
	Date     Date
	Incomes  Money
	Expenses Money
	Balance  Money
}

type ProjectionSummary struct {
	TotalIncomes  Money
	TotalExpenses Money
	FinalBalance  Money
}

type Projection struct {
	Seed    Money
	Months  []ProjectionMonth
	Summary ProjectionSummary
}

// Project walks forward month by month from the month containing from,
// summing the recurring entries active in each month and accumulating a
// running balance seeded with seed. months <= 0 yields an empty series
// whose final balance is the seed.
func Project(from Date, months int, seed Money, entries []RecurringEntry) Projection {
	p := Projection{
		Seed:    seed,
		Summary: ProjectionSummary{FinalBalance: seed},
	}
	if months <= 0 {
		return p
	}

	p.Months = make([]ProjectionMonth, 0, months)
	start := from.MonthStart()
	balance := seed
	for i := 0; i < months; i++ {
		d := start.AddMonths(i)
		var in, out Money
		for _, e := range entries {
			if !e.ActiveIn(d) {
				continue
			}
			switch e.Kind {
			case KindIncome:
				in = in.Add(e.Amount)
			case KindExpense:
				out = out.Add(e.Amount)
			}
		}
		balance = balance.Add(in).Sub(out)
		p.Months = append(p.Months, ProjectionMonth{Date: d, Incomes: in, Expenses: out, Balance: balance})
		p.Summary.TotalIncomes = p.Summary.TotalIncomes.Add(in)
		p.Summary.TotalExpenses = p.Summary.TotalExpenses.Add(out)
	}
	p.Summary.FinalBalance = balance
	return p
}
