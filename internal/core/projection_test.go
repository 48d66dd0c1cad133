package core

import "testing"

func income(amount int64, start, end Date) RecurringEntry {
	return RecurringEntry{Kind: KindIncome, Amount: Money{Cents: amount}, StartDate: start, EndDate: end}
}

func expense(amount int64, start, end Date) RecurringEntry {
	return RecurringEntry{Kind: KindExpense, Amount: Money{Cents: amount}, StartDate: start, EndDate: end}
}

func TestProjectOpenEndedIncome(t *testing.T) {
	p := Project(NewDate(2023, 4, 17), 3, Money{}, []RecurringEntry{
		income(200000, NewDate(2023, 4, 1), Date{}),
	})
	if len(p.Months) != 3 {
		t.Fatalf("expected 3 months, got %d", len(p.Months))
	}
	for i, m := range p.Months {
		if m.Incomes.Cents != 200000 {
			t.Fatalf("month %d: expected incomes 2000.00, got %s", i, m.Incomes)
		}
	}
	if p.Months[0].Date.String() != "2023-04-01" || p.Months[2].Date.String() != "2023-06-01" {
		t.Fatalf("unexpected month dates %s..%s", p.Months[0].Date, p.Months[2].Date)
	}
	if p.Summary.FinalBalance.Cents != 600000 {
		t.Fatalf("expected final balance 6000.00, got %s", p.Summary.FinalBalance)
	}
}

func TestProjectEndedExpense(t *testing.T) {
	p := Project(NewDate(2023, 4, 1), 3, Money{}, []RecurringEntry{
		expense(100000, NewDate(2023, 4, 1), NewDate(2023, 5, 31)),
	})
	want := []int64{100000, 100000, 0}
	for i, m := range p.Months {
		if m.Expenses.Cents != want[i] {
			t.Fatalf("month %s: expected expenses %d, got %d", m.Date.MonthKey(), want[i], m.Expenses.Cents)
		}
	}
	if p.Summary.FinalBalance.Cents != -200000 {
		t.Fatalf("expected final balance -2000.00, got %s", p.Summary.FinalBalance)
	}
}

func TestProjectZeroMonths(t *testing.T) {
	seed := Money{Cents: 123456}
	p := Project(NewDate(2023, 4, 1), 0, seed, []RecurringEntry{
		income(100, NewDate(2023, 1, 1), Date{}),
	})
	if len(p.Months) != 0 {
		t.Fatalf("expected no months, got %d", len(p.Months))
	}
	if !p.Summary.TotalIncomes.IsZero() || !p.Summary.TotalExpenses.IsZero() {
		t.Fatalf("expected zero totals, got %+v", p.Summary)
	}
	if p.Summary.FinalBalance != seed {
		t.Fatalf("expected final balance equal to seed, got %s", p.Summary.FinalBalance)
	}
}

func TestProjectNoEntriesIsFlat(t *testing.T) {
	seed := Money{Cents: 50000}
	p := Project(NewDate(2023, 4, 1), 4, seed, nil)
	for _, m := range p.Months {
		if m.Balance != seed {
			t.Fatalf("expected flat balance %s, got %s", seed, m.Balance)
		}
	}
}

func TestProjectActiveWindow(t *testing.T) {
	start := NewDate(2023, 6, 15)
	end := NewDate(2023, 8, 1)
	p := Project(NewDate(2023, 4, 1), 8, Money{}, []RecurringEntry{income(1000, start, end)})

	// a mid-month start first counts on the following month start
	want := map[string]int64{"2023-07": 1000, "2023-08": 1000}
	for _, m := range p.Months {
		if m.Incomes.Cents != want[m.Date.MonthKey()] {
			t.Fatalf("month %s: expected %d, got %d", m.Date.MonthKey(), want[m.Date.MonthKey()], m.Incomes.Cents)
		}
	}
}

func TestProjectRunningBalance(t *testing.T) {
	seed := Money{Cents: 10000}
	entries := []RecurringEntry{
		income(250000, NewDate(2022, 1, 1), Date{}),
		expense(90000, NewDate(2022, 1, 1), Date{}),
		expense(12345, NewDate(2023, 5, 1), NewDate(2023, 9, 30)),
		income(777, NewDate(2023, 10, 1), Date{}),
	}
	p := Project(NewDate(2023, 3, 20), 12, seed, entries)

	prev := seed
	var totIn, totOut Money
	for i, m := range p.Months {
		want := prev.Add(m.Incomes).Sub(m.Expenses)
		if m.Balance != want {
			t.Fatalf("month %d: balance %s, expected %s", i, m.Balance, want)
		}
		prev = m.Balance
		totIn = totIn.Add(m.Incomes)
		totOut = totOut.Add(m.Expenses)
	}
	if p.Summary.TotalIncomes != totIn || p.Summary.TotalExpenses != totOut {
		t.Fatalf("summary totals do not match the series: %+v", p.Summary)
	}
	if p.Summary.FinalBalance != p.Months[len(p.Months)-1].Balance {
		t.Fatalf("final balance %s differs from last month %s", p.Summary.FinalBalance, p.Months[len(p.Months)-1].Balance)
	}
}

func TestProjectExactCents(t *testing.T) {
	// 0.10 + 0.20 a thousand times stays exact
	entries := []RecurringEntry{
		income(10, NewDate(2000, 1, 1), Date{}),
		income(20, NewDate(2000, 1, 1), Date{}),
	}
	p := Project(NewDate(2000, 1, 1), 1000, Money{}, entries)
	if p.Summary.FinalBalance.Cents != 30000 {
		t.Fatalf("expected 300.00, got %s", p.Summary.FinalBalance)
	}
}

func TestRecurringEntryOfDefaultsStart(t *testing.T) {
	e := RecurringEntryOf(KindExpense, Transaction{ID: 7, Date: NewDate(2023, 2, 1), Amount: Money{Cents: 5}})
	if e.StartDate.String() != "2023-02-01" || e.Kind != KindExpense || e.ID != 7 {
		t.Fatalf("unexpected entry %+v", e)
	}
}
