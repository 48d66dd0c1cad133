package core

import "testing"

func TestSplitInstallments(t *testing.T) {
	base := Expense{Transaction: Transaction{
		UserID:      1,
		Description: "Lavatrice",
		Amount:      Money{Cents: 100000},
		Date:        NewDate(2024, 1, 31),
	}}
	rows, err := SplitInstallments(base, 3, "grp")
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	wantAmounts := []int64{33334, 33333, 33333}
	wantDates := []string{"2024-01-31", "2024-02-29", "2024-03-31"}
	var sum int64
	for i, r := range rows {
		if r.Amount.Cents != wantAmounts[i] {
			t.Fatalf("row %d: expected %d, got %d", i, wantAmounts[i], r.Amount.Cents)
		}
		if r.Date.String() != wantDates[i] {
			t.Fatalf("row %d: expected date %s, got %s", i, wantDates[i], r.Date)
		}
		if r.InstallmentNumber != i+1 || r.TotalInstallments != 3 || r.InstallmentGroup != "grp" {
			t.Fatalf("row %d: unexpected installment fields %+v", i, r)
		}
		sum += r.Amount.Cents
	}
	if sum != base.Amount.Cents {
		t.Fatalf("installments sum to %d, expected %d", sum, base.Amount.Cents)
	}
}

func TestSplitInstallmentsInvalid(t *testing.T) {
	base := Expense{Transaction: Transaction{Amount: Money{Cents: 2}, Date: NewDate(2024, 1, 1), Description: "x"}}
	for _, n := range []int{0, 1, 3, 121} {
		if _, err := SplitInstallments(base, n, "g"); err == nil {
			t.Fatalf("n=%d: expected error", n)
		}
	}
}
