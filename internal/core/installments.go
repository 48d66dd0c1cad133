package core

const maxInstallments = 120

// SplitInstallments splits an expense into n monthly rows sharing group.
// Amounts are total/n with the remainder cents on the first installment,
// so the rows always sum to the original total. Row i (1-based) is dated
// i-1 months after the original date.
func SplitInstallments(e Expense, n int, group string) ([]Expense, error) {
	if n < 2 || n > maxInstallments {
		return nil, invalid("totalInstallments", ErrInstallments)
	}
	if e.Amount.Cents < int64(n) {
		return nil, invalid("amount", ErrInstallments)
	}

	share := e.Amount.Cents / int64(n)
	rem := e.Amount.Cents % int64(n)

	out := make([]Expense, n)
	for i := 0; i < n; i++ {
		row := e
		row.IsRecurring = false
		row.StartDate, row.EndDate = Date{}, Date{}
		row.Date = e.Date.AddMonths(i)
		row.Amount = Money{Cents: share}
		if i == 0 {
			row.Amount.Cents += rem
		}
		row.InstallmentGroup = group
		row.InstallmentNumber = i + 1
		row.TotalInstallments = n
		out[i] = row
	}
	return out, nil
}
