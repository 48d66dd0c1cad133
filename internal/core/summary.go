package core

import "sort"

// UncategorizedName labels rows booked without a category.
const UncategorizedName = "Senza categoria"

// CategoryAmount represents an amount aggregated by category.
type CategoryAmount struct {
	CategoryID int64  `json:"categoryId"`
	Name       string `json:"name"`
	Amount     Money  `json:"amount"`
}

// MonthSummary is the dashboard overview for a specific year+month.
type MonthSummary struct {
	Year               int              `json:"year"`
	Month              int              `json:"month"` // 1-12
	TotalIncomes       Money            `json:"totalIncomes"`
	TotalExpenses      Money            `json:"totalExpenses"`
	Net                Money            `json:"net"`
	BankTotal          Money            `json:"bankTotal"`
	IncomesByCategory  []CategoryAmount `json:"incomesByCategory"`
	ExpensesByCategory []CategoryAmount `json:"expensesByCategory"`
}

// Summarize aggregates the month's rows. names maps category ids to
// display names; unknown ids fall back to UncategorizedName.
func Summarize(year, month int, incomes []Income, expenses []Expense, banks []Bank, names map[int64]string) MonthSummary {
	s := MonthSummary{Year: year, Month: month}

	in := make(map[int64]Money)
	for _, i := range incomes {
		s.TotalIncomes = s.TotalIncomes.Add(i.Amount)
		in[i.CategoryID] = in[i.CategoryID].Add(i.Amount)
	}
	out := make(map[int64]Money)
	for _, e := range expenses {
		s.TotalExpenses = s.TotalExpenses.Add(e.Amount)
		out[e.CategoryID] = out[e.CategoryID].Add(e.Amount)
	}
	s.Net = s.TotalIncomes.Sub(s.TotalExpenses)
	s.BankTotal = TotalBalance(banks)
	s.IncomesByCategory = byCategory(in, names)
	s.ExpensesByCategory = byCategory(out, names)
	return s
}

// TotalBalance sums the balances of banks.
func TotalBalance(banks []Bank) Money {
	var total Money
	for _, b := range banks {
		total = total.Add(b.Balance)
	}
	return total
}

// byCategory orders by amount desc, then name.
func byCategory(totals map[int64]Money, names map[int64]string) []CategoryAmount {
	out := make([]CategoryAmount, 0, len(totals))
	for id, amount := range totals {
		name, ok := names[id]
		if !ok || id == 0 {
			name = UncategorizedName
		}
		out = append(out, CategoryAmount{CategoryID: id, Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}
