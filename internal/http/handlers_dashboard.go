package http

import (
	"net/http"

	"bilancio/internal/auth"
	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/services"
)

type trendPoint struct {
	Date     core.Date  `json:"date"`
	Month    string     `json:"month"`
	Incomes  core.Money `json:"incomes"`
	Expenses core.Money `json:"expenses"`
	Balance  core.Money `json:"balance"`
}

type trendSummary struct {
	TotalIncomes  core.Money `json:"totalIncomes"`
	TotalExpenses core.Money `json:"totalExpenses"`
	FinalBalance  core.Money `json:"finalBalance"`
	SeedBalance   core.Money `json:"seedBalance"`
	Months        int        `json:"months"`
}

type trendResponse struct {
	ProjectionData []trendPoint `json:"projectionData"`
	Summary        trendSummary `json:"summary"`
}

func newTrendResponse(t services.BalanceTrend) trendResponse {
	points := make([]trendPoint, len(t.Months))
	for i, m := range t.Months {
		points[i] = trendPoint{
			Date:     m.Date,
			Month:    m.Date.MonthKey(),
			Incomes:  m.Incomes,
			Expenses: m.Expenses,
			Balance:  m.Balance,
		}
	}
	return trendResponse{
		ProjectionData: points,
		Summary: trendSummary{
			TotalIncomes:  t.Summary.TotalIncomes,
			TotalExpenses: t.Summary.TotalExpenses,
			FinalBalance:  t.Summary.FinalBalance,
			SeedBalance:   t.Seed,
			Months:        t.Horizon,
		},
	}
}

func (s *Server) handleBalanceTrend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	months, err := queryInt(q, "months", core.DefaultProjectionMonths)
	if err != nil {
		writeError(w, r, log.OpProject, err)
		return
	}
	if months < 0 {
		writeError(w, r, log.OpProject, badRequest("months must not be negative"))
		return
	}
	bankID, err := queryID(q, "bank_id")
	if err != nil {
		writeError(w, r, log.OpProject, err)
		return
	}
	ctx, cancel := storageContext(r)
	defer cancel()

	trend, err := s.deps.Dashboard.BalanceTrend(ctx, auth.UserID(r.Context()), months, bankID)
	if err != nil {
		writeError(w, r, log.OpProject, err)
		return
	}
	writeJSON(w, http.StatusOK, newTrendResponse(trend))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, err := queryInt(q, "year", 0)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	month, err := queryInt(q, "month", 0)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	ctx, cancel := storageContext(r)
	defer cancel()

	summary, err := s.deps.Dashboard.Summary(ctx, auth.UserID(r.Context()), year, month)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r.URL.Query(), "limit", services.DefaultRecentLimit)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	ctx, cancel := storageContext(r)
	defer cancel()

	recent, err := s.deps.Dashboard.Recent(ctx, auth.UserID(r.Context()), limit)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(recent))
}
