package http

import (
	"net/http"

	"bilancio/internal/auth"
	"bilancio/internal/core"
	"bilancio/internal/log"
)

// transactionRequest is the editable shape shared by incomes and expenses.
type transactionRequest struct {
	Description   string     `json:"description"`
	Amount        core.Money `json:"amount"`
	Date          core.Date  `json:"date"`
	CategoryID    int64      `json:"categoryId"`
	SubCategoryID int64      `json:"subcategoryId"`
	BankID        int64      `json:"bankId"`
	IsRecurring   bool       `json:"isRecurring"`
	StartDate     core.Date  `json:"startDate"`
	EndDate       core.Date  `json:"endDate"`
}

func (req transactionRequest) transaction() core.Transaction {
	return core.Transaction{
		Description:   sanitizeInput(req.Description),
		Amount:        req.Amount,
		Date:          req.Date,
		CategoryID:    req.CategoryID,
		SubCategoryID: req.SubCategoryID,
		BankID:        req.BankID,
		IsRecurring:   req.IsRecurring,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
	}
}

type expenseRequest struct {
	transactionRequest
	PaymentMethod     string `json:"paymentMethod"`
	TotalInstallments int    `json:"totalInstallments"`
}

func (req expenseRequest) expense() core.Expense {
	return core.Expense{
		Transaction:       req.transaction(),
		PaymentMethod:     sanitizeInput(req.PaymentMethod),
		TotalInstallments: req.TotalInstallments,
	}
}

type bulkDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

type bulkDeleteResponse struct {
	Deleted int `json:"deleted"`
}

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	ctx, cancel := storageContext(r)
	defer cancel()

	incomes, err := s.deps.Transactions.ListIncomes(ctx, auth.UserID(r.Context()), q)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(incomes))
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	ctx, cancel := storageContext(r)
	defer cancel()

	in, err := s.deps.Transactions.CreateIncome(ctx, auth.UserID(r.Context()), core.Income{Transaction: req.transaction()})
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, in)
}

func (s *Server) handleGetIncome(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	ctx, cancel := storageContext(r)
	defer cancel()

	in, err := s.deps.Transactions.GetIncome(ctx, auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (s *Server) handleUpdateIncome(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	ctx, cancel := storageContext(r)
	defer cancel()

	in, err := s.deps.Transactions.UpdateIncome(ctx, auth.UserID(r.Context()), id, core.Income{Transaction: req.transaction()})
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	ctx, cancel := storageContext(r)
	defer cancel()

	expenses, err := s.deps.Transactions.ListExpenses(ctx, auth.UserID(r.Context()), q)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(expenses))
}

// handleCreateExpense answers with the single created row, or with the
// full list of rows for an installment plan.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	ctx, cancel := storageContext(r)
	defer cancel()

	rows, err := s.deps.Transactions.CreateExpense(ctx, auth.UserID(r.Context()), req.expense())
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	if len(rows) == 1 {
		writeJSON(w, http.StatusCreated, rows[0])
		return
	}
	writeJSON(w, http.StatusCreated, rows)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	ctx, cancel := storageContext(r)
	defer cancel()

	e, err := s.deps.Transactions.GetExpense(ctx, auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	ctx, cancel := storageContext(r)
	defer cancel()

	e, err := s.deps.Transactions.UpdateExpense(ctx, auth.UserID(r.Context()), id, req.expense())
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteTransaction(kind core.EntryKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, log.OpDelete, err)
			return
		}
		ctx, cancel := storageContext(r)
		defer cancel()

		if err := s.deps.Transactions.Delete(ctx, kind, auth.UserID(r.Context()), id); err != nil {
			writeError(w, r, log.OpDelete, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleBulkDelete(kind core.EntryKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkDeleteRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, log.OpDelete, err)
			return
		}
		ctx, cancel := storageContext(r)
		defer cancel()

		n, err := s.deps.Transactions.BulkDelete(ctx, kind, auth.UserID(r.Context()), req.IDs)
		if err != nil {
			writeError(w, r, log.OpDelete, err)
			return
		}
		writeJSON(w, http.StatusOK, bulkDeleteResponse{Deleted: n})
	}
}
