package http

import (
	"net/http"

	"bilancio/internal/auth"
	"bilancio/internal/core"
	"bilancio/internal/log"
)

type bankRequest struct {
	Name    string     `json:"name"`
	Balance core.Money `json:"balance"`
}

type categoryRequest struct {
	Name string         `json:"name"`
	Type core.EntryKind `json:"type"`
}

type nameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleListBanks(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := storageContext(r)
	defer cancel()

	banks, err := s.deps.Catalog.ListBanks(ctx, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(banks))
}

func (s *Server) handleCreateBank(w http.ResponseWriter, r *http.Request) {
	var req bankRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	ctx, cancel := storageContext(r)
	defer cancel()

	b, err := s.deps.Catalog.CreateBank(ctx, auth.UserID(r.Context()), core.Bank{
		Name:    sanitizeInput(req.Name),
		Balance: req.Balance,
	})
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleGetBank(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	ctx, cancel := storageContext(r)
	defer cancel()

	b, err := s.deps.Catalog.GetBank(ctx, auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleUpdateBank(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	var req bankRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	ctx, cancel := storageContext(r)
	defer cancel()

	b, err := s.deps.Catalog.UpdateBank(ctx, auth.UserID(r.Context()), id, core.Bank{
		Name:    sanitizeInput(req.Name),
		Balance: req.Balance,
	})
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleDeleteBank(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	ctx, cancel := storageContext(r)
	defer cancel()

	if err := s.deps.Catalog.DeleteBank(ctx, auth.UserID(r.Context()), id); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	kind := core.EntryKind(r.URL.Query().Get("type"))
	ctx, cancel := storageContext(r)
	defer cancel()

	cats, err := s.deps.Catalog.ListCategories(ctx, auth.UserID(r.Context()), kind)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(cats))
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	ctx, cancel := storageContext(r)
	defer cancel()

	c, err := s.deps.Catalog.CreateCategory(ctx, auth.UserID(r.Context()), core.Category{
		Name: sanitizeInput(req.Name),
		Type: req.Type,
	})
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleRenameCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	ctx, cancel := storageContext(r)
	defer cancel()

	c, err := s.deps.Catalog.RenameCategory(ctx, auth.UserID(r.Context()), id, sanitizeInput(req.Name))
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	ctx, cancel := storageContext(r)
	defer cancel()

	if err := s.deps.Catalog.DeleteCategory(ctx, auth.UserID(r.Context()), id); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSubCategories(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	ctx, cancel := storageContext(r)
	defer cancel()

	subs, err := s.deps.Catalog.ListSubCategories(ctx, auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(subs))
}

func (s *Server) handleCreateSubCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	ctx, cancel := storageContext(r)
	defer cancel()

	sub, err := s.deps.Catalog.CreateSubCategory(ctx, auth.UserID(r.Context()), id, sanitizeInput(req.Name))
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleDeleteSubCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	ctx, cancel := storageContext(r)
	defer cancel()

	if err := s.deps.Catalog.DeleteSubCategory(ctx, auth.UserID(r.Context()), id); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// nonNil renders empty lists as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
