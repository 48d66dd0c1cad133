package http

import (
	"net/http"

	"bilancio/internal/auth"
	"bilancio/internal/log"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	ctx, cancel := storageContext(r)
	defer cancel()

	session, err := s.deps.Accounts.Register(ctx, sanitizeInput(req.Name), req.Email, req.Password)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	ctx, cancel := storageContext(r)
	defer cancel()

	session, err := s.deps.Accounts.Login(ctx, req.Email, req.Password)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := storageContext(r)
	defer cancel()

	u, err := s.deps.Accounts.Me(ctx, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
