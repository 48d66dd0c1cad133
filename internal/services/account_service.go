package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bilancio/internal/auth"
	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/storage"
)

// Session is returned by register and login.
type Session struct {
	User      core.User `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AccountService registers users and exchanges credentials for tokens.
type AccountService struct {
	store      *storage.Store
	tokens     *auth.Tokens
	bcryptCost int
}

// NewAccountService wires the service. bcryptCost 0 selects bcrypt's default.
func NewAccountService(store *storage.Store, tokens *auth.Tokens, bcryptCost int) *AccountService {
	return &AccountService{store: store, tokens: tokens, bcryptCost: bcryptCost}
}

func (s *AccountService) Register(ctx context.Context, name, email, password string) (Session, error) {
	u := core.User{Name: strings.TrimSpace(name), Email: core.NormalizeEmail(email)}
	if err := u.Validate(); err != nil {
		return Session{}, err
	}
	if err := core.ValidatePassword(password); err != nil {
		return Session{}, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return Session{}, err
	}
	u.PasswordHash = hash

	created, err := s.store.CreateUser(ctx, u)
	if err != nil {
		if errors.Is(err, core.ErrConflict) {
			return Session{}, fmt.Errorf("%w: email already registered", core.ErrConflict)
		}
		return Session{}, err
	}
	log.FromContext(ctx).InfoContext(ctx, "User registered", log.FieldUserID, created.ID)
	return s.session(created)
}

// Login never reveals whether the email exists.
func (s *AccountService) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.store.GetUserByEmail(ctx, core.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return Session{}, fmt.Errorf("%w: invalid credentials", core.ErrUnauthorized)
		}
		return Session{}, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return Session{}, fmt.Errorf("%w: invalid credentials", core.ErrUnauthorized)
	}
	return s.session(u)
}

func (s *AccountService) Me(ctx context.Context, userID int64) (core.User, error) {
	return s.store.GetUser(ctx, userID)
}

func (s *AccountService) session(u core.User) (Session, error) {
	token, exp, err := s.tokens.Issue(u.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{User: u, Token: token, ExpiresAt: exp}, nil
}
