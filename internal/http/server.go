// Package http exposes bilancio's JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"bilancio/internal/auth"
	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/middleware/ratelimit"
	"bilancio/internal/middleware/security"
	"bilancio/internal/middleware/trace"
	"bilancio/internal/services"
	"bilancio/internal/telegram"

	"github.com/gorilla/mux"
)

// requestTimeout bounds every storage round trip made by a handler.
const requestTimeout = 7 * time.Second

// Pinger reports database reachability for /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// UpdateHandler processes a Telegram update inline.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u telegram.Update) error
}

// Deps collects what the server needs. Bot, Publisher and WebhookSecret
// are optional: without a secret the webhook route is not mounted, and
// without a publisher updates are handled inline by Bot.
type Deps struct {
	Accounts     *services.AccountService
	Catalog      *services.CatalogService
	Transactions *services.TransactionService
	Dashboard    *services.DashboardService
	Goals        *services.GoalService
	Telegram     *services.TelegramService
	Tokens       *auth.Tokens
	DB           Pinger

	Bot           UpdateHandler
	Publisher     services.Publisher
	WebhookSecret string

	Logger         *log.Logger
	ClientIP       *security.ClientIP
	RateLimit      ratelimit.Config
	AllowedOrigins []string
}

// Server is the API server. Shutdown also stops the rate limiter.
type Server struct {
	http.Server

	deps    Deps
	limiter *ratelimit.Limiter
	tracer  *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}
	if deps.ClientIP == nil {
		deps.ClientIP = security.DefaultClientIP()
	}

	s := &Server{
		deps:    deps,
		limiter: ratelimit.NewLimiter(deps.RateLimit),
		tracer:  trace.NewMiddleware(deps.ClientIP.Extract),
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	if s.deps.WebhookSecret != "" {
		r.HandleFunc("/telegram/webhook", s.handleTelegramWebhook).Methods(http.MethodPost)
	}

	limited := r.NewRoute().Subrouter()
	limited.Use(s.limiter.Middleware(s.deps.ClientIP.Extract, func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusTooManyRequests, "rate limit exceeded, retry later")
	}))

	limited.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	limited.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)

	api := limited.NewRoute().Subrouter()
	api.Use(auth.Middleware(s.deps.Tokens), withUser)

	api.HandleFunc("/auth/me", s.handleMe).Methods(http.MethodGet)

	api.HandleFunc("/banks", s.handleListBanks).Methods(http.MethodGet)
	api.HandleFunc("/banks", s.handleCreateBank).Methods(http.MethodPost)
	api.HandleFunc("/banks/{id}", s.handleGetBank).Methods(http.MethodGet)
	api.HandleFunc("/banks/{id}", s.handleUpdateBank).Methods(http.MethodPut)
	api.HandleFunc("/banks/{id}", s.handleDeleteBank).Methods(http.MethodDelete)

	api.HandleFunc("/categories", s.handleListCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories", s.handleCreateCategory).Methods(http.MethodPost)
	api.HandleFunc("/categories/{id}", s.handleRenameCategory).Methods(http.MethodPut)
	api.HandleFunc("/categories/{id}", s.handleDeleteCategory).Methods(http.MethodDelete)
	api.HandleFunc("/categories/{id}/subcategories", s.handleListSubCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories/{id}/subcategories", s.handleCreateSubCategory).Methods(http.MethodPost)
	api.HandleFunc("/subcategories/{id}", s.handleDeleteSubCategory).Methods(http.MethodDelete)

	api.HandleFunc("/incomes", s.handleListIncomes).Methods(http.MethodGet)
	api.HandleFunc("/incomes", s.handleCreateIncome).Methods(http.MethodPost)
	api.HandleFunc("/incomes/bulk-delete", s.handleBulkDelete(core.KindIncome)).Methods(http.MethodPost)
	api.HandleFunc("/incomes/{id}", s.handleGetIncome).Methods(http.MethodGet)
	api.HandleFunc("/incomes/{id}", s.handleUpdateIncome).Methods(http.MethodPut)
	api.HandleFunc("/incomes/{id}", s.handleDeleteTransaction(core.KindIncome)).Methods(http.MethodDelete)

	api.HandleFunc("/expenses", s.handleListExpenses).Methods(http.MethodGet)
	api.HandleFunc("/expenses", s.handleCreateExpense).Methods(http.MethodPost)
	api.HandleFunc("/expenses/bulk-delete", s.handleBulkDelete(core.KindExpense)).Methods(http.MethodPost)
	api.HandleFunc("/expenses/{id}", s.handleGetExpense).Methods(http.MethodGet)
	api.HandleFunc("/expenses/{id}", s.handleUpdateExpense).Methods(http.MethodPut)
	api.HandleFunc("/expenses/{id}", s.handleDeleteTransaction(core.KindExpense)).Methods(http.MethodDelete)

	api.HandleFunc("/goals", s.handleListGoals).Methods(http.MethodGet)
	api.HandleFunc("/goals", s.handleCreateGoal).Methods(http.MethodPost)
	api.HandleFunc("/goals/{id}", s.handleGetGoal).Methods(http.MethodGet)
	api.HandleFunc("/goals/{id}", s.handleUpdateGoal).Methods(http.MethodPut)
	api.HandleFunc("/goals/{id}", s.handleDeleteGoal).Methods(http.MethodDelete)
	api.HandleFunc("/goals/{id}/contribute", s.handleContributeGoal).Methods(http.MethodPost)

	api.HandleFunc("/dashboard/summary", s.handleSummary).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/recent", s.handleRecent).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/bank-balance-trend", s.handleBalanceTrend).Methods(http.MethodGet)

	api.HandleFunc("/telegram/verification", s.handleTelegramVerification).Methods(http.MethodPost)
	api.HandleFunc("/telegram/status", s.handleTelegramStatus).Methods(http.MethodGet)
	api.HandleFunc("/telegram/link", s.handleTelegramUnlink).Methods(http.MethodDelete)

	// Unmatched routes and CORS preflights pass through these as well.
	return chain(r,
		log.Middleware(s.deps.Logger),
		s.tracer.Handler,
		security.Headers(security.DefaultHeadersConfig()),
		security.CORS(s.deps.AllowedOrigins),
	)
}

// chain applies mws so that the first one is outermost.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// withUser tags the request logger with the authenticated user.
func withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := log.FromContext(ctx).With(log.FieldUserID, auth.UserID(ctx))
		next.ServeHTTP(w, r.WithContext(log.NewContext(ctx, logger)))
	})
}

// Shutdown gracefully shuts down the server and the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Metrics holds the cumulative request counters.
type Metrics struct {
	trace.Metrics
	RateLimited int64
}

func (s *Server) Metrics() Metrics {
	return Metrics{Metrics: s.tracer.Metrics(), RateLimited: s.limiter.Rejected()}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			writeMessage(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
