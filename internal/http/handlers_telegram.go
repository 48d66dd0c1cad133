package http

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/auth"
	"bilancio/internal/log"
	"bilancio/internal/telegram"
)

// headerWebhookSecret carries the secret configured with setWebhook.
const headerWebhookSecret = "X-Telegram-Bot-Api-Secret-Token"

type verificationResponse struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) handleTelegramVerification(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := storageContext(r)
	defer cancel()

	code, expires, err := s.deps.Telegram.IssueCode(ctx, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, verificationResponse{Code: code, ExpiresAt: expires})
}

func (s *Server) handleTelegramStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := storageContext(r)
	defer cancel()

	status, err := s.deps.Telegram.Status(ctx, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleTelegramUnlink(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := storageContext(r)
	defer cancel()

	if err := s.deps.Telegram.Unlink(ctx, auth.UserID(r.Context())); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTelegramWebhook accepts updates pushed by Telegram. Updates go to
// the event bus when one is configured and are handled inline otherwise.
// Processing failures still answer 200 so Telegram does not redeliver.
func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get(headerWebhookSecret)
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.deps.WebhookSecret)) != 1 {
		writeMessage(w, http.StatusUnauthorized, "invalid webhook secret")
		return
	}

	var update telegram.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&update); err != nil {
		writeError(w, r, log.OpCreate, badRequest("invalid update: "+err.Error()))
		return
	}

	ctx, cancel := storageContext(r)
	defer cancel()
	logger := log.FromContext(ctx).WithComponent(log.ComponentTelegram)

	if s.deps.Publisher != nil {
		ev, err := amqp.NewEvent(amqp.TypeTelegramUpdate, update)
		if err == nil {
			err = s.deps.Publisher.Publish(ctx, ev)
		}
		if err == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		logger.WarnContext(ctx, "Telegram update not queued, handling inline",
			log.FieldOperation, log.OpPublish, log.FieldError, err)
	}

	if s.deps.Bot == nil {
		logger.WarnContext(ctx, "Telegram update dropped, no bot configured", "update_id", update.UpdateID)
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := s.deps.Bot.HandleUpdate(log.NewContext(ctx, logger), update); err != nil {
		logger.ErrorContext(ctx, "Telegram update failed", log.FieldError, err, "update_id", update.UpdateID)
	}
	w.WriteHeader(http.StatusOK)
}
