package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/storage"
)

// VerificationCodeTTL is how long a linking code stays valid.
const VerificationCodeTTL = 10 * time.Minute

// issueAttempts bounds retries when a fresh code is already live for
// another user.
const issueAttempts = 5

// TelegramStatus is the link state shown to the user.
type TelegramStatus struct {
	Linked     bool       `json:"linked"`
	ChatID     int64      `json:"chatId,omitempty"`
	VerifiedAt *time.Time `json:"verifiedAt"`
}

// TelegramService links chats to users and backs the bot commands.
type TelegramService struct {
	store        *storage.Store
	transactions *TransactionService
	dashboard    *DashboardService
	now          func() time.Time
	newCode      func() (string, error)
}

func NewTelegramService(store *storage.Store, transactions *TransactionService, dashboard *DashboardService) *TelegramService {
	return &TelegramService{
		store:        store,
		transactions: transactions,
		dashboard:    dashboard,
		now:          time.Now,
		newCode:      newVerificationCode,
	}
}

func newVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// IssueCode replaces any previous code of userID with a fresh 6-digit one.
// Codes are unique among the live ones.
func (s *TelegramService) IssueCode(ctx context.Context, userID int64) (string, time.Time, error) {
	var err error
	for attempt := 0; attempt < issueAttempts; attempt++ {
		var code string
		if code, err = s.newCode(); err != nil {
			return "", time.Time{}, err
		}
		now := s.now().UTC()
		expiresAt := now.Add(VerificationCodeTTL)
		err = s.store.SetVerificationCode(ctx, userID, code, now, expiresAt)
		if err == nil {
			return code, expiresAt, nil
		}
		if !errors.Is(err, core.ErrConflict) {
			return "", time.Time{}, err
		}
		log.FromContext(ctx).DebugContext(ctx, "Verification code collision, retrying",
			log.FieldUserID, userID, "attempt", attempt+1)
	}
	return "", time.Time{}, fmt.Errorf("issue verification code: %w", err)
}

func (s *TelegramService) Status(ctx context.Context, userID int64) (TelegramStatus, error) {
	link, err := s.store.GetTelegramLink(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return TelegramStatus{}, nil
	}
	if err != nil {
		return TelegramStatus{}, err
	}
	if !link.Linked() {
		return TelegramStatus{}, nil
	}
	verified := link.VerifiedAt
	return TelegramStatus{Linked: true, ChatID: link.ChatID, VerifiedAt: &verified}, nil
}

func (s *TelegramService) Unlink(ctx context.Context, userID int64) error {
	return s.store.DeleteTelegramLink(ctx, userID)
}

// LinkChat consumes code and binds chatID to its owner. Unknown or
// expired codes yield core.ErrNotFound.
func (s *TelegramService) LinkChat(ctx context.Context, code string, chatID int64) (int64, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return 0, core.ErrNotFound
	}
	userID, err := s.store.VerifyTelegramCode(ctx, code, chatID, s.now().UTC())
	if err != nil {
		return 0, err
	}
	log.FromContext(ctx).InfoContext(ctx, "Telegram chat linked", log.FieldUserID, userID, log.FieldChatID, chatID)
	return userID, nil
}

// UserForChat returns the user linked to chatID, or core.ErrNotFound.
func (s *TelegramService) UserForChat(ctx context.Context, chatID int64) (int64, error) {
	link, err := s.store.GetTelegramLinkByChat(ctx, chatID)
	if err != nil {
		return 0, err
	}
	return link.UserID, nil
}

func (s *TelegramService) LinkedChats(ctx context.Context) ([]core.TelegramLink, error) {
	return s.store.ListTelegramLinks(ctx)
}

func (s *TelegramService) TotalBalance(ctx context.Context, userID int64) (core.Money, error) {
	return s.dashboard.TotalBalance(ctx, userID)
}

func (s *TelegramService) MonthSummary(ctx context.Context, userID int64, year, month int) (core.MonthSummary, error) {
	return s.dashboard.Summary(ctx, userID, year, month)
}

// QuickExpense records an expense dated today. category, when not empty,
// is matched case-insensitively against the user's expense categories.
func (s *TelegramService) QuickExpense(ctx context.Context, userID int64, amount core.Money, description, category string) (core.Expense, error) {
	e := core.Expense{Transaction: core.Transaction{
		Description: description,
		Amount:      amount,
		Date:        today(s.now),
	}}

	if category = strings.TrimSpace(category); category != "" {
		cats, err := s.store.ListCategories(ctx, userID, core.KindExpense)
		if err != nil {
			return core.Expense{}, err
		}
		for _, c := range cats {
			if strings.EqualFold(c.Name, category) {
				e.CategoryID = c.ID
				break
			}
		}
		if e.CategoryID == 0 {
			return core.Expense{}, core.Invalid("category", fmt.Errorf("%w: %s", core.ErrUnknownReference, category))
		}
	}

	rows, err := s.transactions.CreateExpense(ctx, userID, e)
	if err != nil {
		return core.Expense{}, err
	}
	return rows[0], nil
}
