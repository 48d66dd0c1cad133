package core

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	KindIncome  EntryKind = "income"
	KindExpense EntryKind = "expense"
)

const maxDescriptionLen = 200

type (
	// EntryKind distinguishes incomes from expenses. It doubles as the
	// category type.
	EntryKind string

	User struct {
		ID           int64     `json:"id"`
		Name         string    `json:"name"`
		Email        string    `json:"email"`
		PasswordHash string    `json:"-"`
		CreatedAt    time.Time `json:"createdAt"`
	}

	Bank struct {
		ID        int64     `json:"id"`
		UserID    int64     `json:"userId"`
		Name      string    `json:"name"`
		Balance   Money     `json:"balance"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	Category struct {
		ID     int64     `json:"id"`
		UserID int64     `json:"userId"`
		Name   string    `json:"name"`
		Type   EntryKind `json:"type"`
	}

	SubCategory struct {
		ID         int64  `json:"id"`
		CategoryID int64  `json:"categoryId"`
		Name       string `json:"name"`
	}

	// Transaction is the common shape of incomes and expenses. Optional
	// references use 0 for "not set".
	Transaction struct {
		ID            int64     `json:"id"`
		UserID        int64     `json:"userId"`
		CategoryID    int64     `json:"categoryId,omitempty"`
		SubCategoryID int64     `json:"subcategoryId,omitempty"`
		BankID        int64     `json:"bankId,omitempty"`
		Description   string    `json:"description"`
		Amount        Money     `json:"amount"`
		Date          Date      `json:"date"`
		IsRecurring   bool      `json:"isRecurring"`
		StartDate     Date      `json:"startDate"`
		EndDate       Date      `json:"endDate"`
		CreatedAt     time.Time `json:"createdAt"`
		UpdatedAt     time.Time `json:"updatedAt"`
	}

	Income struct {
		Transaction
	}

	Expense struct {
		Transaction
		PaymentMethod     string `json:"paymentMethod,omitempty"`
		InstallmentGroup  string `json:"installmentGroup,omitempty"`
		InstallmentNumber int    `json:"installmentNumber"`
		TotalInstallments int    `json:"totalInstallments"`
	}

	Goal struct {
		ID            int64     `json:"id"`
		UserID        int64     `json:"userId"`
		Name          string    `json:"name"`
		TargetAmount  Money     `json:"targetAmount"`
		CurrentAmount Money     `json:"currentAmount"`
		Deadline      Date      `json:"deadline"`
		CreatedAt     time.Time `json:"createdAt"`
		UpdatedAt     time.Time `json:"updatedAt"`
	}

	TelegramLink struct {
		UserID           int64     `json:"userId"`
		ChatID           int64     `json:"chatId,omitempty"`
		VerificationCode string    `json:"-"`
		CodeExpiresAt    time.Time `json:"-"`
		VerifiedAt       time.Time `json:"verifiedAt"`
	}
)

var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = fmt.Errorf("description too long (max %d characters)", maxDescriptionLen)
	ErrEmptyName          = errors.New("empty name")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidKind        = errors.New("invalid category type")
	ErrDateRange          = errors.New("end date must not be before start date")
	ErrInstallments       = errors.New("invalid installments")
	ErrUnknownReference   = errors.New("unknown reference")
	ErrKindMismatch       = errors.New("category type does not match")

	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError marks an error as caused by bad input.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid wraps err as a ValidationError on field.
func Invalid(field string, err error) error {
	return invalid(field, err)
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// Valid reports whether k is a known kind.
func (k EntryKind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u User) Validate() error {
	if strings.TrimSpace(u.Name) == "" {
		return invalid("name", ErrEmptyName)
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return invalid("email", ErrInvalidEmail)
	}
	return nil
}

// ValidatePassword enforces the minimum password policy.
func ValidatePassword(p string) error {
	if len(p) < 8 {
		return invalid("password", ErrWeakPassword)
	}
	return nil
}

func (b Bank) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return invalid("name", ErrEmptyName)
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return invalid("name", ErrEmptyName)
	}
	if !c.Type.Valid() {
		return invalid("type", ErrInvalidKind)
	}
	return nil
}

func (s SubCategory) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return invalid("name", ErrEmptyName)
	}
	return nil
}

// Normalize fills derived fields before validation: recurring rows
// without an explicit start date start on their booking date.
func (t *Transaction) Normalize() {
	t.Description = strings.TrimSpace(t.Description)
	if t.IsRecurring && t.StartDate.IsZero() {
		t.StartDate = t.Date
	}
	if !t.IsRecurring {
		t.StartDate = Date{}
		t.EndDate = Date{}
	}
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return invalid("date", err)
	}
	if t.Description == "" {
		return invalid("description", ErrEmptyDescription)
	}
	if utf8.RuneCountInString(t.Description) > maxDescriptionLen {
		return invalid("description", ErrDescriptionTooLong)
	}
	if err := t.Amount.Validate(); err != nil {
		return invalid("amount", err)
	}
	if t.SubCategoryID != 0 && t.CategoryID == 0 {
		return invalid("subcategoryId", errors.New("subcategory requires a category"))
	}
	if t.IsRecurring && !t.EndDate.IsZero() && t.EndDate.Before(t.StartDate) {
		return invalid("endDate", ErrDateRange)
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.Transaction.Validate(); err != nil {
		return err
	}
	if e.TotalInstallments < 0 {
		return invalid("totalInstallments", ErrInstallments)
	}
	if e.TotalInstallments > 1 && e.IsRecurring {
		return invalid("totalInstallments", errors.New("installment expenses cannot be recurring"))
	}
	if e.TotalInstallments > maxInstallments {
		return invalid("totalInstallments", fmt.Errorf("%w: at most %d", ErrInstallments, maxInstallments))
	}
	return nil
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return invalid("name", ErrEmptyName)
	}
	if err := g.TargetAmount.Validate(); err != nil {
		return invalid("targetAmount", err)
	}
	if g.CurrentAmount.Cents < 0 {
		return invalid("currentAmount", ErrInvalidAmount)
	}
	return nil
}

// Progress returns the completion percentage, capped at 100.
func (g Goal) Progress() int {
	if g.TargetAmount.Cents <= 0 {
		return 0
	}
	p := g.CurrentAmount.Cents * 100 / g.TargetAmount.Cents
	if p > 100 {
		p = 100
	}
	return int(p)
}

// Achieved reports whether the goal reached its target.
func (g Goal) Achieved() bool {
	return g.TargetAmount.Cents > 0 && g.CurrentAmount.Cents >= g.TargetAmount.Cents
}

// Contribute adds delta to the goal, never letting it drop below zero.
func (g *Goal) Contribute(delta Money) error {
	if delta.IsZero() {
		return invalid("amount", ErrInvalidAmount)
	}
	next := g.CurrentAmount.Add(delta)
	if next.Cents < 0 {
		return invalid("amount", errors.New("withdrawal exceeds saved amount"))
	}
	g.CurrentAmount = next
	return nil
}

// Linked reports whether the Telegram chat has been verified.
func (l TelegramLink) Linked() bool {
	return l.ChatID != 0 && !l.VerifiedAt.IsZero()
}
