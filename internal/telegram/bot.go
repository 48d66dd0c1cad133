package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/log"
)

// Ledger is what the bot needs from the application.
type Ledger interface {
	LinkChat(ctx context.Context, code string, chatID int64) (int64, error)
	UserForChat(ctx context.Context, chatID int64) (int64, error)
	TotalBalance(ctx context.Context, userID int64) (core.Money, error)
	MonthSummary(ctx context.Context, userID int64, year, month int) (core.MonthSummary, error)
	QuickExpense(ctx context.Context, userID int64, amount core.Money, description, category string) (core.Expense, error)
}

const helpText = `Comandi disponibili:
/verify <codice> - collega questa chat al tuo account
/saldo - saldo totale dei conti
/mese - riepilogo del mese corrente
/help - questo messaggio

Per registrare una spesa scrivi: <importo> <descrizione> [#categoria]
Esempio: 12,50 pizza #cibo`

const notLinkedText = "Questa chat non è collegata. Genera un codice dall'app e invia /verify <codice>."

// Bot answers chat messages.
type Bot struct {
	sender Sender
	ledger Ledger
	now    func() time.Time
}

func NewBot(sender Sender, ledger Ledger) *Bot {
	return &Bot{sender: sender, ledger: ledger, now: time.Now}
}

// HandleUpdate processes one update and replies in the same chat. Updates
// without a text message are ignored. The returned error is for logging;
// the user has already been answered when possible.
func (b *Bot) HandleUpdate(ctx context.Context, u Update) error {
	if u.Message == nil || strings.TrimSpace(u.Message.Text) == "" {
		return nil
	}
	chatID := u.Message.Chat.ID
	ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldChatID, chatID))

	reply, err := b.respond(ctx, chatID, strings.TrimSpace(u.Message.Text))
	if reply != "" {
		if sendErr := b.sender.SendMessage(ctx, chatID, reply); sendErr != nil {
			return errors.Join(err, fmt.Errorf("reply: %w", sendErr))
		}
	}
	return err
}

func (b *Bot) respond(ctx context.Context, chatID int64, text string) (string, error) {
	command, args := splitCommand(text)
	switch command {
	case "/start", "/help":
		return helpText, nil
	case "/verify":
		return b.verify(ctx, chatID, args)
	}

	userID, err := b.ledger.UserForChat(ctx, chatID)
	if errors.Is(err, core.ErrNotFound) {
		return notLinkedText, nil
	}
	if err != nil {
		return "Errore interno, riprova più tardi.", err
	}

	switch command {
	case "/saldo":
		total, err := b.ledger.TotalBalance(ctx, userID)
		if err != nil {
			return "Errore interno, riprova più tardi.", err
		}
		return "Saldo totale: " + core.FormatEuros(total), nil
	case "/mese":
		now := b.now()
		s, err := b.ledger.MonthSummary(ctx, userID, now.Year(), int(now.Month()))
		if err != nil {
			return "Errore interno, riprova più tardi.", err
		}
		return FormatSummary(s), nil
	case "":
		return b.quickExpense(ctx, userID, text)
	default:
		return "Comando sconosciuto. " + helpText, nil
	}
}

func (b *Bot) verify(ctx context.Context, chatID int64, code string) (string, error) {
	if code == "" {
		return "Uso: /verify <codice>", nil
	}
	if _, err := b.ledger.LinkChat(ctx, code, chatID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "Codice non valido o scaduto.", nil
		}
		return "Errore interno, riprova più tardi.", err
	}
	return "Chat collegata! Ora puoi registrare spese scrivendo <importo> <descrizione>.", nil
}

func (b *Bot) quickExpense(ctx context.Context, userID int64, text string) (string, error) {
	entry, err := ParseQuickEntry(text)
	if err != nil {
		return "Formato non valido. Scrivi <importo> <descrizione> [#categoria], ad esempio: 12,50 pizza #cibo", nil
	}
	e, err := b.ledger.QuickExpense(ctx, userID, entry.Amount, entry.Description, entry.Category)
	if err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			return "Spesa non registrata: " + ve.Error(), nil
		}
		return "Errore interno, riprova più tardi.", err
	}
	return fmt.Sprintf("Registrata spesa di %s: %s", core.FormatEuros(e.Amount), e.Description), nil
}

// splitCommand returns the lower-cased command ("" for plain text) and
// its argument string. A "@botname" suffix is dropped.
func splitCommand(text string) (string, string) {
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	command, args, _ := strings.Cut(text, " ")
	if at := strings.IndexByte(command, '@'); at > 0 {
		command = command[:at]
	}
	return strings.ToLower(command), strings.TrimSpace(args)
}

// QuickEntry is a parsed "<amount> <description> [#category]" message.
type QuickEntry struct {
	Amount      core.Money
	Description string
	Category    string
}

var errQuickEntry = errors.New("expected <amount> <description> [#category]")

func ParseQuickEntry(text string) (QuickEntry, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return QuickEntry{}, errQuickEntry
	}
	amount, err := core.ParseAmount(fields[0])
	if err != nil {
		return QuickEntry{}, err
	}

	var entry QuickEntry
	entry.Amount = amount
	words := fields[1:]
	if last := words[len(words)-1]; strings.HasPrefix(last, "#") {
		entry.Category = strings.TrimPrefix(last, "#")
		words = words[:len(words)-1]
	}
	entry.Description = strings.Join(words, " ")
	if entry.Description == "" {
		return QuickEntry{}, errQuickEntry
	}
	return entry, nil
}

// FormatSummary renders a month summary as a chat message.
func FormatSummary(s core.MonthSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Riepilogo %02d/%d\n", s.Month, s.Year)
	fmt.Fprintf(&b, "Entrate: %s\n", core.FormatEuros(s.TotalIncomes))
	fmt.Fprintf(&b, "Uscite: %s\n", core.FormatEuros(s.TotalExpenses))
	fmt.Fprintf(&b, "Saldo del mese: %s\n", core.FormatEuros(s.Net))
	fmt.Fprintf(&b, "Saldo conti: %s", core.FormatEuros(s.BankTotal))
	if len(s.ExpensesByCategory) > 0 {
		b.WriteString("\n\nSpese per categoria:")
		for _, c := range s.ExpensesByCategory {
			fmt.Fprintf(&b, "\n- %s: %s", c.Name, core.FormatEuros(c.Amount))
		}
	}
	return b.String()
}
