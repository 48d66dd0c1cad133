package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/sheets"
	"bilancio/internal/sheets/memory"
	"bilancio/internal/storage"
	"bilancio/internal/telegram"
)

func quietLogger() *log.Logger {
	return log.New(log.Config{Level: slog.LevelError, Output: io.Discard})
}

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(context.Background(), storage.DialectSQLite, filepath.Join(t.TempDir(), "worker.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustEvent(t *testing.T, typ string, payload any) *amqp.Event {
	t.Helper()
	ev, err := amqp.NewEvent(typ, payload)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	return ev
}

func TestMirrorSync(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	user, err := store.CreateUser(ctx, core.User{Name: "Mia", Email: "mia@example.com", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	cat, err := store.CreateCategory(ctx, core.Category{UserID: user.ID, Name: "Casa", Type: core.KindExpense})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	bank, err := store.CreateBank(ctx, core.Bank{UserID: user.ID, Name: "Conto", Balance: core.Money{Cents: 100}})
	if err != nil {
		t.Fatalf("create bank: %v", err)
	}
	d, _ := core.ParseDate("2024-03-05")
	rows, err := store.CreateExpenses(ctx, []core.Expense{
		{
			Transaction:       core.Transaction{UserID: user.ID, Description: "Affitto", Amount: core.Money{Cents: 80000}, Date: d, CategoryID: cat.ID, BankID: bank.ID},
			InstallmentNumber: 1, TotalInstallments: 1,
		},
		{
			Transaction:       core.Transaction{UserID: user.ID, Description: "Caffè", Amount: core.Money{Cents: 120}, Date: d},
			InstallmentNumber: 1, TotalInstallments: 1,
		},
	})
	if err != nil {
		t.Fatalf("create expenses: %v", err)
	}

	sheet := memory.New()
	w := New(nil, quietLogger(), WithMirror(NewMirror(store, sheet)))

	ev := mustEvent(t, amqp.TypeTransactionCreated, amqp.TransactionPayload{
		Kind: string(core.KindExpense), UserID: user.ID, IDs: []int64{rows[0].ID, 999999, rows[1].ID},
	})
	if err := w.Handle(ctx, ev); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got := sheet.Rows()
	if len(got) != 2 {
		t.Fatalf("expected 2 rows (missing id skipped), got %d", len(got))
	}
	first := got[0]
	if first.Description != "Affitto" || first.Category != "Casa" || first.Bank != "Conto" ||
		first.UserEmail != "mia@example.com" || first.Amount.Cents != 80000 || first.Kind != core.KindExpense {
		t.Fatalf("first row=%+v", first)
	}
	if got[1].Category != core.UncategorizedName || got[1].Bank != "" {
		t.Fatalf("second row=%+v", got[1])
	}
}

type flakySheet struct {
	*memory.Store
	failOn int
	calls  int
}

func (f *flakySheet) AppendRow(ctx context.Context, row sheets.Row) (string, error) {
	f.calls++
	if f.calls == f.failOn {
		return "", errors.New("quota exceeded")
	}
	return f.Store.AppendRow(ctx, row)
}

func TestMirrorRedeliveryAppendsOnce(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	user, err := store.CreateUser(ctx, core.User{Name: "Mia", Email: "mia@example.com", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	d, _ := core.ParseDate("2024-03-05")
	var plan []core.Expense
	for i := 1; i <= 3; i++ {
		plan = append(plan, core.Expense{
			Transaction:       core.Transaction{UserID: user.ID, Description: "Divano", Amount: core.Money{Cents: 10000}, Date: d.AddMonths(i - 1)},
			InstallmentGroup:  "g1",
			InstallmentNumber: i, TotalInstallments: 3,
		})
	}
	rows, err := store.CreateExpenses(ctx, plan)
	if err != nil {
		t.Fatalf("create expenses: %v", err)
	}
	ids := []int64{rows[0].ID, rows[1].ID, rows[2].ID}

	sheet := &flakySheet{Store: memory.New(), failOn: 2}
	m := NewMirror(store, sheet)
	p := amqp.TransactionPayload{Kind: string(core.KindExpense), UserID: user.ID, IDs: ids}

	if err := m.Sync(ctx, p); err == nil {
		t.Fatalf("expected the failing append to surface")
	}
	if got := len(sheet.Rows()); got != 1 {
		t.Fatalf("expected 1 row before the failure, got %d", got)
	}
	if err := m.Sync(ctx, p); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if got := len(sheet.Rows()); got != 3 {
		t.Fatalf("expected each installment mirrored once, got %d rows", got)
	}
}

func TestMirrorRejectsUnknownKind(t *testing.T) {
	m := NewMirror(openStore(t), memory.New())
	err := m.Sync(context.Background(), amqp.TransactionPayload{Kind: "transfer", UserID: 1, IDs: []int64{1}})
	if err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

type fakeBot struct {
	mu      sync.Mutex
	updates []telegram.Update
	err     error
}

func (b *fakeBot) HandleUpdate(_ context.Context, u telegram.Update) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, u)
	return b.err
}

func TestHandleRoutesEvents(t *testing.T) {
	ctx := context.Background()
	bot := &fakeBot{err: errors.New("send failed")}
	w := New(nil, quietLogger(), WithBot(bot))

	update := telegram.Update{UpdateID: 3, Message: &telegram.Message{Chat: telegram.Chat{ID: 9}, Text: "/saldo"}}
	if err := w.Handle(ctx, mustEvent(t, amqp.TypeTelegramUpdate, update)); err != nil {
		t.Fatalf("telegram update must be acknowledged even when the reply fails: %v", err)
	}
	if len(bot.updates) != 1 || bot.updates[0].Message.Chat.ID != 9 {
		t.Fatalf("updates=%+v", bot.updates)
	}

	for _, typ := range []string{amqp.TypeTransactionCreated, amqp.TypeTransactionDeleted, "something.else"} {
		ev := mustEvent(t, typ, amqp.TransactionPayload{Kind: "expense", UserID: 1, IDs: []int64{1}})
		if err := w.Handle(ctx, ev); err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
	}

	bad := &amqp.Event{ID: "x", Type: amqp.TypeTelegramUpdate, Payload: []byte(`"not an update"`)}
	if err := w.Handle(ctx, bad); err != nil {
		t.Fatalf("malformed events are dropped, got %v", err)
	}
}

type fakeSource struct {
	links     []core.TelegramLink
	failUser  int64
	requested []string
}

func (s *fakeSource) LinkedChats(context.Context) ([]core.TelegramLink, error) {
	return s.links, nil
}

func (s *fakeSource) MonthSummary(_ context.Context, userID int64, year, month int) (core.MonthSummary, error) {
	if userID == s.failUser {
		return core.MonthSummary{}, errors.New("db down")
	}
	s.requested = append(s.requested, time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Format("2006-01"))
	return core.MonthSummary{Year: year, Month: month, TotalIncomes: core.Money{Cents: 150000}}, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent map[int64]string
}

func (s *fakeSender) SendMessage(_ context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == nil {
		s.sent = map[int64]string{}
	}
	s.sent[chatID] = text
	return nil
}

func TestSendMonthly(t *testing.T) {
	source := &fakeSource{
		links: []core.TelegramLink{
			{UserID: 1, ChatID: 100},
			{UserID: 2, ChatID: 200},
			{UserID: 3, ChatID: 300},
		},
		failUser: 2,
	}
	sender := &fakeSender{}
	r, err := NewReporter(source, sender, "0 8 1 * *")
	if err != nil {
		t.Fatalf("new reporter: %v", err)
	}
	r.now = func() time.Time { return time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC) }

	err = r.SendMonthly(context.Background())
	if err == nil || !strings.Contains(err.Error(), "user 2") {
		t.Fatalf("expected failure for user 2, got %v", err)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sender.sent))
	}
	if !strings.Contains(sender.sent[100], "Riepilogo 12/2023") {
		t.Fatalf("message=%q", sender.sent[100])
	}
	for _, m := range source.requested {
		if m != "2023-12" {
			t.Fatalf("summary requested for %s", m)
		}
	}
}

func TestNewReporterRejectsBadSchedule(t *testing.T) {
	if _, err := NewReporter(&fakeSource{}, &fakeSender{}, "every monday"); err == nil {
		t.Fatalf("expected schedule parse error")
	}
}

func TestPreviousMonth(t *testing.T) {
	tests := []struct {
		now         time.Time
		year, month int
	}{
		{time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), 2023, 12},
		{time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC), 2024, 2},
		{time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC), 2024, 11},
	}
	for _, tc := range tests {
		y, m := previousMonth(tc.now)
		if y != tc.year || m != tc.month {
			t.Fatalf("previousMonth(%s)=%d-%d want %d-%d", tc.now, y, m, tc.year, tc.month)
		}
	}
}

type blockingConsumer struct {
	started chan struct{}
}

func (c *blockingConsumer) Consume(ctx context.Context, _ amqp.Handler) error {
	close(c.started)
	<-ctx.Done()
	return ctx.Err()
}

type failingConsumer struct{}

func (failingConsumer) Consume(context.Context, amqp.Handler) error {
	return errors.New("access refused")
}

func TestRunStopsOnCancel(t *testing.T) {
	consumer := &blockingConsumer{started: make(chan struct{})}
	r, err := NewReporter(&fakeSource{}, &fakeSender{}, "0 8 1 * *")
	if err != nil {
		t.Fatalf("new reporter: %v", err)
	}
	w := New(consumer, quietLogger(), WithReporter(r))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	<-consumer.started
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("worker did not stop")
	}
}

func TestRunReturnsConsumerFailure(t *testing.T) {
	r, err := NewReporter(&fakeSource{}, &fakeSender{}, "0 8 1 * *")
	if err != nil {
		t.Fatalf("new reporter: %v", err)
	}
	w := New(failingConsumer{}, quietLogger(), WithReporter(r))
	err = w.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "access refused") {
		t.Fatalf("expected consumer error, got %v", err)
	}
}
