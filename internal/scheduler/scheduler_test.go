package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/northhybrid/norte/internal/report"
	"github.com/northhybrid/norte/internal/store"
)

type fakeUsers struct {
	users []store.User
	err   error
}

func (f *fakeUsers) ListUsersWithEntriesSince(ctx context.Context, cutoff time.Time) ([]store.User, error) {
	return f.users, f.err
}

type fakeReports struct {
	err error
}

func (f *fakeReports) Weekly(ctx context.Context, telegramID string) (report.Report, error) {
	if f.err != nil {
		return report.Report{}, f.err
	}
	return report.Report{Summary: "Resumen últimos 7 días:\n- Sesiones registradas: 3", Sessions: 3}, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent map[int64]string
	err  error
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = map[int64]string{}
	}
	f.sent[chatID] = text
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRejectsBadCron(t *testing.T) {
	_, err := New(&fakeUsers{}, &fakeReports{}, &fakeSender{}, "not a cron", discardLogger())
	if err == nil {
		t.Fatal("expected parse error for invalid cron expression")
	}
}

func TestRunCycleSendsToEveryRecipient(t *testing.T) {
	users := &fakeUsers{users: []store.User{
		{ID: "u1", TelegramID: "100"},
		{ID: "u2", TelegramID: "200"},
	}}
	sender := &fakeSender{}
	service, err := New(users, &fakeReports{}, sender, "0 9 * * 1", discardLogger())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	service.RunCycle(context.Background())

	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 reports sent, got %d", len(sender.sent))
	}
	for _, text := range sender.sent {
		if !strings.Contains(text, "informe semanal") || !strings.Contains(text, "Sesiones registradas: 3") {
			t.Fatalf("unexpected report text: %q", text)
		}
	}
}

func TestRunCycleSkipsFailingUser(t *testing.T) {
	users := &fakeUsers{users: []store.User{
		{ID: "u1", TelegramID: "not-a-number"},
		{ID: "u2", TelegramID: "200"},
	}}
	sender := &fakeSender{}
	service, err := New(users, &fakeReports{}, sender, "0 9 * * 1", discardLogger())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	service.RunCycle(context.Background())

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 report despite bad recipient, got %d", len(sender.sent))
	}
	if _, ok := sender.sent[200]; !ok {
		t.Fatal("valid recipient must still get the report")
	}
}

func TestRunCycleToleratesListFailure(t *testing.T) {
	users := &fakeUsers{err: errors.New("db down")}
	sender := &fakeSender{}
	service, err := New(users, &fakeReports{}, sender, "0 9 * * 1", discardLogger())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	service.RunCycle(context.Background())
	if len(sender.sent) != 0 {
		t.Fatal("nothing should be sent when listing fails")
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	service, err := New(&fakeUsers{}, &fakeReports{}, &fakeSender{}, "0 9 * * 1", discardLogger())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}
