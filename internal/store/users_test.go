package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "norte_test.sqlite")
	sqlStore, err := New(dbPath)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = sqlStore.Close() })
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}
	return sqlStore
}

func TestGetOrCreateUser(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()

	created, err := sqlStore.GetOrCreateUser(ctx, "12345", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected user id")
	}
	if created.Name != "Usuario 12345" {
		t.Fatalf("unexpected default name: %s", created.Name)
	}

	loaded, err := sqlStore.GetOrCreateUser(ctx, "12345", "Aritz")
	if err != nil {
		t.Fatalf("lookup user: %v", err)
	}
	if loaded.ID != created.ID {
		t.Fatalf("expected stable user id, got %s and %s", created.ID, loaded.ID)
	}
	if loaded.Name != "Aritz" {
		t.Fatalf("expected updated name, got %s", loaded.Name)
	}
}

func TestGetOrCreateUserRequiresTelegramID(t *testing.T) {
	sqlStore := newTestStore(t)

	if _, err := sqlStore.GetOrCreateUser(context.Background(), "  ", ""); err != ErrInvalidTelegramID {
		t.Fatalf("expected ErrInvalidTelegramID, got %v", err)
	}
}
