package store

import (
	"context"
	"fmt"
	"testing"
)

func TestLoadRecentHistoryWindow(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()

	user, err := sqlStore.GetOrCreateUser(ctx, "100", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	for i := 0; i < 6; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		if err := sqlStore.AppendMessage(ctx, user.ID, role, fmt.Sprintf("mensaje %d", i)); err != nil {
			t.Fatalf("append message %d: %v", i, err)
		}
	}

	history, err := sqlStore.LoadRecentHistory(ctx, user.ID, 4)
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("expected bounded window of 4, got %d", len(history))
	}
	if history[0].Content != "mensaje 2" || history[3].Content != "mensaje 5" {
		t.Fatalf("expected chronological order of most recent turns, got %s .. %s", history[0].Content, history[3].Content)
	}
}

func TestClearHistoryLeavesProfileAndTraining(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()

	user, err := sqlStore.GetOrCreateUser(ctx, "200", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := sqlStore.AppendMessage(ctx, user.ID, "user", "hola"); err != nil {
		t.Fatalf("append message: %v", err)
	}
	if err := sqlStore.UpsertProfileJSON(ctx, user.ID, []byte(`{"goal":"hyrox"}`)); err != nil {
		t.Fatalf("upsert profile: %v", err)
	}
	weight := 100.0
	if err := sqlStore.InsertTrainingEntries(ctx, []TrainingEntry{{
		UserID:   user.ID,
		RawText:  "sentadilla 3x5 100kg",
		Exercise: "sentadilla",
		Weight:   &weight,
	}}); err != nil {
		t.Fatalf("insert training entry: %v", err)
	}

	if err := sqlStore.ClearHistory(ctx, user.ID); err != nil {
		t.Fatalf("clear history: %v", err)
	}

	history, err := sqlStore.LoadRecentHistory(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %d rows", len(history))
	}

	profileJSON, err := sqlStore.LoadProfileJSON(ctx, user.ID)
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if string(profileJSON) != `{"goal":"hyrox"}` {
		t.Fatalf("expected profile untouched, got %s", profileJSON)
	}

	hasEntries, err := sqlStore.HasAnyTrainingEntries(ctx, user.ID)
	if err != nil {
		t.Fatalf("check training entries: %v", err)
	}
	if !hasEntries {
		t.Fatal("expected training entries to survive history clear")
	}
}
