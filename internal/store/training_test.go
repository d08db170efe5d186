package store

import (
	"context"
	"testing"
	"time"
)

func intOf(value int) *int           { return &value }
func floatOf(value float64) *float64 { return &value }

func TestBestWeightForExerciseVariants(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()

	user, err := sqlStore.GetOrCreateUser(ctx, "300", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	entries := []TrainingEntry{
		{UserID: user.ID, RawText: "back squat 3x5 120kg", Exercise: "back squat", Weight: floatOf(120)},
		{UserID: user.ID, RawText: "sentadilla 5x5 130kg", Exercise: "sentadilla", Weight: floatOf(130)},
		{UserID: user.ID, RawText: "deadlift 1x3 170kg", Exercise: "peso muerto", Weight: floatOf(170)},
		{UserID: user.ID, RawText: "sentadilla sin peso", Exercise: "sentadilla"},
	}
	if err := sqlStore.InsertTrainingEntries(ctx, entries); err != nil {
		t.Fatalf("insert training entries: %v", err)
	}

	best, err := sqlStore.BestWeightForExercise(ctx, user.ID, []string{"%back squat%", "%sentadilla%"})
	if err != nil {
		t.Fatalf("query best weight: %v", err)
	}
	if best.Weight == nil || *best.Weight != 130 {
		t.Fatalf("expected best weight 130 across variants, got %+v", best.Weight)
	}
	if best.Exercise != "sentadilla" {
		t.Fatalf("unexpected exercise: %s", best.Exercise)
	}
}

func TestBestWeightTieBreaksOnRecency(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()

	user, err := sqlStore.GetOrCreateUser(ctx, "301", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := sqlStore.InsertTrainingEntries(ctx, []TrainingEntry{
		{ID: "older", UserID: user.ID, RawText: "press banca 100kg", Exercise: "press banca", Weight: floatOf(100)},
	}); err != nil {
		t.Fatalf("insert older entry: %v", err)
	}
	if _, err := sqlStore.db.ExecContext(
		ctx,
		`UPDATE training_logs SET created_at = ? WHERE id = 'older'`,
		formatTime(time.Now().Add(-48*time.Hour)),
	); err != nil {
		t.Fatalf("backdate entry: %v", err)
	}
	if err := sqlStore.InsertTrainingEntries(ctx, []TrainingEntry{
		{ID: "newer", UserID: user.ID, RawText: "bench 100kg", Exercise: "bench press", Weight: floatOf(100)},
	}); err != nil {
		t.Fatalf("insert newer entry: %v", err)
	}

	best, err := sqlStore.BestWeightForExercise(ctx, user.ID, []string{"%press banca%", "%bench%"})
	if err != nil {
		t.Fatalf("query best weight: %v", err)
	}
	if best.ID != "newer" {
		t.Fatalf("expected tie to break on most recent entry, got %s", best.ID)
	}
}

func TestRecentlySavedSameRawText(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()

	user, err := sqlStore.GetOrCreateUser(ctx, "302", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	raw := "corrí 5km en 27:30"
	if err := sqlStore.InsertTrainingEntries(ctx, []TrainingEntry{{
		ID: "run-1", UserID: user.ID, RawText: raw, Exercise: "carrera",
		TimeSeconds: intOf(1650), DistanceKM: floatOf(5),
	}}); err != nil {
		t.Fatalf("insert entry: %v", err)
	}

	duplicate, err := sqlStore.RecentlySavedSameRawText(ctx, user.ID, raw, 30*time.Minute)
	if err != nil {
		t.Fatalf("check duplicate: %v", err)
	}
	if !duplicate {
		t.Fatal("expected duplicate within window")
	}

	different, err := sqlStore.RecentlySavedSameRawText(ctx, user.ID, "corrí 10km en 55:00", 30*time.Minute)
	if err != nil {
		t.Fatalf("check different text: %v", err)
	}
	if different {
		t.Fatal("different raw text must not count as duplicate")
	}

	// Entries older than the window no longer suppress re-logging.
	if _, err := sqlStore.db.ExecContext(
		ctx,
		`UPDATE training_logs SET created_at = ? WHERE id = 'run-1'`,
		formatTime(time.Now().Add(-45*time.Minute)),
	); err != nil {
		t.Fatalf("backdate entry: %v", err)
	}
	expired, err := sqlStore.RecentlySavedSameRawText(ctx, user.ID, raw, 30*time.Minute)
	if err != nil {
		t.Fatalf("check expired duplicate: %v", err)
	}
	if expired {
		t.Fatal("expected duplicate suppression to expire with the window")
	}
}

func TestListTrainingEntriesRange(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()

	user, err := sqlStore.GetOrCreateUser(ctx, "303", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := sqlStore.InsertTrainingEntries(ctx, []TrainingEntry{
		{ID: "a", UserID: user.ID, RawText: "remo 2000m", Exercise: "remo"},
		{ID: "b", UserID: user.ID, RawText: "wall balls 3x20", Exercise: "wall balls", Sets: intOf(3), Reps: intOf(20)},
	}); err != nil {
		t.Fatalf("insert entries: %v", err)
	}
	if _, err := sqlStore.db.ExecContext(
		ctx,
		`UPDATE training_logs SET created_at = ? WHERE id = 'a'`,
		formatTime(time.Now().Add(-90*24*time.Hour)),
	); err != nil {
		t.Fatalf("backdate entry: %v", err)
	}

	start := time.Now().Add(-60 * 24 * time.Hour)
	entries, err := sqlStore.ListTrainingEntries(ctx, user.ID, start, time.Now())
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "b" {
		t.Fatalf("expected only the in-range entry, got %d", len(entries))
	}
	if entries[0].Sets == nil || *entries[0].Sets != 3 {
		t.Fatalf("expected sets=3, got %+v", entries[0].Sets)
	}
}
