package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/northhybrid/norte/internal/intent"
	"github.com/northhybrid/norte/internal/memory"
	"github.com/northhybrid/norte/internal/store"
)

func TestProfileBlockSkipsEmptyFields(t *testing.T) {
	block := ProfileBlock(memory.Profile{Name: "Aritz", Injuries: "rodilla derecha"})
	if !strings.Contains(block, "- nombre: Aritz") {
		t.Fatalf("missing name line: %s", block)
	}
	if !strings.Contains(block, "- lesiones/limitaciones: rodilla derecha") {
		t.Fatalf("missing injuries line: %s", block)
	}
	if strings.Contains(block, "objetivo") {
		t.Fatalf("empty field must be skipped: %s", block)
	}

	if ProfileBlock(memory.Profile{}) != "" {
		t.Fatal("empty profile must produce no block")
	}
}

func TestSessionBlock(t *testing.T) {
	block := SessionBlock(memory.Session{Topic: "planificación", UpdatedAt: "2026-08-30T09:00:00Z"})
	if !strings.Contains(block, "- tema_actual: planificación") {
		t.Fatalf("missing topic: %s", block)
	}
	if SessionBlock(memory.Session{}) != "" {
		t.Fatal("empty session must produce no block")
	}
}

func TestPRFactBlock(t *testing.T) {
	weight := 130.0
	block := PRFactBlock("back squat / sentadilla", &store.TrainingEntry{Exercise: "sentadilla", Weight: &weight})
	if !strings.Contains(block, "- mejor_peso_kg: 130") {
		t.Fatalf("missing weight: %s", block)
	}

	empty := PRFactBlock("deadlift / peso muerto", nil)
	if !strings.Contains(empty, "SIN_REGISTRO") {
		t.Fatalf("expected SIN_REGISTRO without data: %s", empty)
	}
}

func TestRunsFactBlockFormatsPace(t *testing.T) {
	seconds := 1650
	km := 5.0
	runs := []store.TrainingEntry{{
		Exercise:    "carrera",
		TimeSeconds: &seconds,
		DistanceKM:  &km,
		CreatedAt:   time.Date(2026, time.August, 5, 10, 0, 0, 0, time.UTC),
	}}

	block := RunsFactBlock(runs)
	if !strings.Contains(block, "5km · 27:30 · 5:30/km") {
		t.Fatalf("expected formatted run row, got %s", block)
	}
	if !strings.Contains(block, "5 ago") {
		t.Fatalf("expected spanish short date, got %s", block)
	}

	if !strings.Contains(RunsFactBlock(nil), "SIN_REGISTROS") {
		t.Fatal("expected SIN_REGISTROS without runs")
	}
}

func TestTrainingBlockSummarizesBestWeights(t *testing.T) {
	weights := []float64{100, 120, 80}
	now := time.Now()
	entries := []store.TrainingEntry{
		{Exercise: "sentadilla", Weight: &weights[1], CreatedAt: now},
		{Exercise: "sentadilla", Weight: &weights[0], CreatedAt: now.Add(-24 * time.Hour)},
		{Exercise: "press banca", Weight: &weights[2], CreatedAt: now},
	}

	block := TrainingBlock(entries, 60, 10)
	if !strings.Contains(block, "RESUMEN_ENTRENAMIENTO_60D:") {
		t.Fatalf("missing lookback header: %s", block)
	}
	if !strings.Contains(block, "- sesiones registradas: 3") {
		t.Fatalf("missing session count: %s", block)
	}
	if !strings.Contains(block, "sentadilla: 120kg (mejor registro") {
		t.Fatalf("expected best squat weight, got %s", block)
	}
	squatIdx := strings.Index(block, "sentadilla: 120kg")
	benchIdx := strings.Index(block, "press banca: 80kg")
	if benchIdx < squatIdx {
		t.Fatal("best weights must be ordered heaviest first")
	}

	if TrainingBlock(nil, 60, 10) != "" {
		t.Fatal("no entries must produce no block")
	}
}

func TestTrainingBlockCapsRecentItems(t *testing.T) {
	entries := make([]store.TrainingEntry, 12)
	for i := range entries {
		entries[i] = store.TrainingEntry{Exercise: "remo", CreatedAt: time.Now()}
	}
	block := TrainingBlock(entries, 60, 10)
	if got := strings.Count(block, "- remo ·"); got > 0 {
		t.Fatalf("unexpected row format: %s", block)
	}
	if got := strings.Count(block, ": remo ·"); got != 10 {
		t.Fatalf("expected 10 recent rows, got %d", got)
	}
}

func TestMentalStateOrderAndFallback(t *testing.T) {
	state := MentalState(MentalStateInput{
		Intent:   intent.PRLookup,
		Profile:  "PERFIL_USUARIO:\n- nombre: Aritz\nFIN_PERFIL",
		Facts:    "FACT_PR:\n- mejor_peso_kg: 130\nFIN_FACT_PR",
		Training: "DATOS_ENTRENAMIENTO:\n- sesiones registradas: 3\nFIN_DATOS",
	})

	if !strings.Contains(state, "INTENCION_MENSAJE:\n- pr_lookup") {
		t.Fatalf("missing intent line: %s", state)
	}
	profileIdx := strings.Index(state, "PERFIL_USUARIO")
	factsIdx := strings.Index(state, "FACT_PR")
	trainingIdx := strings.Index(state, "DATOS_ENTRENAMIENTO")
	if !(profileIdx < factsIdx && factsIdx < trainingIdx) {
		t.Fatal("blocks out of order")
	}

	empty := MentalState(MentalStateInput{Intent: intent.GeneralChat})
	if !strings.Contains(empty, "HECHOS_REALES:\nSIN_DATOS") {
		t.Fatalf("expected SIN_DATOS fallback, got %s", empty)
	}
}
