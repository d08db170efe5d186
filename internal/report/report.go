// Package report builds the weekly and monthly training summaries and
// persists them as progress snapshots.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/northhybrid/norte/internal/store"
)

type Report struct {
	Summary   string   `json:"summary"`
	Sessions  int      `json:"sessions"`
	Exercises []string `json:"exercises"`
}

type Service struct {
	store  *store.Store
	logger *slog.Logger
}

func NewService(sqlStore *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: sqlStore, logger: logger.With("component", "report")}
}

// Weekly covers the last 7 days, starting at midnight.
func (s *Service) Weekly(ctx context.Context, telegramID string) (Report, error) {
	now := time.Now()
	start := now.AddDate(0, 0, -7)
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	return s.build(ctx, telegramID, start, now, "últimos 7 días")
}

// Monthly covers the current calendar month to date.
func (s *Service) Monthly(ctx context.Context, telegramID string) (Report, error) {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return s.build(ctx, telegramID, start, now, "este mes")
}

func (s *Service) build(ctx context.Context, telegramID string, start, end time.Time, periodLabel string) (Report, error) {
	user, err := s.store.GetOrCreateUser(ctx, telegramID, "")
	if err != nil {
		return Report{}, fmt.Errorf("resolve user: %w", err)
	}

	entries, err := s.store.ListTrainingEntries(ctx, user.ID, start, end)
	if err != nil {
		return Report{}, fmt.Errorf("load training entries: %w", err)
	}

	summary := GenerateSummary(entries, periodLabel)
	if _, err := s.store.InsertProgressSnapshot(ctx, user.ID, start.Format("2006-01-02"), end.Format("2006-01-02"), summary); err != nil {
		return Report{}, fmt.Errorf("save progress snapshot: %w", err)
	}

	return Report{
		Summary:   summary,
		Sessions:  len(entries),
		Exercises: uniqueExercises(entries),
	}, nil
}

// GenerateSummary renders the Spanish period summary: session count,
// total reps, lifted volume, distance, time and the five most frequent
// exercises. Zero totals are omitted.
func GenerateSummary(entries []store.TrainingEntry, periodLabel string) string {
	if len(entries) == 0 {
		return fmt.Sprintf("No hay registros de entrenamiento para %s.", periodLabel)
	}

	type exerciseStats struct {
		count int
	}
	stats := map[string]*exerciseStats{}
	order := []string{}
	totalReps := 0
	totalVolume := 0.0
	totalDistance := 0.0
	totalTime := 0

	for _, entry := range entries {
		name := entry.Exercise
		if name == "" {
			name = "sin nombre"
		}
		if _, seen := stats[name]; !seen {
			stats[name] = &exerciseStats{}
			order = append(order, name)
		}
		stats[name].count++

		sets := 1
		if entry.Sets != nil && *entry.Sets > 0 {
			sets = *entry.Sets
		}
		if entry.Reps != nil {
			totalReps += *entry.Reps * sets
		}
		if entry.Weight != nil {
			reps := 0
			if entry.Reps != nil {
				reps = *entry.Reps
			}
			totalVolume += float64(reps*sets) * *entry.Weight
		}
		if entry.DistanceKM != nil {
			totalDistance += *entry.DistanceKM
		}
		if entry.TimeSeconds != nil {
			totalTime += *entry.TimeSeconds
		}
	}

	lines := []string{
		fmt.Sprintf("Resumen %s:", periodLabel),
		fmt.Sprintf("- Sesiones registradas: %d", len(entries)),
		fmt.Sprintf("- Repeticiones totales: %d", totalReps),
	}
	if totalVolume > 0 {
		lines = append(lines, fmt.Sprintf("- Volumen total (kg): %d", int(math.Round(totalVolume))))
	}
	if totalDistance > 0 {
		lines = append(lines, fmt.Sprintf("- Distancia total: %.1f km", totalDistance))
	}
	if totalTime > 0 {
		lines = append(lines, fmt.Sprintf("- Tiempo total: %d min", int(math.Round(float64(totalTime)/60))))
	}

	sort.SliceStable(order, func(i, j int) bool {
		return stats[order[i]].count > stats[order[j]].count
	})
	if len(order) > 5 {
		order = order[:5]
	}
	lines = append(lines, "", "Ejercicios más frecuentes:")
	for _, name := range order {
		lines = append(lines, fmt.Sprintf("  • %s: %d sesiones", name, stats[name].count))
	}

	return strings.Join(lines, "\n")
}

func uniqueExercises(entries []store.TrainingEntry) []string {
	seen := map[string]bool{}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Exercise == "" || seen[entry.Exercise] {
			continue
		}
		seen[entry.Exercise] = true
		names = append(names, entry.Exercise)
	}
	return names
}
