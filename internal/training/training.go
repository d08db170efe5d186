// Package training persists extracted workout entries and answers the
// factual queries about them (best lifts, recent runs, lookback data).
package training

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/northhybrid/norte/internal/intent"
	"github.com/northhybrid/norte/internal/llm"
	"github.com/northhybrid/norte/internal/store"
)

const runScanWindow = 60

type Config struct {
	DuplicateWindow time.Duration
	LookbackDays    int
	RecentRuns      int
}

type Service struct {
	store     *store.Store
	extractor llm.TrainingExtractor
	cfg       Config
	logger    *slog.Logger
}

func NewService(sqlStore *store.Store, extractor llm.TrainingExtractor, cfg Config, logger *slog.Logger) *Service {
	if cfg.DuplicateWindow <= 0 {
		cfg.DuplicateWindow = 30 * time.Minute
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 60
	}
	if cfg.RecentRuns <= 0 {
		cfg.RecentRuns = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: sqlStore, extractor: extractor, cfg: cfg, logger: logger.With("component", "training")}
}

// TrySaveFromMessage runs the background capture pipeline: the cheap
// syntactic gate first, then the raw-text dedup window, and only then
// the extractor model. Returns how many entries were stored.
func (s *Service) TrySaveFromMessage(ctx context.Context, userID, message string) (int, error) {
	raw := strings.TrimSpace(message)
	if raw == "" || !intent.LooksLikeTrainingLog(raw) {
		return 0, nil
	}

	duplicate, err := s.store.RecentlySavedSameRawText(ctx, userID, raw, s.cfg.DuplicateWindow)
	if err != nil {
		return 0, fmt.Errorf("check duplicate training: %w", err)
	}
	if duplicate {
		s.logger.Debug("skipping duplicate training message", "user_id", userID)
		return 0, nil
	}

	entries, err := s.extractAndStore(ctx, userID, raw)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Save stores a training message unconditionally and returns the stored
// entries. This is the explicit path (API, bot command), so the
// syntactic gate does not apply.
func (s *Service) Save(ctx context.Context, userID, message string) ([]store.TrainingEntry, error) {
	raw := strings.TrimSpace(message)
	if raw == "" {
		return nil, errors.New("empty training message")
	}
	return s.extractAndStore(ctx, userID, raw)
}

func (s *Service) extractAndStore(ctx context.Context, userID, raw string) ([]store.TrainingEntry, error) {
	items, err := s.extractor.ExtractTraining(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("extract training metrics: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	entries := make([]store.TrainingEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, store.TrainingEntry{
			UserID:      userID,
			RawText:     raw,
			Exercise:    item.Exercise,
			Sets:        item.Sets,
			Reps:        item.Reps,
			Weight:      item.Weight,
			TimeSeconds: item.TimeSeconds,
			DistanceKM:  item.DistanceKM,
		})
	}
	if err := s.store.InsertTrainingEntries(ctx, entries); err != nil {
		return nil, fmt.Errorf("insert training entries: %w", err)
	}
	return entries, nil
}

// Lookback returns the entries of the configured window, newest first.
func (s *Service) Lookback(ctx context.Context, userID string) ([]store.TrainingEntry, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -s.cfg.LookbackDays)
	entries, err := s.store.ListTrainingEntries(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load training lookback: %w", err)
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (s *Service) Range(ctx context.Context, userID string, start, end time.Time) ([]store.TrainingEntry, error) {
	return s.store.ListTrainingEntries(ctx, userID, start, end)
}

// BestLift returns the heaviest stored entry matching any of the LIKE
// patterns, or nil when nothing qualifies.
func (s *Service) BestLift(ctx context.Context, userID string, patterns []string) (*store.TrainingEntry, error) {
	entry, err := s.store.BestWeightForExercise(ctx, userID, patterns)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load best lift: %w", err)
	}
	return &entry, nil
}

// RecentRuns scans the latest entries and keeps the ones that look like
// running work: a matching exercise name or any distance/time metric.
func (s *Service) RecentRuns(ctx context.Context, userID string) ([]store.TrainingEntry, error) {
	entries, err := s.store.ListRecentTrainingEntries(ctx, userID, runScanWindow)
	if err != nil {
		return nil, fmt.Errorf("load recent entries: %w", err)
	}

	runs := make([]store.TrainingEntry, 0, s.cfg.RecentRuns)
	for _, entry := range entries {
		if !isRun(entry) {
			continue
		}
		runs = append(runs, entry)
		if len(runs) == s.cfg.RecentRuns {
			break
		}
	}
	return runs, nil
}

func (s *Service) HasAny(ctx context.Context, userID string) (bool, error) {
	return s.store.HasAnyTrainingEntries(ctx, userID)
}

func isRun(entry store.TrainingEntry) bool {
	name := strings.ToLower(entry.Exercise)
	if strings.Contains(name, "carrera") || strings.Contains(name, "run") {
		return true
	}
	return entry.DistanceKM != nil || entry.TimeSeconds != nil
}

// FormatPace renders seconds-per-km as "m:ss/km". A 5km run in 1650s
// comes out as "5:30/km".
func FormatPace(timeSeconds int, distanceKM float64) string {
	if timeSeconds <= 0 || distanceKM <= 0 {
		return ""
	}
	paceSec := int(float64(timeSeconds)/distanceKM + 0.5)
	return fmt.Sprintf("%d:%02d/km", paceSec/60, paceSec%60)
}

// FormatClock renders total seconds as "m:ss".
func FormatClock(totalSeconds int) string {
	if totalSeconds <= 0 {
		return ""
	}
	return fmt.Sprintf("%d:%02d", totalSeconds/60, totalSeconds%60)
}
