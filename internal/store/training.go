package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TrainingEntry is one structured workout data point. Optional metrics are
// pointers: nil means "not reported", never zero.
type TrainingEntry struct {
	ID          string
	UserID      string
	RawText     string
	Exercise    string
	Sets        *int
	Reps        *int
	Weight      *float64
	TimeSeconds *int
	DistanceKM  *float64
	CreatedAt   time.Time
}

// InsertTrainingEntries stores every entry extracted from one message.
// Entries are immutable once written; corrections are new entries.
func (s *Store) InsertTrainingEntries(ctx context.Context, entries []TrainingEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	for _, entry := range entries {
		id := entry.ID
		if strings.TrimSpace(id) == "" {
			id = uuid.NewString()
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO training_logs (id, user_id, raw_text, exercise, sets, reps, weight, time_seconds, distance_km, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, entry.UserID, entry.RawText, entry.Exercise,
			nullIfNilInt(entry.Sets), nullIfNilInt(entry.Reps), nullIfNilFloat(entry.Weight),
			nullIfNilInt(entry.TimeSeconds), nullIfNilFloat(entry.DistanceKM),
			now,
		); err != nil {
			return fmt.Errorf("insert training entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit training entries: %w", err)
	}
	return nil
}

// ListTrainingEntries returns entries in a date range, oldest first.
func (s *Store) ListTrainingEntries(ctx context.Context, userID string, start, end time.Time) ([]TrainingEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, user_id, raw_text, exercise, sets, reps, weight, time_seconds, distance_km, created_at
		 FROM training_logs
		 WHERE user_id = ? AND created_at >= ? AND created_at <= ?
		 ORDER BY created_at ASC`,
		userID, formatTime(start), formatTime(end),
	)
	if err != nil {
		return nil, fmt.Errorf("list training entries: %w", err)
	}
	defer rows.Close()
	return scanTrainingEntries(rows)
}

// ListRecentTrainingEntries returns the newest entries first.
func (s *Store) ListRecentTrainingEntries(ctx context.Context, userID string, limit int) ([]TrainingEntry, error) {
	if limit < 1 {
		limit = 60
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, user_id, raw_text, exercise, sets, reps, weight, time_seconds, distance_km, created_at
		 FROM training_logs
		 WHERE user_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent training entries: %w", err)
	}
	defer rows.Close()
	return scanTrainingEntries(rows)
}

// BestWeightForExercise resolves the heaviest entry among all name variants
// of an exercise family. Ties break on the most recent entry.
func (s *Store) BestWeightForExercise(ctx context.Context, userID string, patterns []string) (TrainingEntry, error) {
	if len(patterns) == 0 {
		return TrainingEntry{}, sql.ErrNoRows
	}
	clauses := make([]string, 0, len(patterns))
	args := []any{userID}
	for _, pattern := range patterns {
		clauses = append(clauses, "LOWER(exercise) LIKE ?")
		args = append(args, strings.ToLower(pattern))
	}
	query := fmt.Sprintf(
		`SELECT id, user_id, raw_text, exercise, sets, reps, weight, time_seconds, distance_km, created_at
		 FROM training_logs
		 WHERE user_id = ? AND weight IS NOT NULL AND (%s)
		 ORDER BY weight DESC, created_at DESC
		 LIMIT 1`,
		strings.Join(clauses, " OR "),
	)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return TrainingEntry{}, fmt.Errorf("query best weight: %w", err)
	}
	defer rows.Close()
	entries, err := scanTrainingEntries(rows)
	if err != nil {
		return TrainingEntry{}, err
	}
	if len(entries) == 0 {
		return TrainingEntry{}, sql.ErrNoRows
	}
	return entries[0], nil
}

func (s *Store) HasAnyTrainingEntries(ctx context.Context, userID string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id FROM training_logs WHERE user_id = ? LIMIT 1`, userID)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check training entries: %w", err)
	}
	return true, nil
}

// RecentlySavedSameRawText reports whether the exact same source text was
// already stored for this user within the duplicate window.
func (s *Store) RecentlySavedSameRawText(ctx context.Context, userID, rawText string, window time.Duration) (bool, error) {
	cutoff := formatTime(time.Now().Add(-window))
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id FROM training_logs
		 WHERE user_id = ? AND raw_text = ? AND created_at >= ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID, rawText, cutoff,
	)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check duplicate training text: %w", err)
	}
	return true, nil
}

func scanTrainingEntries(rows *sql.Rows) ([]TrainingEntry, error) {
	var items []TrainingEntry
	for rows.Next() {
		var entry TrainingEntry
		var createdAt string
		var sets, reps, timeSeconds sql.NullInt64
		var weight, distance sql.NullFloat64
		if err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.RawText, &entry.Exercise,
			&sets, &reps, &weight, &timeSeconds, &distance, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan training entry: %w", err)
		}
		entry.Sets = intPointer(sets)
		entry.Reps = intPointer(reps)
		entry.Weight = floatPointer(weight)
		entry.TimeSeconds = intPointer(timeSeconds)
		entry.DistanceKM = floatPointer(distance)
		entry.CreatedAt = parseTime(createdAt)
		items = append(items, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate training entries: %w", err)
	}
	return items, nil
}

func nullIfNilInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullIfNilFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func intPointer(value sql.NullInt64) *int {
	if !value.Valid {
		return nil
	}
	converted := int(value.Int64)
	return &converted
}

func floatPointer(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	converted := value.Float64
	return &converted
}
