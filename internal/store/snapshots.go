package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ProgressSnapshot struct {
	ID          string
	UserID      string
	PeriodStart string
	PeriodEnd   string
	Summary     string
	CreatedAt   time.Time
}

// InsertProgressSnapshot appends a generated report to the audit trail.
func (s *Store) InsertProgressSnapshot(ctx context.Context, userID, periodStart, periodEnd, summary string) (ProgressSnapshot, error) {
	snapshot := ProgressSnapshot{
		ID:          uuid.NewString(),
		UserID:      userID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Summary:     summary,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := s.db.ExecContext(
		ctx,
		`INSERT INTO progress_snapshots (id, user_id, period_start, period_end, summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snapshot.ID, snapshot.UserID, snapshot.PeriodStart, snapshot.PeriodEnd, snapshot.Summary, formatTime(snapshot.CreatedAt),
	); err != nil {
		return ProgressSnapshot{}, fmt.Errorf("insert progress snapshot: %w", err)
	}
	return snapshot, nil
}

func (s *Store) ListProgressSnapshots(ctx context.Context, userID string, limit int) ([]ProgressSnapshot, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, user_id, period_start, period_end, summary, created_at
		 FROM progress_snapshots
		 WHERE user_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list progress snapshots: %w", err)
	}
	defer rows.Close()

	var items []ProgressSnapshot
	for rows.Next() {
		var snapshot ProgressSnapshot
		var createdAt string
		if err := rows.Scan(&snapshot.ID, &snapshot.UserID, &snapshot.PeriodStart, &snapshot.PeriodEnd, &snapshot.Summary, &createdAt); err != nil {
			return nil, fmt.Errorf("scan progress snapshot: %w", err)
		}
		snapshot.CreatedAt = parseTime(createdAt)
		items = append(items, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress snapshots: %w", err)
	}
	return items, nil
}

// ListUsersWithEntriesSince returns users who logged training after the
// cutoff, for periodic report dispatch.
func (s *Store) ListUsersWithEntriesSince(ctx context.Context, cutoff time.Time) ([]User, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT DISTINCT u.id, u.telegram_id, u.name, u.created_at
		 FROM users u
		 INNER JOIN training_logs t ON t.user_id = u.id
		 WHERE t.created_at >= ?`,
		formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("list users with entries: %w", err)
	}
	defer rows.Close()

	var items []User
	for rows.Next() {
		var user User
		var createdAt string
		if err := rows.Scan(&user.ID, &user.TelegramID, &user.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		user.CreatedAt = parseTime(createdAt)
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}
