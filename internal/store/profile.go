package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LoadProfileJSON returns the stored profile document for a user, or an empty
// JSON object when the user has no profile row yet.
func (s *Store) LoadProfileJSON(ctx context.Context, userID string) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `SELECT profile_json FROM user_profile WHERE user_id = ?`, userID)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []byte(`{}`), nil
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return []byte(raw), nil
}

func (s *Store) UpsertProfileJSON(ctx context.Context, userID string, profileJSON []byte) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO user_profile (user_id, profile_json, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET profile_json = excluded.profile_json, updated_at = excluded.updated_at`,
		userID, string(profileJSON), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}
