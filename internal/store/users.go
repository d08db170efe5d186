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

var ErrInvalidTelegramID = errors.New("telegram id is required")

type User struct {
	ID         string
	TelegramID string
	Name       string
	CreatedAt  time.Time
}

// GetOrCreateUser resolves the stable user for an external Telegram identity,
// creating it on first contact. A non-empty name updates the display name of
// an existing user.
func (s *Store) GetOrCreateUser(ctx context.Context, telegramID, name string) (User, error) {
	telegramID = strings.TrimSpace(telegramID)
	if telegramID == "" {
		return User{}, ErrInvalidTelegramID
	}
	name = strings.TrimSpace(name)

	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, telegram_id, name, created_at FROM users WHERE telegram_id = ?`,
		telegramID,
	)
	var user User
	var createdAt string
	err := row.Scan(&user.ID, &user.TelegramID, &user.Name, &createdAt)
	if err == nil {
		user.CreatedAt = parseTime(createdAt)
		if name != "" && name != user.Name {
			if _, err := s.db.ExecContext(ctx, `UPDATE users SET name = ? WHERE id = ?`, name, user.ID); err != nil {
				return User{}, fmt.Errorf("update user name: %w", err)
			}
			user.Name = name
		}
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	if name == "" {
		name = "Usuario " + telegramID
	}
	now := time.Now().UTC()
	user = User{
		ID:         uuid.NewString(),
		TelegramID: telegramID,
		Name:       name,
		CreatedAt:  now,
	}
	if _, err := s.db.ExecContext(
		ctx,
		`INSERT INTO users (id, telegram_id, name, created_at) VALUES (?, ?, ?, ?)`,
		user.ID, user.TelegramID, user.Name, formatTime(now),
	); err != nil {
		// Concurrent first contact from two devices can race the insert.
		row := s.db.QueryRowContext(ctx, `SELECT id, telegram_id, name, created_at FROM users WHERE telegram_id = ?`, telegramID)
		var existing User
		var existingCreatedAt string
		if scanErr := row.Scan(&existing.ID, &existing.TelegramID, &existing.Name, &existingCreatedAt); scanErr == nil {
			existing.CreatedAt = parseTime(existingCreatedAt)
			return existing, nil
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}
