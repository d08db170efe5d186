package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ChatMessage struct {
	ID        string
	UserID    string
	Role      string
	Content   string
	CreatedAt time.Time
}

func (s *Store) AppendMessage(ctx context.Context, userID, role, content string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO chat_messages (id, user_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), userID, role, content, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

// LoadRecentHistory returns the most recent turns in chronological order.
func (s *Store) LoadRecentHistory(ctx context.Context, userID string, limit int) ([]ChatMessage, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, user_id, role, content, created_at
		 FROM chat_messages
		 WHERE user_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var items []ChatMessage
	for rows.Next() {
		var message ChatMessage
		var createdAt string
		if err := rows.Scan(&message.ID, &message.UserID, &message.Role, &message.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		message.CreatedAt = parseTime(createdAt)
		items = append(items, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}

	for left, right := 0, len(items)-1; left < right; left, right = left+1, right-1 {
		items[left], items[right] = items[right], items[left]
	}
	return items, nil
}

// ClearHistory removes all chat messages for a user. Profile and training
// entries are deliberately left untouched.
func (s *Store) ClearHistory(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}
