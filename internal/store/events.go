package store

import (
	"context"
	"strings"
	"time"
)

type MarkUpdateProcessedInput struct {
	UpdateID       int64
	TelegramUserID string
	ChatID         string
	MessageID      int64
}

// MarkUpdateProcessed claims a webhook delivery by inserting its update id.
// The insert doubles as the dedup check: a uniqueness conflict means another
// delivery of the same update already claimed it, so the caller must skip all
// side effects. When the ledger table is unreachable the guard fails open:
// losing dedup is preferable to silently dropping messages.
func (s *Store) MarkUpdateProcessed(ctx context.Context, input MarkUpdateProcessedInput) (bool, error) {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO processed_updates (update_id, telegram_user_id, chat_id, message_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		input.UpdateID,
		nullIfEmpty(input.TelegramUserID),
		nullIfEmpty(input.ChatID),
		nullIfZeroInt64(input.MessageID),
		formatTime(time.Now()),
	)
	if err == nil {
		return true, nil
	}

	if isDuplicateClaim(err) {
		return false, nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "no such table") {
		return true, nil
	}
	return false, err
}

// isDuplicateClaim recognizes only uniqueness conflicts on the update
// id. Other constraint failures (NOT NULL, CHECK) are real errors and
// must not be mistaken for an already-processed delivery.
func isDuplicateClaim(err error) bool {
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") ||
		strings.Contains(message, "primary key constraint")
}

func nullIfZeroInt64(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
