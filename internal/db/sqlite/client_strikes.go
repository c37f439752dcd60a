package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RecordViolation increments the strike counter in a single upsert, so
// concurrent violations of the same user never lose an increment.
func (s *sqliteClient) RecordViolation(ctx context.Context, userID, chatID int64) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO strikes (user_id, chat_id, strike_count, last_violation)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(user_id, chat_id) DO UPDATE SET
		strike_count = strike_count + 1,
		last_violation = excluded.last_violation
		RETURNING strike_count
	`
	var count int
	if err := s.db.GetContext(ctx, &count, query, userID, chatID, time.Now().Unix()); err != nil {
		return 0, fmt.Errorf("failed to record violation for user %d in chat %d: %w", userID, chatID, err)
	}
	return count, nil
}

func (s *sqliteClient) GetStrikes(ctx context.Context, userID, chatID int64) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var count int
	err := s.db.GetContext(ctx, &count, `SELECT strike_count FROM strikes WHERE user_id = ? AND chat_id = ?`, userID, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get strikes for user %d in chat %d: %w", userID, chatID, err)
	}
	return count, nil
}

func (s *sqliteClient) Forgive(ctx context.Context, userID, chatID int64) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM strikes WHERE user_id = ? AND chat_id = ?`, userID, chatID)
	if err != nil {
		return false, fmt.Errorf("failed to forgive user %d in chat %d: %w", userID, chatID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteClient) ResetStrikes(ctx context.Context, chatID int64) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM strikes WHERE chat_id = ?`, chatID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset strikes in chat %d: %w", chatID, err)
	}
	return res.RowsAffected()
}
