package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func (s *sqliteClient) GetCustomWords(ctx context.Context, chatID int64) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	words := make([]string, 0)
	if err := s.db.SelectContext(ctx, &words, `SELECT word FROM custom_words WHERE chat_id = ? ORDER BY word`, chatID); err != nil {
		return nil, fmt.Errorf("failed to get custom words for chat %d: %w", chatID, err)
	}
	return words, nil
}

// AddCustomWord reports false when the word was already banned in the chat.
func (s *sqliteClient) AddCustomWord(ctx context.Context, chatID int64, word string, addedBy int64) (bool, error) {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return false, nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO custom_words (chat_id, word, added_by, created_at)
		VALUES (?, ?, ?, ?)`, chatID, word, addedBy, time.Now().Unix())
	if err != nil {
		return false, fmt.Errorf("failed to add custom word in chat %d: %w", chatID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteClient) RemoveCustomWord(ctx context.Context, chatID int64, word string) (bool, error) {
	word = strings.ToLower(strings.TrimSpace(word))

	s.mutex.Lock()
	defer s.mutex.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM custom_words WHERE chat_id = ? AND word = ?`, chatID, word)
	if err != nil {
		return false, fmt.Errorf("failed to remove custom word in chat %d: %w", chatID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
