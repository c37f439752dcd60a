package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/iamwavecut/ngguard/internal/db"
)

func (s *sqliteClient) AppendModerationLog(ctx context.Context, entry *db.ModerationLog) error {
	if entry.CreatedAt == 0 {
		entry.CreatedAt = time.Now().Unix()
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO moderation_log (incident_id, chat_id, user_id, username, action, reason,
			strike_count, moderator_id, created_at)
		VALUES (:incident_id, :chat_id, :user_id, :username, :action, :reason,
			:strike_count, :moderator_id, :created_at)
	`
	res, err := s.db.NamedExecContext(ctx, query, entry)
	if err != nil {
		return fmt.Errorf("failed to append moderation log: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

func (s *sqliteClient) GetModerationLog(ctx context.Context, chatID int64, limit int) ([]db.ModerationLog, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entries := make([]db.ModerationLog, 0, limit)
	err := s.db.SelectContext(ctx, &entries, `
		SELECT id, incident_id, chat_id, user_id, username, action, reason,
			strike_count, moderator_id, created_at
		FROM moderation_log
		WHERE chat_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get moderation log for chat %d: %w", chatID, err)
	}
	return entries, nil
}

func (s *sqliteClient) CountActionsSince(ctx context.Context, chatID int64, since time.Time) ([]db.ActionCount, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	counts := make([]db.ActionCount, 0)
	err := s.db.SelectContext(ctx, &counts, `
		SELECT action, COUNT(*) AS count
		FROM moderation_log
		WHERE chat_id = ? AND created_at >= ?
		GROUP BY action
		ORDER BY count DESC, action`, chatID, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to count actions for chat %d: %w", chatID, err)
	}
	return counts, nil
}

// TopViolators ranks users by automatic enforcements; moderator actions
// such as forgiveness are not counted.
func (s *sqliteClient) TopViolators(ctx context.Context, chatID int64, since time.Time, limit int) ([]db.ViolatorStat, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	stats := make([]db.ViolatorStat, 0, limit)
	err := s.db.SelectContext(ctx, &stats, `
		SELECT user_id, MAX(username) AS username, COUNT(*) AS violations
		FROM moderation_log
		WHERE chat_id = ? AND created_at >= ? AND moderator_id = 0
		GROUP BY user_id
		ORDER BY violations DESC, user_id
		LIMIT ?`, chatID, since.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top violators for chat %d: %w", chatID, err)
	}
	return stats, nil
}
