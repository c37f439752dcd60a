package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/iamwavecut/ngguard/internal/db"
)

// RegisterMember records a join, a rejoin restarts the record.
func (s *sqliteClient) RegisterMember(ctx context.Context, chatID, userID int64, joinedAt time.Time) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO new_members (chat_id, user_id, joined_at)
		VALUES (?, ?, ?)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET joined_at = excluded.joined_at`,
		chatID, userID, joinedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to register member %d in chat %d: %w", userID, chatID, err)
	}
	return nil
}

func (s *sqliteClient) GetMemberJoin(ctx context.Context, chatID, userID int64) (time.Time, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var joinedAt int64
	err := s.db.GetContext(ctx, &joinedAt, `
		SELECT joined_at FROM new_members WHERE chat_id = ? AND user_id = ?`, chatID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, db.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("failed to get join of member %d in chat %d: %w", userID, chatID, err)
	}
	return time.Unix(joinedAt, 0), nil
}
