package db

import (
	"context"
	"time"
)

// StrikeLedger is the durable per-(user, chat) violation counter.
// RecordViolation must be a single atomic increment on the backend.
type StrikeLedger interface {
	RecordViolation(ctx context.Context, userID, chatID int64) (int, error)
	GetStrikes(ctx context.Context, userID, chatID int64) (int, error)
	Forgive(ctx context.Context, userID, chatID int64) (bool, error)
	ResetStrikes(ctx context.Context, chatID int64) (int64, error)
}

type Client interface {
	Close() error

	GetSettings(ctx context.Context, chatID int64) (*Settings, error)
	SetSettings(ctx context.Context, settings *Settings) error

	GetCustomWords(ctx context.Context, chatID int64) ([]string, error)
	AddCustomWord(ctx context.Context, chatID int64, word string, addedBy int64) (bool, error)
	RemoveCustomWord(ctx context.Context, chatID int64, word string) (bool, error)

	AppendModerationLog(ctx context.Context, entry *ModerationLog) error
	GetModerationLog(ctx context.Context, chatID int64, limit int) ([]ModerationLog, error)
	CountActionsSince(ctx context.Context, chatID int64, since time.Time) ([]ActionCount, error)
	TopViolators(ctx context.Context, chatID int64, since time.Time, limit int) ([]ViolatorStat, error)

	RegisterMember(ctx context.Context, chatID, userID int64, joinedAt time.Time) error
	GetMemberJoin(ctx context.Context, chatID, userID int64) (time.Time, error)

	// WipeChat removes settings, custom words, join records and the audit log
	// of a chat.
	WipeChat(ctx context.Context, chatID int64) error
}
