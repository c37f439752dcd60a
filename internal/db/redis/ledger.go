package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/iamwavecut/ngguard/internal/db"
)

const defaultPrefix = "ngguard/"

var _ db.StrikeLedger = (*Ledger)(nil)

// Ledger keeps one hash per chat mapping user id to strike count, plus a
// sibling hash with the unix time of the last violation.
type Ledger struct {
	Client *redis.Client
	prefix string
}

func NewLedger(ctx context.Context, redisURL string) (*Ledger, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return &Ledger{Client: rdb, prefix: defaultPrefix}, nil
}

// WithPrefix scopes every key of the ledger, mostly useful for tests sharing a server.
func (l *Ledger) WithPrefix(prefix string) *Ledger {
	return &Ledger{Client: l.Client, prefix: prefix}
}

func (l *Ledger) Close() error {
	return l.Client.Close()
}

func (l *Ledger) countsKey(chatID int64) string {
	return fmt.Sprintf("%sstrikes/%d", l.prefix, chatID)
}

func (l *Ledger) lastKey(chatID int64) string {
	return fmt.Sprintf("%sstrikes/%d/last", l.prefix, chatID)
}

func (l *Ledger) RecordViolation(ctx context.Context, userID, chatID int64) (int, error) {
	field := strconv.FormatInt(userID, 10)

	var incr *redis.IntCmd
	_, err := l.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, l.countsKey(chatID), field, 1)
		pipe.HSet(ctx, l.lastKey(chatID), field, time.Now().Unix())
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "record violation for user %d in chat %d", userID, chatID)
	}
	return int(incr.Val()), nil
}

func (l *Ledger) GetStrikes(ctx context.Context, userID, chatID int64) (int, error) {
	n, err := l.Client.HGet(ctx, l.countsKey(chatID), strconv.FormatInt(userID, 10)).Int()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, errors.Wrapf(err, "get strikes for user %d in chat %d", userID, chatID)
	}
	return n, nil
}

func (l *Ledger) Forgive(ctx context.Context, userID, chatID int64) (bool, error) {
	field := strconv.FormatInt(userID, 10)

	var del *redis.IntCmd
	_, err := l.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.HDel(ctx, l.countsKey(chatID), field)
		pipe.HDel(ctx, l.lastKey(chatID), field)
		return nil
	})
	if err != nil {
		return false, errors.Wrapf(err, "forgive user %d in chat %d", userID, chatID)
	}
	return del.Val() > 0, nil
}

func (l *Ledger) ResetStrikes(ctx context.Context, chatID int64) (int64, error) {
	var size *redis.IntCmd
	_, err := l.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		size = pipe.HLen(ctx, l.countsKey(chatID))
		pipe.Del(ctx, l.countsKey(chatID), l.lastKey(chatID))
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "reset strikes in chat %d", chatID)
	}
	return size.Val(), nil
}
