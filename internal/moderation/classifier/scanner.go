package classifier

import (
	"context"
	"runtime"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/iamwavecut/ngguard/internal/moderation"
)

const (
	chatCacheSize = 1000
	chatCacheTTL  = 5 * time.Minute
)

// WordSource supplies per-chat banned words on top of the static lists.
type WordSource interface {
	GetCustomWords(ctx context.Context, chatID int64) ([]string, error)
}

// Scanner runs classification on a bounded pool so callers never do the
// CPU-bound matching on the intake goroutine.
type Scanner struct {
	base    *Classifier
	words   WordSource
	sem     *semaphore.Weighted
	perChat *expirable.LRU[int64, *Classifier]
}

func NewScanner(base *Classifier, words WordSource, workers int) *Scanner {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Scanner{
		base:    base,
		words:   words,
		sem:     semaphore.NewWeighted(int64(workers)),
		perChat: expirable.NewLRU[int64, *Classifier](chatCacheSize, nil, chatCacheTTL),
	}
}

// Scan classifies text with the chat's classifier. An error is returned only
// when ctx ends before a worker is free.
func (s *Scanner) Scan(ctx context.Context, chatID int64, content string) (moderation.Verdict, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return moderation.Clean(), errors.WithMessage(err, "scan slot")
	}
	defer s.sem.Release(1)

	return s.forChat(ctx, chatID).Classify(content), nil
}

// Invalidate drops the cached classifier of a chat after its words change.
func (s *Scanner) Invalidate(chatID int64) {
	s.perChat.Remove(chatID)
}

func (s *Scanner) forChat(ctx context.Context, chatID int64) *Classifier {
	if s.words == nil {
		return s.base
	}
	if c, ok := s.perChat.Get(chatID); ok {
		return c
	}

	entry := log.WithField("object", "Scanner").WithField("chat_id", chatID)
	words, err := s.words.GetCustomWords(ctx, chatID)
	if err != nil {
		entry.WithField("error", err.Error()).Warn("cant load custom words")
		return s.base
	}
	c, err := s.base.With(words)
	if err != nil {
		entry.WithField("error", err.Error()).Warn("cant compile custom words")
		c = s.base
	}
	s.perChat.Add(chatID, c)
	return c
}
