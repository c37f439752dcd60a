package notify

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/moderation"
)

type (
	Sender interface {
		SendMessage(ctx context.Context, chatID int64, threadID int, text string) (moderation.MessageRef, error)
	}

	Destination struct {
		ChatID   int64
		ThreadID int
	}

	// Sink delivers notices once. Delivery failures are logged and
	// reported through the boolean so callers can skip cleanup.
	Sink struct {
		sender Sender
	}
)

func NewSink(sender Sender) *Sink {
	return &Sink{sender: sender}
}

func (s *Sink) Notify(ctx context.Context, dest Destination, text string) (moderation.MessageRef, bool) {
	entry := log.WithField("object", "Sink").WithField("chat_id", dest.ChatID)
	if dest.ChatID == 0 || text == "" {
		entry.Debug("nothing to notify")
		return moderation.MessageRef{}, false
	}

	ref, err := s.sender.SendMessage(ctx, dest.ChatID, dest.ThreadID, text)
	if err != nil {
		entry.WithField("error", err.Error()).Warn("notification not delivered")
		return moderation.MessageRef{}, false
	}
	return ref, true
}
