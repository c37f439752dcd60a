package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/iamwavecut/ngguard/internal/moderation"
)

type stubSender struct {
	err   error
	calls int
}

func (s *stubSender) SendMessage(_ context.Context, chatID int64, _ int, _ string) (moderation.MessageRef, error) {
	s.calls++
	if s.err != nil {
		return moderation.MessageRef{}, s.err
	}
	return moderation.MessageRef{ChatID: chatID, MessageID: 100 + s.calls}, nil
}

func TestNotifyDelivers(t *testing.T) {
	t.Parallel()

	sender := &stubSender{}
	ref, ok := NewSink(sender).Notify(context.Background(), Destination{ChatID: -1}, "hello")
	if !ok || ref.ChatID != -1 || ref.MessageID != 101 {
		t.Fatalf("unexpected result %+v %v", ref, ok)
	}
}

func TestNotifyFailureIsSwallowedWithoutRetry(t *testing.T) {
	t.Parallel()

	sender := &stubSender{err: errors.New("forbidden")}
	ref, ok := NewSink(sender).Notify(context.Background(), Destination{ChatID: -1}, "hello")
	if ok || !ref.IsZero() {
		t.Fatalf("expected undelivered notice, got %+v %v", ref, ok)
	}
	if sender.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", sender.calls)
	}
}

func TestNotifySkipsEmptyDestination(t *testing.T) {
	t.Parallel()

	sender := &stubSender{}
	if _, ok := NewSink(sender).Notify(context.Background(), Destination{}, "hello"); ok {
		t.Fatalf("expected no delivery")
	}
	if sender.calls != 0 {
		t.Fatalf("sender called for empty destination")
	}
}
