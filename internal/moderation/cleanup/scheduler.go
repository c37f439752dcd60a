package cleanup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/moderation"
)

const deleteTimeout = 10 * time.Second

type (
	Deleter interface {
		DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	}

	Recorder interface {
		RecordCleanup(result string)
	}

	// Scheduler deletes messages after a delay. Each scheduled deletion runs
	// on its own timer; Stop cancels whatever is still pending.
	Scheduler struct {
		deleter  Deleter
		recorder Recorder

		ctx     context.Context
		cancel  context.CancelFunc
		mu      sync.Mutex
		stopped bool
		wg      sync.WaitGroup
		pending atomic.Int64
	}
)

func NewScheduler(deleter Deleter, recorder Recorder) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		deleter:  deleter,
		recorder: recorder,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Scheduler) getLogEntry() *log.Entry {
	return log.WithField("object", "CleanupScheduler")
}

func (s *Scheduler) Start(context.Context) error {
	return nil
}

// Stop cancels pending deletions and waits for their goroutines to exit.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending reports deletions that have been scheduled but not finished.
func (s *Scheduler) Pending() int {
	return int(s.pending.Load())
}

// ScheduleDelete never blocks the caller.
func (s *Scheduler) ScheduleDelete(ref moderation.MessageRef, after time.Duration) {
	if ref.IsZero() {
		return
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	s.pending.Add(1)

	go func() {
		defer s.wg.Done()
		defer s.pending.Add(-1)

		timer := time.NewTimer(after)
		defer timer.Stop()
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
		}
		s.delete(ref)
	}()
}

func (s *Scheduler) delete(ref moderation.MessageRef) {
	ctx, cancel := context.WithTimeout(s.ctx, deleteTimeout)
	defer cancel()

	entry := s.getLogEntry().WithField("chat_id", ref.ChatID).WithField("message_id", ref.MessageID)
	err := s.deleter.DeleteMessage(ctx, ref.ChatID, ref.MessageID)
	switch {
	case err == nil:
		s.record("ok")
	case errors.Is(err, moderation.ErrMessageGone):
		entry.Debug("message already gone")
		s.record("gone")
	default:
		entry.WithField("error", err.Error()).Warn("scheduled delete failed")
		s.record("failed")
	}
}

func (s *Scheduler) record(result string) {
	if s.recorder != nil {
		s.recorder.RecordCleanup(result)
	}
}
