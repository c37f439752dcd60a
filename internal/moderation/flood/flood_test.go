package flood

import (
	"sync"
	"testing"
	"time"

	"github.com/iamwavecut/ngguard/internal/moderation"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestDetector() (*Detector, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	return NewDetector(WithClock(clock.Now)), clock
}

func msg(chatID, userID int64) moderation.Event {
	return moderation.Event{ChatID: chatID, UserID: userID, Text: "hi"}
}

func TestBurstIsFlagged(t *testing.T) {
	t.Parallel()

	d, clock := newTestDetector()
	for i := 0; i < 4; i++ {
		if flagged, _ := d.Check(msg(1, 10), moderation.StrengthMedium); flagged {
			t.Fatalf("message %d flagged before window filled", i+1)
		}
		clock.Advance(500 * time.Millisecond)
	}
	flagged, reason := d.Check(msg(1, 10), moderation.StrengthMedium)
	if !flagged || reason != moderation.ReasonFlood {
		t.Fatalf("expected flood, got %v %q", flagged, reason)
	}
}

func TestSpreadOutMessagesPass(t *testing.T) {
	t.Parallel()

	d, clock := newTestDetector()
	for i := 0; i < 20; i++ {
		if flagged, _ := d.Check(msg(1, 10), moderation.StrengthMedium); flagged {
			t.Fatalf("message %d flagged", i+1)
		}
		clock.Advance(time.Second)
	}
}

func TestCapacityFollowsStrength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		strength moderation.Strength
		want     int
	}{
		{moderation.StrengthLow, 8},
		{moderation.StrengthMedium, 5},
		{moderation.StrengthStrict, 3},
		{moderation.Strength("bogus"), 5},
	}
	for _, tt := range tests {
		d, _ := newTestDetector()
		var firstFlag int
		for i := 1; i <= 10; i++ {
			if flagged, _ := d.Check(msg(1, 1), tt.strength); flagged {
				firstFlag = i
				break
			}
		}
		if firstFlag != tt.want {
			t.Fatalf("strength %q: first flag at %d, want %d", tt.strength, firstFlag, tt.want)
		}
		if Capacity(tt.strength) != tt.want {
			t.Fatalf("Capacity(%q) = %d, want %d", tt.strength, Capacity(tt.strength), tt.want)
		}
	}
}

func TestWindowsArePerChatAndUser(t *testing.T) {
	t.Parallel()

	d, _ := newTestDetector()
	senders := []moderation.Event{msg(1, 10), msg(1, 11), msg(2, 10)}
	for i := 0; i < 2; i++ {
		for _, ev := range senders {
			if flagged, _ := d.Check(ev, moderation.StrengthStrict); flagged {
				t.Fatalf("sender %d/%d flagged after %d messages", ev.ChatID, ev.UserID, i+1)
			}
		}
	}
	if flagged, _ := d.Check(msg(1, 10), moderation.StrengthStrict); !flagged {
		t.Fatalf("expected third message of one sender to be flagged")
	}
}

func TestAlbumRegistersOnce(t *testing.T) {
	t.Parallel()

	d, _ := newTestDetector()
	for i := 0; i < 10; i++ {
		ev := msg(1, 10)
		ev.MediaGroupID = "album-1"
		if flagged, _ := d.Check(ev, moderation.StrengthStrict); flagged {
			t.Fatalf("album item %d flagged", i+1)
		}
	}

	// the album occupies a single slot
	d.Check(msg(1, 10), moderation.StrengthStrict)
	if flagged, _ := d.Check(msg(1, 10), moderation.StrengthStrict); !flagged {
		t.Fatalf("expected album plus two messages to fill a strict window")
	}
}

func TestIdleWindowExpires(t *testing.T) {
	t.Parallel()

	d := NewDetector(WithWindowTTL(30 * time.Millisecond))
	for i := 0; i < 4; i++ {
		d.Check(msg(1, 10), moderation.StrengthMedium)
	}
	time.Sleep(80 * time.Millisecond)
	if flagged, _ := d.Check(msg(1, 10), moderation.StrengthMedium); flagged {
		t.Fatalf("expired window still counted")
	}
}

func TestForget(t *testing.T) {
	t.Parallel()

	d, _ := newTestDetector()
	d.Check(msg(1, 10), moderation.StrengthStrict)
	d.Check(msg(1, 10), moderation.StrengthStrict)
	d.Forget(1, 10)
	if flagged, _ := d.Check(msg(1, 10), moderation.StrengthStrict); flagged {
		t.Fatalf("forgotten window still counted")
	}
}
