package flood

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/iamwavecut/ngguard/internal/moderation"
)

const (
	Interval = 3 * time.Second

	defaultWindowTTL = 5 * time.Second
	defaultWindowCap = 10000
	defaultAlbumTTL  = 10 * time.Second
	defaultAlbumCap  = 5000
)

var capacities = map[moderation.Strength]int{
	moderation.StrengthLow:    8,
	moderation.StrengthMedium: 5,
	moderation.StrengthStrict: 3,
}

type (
	windowKey struct {
		chatID int64
		userID int64
	}

	albumKey struct {
		chatID  int64
		groupID string
	}

	Option func(*Detector)

	// Detector keeps a short timestamp window per (chat, user) and flags
	// bursts. Idle windows expire, so memory is bounded by active senders.
	Detector struct {
		mu        sync.Mutex
		windowTTL time.Duration
		albumTTL  time.Duration
		windows   *expirable.LRU[windowKey, []time.Time]
		albums    *expirable.LRU[albumKey, struct{}]
		now       func() time.Time
	}
)

func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

func WithWindowTTL(ttl time.Duration) Option {
	return func(d *Detector) { d.windowTTL = ttl }
}

func WithAlbumTTL(ttl time.Duration) Option {
	return func(d *Detector) { d.albumTTL = ttl }
}

func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		windowTTL: defaultWindowTTL,
		albumTTL:  defaultAlbumTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.windows = expirable.NewLRU[windowKey, []time.Time](defaultWindowCap, nil, d.windowTTL)
	d.albums = expirable.NewLRU[albumKey, struct{}](defaultAlbumCap, nil, d.albumTTL)
	return d
}

// Capacity is the number of messages a window holds for the given strength.
func Capacity(strength moderation.Strength) int {
	if n, ok := capacities[strength]; ok {
		return n
	}
	return capacities[moderation.StrengthMedium]
}

// Check registers the message and reports whether the sender is flooding.
// Only the first item of an album is registered.
func (d *Detector) Check(ev moderation.Event, strength moderation.Strength) (bool, moderation.Reason) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ev.MediaGroupID != "" {
		album := albumKey{chatID: ev.ChatID, groupID: ev.MediaGroupID}
		if _, seen := d.albums.Get(album); seen {
			return false, moderation.ReasonNone
		}
		d.albums.Add(album, struct{}{})
	}

	capacity := Capacity(strength)
	key := windowKey{chatID: ev.ChatID, userID: ev.UserID}
	prev, ok := d.windows.Get(key)
	if !ok {
		prev = nil
	}

	window := make([]time.Time, 0, capacity)
	if len(prev) >= capacity {
		prev = prev[len(prev)-capacity+1:]
	}
	window = append(window, prev...)
	window = append(window, d.now())
	d.windows.Add(key, window)

	if len(window) < capacity {
		return false, moderation.ReasonNone
	}
	if window[len(window)-1].Sub(window[0]) < Interval {
		return true, moderation.ReasonFlood
	}
	return false, moderation.ReasonNone
}

// Forget drops the window of a single sender.
func (d *Detector) Forget(chatID, userID int64) {
	d.windows.Remove(windowKey{chatID: chatID, userID: userID})
}
