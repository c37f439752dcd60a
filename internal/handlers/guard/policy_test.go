package guard

import (
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/ngguard/internal/config"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/moderation"
)

func testDefaults() config.Moderation {
	return config.Moderation{
		Strength:          "medium",
		MuteThreshold:     3,
		MuteDuration:      time.Hour,
		MuteOnEveryStrike: true,
		NoticeTTL:         10 * time.Second,
		AdminAlertTTL:     time.Hour,
		AdminChatID:       -999,
	}
}

func TestResolvePolicy(t *testing.T) {
	t.Parallel()

	inherit := db.DefaultSettings(1)

	overridden := db.DefaultSettings(1)
	overridden.Strength = "strict"
	overridden.MuteThreshold = 5
	overridden.MuteDuration = 600
	overridden.AdminChatID = -555
	overridden.Language = "HI"
	overridden.FloodChecks = false

	invalid := db.DefaultSettings(1)
	invalid.Strength = "paranoid"
	invalid.MuteThreshold = 0
	invalid.MuteDuration = 0
	invalid.Language = "xx"

	tests := []struct {
		name      string
		settings  *db.Settings
		strength  moderation.Strength
		threshold int
		duration  time.Duration
		admin     int64
		lang      string
		flood     bool
	}{
		{name: "no settings", settings: nil, strength: moderation.StrengthMedium, threshold: 3, duration: time.Hour, admin: -999, lang: "en", flood: true},
		{name: "inherit", settings: inherit, strength: moderation.StrengthMedium, threshold: 3, duration: time.Hour, admin: -999, lang: "en", flood: true},
		{name: "overridden", settings: overridden, strength: moderation.StrengthStrict, threshold: 5, duration: 10 * time.Minute, admin: -555, lang: "hi", flood: false},
		{name: "invalid overrides inherit", settings: invalid, strength: moderation.StrengthMedium, threshold: 3, duration: time.Hour, admin: -999, lang: "en", flood: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := ResolvePolicy(testDefaults(), tt.settings)
			if p.Strength != tt.strength || p.MuteThreshold != tt.threshold || p.MuteDuration != tt.duration {
				t.Fatalf("unexpected escalation settings %+v", p)
			}
			if p.AdminChatID != tt.admin || p.Language != tt.lang || p.FloodChecks != tt.flood {
				t.Fatalf("unexpected policy %+v", p)
			}
			if !p.ContentChecks || !p.MuteOnEveryStrike {
				t.Fatalf("unexpected flags %+v", p)
			}
		})
	}
}

func TestResolvePolicyNormalizesDefaults(t *testing.T) {
	t.Parallel()

	p := ResolvePolicy(config.Moderation{Strength: "bogus", MuteDuration: time.Second}, nil)
	if p.Strength != moderation.StrengthMedium {
		t.Fatalf("unexpected strength %s", p.Strength)
	}
	if p.MuteThreshold != 1 {
		t.Fatalf("threshold not clamped: %d", p.MuteThreshold)
	}
	if p.MuteDuration != minMuteDuration {
		t.Fatalf("short mute not clamped: %s", p.MuteDuration)
	}
	if p.NoticeTTL != defaultNoticeTTL || p.AdminAlertTTL != defaultAdminAlertTTL {
		t.Fatalf("ttls not defaulted: %+v", p)
	}

	p = ResolvePolicy(config.Moderation{MuteThreshold: 2, MuteDuration: 1000 * 24 * time.Hour}, nil)
	if p.MuteDuration != maxMuteDuration {
		t.Fatalf("long mute not clamped: %s", p.MuteDuration)
	}
}

func TestNewEvent(t *testing.T) {
	t.Parallel()

	sent := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	msg := &api.Message{
		MessageID:    9,
		Date:         int(sent.Unix()),
		Caption:      "look",
		MediaGroupID: "album-1",
	}
	ev := NewEvent(msg, groupChat(), &api.User{ID: 4, FirstName: "Ada", LastName: "L"})
	if ev.UserName != "Ada L" || ev.Text != "look" || ev.MediaGroupID != "album-1" || ev.ThreadID != 0 {
		t.Fatalf("unexpected event %+v", ev)
	}
	if !ev.SentAt.Equal(sent) {
		t.Fatalf("unexpected timestamp %s", ev.SentAt)
	}
}
