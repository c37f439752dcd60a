package guard

import (
	"strings"
	"time"

	"github.com/iamwavecut/ngguard/internal/config"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/i18n"
	"github.com/iamwavecut/ngguard/internal/moderation"
	"github.com/iamwavecut/ngguard/internal/moderation/enforcer"
)

const (
	// Telegram treats shorter or longer restrictions as permanent.
	minMuteDuration = 30 * time.Second
	maxMuteDuration = 366 * 24 * time.Hour

	defaultNoticeTTL     = 10 * time.Second
	defaultAdminAlertTTL = time.Hour
)

// ResolvePolicy overlays chat settings on the process defaults. Unset or
// invalid overrides inherit the default.
func ResolvePolicy(defaults config.Moderation, settings *db.Settings) enforcer.Policy {
	strength, _ := moderation.ParseStrength(defaults.Strength)
	p := enforcer.Policy{
		ContentChecks:     true,
		FloodChecks:       true,
		Strength:          strength,
		MuteThreshold:     defaults.MuteThreshold,
		MuteDuration:      defaults.MuteDuration,
		MuteOnEveryStrike: defaults.MuteOnEveryStrike,
		NoticeTTL:         defaults.NoticeTTL,
		AdminAlertTTL:     defaults.AdminAlertTTL,
		AdminChatID:       defaults.AdminChatID,
		Language:          i18n.DefaultLanguage,
	}
	if settings != nil {
		p.ContentChecks = settings.ContentChecks
		p.FloodChecks = settings.FloodChecks
		if s, ok := moderation.ParseStrength(settings.Strength); ok {
			p.Strength = s
		}
		if settings.MuteThreshold > 0 {
			p.MuteThreshold = settings.MuteThreshold
		}
		if settings.MuteDuration > 0 {
			p.MuteDuration = time.Duration(settings.MuteDuration) * time.Second
		}
		if settings.AdminChatID != 0 {
			p.AdminChatID = settings.AdminChatID
		}
		if i18n.IsSupported(settings.Language) {
			p.Language = strings.ToLower(settings.Language)
		}
	}
	return normalizePolicy(p)
}

func normalizePolicy(p enforcer.Policy) enforcer.Policy {
	if p.MuteThreshold < 1 {
		p.MuteThreshold = 1
	}
	switch {
	case p.MuteDuration < minMuteDuration:
		p.MuteDuration = minMuteDuration
	case p.MuteDuration > maxMuteDuration:
		p.MuteDuration = maxMuteDuration
	}
	if p.NoticeTTL <= 0 {
		p.NoticeTTL = defaultNoticeTTL
	}
	if p.AdminAlertTTL <= 0 {
		p.AdminAlertTTL = defaultAdminAlertTTL
	}
	return p
}
