package enforcer

import (
	"fmt"
	"time"

	"github.com/iamwavecut/ngguard/internal/i18n"
	"github.com/iamwavecut/ngguard/internal/moderation"
	"github.com/iamwavecut/ngguard/internal/moderation/notify"
)

type (
	// Action is a single platform side effect decided for a violation.
	// The set of variants is closed.
	Action interface {
		isAction()
	}

	DeleteAction struct {
		Message moderation.MessageRef
	}

	RestrictAction struct {
		ChatID int64
		UserID int64
		Until  time.Time
	}

	NotifyAction struct {
		Destination notify.Destination
		Text        string
		// TTL is how long the notice stays before it is cleaned up.
		TTL   time.Duration
		Admin bool
	}

	NoAction struct{}
)

func (DeleteAction) isAction()   {}
func (RestrictAction) isAction() {}
func (NotifyAction) isAction()   {}
func (NoAction) isAction()       {}

// Policy is the effective moderation policy of one chat.
type Policy struct {
	ContentChecks     bool
	FloodChecks       bool
	Strength          moderation.Strength
	MuteThreshold     int
	MuteDuration      time.Duration
	MuteOnEveryStrike bool
	NoticeTTL         time.Duration
	AdminAlertTTL     time.Duration
	AdminChatID       int64
	Language          string
	// Quarantined applies to members still inside their post-join window:
	// any link is a violation and flood limits use the strict strength.
	Quarantined bool
}

// Escalates reports whether a violation that brought the user to strikes
// must be answered with a mute.
func (p Policy) Escalates(strikes int) bool {
	threshold := p.MuteThreshold
	if threshold < 1 {
		threshold = 1
	}
	if p.MuteOnEveryStrike {
		return strikes >= threshold
	}
	return strikes == threshold
}

// Suppress is the first response to any violation.
func Suppress(ev moderation.Event) Action {
	if ev.MessageID == 0 {
		return NoAction{}
	}
	return DeleteAction{Message: moderation.MessageRef{ChatID: ev.ChatID, MessageID: ev.MessageID}}
}

// Decide maps a recorded violation to the actions that follow the delete.
// It has no side effects.
func Decide(ev moderation.Event, verdict moderation.Verdict, strikes int, policy Policy, now time.Time, incidentID string) []Action {
	if !verdict.Violation {
		return []Action{NoAction{}}
	}

	lang := policy.Language
	reason := ReasonText(verdict.Reason, lang)
	if !policy.Escalates(strikes) {
		return []Action{NotifyAction{
			Destination: notify.Destination{ChatID: ev.ChatID, ThreadID: ev.ThreadID},
			Text: fmt.Sprintf(
				i18n.Get("%s, your message was removed (%s). Strike %d of %d.", lang),
				displayName(ev), reason, strikes, policy.MuteThreshold,
			),
			TTL: policy.NoticeTTL,
		}}
	}

	until := now.Add(policy.MuteDuration)
	admin := notify.Destination{ChatID: policy.AdminChatID}
	if admin.ChatID == 0 {
		admin = notify.Destination{ChatID: ev.ChatID, ThreadID: ev.ThreadID}
	}
	chat := ev.ChatTitle
	if chat == "" {
		chat = fmt.Sprint(ev.ChatID)
	}
	return []Action{
		RestrictAction{ChatID: ev.ChatID, UserID: ev.UserID, Until: until},
		NotifyAction{
			Destination: admin,
			Text: fmt.Sprintf(
				i18n.Get("User %s (id %d) was muted in %s until %s.\nReason: %s\nStrikes: %d\nIncident: %s", lang),
				displayName(ev), ev.UserID, chat, until.UTC().Format(time.RFC822), reason, strikes, incidentID,
			),
			TTL:   policy.AdminAlertTTL,
			Admin: true,
		},
	}
}

func ReasonText(reason moderation.Reason, lang string) string {
	switch reason {
	case moderation.ReasonAbuse:
		return i18n.Get("abusive language", lang)
	case moderation.ReasonBypass:
		return i18n.Get("filter evasion", lang)
	case moderation.ReasonUnauthorizedLink:
		return i18n.Get("unauthorized link", lang)
	case moderation.ReasonFlood:
		return i18n.Get("flooding", lang)
	}
	return string(reason)
}

func displayName(ev moderation.Event) string {
	if ev.UserName != "" {
		return ev.UserName
	}
	return fmt.Sprintf("id%d", ev.UserID)
}
