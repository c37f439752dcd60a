package moderation

import (
	"errors"
	"strings"
	"time"
)

type (
	// Reason names the policy a message breached.
	Reason string

	Strength string

	// Verdict is produced per message and never persisted.
	Verdict struct {
		Violation bool
		Reason    Reason
		Match     string
	}

	// Event is an inbound group message parsed at the transport boundary.
	Event struct {
		ChatID       int64
		ChatTitle    string
		MessageID    int
		ThreadID     int
		UserID       int64
		UserName     string
		Text         string
		MediaGroupID string
		SentAt       time.Time
	}

	// MessageRef addresses a single message on the platform.
	MessageRef struct {
		ChatID    int64
		MessageID int
	}
)

const (
	ReasonNone             Reason = ""
	ReasonAbuse            Reason = "abuse"
	ReasonBypass           Reason = "bypass"
	ReasonUnauthorizedLink Reason = "unauthorized_link"
	ReasonFlood            Reason = "flood"

	StrengthLow    Strength = "low"
	StrengthMedium Strength = "medium"
	StrengthStrict Strength = "strict"
)

var (
	ErrMessageGone  = errors.New("message already gone")
	ErrNoPrivileges = errors.New("no privileges")
)

func Clean() Verdict {
	return Verdict{}
}

func Violation(reason Reason, match string) Verdict {
	return Verdict{Violation: true, Reason: reason, Match: match}
}

func ParseStrength(s string) (Strength, bool) {
	switch Strength(strings.ToLower(strings.TrimSpace(s))) {
	case StrengthLow:
		return StrengthLow, true
	case StrengthMedium:
		return StrengthMedium, true
	case StrengthStrict:
		return StrengthStrict, true
	}
	return StrengthMedium, false
}

func (r MessageRef) IsZero() bool {
	return r.MessageID == 0
}
