package db

import "time"

// SettingsOverrideInherit marks a numeric chat override that falls back to
// the process-wide default.
const SettingsOverrideInherit = -1

type (
	// Settings is the per-chat configuration row. Empty Strength and -1
	// numeric overrides inherit the configured defaults.
	Settings struct {
		ID            int64  `db:"id"`
		Enabled       bool   `db:"enabled"`
		Language      string `db:"language"`
		Strength      string `db:"strength"`
		ContentChecks bool   `db:"content_checks"`
		FloodChecks   bool   `db:"flood_checks"`
		MuteThreshold int    `db:"mute_threshold"`
		// MuteDuration is in seconds.
		MuteDuration int64 `db:"mute_duration"`
		AdminChatID  int64 `db:"admin_chat_id"`
		AntiRaid     bool  `db:"anti_raid"`
		// Welcome is the greeting template, {name} is the new member.
		Welcome string `db:"welcome"`
	}

	StrikeRecord struct {
		UserID        int64 `db:"user_id"`
		ChatID        int64 `db:"chat_id"`
		StrikeCount   int   `db:"strike_count"`
		LastViolation int64 `db:"last_violation"`
	}

	ModerationLog struct {
		ID          int64  `db:"id"`
		IncidentID  string `db:"incident_id"`
		ChatID      int64  `db:"chat_id"`
		UserID      int64  `db:"user_id"`
		Username    string `db:"username"`
		Action      string `db:"action"`
		Reason      string `db:"reason"`
		StrikeCount int    `db:"strike_count"`
		ModeratorID int64  `db:"moderator_id"`
		CreatedAt   int64  `db:"created_at"`
	}

	ActionCount struct {
		Action string `db:"action"`
		Count  int    `db:"count"`
	}

	ViolatorStat struct {
		UserID     int64  `db:"user_id"`
		Username   string `db:"username"`
		Violations int    `db:"violations"`
	}
)

const (
	ActionDeleted      = "deleted"
	ActionWarned       = "warned"
	ActionMuted        = "muted"
	ActionForgiven     = "forgiven"
	ActionReset        = "reset"
	ActionLedgerFailed = "ledger_failed"
	ActionQuarantined  = "quarantined"
)

func (r StrikeRecord) LastViolationTime() time.Time {
	return time.Unix(r.LastViolation, 0)
}

func (l ModerationLog) Time() time.Time {
	return time.Unix(l.CreatedAt, 0)
}
