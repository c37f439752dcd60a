package db

import "errors"

var ErrNotFound = errors.New("not found")

func DefaultSettings(chatID int64) *Settings {
	return &Settings{
		ID:            chatID,
		Enabled:       true,
		Language:      "en",
		ContentChecks: true,
		FloodChecks:   true,
		MuteThreshold: SettingsOverrideInherit,
		MuteDuration:  SettingsOverrideInherit,
	}
}
