package permissions

import api "github.com/OvyFlash/telegram-bot-api"

// Level orders what a chat member may do with the guard.
type Level int

const (
	LevelMember Level = iota
	// LevelModerator may restrict members and is exempt from moderation.
	LevelModerator
	// LevelManager may also change chat-wide settings.
	LevelManager
)

func IsManager(member *api.ChatMember) bool {
	if member == nil {
		return false
	}
	if member.IsCreator() {
		return true
	}
	return member.IsAdministrator() && (member.CanManageChat || member.CanPromoteMembers)
}

func IsPrivilegedModerator(member *api.ChatMember) bool {
	if member == nil {
		return false
	}
	if IsManager(member) {
		return true
	}
	return member.IsAdministrator() && member.CanRestrictMembers
}

func LevelOf(member *api.ChatMember) Level {
	switch {
	case IsManager(member):
		return LevelManager
	case IsPrivilegedModerator(member):
		return LevelModerator
	}
	return LevelMember
}
