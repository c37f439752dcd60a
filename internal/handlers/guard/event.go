package guard

import (
	"time"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/moderation"
)

const (
	chatTypeGroup      = "group"
	chatTypeSupergroup = "supergroup"
)

func isGroup(chat *api.Chat) bool {
	return chat != nil && (chat.Type == chatTypeGroup || chat.Type == chatTypeSupergroup)
}

// NewEvent converts a group message into a moderation event. chat and user
// come from the update, not from msg.
func NewEvent(msg *api.Message, chat *api.Chat, user *api.User) moderation.Event {
	ev := moderation.Event{
		ChatID:       chat.ID,
		ChatTitle:    chat.Title,
		MessageID:    msg.MessageID,
		UserID:       user.ID,
		UserName:     bot.GetUN(user),
		Text:         bot.ExtractContentFromMessage(msg),
		MediaGroupID: msg.MediaGroupID,
		SentAt:       time.Unix(int64(msg.Date), 0),
	}
	if msg.EditDate > 0 {
		ev.SentAt = time.Unix(int64(msg.EditDate), 0)
	}
	ev.ThreadID = messageThread(msg)
	return ev
}

func messageThread(msg *api.Message) int {
	if msg.IsTopicMessage {
		return msg.MessageThreadID
	}
	return 0
}
