package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/ngguard/internal/moderation"
)

// BotAPI is the subset of *api.BotAPI the operations need.
type BotAPI interface {
	Request(c api.Chattable) (*api.APIResponse, error)
	Send(c api.Chattable) (api.Message, error)
	GetChatMember(config api.GetChatMemberConfig) (api.ChatMember, error)
}

// Operations provides common Telegram bot operations
type Operations struct {
	bot BotAPI
}

// NewOperations creates a new Operations instance
func NewOperations(bot BotAPI) *Operations {
	return &Operations{bot: bot}
}

// DeleteMessage deletes a message from a chat
func (o *Operations) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := o.bot.Request(api.NewDeleteMessage(chatID, messageID)); err != nil {
		return mapError(err, "delete message")
	}
	return nil
}

// RestrictUser revokes every send permission of the user until the given time.
func (o *Operations) RestrictUser(ctx context.Context, chatID, userID int64, until time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	config := api.RestrictChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
		Permissions: &api.ChatPermissions{},
		UntilDate:   until.Unix(),

		UseIndependentChatPermissions: true,
	}
	if _, err := o.bot.Request(config); err != nil {
		return mapError(err, "restrict user")
	}
	return nil
}

// SendMessage posts plain text into a chat, inside a forum topic when threadID is set.
func (o *Operations) SendMessage(ctx context.Context, chatID int64, threadID int, text string) (moderation.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return moderation.MessageRef{}, err
	}
	msg := api.NewMessage(chatID, text)
	msg.MessageThreadID = threadID
	msg.DisableNotification = true
	msg.LinkPreviewOptions.IsDisabled = true
	return o.send(chatID, msg)
}

// Reply answers a message in place.
func (o *Operations) Reply(ctx context.Context, chatID int64, threadID, replyTo int, text string) (moderation.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return moderation.MessageRef{}, err
	}
	msg := api.NewMessage(chatID, text)
	msg.MessageThreadID = threadID
	msg.ReplyParameters.MessageID = replyTo
	msg.ReplyParameters.ChatID = chatID
	msg.ReplyParameters.AllowSendingWithoutReply = true
	msg.DisableNotification = true
	msg.LinkPreviewOptions.IsDisabled = true
	return o.send(chatID, msg)
}

func (o *Operations) send(chatID int64, msg api.MessageConfig) (moderation.MessageRef, error) {
	sent, err := o.bot.Send(msg)
	if err != nil {
		return moderation.MessageRef{}, mapError(err, "send message")
	}
	return moderation.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

// GetChatMember looks up the membership of a user in a chat
func (o *Operations) GetChatMember(ctx context.Context, chatID, userID int64) (*api.ChatMember, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	member, err := o.bot.GetChatMember(api.GetChatMemberConfig{
		ChatConfigWithUser: api.ChatConfigWithUser{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
	})
	if err != nil {
		return nil, mapError(err, "get chat member")
	}
	return &member, nil
}

func mapError(err error, operation string) error {
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "message to delete not found"),
		strings.Contains(text, "message_id_invalid"):
		return fmt.Errorf("failed to %s: %w: %w", operation, moderation.ErrMessageGone, err)
	// the message stays visible: no delete rights or older than 48h
	case strings.Contains(text, "message can't be deleted"),
		strings.Contains(text, "not enough rights"),
		strings.Contains(text, "chat_admin_required"),
		strings.Contains(text, "can't remove chat owner"),
		strings.Contains(text, "user is an administrator"):
		return fmt.Errorf("failed to %s: %w: %w", operation, moderation.ErrNoPrivileges, err)
	}
	return fmt.Errorf("failed to %s: %w", operation, err)
}

// IsBotRemovedError reports errors meaning the bot can no longer act in a chat.
func IsBotRemovedError(err error) bool {
	if err == nil {
		return false
	}
	errText := strings.ToLower(err.Error())
	return strings.Contains(errText, "forbidden") || strings.Contains(errText, "kicked") || strings.Contains(errText, "chat not found")
}
