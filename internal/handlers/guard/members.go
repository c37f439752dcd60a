package guard

import (
	"context"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/db"
)

const (
	joinDebounce     = time.Minute
	clearedCacheTTL  = time.Hour
	welcomeNamePlace = "{name}"
)

// handleChatMember registers users that went from outside the chat to a
// member status.
func (g *Guard) handleChatMember(ctx context.Context, update *api.ChatMemberUpdated) error {
	if !isGroup(&update.Chat) || update.NewChatMember.User == nil {
		return nil
	}
	old, next := update.OldChatMember, update.NewChatMember
	joined := (old.HasLeft() || old.WasKicked()) && (next.Status == "member" || next.Status == "restricted")
	if !joined {
		return nil
	}
	return g.handleJoins(ctx, &update.Chat, 0, []api.User{*next.User})
}

// handleJoins runs the arrival flow once per member within joinDebounce, as
// Telegram may report one join both as a service message and a chat_member
// update.
func (g *Guard) handleJoins(ctx context.Context, chat *api.Chat, threadID int, users []api.User) error {
	var settings *db.Settings
	for i := range users {
		user := &users[i]
		if user.IsBot {
			continue
		}
		key := memberKey{chatID: chat.ID, userID: user.ID}
		if g.joins.Contains(key) {
			continue
		}
		g.joins.Add(key, struct{}{})
		g.cleared.Remove(key)

		now := g.now()
		if err := g.deps.Store.RegisterMember(ctx, chat.ID, user.ID, now); err != nil {
			return errors.WithMessage(err, "cant register member")
		}
		if settings == nil {
			var err error
			if settings, err = g.deps.Settings.GetSettings(ctx, chat.ID); err != nil {
				return errors.WithMessage(err, "cant get settings")
			}
		}
		if !settings.Enabled {
			continue
		}
		if settings.AntiRaid {
			g.quarantine(ctx, chat.ID, user, now)
		}
		if settings.Welcome != "" {
			g.welcome(ctx, chat.ID, threadID, user, settings.Welcome)
		}
	}
	return nil
}

func (g *Guard) quarantine(ctx context.Context, chatID int64, user *api.User, now time.Time) {
	period := g.deps.Config.QuarantinePeriod
	if period <= 0 {
		return
	}
	entry := g.getLogEntry().WithField("chat_id", chatID).WithField("user_id", user.ID)
	if err := g.deps.Restrictor.RestrictUser(ctx, chatID, user.ID, now.Add(period)); err != nil {
		entry.WithField("error", err.Error()).Warn("cant quarantine new member")
		return
	}
	g.audit(ctx, &db.ModerationLog{
		ChatID:   chatID,
		UserID:   user.ID,
		Username: bot.GetUN(user),
		Action:   db.ActionQuarantined,
	})
	entry.Info("new member muted by anti-raid")
}

func (g *Guard) welcome(ctx context.Context, chatID int64, threadID int, user *api.User, template string) {
	text := strings.ReplaceAll(template, welcomeNamePlace, userLabel(bot.GetUN(user), user.ID))
	ref, err := g.deps.Sender.SendMessage(ctx, chatID, threadID, text)
	if err != nil {
		g.getLogEntry().WithField("chat_id", chatID).WithField("error", err.Error()).Warn("cant send welcome")
		return
	}
	if ttl := g.deps.Config.WelcomeTTL; ttl > 0 {
		g.deps.Cleanup.ScheduleDelete(ref, ttl)
	}
}

// inQuarantine reports whether the user joined within the quarantine
// period. Unknown joins and lookup failures count as settled members.
func (g *Guard) inQuarantine(ctx context.Context, chatID, userID int64) bool {
	period := g.deps.Config.QuarantinePeriod
	if period <= 0 {
		return false
	}
	key := memberKey{chatID: chatID, userID: userID}
	if g.cleared.Contains(key) {
		return false
	}
	joinedAt, err := g.deps.Store.GetMemberJoin(ctx, chatID, userID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		g.cleared.Add(key, struct{}{})
		return false
	case err != nil:
		g.getLogEntry().WithField("chat_id", chatID).WithField("error", err.Error()).Warn("cant get member join")
		return false
	}
	if g.now().Sub(joinedAt) < period {
		return true
	}
	g.cleared.Add(key, struct{}{})
	return false
}
