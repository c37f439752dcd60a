package guard

import (
	"context"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/config"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/moderation"
	"github.com/iamwavecut/ngguard/internal/moderation/enforcer"
	"github.com/iamwavecut/ngguard/internal/policy/permissions"
)

const (
	memberCacheSize = 10000
	memberCacheTTL  = 5 * time.Minute
)

type (
	Settings interface {
		GetSettings(ctx context.Context, chatID int64) (*db.Settings, error)
		SetSettings(ctx context.Context, settings *db.Settings) error
		ForgetSettings(chatID int64)
	}

	Enforcer interface {
		Handle(ctx context.Context, ev moderation.Event, policy enforcer.Policy) *enforcer.Outcome
	}

	Members interface {
		GetChatMember(ctx context.Context, chatID, userID int64) (*api.ChatMember, error)
	}

	Replier interface {
		Reply(ctx context.Context, chatID int64, threadID, replyTo int, text string) (moderation.MessageRef, error)
	}

	Sender interface {
		SendMessage(ctx context.Context, chatID int64, threadID int, text string) (moderation.MessageRef, error)
	}

	Restrictor interface {
		RestrictUser(ctx context.Context, chatID, userID int64, until time.Time) error
	}

	Cleanup interface {
		ScheduleDelete(ref moderation.MessageRef, after time.Duration)
	}

	Store interface {
		GetCustomWords(ctx context.Context, chatID int64) ([]string, error)
		AddCustomWord(ctx context.Context, chatID int64, word string, addedBy int64) (bool, error)
		RemoveCustomWord(ctx context.Context, chatID int64, word string) (bool, error)
		AppendModerationLog(ctx context.Context, entry *db.ModerationLog) error
		GetModerationLog(ctx context.Context, chatID int64, limit int) ([]db.ModerationLog, error)
		CountActionsSince(ctx context.Context, chatID int64, since time.Time) ([]db.ActionCount, error)
		TopViolators(ctx context.Context, chatID int64, since time.Time, limit int) ([]db.ViolatorStat, error)
		WipeChat(ctx context.Context, chatID int64) error
		RegisterMember(ctx context.Context, chatID, userID int64, joinedAt time.Time) error
		GetMemberJoin(ctx context.Context, chatID, userID int64) (time.Time, error)
	}

	// WordCache drops cached per-chat classifiers.
	WordCache interface {
		Invalidate(chatID int64)
	}

	Deps struct {
		Settings   Settings
		Enforcer   Enforcer
		Members    Members
		Replier    Replier
		Sender     Sender
		Restrictor Restrictor
		Cleanup    Cleanup
		Ledger     db.StrikeLedger
		Store      Store
		Words      WordCache
		Config     config.Moderation
	}

	Guard struct {
		deps   Deps
		levels *expirable.LRU[memberKey, permissions.Level]
		// joins debounces arrivals reported twice.
		joins *expirable.LRU[memberKey, struct{}]
		// cleared holds members known to be past quarantine.
		cleared  *expirable.LRU[memberKey, struct{}]
		commands map[string]command
		now      func() time.Time
	}

	memberKey struct {
		chatID int64
		userID int64
	}
)

func New(deps Deps) *Guard {
	g := &Guard{
		deps:   deps,
		levels:  expirable.NewLRU[memberKey, permissions.Level](memberCacheSize, nil, memberCacheTTL),
		joins:   expirable.NewLRU[memberKey, struct{}](memberCacheSize, nil, joinDebounce),
		cleared: expirable.NewLRU[memberKey, struct{}](memberCacheSize, nil, clearedCacheTTL),
		now:     time.Now,
	}
	g.commands = g.registerCommands()
	return g
}

func (g *Guard) getLogEntry() *log.Entry {
	return log.WithField("object", "Guard")
}

func (g *Guard) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if u == nil {
		return true, nil
	}
	if u.MyChatMember != nil {
		return false, g.handleMyChatMember(ctx, u.MyChatMember)
	}
	if u.ChatMember != nil {
		return false, g.handleChatMember(ctx, u.ChatMember)
	}

	msg, edited := u.Message, false
	if msg == nil && u.EditedMessage != nil {
		msg, edited = u.EditedMessage, true
	}
	switch {
	case msg == nil, !isGroup(chat), user == nil:
		return true, nil
	case len(msg.NewChatMembers) > 0:
		return false, g.handleJoins(ctx, chat, messageThread(msg), msg.NewChatMembers)
	case user.IsBot, msg.SenderChat != nil:
		return true, nil
	}

	settings, err := g.deps.Settings.GetSettings(ctx, chat.ID)
	if err != nil {
		return true, errors.WithMessage(err, "cant get settings")
	}

	if !edited && msg.IsCommand() {
		handled, err := g.handleCommand(ctx, msg, chat, user, settings)
		if handled || err != nil {
			return false, err
		}
	}

	if !settings.Enabled {
		return true, nil
	}
	if g.deps.Config.ExemptModerators && g.levelOf(ctx, chat.ID, user.ID) >= permissions.LevelModerator {
		return true, nil
	}

	policy := ResolvePolicy(g.deps.Config, settings)
	if edited {
		policy.FloodChecks = false
	}
	policy.Quarantined = g.inQuarantine(ctx, chat.ID, user.ID)
	out := g.deps.Enforcer.Handle(ctx, NewEvent(msg, chat, user), policy)
	if out.Err != nil {
		return false, errors.WithMessage(out.Err, "enforcement incomplete")
	}
	return !out.Verdict.Violation, nil
}

// levelOf resolves the member level, caching successful lookups. A failed
// lookup is treated as a regular member and not cached.
func (g *Guard) levelOf(ctx context.Context, chatID, userID int64) permissions.Level {
	key := memberKey{chatID: chatID, userID: userID}
	if level, ok := g.levels.Get(key); ok {
		return level
	}
	member, err := g.deps.Members.GetChatMember(ctx, chatID, userID)
	if err != nil {
		g.getLogEntry().WithField("chat_id", chatID).WithField("error", err.Error()).Warn("cant get chat member")
		return permissions.LevelMember
	}
	level := permissions.LevelOf(member)
	g.levels.Add(key, level)
	return level
}

func (g *Guard) handleMyChatMember(ctx context.Context, update *api.ChatMemberUpdated) error {
	status := update.NewChatMember.Status
	if status != "left" && status != "kicked" {
		return nil
	}
	return g.teardown(ctx, update.Chat.ID)
}

// teardown removes everything stored for a chat the bot no longer serves.
// Every step runs even when an earlier one fails.
func (g *Guard) teardown(ctx context.Context, chatID int64) error {
	entry := g.getLogEntry().WithField("chat_id", chatID)
	var firstErr error

	removed, err := g.deps.Ledger.ResetStrikes(ctx, chatID)
	if err != nil {
		entry.WithField("error", err.Error()).Error("cant reset strikes")
		firstErr = errors.Wrap(err, "reset strikes")
	}
	if err := g.deps.Store.WipeChat(ctx, chatID); err != nil {
		entry.WithField("error", err.Error()).Error("cant wipe chat")
		if firstErr == nil {
			firstErr = errors.Wrap(err, "wipe chat")
		}
	}
	g.deps.Words.Invalidate(chatID)
	g.deps.Settings.ForgetSettings(chatID)

	entry.WithField("strikes_removed", removed).Info("bot removed from chat, data wiped")
	return firstErr
}
