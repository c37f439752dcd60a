package guard

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/i18n"
	"github.com/iamwavecut/ngguard/internal/moderation"
	"github.com/iamwavecut/ngguard/internal/moderation/enforcer"
	"github.com/iamwavecut/ngguard/internal/policy/permissions"
)

const (
	defaultAuditLogLimit = 10
	maxAuditLogLimit     = 50
	analyticsDays        = 7
	topViolatorsLimit    = 5
	strengthOptions      = "low, medium, strict"
	maxMuteThreshold     = 100
	inheritArg           = "default"

	auditLineTemplate = `{{ .time }} {{ .action }} {{ .user }}{{ if .reason }} {{ .reason }}{{ end }}{{ if .strikes }} #{{ .strikes }}{{ end }}`
)

type (
	command struct {
		level permissions.Level
		run   func(ctx context.Context, c *commandContext) (string, error)
	}

	commandContext struct {
		msg      *api.Message
		chat     *api.Chat
		user     *api.User
		settings *db.Settings
		lang     string
		args     string
	}
)

func (g *Guard) registerCommands() map[string]command {
	return map[string]command{
		"forgive":   {level: permissions.LevelModerator, run: g.forgive},
		"reset":     {level: permissions.LevelManager, run: g.reset},
		"strikes":   {level: permissions.LevelMember, run: g.strikes},
		"strength":  {level: permissions.LevelModerator, run: g.strength},
		"addword":   {level: permissions.LevelModerator, run: g.addWord},
		"delword":   {level: permissions.LevelModerator, run: g.delWord},
		"wordlist":  {level: permissions.LevelModerator, run: g.wordList},
		"auditlog":  {level: permissions.LevelModerator, run: g.auditLog},
		"analytics": {level: permissions.LevelModerator, run: g.analytics},
		"language":  {level: permissions.LevelManager, run: g.language},
		"guard":     {level: permissions.LevelManager, run: g.toggle},

		"mutethreshold": {level: permissions.LevelModerator, run: g.muteThreshold},
		"muteduration":  {level: permissions.LevelModerator, run: g.muteDuration},
		"checks":        {level: permissions.LevelModerator, run: g.checks},
		"adminchat":     {level: permissions.LevelManager, run: g.adminChat},
		"antiraid":      {level: permissions.LevelManager, run: g.antiRaid},
		"welcome":       {level: permissions.LevelModerator, run: g.setWelcome},
		"welcomeoff":    {level: permissions.LevelModerator, run: g.welcomeOff},
	}
}

// handleCommand reports whether msg was consumed as a command. Commands the
// sender may not use fall through to moderation.
func (g *Guard) handleCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User, settings *db.Settings) (bool, error) {
	name := strings.ToLower(msg.Command())
	cmd, ok := g.commands[name]
	if !ok {
		return false, nil
	}
	entry := g.getLogEntry().WithField("command", name).WithField("chat_id", chat.ID)
	if cmd.level > permissions.LevelMember && g.levelOf(ctx, chat.ID, user.ID) < cmd.level {
		entry.Trace("not privileged")
		return false, nil
	}

	c := &commandContext{
		msg:      msg,
		chat:     chat,
		user:     user,
		settings: settings,
		lang:     ResolvePolicy(g.deps.Config, settings).Language,
		args:     strings.TrimSpace(msg.CommandArguments()),
	}
	text, err := cmd.run(ctx, c)
	if err != nil {
		entry.WithField("error", err.Error()).Error("command failed")
		text = i18n.Get("Something went wrong, please try again later.", c.lang)
	}
	g.reply(ctx, c, text)
	if err != nil {
		return true, errors.WithMessagef(err, "command %s", name)
	}
	return true, nil
}

func (g *Guard) reply(ctx context.Context, c *commandContext, text string) {
	if text == "" {
		return
	}
	ref, err := g.deps.Replier.Reply(ctx, c.chat.ID, messageThread(c.msg), c.msg.MessageID, text)
	if err != nil {
		g.getLogEntry().WithField("error", err.Error()).Warn("cant reply to command")
		return
	}
	if ttl := g.deps.Config.CommandReplyTTL; ttl > 0 {
		g.deps.Cleanup.ScheduleDelete(ref, ttl)
	}
}

func (g *Guard) audit(ctx context.Context, entry *db.ModerationLog) {
	entry.IncidentID = uuid.New()
	entry.CreatedAt = g.now().Unix()
	if err := g.deps.Store.AppendModerationLog(ctx, entry); err != nil {
		g.getLogEntry().WithField("error", err.Error()).Warn("cant write moderation log")
	}
}

// commandTarget picks the author of the replied message, or a numeric id
// argument.
func commandTarget(msg *api.Message, args string) (int64, string, bool) {
	if r := msg.ReplyToMessage; r != nil && r.From != nil && !r.From.IsBot {
		return r.From.ID, bot.GetUN(r.From), true
	}
	if id, err := strconv.ParseInt(args, 10, 64); err == nil && id > 0 {
		return id, userLabel("", id), true
	}
	return 0, "", false
}

func userLabel(name string, id int64) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("id%d", id)
}

func (g *Guard) forgive(ctx context.Context, c *commandContext) (string, error) {
	userID, name, ok := commandTarget(c.msg, c.args)
	if !ok {
		return i18n.Get("Reply to a message of the user or pass their numeric id.", c.lang), nil
	}
	existed, err := g.deps.Ledger.Forgive(ctx, userID, c.chat.ID)
	if err != nil {
		return "", errors.WithMessage(err, "cant forgive")
	}
	if !existed {
		return fmt.Sprintf(i18n.Get("%s has no strikes.", c.lang), name), nil
	}
	g.audit(ctx, &db.ModerationLog{
		ChatID:      c.chat.ID,
		UserID:      userID,
		Username:    name,
		Action:      db.ActionForgiven,
		ModeratorID: c.user.ID,
	})
	return fmt.Sprintf(i18n.Get("Strikes of %s were cleared.", c.lang), name), nil
}

func (g *Guard) reset(ctx context.Context, c *commandContext) (string, error) {
	removed, err := g.deps.Ledger.ResetStrikes(ctx, c.chat.ID)
	if err != nil {
		return "", errors.WithMessage(err, "cant reset strikes")
	}
	g.audit(ctx, &db.ModerationLog{
		ChatID:      c.chat.ID,
		Action:      db.ActionReset,
		StrikeCount: int(removed),
		ModeratorID: c.user.ID,
	})
	return fmt.Sprintf(i18n.Get("Strikes of %d users were cleared.", c.lang), removed), nil
}

func (g *Guard) strikes(ctx context.Context, c *commandContext) (string, error) {
	userID, name, ok := commandTarget(c.msg, c.args)
	if !ok {
		userID, name = c.user.ID, userLabel(bot.GetUN(c.user), c.user.ID)
	}
	count, err := g.deps.Ledger.GetStrikes(ctx, userID, c.chat.ID)
	if err != nil {
		return "", errors.WithMessage(err, "cant get strikes")
	}
	threshold := ResolvePolicy(g.deps.Config, c.settings).MuteThreshold
	return fmt.Sprintf(i18n.Get("%s has %d of %d strikes.", c.lang), name, count, threshold), nil
}

func (g *Guard) strength(ctx context.Context, c *commandContext) (string, error) {
	strength, ok := moderation.ParseStrength(c.args)
	if c.args == "" || !ok {
		current := ResolvePolicy(g.deps.Config, c.settings).Strength
		return fmt.Sprintf(i18n.Get("Current strength: %s. Available: %s.", c.lang), current, strengthOptions), nil
	}
	c.settings.Strength = string(strength)
	if err := g.deps.Settings.SetSettings(ctx, c.settings); err != nil {
		return "", errors.WithMessage(err, "cant set strength")
	}
	return fmt.Sprintf(i18n.Get("Strength set to %s.", c.lang), strength), nil
}

func (g *Guard) addWord(ctx context.Context, c *commandContext) (string, error) {
	if c.args == "" {
		return i18n.Get("Pass the word to add.", c.lang), nil
	}
	added, err := g.deps.Store.AddCustomWord(ctx, c.chat.ID, c.args, c.user.ID)
	if err != nil {
		return "", errors.WithMessage(err, "cant add word")
	}
	if !added {
		return i18n.Get("The word is already on the list.", c.lang), nil
	}
	g.deps.Words.Invalidate(c.chat.ID)
	return i18n.Get("The word was added.", c.lang), nil
}

func (g *Guard) delWord(ctx context.Context, c *commandContext) (string, error) {
	if c.args == "" {
		return i18n.Get("Pass the word to remove.", c.lang), nil
	}
	removed, err := g.deps.Store.RemoveCustomWord(ctx, c.chat.ID, c.args)
	if err != nil {
		return "", errors.WithMessage(err, "cant remove word")
	}
	if !removed {
		return i18n.Get("The word is not on the list.", c.lang), nil
	}
	g.deps.Words.Invalidate(c.chat.ID)
	return i18n.Get("The word was removed.", c.lang), nil
}

func (g *Guard) wordList(ctx context.Context, c *commandContext) (string, error) {
	words, err := g.deps.Store.GetCustomWords(ctx, c.chat.ID)
	if err != nil {
		return "", errors.WithMessage(err, "cant get words")
	}
	if len(words) == 0 {
		return i18n.Get("The custom word list is empty.", c.lang), nil
	}
	return fmt.Sprintf(i18n.Get("Custom words: %s", c.lang), strings.Join(words, ", ")), nil
}

func (g *Guard) auditLog(ctx context.Context, c *commandContext) (string, error) {
	limit := defaultAuditLogLimit
	if n, err := strconv.Atoi(c.args); err == nil {
		limit = min(max(n, 1), maxAuditLogLimit)
	}
	entries, err := g.deps.Store.GetModerationLog(ctx, c.chat.ID, limit)
	if err != nil {
		return "", errors.WithMessage(err, "cant get moderation log")
	}
	if len(entries) == 0 {
		return i18n.Get("No moderation events yet.", c.lang), nil
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf(i18n.Get("Last %d moderation events:", c.lang), len(entries)))
	for _, e := range entries {
		reason := ""
		if e.Reason != "" {
			reason = enforcer.ReasonText(moderation.Reason(e.Reason), c.lang)
		}
		b.WriteString("\n")
		b.WriteString(tool.ExecTemplate(auditLineTemplate, map[string]any{
			"time":    e.Time().UTC().Format("01-02 15:04"),
			"action":  e.Action,
			"user":    userLabel(e.Username, e.UserID),
			"reason":  reason,
			"strikes": e.StrikeCount,
		}))
	}
	return b.String(), nil
}

func (g *Guard) analytics(ctx context.Context, c *commandContext) (string, error) {
	since := g.now().Add(-analyticsDays * 24 * time.Hour)
	counts, err := g.deps.Store.CountActionsSince(ctx, c.chat.ID, since)
	if err != nil {
		return "", errors.WithMessage(err, "cant count actions")
	}
	if len(counts) == 0 {
		return fmt.Sprintf(i18n.Get("No moderation events in the last %d days.", c.lang), analyticsDays), nil
	}
	top, err := g.deps.Store.TopViolators(ctx, c.chat.ID, since, topViolatorsLimit)
	if err != nil {
		return "", errors.WithMessage(err, "cant get top violators")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf(i18n.Get("Moderation in the last %d days:", c.lang), analyticsDays))
	for _, count := range counts {
		b.WriteString(fmt.Sprintf("\n%s: %d", count.Action, count.Count))
	}
	if len(top) > 0 {
		b.WriteString("\n")
		b.WriteString(i18n.Get("Top violators:", c.lang))
		for _, v := range top {
			b.WriteString(fmt.Sprintf("\n%s: %d", userLabel(v.Username, v.UserID), v.Violations))
		}
	}
	return b.String(), nil
}

func (g *Guard) language(ctx context.Context, c *commandContext) (string, error) {
	code := strings.ToLower(c.args)
	if !i18n.IsSupported(code) {
		return fmt.Sprintf(
			i18n.Get("Current language: %s. Available: %s.", c.lang),
			i18n.GetLanguageName(c.lang), strings.Join(i18n.GetLanguagesList(), ", "),
		), nil
	}
	c.settings.Language = code
	if err := g.deps.Settings.SetSettings(ctx, c.settings); err != nil {
		return "", errors.WithMessage(err, "cant set language")
	}
	c.lang = code
	return fmt.Sprintf(i18n.Get("Language set to %s.", c.lang), i18n.GetLanguageName(code)), nil
}

func (g *Guard) toggle(ctx context.Context, c *commandContext) (string, error) {
	var enabled bool
	switch strings.ToLower(c.args) {
	case "on":
		enabled = true
	case "off":
	default:
		if c.settings.Enabled {
			return i18n.Get("Moderation is enabled. Use /guard off to disable it.", c.lang), nil
		}
		return i18n.Get("Moderation is disabled. Use /guard on to enable it.", c.lang), nil
	}
	c.settings.Enabled = enabled
	if err := g.deps.Settings.SetSettings(ctx, c.settings); err != nil {
		return "", errors.WithMessage(err, "cant toggle moderation")
	}
	if enabled {
		return i18n.Get("Moderation enabled.", c.lang), nil
	}
	return i18n.Get("Moderation disabled.", c.lang), nil
}

func (g *Guard) saveSettings(ctx context.Context, c *commandContext, what string) error {
	return errors.WithMessagef(g.deps.Settings.SetSettings(ctx, c.settings), "cant set %s", what)
}

func (g *Guard) muteThreshold(ctx context.Context, c *commandContext) (string, error) {
	if strings.EqualFold(c.args, inheritArg) {
		c.settings.MuteThreshold = db.SettingsOverrideInherit
	} else {
		n, err := strconv.Atoi(c.args)
		if err != nil || n < 1 || n > maxMuteThreshold {
			current := ResolvePolicy(g.deps.Config, c.settings).MuteThreshold
			return fmt.Sprintf(i18n.Get("Mute threshold: %d strikes. Pass a number or default to change it.", c.lang), current), nil
		}
		c.settings.MuteThreshold = n
	}
	if err := g.saveSettings(ctx, c, "mute threshold"); err != nil {
		return "", err
	}
	threshold := ResolvePolicy(g.deps.Config, c.settings).MuteThreshold
	return fmt.Sprintf(i18n.Get("Mute threshold set to %d strikes.", c.lang), threshold), nil
}

// muteDuration stores whole seconds, values outside the Telegram range
// are clamped on use.
func (g *Guard) muteDuration(ctx context.Context, c *commandContext) (string, error) {
	if strings.EqualFold(c.args, inheritArg) {
		c.settings.MuteDuration = db.SettingsOverrideInherit
	} else {
		d, err := time.ParseDuration(c.args)
		if err != nil || d < minMuteDuration || d > maxMuteDuration {
			current := ResolvePolicy(g.deps.Config, c.settings).MuteDuration
			return fmt.Sprintf(i18n.Get("Mute duration: %s. Pass a duration such as 30m or 12h, or default.", c.lang), formatDuration(current)), nil
		}
		c.settings.MuteDuration = int64(d / time.Second)
	}
	if err := g.saveSettings(ctx, c, "mute duration"); err != nil {
		return "", err
	}
	current := ResolvePolicy(g.deps.Config, c.settings).MuteDuration
	return fmt.Sprintf(i18n.Get("Mute duration set to %s.", c.lang), formatDuration(current)), nil
}

func (g *Guard) checks(ctx context.Context, c *commandContext) (string, error) {
	fields := strings.Fields(strings.ToLower(c.args))
	if len(fields) == 2 && (fields[1] == "on" || fields[1] == "off") {
		toggles := map[string]*bool{"content": &c.settings.ContentChecks, "flood": &c.settings.FloodChecks}
		if target := toggles[fields[0]]; target != nil {
			*target = fields[1] == "on"
			if err := g.saveSettings(ctx, c, "checks"); err != nil {
				return "", err
			}
		}
	}
	return fmt.Sprintf(
		i18n.Get("Content checks: %s. Flood checks: %s. Use /checks content|flood on|off.", c.lang),
		onOff(c.settings.ContentChecks, c.lang), onOff(c.settings.FloodChecks, c.lang),
	), nil
}

func (g *Guard) adminChat(ctx context.Context, c *commandContext) (string, error) {
	arg := strings.ToLower(c.args)
	switch id, err := strconv.ParseInt(arg, 10, 64); {
	case arg == "off":
		c.settings.AdminChatID = 0
	case err == nil && id != 0:
		c.settings.AdminChatID = id
	default:
		return fmt.Sprintf(i18n.Get("Admin alerts go to %s. Pass a chat id or off to change it.", c.lang), g.adminTarget(c)), nil
	}
	if err := g.saveSettings(ctx, c, "admin chat"); err != nil {
		return "", err
	}
	return fmt.Sprintf(i18n.Get("Admin alerts now go to %s.", c.lang), g.adminTarget(c)), nil
}

func (g *Guard) adminTarget(c *commandContext) string {
	id := ResolvePolicy(g.deps.Config, c.settings).AdminChatID
	if id == 0 || id == c.chat.ID {
		return i18n.Get("this chat", c.lang)
	}
	return strconv.FormatInt(id, 10)
}

func (g *Guard) antiRaid(ctx context.Context, c *commandContext) (string, error) {
	period := formatDuration(g.deps.Config.QuarantinePeriod)
	switch strings.ToLower(c.args) {
	case "on":
		c.settings.AntiRaid = true
	case "off":
		c.settings.AntiRaid = false
	default:
		return fmt.Sprintf(i18n.Get("Anti-raid is %s. While enabled, new members are muted for %s after joining.", c.lang), onOff(c.settings.AntiRaid, c.lang), period), nil
	}
	if err := g.saveSettings(ctx, c, "anti-raid"); err != nil {
		return "", err
	}
	if c.settings.AntiRaid {
		return fmt.Sprintf(i18n.Get("Anti-raid enabled. New members are muted for %s after joining.", c.lang), period), nil
	}
	return i18n.Get("Anti-raid disabled.", c.lang), nil
}

func (g *Guard) setWelcome(ctx context.Context, c *commandContext) (string, error) {
	if c.args == "" {
		if c.settings.Welcome == "" {
			return i18n.Get("No welcome message is set. Pass the text after /welcome, {name} becomes the member name.", c.lang), nil
		}
		return fmt.Sprintf(i18n.Get("Welcome message: %s", c.lang), c.settings.Welcome), nil
	}
	c.settings.Welcome = c.args
	if err := g.saveSettings(ctx, c, "welcome"); err != nil {
		return "", err
	}
	return i18n.Get("Welcome message saved.", c.lang), nil
}

func (g *Guard) welcomeOff(ctx context.Context, c *commandContext) (string, error) {
	c.settings.Welcome = ""
	if err := g.saveSettings(ctx, c, "welcome"); err != nil {
		return "", err
	}
	return i18n.Get("Welcome message disabled.", c.lang), nil
}

func onOff(enabled bool, lang string) string {
	if enabled {
		return i18n.Get("enabled", lang)
	}
	return i18n.Get("disabled", lang)
}

// formatDuration drops the zero minute and second tails, 1h0m0s is 1h.
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return d.String()
	}
	s := d.String()
	if d%time.Minute == 0 {
		s = strings.TrimSuffix(s, "0s")
	}
	if d%time.Hour == 0 {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}
