package bot

import (
	"context"
	"errors"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/iamwavecut/tool"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/i18n"
)

const (
	settingsCacheSize = 1000
	settingsCacheTTL  = 10 * time.Minute
)

type service struct {
	bot             *api.BotAPI
	db              db.Client
	defaultLanguage string
	settings        *expirable.LRU[int64, db.Settings]
}

func NewService(bot *api.BotAPI, dbClient db.Client, defaultLanguage string) *service {
	if !i18n.IsSupported(defaultLanguage) {
		defaultLanguage = i18n.DefaultLanguage
	}
	return &service{
		bot:             bot,
		db:              dbClient,
		defaultLanguage: defaultLanguage,
		settings:        expirable.NewLRU[int64, db.Settings](settingsCacheSize, nil, settingsCacheTTL),
	}
}

func (s *service) getLogEntry() *log.Entry {
	return log.WithField("object", "Service")
}

func (s *service) GetBot() *api.BotAPI {
	return s.bot
}

func (s *service) GetDB() db.Client {
	return s.db
}

// GetSettings returns the stored settings of a chat, or defaults for a chat
// that has never been configured. The returned value is a copy.
func (s *service) GetSettings(ctx context.Context, chatID int64) (*db.Settings, error) {
	if cached, ok := s.settings.Get(chatID); ok {
		return &cached, nil
	}
	settings, err := s.db.GetSettings(ctx, chatID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		settings = db.DefaultSettings(chatID)
		settings.Language = s.defaultLanguage
	case err != nil:
		return nil, err
	}
	s.settings.Add(chatID, *settings)
	return settings, nil
}

func (s *service) SetSettings(ctx context.Context, settings *db.Settings) error {
	if settings == nil {
		return errors.New("settings is nil")
	}
	if err := s.db.SetSettings(ctx, settings); err != nil {
		s.settings.Remove(settings.ID)
		return err
	}
	s.settings.Add(settings.ID, *settings)
	return nil
}

func (s *service) ForgetSettings(chatID int64) {
	s.settings.Remove(chatID)
}

// GetLanguage prefers the chat language, then the sender's client language.
func (s *service) GetLanguage(ctx context.Context, chatID int64, user *api.User) string {
	settings, err := s.GetSettings(ctx, chatID)
	if err != nil {
		s.getLogEntry().WithField("error", err.Error()).Warn("cant get chat language")
	} else if i18n.IsSupported(settings.Language) {
		return settings.Language
	}
	if user != nil && tool.In(user.LanguageCode, i18n.GetLanguagesList()...) {
		return user.LanguageCode
	}
	return s.defaultLanguage
}
