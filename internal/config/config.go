package config

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/moderation"
)

const (
	LedgerSQLite = "sqlite"
	LedgerRedis  = "redis"
)

type (
	Config struct {
		TelegramAPIToken string   `env:"TOKEN,required"`
		DefaultLanguage  string   `env:"LANG,default=en"`
		EnabledHandlers  []string `env:"HANDLERS,default=guard"`
		LogLevel         int      `env:"LOG_LEVEL,default=4"`
		LogNoColor       bool     `env:"LOG_NO_COLOR,default=false"`
		DotPath          string   `env:"DOT_PATH,default=~/.ngguard"`
		MaxInFlight      int      `env:"MAX_IN_FLIGHT,default=64"`
		Moderation       Moderation
		Ledger           Ledger
		Observability    Observability
	}

	// Moderation holds process-wide defaults; chats may override some of them.
	Moderation struct {
		Strength          string        `env:"STRENGTH,default=medium"`
		MuteThreshold     int           `env:"MUTE_THRESHOLD,default=3"`
		MuteDuration      time.Duration `env:"MUTE_DURATION,default=1h"`
		MuteOnEveryStrike bool          `env:"MUTE_ON_EVERY_STRIKE,default=true"`
		NoticeTTL         time.Duration `env:"NOTICE_TTL,default=10s"`
		AdminAlertTTL     time.Duration `env:"ADMIN_ALERT_TTL,default=1h"`
		CommandReplyTTL   time.Duration `env:"COMMAND_REPLY_TTL,default=1m"`
		AdminChatID       int64         `env:"ADMIN_CHAT_ID"`
		TrustedDomain     string        `env:"TRUSTED_DOMAIN"`
		WordlistPath      string        `env:"WORDLIST_PATH"`
		ScanWorkers       int           `env:"SCAN_WORKERS,default=0"`
		ExemptModerators  bool          `env:"EXEMPT_MODERATORS,default=true"`
		// QuarantinePeriod after a join blocks links and tightens flood limits.
		QuarantinePeriod time.Duration `env:"QUARANTINE_PERIOD,default=24h"`
		WelcomeTTL       time.Duration `env:"WELCOME_TTL,default=5m"`
	}

	Ledger struct {
		Backend  string `env:"LEDGER_BACKEND,default=sqlite"`
		RedisURL string `env:"REDIS_URL"`
		DBFile   string `env:"DB_FILE,default=ngguard.db"`
	}

	Observability struct {
		MetricsAddr string `env:"METRICS_ADDR,default=:2112"`
		Tracing     bool   `env:"TRACING,default=false"`
	}
)

// Load reads the configuration from NG_ prefixed environment variables.
func Load(ctx context.Context) (Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	cfg := Config{}
	envcfg := envconfig.Config{
		Lookuper: envconfig.PrefixLookuper("NG_", lookuper),
		Target:   &cfg,
	}
	if err := envconfig.ProcessWith(ctx, &envcfg); err != nil {
		return Config{}, fmt.Errorf("process env config: %w", err)
	}
	dotPath, err := homedir.Expand(cfg.DotPath)
	if err != nil {
		return Config{}, fmt.Errorf("expand dot path: %w", err)
	}
	cfg.DotPath = dotPath
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	log.Traceln("loaded config")
	return cfg, nil
}

func (c Config) validate() error {
	if _, ok := moderation.ParseStrength(c.Moderation.Strength); !ok {
		return fmt.Errorf("invalid moderation strength %q", c.Moderation.Strength)
	}
	if c.Moderation.MuteThreshold < 1 {
		return fmt.Errorf("mute threshold must be positive, got %d", c.Moderation.MuteThreshold)
	}
	if c.Moderation.MuteDuration <= 0 {
		return fmt.Errorf("mute duration must be positive, got %s", c.Moderation.MuteDuration)
	}
	if c.Moderation.QuarantinePeriod < 0 {
		return fmt.Errorf("quarantine period must not be negative, got %s", c.Moderation.QuarantinePeriod)
	}
	switch c.Ledger.Backend {
	case LedgerSQLite:
	case LedgerRedis:
		if c.Ledger.RedisURL == "" {
			return fmt.Errorf("redis ledger requires NG_REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	return nil
}
