package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/config"
	"github.com/iamwavecut/ngguard/internal/db"
	redisledger "github.com/iamwavecut/ngguard/internal/db/redis"
	"github.com/iamwavecut/ngguard/internal/db/sqlite"
	"github.com/iamwavecut/ngguard/internal/handlers/guard"
	"github.com/iamwavecut/ngguard/internal/infra"
	"github.com/iamwavecut/ngguard/internal/infrastructure/telegram"
	"github.com/iamwavecut/ngguard/internal/lifecycle"
	"github.com/iamwavecut/ngguard/internal/moderation/classifier"
	"github.com/iamwavecut/ngguard/internal/moderation/cleanup"
	"github.com/iamwavecut/ngguard/internal/moderation/enforcer"
	"github.com/iamwavecut/ngguard/internal/moderation/flood"
	"github.com/iamwavecut/ngguard/internal/moderation/notify"
	"github.com/iamwavecut/ngguard/internal/observability"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.SetFormatter(&config.NbFormatter{})
	log.SetOutput(os.Stdout)

	cfg, err := config.Load(ctx)
	if err != nil {
		log.WithField("error", err.Error()).Fatalln("cant load config")
	}
	log.SetLevel(log.Level(cfg.LogLevel))
	log.SetFormatter(&config.NbFormatter{NoColor: cfg.LogNoColor})

	if err := run(ctx, cfg); err != nil {
		log.WithField("error", err.Error()).Fatalln("exiting")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	workDir, err := infra.GetWorkDir(cfg.DotPath)
	if err != nil {
		return err
	}

	botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		return err
	}
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		botAPI.Debug = true
	}

	dbClient, err := sqlite.NewSQLiteClient(ctx, workDir, cfg.Ledger.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = dbClient.Close() }()

	var ledger db.StrikeLedger = dbClient
	if cfg.Ledger.Backend == config.LedgerRedis {
		redisLedger, err := redisledger.NewLedger(ctx, cfg.Ledger.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = redisLedger.Close() }()
		ledger = redisLedger
	}

	rules, err := classifier.LoadRules(cfg.Moderation.WordlistPath)
	if err != nil {
		return err
	}
	if cfg.Moderation.TrustedDomain != "" {
		rules.TrustedDomain = cfg.Moderation.TrustedDomain
	}
	baseClassifier, err := classifier.New(rules)
	if err != nil {
		return err
	}
	scanner := classifier.NewScanner(baseClassifier, dbClient, cfg.Moderation.ScanWorkers)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	ops := telegram.NewOperations(botAPI)
	cleanupScheduler := cleanup.NewScheduler(ops, metrics)
	enf := enforcer.New(enforcer.Deps{
		Scanner:  scanner,
		Links:    baseClassifier,
		Flood:    flood.NewDetector(),
		Ledger:   ledger,
		Platform: ops,
		Notifier: notify.NewSink(ops),
		Cleanup:  cleanupScheduler,
		Audit:    dbClient,
		Metrics:  metrics,
	})

	service := bot.NewService(botAPI, dbClient, cfg.DefaultLanguage)
	handlers := bot.NewRegistry()
	handlers.Register("guard", guard.New(guard.Deps{
		Settings:   service,
		Enforcer:   enf,
		Members:    ops,
		Replier:    ops,
		Sender:     ops,
		Restrictor: ops,
		Cleanup:    cleanupScheduler,
		Ledger:     ledger,
		Store:      dbClient,
		Words:      scanner,
		Config:     cfg.Moderation,
	}))
	processor := bot.NewUpdateProcessor(handlers.Enabled(cfg.EnabledHandlers), cfg.MaxInFlight)

	updateConfig := api.NewUpdate(0)
	updateConfig.Timeout = 60
	updateConfig.AllowedUpdates = []string{"message", "edited_message", "my_chat_member", "chat_member"}

	runtime := lifecycle.NewRuntime(
		lifecycle.Named("tracing", observability.NewTracing(cfg.Observability.Tracing)),
		lifecycle.Named("metrics", observability.NewMetricsServer(cfg.Observability.MetricsAddr, registry)),
		lifecycle.Named("cleanup", cleanupScheduler),
		lifecycle.Named("processor", processor),
		lifecycle.Named("poller", bot.NewPoller(botAPI, processor, updateConfig, botAPI.Buffer)),
	)
	if err := runtime.Start(ctx); err != nil {
		return err
	}
	log.WithField("bot", botAPI.Self.UserName).WithField("ledger", cfg.Ledger.Backend).Info("ngguard started")

	monitor := infra.MonitorExecutable(ctx)
	select {
	case <-ctx.Done():
	case _, changed := <-monitor:
		if changed {
			log.Warn("executable file was modified, shutting down")
		} else {
			<-ctx.Done()
		}
	}
	log.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return runtime.Stop(stopCtx)
}
