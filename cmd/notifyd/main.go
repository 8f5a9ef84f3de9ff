package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/notifykit/pkg/analytics"
	"github.com/dmitrymomot/notifykit/pkg/api"
	"github.com/dmitrymomot/notifykit/pkg/batch"
	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/dispatch"
	"github.com/dmitrymomot/notifykit/pkg/engine"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/redis"
	"github.com/dmitrymomot/notifykit/pkg/rules"
	"github.com/dmitrymomot/notifykit/pkg/sender"
	"github.com/dmitrymomot/notifykit/pkg/template"
)

type appConfig struct {
	Env           string `env:"APP_ENV" envDefault:"development"`
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"memory"`

	RulesFile       string `env:"RULES_FILE"`
	AddressBookFile string `env:"ADDRESS_BOOK_FILE"`
	DevSenderDir    string `env:"DEV_SENDER_DIR" envDefault:"./tmp/notifications"`

	TickInterval      time.Duration `env:"TICK_INTERVAL" envDefault:"30s"`
	ReaperInterval    time.Duration `env:"REAPER_INTERVAL" envDefault:"1m"`
	AnalyticsInterval time.Duration `env:"ANALYTICS_SWEEP_INTERVAL" envDefault:"1m"`
	DefaultTTL        time.Duration `env:"NOTIFICATION_DEFAULT_TTL" envDefault:"720h"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("notifyd terminated", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}
	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return err
	}

	log := logger.New(logger.WithEnvironment(cfg.Env, "notifyd"))
	logger.SetAsDefault(log)

	store, probes, closeStore, err := openStore(ctx, cfg.StorageDriver)
	if err != nil {
		return err
	}
	defer closeStore()

	templates := template.NewMemoryStore()
	ruleStore := rules.NewMemoryStore()
	if cfg.RulesFile != "" {
		if err := rules.LoadFile(ctx, cfg.RulesFile, templates, ruleStore); err != nil {
			return err
		}
		log.InfoContext(ctx, "rules config loaded", slog.String("file", cfg.RulesFile))
	}

	resolve, err := loadAddressBook(cfg.AddressBookFile)
	if err != nil {
		return err
	}

	registry, closeSenders, err := buildSenders(cfg, resolve, log)
	if err != nil {
		return err
	}
	defer closeSenders()
	log.InfoContext(ctx, "senders registered", slog.Any("channels", registry.Channels()))

	var dispatchCfg dispatch.Config
	if err := config.Load(&dispatchCfg); err != nil {
		return err
	}
	dispatcher, err := dispatch.NewDispatcherFromConfig(store, registry, dispatchCfg,
		dispatch.WithDispatcherLogger(log))
	if err != nil {
		return err
	}
	worker, err := dispatch.NewWorkerFromConfig(store, dispatcher, dispatchCfg,
		dispatch.WithWorkerLogger(log))
	if err != nil {
		return err
	}

	ruleEngine := rules.NewEngine(ruleStore, rules.WithEngineLogger(log))
	eng := engine.New(store, templates, ruleEngine,
		engine.WithDefaultTTL(cfg.DefaultTTL), engine.WithLogger(log))

	batchScheduler := batch.NewScheduler(batch.NewMemoryStore(), store, dispatcher,
		batch.WithSchedulerLogger(log))
	aggregator := analytics.NewAggregator(store, analytics.WithAggregatorLogger(log))
	sweeper := analytics.NewSweeper(aggregator, cfg.AnalyticsInterval, log)
	reaper := engine.NewReaper(store, cfg.ReaperInterval, log)

	if err := worker.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = worker.Stop() }()
	if err := batchScheduler.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = batchScheduler.Stop() }()
	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = sweeper.Stop() }()
	if err := reaper.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = reaper.Stop() }()

	go runTicker(ctx, eng, cfg.TickInterval, log)

	router := api.New(eng, ruleStore, rules.NewValidator(templates), aggregator, log).Router()
	router.Get("/ready", httpserver.HealthCheckHandler(log, probes...))

	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))
	return srv.Run(ctx, router)
}

// openStore selects the notification store backend from STORAGE_DRIVER and
// returns readiness probes for the chosen backend.
func openStore(ctx context.Context, driver string) (notification.Store, []func(context.Context) error, func(), error) {
	switch driver {
	case "memory":
		return notification.NewMemoryStore(), nil, func() {}, nil

	case "redis":
		var cfg redis.Config
		if err := config.Load(&cfg); err != nil {
			return nil, nil, nil, err
		}
		client, err := redis.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		probes := []func(context.Context) error{redis.Healthcheck(client)}
		return notification.NewRedisStore(client), probes, func() { _ = client.Close() }, nil

	case "postgres":
		var cfg pg.Config
		if err := config.Load(&cfg); err != nil {
			return nil, nil, nil, err
		}
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := notification.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		probes := []func(context.Context) error{pg.Healthcheck(pool)}
		return notification.NewPostgresStore(pool), probes, pool.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown STORAGE_DRIVER %q: must be memory, redis, or postgres", driver)
	}
}

// loadAddressBook reads a per-recipient channel address table. Without a file
// every address lookup fails, which still works for in-app delivery.
func loadAddressBook(path string) (sender.AddressFunc, error) {
	if path == "" {
		return sender.StaticAddresses(nil), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read address book: %w", err)
	}
	var table map[string]map[notification.Channel]string
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("parse address book: %w", err)
	}
	return sender.StaticAddresses(table), nil
}

// buildSenders registers a sender per channel: in-app always, email and
// webhook when configured, and file-backed dev senders for anything left
// uncovered outside production.
func buildSenders(cfg appConfig, resolve sender.AddressFunc, log *slog.Logger) (*dispatch.Registry, func(), error) {
	registry := dispatch.NewRegistry()

	inapp := sender.NewInApp()
	if err := registry.Register(inapp); err != nil {
		return nil, nil, err
	}

	var emailCfg sender.EmailConfig
	if err := config.Load(&emailCfg); err != nil {
		return nil, nil, err
	}
	if emailCfg.PostmarkServerToken != "" {
		email, err := sender.NewEmail(emailCfg, resolve)
		if err != nil {
			return nil, nil, err
		}
		if err := registry.Register(email); err != nil {
			return nil, nil, err
		}
	}

	var webhookCfg sender.WebhookConfig
	if err := config.Load(&webhookCfg); err != nil {
		return nil, nil, err
	}
	if webhookCfg.SigningSecret != "" {
		wh, err := sender.NewWebhook(webhookCfg, resolve)
		if err != nil {
			return nil, nil, err
		}
		if err := registry.Register(wh); err != nil {
			return nil, nil, err
		}
	}

	if cfg.Env != "production" && cfg.Env != "prod" {
		for _, ch := range notification.KnownChannels() {
			if _, ok := registry.Get(ch); ok {
				continue
			}
			if err := registry.Register(sender.NewDev(ch, cfg.DevSenderDir)); err != nil {
				return nil, nil, err
			}
			log.Debug("dev sender registered", slog.String("channel", string(ch)))
		}
	}

	return registry, inapp.Close, nil
}

// runTicker drives time-based rule evaluation so cron schedules fire without
// external traffic.
func runTicker(ctx context.Context, eng *engine.Engine, interval time.Duration, log *slog.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			accepted, err := eng.Tick(ctx, now)
			if err != nil {
				log.ErrorContext(ctx, "scheduled evaluation failed", slog.Any("error", err))
				continue
			}
			if len(accepted.NotificationIDs) > 0 {
				log.InfoContext(ctx, "scheduled rules fired",
					slog.Int("notifications", len(accepted.NotificationIDs)))
			}
			for _, f := range accepted.ActionFailures {
				log.WarnContext(ctx, "rule action failed",
					slog.String("rule_id", f.RuleID.String()),
					slog.Any("error", f.Err))
			}
		}
	}
}
