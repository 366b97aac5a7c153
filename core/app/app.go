// Package app assembles configuration, storage, services and the
// Telegram runtime into a runnable application.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/klipworks/memberbot/core/bot"
	coreconfig "github.com/klipworks/memberbot/core/config"
	coredatabase "github.com/klipworks/memberbot/core/database"
	"github.com/klipworks/memberbot/core/dispatch"
	"github.com/klipworks/memberbot/core/logger"
	"github.com/klipworks/memberbot/core/notify"
	"github.com/klipworks/memberbot/core/store"
	coretelegram "github.com/klipworks/memberbot/core/telegram"
	"github.com/klipworks/memberbot/core/textcmd"
	"github.com/klipworks/memberbot/core/verify"
)

// Config is the full application configuration: the core bot settings
// plus the database block, composed here to keep the core packages free
// of storage concerns.
type Config struct {
	Core     coreconfig.Config   `yaml:",inline"`
	Database coredatabase.Config `yaml:"database"`
}

// CoreConfig returns the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Core
}

// LoadConfig reads configuration from a YAML file and the environment.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// App holds the bootstrapped application.
type App struct {
	cfg     *Config
	db      *sqlx.DB
	bot     *bot.Bot
	granter *bot.InviteGranter
}

// Bootstrap initializes the logger, connects to the database, applies
// migrations and wires the services.
func Bootstrap(cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config provided")
	}

	if err := logger.InitLogger(&cfg.Core); err != nil {
		return nil, fmt.Errorf("app: logger init failed: %w", err)
	}

	db, err := coredatabase.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("app: database initialization failed: %w", err)
	}
	if err := coredatabase.RunMigrations(cfg.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("app: migrations failed: %w", err)
	}

	mailer, err := notify.NewMailer(cfg.Core.SMTP)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("app: mailer init failed: %w", err)
	}

	granter := bot.NewInviteGranter(nil, cfg.Core.Verification.MembersChatID)

	svc := verify.NewService(store.NewUsers(db), mailer,
		verify.WithGranter(granter),
		verify.WithCodeTTL(time.Duration(cfg.Core.Verification.CodeTTLSeconds)*time.Second),
		verify.WithOpTimeout(time.Duration(cfg.Core.Verification.OpTimeoutSeconds)*time.Second),
	)

	content := textcmd.NewDispatcher(cfg.Core.Content.CommandPrefix, store.NewContent(db))

	botApp, err := bot.New(bot.Options{
		Config:  &cfg.Core,
		Verify:  svc,
		Content: content,
		Router:  dispatch.NewRouter(),
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("app: bot wiring failed: %w", err)
	}

	return &App{
		cfg:     cfg,
		db:      db,
		bot:     botApp,
		granter: granter,
	}, nil
}

// TelegramRunOptions builds the runtime options for RunTelegram.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	opts := coretelegram.RunOptions{
		Config:      &a.cfg.Core,
		Registry:    a.bot.Registry(),
		Middlewares: coretelegram.DefaultMiddlewares(&a.cfg.Core, nil),
		Routes:      a.bot.Routes(),
	}

	opts.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		a.granter.SetBot(rt.Bot)
		if rt.Dispatcher != nil {
			a.bot.SetSenderErrors(rt.Dispatcher.ErrorCount)
		}
		return nil
	}
	opts.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		return a.db.Close()
	}

	return opts, nil
}
