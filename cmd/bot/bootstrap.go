package main

import (
	"context"
	"fmt"
	"os"

	"kite-strangle-bot/internal/broker/brokerobs"
	"kite-strangle-bot/internal/broker/zerodha"
	"kite-strangle-bot/internal/dispatcher"
	"kite-strangle-bot/internal/engine"
	"kite-strangle-bot/internal/engine/engineobs"
	"kite-strangle-bot/internal/interfaces"
	"kite-strangle-bot/internal/logger"
	"kite-strangle-bot/internal/marketdata"
	"kite-strangle-bot/internal/notify"
	"kite-strangle-bot/internal/resolver"
	"kite-strangle-bot/internal/session"
	"kite-strangle-bot/internal/store"
	"kite-strangle-bot/internal/trace"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// initializeSystem initializes logger and tracer
func initializeSystem() error {
	// Load environment variables
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

// loadConfig loads the configuration and the venue secrets
func loadConfig(ctx context.Context, path string) (*store.Config, store.Secrets, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, store.Secrets{}, err
	}
	secrets, err := store.LoadSecrets()
	if err != nil {
		logger.ErrorWithErr(ctx, "Missing secrets", err)
		return nil, store.Secrets{}, err
	}
	return cfg, secrets, nil
}

// initializeSessions builds the authenticator and the single-slot session store
func initializeSessions(ctx context.Context, cfg *store.Config, secrets store.Secrets) *session.Store {
	auth := zerodha.NewAuthenticator(zerodha.AuthParams{
		Credentials: zerodha.Credentials{
			APIKey:    secrets.APIKey,
			APISecret: secrets.APISecret,
			UserID:    secrets.UserID,
			Password:  secrets.Password,
		},
		Mode:           cfg.Mode,
		Exchange:       cfg.Strangle.Exchange,
		LoginBaseURL:   cfg.Broker.LoginBaseURL,
		APIBaseURL:     cfg.Broker.APIBaseURL,
		RequestTimeout: cfg.Broker.RequestTimeout,
		ConnectTimeout: cfg.Session.ConnectTimeout,
	})

	if cfg.DryRun() {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated")
	}

	// Wrap with observability middleware
	return session.NewStore(brokerobs.WrapAuthenticator(auth), session.Config{
		TTL:            cfg.Session.TTL,
		CodeLength:     cfg.Session.CodeLength,
		ConnectTimeout: cfg.Session.ConnectTimeout,
	})
}

// initializeEngine wires the quote gateway, resolver and fill poller into the engine
func initializeEngine(cfg *store.Config) interfaces.Engine {
	res := resolver.New(resolver.Config{
		Underlying:    cfg.Strangle.Underlying,
		StrikeStep:    decimal.NewFromFloat(cfg.Strangle.StrikeStep),
		OTMOffset:     decimal.NewFromFloat(cfg.Strangle.OTMOffset),
		ExpiryWeekday: cfg.ExpiryWeekday(),
	})
	fills := engine.NewFillPoller(cfg.Fill.PollAttempts, cfg.Fill.PollInterval)

	eng := engine.New(cfg, marketdata.NewGateway(), res, fills)

	// Wrap with observability middleware
	return engineobs.Wrap(eng)
}

func initializeNotifier(ctx context.Context, secrets store.Secrets) interfaces.Notifier {
	n := notify.New(notify.TelegramConfig{BotToken: secrets.TelegramToken, ChatID: secrets.TelegramChat})
	if _, ok := n.(notify.Noop); ok {
		logger.Warn(ctx, "Telegram not configured - notifications disabled")
	}
	return n
}

func initializeServer(ctx context.Context, cfg *store.Config, secrets store.Secrets) (*dispatcher.Server, *session.Store) {
	sessions := initializeSessions(ctx, cfg, secrets)
	d := dispatcher.New(sessions, initializeEngine(cfg), initializeNotifier(ctx, secrets))
	if secrets.WebhookSecret == "" {
		logger.Warn(ctx, "WEBHOOK_SECRET not set - trigger endpoints are unauthenticated")
	}
	return dispatcher.NewServer(cfg.HTTP.Addr, d, secrets.WebhookSecret), sessions
}
