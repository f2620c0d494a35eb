package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kite-strangle-bot/internal/logger"
	"kite-strangle-bot/internal/trace"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	must(initializeSystem())
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, secrets, err := loadConfig(ctx, *configPath)
	must(err)

	srv, sessions := initializeServer(ctx, cfg, secrets)

	logger.Info(ctx, "Bot started", "mode", cfg.Mode, "addr", srv.Addr(), "underlying", cfg.Strangle.Underlying)
	if err := srv.Start(ctx); err != nil {
		logger.ErrorWithErr(ctx, "HTTP server stopped", err)
	}

	logger.Info(ctx, "Shutting down...")
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sessions.Invalidate(shCtx)
	if err := trace.Shutdown(shCtx); err != nil {
		logger.Warn(shCtx, "Tracer shutdown failed", "error", err)
	}
}
