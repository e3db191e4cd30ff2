// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"entitlement-service/internal/application"
	"entitlement-service/internal/config"
	"entitlement-service/internal/infra/api"
	"entitlement-service/internal/infra/i18n"
	"entitlement-service/internal/infra/logging"
	"entitlement-service/internal/infra/metrics"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (unredacted codes in logs, console output)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	// ---- Metrics ----
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Backends + use cases ----
	c, err := application.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build application")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Close(closeCtx); err != nil {
			logger.Error().Err(err).Msg("failed to close backends")
		}
	}()
	logger.Info().
		Str("store", cfg.Store.Driver).
		Str("ratelimit", cfg.RateLimit.Backend).
		Msg("backends ready")

	// ---- HTTP ----
	srv := api.NewServer(api.Deps{
		Redeem:   c.Redeem,
		Admin:    c.Admin,
		Accounts: c.Accounts,
		Auth:     api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Catalog:  i18n.MustDefaultCatalog(),
		Clock:    c.Clock,
		Logger:   logger,
		Timeout:  cfg.Server.RequestTimeout,
		Ready:    c.Ready,
	})
	errc := make(chan error, 1)
	go func() { errc <- srv.Start(cfg.Server.Port) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigc:
		logger.Info().Str("signal", sig.String()).Msg("shutdown requested")
	case err := <-errc:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
}
