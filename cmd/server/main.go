// Command server runs the Discord monitoring backend: it opens the gateway
// connection, ingests and stores messages, arms the retention sweeper, and
// serves the query/reporting API over HTTP.
//
// Configuration comes from the environment (optionally a .env file); see
// internal/config for the full key list. A missing DISCORD_TOKEN starts the
// process in degraded mode: the API serves stored data and reports the bot
// offline, but nothing is ingested.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mpapad/go-discord-monitor/internal/bot"
	"github.com/mpapad/go-discord-monitor/internal/config"
	httpapi "github.com/mpapad/go-discord-monitor/internal/http"
	"github.com/mpapad/go-discord-monitor/internal/observability"
	"github.com/mpapad/go-discord-monitor/internal/repo"
	"github.com/mpapad/go-discord-monitor/internal/services"
	"github.com/mpapad/go-discord-monitor/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Best effort; absence of a .env file is the normal production case.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	log.Info().Str("version", version).Str("storage", cfg.StorageDriver).Msg("starting monitor backend")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("opening store failed")
	}

	// The command executor needs the manager's uptime and the manager needs
	// the executor for chat replies; a closure breaks the cycle.
	var mgr *bot.Manager
	cmdSvc := services.NewCommandService(store, func() string {
		if mgr == nil {
			return "0m"
		}
		return mgr.Uptime()
	})

	deps := httpapi.Deps{Store: store, CmdSvc: cmdSvc}
	if cfg.DiscordToken != "" {
		mgr = bot.NewManager(cfg.DiscordToken, store, cmdSvc, log.Logger)
		if err := mgr.Start(ctx); err != nil {
			// Degraded mode: keep serving stored data.
			log.Error().Err(err).Msg("gateway start failed, serving API only")
		}
		deps.Gateway = mgr
	} else {
		log.Warn().Msg("DISCORD_TOKEN not set, serving API only")
	}

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if mgr != nil {
		mgr.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
	log.Info().Msg("monitor backend stopped")
}

// openStore selects the storage driver from configuration.
func openStore(cfg config.Config) (repo.Store, error) {
	switch cfg.StorageDriver {
	case "memory":
		return repo.NewMemoryStore(), nil
	default:
		db, err := repo.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		if err := repo.AutoMigrate(db); err != nil {
			return nil, err
		}
		return repo.NewGormStore(db)
	}
}
