package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher, err := setupStats(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up game stats")
	}

	services, err := setupServices(cfg, dispatcher)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	server := setupServer(services)

	log.Info().
		Int("port", cfg.Port).
		Str("stats_backend", cfg.Stats.Backend).
		Dur("host_grace_period", cfg.Game.HostGracePeriod).
		Msg("starting live game server")

	go services.Registry.Run(ctx)

	errCh := make(chan error, 1)
	go serve(server, errCh)

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shutdown(shutdownCtx, server, services, dispatcher)

	log.Info().Msg("live game server shutdown complete")
}
