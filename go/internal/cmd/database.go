package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livegame/go/internal/livegame/config"
	"github.com/mcdev12/livegame/go/internal/livegame/stats"
)

// setupStats builds the end-of-game stats sink for the configured backend.
// It returns nil when stats are disabled.
func setupStats(ctx context.Context, cfg *config.Config) (*stats.Dispatcher, error) {
	var recorder stats.Recorder
	switch cfg.Stats.Backend {
	case config.StatsBackendNone:
		log.Info().Msg("game stats disabled")
		return nil, nil
	case config.StatsBackendLog:
		recorder = stats.LogRecorder{}
	case config.StatsBackendNATS:
		jsCfg := stats.DefaultJetStreamConfig()
		jsCfg.URL = cfg.Stats.NATS.URL
		if cfg.Stats.NATS.StreamName != "" {
			jsCfg.StreamName = cfg.Stats.NATS.StreamName
		}
		if cfg.Stats.NATS.SubjectPrefix != "" {
			jsCfg.SubjectPrefix = cfg.Stats.NATS.SubjectPrefix
		}
		rec, err := stats.NewJetStreamRecorder(ctx, jsCfg)
		if err != nil {
			return nil, fmt.Errorf("create JetStream stats recorder: %w", err)
		}
		recorder = rec
	case config.StatsBackendPostgres:
		rec, err := stats.NewPostgresRecorder(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("create Postgres stats recorder: %w", err)
		}
		log.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("connected to database")
		recorder = rec
	default:
		return nil, fmt.Errorf("unknown stats backend %q", cfg.Stats.Backend)
	}

	log.Info().Str("backend", cfg.Stats.Backend).Msg("game stats enabled")
	return stats.NewDispatcher(recorder, cfg.Stats.DispatchTimeout), nil
}
