package main

import (
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/livegame/go/internal/livegame/api"
	"github.com/mcdev12/livegame/go/internal/livegame/clock"
	"github.com/mcdev12/livegame/go/internal/livegame/config"
	"github.com/mcdev12/livegame/go/internal/livegame/gateway"
	"github.com/mcdev12/livegame/go/internal/livegame/registry"
	"github.com/mcdev12/livegame/go/internal/livegame/scoring"
	"github.com/mcdev12/livegame/go/internal/livegame/session"
	"github.com/mcdev12/livegame/go/internal/livegame/stats"
)

type Services struct {
	Registry *registry.Registry
	Gateway  *gateway.Gateway
	API      *api.Service
	Options  api.Options
}

func setupServices(cfg *config.Config, dispatcher *stats.Dispatcher) (*Services, error) {
	// Clock → scoring → gateway → registry → API

	clk := clock.NewService(clockwork.NewRealClock(), cfg.Game.TickInterval)

	engine, err := scoring.NewEngine(cfg.Game.BasePoints)
	if err != nil {
		return nil, fmt.Errorf("create scoring engine: %w", err)
	}

	gw := gateway.New(connectionConfig(cfg.WebSocket))

	var opts []registry.Option
	if dispatcher != nil {
		opts = append(opts, registry.WithStats(dispatcher))
	}
	reg := registry.New(clk, engine, gw, registry.Config{
		Session: session.Config{
			SettleDelay:     cfg.Game.SettleDelay,
			HostGracePeriod: cfg.Game.HostGracePeriod,
			MaxPlayers:      cfg.Game.MaxPlayers,
		},
		IdleTTL:    cfg.Game.IdleTTL,
		GCInterval: cfg.Game.GCInterval,
	}, opts...)

	apiOpts := api.Options{
		Port:            cfg.Port,
		CORSOrigins:     cfg.CORSOrigins,
		DefaultDuration: cfg.Game.QuestionDuration(),
		MaxQuestions:    cfg.Game.MaxQuestions,
	}

	return &Services{
		Registry: reg,
		Gateway:  gw,
		API:      api.NewService(reg, gw, clk, apiOpts),
		Options:  apiOpts,
	}, nil
}
