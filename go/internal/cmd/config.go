package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livegame/go/internal/livegame/config"
	"github.com/mcdev12/livegame/go/internal/livegame/gateway"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// loadConfig reads the file named by -config or LIVEGAME_CONFIG. With
// neither set, defaults and the environment apply.
func loadConfig() (*config.Config, error) {
	path := flag.String("config", getEnv("LIVEGAME_CONFIG", ""), "path to YAML config file")
	flag.Parse()
	return config.Load(*path)
}

func setupLogging(cfg *config.Config) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(cfg.Level())
}

func connectionConfig(cfg config.WebSocketConfig) gateway.ConnectionConfig {
	cc := gateway.DefaultConnectionConfig()
	cc.WriteTimeout = cfg.WriteTimeout
	cc.ReadTimeout = cfg.ReadTimeout
	cc.PingInterval = cfg.PingInterval
	cc.MaxMessageSize = cfg.MaxMessageSize
	cc.SendBufferSize = cfg.SendBufferSize
	cc.EventBufferSize = cfg.EventBufferSize
	cc.RetryDelay = cfg.RetryDelay
	return cc
}
