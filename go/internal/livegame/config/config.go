// Package config loads live game server settings: built-in defaults, then an
// optional YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/livegame/go/internal/dbconfig"
)

// Stats backends.
const (
	StatsBackendNone     = "none"
	StatsBackendLog      = "log"
	StatsBackendNATS     = "nats"
	StatsBackendPostgres = "postgres"
)

type Config struct {
	Port        int             `yaml:"port" env:"LIVEGAME_PORT"`
	LogLevel    string          `yaml:"log_level" env:"LIVEGAME_LOG_LEVEL"`
	CORSOrigins []string        `yaml:"cors_origins" env:"LIVEGAME_CORS_ORIGINS" envSeparator:","`
	Game        GameConfig      `yaml:"game"`
	WebSocket   WebSocketConfig `yaml:"websocket"`
	Stats       StatsConfig     `yaml:"stats"`
	Database    dbconfig.Config `yaml:"database"`
}

type GameConfig struct {
	DefaultQuestionSeconds int           `yaml:"default_question_seconds" env:"LIVEGAME_QUESTION_SECONDS"`
	MaxQuestions           int           `yaml:"max_questions" env:"LIVEGAME_MAX_QUESTIONS"`
	BasePoints             int           `yaml:"base_points" env:"LIVEGAME_BASE_POINTS"`
	TickInterval           time.Duration `yaml:"tick_interval" env:"LIVEGAME_TICK_INTERVAL"`
	SettleDelay            time.Duration `yaml:"settle_delay" env:"LIVEGAME_SETTLE_DELAY"`
	HostGracePeriod        time.Duration `yaml:"host_grace_period" env:"LIVEGAME_HOST_GRACE_PERIOD"`
	IdleTTL                time.Duration `yaml:"idle_ttl" env:"LIVEGAME_IDLE_TTL"`
	GCInterval             time.Duration `yaml:"gc_interval" env:"LIVEGAME_GC_INTERVAL"`
	MaxPlayers             int           `yaml:"max_players" env:"LIVEGAME_MAX_PLAYERS"`
}

type WebSocketConfig struct {
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"LIVEGAME_WS_WRITE_TIMEOUT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"LIVEGAME_WS_READ_TIMEOUT"`
	PingInterval    time.Duration `yaml:"ping_interval" env:"LIVEGAME_WS_PING_INTERVAL"`
	MaxMessageSize  int64         `yaml:"max_message_size" env:"LIVEGAME_WS_MAX_MESSAGE_SIZE"`
	SendBufferSize  int           `yaml:"send_buffer_size" env:"LIVEGAME_WS_SEND_BUFFER"`
	EventBufferSize int           `yaml:"event_buffer_size" env:"LIVEGAME_WS_EVENT_BUFFER"`
	RetryDelay      time.Duration `yaml:"retry_delay" env:"LIVEGAME_WS_RETRY_DELAY"`
}

type StatsConfig struct {
	Backend         string        `yaml:"backend" env:"LIVEGAME_STATS_BACKEND"`
	DispatchTimeout time.Duration `yaml:"dispatch_timeout" env:"LIVEGAME_STATS_TIMEOUT"`
	NATS            NATSConfig    `yaml:"nats"`
}

type NATSConfig struct {
	URL           string `yaml:"url" env:"NATS_URL"`
	StreamName    string `yaml:"stream" env:"LIVEGAME_STATS_STREAM"`
	SubjectPrefix string `yaml:"subject_prefix" env:"LIVEGAME_STATS_SUBJECT_PREFIX"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:        8080,
		LogLevel:    "info",
		CORSOrigins: []string{"http://localhost:3000"},
		Game: GameConfig{
			DefaultQuestionSeconds: 20,
			MaxQuestions:           100,
			BasePoints:             1000,
			TickInterval:           time.Second,
			SettleDelay:            5 * time.Second,
			HostGracePeriod:        30 * time.Second,
			IdleTTL:                30 * time.Minute,
			GCInterval:             time.Minute,
			MaxPlayers:             200,
		},
		WebSocket: WebSocketConfig{
			WriteTimeout:    10 * time.Second,
			ReadTimeout:     60 * time.Second,
			PingInterval:    54 * time.Second,
			MaxMessageSize:  4096,
			SendBufferSize:  256,
			EventBufferSize: 1000,
			RetryDelay:      50 * time.Millisecond,
		},
		Stats: StatsConfig{
			Backend:         StatsBackendLog,
			DispatchTimeout: 10 * time.Second,
			NATS: NATSConfig{
				URL:           "nats://127.0.0.1:4222",
				StreamName:    "GAME_STATS",
				SubjectPrefix: "livegame.stats",
			},
		},
		Database: dbconfig.Default(),
	}
}

// Load applies the YAML file at path (if path is non-empty) and then the
// environment on top of Default.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	if c.Game.DefaultQuestionSeconds <= 0 {
		errs = append(errs, errors.New("default question seconds must be positive"))
	}
	if c.Game.BasePoints < 0 {
		errs = append(errs, errors.New("base points must not be negative"))
	}
	if c.Game.SettleDelay < 0 || c.Game.HostGracePeriod < 0 || c.Game.IdleTTL < 0 {
		errs = append(errs, errors.New("game timeouts must not be negative"))
	}
	switch c.Stats.Backend {
	case StatsBackendNone, StatsBackendLog, StatsBackendNATS, StatsBackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown stats backend %q", c.Stats.Backend))
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level, defaulting to info.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// QuestionDuration is the per-question time used when a create request does
// not set one.
func (g GameConfig) QuestionDuration() time.Duration {
	return time.Duration(g.DefaultQuestionSeconds) * time.Second
}
