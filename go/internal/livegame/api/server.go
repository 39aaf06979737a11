package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/livegame/go/internal/livegame/clock"
	"github.com/mcdev12/livegame/go/internal/livegame/gateway"
	"github.com/mcdev12/livegame/go/internal/livegame/registry"
)

// Options configures the API surface.
type Options struct {
	Port            int
	CORSOrigins     []string
	DefaultDuration time.Duration
	MaxQuestions    int
}

// Service wires the command RPCs, websocket and state handlers
type Service struct {
	commands     *Commands
	game         *GameService
	wsHandler    *WebSocketHandler
	stateHandler *StateHandler
}

// NewService creates the API service. It registers the websocket command
// handler with reg, so it must run before any game is created.
func NewService(reg *registry.Registry, gw *gateway.Gateway, clk *clock.Service, opts Options) *Service {
	commands := NewCommands(reg, opts.DefaultDuration, opts.MaxQuestions)
	wsHandler := NewWebSocketHandler(commands, gw, clk)
	reg.SetMessageHandler(wsHandler.HandleMessage)

	return &Service{
		commands:     commands,
		game:         NewGameService(commands),
		wsHandler:    wsHandler,
		stateHandler: NewStateHandler(commands, reg),
	}
}

// RegisterRoutes registers every route with an HTTP mux
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	path, handler := NewGameServiceHandler(s.game)
	mux.Handle(path, handler)
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	setupHealthCheck(mux)
	log.Info().Msg("live game routes registered")
}

// NewServer builds the HTTP server: CORS on the outside, h2c so Connect
// clients can use HTTP/2 without TLS.
func NewServer(svc *Service, opts Options) *http.Server {
	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: origins,
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{MetaErrorCode},
	})

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           h2c.NewHandler(c.Handler(mux), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
