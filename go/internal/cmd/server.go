package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livegame/go/internal/livegame/api"
	"github.com/mcdev12/livegame/go/internal/livegame/session"
	"github.com/mcdev12/livegame/go/internal/livegame/stats"
)

func setupServer(services *Services) *http.Server {
	return api.NewServer(services.API, services.Options)
}

// serve runs the HTTP server until it fails or is shut down.
func serve(server *http.Server, errCh chan<- error) {
	log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- err
	}
}

// shutdown stops accepting requests, closes every live game so players
// receive game-ended, then flushes pending stats.
func shutdown(ctx context.Context, server *http.Server, services *Services, dispatcher *stats.Dispatcher) {
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	services.Registry.CloseAll(session.ReasonServerShutdown)

	if dispatcher != nil {
		if err := dispatcher.Close(ctx); err != nil {
			log.Error().Err(err).Msg("close stats recorder")
		}
	}
}
