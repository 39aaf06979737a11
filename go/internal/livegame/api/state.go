package api

import (
	"net/http"

	"github.com/mcdev12/livegame/go/internal/livegame/registry"
	"github.com/mcdev12/livegame/go/internal/livegame/session"
)

// ActiveGamesResponse lists live games.
type ActiveGamesResponse struct {
	Games []session.Info `json:"games"`
	Count int            `json:"count"`
}

// StateHandler serves read-only game state over HTTP
type StateHandler struct {
	commands *Commands
	registry *registry.Registry
}

// NewStateHandler creates a new state handler
func NewStateHandler(commands *Commands, reg *registry.Registry) *StateHandler {
	return &StateHandler{
		commands: commands,
		registry: reg,
	}
}

// HandleGetGameState returns the snapshot a connection would receive on
// attach. player_id is optional.
func (h *StateHandler) HandleGetGameState(w http.ResponseWriter, r *http.Request) {
	sess, err := h.commands.Lookup(r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot(r.URL.Query().Get("player_id")))
}

// HandleGetActiveGames lists every live game
func (h *StateHandler) HandleGetActiveGames(w http.ResponseWriter, r *http.Request) {
	games := h.registry.Active()
	writeJSON(w, http.StatusOK, ActiveGamesResponse{
		Games: games,
		Count: len(games),
	})
}

// RegisterStateRoutes registers the state routes with an HTTP mux
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/games/active", h.HandleGetActiveGames)
	mux.HandleFunc("GET /api/games/{code}/state", h.HandleGetGameState)
}
