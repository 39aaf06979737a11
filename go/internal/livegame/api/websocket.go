package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livegame/go/internal/livegame/clock"
	"github.com/mcdev12/livegame/go/internal/livegame/events"
	"github.com/mcdev12/livegame/go/internal/livegame/gateway"
	"github.com/mcdev12/livegame/go/internal/livegame/session"
	"github.com/mcdev12/livegame/go/internal/models"
)

// Inbound websocket actions.
const (
	ActionStartGame    = "start-game"
	ActionSubmitAnswer = "submit-answer"
	ActionEndGame      = "end-game"
)

// InboundMessage is a command sent by a client over its game connection.
type InboundMessage struct {
	Action      string `json:"action"`
	RequestID   string `json:"request_id,omitempty"`
	OptionIndex *int   `json:"option_index,omitempty"`
}

// WebSocketHandler handles WebSocket upgrade requests for game connections
type WebSocketHandler struct {
	commands *Commands
	gateway  *gateway.Gateway
	clock    *clock.Service
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(commands *Commands, gw *gateway.Gateway, clk *clock.Service) *WebSocketHandler {
	return &WebSocketHandler{
		commands: commands,
		gateway:  gw,
		clock:    clk,
	}
}

// HandleGameConnection attaches a player or the host to a game. Browsers
// cannot set headers on websocket requests, so identity comes from the query
// string. Unknown players are joined first, which only succeeds in Lobby.
func (h *WebSocketHandler) HandleGameConnection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := strings.TrimSpace(q.Get("code"))
	id := Identity{
		PlayerID:    strings.TrimSpace(q.Get("player_id")),
		DisplayName: strings.TrimSpace(q.Get("display_name")),
	}
	if id.PlayerID == "" {
		writeError(w, session.InvalidInput("player_id is required"))
		return
	}
	if v := q.Get("guest"); v != "" {
		guest, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, session.InvalidInput("invalid guest flag"))
			return
		}
		id.IsGuest = guest
	}

	sess, err := h.commands.Lookup(code)
	if err != nil {
		writeError(w, err)
		return
	}
	if id.PlayerID != sess.HostID() {
		if _, _, err := h.commands.Join(code, id); err != nil {
			writeError(w, err)
			return
		}
	}

	conn, err := h.gateway.Upgrade(w, r)
	if err != nil {
		log.Error().
			Err(err).
			Str("game_code", code).
			Str("player_id", id.PlayerID).
			Msg("failed to upgrade WebSocket connection")
		return
	}

	hub, ok := h.gateway.Hub(code)
	if !ok {
		_ = conn.Close()
		return
	}
	if _, err := hub.Register(id.PlayerID, conn); err != nil {
		log.Warn().Err(err).Str("game_code", code).Msg("game closed before connection registered")
		_ = conn.Close()
		return
	}

	// Connect sends the state-sync after the connection is registered, so no
	// broadcast falls between the snapshot and live delivery.
	if err := sess.Connect(id.PlayerID); err != nil {
		log.Warn().
			Err(err).
			Str("game_code", code).
			Str("player_id", id.PlayerID).
			Msg("connection rejected by game")
		_ = conn.Close()
	}
}

// HandleMessage executes an inbound command and acknowledges it to the
// sender only.
func (h *WebSocketHandler) HandleMessage(sess *session.Session, conn *gateway.Connection, message []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		h.ack(sess.Code(), conn.PlayerID, events.AckPayload{
			Action:  "unknown",
			Code:    string(session.CodeInvalidInput),
			Message: "malformed message",
		})
		return
	}

	var err error
	switch msg.Action {
	case ActionStartGame:
		err = sess.Start(conn.PlayerID)
	case ActionSubmitAnswer:
		if msg.OptionIndex == nil {
			err = session.InvalidInput("option_index is required")
			break
		}
		_, err = sess.Submit(conn.PlayerID, *msg.OptionIndex)
	case ActionEndGame:
		if conn.PlayerID == sess.HostID() && sess.State() != models.GameStateClosed {
			// queued before End closes the hub
			h.ack(sess.Code(), conn.PlayerID, events.AckPayload{
				Action:    msg.Action,
				RequestID: msg.RequestID,
				Success:   true,
			})
			if err := sess.End(conn.PlayerID); err != nil {
				log.Debug().
					Err(err).
					Str("game_code", sess.Code()).
					Str("player_id", conn.PlayerID).
					Msg("end-game raced with session close")
			}
			return
		}
		err = sess.End(conn.PlayerID)
	default:
		err = session.InvalidInput("unknown action " + strconv.Quote(msg.Action))
	}

	ack := events.AckPayload{
		Action:    msg.Action,
		RequestID: msg.RequestID,
		Success:   err == nil,
	}
	if err != nil {
		ack.Code = string(session.CodeOf(err))
		ack.Message = err.Error()
		log.Debug().
			Err(err).
			Str("game_code", sess.Code()).
			Str("player_id", conn.PlayerID).
			Str("action", msg.Action).
			Msg("command rejected")
	}
	h.ack(sess.Code(), conn.PlayerID, ack)
}

func (h *WebSocketHandler) ack(code, playerID string, payload events.AckPayload) {
	hub, ok := h.gateway.Hub(code)
	if !ok {
		return
	}
	event, err := events.New(code, events.EventTypeAck, payload, h.clock.Now())
	if err != nil {
		log.Error().Err(err).Msg("failed to build ack")
		return
	}
	hub.SendTo(playerID, event)
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gateway.Stats())
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/game", h.HandleGameConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
