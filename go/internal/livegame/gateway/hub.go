package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/livegame/go/internal/livegame/events"
	"github.com/rs/zerolog/log"
)

// DisconnectHandler is told when a player's current connection goes away.
type DisconnectHandler func(playerID string)

// MessageHandler receives raw inbound client messages.
type MessageHandler func(c *Connection, message []byte)

// outbound is a queued hub instruction.
type outbound struct {
	event    *events.Event
	playerID string // if set, only send to this player
	close    bool
}

// Hub is the connection registry and broadcaster for one game session. A
// player has at most one connection; registering a new one replaces the old.
type Hub struct {
	code    string
	gateway *Gateway
	config  ConnectionConfig

	connections map[string]*Connection
	mu          sync.RWMutex
	closed      bool

	queue chan outbound
	done  chan struct{}

	onDisconnect DisconnectHandler
	onMessage    MessageHandler
}

func newHub(code string, g *Gateway) *Hub {
	return &Hub{
		code:        code,
		gateway:     g,
		config:      g.config,
		connections: make(map[string]*Connection),
		queue:       make(chan outbound, g.config.EventBufferSize),
		done:        make(chan struct{}),
	}
}

// Code returns the game code this hub serves.
func (h *Hub) Code() string {
	return h.code
}

// OnDisconnect sets the handler for dropped player connections.
func (h *Hub) OnDisconnect(fn DisconnectHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDisconnect = fn
}

// OnMessage sets the handler for inbound client messages.
func (h *Hub) OnMessage(fn MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMessage = fn
}

// Register attaches transport as playerID's connection and starts its pumps.
func (h *Hub) Register(playerID string, transport Transport) (*Connection, error) {
	conn := &Connection{
		ID:          uuid.New().String(),
		PlayerID:    playerID,
		GameCode:    h.code,
		transport:   transport,
		send:        make(chan []byte, h.config.SendBufferSize),
		done:        make(chan struct{}),
		hub:         h,
		ConnectedAt: time.Now(),
	}
	conn.lastPing = conn.ConnectedAt

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	previous := h.connections[playerID]
	h.connections[playerID] = conn
	total := len(h.connections)
	h.mu.Unlock()

	if previous != nil {
		log.Info().
			Str("game_code", h.code).
			Str("player_id", playerID).
			Str("connection_id", previous.ID).
			Msg("replacing existing connection")
		previous.close()
	}

	go conn.writePump()
	go conn.readPump()

	log.Info().
		Str("connection_id", conn.ID).
		Str("player_id", playerID).
		Str("game_code", h.code).
		Int("total_connections", total).
		Msg("connection registered")

	return conn, nil
}

// unregister removes conn if it is still the player's current connection and
// reports the disconnect. Replaced connections are dropped silently.
func (h *Hub) unregister(conn *Connection) {
	h.mu.Lock()
	current, ok := h.connections[conn.PlayerID]
	if !ok || current != conn || h.closed {
		h.mu.Unlock()
		conn.close()
		return
	}
	delete(h.connections, conn.PlayerID)
	onDisconnect := h.onDisconnect
	h.mu.Unlock()

	conn.close()

	log.Info().
		Str("connection_id", conn.ID).
		Str("player_id", conn.PlayerID).
		Str("game_code", h.code).
		Msg("connection unregistered")

	if onDisconnect != nil {
		onDisconnect(conn.PlayerID)
	}
}

// Broadcast queues event for every connection of the game. It never blocks.
func (h *Hub) Broadcast(event *events.Event) {
	h.enqueue(outbound{event: event})
}

// SendTo queues event for one player's connection only.
func (h *Hub) SendTo(playerID string, event *events.Event) {
	h.enqueue(outbound{event: event, playerID: playerID})
}

// Close delivers everything queued so far, then closes all connections and
// stops the hub. Later broadcasts are discarded. If the queue is full the hub
// shuts down at once and the queued events are lost.
func (h *Hub) Close() {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.queue <- outbound{close: true}:
	default:
		log.Warn().
			Str("game_code", h.code).
			Int("queued", len(h.queue)).
			Msg("broadcast queue full, closing hub without draining")
		h.shutdown()
	}
}

func (h *Hub) connectionInfo() []ConnectionInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	infos := make([]ConnectionInfo, 0, len(h.connections))
	for _, conn := range h.connections {
		infos = append(infos, ConnectionInfo{
			ID:          conn.ID,
			GameCode:    h.code,
			PlayerID:    conn.PlayerID,
			ConnectedAt: conn.ConnectedAt,
			LastPing:    conn.LastPing(),
		})
	}
	return infos
}

// Connected reports whether playerID has a live connection.
func (h *Hub) Connected(playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.connections[playerID]
	return ok
}

// Done is closed once the hub has shut down.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) enqueue(msg outbound) {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.queue <- msg:
	default:
		log.Warn().
			Str("game_code", h.code).
			Str("player_id", msg.playerID).
			Msg("broadcast queue full, dropping message")
	}
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return
		case msg := <-h.queue:
			if msg.close {
				h.shutdown()
				return
			}
			h.deliver(msg)
		}
	}
}

// deliver fans one event out. A failing connection is retried once and then
// dropped; it never stops delivery to the others.
func (h *Hub) deliver(msg outbound) {
	h.mu.RLock()
	var targets []*Connection
	if msg.playerID != "" {
		if conn, ok := h.connections[msg.playerID]; ok {
			targets = append(targets, conn)
		}
	} else {
		targets = make([]*Connection, 0, len(h.connections))
		for _, conn := range h.connections {
			targets = append(targets, conn)
		}
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	// Marshal the event once
	data, err := json.Marshal(msg.event)
	if err != nil {
		log.Error().Err(err).Str("game_code", h.code).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		if conn.enqueue(data) {
			continue
		}
		if conn.enqueueWithin(data, h.config.RetryDelay) {
			continue
		}
		log.Warn().
			Str("connection_id", conn.ID).
			Str("player_id", conn.PlayerID).
			Str("game_code", h.code).
			Msg("connection send buffer full after retry, dropping connection")
		h.unregister(conn)
	}

	log.Debug().
		Str("event_type", string(msg.event.Type)).
		Str("game_code", h.code).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	conns := h.connections
	h.connections = make(map[string]*Connection)
	close(h.done)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.close()
	}
	h.gateway.remove(h)

	log.Info().
		Str("game_code", h.code).
		Int("connections_closed", len(conns)).
		Msg("game hub closed")
}
