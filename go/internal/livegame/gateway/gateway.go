// Package gateway keeps the live connections of each game session and fans
// events out to them.
package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrHubClosed = errors.New("game hub is closed")

// Transport is the subset of *websocket.Conn a Connection needs.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int           // per-connection outbound queue
	EventBufferSize int           // per-game broadcast queue
	RetryDelay      time.Duration // wait before the single delivery retry
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		EventBufferSize: 1000,
		RetryDelay:      50 * time.Millisecond,
		CheckOrigin: func(r *http.Request) bool {
			// origin policy is enforced by the CORS layer in front of us
			return true
		},
	}
}

// Gateway owns one Hub per live game code.
type Gateway struct {
	hubs map[string]*Hub
	mu   sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
}

// Stats summarises the gateway's live connections.
type Stats struct {
	TotalConnections int              `json:"total_connections"`
	ActiveGames      int              `json:"active_games"`
	GameConnections  map[string]int   `json:"game_connections"`
	Connections      []ConnectionInfo `json:"connections"`
}

// ConnectionInfo describes one live connection.
type ConnectionInfo struct {
	ID          string    `json:"id"`
	GameCode    string    `json:"game_code"`
	PlayerID    string    `json:"player_id"`
	ConnectedAt time.Time `json:"connected_at"`
	LastPing    time.Time `json:"last_ping"`
}

// New creates a gateway.
func New(config ConnectionConfig) *Gateway {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}
	if config.EventBufferSize <= 0 {
		config.EventBufferSize = 1000
	}
	return &Gateway{
		hubs: make(map[string]*Hub),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// Open returns the hub for code, starting one if needed.
func (g *Gateway) Open(code string) *Hub {
	g.mu.Lock()
	defer g.mu.Unlock()

	if hub, ok := g.hubs[code]; ok {
		return hub
	}
	hub := newHub(code, g)
	g.hubs[code] = hub
	go hub.run()

	log.Debug().Str("game_code", code).Msg("game hub opened")
	return hub
}

// Hub returns the hub for code.
func (g *Gateway) Hub(code string) (*Hub, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	hub, ok := g.hubs[code]
	return hub, ok
}

func (g *Gateway) remove(hub *Hub) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if current, ok := g.hubs[hub.code]; ok && current == hub {
		delete(g.hubs, hub.code)
	}
}

// Upgrade upgrades an HTTP request to a WebSocket transport.
func (g *Gateway) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}
	return conn, nil
}

// Stats returns statistics about active connections
func (g *Gateway) Stats() Stats {
	g.mu.RLock()
	hubs := make([]*Hub, 0, len(g.hubs))
	for _, h := range g.hubs {
		hubs = append(hubs, h)
	}
	g.mu.RUnlock()

	stats := Stats{
		ActiveGames:     len(hubs),
		GameConnections: make(map[string]int, len(hubs)),
	}
	for _, h := range hubs {
		infos := h.connectionInfo()
		stats.TotalConnections += len(infos)
		stats.GameConnections[h.code] = len(infos)
		stats.Connections = append(stats.Connections, infos...)
	}
	return stats
}
