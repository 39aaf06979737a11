package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID       string
	PlayerID string
	GameCode string

	transport Transport
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	hub       *Hub

	// Connection metadata
	ConnectedAt time.Time
	lastPing    time.Time
	pingMu      sync.Mutex
}

// LastPing returns the time of the last ping/pong exchange.
func (c *Connection) LastPing() time.Time {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()
	return c.lastPing
}

func (c *Connection) touch() {
	c.pingMu.Lock()
	c.lastPing = time.Now()
	c.pingMu.Unlock()
}

// enqueue queues data without blocking.
func (c *Connection) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// enqueueWithin is the single retry: it waits up to d for buffer space.
func (c *Connection) enqueueWithin(data []byte, d time.Duration) bool {
	if d <= 0 {
		return c.enqueue(data)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return true
	case <-timer.C:
		return false
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// write sends one frame, retrying once on failure.
func (c *Connection) write(messageType int, data []byte) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		c.transport.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
		if err = c.transport.WriteMessage(messageType, data); err == nil {
			return nil
		}
		log.Warn().
			Err(err).
			Str("connection_id", c.ID).
			Int("attempt", attempt+1).
			Msg("failed to write message to WebSocket")
	}
	return err
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	interval := c.hub.config.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		c.transport.Close()
		c.hub.unregister(c)
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}

		case <-c.done:
			c.flush()
			c.transport.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			c.transport.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
			c.touch()
		}
	}
}

// flush writes whatever is still queued, best effort.
func (c *Connection) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.transport.Close()
	}()

	c.transport.SetReadLimit(c.hub.config.MaxMessageSize)
	c.transport.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.transport.SetPongHandler(func(string) error {
		c.transport.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		c.touch()
		return nil
	})

	for {
		_, message, err := c.transport.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		c.hub.mu.RLock()
		onMessage := c.hub.onMessage
		c.hub.mu.RUnlock()
		if onMessage != nil {
			onMessage(c, message)
		} else {
			log.Debug().
				Str("connection_id", c.ID).
				Str("player_id", c.PlayerID).
				RawJSON("message", message).
				Msg("received client message")
		}
		c.transport.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}
