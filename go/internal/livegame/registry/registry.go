// Package registry owns every live game session in the process: code
// allocation, lookup, player membership and idle garbage collection.
package registry

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livegame/go/internal/livegame/clock"
	"github.com/mcdev12/livegame/go/internal/livegame/gateway"
	"github.com/mcdev12/livegame/go/internal/livegame/scoring"
	"github.com/mcdev12/livegame/go/internal/livegame/session"
	"github.com/mcdev12/livegame/go/internal/models"
)

// Config controls session defaults and garbage collection.
type Config struct {
	Session    session.Config
	IdleTTL    time.Duration
	GCInterval time.Duration
}

// MessageHandler handles an inbound message from a session connection.
type MessageHandler func(sess *session.Session, conn *gateway.Connection, message []byte)

// Registry is the process-wide code → session map.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	members  map[string]string // player id → game code

	clock    *clock.Service
	scoring  *scoring.Engine
	gateway  *gateway.Gateway
	stats    session.StatsSink
	cfg      Config
	generate CodeGenerator
	onMsg    MessageHandler
}

// Option customises a Registry.
type Option func(*Registry)

// WithCodeGenerator replaces the random code generator.
func WithCodeGenerator(gen CodeGenerator) Option {
	return func(r *Registry) {
		r.generate = gen
	}
}

// WithStats sets the sink that receives end-of-game records.
func WithStats(sink session.StatsSink) Option {
	return func(r *Registry) {
		r.stats = sink
	}
}

// WithMessageHandler routes inbound connection messages.
func WithMessageHandler(fn MessageHandler) Option {
	return func(r *Registry) {
		r.onMsg = fn
	}
}

// New creates an empty registry.
func New(clk *clock.Service, engine *scoring.Engine, gw *gateway.Gateway, cfg Config, opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*session.Session),
		members:  make(map[string]string),
		clock:    clk,
		scoring:  engine,
		gateway:  gw,
		cfg:      cfg,
		generate: GenerateCode,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetMessageHandler replaces the inbound message handler for sessions
// created afterwards.
func (r *Registry) SetMessageHandler(fn MessageHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onMsg = fn
}

// Create allocates a unique code and starts a session in Lobby. The code is
// chosen and inserted under the registry lock, so concurrent creates never
// share a code.
func (r *Registry) Create(hostID string, questions []models.Question, perQuestion time.Duration) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, err := r.allocateCodeLocked()
	if err != nil {
		return nil, err
	}

	hub := r.gateway.Open(code)
	sess, err := session.New(code, hostID, questions, perQuestion, r.cfg.Session, session.Deps{
		Clock:       r.clock,
		Scoring:     r.scoring,
		Broadcaster: hub,
		Stats:       r.stats,
		OnClosed:    r.remove,
	})
	if err != nil {
		hub.Close()
		return nil, err
	}

	hub.OnDisconnect(sess.Disconnect)
	if onMsg := r.onMsg; onMsg != nil {
		hub.OnMessage(func(c *gateway.Connection, message []byte) {
			onMsg(sess, c, message)
		})
	}
	r.sessions[code] = sess

	log.Info().
		Str("game_code", code).
		Str("host_id", hostID).
		Int("questions", len(questions)).
		Msg("game created")
	return sess, nil
}

func (r *Registry) allocateCodeLocked() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := r.generate()
		if err != nil {
			return "", fmt.Errorf("generate game code: %w", err)
		}
		if _, taken := r.sessions[code]; taken {
			continue
		}
		if _, open := r.gateway.Hub(code); open {
			// hub of a just-closed session still draining
			continue
		}
		return code, nil
	}
	return "", ErrCodeSpaceExhausted
}

// Lookup returns the session for code, or session.ErrInvalidCode.
func (r *Registry) Lookup(code string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[code]
	if !ok {
		return nil, session.ErrInvalidCode
	}
	return sess, nil
}

// Hub returns the delivery hub for code.
func (r *Registry) Hub(code string) (*gateway.Hub, bool) {
	return r.gateway.Hub(code)
}

// Join adds playerID to the session for code. A player may belong to one
// live session at a time.
func (r *Registry) Join(code, playerID, displayName string, isGuest bool) (models.Player, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[code]
	if !ok {
		return models.Player{}, false, session.ErrInvalidCode
	}
	if other, ok := r.members[playerID]; ok && other != code {
		return models.Player{}, false, session.InvalidInput("player is already in another game")
	}

	player, created, err := sess.Join(playerID, displayName, isGuest)
	if err != nil {
		return models.Player{}, false, err
	}
	r.members[player.ID] = code
	return player, created, nil
}

// remove drops a closed session and releases its members. Sessions call it
// through OnClosed after releasing their own lock.
func (r *Registry) remove(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[code]; !ok {
		return
	}
	delete(r.sessions, code)
	for playerID, c := range r.members {
		if c == code {
			delete(r.members, playerID)
		}
	}
	log.Info().Str("game_code", code).Int("live_games", len(r.sessions)).Msg("game removed")
}

// Active lists summaries of every live session, oldest first.
func (r *Registry) Active() []session.Info {
	out := make([]session.Info, 0)
	for _, sess := range r.snapshot() {
		out = append(out, sess.Info())
	}
	slices.SortFunc(out, func(a, b session.Info) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.Code < b.Code {
			return -1
		}
		if a.Code > b.Code {
			return 1
		}
		return 0
	})
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) snapshot() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session.Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	return out
}

// Collect closes sessions idle for longer than the TTL and returns how many
// it closed. Sessions are expired outside the registry lock because closing
// calls back into remove.
func (r *Registry) Collect() int {
	now := r.clock.Now()
	closed := 0
	for _, sess := range r.snapshot() {
		if !sess.Idle(now, r.cfg.IdleTTL) {
			continue
		}
		if sess.State() == models.GameStateClosed {
			r.remove(sess.Code())
			continue
		}
		log.Info().Str("game_code", sess.Code()).Msg("closing idle game")
		sess.Expire(session.ReasonIdle)
		closed++
	}
	return closed
}

// Run garbage-collects idle sessions every GCInterval until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	interval := r.cfg.GCInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := r.clock.Clock().NewTicker(interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", interval).
		Dur("idle_ttl", r.cfg.IdleTTL).
		Msg("session garbage collector started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := r.Collect(); n > 0 {
				log.Info().Int("closed", n).Int("live_games", r.Len()).Msg("idle games collected")
			}
		}
	}
}

// CloseAll force-closes every live session with reason.
func (r *Registry) CloseAll(reason string) {
	sessions := r.snapshot()
	for _, sess := range sessions {
		sess.Expire(reason)
	}
	log.Info().Int("games", len(sessions)).Str("reason", reason).Msg("closed all games")
}
