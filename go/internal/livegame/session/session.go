// Package session implements the server-authoritative state machine for one
// live game. Every mutation runs under the session mutex, so a clock-driven
// expiry can never interleave with a concurrently arriving submission.
package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livegame/go/internal/livegame/clock"
	"github.com/mcdev12/livegame/go/internal/livegame/events"
	"github.com/mcdev12/livegame/go/internal/livegame/ledger"
	"github.com/mcdev12/livegame/go/internal/livegame/scoring"
	"github.com/mcdev12/livegame/go/internal/livegame/stats"
	"github.com/mcdev12/livegame/go/internal/models"
)

// Reasons carried by game-ended events.
const (
	ReasonCompleted        = "completed"
	ReasonEndedByHost      = "ended-by-host"
	ReasonHostDisconnected = "host-disconnected"
	ReasonIdle             = "idle-timeout"
	ReasonServerShutdown   = "server-shutdown"
)

// Broadcaster fans events out to the session's connections. Implementations
// must not block; *gateway.Hub enqueues onto its own delivery goroutine.
type Broadcaster interface {
	Broadcast(event *events.Event)
	SendTo(playerID string, event *events.Event)
	Close()
}

// StatsSink receives per-player records once a game ends. Dispatch must
// return immediately.
type StatsSink interface {
	Dispatch(records []stats.Record)
}

// Config holds per-session tuning.
type Config struct {
	SettleDelay     time.Duration
	HostGracePeriod time.Duration
	MaxPlayers      int
}

// Deps are the collaborators a session composes.
type Deps struct {
	Clock       *clock.Service
	Scoring     *scoring.Engine
	Broadcaster Broadcaster
	Stats       StatsSink

	// OnClosed is called once, outside the session lock, after the session
	// reaches Closed.
	OnClosed func(code string)
}

// Session is one game identified by its code.
type Session struct {
	mu sync.Mutex

	code      string
	hostID    string
	questions []models.Question
	cfg       Config
	deps      Deps

	players map[string]*models.Player
	order   []string
	state   models.GameState
	round   models.Round
	ledger  *ledger.Ledger

	countdown     *clock.Countdown
	settleTimer   clockwork.Timer
	graceTimer    clockwork.Timer
	graceGen      int
	hostConnected bool

	createdAt    time.Time
	lastActivity time.Time
	statsSent    bool
	closeReason  string

	// set by closeLocked, consumed by unlock
	pendingClosed bool
}

// New validates the question set and returns a session in Lobby.
// perQuestion applies to every question without its own duration.
func New(code, hostID string, questions []models.Question, perQuestion time.Duration, cfg Config, deps Deps) (*Session, error) {
	if strings.TrimSpace(hostID) == "" {
		return nil, InvalidInput("host id is required")
	}
	if len(questions) == 0 {
		return nil, InvalidInput("at least one question is required")
	}
	if perQuestion <= 0 {
		return nil, InvalidInput("question duration must be positive")
	}
	if deps.Clock == nil || deps.Scoring == nil || deps.Broadcaster == nil {
		return nil, errors.New("session: clock, scoring and broadcaster are required")
	}

	qs := make([]models.Question, len(questions))
	for i, q := range questions {
		if strings.TrimSpace(q.Text) == "" {
			return nil, InvalidInput("question text is required")
		}
		if len(q.Options) < 2 {
			return nil, InvalidInput("each question needs at least two options")
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			return nil, InvalidInput("correct option index out of range")
		}
		if q.Duration <= 0 {
			q.Duration = perQuestion
		}
		q.Options = append([]string(nil), q.Options...)
		qs[i] = q
	}

	now := deps.Clock.Now()
	return &Session{
		code:         code,
		hostID:       hostID,
		questions:    qs,
		cfg:          cfg,
		deps:         deps,
		players:      make(map[string]*models.Player),
		state:        models.GameStateLobby,
		round:        models.Round{Index: -1},
		ledger:       ledger.New(),
		createdAt:    now,
		lastActivity: now,
	}, nil
}

// Code returns the session's game code.
func (s *Session) Code() string {
	return s.code
}

// HostID returns the host's player id.
func (s *Session) HostID() string {
	return s.hostID
}

// State returns the current lifecycle state.
func (s *Session) State() models.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RoundIndex returns the current round index, -1 before the game starts.
func (s *Session) RoundIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round.Index
}

// Join adds a player in Lobby. Joining again with a known playerId returns
// the existing record in any state but Closed. created reports whether a new
// Player was added.
func (s *Session) Join(playerID, displayName string, isGuest bool) (player models.Player, created bool, err error) {
	s.mu.Lock()
	defer s.unlock()

	if s.state == models.GameStateClosed {
		return models.Player{}, false, ErrSessionExpired
	}
	playerID = strings.TrimSpace(playerID)
	displayName = strings.TrimSpace(displayName)
	if playerID == "" {
		return models.Player{}, false, InvalidInput("player id is required")
	}
	if p, ok := s.players[playerID]; ok {
		s.touchLocked()
		return p.Clone(), false, nil
	}
	if s.state != models.GameStateLobby {
		return models.Player{}, false, ErrNotInLobby
	}
	if displayName == "" {
		return models.Player{}, false, InvalidInput("display name is required")
	}
	if s.cfg.MaxPlayers > 0 && len(s.players) >= s.cfg.MaxPlayers {
		return models.Player{}, false, InvalidInput("game is full")
	}

	p := &models.Player{
		ID:          playerID,
		DisplayName: displayName,
		IsGuest:     isGuest,
		Active:      true,
		JoinedAt:    s.deps.Clock.Now(),
		Seq:         len(s.order),
	}
	s.players[playerID] = p
	s.order = append(s.order, playerID)
	s.touchLocked()

	log.Info().
		Str("game_code", s.code).
		Str("player_id", playerID).
		Int("players", len(s.players)).
		Msg("player joined")

	s.broadcastLocked(events.EventTypePlayerJoined, events.PlayerJoinedPayload{
		PlayerID:    playerID,
		DisplayName: displayName,
		PlayerCount: len(s.players),
	})
	return p.Clone(), true, nil
}

// Start moves Lobby to round 0. Only the host may start, and only once.
func (s *Session) Start(requesterID string) error {
	s.mu.Lock()
	defer s.unlock()

	if s.state == models.GameStateClosed {
		return ErrSessionExpired
	}
	if requesterID != s.hostID {
		return ErrHostRequired
	}
	if s.state != models.GameStateLobby {
		return ErrAlreadyStarted
	}

	now := s.deps.Clock.Now()
	s.touchLocked()
	log.Info().
		Str("game_code", s.code).
		Int("players", len(s.players)).
		Int("questions", len(s.questions)).
		Msg("game started")

	s.broadcastLocked(events.EventTypeGameStarted, events.GameStartedPayload{
		TotalQuestions: len(s.questions),
		PlayerCount:    len(s.players),
		StartedAt:      now.UTC(),
	})
	s.beginRoundLocked(0)
	return nil
}

// Submit records playerID's answer for the active round. The deadline is
// exclusive: a submission received at or after it is rejected.
func (s *Session) Submit(playerID string, optionIndex int) (models.AnswerSubmission, error) {
	s.mu.Lock()
	defer s.unlock()

	if s.state == models.GameStateClosed {
		return models.AnswerSubmission{}, ErrSessionExpired
	}
	if _, ok := s.players[playerID]; !ok {
		return models.AnswerSubmission{}, ErrPlayerNotFound
	}
	now := s.deps.Clock.Now()
	if s.state != models.GameStateRoundActive || !now.Before(s.round.Deadline()) {
		return models.AnswerSubmission{}, ErrRoundNotActive
	}
	q := s.questions[s.round.Index]
	if optionIndex < 0 || optionIndex >= len(q.Options) {
		return models.AnswerSubmission{}, InvalidInput("option index out of range")
	}

	sub := models.AnswerSubmission{
		PlayerID:    playerID,
		RoundIndex:  s.round.Index,
		OptionIndex: optionIndex,
		ReceivedAt:  now,
	}
	if err := s.ledger.Record(sub); err != nil {
		switch {
		case errors.Is(err, ledger.ErrDuplicate):
			return models.AnswerSubmission{}, ErrDuplicateAnswer
		case errors.Is(err, ledger.ErrRoundSealed):
			return models.AnswerSubmission{}, ErrRoundNotActive
		default:
			s.failLocked("ledger rejected submission for the active round", err)
			return models.AnswerSubmission{}, ErrSessionExpired
		}
	}
	s.touchLocked()

	log.Debug().
		Str("game_code", s.code).
		Str("player_id", playerID).
		Int("round", sub.RoundIndex).
		Int("option", optionIndex).
		Msg("answer accepted")
	return sub, nil
}

// End closes the session from any state. Only the host may end it.
func (s *Session) End(requesterID string) error {
	s.mu.Lock()
	defer s.unlock()

	if s.state == models.GameStateClosed {
		return ErrSessionExpired
	}
	if requesterID != s.hostID {
		return ErrHostRequired
	}
	s.closeLocked(ReasonEndedByHost)
	return nil
}

// Expire force-closes the session with reason. It is a no-op on a closed
// session.
func (s *Session) Expire(reason string) {
	s.mu.Lock()
	defer s.unlock()

	if s.state == models.GameStateClosed {
		return
	}
	s.closeLocked(reason)
}

// Connect marks a participant's connection live and sends it a private
// state-sync. A reconnecting host cancels any pending grace timer.
func (s *Session) Connect(playerID string) error {
	s.mu.Lock()
	defer s.unlock()

	if s.state == models.GameStateClosed {
		return ErrSessionExpired
	}
	p, isPlayer := s.players[playerID]
	isHost := playerID == s.hostID
	if !isPlayer && !isHost {
		return ErrPlayerNotFound
	}

	if isHost {
		s.hostConnected = true
		if s.graceTimer != nil {
			s.graceGen++
			s.graceTimer.Stop()
			s.graceTimer = nil
			log.Info().Str("game_code", s.code).Msg("host reconnected within grace period")
		}
	}
	if isPlayer && !p.Active {
		p.Active = true
		s.broadcastLocked(events.EventTypePlayerStatus, events.PlayerStatusPayload{
			PlayerID: playerID,
			Active:   true,
		})
	}
	s.touchLocked()
	s.sendLocked(playerID, events.EventTypeStateSync, s.snapshotLocked(playerID))
	return nil
}

// Disconnect marks playerID inactive. Score and ledger history are kept. A
// host disconnect starts the grace timer; a non-positive grace period closes
// the session immediately.
func (s *Session) Disconnect(playerID string) {
	s.mu.Lock()
	defer s.unlock()

	if s.state == models.GameStateClosed {
		return
	}
	if p, ok := s.players[playerID]; ok && p.Active {
		p.Active = false
		s.broadcastLocked(events.EventTypePlayerStatus, events.PlayerStatusPayload{
			PlayerID: playerID,
			Active:   false,
		})
	}
	if playerID != s.hostID || !s.hostConnected {
		return
	}

	s.hostConnected = false
	if s.cfg.HostGracePeriod <= 0 {
		s.closeLocked(ReasonHostDisconnected)
		return
	}
	s.graceGen++
	gen := s.graceGen
	s.graceTimer = s.deps.Clock.AfterFunc(s.cfg.HostGracePeriod, func() {
		s.hostGraceExpired(gen)
	})
	log.Warn().
		Str("game_code", s.code).
		Dur("grace", s.cfg.HostGracePeriod).
		Msg("host disconnected, grace timer started")
}

// Snapshot returns the state-sync view for playerID. An empty or unknown
// playerID gets the public view.
func (s *Session) Snapshot(playerID string) events.StateSyncPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(playerID)
}

// Players returns copies of all players in join order.
func (s *Session) Players() []models.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playersLocked()
}

// Submissions returns the accepted answers for roundIndex.
func (s *Session) Submissions(roundIndex int) []models.AnswerSubmission {
	return s.ledger.Submissions(roundIndex)
}

// Info is a listing summary.
type Info struct {
	Code           string           `json:"code"`
	HostID         string           `json:"host_id"`
	State          models.GameState `json:"state"`
	PlayerCount    int              `json:"player_count"`
	RoundIndex     int              `json:"round_index"`
	TotalQuestions int              `json:"total_questions"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Info returns a summary of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		Code:           s.code,
		HostID:         s.hostID,
		State:          s.state,
		PlayerCount:    len(s.players),
		RoundIndex:     s.round.Index,
		TotalQuestions: len(s.questions),
		CreatedAt:      s.createdAt.UTC(),
	}
}

// Idle reports whether a Lobby or Final session has seen no activity for
// ttl. Closed sessions are always idle.
func (s *Session) Idle(now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case models.GameStateClosed:
		return true
	case models.GameStateLobby, models.GameStateFinal:
		return ttl > 0 && now.Sub(s.lastActivity) >= ttl
	default:
		return false
	}
}

// CloseReason returns why the session closed, or "" while it is open.
func (s *Session) CloseReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeReason
}

func (s *Session) beginRoundLocked(index int) {
	if index < 0 || index >= len(s.questions) || index <= s.round.Index {
		s.failLocked("round index out of sequence", nil)
		return
	}
	if err := s.ledger.Open(index); err != nil {
		s.failLocked("ledger refused to open round", err)
		return
	}

	q := s.questions[index]
	now := s.deps.Clock.Now()
	s.round = models.Round{
		Index:     index,
		StartedAt: now,
		Duration:  q.Duration,
		State:     models.RoundStateActive,
	}
	s.state = models.GameStateRoundActive
	s.settleTimer = nil

	log.Info().
		Str("game_code", s.code).
		Int("round", index).
		Dur("duration", q.Duration).
		Msg("round started")

	s.broadcastLocked(events.EventTypeQuestionStarted, events.QuestionStartedPayload{
		RoundIndex:     index,
		TotalQuestions: len(s.questions),
		Question:       q.Public(),
		DurationSec:    clock.SecondsRemaining(q.Duration),
		StartedAt:      now.UTC(),
		EndsAt:         s.round.Deadline().UTC(),
	})
	s.countdown = s.deps.Clock.StartRound(index, now, q.Duration, roundHandler{s})
}

// roundHandler keeps the clock callbacks off the exported method set.
type roundHandler struct {
	s *Session
}

func (h roundHandler) OnTick(round int, remaining time.Duration) {
	h.s.onTick(round, remaining)
}

func (h roundHandler) OnExpire(round int) {
	h.s.onExpire(round)
}

func (s *Session) onTick(round int, remaining time.Duration) {
	s.mu.Lock()
	defer s.unlock()

	if s.state != models.GameStateRoundActive || s.round.Index != round {
		return
	}
	s.broadcastLocked(events.EventTypeTimerUpdate, events.TimerUpdatePayload{
		RoundIndex:       round,
		SecondsRemaining: clock.SecondsRemaining(remaining),
	})
}

func (s *Session) onExpire(round int) {
	s.mu.Lock()
	defer s.unlock()

	if s.state != models.GameStateRoundActive || s.round.Index != round {
		log.Debug().
			Str("game_code", s.code).
			Int("round", round).
			Msg("ignoring stale round expiry")
		return
	}
	s.settleLocked()
}

// settleLocked seals the ledger, scores every player and broadcasts the
// round results. It then schedules the next round or finalizes.
func (s *Session) settleLocked() {
	idx := s.round.Index
	q := s.questions[idx]
	s.state = models.GameStateRoundSettling
	s.round.State = models.RoundStateSettling
	s.stopCountdownLocked()

	subs, err := s.ledger.Seal(idx)
	if err != nil {
		s.failLocked("ledger seal failed", err)
		return
	}
	byPlayer := make(map[string]models.AnswerSubmission, len(subs))
	for _, sub := range subs {
		if sub.RoundIndex != idx {
			s.failLocked("submission recorded against wrong round", nil)
			return
		}
		if _, ok := s.players[sub.PlayerID]; !ok {
			s.failLocked("submission from unknown player", nil)
			return
		}
		byPlayer[sub.PlayerID] = sub
	}

	results := make([]models.RoundResult, 0, len(s.order))
	for _, id := range s.order {
		p := s.players[id]
		res := models.RoundResult{PlayerID: id, DisplayName: p.DisplayName}

		elapsed := s.round.Duration
		if sub, ok := byPlayer[id]; ok {
			elapsed = sub.ReceivedAt.Sub(s.round.StartedAt)
			if elapsed < 0 {
				elapsed = 0
			}
			option := sub.OptionIndex
			res.Answered = true
			res.SelectedOption = &option
			res.Correct = q.IsCorrect(sub.OptionIndex)
			points, err := s.deps.Scoring.Points(res.Correct, elapsed, s.round.Duration)
			if err != nil {
				s.failLocked("scoring failed", err)
				return
			}
			res.Points = points
		}
		p.CumulativeScore += res.Points
		if res.Correct {
			p.CorrectAnswers++
		}
		p.AnswerTime += elapsed
		p.RoundsPlayed++
		res.TotalScore = p.CumulativeScore
		results = append(results, res)
	}

	last := idx == len(s.questions)-1
	s.round.State = models.RoundStateSettled
	s.touchLocked()

	log.Info().
		Str("game_code", s.code).
		Int("round", idx).
		Int("submissions", len(subs)).
		Msg("round settled")

	s.broadcastLocked(events.EventTypeQuestionEnded, events.QuestionEndedPayload{
		RoundIndex:         idx,
		CorrectOptionIndex: q.CorrectIndex,
		Results:            results,
		Leaderboard:        scoring.Rank(s.playersLocked()),
		IsLastQuestion:     last,
	})

	if last {
		s.finalizeLocked()
		return
	}
	if s.cfg.SettleDelay <= 0 {
		s.beginRoundLocked(idx + 1)
		return
	}
	s.settleTimer = s.deps.Clock.AfterFunc(s.cfg.SettleDelay, func() {
		s.advance(idx)
	})
}

func (s *Session) advance(from int) {
	s.mu.Lock()
	defer s.unlock()

	if s.state != models.GameStateRoundSettling || s.round.Index != from {
		return
	}
	s.beginRoundLocked(from + 1)
}

func (s *Session) finalizeLocked() {
	s.state = models.GameStateFinal
	log.Info().Str("game_code", s.code).Msg("game completed")
	s.broadcastLocked(events.EventTypeGameEnded, s.gameEndedLocked(ReasonCompleted))
	s.dispatchStatsLocked()
}

func (s *Session) hostGraceExpired(gen int) {
	s.mu.Lock()
	defer s.unlock()

	if gen != s.graceGen || s.hostConnected || s.state == models.GameStateClosed {
		return
	}
	log.Warn().Str("game_code", s.code).Msg("host grace period expired")
	s.closeLocked(ReasonHostDisconnected)
}

// closeLocked runs EndGame semantics: cancel timers, broadcast the terminal
// game-ended, dispatch stats and tear down delivery.
func (s *Session) closeLocked(reason string) {
	s.stopTimersLocked()
	s.broadcastLocked(events.EventTypeGameEnded, s.gameEndedLocked(reason))
	s.dispatchStatsLocked()
	s.markClosedLocked(reason)

	log.Info().
		Str("game_code", s.code).
		Str("reason", reason).
		Msg("game closed")
}

// failLocked handles an internal inconsistency. The session closes with a
// single terminal error event and no game-ended.
func (s *Session) failLocked(msg string, err error) {
	log.Error().
		Err(err).
		Str("game_code", s.code).
		Int("round", s.round.Index).
		Str("state", string(s.state)).
		Msg(msg)

	s.stopTimersLocked()
	s.broadcastLocked(events.EventTypeError, events.ErrorPayload{Message: "game aborted: " + msg})
	s.markClosedLocked("error")
}

func (s *Session) markClosedLocked(reason string) {
	s.state = models.GameStateClosed
	s.closeReason = reason
	s.deps.Broadcaster.Close()
	s.pendingClosed = true
}

func (s *Session) stopTimersLocked() {
	s.stopCountdownLocked()
	if s.settleTimer != nil {
		s.settleTimer.Stop()
		s.settleTimer = nil
	}
	if s.graceTimer != nil {
		s.graceGen++
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
}

func (s *Session) stopCountdownLocked() {
	if s.countdown != nil {
		s.countdown.Stop()
		s.countdown = nil
	}
}

func (s *Session) gameEndedLocked(reason string) events.GameEndedPayload {
	rounds := 0
	if s.round.Index >= 0 {
		rounds = s.round.Index
		if s.round.State == models.RoundStateSettled {
			rounds++
		}
	}
	return events.GameEndedPayload{
		Reason:       reason,
		RoundsPlayed: rounds,
		Leaderboard:  scoring.Rank(s.playersLocked()),
		EndedAt:      s.deps.Clock.Now().UTC(),
	}
}

// dispatchStatsLocked hands one record per non-guest player to the stats
// sink, once per session and only if the game started.
func (s *Session) dispatchStatsLocked() {
	if s.statsSent || s.deps.Stats == nil || s.round.Index < 0 {
		return
	}
	s.statsSent = true

	now := s.deps.Clock.Now()
	records := make([]stats.Record, 0, len(s.order))
	for _, id := range s.order {
		p := s.players[id]
		if p.IsGuest {
			continue
		}
		records = append(records, stats.Record{
			GameCode:             s.code,
			PlayerID:             p.ID,
			DisplayName:          p.DisplayName,
			PointsGain:           p.CumulativeScore,
			NumberOfQuestions:    p.RoundsPlayed,
			NumberCorrectAnswers: p.CorrectAnswers,
			TotalTime:            p.AnswerTime,
			RecordedAt:           now.UTC(),
		})
	}
	if len(records) == 0 {
		return
	}
	s.deps.Stats.Dispatch(records)
}

func (s *Session) snapshotLocked(playerID string) events.StateSyncPayload {
	snap := events.StateSyncPayload{
		State:          s.state,
		HostID:         s.hostID,
		IsHost:         playerID != "" && playerID == s.hostID,
		TotalQuestions: len(s.questions),
		RoundIndex:     s.round.Index,
		Leaderboard:    scoring.Rank(s.playersLocked()),
	}
	if s.state == models.GameStateRoundActive {
		pq := s.questions[s.round.Index].Public()
		snap.Question = &pq
		snap.SecondsRemaining = clock.SecondsRemaining(s.round.Remaining(s.deps.Clock.Now()))
	}
	if p, ok := s.players[playerID]; ok {
		cp := p.Clone()
		snap.Player = &cp
		if s.round.Index >= 0 {
			_, snap.HasAnswered = s.ledger.Get(s.round.Index, playerID)
		}
	}
	return snap
}

func (s *Session) playersLocked() []models.Player {
	out := make([]models.Player, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.players[id].Clone())
	}
	return out
}

func (s *Session) touchLocked() {
	s.lastActivity = s.deps.Clock.Now()
}

func (s *Session) broadcastLocked(eventType events.EventType, payload interface{}) {
	event, err := events.New(s.code, eventType, payload, s.deps.Clock.Now())
	if err != nil {
		log.Error().Err(err).Str("game_code", s.code).Msg("failed to build event")
		return
	}
	s.deps.Broadcaster.Broadcast(event)
}

func (s *Session) sendLocked(playerID string, eventType events.EventType, payload interface{}) {
	event, err := events.New(s.code, eventType, payload, s.deps.Clock.Now())
	if err != nil {
		log.Error().Err(err).Str("game_code", s.code).Msg("failed to build event")
		return
	}
	s.deps.Broadcaster.SendTo(playerID, event)
}

// unlock releases the session lock and then reports a pending close, so the
// registry callback never runs under the session lock.
func (s *Session) unlock() {
	closed := s.pendingClosed
	s.pendingClosed = false
	s.mu.Unlock()

	if closed && s.deps.OnClosed != nil {
		s.deps.OnClosed(s.code)
	}
}
