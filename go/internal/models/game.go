package models

import (
	"time"
)

// GameState is the lifecycle state of a live game session.
type GameState string

const (
	GameStateLobby         GameState = "LOBBY"
	GameStateRoundActive   GameState = "ROUND_ACTIVE"
	GameStateRoundSettling GameState = "ROUND_SETTLING"
	GameStateFinal         GameState = "FINAL"
	GameStateClosed        GameState = "CLOSED"
)

// RoundState is the lifecycle state of a single round.
type RoundState string

const (
	RoundStateActive   RoundState = "ACTIVE"
	RoundStateSettling RoundState = "SETTLING"
	RoundStateSettled  RoundState = "SETTLED"
)

// Round is the active lifecycle instance of one Question.
type Round struct {
	Index     int           `json:"index"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"-"`
	State     RoundState    `json:"state"`
}

// Deadline is the instant the round expires.
func (r Round) Deadline() time.Time {
	return r.StartedAt.Add(r.Duration)
}

// Remaining is the time left at now, never negative.
func (r Round) Remaining(now time.Time) time.Duration {
	rem := r.Deadline().Sub(now)
	if rem < 0 {
		return 0
	}
	return rem
}

// AnswerSubmission is an accepted answer. At most one exists per
// (RoundIndex, PlayerID).
type AnswerSubmission struct {
	PlayerID    string    `json:"player_id"`
	RoundIndex  int       `json:"round_index"`
	OptionIndex int       `json:"option_index"`
	ReceivedAt  time.Time `json:"received_at"`
}
