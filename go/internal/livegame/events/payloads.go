package events

import (
	"time"

	"github.com/mcdev12/livegame/go/internal/models"
)

// GameStartedPayload is the payload for a game-started event
type GameStartedPayload struct {
	TotalQuestions int       `json:"total_questions"`
	PlayerCount    int       `json:"player_count"`
	StartedAt      time.Time `json:"started_at"`
}

// QuestionStartedPayload is the payload for a question-started event.
// The question never carries the correct option.
type QuestionStartedPayload struct {
	RoundIndex     int                   `json:"round_index"`
	TotalQuestions int                   `json:"total_questions"`
	Question       models.PublicQuestion `json:"question"`
	DurationSec    int                   `json:"duration_sec"`
	StartedAt      time.Time             `json:"started_at"`
	EndsAt         time.Time             `json:"ends_at"`
}

// QuestionEndedPayload is the payload for a question-ended event
type QuestionEndedPayload struct {
	RoundIndex         int                       `json:"round_index"`
	CorrectOptionIndex int                       `json:"correct_option_index"`
	Results            []models.RoundResult      `json:"results"`
	Leaderboard        []models.LeaderboardEntry `json:"leaderboard"`
	IsLastQuestion     bool                      `json:"is_last_question"`
}

// GameEndedPayload is the payload for a game-ended event
type GameEndedPayload struct {
	Reason       string                    `json:"reason"`
	RoundsPlayed int                       `json:"rounds_played"`
	Leaderboard  []models.LeaderboardEntry `json:"leaderboard"`
	EndedAt      time.Time                 `json:"ended_at"`
}

// TimerUpdatePayload is the payload for a timer-update event
type TimerUpdatePayload struct {
	RoundIndex       int `json:"round_index"`
	SecondsRemaining int `json:"seconds_remaining"`
}

// ErrorPayload is the payload for a terminal error event
type ErrorPayload struct {
	Message string `json:"message"`
}

// StateSyncPayload is sent privately to a connection when it attaches.
type StateSyncPayload struct {
	State            models.GameState          `json:"state"`
	HostID           string                    `json:"host_id"`
	IsHost           bool                      `json:"is_host"`
	TotalQuestions   int                       `json:"total_questions"`
	RoundIndex       int                       `json:"round_index"`
	Question         *models.PublicQuestion    `json:"question,omitempty"`
	SecondsRemaining int                       `json:"seconds_remaining"`
	Player           *models.Player            `json:"player,omitempty"`
	HasAnswered      bool                      `json:"has_answered"`
	Leaderboard      []models.LeaderboardEntry `json:"leaderboard"`
}

// AckPayload acknowledges an inbound command to its sender only.
type AckPayload struct {
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
	Success   bool   `json:"success"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// PlayerJoinedPayload is the payload for a player-joined event
type PlayerJoinedPayload struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	PlayerCount int    `json:"player_count"`
}

// PlayerStatusPayload is the payload for a player-status event
type PlayerStatusPayload struct {
	PlayerID string `json:"player_id"`
	Active   bool   `json:"active"`
}
