package api

import (
	"time"

	"github.com/mcdev12/livegame/go/internal/models"
)

// Identity headers set by the upstream auth proxy. The values are trusted as
// verified.
const (
	HeaderPlayerID    = "X-Player-Id"
	HeaderDisplayName = "X-Display-Name"
	HeaderGuest       = "X-Guest"
)

// QuestionInput is one question in a create request.
type QuestionInput struct {
	Text            string   `json:"text"`
	Options         []string `json:"options"`
	CorrectIndex    int      `json:"correct_index"`
	DurationSeconds int      `json:"duration_seconds,omitempty"`
}

type CreateGameRequest struct {
	Questions []QuestionInput `json:"questions"`
	// PerQuestionSeconds falls back to the server default when omitted.
	PerQuestionSeconds *int `json:"per_question_seconds,omitempty"`
}

type CreateGameResponse struct {
	Code string `json:"code"`
}

type JoinGameRequest struct {
	Code string `json:"code"`
}

type JoinGameResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Player  models.Player `json:"player"`
}

type StartGameRequest struct {
	Code string `json:"code"`
}

type SubmitAnswerRequest struct {
	Code        string `json:"code"`
	OptionIndex int    `json:"option_index"`
}

type SubmitAnswerResponse struct {
	Success    bool      `json:"success"`
	RoundIndex int       `json:"round_index"`
	ReceivedAt time.Time `json:"received_at"`
}

type EndGameRequest struct {
	Code string `json:"code"`
}

// AckResponse is the reply for commands with no other result.
type AckResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Identity is the caller as supplied by the auth service.
type Identity struct {
	PlayerID    string
	DisplayName string
	IsGuest     bool
}

// ErrorBody is the JSON body of plain HTTP error responses.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
