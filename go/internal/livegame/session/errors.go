package session

import "errors"

// Code is a machine-readable error kind returned to the calling client.
type Code string

const (
	CodeInvalidCode     Code = "INVALID_CODE"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeAlreadyStarted  Code = "ALREADY_STARTED"
	CodeNotInLobby      Code = "NOT_IN_LOBBY"
	CodeHostRequired    Code = "HOST_REQUIRED"
	CodeDuplicateAnswer Code = "DUPLICATE_ANSWER"
	CodeRoundNotActive  Code = "ROUND_NOT_ACTIVE"
	CodePlayerNotFound  Code = "PLAYER_NOT_FOUND"
	CodeSessionExpired  Code = "SESSION_EXPIRED"
)

// Error is a validation or precondition failure. It is acknowledged to the
// caller only and never broadcast.
type Error struct {
	Code    Code
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

var (
	ErrInvalidCode     = newError(CodeInvalidCode, "no game with that code")
	ErrInvalidInput    = newError(CodeInvalidInput, "invalid input")
	ErrAlreadyStarted  = newError(CodeAlreadyStarted, "game already started")
	ErrNotInLobby      = newError(CodeNotInLobby, "game is not accepting new players")
	ErrHostRequired    = newError(CodeHostRequired, "only the host can do that")
	ErrDuplicateAnswer = newError(CodeDuplicateAnswer, "answer already submitted for this question")
	ErrRoundNotActive  = newError(CodeRoundNotActive, "no question is accepting answers")
	ErrPlayerNotFound  = newError(CodePlayerNotFound, "player is not in this game")
	ErrSessionExpired  = newError(CodeSessionExpired, "game has ended")
)

// InvalidInput returns an InvalidInput error with a specific message.
func InvalidInput(message string) *Error {
	return newError(CodeInvalidInput, message)
}

// CodeOf extracts the error kind, or "" for errors that are not *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
