package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livegame/go/internal/livegame/session"
)

// MetaErrorCode carries the game error kind on Connect error responses.
const MetaErrorCode = "Livegame-Error-Code"

// toConnectError maps a session error kind onto a Connect code. Anything
// that is not a *session.Error is internal.
func toConnectError(err error) error {
	var serr *session.Error
	if !errors.As(err, &serr) {
		log.Error().Err(err).Msg("unexpected command failure")
		return connect.NewError(connect.CodeInternal, errors.New("internal error"))
	}

	cerr := connect.NewError(connectCode(serr.Code), serr)
	cerr.Meta().Set(MetaErrorCode, string(serr.Code))
	return cerr
}

func connectCode(code session.Code) connect.Code {
	switch code {
	case session.CodeInvalidCode, session.CodePlayerNotFound:
		return connect.CodeNotFound
	case session.CodeInvalidInput:
		return connect.CodeInvalidArgument
	case session.CodeHostRequired:
		return connect.CodePermissionDenied
	case session.CodeDuplicateAnswer:
		return connect.CodeAlreadyExists
	case session.CodeAlreadyStarted, session.CodeNotInLobby, session.CodeRoundNotActive:
		return connect.CodeFailedPrecondition
	case session.CodeSessionExpired:
		return connect.CodeAborted
	default:
		return connect.CodeUnknown
	}
}

func httpStatus(code session.Code) int {
	switch code {
	case session.CodeInvalidCode, session.CodePlayerNotFound:
		return http.StatusNotFound
	case session.CodeInvalidInput:
		return http.StatusBadRequest
	case session.CodeHostRequired:
		return http.StatusForbidden
	case session.CodeAlreadyStarted, session.CodeNotInLobby, session.CodeRoundNotActive,
		session.CodeDuplicateAnswer:
		return http.StatusConflict
	case session.CodeSessionExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON ErrorBody with a matching status.
func writeError(w http.ResponseWriter, err error) {
	var serr *session.Error
	if !errors.As(err, &serr) {
		log.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, ErrorBody{Code: "INTERNAL", Message: "internal error"})
		return
	}
	writeJSON(w, httpStatus(serr.Code), ErrorBody{Code: string(serr.Code), Message: serr.Message})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
