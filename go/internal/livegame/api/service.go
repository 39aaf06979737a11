package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livegame/go/internal/livegame/session"
)

// GameServiceName is the fully-qualified name of the game command service.
const GameServiceName = "livegame.v1.GameService"

// Procedure paths of the game command service.
const (
	GameServiceCreateGameProcedure   = "/livegame.v1.GameService/CreateGame"
	GameServiceJoinGameProcedure     = "/livegame.v1.GameService/JoinGame"
	GameServiceStartGameProcedure    = "/livegame.v1.GameService/StartGame"
	GameServiceSubmitAnswerProcedure = "/livegame.v1.GameService/SubmitAnswer"
	GameServiceEndGameProcedure      = "/livegame.v1.GameService/EndGame"
)

// GameService implements the unary game commands over Connect.
type GameService struct {
	commands *Commands
}

// NewGameService creates a new game command service
func NewGameService(commands *Commands) *GameService {
	return &GameService{
		commands: commands,
	}
}

// NewGameServiceHandler builds the HTTP handler for every procedure and
// returns the path to mount it on.
func NewGameServiceHandler(svc *GameService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	createGame := connect.NewUnaryHandler(GameServiceCreateGameProcedure, svc.CreateGame, opts...)
	joinGame := connect.NewUnaryHandler(GameServiceJoinGameProcedure, svc.JoinGame, opts...)
	startGame := connect.NewUnaryHandler(GameServiceStartGameProcedure, svc.StartGame, opts...)
	submitAnswer := connect.NewUnaryHandler(GameServiceSubmitAnswerProcedure, svc.SubmitAnswer, opts...)
	endGame := connect.NewUnaryHandler(GameServiceEndGameProcedure, svc.EndGame, opts...)

	return "/" + GameServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case GameServiceCreateGameProcedure:
			createGame.ServeHTTP(w, r)
		case GameServiceJoinGameProcedure:
			joinGame.ServeHTTP(w, r)
		case GameServiceStartGameProcedure:
			startGame.ServeHTTP(w, r)
		case GameServiceSubmitAnswerProcedure:
			submitAnswer.ServeHTTP(w, r)
		case GameServiceEndGameProcedure:
			endGame.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// CreateGame creates a game hosted by the caller
func (s *GameService) CreateGame(ctx context.Context, req *connect.Request[CreateGameRequest]) (*connect.Response[CreateGameResponse], error) {
	id, err := identityFrom(req.Header())
	if err != nil {
		return nil, toConnectError(err)
	}

	sess, err := s.commands.Create(id.PlayerID, *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&CreateGameResponse{
		Code: sess.Code(),
	}), nil
}

// JoinGame adds the caller to a game in its lobby
func (s *GameService) JoinGame(ctx context.Context, req *connect.Request[JoinGameRequest]) (*connect.Response[JoinGameResponse], error) {
	id, err := identityFrom(req.Header())
	if err != nil {
		return nil, toConnectError(err)
	}

	player, created, err := s.commands.Join(req.Msg.Code, id)
	if err != nil {
		return nil, toConnectError(err)
	}

	msg := "joined"
	if !created {
		msg = "already joined"
	}
	return connect.NewResponse(&JoinGameResponse{
		Success: true,
		Message: msg,
		Player:  player,
	}), nil
}

// StartGame starts the first round
func (s *GameService) StartGame(ctx context.Context, req *connect.Request[StartGameRequest]) (*connect.Response[AckResponse], error) {
	id, err := identityFrom(req.Header())
	if err != nil {
		return nil, toConnectError(err)
	}

	if err := s.commands.Start(req.Msg.Code, id.PlayerID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&AckResponse{Success: true}), nil
}

// SubmitAnswer records the caller's answer for the active round
func (s *GameService) SubmitAnswer(ctx context.Context, req *connect.Request[SubmitAnswerRequest]) (*connect.Response[SubmitAnswerResponse], error) {
	id, err := identityFrom(req.Header())
	if err != nil {
		return nil, toConnectError(err)
	}

	sub, err := s.commands.Submit(req.Msg.Code, id.PlayerID, req.Msg.OptionIndex)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SubmitAnswerResponse{
		Success:    true,
		RoundIndex: sub.RoundIndex,
		ReceivedAt: sub.ReceivedAt.UTC(),
	}), nil
}

// EndGame terminates the game
func (s *GameService) EndGame(ctx context.Context, req *connect.Request[EndGameRequest]) (*connect.Response[AckResponse], error) {
	id, err := identityFrom(req.Header())
	if err != nil {
		return nil, toConnectError(err)
	}

	if err := s.commands.End(req.Msg.Code, id.PlayerID); err != nil {
		return nil, toConnectError(err)
	}
	log.Info().Str("game_code", req.Msg.Code).Msg("game ended by host")
	return connect.NewResponse(&AckResponse{Success: true}), nil
}

func identityFrom(h http.Header) (Identity, error) {
	id := Identity{
		PlayerID:    strings.TrimSpace(h.Get(HeaderPlayerID)),
		DisplayName: strings.TrimSpace(h.Get(HeaderDisplayName)),
	}
	if id.PlayerID == "" {
		return Identity{}, session.InvalidInput("missing " + HeaderPlayerID + " header")
	}
	if v := h.Get(HeaderGuest); v != "" {
		guest, err := strconv.ParseBool(v)
		if err != nil {
			return Identity{}, session.InvalidInput("invalid " + HeaderGuest + " header")
		}
		id.IsGuest = guest
	}
	return id, nil
}
