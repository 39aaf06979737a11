package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope for every message pushed to game connections.
type Event struct {
	ID        string          `json:"id"`        // Event UUID
	GameCode  string          `json:"game_code"` // Session code
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Server time at emission
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType represents the type of game event
type EventType string

const (
	EventTypeGameStarted     EventType = "game-started"
	EventTypeQuestionStarted EventType = "question-started"
	EventTypeQuestionEnded   EventType = "question-ended"
	EventTypeGameEnded       EventType = "game-ended"
	EventTypeTimerUpdate     EventType = "timer-update"
	EventTypeError           EventType = "error"
	EventTypeStateSync       EventType = "state-sync"
	EventTypeAck             EventType = "ack"
	EventTypePlayerJoined    EventType = "player-joined"
	EventTypePlayerStatus    EventType = "player-status"
)

// New builds an event, marshalling payload into Data.
func New(code string, eventType EventType, payload interface{}, at time.Time) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.New().String(),
		GameCode:  code,
		Type:      eventType,
		Timestamp: at.UTC(),
		Data:      data,
	}, nil
}

// Decode unmarshals the event data into the payload struct for its type.
func Decode(event *Event) (interface{}, error) {
	var target interface{}
	switch event.Type {
	case EventTypeGameStarted:
		target = &GameStartedPayload{}
	case EventTypeQuestionStarted:
		target = &QuestionStartedPayload{}
	case EventTypeQuestionEnded:
		target = &QuestionEndedPayload{}
	case EventTypeGameEnded:
		target = &GameEndedPayload{}
	case EventTypeTimerUpdate:
		target = &TimerUpdatePayload{}
	case EventTypeError:
		target = &ErrorPayload{}
	case EventTypeStateSync:
		target = &StateSyncPayload{}
	case EventTypeAck:
		target = &AckPayload{}
	case EventTypePlayerJoined:
		target = &PlayerJoinedPayload{}
	case EventTypePlayerStatus:
		target = &PlayerStatusPayload{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", event.Type)
	}
	if err := json.Unmarshal(event.Data, target); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", event.Type, err)
	}
	return target, nil
}
