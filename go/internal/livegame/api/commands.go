package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/mcdev12/livegame/go/internal/livegame/registry"
	"github.com/mcdev12/livegame/go/internal/livegame/session"
	"github.com/mcdev12/livegame/go/internal/models"
)

// maxQuestionSeconds bounds request durations so the conversion to
// time.Duration cannot overflow.
const maxQuestionSeconds = 60 * 60

// Commands routes inbound game commands to the owning session. Both the RPC
// service and the websocket handler go through it.
type Commands struct {
	registry        *registry.Registry
	defaultDuration time.Duration
	maxQuestions    int
}

// NewCommands creates the command router.
func NewCommands(reg *registry.Registry, defaultDuration time.Duration, maxQuestions int) *Commands {
	return &Commands{
		registry:        reg,
		defaultDuration: defaultDuration,
		maxQuestions:    maxQuestions,
	}
}

// Create validates req and creates a session hosted by hostID.
func (c *Commands) Create(hostID string, req CreateGameRequest) (*session.Session, error) {
	if c.maxQuestions > 0 && len(req.Questions) > c.maxQuestions {
		return nil, session.InvalidInput(fmt.Sprintf("at most %d questions allowed", c.maxQuestions))
	}

	duration := c.defaultDuration
	if req.PerQuestionSeconds != nil {
		if *req.PerQuestionSeconds > maxQuestionSeconds {
			return nil, session.InvalidInput(fmt.Sprintf("per question seconds must be at most %d", maxQuestionSeconds))
		}
		duration = time.Duration(*req.PerQuestionSeconds) * time.Second
	}

	questions := make([]models.Question, 0, len(req.Questions))
	for _, q := range req.Questions {
		if q.DurationSeconds < 0 {
			return nil, session.InvalidInput("question duration must not be negative")
		}
		if q.DurationSeconds > maxQuestionSeconds {
			return nil, session.InvalidInput(fmt.Sprintf("question duration must be at most %d seconds", maxQuestionSeconds))
		}
		questions = append(questions, models.Question{
			Text:         q.Text,
			Options:      q.Options,
			CorrectIndex: q.CorrectIndex,
			Duration:     time.Duration(q.DurationSeconds) * time.Second,
		})
	}
	return c.registry.Create(hostID, questions, duration)
}

// Lookup validates the code format before consulting the registry.
func (c *Commands) Lookup(code string) (*session.Session, error) {
	code = strings.TrimSpace(code)
	if !registry.ValidCode(code) {
		return nil, session.ErrInvalidCode
	}
	return c.registry.Lookup(code)
}

// Join adds the caller to the game.
func (c *Commands) Join(code string, id Identity) (models.Player, bool, error) {
	code = strings.TrimSpace(code)
	if !registry.ValidCode(code) {
		return models.Player{}, false, session.ErrInvalidCode
	}
	return c.registry.Join(code, id.PlayerID, id.DisplayName, id.IsGuest)
}

// Start begins the game. Only the host may start it.
func (c *Commands) Start(code, playerID string) error {
	sess, err := c.Lookup(code)
	if err != nil {
		return err
	}
	return sess.Start(playerID)
}

// Submit records an answer for the active round.
func (c *Commands) Submit(code, playerID string, optionIndex int) (models.AnswerSubmission, error) {
	sess, err := c.Lookup(code)
	if err != nil {
		return models.AnswerSubmission{}, err
	}
	return sess.Submit(playerID, optionIndex)
}

// End terminates the game. Only the host may end it.
func (c *Commands) End(code, playerID string) error {
	sess, err := c.Lookup(code)
	if err != nil {
		return err
	}
	return sess.End(playerID)
}
