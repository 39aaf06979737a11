package models

import (
	"time"
)

// Player is a participant in a live game session. The ID is supplied by the
// upstream auth service and stays stable across reconnects.
type Player struct {
	ID              string    `json:"player_id"`
	DisplayName     string    `json:"display_name"`
	IsGuest         bool      `json:"is_guest"`
	CumulativeScore int       `json:"cumulative_score"`
	CorrectAnswers  int       `json:"correct_answers"`
	RoundsPlayed    int       `json:"rounds_played"`
	Active          bool      `json:"active"`
	JoinedAt        time.Time `json:"joined_at"`

	// AnswerTime accumulates elapsed time to each accepted submission.
	// Rounds without a submission add the full round duration.
	AnswerTime time.Duration `json:"-"`

	// join order within the session, final ranking tie-break
	Seq int `json:"-"`
}

// Clone returns a copy safe to hand out of the session lock.
func (p *Player) Clone() Player {
	return *p
}
