package models

import (
	"time"
)

// Question is one quiz question. Immutable once the session has started.
type Question struct {
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`

	// Duration overrides the session's per-question seconds when positive.
	Duration time.Duration `json:"-"`
}

// PublicQuestion is what players see while a round is active.
type PublicQuestion struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// Public strips the correct answer.
func (q Question) Public() PublicQuestion {
	opts := make([]string, len(q.Options))
	copy(opts, q.Options)
	return PublicQuestion{
		Text:    q.Text,
		Options: opts,
	}
}

// IsCorrect reports whether optionIndex is the right answer.
func (q Question) IsCorrect(optionIndex int) bool {
	return optionIndex == q.CorrectIndex
}
