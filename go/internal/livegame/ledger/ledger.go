// Package ledger records accepted answer submissions, write-once per
// (round, player).
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mcdev12/livegame/go/internal/models"
)

var (
	ErrDuplicate     = errors.New("submission already recorded for this round")
	ErrRoundNotOpen  = errors.New("round is not open")
	ErrRoundSealed   = errors.New("round is sealed")
	ErrRoundOrdering = errors.New("round index must increase")
)

type round struct {
	sealed  bool
	entries map[string]models.AnswerSubmission
	order   []string
}

// Ledger is the per-session record of accepted submissions.
type Ledger struct {
	mu      sync.RWMutex
	rounds  map[int]*round
	current int
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		rounds:  make(map[int]*round),
		current: -1,
	}
}

// Open starts accepting submissions for roundIndex. Rounds open in strictly
// increasing order and any earlier round must already be sealed.
func (l *Ledger) Open(roundIndex int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if roundIndex <= l.current {
		return fmt.Errorf("%w: open %d after %d", ErrRoundOrdering, roundIndex, l.current)
	}
	if prev, ok := l.rounds[l.current]; ok && !prev.sealed {
		return fmt.Errorf("%w: round %d still open", ErrRoundOrdering, l.current)
	}
	l.rounds[roundIndex] = &round{entries: make(map[string]models.AnswerSubmission)}
	l.current = roundIndex
	return nil
}

// Record stores sub. The first submission for a (round, player) wins; later
// ones return ErrDuplicate and leave the stored entry untouched.
func (l *Ledger) Record(sub models.AnswerSubmission) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.rounds[sub.RoundIndex]
	if !ok {
		return ErrRoundNotOpen
	}
	if r.sealed {
		return ErrRoundSealed
	}
	if _, exists := r.entries[sub.PlayerID]; exists {
		return ErrDuplicate
	}
	r.entries[sub.PlayerID] = sub
	r.order = append(r.order, sub.PlayerID)
	return nil
}

// Seal freezes roundIndex and returns its submissions in acceptance order.
// No entry can be added afterwards.
func (l *Ledger) Seal(roundIndex int) ([]models.AnswerSubmission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.rounds[roundIndex]
	if !ok {
		return nil, fmt.Errorf("%w: round %d", ErrRoundNotOpen, roundIndex)
	}
	if r.sealed {
		return nil, fmt.Errorf("%w: round %d", ErrRoundSealed, roundIndex)
	}
	r.sealed = true
	return r.snapshot(), nil
}

// Submissions returns a copy of the entries for roundIndex.
func (l *Ledger) Submissions(roundIndex int) []models.AnswerSubmission {
	l.mu.RLock()
	defer l.mu.RUnlock()

	r, ok := l.rounds[roundIndex]
	if !ok {
		return nil
	}
	return r.snapshot()
}

// Get returns the entry for (roundIndex, playerID), if any.
func (l *Ledger) Get(roundIndex int, playerID string) (models.AnswerSubmission, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	r, ok := l.rounds[roundIndex]
	if !ok {
		return models.AnswerSubmission{}, false
	}
	sub, ok := r.entries[playerID]
	return sub, ok
}

func (r *round) snapshot() []models.AnswerSubmission {
	out := make([]models.AnswerSubmission, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}
	return out
}
