// Package clock drives per-round countdowns for live game sessions.
package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultTickInterval is how often timer ticks are emitted for a round.
const DefaultTickInterval = time.Second

// Handler receives countdown callbacks. Both callbacks carry the round index
// so the receiver can drop anything from a round that is no longer current.
type Handler interface {
	OnTick(round int, remaining time.Duration)
	OnExpire(round int)
}

// Service hands out round countdowns and one-shot timers backed by a single
// clockwork.Clock. In production use clockwork.NewRealClock(), in tests a
// FakeClock.
type Service struct {
	clock        clockwork.Clock
	tickInterval time.Duration
}

// NewService creates a clock service. A non-positive tickInterval falls back
// to DefaultTickInterval.
func NewService(c clockwork.Clock, tickInterval time.Duration) *Service {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	return &Service{
		clock:        c,
		tickInterval: tickInterval,
	}
}

// Now returns the current time of the underlying clock.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// Clock exposes the underlying clock for components sharing its timeline.
func (s *Service) Clock() clockwork.Clock {
	return s.clock
}

// AfterFunc runs f once after d.
func (s *Service) AfterFunc(d time.Duration, f func()) clockwork.Timer {
	return s.clock.AfterFunc(d, f)
}

// StartRound begins a countdown that expires at startedAt+duration. The
// deadline is computed from startedAt, not from now, so a countdown rebuilt
// mid-round keeps the original remaining time.
func (s *Service) StartRound(round int, startedAt time.Time, duration time.Duration, h Handler) *Countdown {
	deadline := startedAt.Add(duration)
	wait := deadline.Sub(s.clock.Now())
	if wait < 0 {
		wait = 0
	}

	c := &Countdown{
		round:    round,
		deadline: deadline,
		timer:    s.clock.NewTimer(wait),
		ticker:   s.clock.NewTicker(s.tickInterval),
		stopCh:   make(chan struct{}),
	}
	go c.run(s.clock, h)

	log.Debug().
		Int("round", round).
		Time("deadline", deadline).
		Dur("wait", wait).
		Msg("round countdown started")

	return c
}

// Countdown is a running round timer.
type Countdown struct {
	round    int
	deadline time.Time
	timer    clockwork.Timer
	ticker   clockwork.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once
}

// Deadline returns the expiry instant.
func (c *Countdown) Deadline() time.Time {
	return c.deadline
}

// Stop cancels the countdown. It never blocks on the handler, so it may be
// called while holding a lock the handler also takes. Safe to call twice.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		stopAndDrainTimer(c.timer)
		c.ticker.Stop()
	})
}

func (c *Countdown) run(clk clockwork.Clock, h Handler) {
	defer c.ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-c.timer.Chan():
			select {
			case <-c.stopCh:
				return
			default:
			}
			h.OnExpire(c.round)
			return
		case <-c.ticker.Chan():
			select {
			case <-c.stopCh:
				return
			default:
			}
			remaining := c.deadline.Sub(clk.Now())
			if remaining <= 0 {
				// the timer owns expiry
				continue
			}
			h.OnTick(c.round, remaining)
		}
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

// SecondsRemaining rounds a remaining duration up to whole seconds, which is
// what countdown displays show.
func SecondsRemaining(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
