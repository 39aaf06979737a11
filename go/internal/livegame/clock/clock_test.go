package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type recordingHandler struct {
	mu      sync.Mutex
	ticks   []time.Duration
	expired []int
	expCh   chan int
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{expCh: make(chan int, 4)}
}

func (h *recordingHandler) OnTick(round int, remaining time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ticks = append(h.ticks, remaining)
}

func (h *recordingHandler) OnExpire(round int) {
	h.mu.Lock()
	h.expired = append(h.expired, round)
	h.mu.Unlock()
	h.expCh <- round
}

func (h *recordingHandler) tickCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ticks)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestCountdownExpiresAtDeadline(t *testing.T) {
	fake := clockwork.NewFakeClock()
	svc := NewService(fake, time.Second)
	h := newRecordingHandler()

	cd := svc.StartRound(0, fake.Now(), 10*time.Second, h)
	defer cd.Stop()

	fake.Advance(9 * time.Second)
	select {
	case r := <-h.expCh:
		t.Fatalf("round %d expired early", r)
	case <-time.After(20 * time.Millisecond):
	}

	fake.Advance(time.Second)
	select {
	case r := <-h.expCh:
		if r != 0 {
			t.Fatalf("expected round 0, got %d", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not expire")
	}
}

func TestCountdownTicks(t *testing.T) {
	fake := clockwork.NewFakeClock()
	svc := NewService(fake, time.Second)
	h := newRecordingHandler()

	cd := svc.StartRound(2, fake.Now(), 5*time.Second, h)
	defer cd.Stop()

	fake.Advance(time.Second)
	waitFor(t, func() bool { return h.tickCount() >= 1 })

	h.mu.Lock()
	first := h.ticks[0]
	h.mu.Unlock()
	if first != 4*time.Second {
		t.Fatalf("expected 4s remaining on first tick, got %v", first)
	}
}

func TestStoppedCountdownNeverExpires(t *testing.T) {
	fake := clockwork.NewFakeClock()
	svc := NewService(fake, time.Second)
	h := newRecordingHandler()

	cd := svc.StartRound(0, fake.Now(), 3*time.Second, h)
	cd.Stop()
	cd.Stop()

	fake.Advance(5 * time.Second)
	select {
	case r := <-h.expCh:
		t.Fatalf("stopped countdown expired round %d", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCountdownUsesOriginalStart(t *testing.T) {
	fake := clockwork.NewFakeClock()
	svc := NewService(fake, time.Second)
	h := newRecordingHandler()

	start := fake.Now()
	fake.Advance(7 * time.Second)

	cd := svc.StartRound(1, start, 10*time.Second, h)
	defer cd.Stop()
	if got := cd.Deadline().Sub(fake.Now()); got != 3*time.Second {
		t.Fatalf("expected 3s left, got %v", got)
	}

	fake.Advance(3 * time.Second)
	select {
	case <-h.expCh:
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not expire 3s after restart")
	}
}

func TestSecondsRemaining(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{0, 0},
		{-time.Second, 0},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{9*time.Second + time.Millisecond, 10},
	}
	for _, tt := range tests {
		if got := SecondsRemaining(tt.in); got != tt.want {
			t.Fatalf("SecondsRemaining(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
