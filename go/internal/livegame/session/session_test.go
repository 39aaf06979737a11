package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/livegame/go/internal/livegame/clock"
	"github.com/mcdev12/livegame/go/internal/livegame/events"
	"github.com/mcdev12/livegame/go/internal/livegame/scoring"
	"github.com/mcdev12/livegame/go/internal/livegame/stats"
	"github.com/mcdev12/livegame/go/internal/models"
)

type sentEvent struct {
	to    string
	event *events.Event
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	sent   []sentEvent
	closed bool
}

func (f *fakeBroadcaster) Broadcast(event *events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.sent = append(f.sent, sentEvent{event: event})
}

func (f *fakeBroadcaster) SendTo(playerID string, event *events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.sent = append(f.sent, sentEvent{to: playerID, event: event})
}

func (f *fakeBroadcaster) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeBroadcaster) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeBroadcaster) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// broadcasts returns public events of eventType in emission order.
func (f *fakeBroadcaster) broadcasts(eventType events.EventType) []*events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*events.Event
	for _, s := range f.sent {
		if s.to == "" && s.event.Type == eventType {
			out = append(out, s.event)
		}
	}
	return out
}

// private returns events sent only to playerID.
func (f *fakeBroadcaster) private(playerID string, eventType events.EventType) []*events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*events.Event
	for _, s := range f.sent {
		if s.to == playerID && s.event.Type == eventType {
			out = append(out, s.event)
		}
	}
	return out
}

type fakeStats struct {
	mu      sync.Mutex
	batches [][]stats.Record
}

func (f *fakeStats) Dispatch(records []stats.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, records)
}

func (f *fakeStats) all() [][]stats.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches
}

type harness struct {
	clock  *clockwork.FakeClock
	bc     *fakeBroadcaster
	stats  *fakeStats
	s      *Session
	closed chan string
}

func testQuestions(n int) []models.Question {
	qs := make([]models.Question, n)
	for i := range qs {
		qs[i] = models.Question{
			Text:         "question",
			Options:      []string{"a", "b", "c", "d"},
			CorrectIndex: 0,
		}
	}
	return qs
}

func newHarness(t *testing.T, code string, questions int, cfg Config) *harness {
	t.Helper()
	fake := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	engine, err := scoring.NewEngine(scoring.DefaultBasePoints)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	h := &harness{
		clock:  fake,
		bc:     &fakeBroadcaster{},
		stats:  &fakeStats{},
		closed: make(chan string, 1),
	}
	h.s, err = New(code, "host", testQuestions(questions), 10*time.Second, cfg, Deps{
		Clock:       clock.NewService(fake, time.Second),
		Scoring:     engine,
		Broadcaster: h.bc,
		Stats:       h.stats,
		OnClosed:    func(code string) { h.closed <- code },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func (h *harness) join(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, _, err := h.s.Join(id, "name-"+id, false); err != nil {
			t.Fatalf("Join(%s): %v", id, err)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func decode[T any](t *testing.T, event *events.Event) T {
	t.Helper()
	payload, err := events.Decode(event)
	if err != nil {
		t.Fatalf("decode %s: %v", event.Type, err)
	}
	typed, ok := payload.(*T)
	if !ok {
		t.Fatalf("%s decoded to %T", event.Type, payload)
	}
	return *typed
}

func TestScenarioScoresAndRanks(t *testing.T) {
	h := newHarness(t, "482913", 2, Config{HostGracePeriod: 30 * time.Second})
	h.join(t, "p1", "p2", "p3")

	if err := h.s.Start("host"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.clock.Advance(2 * time.Second)
	if _, err := h.s.Submit("p1", 0); err != nil {
		t.Fatalf("p1 submit: %v", err)
	}
	h.clock.Advance(3 * time.Second)
	if _, err := h.s.Submit("p2", 2); err != nil {
		t.Fatalf("p2 submit: %v", err)
	}
	h.clock.Advance(5 * time.Second)

	waitFor(t, "round 1", func() bool { return h.s.RoundIndex() == 1 })

	ended := h.bc.broadcasts(events.EventTypeQuestionEnded)
	if len(ended) != 1 {
		t.Fatalf("expected one question-ended, got %d", len(ended))
	}
	round0 := decode[events.QuestionEndedPayload](t, ended[0])
	points := map[string]int{}
	for _, r := range round0.Results {
		points[r.PlayerID] = r.Points
	}
	if points["p1"] != 800 {
		t.Fatalf("p1 points = %d, want 800", points["p1"])
	}
	if points["p2"] != 0 || points["p3"] != 0 {
		t.Fatalf("p2/p3 should score 0, got %d/%d", points["p2"], points["p3"])
	}
	if round0.CorrectOptionIndex != 0 || round0.IsLastQuestion {
		t.Fatalf("unexpected round 0 payload: %+v", round0)
	}

	h.clock.Advance(10 * time.Second)
	waitFor(t, "final", func() bool { return h.s.State() == models.GameStateFinal })

	final := h.bc.broadcasts(events.EventTypeGameEnded)
	if len(final) != 1 {
		t.Fatalf("expected one game-ended, got %d", len(final))
	}
	payload := decode[events.GameEndedPayload](t, final[0])
	if payload.Reason != ReasonCompleted || payload.RoundsPlayed != 2 {
		t.Fatalf("unexpected game-ended: %+v", payload)
	}
	if payload.Leaderboard[0].PlayerID != "p1" || payload.Leaderboard[0].Rank != 1 {
		t.Fatalf("p1 should rank first, got %+v", payload.Leaderboard[0])
	}
	// p2 answered faster than p3 over the game, so wins the zero-score tie
	if payload.Leaderboard[1].PlayerID != "p2" || payload.Leaderboard[2].PlayerID != "p3" {
		t.Fatalf("unexpected tie order: %+v", payload.Leaderboard)
	}

	batches := h.stats.all()
	if len(batches) != 1 || len(batches[0]) != 3 {
		t.Fatalf("expected one stats batch of 3, got %v", batches)
	}
	if batches[0][0].PointsGain != 800 || batches[0][0].NumberCorrectAnswers != 1 || batches[0][0].NumberOfQuestions != 2 {
		t.Fatalf("unexpected p1 stats: %+v", batches[0][0])
	}
}

func TestDuplicateAnswerKeepsFirst(t *testing.T) {
	h := newHarness(t, "100001", 1, Config{})
	h.join(t, "p1")
	if err := h.s.Start("host"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := h.s.Submit("p1", 1); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	h.clock.Advance(time.Second)
	_, err := h.s.Submit("p1", 0)
	if !errors.Is(err, ErrDuplicateAnswer) {
		t.Fatalf("second submit err = %v, want DuplicateAnswer", err)
	}

	subs := h.s.Submissions(0)
	if len(subs) != 1 || subs[0].OptionIndex != 1 {
		t.Fatalf("ledger should keep only the first entry, got %+v", subs)
	}
}

func TestHostReconnectKeepsRemainingTime(t *testing.T) {
	h := newHarness(t, "100002", 1, Config{HostGracePeriod: 10 * time.Second})
	h.join(t, "p1")
	if err := h.s.Connect("host"); err != nil {
		t.Fatalf("Connect host: %v", err)
	}
	if err := h.s.Start("host"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.clock.Advance(3 * time.Second)
	h.s.Disconnect("host")
	h.clock.Advance(2 * time.Second)
	if err := h.s.Connect("host"); err != nil {
		t.Fatalf("reconnect host: %v", err)
	}

	syncs := h.bc.private("host", events.EventTypeStateSync)
	if len(syncs) != 2 {
		t.Fatalf("expected a state-sync per connect, got %d", len(syncs))
	}
	snap := decode[events.StateSyncPayload](t, syncs[1])
	if snap.State != models.GameStateRoundActive || snap.RoundIndex != 0 {
		t.Fatalf("state changed by disconnect: %+v", snap)
	}
	if snap.SecondsRemaining != 5 {
		t.Fatalf("remaining = %d, want 5", snap.SecondsRemaining)
	}
	if !snap.IsHost || snap.Question == nil {
		t.Fatalf("host snapshot should carry the active question: %+v", snap)
	}

	// still inside the original deadline
	h.clock.Advance(4 * time.Second)
	if _, err := h.s.Submit("p1", 0); err != nil {
		t.Fatalf("submit before original deadline: %v", err)
	}

	h.clock.Advance(10 * time.Second)
	waitFor(t, "final", func() bool { return h.s.State() == models.GameStateFinal })
	if reason := h.s.CloseReason(); reason != "" {
		t.Fatalf("grace timer should have been cancelled, closed with %q", reason)
	}
}

func TestHostGraceExpiryClosesSession(t *testing.T) {
	h := newHarness(t, "100003", 3, Config{HostGracePeriod: 15 * time.Second, SettleDelay: 5 * time.Second})
	h.join(t, "p1")
	if err := h.s.Connect("host"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := h.s.Start("host"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.s.Disconnect("host")
	h.clock.Advance(15 * time.Second)

	select {
	case code := <-h.closed:
		if code != "100003" {
			t.Fatalf("OnClosed code = %q", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("session was not closed after grace period")
	}
	if h.s.State() != models.GameStateClosed || h.s.CloseReason() != ReasonHostDisconnected {
		t.Fatalf("state=%s reason=%s", h.s.State(), h.s.CloseReason())
	}
	if !h.bc.isClosed() {
		t.Fatalf("broadcaster should be closed")
	}
	ended := h.bc.broadcasts(events.EventTypeGameEnded)
	if len(ended) != 1 || decode[events.GameEndedPayload](t, ended[0]).Reason != ReasonHostDisconnected {
		t.Fatalf("expected one game-ended with host-disconnected")
	}
}

func TestGracePeriodZeroClosesImmediately(t *testing.T) {
	h := newHarness(t, "100004", 1, Config{})
	if err := h.s.Connect("host"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	h.s.Disconnect("host")
	if h.s.State() != models.GameStateClosed {
		t.Fatalf("state = %s, want CLOSED", h.s.State())
	}
}

func TestRoundExpiresWithZeroSubmissions(t *testing.T) {
	h := newHarness(t, "100005", 1, Config{})
	h.join(t, "p1", "p2")
	if err := h.s.Start("host"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.clock.Advance(9 * time.Second)
	if h.s.State() != models.GameStateRoundActive {
		t.Fatalf("round ended before its deadline")
	}
	h.clock.Advance(time.Second)
	waitFor(t, "final", func() bool { return h.s.State() == models.GameStateFinal })

	ended := h.bc.broadcasts(events.EventTypeQuestionEnded)
	if len(ended) != 1 {
		t.Fatalf("expected one question-ended, got %d", len(ended))
	}
	for _, r := range decode[events.QuestionEndedPayload](t, ended[0]).Results {
		if r.Answered || r.Points != 0 {
			t.Fatalf("non-submitter scored: %+v", r)
		}
	}
}

func TestConcurrentStartExactlyOneSucceeds(t *testing.T) {
	h := newHarness(t, "100006", 1, Config{})
	h.join(t, "p1")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.s.Start("host")
		}(i)
	}
	wg.Wait()

	ok, already := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyStarted):
			already++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || already != 1 {
		t.Fatalf("ok=%d already=%d", ok, already)
	}
	if n := len(h.bc.broadcasts(events.EventTypeGameStarted)); n != 1 {
		t.Fatalf("game-started emitted %d times", n)
	}
}

func TestStaleClockCallbacksAreIgnored(t *testing.T) {
	h := newHarness(t, "100007", 2, Config{})
	h.join(t, "p1")
	if err := h.s.Start("host"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.clock.Advance(10 * time.Second)
	waitFor(t, "round 1", func() bool { return h.s.RoundIndex() == 1 })

	before := len(h.bc.broadcasts(events.EventTypeTimerUpdate))
	h.s.onExpire(0)
	h.s.onTick(0, 3*time.Second)

	if h.s.State() != models.GameStateRoundActive || h.s.RoundIndex() != 1 {
		t.Fatalf("stale expiry changed state: %s round %d", h.s.State(), h.s.RoundIndex())
	}
	if n := len(h.bc.broadcasts(events.EventTypeQuestionEnded)); n != 1 {
		t.Fatalf("stale expiry re-settled: %d question-ended", n)
	}
	for _, e := range h.bc.broadcasts(events.EventTypeTimerUpdate)[before:] {
		if decode[events.TimerUpdatePayload](t, e).RoundIndex == 0 {
			t.Fatalf("stale tick was broadcast")
		}
	}
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t, "100008", 1, Config{})
	h.join(t, "p1")

	if _, err := h.s.Submit("p1", 0); !errors.Is(err, ErrRoundNotActive) {
		t.Fatalf("submit in lobby: %v", err)
	}
	if err := h.s.Start("host"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := h.s.Submit("ghost", 0); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("unknown player: %v", err)
	}
	if _, err := h.s.Submit("p1", 4); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("out of range option: %v", err)
	}
	if _, err := h.s.Submit("p1", -1); CodeOf(err) != CodeInvalidInput {
		t.Fatalf("negative option: %v", err)
	}

	h.clock.Advance(10 * time.Second)
	if _, err := h.s.Submit("p1", 0); !errors.Is(err, ErrRoundNotActive) {
		t.Fatalf("submit at deadline: %v", err)
	}
}

func TestJoinRules(t *testing.T) {
	h := newHarness(t, "100009", 1, Config{MaxPlayers: 2})

	if _, _, err := h.s.Join("", "nobody", false); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty id: %v", err)
	}
	p, created, err := h.s.Join("p1", "Ada", false)
	if err != nil || !created || p.Seq != 0 {
		t.Fatalf("first join: %+v created=%v err=%v", p, created, err)
	}
	again, created, err := h.s.Join("p1", "Someone Else", false)
	if err != nil || created || again.DisplayName != "Ada" {
		t.Fatalf("rejoin should return the existing player: %+v created=%v err=%v", again, created, err)
	}
	h.join(t, "p2")
	if _, _, err := h.s.Join("p3", "Late", false); CodeOf(err) != CodeInvalidInput {
		t.Fatalf("full game: %v", err)
	}
	if n := len(h.bc.broadcasts(events.EventTypePlayerJoined)); n != 2 {
		t.Fatalf("player-joined emitted %d times, want 2", n)
	}

	if err := h.s.Start("host"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, _, err := h.s.Join("p4", "Mid", false); !errors.Is(err, ErrNotInLobby) {
		t.Fatalf("mid-game join: %v", err)
	}
	if _, _, err := h.s.Join("p2", "name-p2", false); err != nil {
		t.Fatalf("known player rejoin mid-game: %v", err)
	}
}

func TestHostOnlyOperations(t *testing.T) {
	h := newHarness(t, "100010", 1, Config{})
	h.join(t, "p1")

	if err := h.s.Start("p1"); !errors.Is(err, ErrHostRequired) {
		t.Fatalf("player start: %v", err)
	}
	if err := h.s.End("p1"); !errors.Is(err, ErrHostRequired) {
		t.Fatalf("player end: %v", err)
	}
	if err := h.s.Start("host"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.s.Start("p1"); !errors.Is(err, ErrHostRequired) {
		t.Fatalf("player start after start: %v", err)
	}
	if err := h.s.Start("host"); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second start: %v", err)
	}
}

func TestEndGameClosesAndStopsDelivery(t *testing.T) {
	h := newHarness(t, "100011", 2, Config{})
	h.join(t, "p1")
	if _, _, err := h.s.Join("g1", "Guest", true); err != nil {
		t.Fatalf("guest join: %v", err)
	}
	if err := h.s.Start("host"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.clock.Advance(time.Second)
	if _, err := h.s.Submit("p1", 0); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := h.s.End("host"); err != nil {
		t.Fatalf("End: %v", err)
	}
	if got := <-h.closed; got != "100011" {
		t.Fatalf("OnClosed code = %q", got)
	}
	if h.s.State() != models.GameStateClosed || !h.bc.isClosed() {
		t.Fatalf("session should be closed")
	}
	ended := h.bc.broadcasts(events.EventTypeGameEnded)
	if len(ended) != 1 {
		t.Fatalf("expected one game-ended, got %d", len(ended))
	}
	if p := decode[events.GameEndedPayload](t, ended[0]); p.Reason != ReasonEndedByHost || p.RoundsPlayed != 0 {
		t.Fatalf("unexpected game-ended: %+v", p)
	}

	total := h.bc.total()
	h.clock.Advance(30 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if h.bc.total() != total {
		t.Fatalf("events delivered after close")
	}

	if _, err := h.s.Submit("p1", 0); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("submit after close: %v", err)
	}
	if err := h.s.End("host"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("end after close: %v", err)
	}

	batches := h.stats.all()
	if len(batches) != 1 || len(batches[0]) != 1 || batches[0][0].PlayerID != "p1" {
		t.Fatalf("stats should hold only the non-guest player: %v", batches)
	}
}

func TestEndInLobbySkipsStats(t *testing.T) {
	h := newHarness(t, "100012", 1, Config{})
	h.join(t, "p1")
	if err := h.s.End("host"); err != nil {
		t.Fatalf("End: %v", err)
	}
	if len(h.stats.all()) != 0 {
		t.Fatalf("a game that never started should not record stats")
	}
}

func TestSettleDelayHoldsNextRound(t *testing.T) {
	h := newHarness(t, "100013", 2, Config{SettleDelay: 5 * time.Second})
	h.join(t, "p1")
	if err := h.s.Start("host"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.clock.Advance(10 * time.Second)
	waitFor(t, "settling", func() bool { return h.s.State() == models.GameStateRoundSettling })

	if _, err := h.s.Submit("p1", 0); !errors.Is(err, ErrRoundNotActive) {
		t.Fatalf("submit while settling: %v", err)
	}
	h.clock.Advance(4 * time.Second)
	if h.s.RoundIndex() != 0 {
		t.Fatalf("next round started early")
	}
	h.clock.Advance(time.Second)
	waitFor(t, "round 1", func() bool { return h.s.RoundIndex() == 1 })

	started := h.bc.broadcasts(events.EventTypeQuestionStarted)
	if len(started) != 2 {
		t.Fatalf("expected 2 question-started, got %d", len(started))
	}
	q := decode[events.QuestionStartedPayload](t, started[1])
	if q.RoundIndex != 1 || q.DurationSec != 10 || len(q.Question.Options) != 4 {
		t.Fatalf("unexpected question-started: %+v", q)
	}
}

func TestDisconnectKeepsScore(t *testing.T) {
	h := newHarness(t, "100014", 2, Config{})
	h.join(t, "p1")
	if err := h.s.Start("host"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := h.s.Submit("p1", 0); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.s.Disconnect("p1")
	h.clock.Advance(10 * time.Second)
	waitFor(t, "round 1", func() bool { return h.s.RoundIndex() == 1 })

	p := h.s.Players()[0]
	if p.Active || p.CumulativeScore != 1000 {
		t.Fatalf("disconnected player: %+v", p)
	}
	status := h.bc.broadcasts(events.EventTypePlayerStatus)
	if len(status) != 1 || decode[events.PlayerStatusPayload](t, status[0]).Active {
		t.Fatalf("expected one inactive player-status")
	}

	if err := h.s.Connect("p1"); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if !h.s.Players()[0].Active {
		t.Fatalf("reconnect should mark the player active")
	}
	if err := h.s.Connect("stranger"); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("unknown connect: %v", err)
	}
}

func TestNewValidatesQuestions(t *testing.T) {
	fake := clockwork.NewFakeClock()
	engine, _ := scoring.NewEngine(scoring.DefaultBasePoints)
	deps := Deps{Clock: clock.NewService(fake, 0), Scoring: engine, Broadcaster: &fakeBroadcaster{}}

	tests := []struct {
		name      string
		questions []models.Question
		duration  time.Duration
	}{
		{"no questions", nil, 10 * time.Second},
		{"zero duration", testQuestions(1), 0},
		{"negative duration", testQuestions(1), -time.Second},
		{"one option", []models.Question{{Text: "q", Options: []string{"a"}}}, time.Second},
		{"bad correct index", []models.Question{{Text: "q", Options: []string{"a", "b"}, CorrectIndex: 2}}, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("123456", "host", tt.questions, tt.duration, Config{}, deps)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("err = %v, want InvalidInput", err)
			}
		})
	}
}

func TestIdle(t *testing.T) {
	h := newHarness(t, "100015", 1, Config{})
	ttl := time.Minute
	if h.s.Idle(h.clock.Now(), ttl) {
		t.Fatalf("fresh lobby should not be idle")
	}
	h.clock.Advance(ttl)
	if !h.s.Idle(h.clock.Now(), ttl) {
		t.Fatalf("lobby should be idle after ttl")
	}
	h.join(t, "p1")
	if err := h.s.Start("host"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h.s.Idle(h.clock.Now().Add(time.Hour), ttl) {
		t.Fatalf("active round is never idle")
	}
}

func TestInconsistencyAbortsWithSingleErrorEvent(t *testing.T) {
	h := newHarness(t, "100011", 2, Config{})
	h.join(t, "p1")
	if err := h.s.Start("host"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// reopening the current round is out of sequence
	h.s.mu.Lock()
	h.s.beginRoundLocked(0)
	h.s.unlock()

	if h.s.State() != models.GameStateClosed || h.s.CloseReason() != "error" {
		t.Fatalf("state=%s reason=%q", h.s.State(), h.s.CloseReason())
	}
	errs := h.bc.broadcasts(events.EventTypeError)
	if len(errs) != 1 {
		t.Fatalf("expected one error event, got %d", len(errs))
	}
	if len(h.bc.broadcasts(events.EventTypeGameEnded)) != 0 {
		t.Fatalf("aborted game must not broadcast game-ended")
	}
	if !h.bc.isClosed() {
		t.Fatalf("delivery should be torn down")
	}
	select {
	case code := <-h.closed:
		if code != "100011" {
			t.Fatalf("OnClosed code = %s", code)
		}
	default:
		t.Fatalf("OnClosed not called")
	}

	h.clock.Advance(10 * time.Second)
	if _, err := h.s.Submit("p1", 0); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("submit after abort: %v", err)
	}
}
