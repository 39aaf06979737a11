package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/livegame/go/internal/livegame/clock"
	"github.com/mcdev12/livegame/go/internal/livegame/gateway"
	"github.com/mcdev12/livegame/go/internal/livegame/scoring"
	"github.com/mcdev12/livegame/go/internal/livegame/session"
	"github.com/mcdev12/livegame/go/internal/models"
)

func questions() []models.Question {
	return []models.Question{{
		Text:         "2 + 2",
		Options:      []string{"3", "4"},
		CorrectIndex: 1,
	}}
}

func newTestRegistry(t *testing.T, cfg Config, opts ...Option) (*Registry, *clockwork.FakeClock) {
	t.Helper()
	fake := clockwork.NewFakeClock()
	engine, err := scoring.NewEngine(scoring.DefaultBasePoints)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	gw := gateway.New(gateway.DefaultConnectionConfig())
	return New(clock.NewService(fake, time.Second), engine, gw, cfg, opts...), fake
}

// sequence returns a generator replaying codes in order.
func sequence(codes ...string) CodeGenerator {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[i%len(codes)]
		i++
		return code, nil
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

func TestGenerateCodeFormat(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode: %v", err)
		}
		if !ValidCode(code) {
			t.Fatalf("invalid code %q", code)
		}
	}
	for _, bad := range []string{"", "12345", "1234567", "12a456"} {
		if ValidCode(bad) {
			t.Fatalf("ValidCode(%q) = true", bad)
		}
	}
}

func TestCreateSkipsCodesInUse(t *testing.T) {
	r, _ := newTestRegistry(t, Config{}, WithCodeGenerator(sequence("482913", "482913", "100200")))

	first, err := r.Create("host-a", questions(), 10*time.Second)
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	second, err := r.Create("host-b", questions(), 10*time.Second)
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if first.Code() != "482913" || second.Code() != "100200" {
		t.Fatalf("codes = %s, %s", first.Code(), second.Code())
	}
}

func TestCreateFailsWhenCodeSpaceExhausted(t *testing.T) {
	r, _ := newTestRegistry(t, Config{}, WithCodeGenerator(sequence("111111")))
	if _, err := r.Create("host", questions(), 10*time.Second); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.Create("host", questions(), 10*time.Second); !errors.Is(err, ErrCodeSpaceExhausted) {
		t.Fatalf("err = %v, want ErrCodeSpaceExhausted", err)
	}
}

func TestConcurrentCreatesGetDistinctCodes(t *testing.T) {
	r, _ := newTestRegistry(t, Config{})

	const n = 50
	codes := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := r.Create("host", questions(), 10*time.Second)
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			codes[i] = sess.Code()
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, c := range codes {
		if seen[c] {
			t.Fatalf("duplicate code %s", c)
		}
		seen[c] = true
	}
	if r.Len() != n {
		t.Fatalf("Len() = %d, want %d", r.Len(), n)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	r, _ := newTestRegistry(t, Config{})
	if _, err := r.Create("host", nil, 10*time.Second); !errors.Is(err, session.ErrInvalidInput) {
		t.Fatalf("empty questions: %v", err)
	}
	if _, err := r.Create("host", questions(), 0); !errors.Is(err, session.ErrInvalidInput) {
		t.Fatalf("zero duration: %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("failed creates must not register sessions")
	}
}

func TestLookupUnknownCode(t *testing.T) {
	r, _ := newTestRegistry(t, Config{})
	if _, err := r.Lookup("000000"); !errors.Is(err, session.ErrInvalidCode) {
		t.Fatalf("err = %v, want InvalidCode", err)
	}
	if _, _, err := r.Join("000000", "p1", "Ada", false); !errors.Is(err, session.ErrInvalidCode) {
		t.Fatalf("join err = %v, want InvalidCode", err)
	}
}

func TestPlayerBelongsToOneSession(t *testing.T) {
	r, _ := newTestRegistry(t, Config{}, WithCodeGenerator(sequence("111111", "222222")))
	a, _ := r.Create("host-a", questions(), 10*time.Second)
	b, _ := r.Create("host-b", questions(), 10*time.Second)

	if _, _, err := r.Join(a.Code(), "p1", "Ada", false); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if _, created, err := r.Join(a.Code(), "p1", "Ada", false); err != nil || created {
		t.Fatalf("rejoin a: created=%v err=%v", created, err)
	}
	if _, _, err := r.Join(b.Code(), "p1", "Ada", false); !errors.Is(err, session.ErrInvalidInput) {
		t.Fatalf("join b: %v, want InvalidInput", err)
	}

	if err := a.End("host-a"); err != nil {
		t.Fatalf("End: %v", err)
	}
	if _, err := r.Lookup(a.Code()); !errors.Is(err, session.ErrInvalidCode) {
		t.Fatalf("ended session still registered: %v", err)
	}
	if _, _, err := r.Join(b.Code(), "p1", "Ada", false); err != nil {
		t.Fatalf("join b after a ended: %v", err)
	}
}

func TestCollectClosesIdleSessions(t *testing.T) {
	r, fake := newTestRegistry(t, Config{IdleTTL: 10 * time.Minute}, WithCodeGenerator(sequence("111111", "222222")))
	idle, _ := r.Create("host-a", questions(), 10*time.Second)
	busy, _ := r.Create("host-b", questions(), 10*time.Second)
	if _, _, err := r.Join(busy.Code(), "p1", "Ada", false); err != nil {
		t.Fatalf("Join: %v", err)
	}

	fake.Advance(9 * time.Minute)
	if err := busy.Start("host-b"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	fake.Advance(time.Minute)

	if n := r.Collect(); n != 1 {
		t.Fatalf("Collect() = %d, want 1", n)
	}
	if idle.State() != models.GameStateClosed || idle.CloseReason() != session.ReasonIdle {
		t.Fatalf("idle session: state=%s reason=%s", idle.State(), idle.CloseReason())
	}
	if _, err := r.Lookup(busy.Code()); err != nil {
		t.Fatalf("running session collected: %v", err)
	}
	waitFor(t, "idle hub removal", func() bool {
		_, ok := r.Hub(idle.Code())
		return !ok
	})
}

func TestRunCollectsOnInterval(t *testing.T) {
	r, fake := newTestRegistry(t, Config{IdleTTL: time.Minute, GCInterval: 30 * time.Second})
	if _, err := r.Create("host", questions(), 10*time.Second); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	if err := fake.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("BlockUntilContext: %v", err)
	}
	for i := 0; i < 2; i++ {
		fake.Advance(30 * time.Second)
	}
	waitFor(t, "idle collection", func() bool { return r.Len() == 0 })

	cancel()
	<-done
}

func TestCloseAll(t *testing.T) {
	r, _ := newTestRegistry(t, Config{}, WithCodeGenerator(sequence("111111", "222222")))
	a, _ := r.Create("host-a", questions(), 10*time.Second)
	b, _ := r.Create("host-b", questions(), 10*time.Second)

	r.CloseAll(session.ReasonServerShutdown)

	if r.Len() != 0 {
		t.Fatalf("Len() = %d after CloseAll", r.Len())
	}
	for _, s := range []*session.Session{a, b} {
		if s.CloseReason() != session.ReasonServerShutdown {
			t.Fatalf("%s closed with %q", s.Code(), s.CloseReason())
		}
	}
}

func TestActiveListsSessions(t *testing.T) {
	r, fake := newTestRegistry(t, Config{}, WithCodeGenerator(sequence("222222", "111111")))
	if _, err := r.Create("host-a", questions(), 10*time.Second); err != nil {
		t.Fatalf("Create: %v", err)
	}
	fake.Advance(time.Second)
	if _, err := r.Create("host-b", questions(), 10*time.Second); err != nil {
		t.Fatalf("Create: %v", err)
	}

	active := r.Active()
	if len(active) != 2 || active[0].Code != "222222" || active[1].Code != "111111" {
		t.Fatalf("Active() = %+v", active)
	}
	if active[0].State != models.GameStateLobby || active[0].TotalQuestions != 1 {
		t.Fatalf("unexpected info: %+v", active[0])
	}
}
