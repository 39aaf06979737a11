package stats

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeRecorder struct {
	mu      sync.Mutex
	batches [][]Record
	err     error
	block   chan struct{}
	closed  bool
}

func (f *fakeRecorder) Record(ctx context.Context, records []Record) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, records)
	return f.err
}

func (f *fakeRecorder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func sampleRecords() []Record {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []Record{
		{GameCode: "482913", PlayerID: "p1", PointsGain: 800, NumberOfQuestions: 1, NumberCorrectAnswers: 1, TotalTime: 2 * time.Second, RecordedAt: at},
		{GameCode: "482913", PlayerID: "p2", NumberOfQuestions: 1, TotalTime: 5 * time.Second, RecordedAt: at},
	}
}

func TestDispatchDoesNotBlockOnSlowRecorder(t *testing.T) {
	rec := &fakeRecorder{block: make(chan struct{})}
	d := NewDispatcher(rec, time.Second)

	returned := make(chan struct{})
	go func() {
		d.Dispatch(sampleRecords())
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatalf("Dispatch blocked on the recorder")
	}

	close(rec.block)
	if err := d.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 batch, got %d", rec.count())
	}
}

func TestDispatchSwallowsRecorderErrors(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("stats service down")}
	d := NewDispatcher(rec, time.Second)

	d.Dispatch(sampleRecords())
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if rec.count() != 1 || !rec.closed {
		t.Fatalf("expected one attempt and a closed recorder, got %d closed=%v", rec.count(), rec.closed)
	}
}

func TestDispatchCopiesRecords(t *testing.T) {
	rec := &fakeRecorder{block: make(chan struct{})}
	d := NewDispatcher(rec, time.Second)

	records := sampleRecords()
	d.Dispatch(records)
	records[0].PointsGain = -1
	close(rec.block)

	if err := d.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := rec.batches[0][0].PointsGain; got != 800 {
		t.Fatalf("dispatched record was mutated by caller: %d", got)
	}
}

func TestDispatchTimesOut(t *testing.T) {
	rec := &fakeRecorder{block: make(chan struct{})}
	d := NewDispatcher(rec, 20*time.Millisecond)

	d.Dispatch(sampleRecords())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("dispatch did not honour its timeout: %v", err)
	}
	if rec.count() != 0 {
		t.Fatalf("timed out record should not be stored")
	}
}

func TestSubjectForSanitisesTokens(t *testing.T) {
	rec := Record{GameCode: "482913", PlayerID: "user.with*chars"}
	got := subjectFor("livegame.stats", rec)
	if got != "livegame.stats.482913.user_with_chars" {
		t.Fatalf("subjectFor = %q", got)
	}
	if strings.Count(subjectFor("p", Record{}), ".") != 2 {
		t.Fatalf("empty tokens must still produce three subject parts")
	}
}

func TestRecordMsgIDIsStable(t *testing.T) {
	a, b := sampleRecords()[0], sampleRecords()[0]
	if recordMsgID(a) != recordMsgID(b) {
		t.Fatalf("msg id must be deterministic")
	}
	b.PlayerID = "other"
	if recordMsgID(a) == recordMsgID(b) {
		t.Fatalf("msg id must differ per player")
	}
}
