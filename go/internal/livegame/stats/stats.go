// Package stats forwards end-of-game player records to the persistent stats
// service. Delivery is fire-and-forget: a failing sink never blocks or fails
// session teardown.
package stats

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Record is one player's totals for a finished game.
type Record struct {
	GameCode             string        `json:"game_code"`
	PlayerID             string        `json:"player_id"`
	DisplayName          string        `json:"display_name"`
	PointsGain           int           `json:"points_gain"`
	NumberOfQuestions    int           `json:"number_of_questions"`
	NumberCorrectAnswers int           `json:"number_correct_answers"`
	TotalTime            time.Duration `json:"-"`
	RecordedAt           time.Time     `json:"recorded_at"`
}

// TotalTimeMillis is the wire form of TotalTime.
func (r Record) TotalTimeMillis() int64 {
	return r.TotalTime.Milliseconds()
}

// Recorder persists records. Implementations may block until ctx is done.
type Recorder interface {
	Record(ctx context.Context, records []Record) error
	Close() error
}

// LogRecorder writes records to the log. It is the development default.
type LogRecorder struct{}

// Record implements Recorder.
func (LogRecorder) Record(_ context.Context, records []Record) error {
	for _, r := range records {
		log.Info().
			Str("game_code", r.GameCode).
			Str("player_id", r.PlayerID).
			Int("points_gain", r.PointsGain).
			Int("questions", r.NumberOfQuestions).
			Int("correct", r.NumberCorrectAnswers).
			Int64("total_time_ms", r.TotalTimeMillis()).
			Msg("player stats")
	}
	return nil
}

// Close implements Recorder.
func (LogRecorder) Close() error {
	return nil
}

// DefaultDispatchTimeout bounds a single Recorder call.
const DefaultDispatchTimeout = 10 * time.Second

// Dispatcher hands records to a Recorder on a background goroutine.
type Dispatcher struct {
	recorder Recorder
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewDispatcher wraps recorder. A non-positive timeout uses
// DefaultDispatchTimeout.
func NewDispatcher(recorder Recorder, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	return &Dispatcher{
		recorder: recorder,
		timeout:  timeout,
	}
}

// Dispatch returns immediately. Failures are logged and dropped.
func (d *Dispatcher) Dispatch(records []Record) {
	if d.recorder == nil || len(records) == 0 {
		return
	}
	batch := append([]Record(nil), records...)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.recorder.Record(ctx, batch); err != nil {
			log.Warn().
				Err(err).
				Str("game_code", batch[0].GameCode).
				Int("records", len(batch)).
				Msg("failed to record game stats")
		}
	}()
}

// Wait blocks until in-flight dispatches finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close waits for in-flight dispatches, then closes the recorder.
func (d *Dispatcher) Close(ctx context.Context) error {
	if err := d.Wait(ctx); err != nil {
		log.Warn().Err(err).Msg("stats dispatches still in flight at shutdown")
	}
	if d.recorder == nil {
		return nil
	}
	return d.recorder.Close()
}
