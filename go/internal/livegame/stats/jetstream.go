package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration // How long to keep records
	Replicas        int
	DuplicateWindow time.Duration // Window for msg-id dedupe
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "GAME_STATS",
		SubjectPrefix:   "livegame.stats",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          30 * 24 * time.Hour,
		Replicas:        1,
		DuplicateWindow: 2 * time.Hour,
	}
}

// JetStreamRecorder publishes each record to
// <prefix>.<game_code>.<player_id>. The message id is derived from the game
// and player, so a retried publish is deduplicated by the stream.
type JetStreamRecorder struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewJetStreamRecorder(ctx context.Context, cfg JetStreamConfig) (*JetStreamRecorder, error) {
	opts := []nats.Option{
		nats.Name("livegame-stats"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	r := &JetStreamRecorder{nc: nc, js: js, config: cfg}
	if err := r.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return r, nil
}

func (r *JetStreamRecorder) streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        r.config.StreamName,
		Description: "Per-player results of finished live games",
		Subjects:    []string{fmt.Sprintf("%s.>", r.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      r.config.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    r.config.Replicas,
		Duplicates:  r.config.DuplicateWindow,
	}
}

func (r *JetStreamRecorder) ensureStream(ctx context.Context) error {
	sc := r.streamConfig()

	stream, err := r.js.Stream(ctx, sc.Name)
	if err != nil {
		if _, err = r.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", sc.Name).Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = r.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().Str("stream", sc.Name).Msg("updated JetStream stream")
	}
	return nil
}

// Record implements Recorder. It stops at the first failed publish.
func (r *JetStreamRecorder) Record(ctx context.Context, records []Record) error {
	for _, rec := range records {
		msg, err := r.message(rec)
		if err != nil {
			return err
		}
		ack, err := r.js.PublishMsg(ctx, msg,
			jetstream.WithMsgID(recordMsgID(rec)),
			jetstream.WithExpectStream(r.config.StreamName),
		)
		if err != nil {
			return fmt.Errorf("publish stats for %s: %w", rec.PlayerID, err)
		}
		log.Debug().
			Str("subject", msg.Subject).
			Uint64("sequence", ack.Sequence).
			Bool("duplicate", ack.Duplicate).
			Msg("published player stats")
	}
	return nil
}

func (r *JetStreamRecorder) message(rec Record) (*nats.Msg, error) {
	env := map[string]interface{}{
		"eventId":   recordMsgID(rec),
		"eventType": "player-stats",
		"gameCode":  rec.GameCode,
		"timestamp": rec.RecordedAt.UTC(),
		"payload": map[string]interface{}{
			"player_id":              rec.PlayerID,
			"display_name":           rec.DisplayName,
			"points_gain":            rec.PointsGain,
			"number_of_questions":    rec.NumberOfQuestions,
			"number_correct_answers": rec.NumberCorrectAnswers,
			"total_time_ms":          rec.TotalTimeMillis(),
		},
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal stats record: %w", err)
	}
	return &nats.Msg{
		Subject: subjectFor(r.config.SubjectPrefix, rec),
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{"player-stats"},
			"Game-Code":  []string{rec.GameCode},
			"Player-ID":  []string{rec.PlayerID},
		},
	}, nil
}

func (r *JetStreamRecorder) Close() error {
	if r.nc != nil {
		if err := r.nc.Drain(); err != nil {
			r.nc.Close()
			return fmt.Errorf("drain NATS connection: %w", err)
		}
	}
	return nil
}

// subjectFor builds the publish subject. Player ids are opaque, so tokens
// that NATS treats specially are replaced.
func subjectFor(prefix string, rec Record) string {
	return fmt.Sprintf("%s.%s.%s", prefix, subjectToken(rec.GameCode), subjectToken(rec.PlayerID))
}

func subjectToken(s string) string {
	out := []rune(s)
	for i, c := range out {
		switch c {
		case '.', '*', '>', ' ', '\t':
			out[i] = '_'
		}
	}
	if len(out) == 0 {
		return "_"
	}
	return string(out)
}

// recordMsgID is stable for a (game, player, end time) triple.
func recordMsgID(rec Record) string {
	name := fmt.Sprintf("%s/%s/%d", rec.GameCode, rec.PlayerID, rec.RecordedAt.UnixNano())
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}
