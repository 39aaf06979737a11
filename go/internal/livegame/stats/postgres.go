package stats

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livegame/go/internal/dbconfig"
	"github.com/mcdev12/livegame/go/internal/sqlutil"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS game_stats (
    game_code              TEXT        NOT NULL,
    player_id              TEXT        NOT NULL,
    display_name           TEXT,
    points_gain            INTEGER     NOT NULL,
    number_of_questions    INTEGER     NOT NULL,
    number_correct_answers INTEGER     NOT NULL,
    total_time_ms          BIGINT      NOT NULL,
    recorded_at            TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (game_code, player_id, recorded_at)
)`

const insertStatsSQL = `
INSERT INTO game_stats (
  game_code, player_id, display_name, points_gain,
  number_of_questions, number_correct_answers, total_time_ms, recorded_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (game_code, player_id, recorded_at) DO NOTHING`

// statsQueries binds the stats statements to one transaction.
type statsQueries struct {
	tx pgx.Tx
}

func newStatsQueries(tx pgx.Tx) *statsQueries {
	return &statsQueries{tx: tx}
}

func (q *statsQueries) insert(ctx context.Context, r Record) (bool, error) {
	tag, err := q.tx.Exec(ctx, insertStatsSQL,
		r.GameCode, r.PlayerID, sqlutil.ToText(r.DisplayName), r.PointsGain,
		r.NumberOfQuestions, r.NumberCorrectAnswers, r.TotalTimeMillis(),
		sqlutil.ToTimestamptz(r.RecordedAt),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// PostgresRecorder writes one game's records in a single transaction.
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

// NewPostgresRecorder connects and ensures the game_stats table exists.
func NewPostgresRecorder(ctx context.Context, cfg dbconfig.Config) (*PostgresRecorder, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create game_stats table: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Database).
		Msg("stats database connected")
	return &PostgresRecorder{pool: pool}, nil
}

// Record implements Recorder.
func (r *PostgresRecorder) Record(ctx context.Context, records []Record) error {
	inserted := 0
	err := sqlutil.Run(ctx, r.pool, newStatsQueries, func(q *statsQueries) error {
		for _, rec := range records {
			ok, err := q.insert(ctx, rec)
			if err != nil {
				return fmt.Errorf("insert stats for %s: %w", rec.PlayerID, err)
			}
			if ok {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Debug().
		Int("records", len(records)).
		Int("inserted", inserted).
		Msg("stats written")
	return nil
}

// Close implements Recorder.
func (r *PostgresRecorder) Close() error {
	r.pool.Close()
	return nil
}
