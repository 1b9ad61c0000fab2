package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/adpulse/adpulse/internal/persistence"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	started_at      TIMESTAMPTZ NOT NULL,
	duration_ms     BIGINT NOT NULL,
	num_hypotheses  INT NOT NULL,
	num_passed      INT NOT NULL,
	validation_rate DOUBLE PRECISION NOT NULL,
	ctr_baseline    DOUBLE PRECISION NOT NULL,
	roas_baseline   DOUBLE PRECISION NOT NULL,
	rows_used       INT NOT NULL
);

CREATE TABLE IF NOT EXISTS verdicts (
	run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	hypothesis_id  TEXT NOT NULL,
	text           TEXT NOT NULL,
	impact         TEXT NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL,
	passed         BOOLEAN NOT NULL,
	ctr_delta_pct  DOUBLE PRECISION NOT NULL,
	roas_delta_pct DOUBLE PRECISION NOT NULL,
	error          TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, hypothesis_id)
);

CREATE INDEX IF NOT EXISTS idx_verdicts_run ON verdicts(run_id);
`

// Store is the Postgres-backed run store.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// New connects to Postgres and ensures the schema exists.
func New(dsn string, timeout time.Duration) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	log.Info().Msg("Postgres run store ready")
	return &Store{db: db, timeout: timeout}, nil
}

// NewWithDB wraps an existing connection, primarily for tests.
func NewWithDB(db *sqlx.DB, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// SaveRun stores a run and its verdicts in one transaction. Replaying the
// same run id overwrites the previous rows.
func (s *Store) SaveRun(ctx context.Context, run persistence.RunRecord, verdicts []persistence.VerdictRecord) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO runs (id, started_at, duration_ms, num_hypotheses, num_passed,
			validation_rate, ctr_baseline, roas_baseline, rows_used)
		VALUES (:id, :started_at, :duration_ms, :num_hypotheses, :num_passed,
			:validation_rate, :ctr_baseline, :roas_baseline, :rows_used)
		ON CONFLICT (id) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			duration_ms = EXCLUDED.duration_ms,
			num_hypotheses = EXCLUDED.num_hypotheses,
			num_passed = EXCLUDED.num_passed,
			validation_rate = EXCLUDED.validation_rate,
			ctr_baseline = EXCLUDED.ctr_baseline,
			roas_baseline = EXCLUDED.roas_baseline,
			rows_used = EXCLUDED.rows_used`, run)
	if err != nil {
		return fmt.Errorf("failed to upsert run %s: %w", run.ID, err)
	}

	for _, v := range verdicts {
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO verdicts (run_id, hypothesis_id, text, impact, confidence,
				passed, ctr_delta_pct, roas_delta_pct, error)
			VALUES (:run_id, :hypothesis_id, :text, :impact, :confidence,
				:passed, :ctr_delta_pct, :roas_delta_pct, :error)
			ON CONFLICT (run_id, hypothesis_id) DO UPDATE SET
				text = EXCLUDED.text,
				impact = EXCLUDED.impact,
				confidence = EXCLUDED.confidence,
				passed = EXCLUDED.passed,
				ctr_delta_pct = EXCLUDED.ctr_delta_pct,
				roas_delta_pct = EXCLUDED.roas_delta_pct,
				error = EXCLUDED.error`, v)
		if err != nil {
			return fmt.Errorf("failed to upsert verdict %s/%s: %w", v.RunID, v.HypothesisID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun fetches one run by id.
func (s *Store) GetRun(ctx context.Context, id string) (persistence.RunRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var run persistence.RunRecord
	err := s.db.GetContext(ctx, &run, `
		SELECT id, started_at, duration_ms, num_hypotheses, num_passed,
			validation_rate, ctr_baseline, roas_baseline, rows_used
		FROM runs WHERE id = $1`, id)
	if err != nil {
		return persistence.RunRecord{}, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]persistence.RunRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	var runs []persistence.RunRecord
	err := s.db.SelectContext(ctx, &runs, `
		SELECT id, started_at, duration_ms, num_hypotheses, num_passed,
			validation_rate, ctr_baseline, roas_baseline, rows_used
		FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// ListVerdicts returns all verdicts recorded for a run.
func (s *Store) ListVerdicts(ctx context.Context, runID string) ([]persistence.VerdictRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var verdicts []persistence.VerdictRecord
	err := s.db.SelectContext(ctx, &verdicts, `
		SELECT run_id, hypothesis_id, text, impact, confidence,
			passed, ctr_delta_pct, roas_delta_pct, error
		FROM verdicts WHERE run_id = $1 ORDER BY hypothesis_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list verdicts for run %s: %w", runID, err)
	}
	return verdicts, nil
}
