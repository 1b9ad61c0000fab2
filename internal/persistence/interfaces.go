package persistence

import (
	"context"
	"time"
)

// RunRecord is the stored summary of one pipeline run.
type RunRecord struct {
	ID             string    `db:"id" json:"id"`
	StartedAt      time.Time `db:"started_at" json:"started_at"`
	DurationMS     int64     `db:"duration_ms" json:"duration_ms"`
	NumHypotheses  int       `db:"num_hypotheses" json:"num_hypotheses"`
	NumPassed      int       `db:"num_passed" json:"num_passed"`
	ValidationRate float64   `db:"validation_rate" json:"validation_rate"`
	CTRBaseline    float64   `db:"ctr_baseline" json:"ctr_baseline"`
	ROASBaseline   float64   `db:"roas_baseline" json:"roas_baseline"`
	RowsUsed       int       `db:"rows_used" json:"rows_used"`
}

// VerdictRecord is one stored hypothesis verdict, keyed by run.
type VerdictRecord struct {
	RunID        string  `db:"run_id" json:"run_id"`
	HypothesisID string  `db:"hypothesis_id" json:"hypothesis_id"`
	Text         string  `db:"text" json:"text"`
	Impact       string  `db:"impact" json:"impact"`
	Confidence   float64 `db:"confidence" json:"confidence"`
	Passed       bool    `db:"passed" json:"passed"`
	CTRDeltaPct  float64 `db:"ctr_delta_pct" json:"ctr_delta_pct"`
	ROASDeltaPct float64 `db:"roas_delta_pct" json:"roas_delta_pct"`
	Error        string  `db:"error" json:"error,omitempty"`
}

// RunStore persists runs and their verdicts atomically.
type RunStore interface {
	SaveRun(ctx context.Context, run RunRecord, verdicts []VerdictRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	ListVerdicts(ctx context.Context, runID string) ([]VerdictRecord, error)
}
