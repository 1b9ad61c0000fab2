package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/adpulse/adpulse/internal/domain"
	"github.com/adpulse/adpulse/internal/persistence"
)

// ErrEmptyDataset is the typed whole-stage failure for total input absence.
// The caller decides whether to abort or rerun with different input.
var ErrEmptyDataset = errors.New("dataset contains no rows")

// BaselineSnapshot pairs the baseline and thresholds computed for one
// dataset so they can be cached and reused as a unit.
type BaselineSnapshot struct {
	Baseline   domain.Baseline     `json:"baseline"`
	Thresholds domain.ThresholdSet `json:"thresholds"`
	ComputedAt time.Time           `json:"computed_at"`
}

// SnapshotCache stores baseline snapshots keyed by dataset fingerprint.
type SnapshotCache interface {
	Get(ctx context.Context, key string) (BaselineSnapshot, bool, error)
	Set(ctx context.Context, key string, snap BaselineSnapshot) error
}

// Event is one stage-boundary notification emitted during a run.
type Event struct {
	Stage  string         `json:"stage"`
	Name   string         `json:"event"`
	At     time.Time      `json:"at"`
	Detail map[string]any `json:"detail,omitempty"`
}

// EventSink receives pipeline events; implementations must not block.
type EventSink interface {
	Publish(ev Event)
}

// Observer receives stage timings and run outcomes for metrics export.
type Observer interface {
	ObserveStage(stage string, d time.Duration)
	RunCompleted(metrics domain.BatchMetrics)
}

// RunResult is the complete output of one pipeline run. Immutable once
// returned; concurrent readers share it without locking.
type RunResult struct {
	RunID      string              `json:"run_id"`
	StartedAt  time.Time           `json:"started_at"`
	DurationMS int64               `json:"duration_ms"`
	Summary    domain.Summary      `json:"summary"`
	Baseline   domain.Baseline     `json:"baseline"`
	Thresholds domain.ThresholdSet `json:"thresholds"`
	Evidence   domain.Evidence     `json:"evidence"`
	Hypotheses []domain.Hypothesis `json:"hypotheses"`
	Verdicts   []domain.Verdict    `json:"verdicts"`
	Metrics    domain.BatchMetrics `json:"metrics"`
	Creatives  []CreativeBundle    `json:"creatives"`
	Alert      Alert               `json:"alert"`
	FromCache  bool                `json:"baseline_from_cache,omitempty"`
}

// RunOptions tunes a single run.
type RunOptions struct {
	// DatasetKey enables baseline snapshot caching when non-empty.
	DatasetKey string
	// ExtraHypotheses are externally supplied candidates evaluated after
	// the generated insights. Already validated at the decode boundary.
	ExtraHypotheses []domain.Hypothesis
}

// Pipeline wires the core engine stages into one synchronous run:
// aggregate, baseline, thresholds, evidence, insights, evaluate, creatives,
// alert. Store, Cache, Sink and Observer are optional collaborators.
type Pipeline struct {
	Store    persistence.RunStore
	Cache    SnapshotCache
	Sink     EventSink
	Observer Observer

	cfg       Config
	evaluator *domain.Evaluator
}

// NewPipeline builds a pipeline from configuration. Optional collaborators
// are assigned on the returned struct before the first Run.
func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		evaluator: domain.NewEvaluator(cfg.Analysis.EvaluatorConfig()),
	}
}

func (p *Pipeline) emit(stage, name string, detail map[string]any) {
	if p.Sink == nil {
		return
	}
	p.Sink.Publish(Event{Stage: stage, Name: name, At: time.Now().UTC(), Detail: detail})
}

// stage runs fn under a timer, reporting the duration to the observer.
func (p *Pipeline) stage(name string, fn func()) {
	start := time.Now()
	fn()
	if p.Observer != nil {
		p.Observer.ObserveStage(name, time.Since(start))
	}
}

// Run executes the full pipeline over the given rows. The stages are pure
// and share only immutable hand-offs, so concurrent runs are safe as long
// as each gets its own result.
func (p *Pipeline) Run(ctx context.Context, rows []domain.Row, opts RunOptions) (*RunResult, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyDataset
	}

	started := time.Now()
	result := &RunResult{
		RunID:     uuid.NewString(),
		StartedAt: started.UTC(),
	}

	log.Info().Str("run_id", result.RunID).Int("rows", len(rows)).Msg("Pipeline run started")
	p.emit("pipeline", "run_started", map[string]any{"run_id": result.RunID, "rows": len(rows)})

	p.stage("aggregate", func() {
		result.Summary = domain.Summarize(rows)
	})
	p.emit("aggregate", "summary_ready", map[string]any{
		"days":      len(result.Summary.Days),
		"campaigns": len(result.Summary.Campaigns),
	})

	p.stage("baseline", func() {
		result.Baseline, result.Thresholds, result.FromCache = p.baselineSnapshot(ctx, result.Summary, opts.DatasetKey)
	})
	p.emit("baseline", "baseline_ready", map[string]any{
		"rows_used":  result.Baseline.RowsUsed,
		"from_cache": result.FromCache,
	})

	p.stage("evidence", func() {
		result.Evidence = domain.BuildEvidence(result.Summary, result.Baseline)
	})

	p.stage("insights", func() {
		result.Hypotheses = GenerateInsights(result.Summary, result.Evidence, InsightConfig{
			TopK:    p.cfg.Analysis.TopKInsights,
			MinDays: p.cfg.Analysis.MinDays,
		})
		result.Hypotheses = append(result.Hypotheses, opts.ExtraHypotheses...)
	})
	p.emit("insights", "hypotheses_generated", map[string]any{"count": len(result.Hypotheses)})

	p.stage("evaluate", func() {
		result.Verdicts, result.Metrics = p.evaluator.EvaluateBatch(result.Hypotheses, result.Evidence, result.Baseline)
	})
	p.emit("evaluate", "verdicts_ready", map[string]any{
		"num_passed":      result.Metrics.NumPassed,
		"validation_rate": result.Metrics.ValidationRate,
	})

	p.stage("creatives", func() {
		result.Creatives = GenerateCreatives(result.Verdicts, result.Summary)
	})

	numCreatives := 0
	for _, b := range result.Creatives {
		numCreatives += len(b.Creatives)
	}

	p.stage("alert", func() {
		result.Alert = EvaluateROASDropAlert(result.Metrics, result.Evidence, result.Thresholds, numCreatives, time.Now())
	})
	if result.Alert.Alerted {
		log.Warn().Str("run_id", result.RunID).Str("reason", result.Alert.Reason).Msg("ROAS drop alert triggered")
		p.emit("alert", "alert_triggered", map[string]any{"reason": result.Alert.Reason})
	}

	result.DurationMS = time.Since(started).Milliseconds()

	if p.Store != nil {
		if err := p.persist(ctx, result); err != nil {
			// Persistence is best-effort; the run result stands on its own.
			log.Error().Err(err).Str("run_id", result.RunID).Msg("Failed to persist run")
		}
	}
	if p.Observer != nil {
		p.Observer.RunCompleted(result.Metrics)
	}

	log.Info().
		Str("run_id", result.RunID).
		Int("hypotheses", result.Metrics.NumHypotheses).
		Int("passed", result.Metrics.NumPassed).
		Int64("duration_ms", result.DurationMS).
		Msg("Pipeline run completed")
	p.emit("pipeline", "run_completed", map[string]any{
		"run_id":      result.RunID,
		"duration_ms": result.DurationMS,
	})

	return result, nil
}

// baselineSnapshot returns cached baseline/thresholds when a dataset key is
// provided and a snapshot exists, otherwise computes and caches them.
func (p *Pipeline) baselineSnapshot(ctx context.Context, summary domain.Summary, key string) (domain.Baseline, domain.ThresholdSet, bool) {
	if p.Cache != nil && key != "" {
		snap, ok, err := p.Cache.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Baseline cache lookup failed")
		} else if ok {
			return snap.Baseline, snap.Thresholds, true
		}
	}

	baseline := domain.ComputeBaseline(summary.Days, p.cfg.Analysis.BaselineConfig())
	thresholds := domain.ComputeThresholds(summary.Days, p.cfg.Analysis.ThresholdConfig())

	if p.Cache != nil && key != "" {
		snap := BaselineSnapshot{Baseline: baseline, Thresholds: thresholds, ComputedAt: time.Now().UTC()}
		if err := p.Cache.Set(ctx, key, snap); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Baseline cache store failed")
		}
	}
	return baseline, thresholds, false
}

func (p *Pipeline) persist(ctx context.Context, result *RunResult) error {
	run := persistence.RunRecord{
		ID:             result.RunID,
		StartedAt:      result.StartedAt,
		DurationMS:     result.DurationMS,
		NumHypotheses:  result.Metrics.NumHypotheses,
		NumPassed:      result.Metrics.NumPassed,
		ValidationRate: result.Metrics.ValidationRate,
		CTRBaseline:    result.Metrics.CTRBaseline,
		ROASBaseline:   result.Metrics.ROASBaseline,
		RowsUsed:       result.Baseline.RowsUsed,
	}
	verdicts := make([]persistence.VerdictRecord, 0, len(result.Verdicts))
	for _, v := range result.Verdicts {
		verdicts = append(verdicts, persistence.VerdictRecord{
			RunID:        result.RunID,
			HypothesisID: v.ID,
			Text:         v.Text,
			Impact:       string(v.Impact),
			Confidence:   v.Confidence,
			Passed:       v.Passed,
			CTRDeltaPct:  v.Evidence.CTRDeltaPct,
			ROASDeltaPct: v.Evidence.ROASDeltaPct,
			Error:        v.Err,
		})
	}
	return p.Store.SaveRun(ctx, run, verdicts)
}
