package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpulse/adpulse/internal/domain"
	"github.com/adpulse/adpulse/internal/persistence"
)

type memStore struct {
	mu       sync.Mutex
	run      persistence.RunRecord
	verdicts []persistence.VerdictRecord
	saves    int
}

func (m *memStore) SaveRun(_ context.Context, run persistence.RunRecord, verdicts []persistence.VerdictRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.run = run
	m.verdicts = verdicts
	m.saves++
	return nil
}

func (m *memStore) GetRun(context.Context, string) (persistence.RunRecord, error) {
	return persistence.RunRecord{}, nil
}

func (m *memStore) ListRuns(context.Context, int) ([]persistence.RunRecord, error) {
	return nil, nil
}

func (m *memStore) ListVerdicts(context.Context, string) ([]persistence.VerdictRecord, error) {
	return nil, nil
}

type memCache struct {
	mu    sync.Mutex
	snaps map[string]BaselineSnapshot
}

func newMemCache() *memCache {
	return &memCache{snaps: make(map[string]BaselineSnapshot)}
}

func (m *memCache) Get(_ context.Context, key string) (BaselineSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[key]
	return snap, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, snap BaselineSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[key] = snap
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Name
	}
	return out
}

type recordingObserver struct {
	mu     sync.Mutex
	stages []string
	runs   int
}

func (r *recordingObserver) ObserveStage(stage string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func (r *recordingObserver) RunCompleted(domain.BatchMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
}

// collapseRows is ten steady days followed by one day where revenue drops
// 10x. The final-day ROAS of 0.3 against a ~2.75 baseline is a critical
// regression.
func collapseRows() []domain.Row {
	start := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)
	var rows []domain.Row
	for i := 0; i < 10; i++ {
		rows = append(rows, domain.Row{
			Date:        start.AddDate(0, 0, i),
			Campaign:    "summer-sale",
			Creative:    "cr-1",
			Spend:       100,
			Impressions: 10000,
			Clicks:      160,
			Revenue:     300,
		})
	}
	rows = append(rows, domain.Row{
		Date:        start.AddDate(0, 0, 10),
		Campaign:    "summer-sale",
		Creative:    "cr-1",
		Spend:       100,
		Impressions: 10000,
		Clicks:      160,
		Revenue:     30,
	})
	return rows
}

func TestRunEmptyDataset(t *testing.T) {
	p := NewPipeline(DefaultConfig())
	_, err := p.Run(context.Background(), nil, RunOptions{})
	require.ErrorIs(t, err, ErrEmptyDataset)
}

func TestRunEndToEnd(t *testing.T) {
	p := NewPipeline(DefaultConfig())

	result, err := p.Run(context.Background(), collapseRows(), RunOptions{})
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 11, result.Summary.Totals.Rows)
	assert.Equal(t, 11, result.Baseline.RowsUsed)

	// Revenue collapse drives a validated critical ROAS verdict.
	require.NotEmpty(t, result.Verdicts)
	var critical *domain.Verdict
	for i := range result.Verdicts {
		if result.Verdicts[i].Impact == domain.ImpactCritical {
			critical = &result.Verdicts[i]
		}
	}
	require.NotNil(t, critical)
	assert.True(t, critical.Passed)
	assert.InDelta(t, -0.89, critical.Evidence.ROASDeltaPct, 0.01)

	assert.Greater(t, result.Metrics.NumHypotheses, 0)
	assert.Greater(t, result.Metrics.NumPassed, 0)

	// The single campaign's whole-period ROAS sits at the baseline, so no
	// campaign is individually 20% below it and no creatives are produced.
	// The observed drop (0.891) also lands just under the dynamic threshold
	// (median drop 0.9), so the alert stays quiet.
	assert.Empty(t, result.Creatives)
	assert.False(t, result.Alert.Alerted)
	assert.False(t, result.FromCache)
}

func TestRunPersistsThroughStore(t *testing.T) {
	store := &memStore{}
	p := NewPipeline(DefaultConfig())
	p.Store = store

	result, err := p.Run(context.Background(), collapseRows(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, store.saves)
	assert.Equal(t, result.RunID, store.run.ID)
	assert.Equal(t, result.Metrics.NumHypotheses, store.run.NumHypotheses)
	assert.Len(t, store.verdicts, len(result.Verdicts))
	for _, v := range store.verdicts {
		assert.Equal(t, result.RunID, v.RunID)
	}
}

func TestRunCachesBaselineSnapshot(t *testing.T) {
	cache := newMemCache()
	p := NewPipeline(DefaultConfig())
	p.Cache = cache

	first, err := p.Run(context.Background(), collapseRows(), RunOptions{DatasetKey: "ds-1"})
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	snap, ok, err := cache.Get(context.Background(), "ds-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.Baseline, snap.Baseline)
	assert.Equal(t, first.Thresholds, snap.Thresholds)

	second, err := p.Run(context.Background(), collapseRows(), RunOptions{DatasetKey: "ds-1"})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Baseline, second.Baseline)
}

func TestRunWithoutDatasetKeySkipsCache(t *testing.T) {
	cache := newMemCache()
	p := NewPipeline(DefaultConfig())
	p.Cache = cache

	_, err := p.Run(context.Background(), collapseRows(), RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, cache.snaps)
}

func TestRunEmitsEventsAndTimings(t *testing.T) {
	sink := &recordingSink{}
	obs := &recordingObserver{}
	p := NewPipeline(DefaultConfig())
	p.Sink = sink
	p.Observer = obs

	_, err := p.Run(context.Background(), collapseRows(), RunOptions{})
	require.NoError(t, err)

	names := sink.names()
	assert.Contains(t, names, "run_started")
	assert.Contains(t, names, "summary_ready")
	assert.Contains(t, names, "baseline_ready")
	assert.Contains(t, names, "hypotheses_generated")
	assert.Contains(t, names, "verdicts_ready")
	assert.Contains(t, names, "run_completed")

	assert.Subset(t, obs.stages, []string{"aggregate", "baseline", "evidence", "insights", "evaluate", "creatives", "alert"})
	assert.Equal(t, 1, obs.runs)
}

func TestRunExtraHypothesesEvaluated(t *testing.T) {
	p := NewPipeline(DefaultConfig())

	extra := domain.Hypothesis{
		ID:                "ext-1",
		Text:              "Landing page change hurt conversions",
		MetricsUsed:       []string{"roas"},
		InitialConfidence: 0.6,
	}
	result, err := p.Run(context.Background(), collapseRows(), RunOptions{ExtraHypotheses: []domain.Hypothesis{extra}})
	require.NoError(t, err)

	var found bool
	for _, v := range result.Verdicts {
		if v.ID == "ext-1" {
			found = true
			assert.True(t, v.Passed)
		}
	}
	assert.True(t, found)
}
