package io

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/adpulse/adpulse/internal/application"
	"github.com/adpulse/adpulse/internal/infrastructure/csvsource"
)

// ReportWriter lands run artifacts in a reports directory:
//
//	report_<run-id>.json   full result of one run
//	latest.json            copy of the most recent report
//	alerts.json            append-only list of triggered alerts
type ReportWriter struct {
	dir string
}

// NewReportWriter creates the writer; the directory is created lazily on the
// first write.
func NewReportWriter(dir string) *ReportWriter {
	return &ReportWriter{dir: dir}
}

// WriteRun writes the full run report, refreshes latest.json and lands the
// per-section artifacts consumers subscribe to individually. Returns the
// report path.
func (w *ReportWriter) WriteRun(result *application.RunResult) (string, error) {
	path := filepath.Join(w.dir, fmt.Sprintf("report_%s.json", result.RunID))
	if err := WriteJSONAtomic(path, result); err != nil {
		return "", fmt.Errorf("failed to write run report: %w", err)
	}
	if err := WriteJSONAtomic(filepath.Join(w.dir, "latest.json"), result); err != nil {
		return "", fmt.Errorf("failed to write latest report: %w", err)
	}

	sections := map[string]any{
		"baseline.json": map[string]any{
			"baseline":   result.Baseline,
			"thresholds": result.Thresholds,
		},
		"evidence.json":  result.Evidence,
		"metrics.json":   result.Metrics,
		"insights.json":  result.Hypotheses,
		"creatives.json": result.Creatives,
	}
	for name, v := range sections {
		if err := WriteJSONAtomic(filepath.Join(w.dir, name), v); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	log.Info().Str("path", path).Str("run_id", result.RunID).Msg("Run report written")
	return path, nil
}

// driftReport is the persisted outcome of a fingerprint comparison.
type driftReport struct {
	DriftDetected bool      `json:"drift_detected"`
	Changes       []string  `json:"changes,omitempty"`
	PreviousHash  string    `json:"previous_hash,omitempty"`
	CurrentHash   string    `json:"current_hash"`
	CheckedAt     time.Time `json:"checked_at"`
}

// RecordFingerprint compares the dataset fingerprint against the previous
// run's, persists the new fingerprint and writes drift.json. Returns the
// detected changes; the first run of a dataset reports none.
func (w *ReportWriter) RecordFingerprint(fp csvsource.Fingerprint) ([]string, error) {
	fpPath := filepath.Join(w.dir, "fingerprint.json")

	var prev csvsource.Fingerprint
	if data, err := os.ReadFile(fpPath); err == nil {
		if err := json.Unmarshal(data, &prev); err != nil {
			log.Warn().Err(err).Str("path", fpPath).Msg("Ignoring unreadable fingerprint file")
			prev = csvsource.Fingerprint{}
		}
	}

	var changes []string
	if prev.Hash != "" {
		changes = fp.DriftFrom(prev)
	}
	if len(changes) > 0 {
		log.Warn().Strs("changes", changes).Msg("Dataset schema drift detected")
	}

	if err := WriteJSONAtomic(fpPath, fp); err != nil {
		return changes, fmt.Errorf("failed to persist fingerprint: %w", err)
	}
	report := driftReport{
		DriftDetected: len(changes) > 0,
		Changes:       changes,
		PreviousHash:  prev.Hash,
		CurrentHash:   fp.Hash,
		CheckedAt:     time.Now().UTC(),
	}
	if err := WriteJSONAtomic(filepath.Join(w.dir, "drift.json"), report); err != nil {
		return changes, fmt.Errorf("failed to write drift report: %w", err)
	}
	return changes, nil
}

// alertEntry joins an alert with the run that produced it.
type alertEntry struct {
	RunID string            `json:"run_id"`
	Alert application.Alert `json:"alert"`
}

// AppendAlert records a triggered alert in alerts.json. The file holds a
// JSON array; missing or corrupt files start a fresh list.
func (w *ReportWriter) AppendAlert(runID string, alert application.Alert) error {
	path := filepath.Join(w.dir, "alerts.json")

	var entries []alertEntry
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &entries); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Resetting unreadable alerts file")
			entries = nil
		}
	}

	entries = append(entries, alertEntry{RunID: runID, Alert: alert})
	if err := WriteJSONAtomic(path, entries); err != nil {
		return fmt.Errorf("failed to write alerts file: %w", err)
	}
	return nil
}
