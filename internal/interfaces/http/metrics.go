package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"

	"github.com/adpulse/adpulse/internal/domain"
)

// MetricsRegistry holds the Prometheus metrics for the analyzer. It uses its
// own registry so multiple instances can coexist in tests.
type MetricsRegistry struct {
	registry *prometheus.Registry

	StageDuration *prometheus.HistogramVec
	RunsTotal     prometheus.Counter
	ActiveRuns    prometheus.Gauge

	HypothesesTotal *prometheus.CounterVec
	ValidationRate  prometheus.Gauge
	CTRBaseline     prometheus.Gauge
	ROASBaseline    prometheus.Gauge

	AlertsTotal prometheus.Counter
}

// NewMetricsRegistry creates and registers all analyzer metrics.
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry: prometheus.NewRegistry(),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adpulse_stage_duration_seconds",
				Help:    "Duration of each pipeline stage in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"stage"},
		),
		RunsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "adpulse_runs_total",
				Help: "Total number of analysis runs completed",
			},
		),
		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "adpulse_active_runs",
				Help: "Number of analysis runs currently executing",
			},
		),
		HypothesesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adpulse_hypotheses_total",
				Help: "Total hypotheses evaluated by outcome",
			},
			[]string{"outcome"},
		),
		ValidationRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "adpulse_validation_rate",
				Help: "Share of hypotheses that passed in the latest run",
			},
		),
		CTRBaseline: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "adpulse_ctr_baseline",
				Help: "CTR baseline of the latest run",
			},
		),
		ROASBaseline: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "adpulse_roas_baseline",
				Help: "ROAS baseline of the latest run",
			},
		),
		AlertsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "adpulse_alerts_total",
				Help: "Total number of ROAS drop alerts triggered",
			},
		),
	}

	m.registry.MustRegister(
		m.StageDuration,
		m.RunsTotal,
		m.ActiveRuns,
		m.HypothesesTotal,
		m.ValidationRate,
		m.CTRBaseline,
		m.ROASBaseline,
		m.AlertsTotal,
	)
	return m
}

// ObserveStage records a pipeline stage duration.
func (m *MetricsRegistry) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RunCompleted records the outcome of a finished run.
func (m *MetricsRegistry) RunCompleted(metrics domain.BatchMetrics) {
	m.RunsTotal.Inc()
	m.HypothesesTotal.WithLabelValues("passed").Add(float64(metrics.NumPassed))
	m.HypothesesTotal.WithLabelValues("failed").Add(float64(metrics.NumHypotheses - metrics.NumPassed))
	m.ValidationRate.Set(metrics.ValidationRate)
	m.CTRBaseline.Set(metrics.CTRBaseline)
	m.ROASBaseline.Set(metrics.ROASBaseline)
}

// RecordAlert counts a triggered alert.
func (m *MetricsRegistry) RecordAlert() {
	m.AlertsTotal.Inc()
}

// Handler exposes the registry in Prometheus text format.
func (m *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// metricSnapshot is one flattened metric sample.
type metricSnapshot struct {
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

// SnapshotHandler serves the gathered metric families as JSON for clients
// that do not speak the Prometheus exposition format.
func (m *MetricsRegistry) SnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		families, err := m.registry.Gather()
		if err != nil {
			log.Error().Err(err).Msg("Failed to gather metrics")
			http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
			return
		}

		var out []metricSnapshot
		for _, fam := range families {
			for _, metric := range fam.GetMetric() {
				out = append(out, metricSnapshot{
					Name:   fam.GetName(),
					Type:   fam.GetType().String(),
					Labels: labelMap(metric),
					Value:  sampleValue(fam.GetType(), metric),
				})
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"collected_at": time.Now().UTC(),
			"metrics":      out,
		})
	}
}

func labelMap(metric *dto.Metric) map[string]string {
	if len(metric.GetLabel()) == 0 {
		return nil
	}
	labels := make(map[string]string, len(metric.GetLabel()))
	for _, pair := range metric.GetLabel() {
		labels[pair.GetName()] = pair.GetValue()
	}
	return labels
}

func sampleValue(t dto.MetricType, metric *dto.Metric) float64 {
	switch t {
	case dto.MetricType_COUNTER:
		return metric.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return metric.GetGauge().GetValue()
	case dto.MetricType_HISTOGRAM:
		return float64(metric.GetHistogram().GetSampleCount())
	case dto.MetricType_SUMMARY:
		return float64(metric.GetSummary().GetSampleCount())
	default:
		return metric.GetUntyped().GetValue()
	}
}
