package application

import (
	"fmt"
	"time"

	"github.com/adpulse/adpulse/internal/domain"
)

// AlertDetail carries the numbers behind an alert decision.
type AlertDetail struct {
	ROASDrop       float64 `json:"roas_drop"`
	ValidationRate float64 `json:"validation_rate"`
	ThresholdUsed  float64 `json:"threshold_used"`
	NumCreatives   int     `json:"num_creatives"`
}

// Alert is the outcome of the ROAS-drop alert rule. Reasons carry
// machine-readable tokens so downstream automation can match on them.
type Alert struct {
	Alerted   bool        `json:"alerted"`
	Reason    string      `json:"reason"`
	Detail    AlertDetail `json:"detail"`
	AlertedAt time.Time   `json:"alerted_at"`
}

// EvaluateROASDropAlert fires when the observed ROAS drop exceeds the
// dynamic threshold and either the validation rate is poor or no creatives
// could be generated.
func EvaluateROASDropAlert(metrics domain.BatchMetrics, ev domain.Evidence, thresholds domain.ThresholdSet, numCreatives int, now time.Time) Alert {
	drop := 0.0
	if ev.ROASDeltaPct < 0 {
		drop = -ev.ROASDeltaPct
	}
	threshold := thresholds.ROASDropThreshold

	noCreatives := numCreatives == 0
	triggered := (drop > threshold && metrics.ValidationRate < 0.5) || (noCreatives && drop > threshold)

	var reason string
	switch {
	case triggered && noCreatives && drop > threshold:
		reason = fmt.Sprintf("no_creatives_and_roas_drop_exceeded: roas_drop=%.4f threshold=%.4f", drop, threshold)
	case triggered:
		reason = fmt.Sprintf("roas_drop_exceeded: roas_drop=%.4f exceeds threshold=%.4f with low validation_rate=%.2f",
			drop, threshold, metrics.ValidationRate)
	default:
		reason = fmt.Sprintf("no_alert: roas_drop=%.4f, threshold=%.4f, validation_rate=%.2f",
			drop, threshold, metrics.ValidationRate)
	}

	return Alert{
		Alerted: triggered,
		Reason:  reason,
		Detail: AlertDetail{
			ROASDrop:       drop,
			ValidationRate: metrics.ValidationRate,
			ThresholdUsed:  threshold,
			NumCreatives:   numCreatives,
		},
		AlertedAt: now.UTC(),
	}
}
