// Package metrics exposes Prometheus instruments for the annotation engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prompt outcomes.
const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
	OutcomeDiscarded = "discarded"
)

// Segmentation results.
const (
	ResultOK    = "ok"
	ResultError = "error"
	ResultStale = "stale"
)

// Metrics groups the engine's instruments.
type Metrics struct {
	Prompts         *prometheus.CounterVec
	Segmentations   *prometheus.CounterVec
	SegmentDuration prometheus.Histogram
	FocusEntered    prometheus.Counter
	Objects         prometheus.Gauge
}

// New creates the instruments and registers them with reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Prompts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "annotator_prompts_total",
				Help: "Prompt gestures by prompt kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		Segmentations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "annotator_segmentations_total",
				Help: "Segmentation calls by result",
			},
			[]string{"result"},
		),
		SegmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "annotator_segmentation_duration_seconds",
			Help:    "Round trip time of segmentation calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		FocusEntered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "annotator_focus_entered_total",
			Help: "Times focus mode was entered",
		}),
		Objects: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "annotator_hierarchy_objects",
			Help: "Objects in the active hierarchy",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Prompts, m.Segmentations, m.SegmentDuration, m.FocusEntered, m.Objects)
	}
	return m
}

// Prompt records one prompt gesture outcome.
func (m *Metrics) Prompt(kind, outcome string) {
	if m == nil {
		return
	}
	m.Prompts.WithLabelValues(kind, outcome).Inc()
}

// Segmentation records one finished segmentation call.
func (m *Metrics) Segmentation(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.Segmentations.WithLabelValues(result).Inc()
	if took > 0 {
		m.SegmentDuration.Observe(took.Seconds())
	}
}

// Focus records entering focus mode.
func (m *Metrics) Focus() {
	if m == nil {
		return
	}
	m.FocusEntered.Inc()
}

// SetObjects records the hierarchy size.
func (m *Metrics) SetObjects(n int) {
	if m == nil {
		return
	}
	m.Objects.Set(float64(n))
}
