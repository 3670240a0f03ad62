package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the triage pipeline.
type Metrics struct {
	AnalysesTotal   *prometheus.CounterVec
	AnalysisSeconds *prometheus.HistogramVec
	ThreatScore     prometheus.Histogram

	RedactionsTotal *prometheus.CounterVec
	IndicatorsTotal *prometheus.CounterVec
}

// DefaultMetrics creates metrics registered with the default registerer.
func DefaultMetrics() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}

// NewMetrics creates a new set of pipeline metrics registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AnalysesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailtriage_analyses_total",
				Help: "Total messages analyzed by threat level and outcome",
			},
			[]string{"level", "status"},
		),
		AnalysisSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailtriage_analysis_seconds",
				Help:    "Time spent per pipeline stage",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
			},
			[]string{"stage"},
		),
		ThreatScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mailtriage_threat_score",
				Help:    "Distribution of threat scores",
				Buckets: []float64{0, 10, 25, 50, 75, 100, 150, 200},
			},
		),
		RedactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailtriage_redactions_total",
				Help: "Total redactions applied by category",
			},
			[]string{"type"},
		),
		IndicatorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailtriage_indicators_total",
				Help: "Total threat indicators raised by category",
			},
			[]string{"category"},
		),
	}
}

// RecordAnalysis records one finished analysis.
func (m *Metrics) RecordAnalysis(level, status string) {
	m.AnalysesTotal.WithLabelValues(level, status).Inc()
}

// RecordStageLatency records how long a stage took.
func (m *Metrics) RecordStageLatency(stage string, seconds float64) {
	m.AnalysisSeconds.WithLabelValues(stage).Observe(seconds)
}

// RecordResult records score, redaction and indicator metrics for a result.
func (m *Metrics) RecordResult(r *Result) {
	m.ThreatScore.Observe(float64(r.Threat.Score))
	for kind, n := range r.Redaction.CountByType() {
		m.RedactionsTotal.WithLabelValues(kind).Add(float64(n))
	}
	for _, ind := range r.Threat.Indicators {
		m.IndicatorsTotal.WithLabelValues(ind.Category).Inc()
	}
}
