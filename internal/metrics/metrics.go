// Package metrics exposes Prometheus instrumentation for the decision
// pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketpulse/internal/domain"
)

// Registry holds all Prometheus metrics for MarketPulse. Each instance owns
// its own Prometheus registry so tests can construct registries freely.
type Registry struct {
	registry *prometheus.Registry

	StepDuration *prometheus.HistogramVec

	IndicatorsExcluded *prometheus.CounterVec
	CompositeScore     prometheus.Gauge
	ActiveRegime       prometheus.Gauge
	RegimeConfidence   prometheus.Gauge
	SignalAllocation   prometheus.Gauge

	CandidatesPublished  prometheus.Counter
	CandidatesSuppressed *prometheus.CounterVec

	ConsistencyScore prometheus.Gauge
	DegradedRuns     *prometheus.CounterVec
	RunsTotal        *prometheus.CounterVec
}

// NewRegistry creates a metrics registry with all MarketPulse metrics.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketpulse_step_duration_seconds",
				Help:    "Duration of each pipeline step in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"step", "result"},
		),

		IndicatorsExcluded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_indicators_excluded_total",
				Help: "Indicators excluded from the composite by reason",
			},
			[]string{"reason"},
		),

		CompositeScore: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "marketpulse_composite_score",
				Help: "Latest composite market-strength score (0-100)",
			},
		),

		ActiveRegime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "marketpulse_active_regime",
				Help: "Current regime (1=risk_on, 0=transition, -1=risk_off)",
			},
		),

		RegimeConfidence: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "marketpulse_regime_confidence",
				Help: "Confidence of the current regime classification (0-1)",
			},
		),

		SignalAllocation: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "marketpulse_signal_allocation",
				Help: "Latest recommended allocation fraction (0-1)",
			},
		),

		CandidatesPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "marketpulse_candidates_published_total",
				Help: "Opportunity candidates published to the feed",
			},
		),

		CandidatesSuppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_candidates_suppressed_total",
				Help: "Opportunity candidates suppressed by reason",
			},
			[]string{"reason"},
		),

		ConsistencyScore: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "marketpulse_consistency_score",
				Help: "Latest consistency validation score (0-100)",
			},
		),

		DegradedRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_degraded_runs_total",
				Help: "Refresh runs that produced a degraded snapshot, by reason",
			},
			[]string{"reason"},
		),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_runs_total",
				Help: "Refresh runs by final status",
			},
			[]string{"status"},
		),
	}

	r.registry.MustRegister(
		r.StepDuration,
		r.IndicatorsExcluded,
		r.CompositeScore,
		r.ActiveRegime,
		r.RegimeConfidence,
		r.SignalAllocation,
		r.CandidatesPublished,
		r.CandidatesSuppressed,
		r.ConsistencyScore,
		r.DegradedRuns,
		r.RunsTotal,
	)

	return r
}

// StepTimer tracks execution time for one pipeline step.
type StepTimer struct {
	registry *Registry
	step     string
	start    time.Time
}

// StartStep begins timing a pipeline step.
func (r *Registry) StartStep(step string) *StepTimer {
	return &StepTimer{registry: r, step: step, start: time.Now()}
}

// Stop completes the timing and records the observation.
func (t *StepTimer) Stop(result string) {
	duration := time.Since(t.start)
	t.registry.StepDuration.WithLabelValues(t.step, result).Observe(duration.Seconds())

	log.Debug().
		Str("step", t.step).
		Str("result", result).
		Dur("duration", duration).
		Msg("pipeline step completed")
}

// ObserveSnapshot updates the point-in-time gauges from a published decision.
func (r *Registry) ObserveSnapshot(snapshot *domain.DecisionSnapshot) {
	if snapshot.Composite != nil {
		r.CompositeScore.Set(snapshot.Composite.Score)
	}
	if snapshot.Regime != nil {
		r.ActiveRegime.Set(regimeGaugeValue(snapshot.Regime.Regime))
		r.RegimeConfidence.Set(snapshot.Regime.Confidence)
	}
	if snapshot.Signal != nil {
		r.SignalAllocation.Set(snapshot.Signal.Allocation)
	}
	if snapshot.Consistency != nil {
		r.ConsistencyScore.Set(snapshot.Consistency.Score)
	}
}

// ObserveLedger counts publish and suppression outcomes.
func (r *Registry) ObserveLedger(rows []domain.LedgerRow) {
	for _, row := range rows {
		if row.Published {
			r.CandidatesPublished.Inc()
			continue
		}
		reason := "unknown"
		if row.SuppressionReason != nil {
			reason = *row.SuppressionReason
		}
		r.CandidatesSuppressed.WithLabelValues(reason).Inc()
	}
}

// Handler returns the HTTP handler serving this registry's metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func regimeGaugeValue(regime domain.Regime) float64 {
	switch regime {
	case domain.RegimeRiskOn:
		return 1
	case domain.RegimeRiskOff:
		return -1
	default:
		return 0
	}
}
