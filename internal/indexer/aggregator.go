// Package indexer converts raw indicator observations into the daily 0-100
// composite market-strength score via historical percentile ranking and
// weighted category rollup.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketpulse/internal/domain"
)

// ErrNoUsableIndicators is the only fatal aggregation outcome: not a single
// configured indicator had enough history to contribute.
var ErrNoUsableIndicators = errors.New("no usable indicators for composite score")

// IndicatorSpec configures one input series.
type IndicatorSpec struct {
	ID             string  `yaml:"id"`
	Category       string  `yaml:"category"`
	Weight         float64 `yaml:"weight"`
	Invert         bool    `yaml:"invert"`
	Critical       bool    `yaml:"critical"`
	StaleAfterDays int     `yaml:"stale_after_days"`
}

// SeriesSource provides indicator values and trailing history. Implementations
// must tolerate missing calendar days (weekends, holidays) by searching
// backward from the requested date.
type SeriesSource interface {
	// ValueOnOrBefore returns the latest observation at or before asOf.
	// ok=false means the series has no observation in the search window.
	ValueOnOrBefore(ctx context.Context, indicatorID string, asOf time.Time) (value float64, observedOn time.Time, ok bool, err error)
	// History returns all observed values in [from, to) in date order.
	History(ctx context.Context, indicatorID string, from, to time.Time) ([]float64, error)
}

// ScoreHistory looks up previously computed composite scores for delta math.
type ScoreHistory interface {
	CompositeOnOrBefore(ctx context.Context, asOf time.Time) (*domain.CompositeScore, error)
}

// AggregatorConfig tunes history depth and score bands.
type AggregatorConfig struct {
	HistoryYears int `yaml:"history_years"` // Default: 4 (trailing window for percentile ranks)
}

// DefaultAggregatorConfig returns the production aggregation configuration.
func DefaultAggregatorConfig() *AggregatorConfig {
	return &AggregatorConfig{HistoryYears: 4}
}

// Aggregator computes composite and category scores for one as-of date.
type Aggregator struct {
	source     SeriesSource
	history    ScoreHistory
	indicators []IndicatorSpec
	config     *AggregatorConfig
}

// NewAggregator creates an index aggregator. A nil config selects defaults.
func NewAggregator(source SeriesSource, history ScoreHistory, indicators []IndicatorSpec, config *AggregatorConfig) *Aggregator {
	if config == nil {
		config = DefaultAggregatorConfig()
	}
	return &Aggregator{
		source:     source,
		history:    history,
		indicators: indicators,
		config:     config,
	}
}

// IndicatorRank is the percentile contribution of one indicator, retained for
// explainability and reused by the regime detector.
type IndicatorRank struct {
	Spec       IndicatorSpec
	Value      float64
	ObservedOn time.Time
	Percentile float64
}

// ComputeComposite produces the composite score for asOf. Indicators with
// fewer than MinHistoryPoints of trailing history are excluded, not errors;
// the computation fails only when nothing contributes.
func (a *Aggregator) ComputeComposite(ctx context.Context, asOf time.Time) (*domain.CompositeScore, []IndicatorRank, error) {
	asOf = domain.Day(asOf)

	ranks, err := a.RankIndicators(ctx, asOf, a.indicators)
	if err != nil {
		return nil, nil, err
	}
	if len(ranks) == 0 {
		return nil, nil, ErrNoUsableIndicators
	}

	categories := rollupCategories(asOf, ranks)

	// Weight-normalized average across categories.
	var weighted, totalWeight float64
	for _, cat := range categories {
		weighted += cat.Score * cat.Weight
		totalWeight += cat.Weight
	}
	score := weighted / totalWeight

	composite := &domain.CompositeScore{
		Date:       asOf,
		Score:      score,
		Label:      scoreLabel(score),
		Status:     scoreStatus(score),
		Categories: categories,
		Indicators: len(ranks),
	}

	a.attachDeltas(ctx, composite)

	log.Debug().
		Time("as_of", asOf).
		Float64("score", score).
		Int("indicators", len(ranks)).
		Int("categories", len(categories)).
		Msg("composite score computed")

	return composite, ranks, nil
}

// RankIndicators percentile-ranks each spec against its trailing history.
// Skipped indicators are logged and omitted from the result.
func (a *Aggregator) RankIndicators(ctx context.Context, asOf time.Time, specs []IndicatorSpec) ([]IndicatorRank, error) {
	histFrom := asOf.AddDate(-a.config.HistoryYears, 0, 0)

	ranks := make([]IndicatorRank, 0, len(specs))
	for _, spec := range specs {
		value, observedOn, ok, err := a.source.ValueOnOrBefore(ctx, spec.ID, asOf)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", spec.ID, err)
		}
		if !ok {
			log.Warn().Str("indicator", spec.ID).Time("as_of", asOf).Msg("no observation, excluding indicator")
			continue
		}

		history, err := a.source.History(ctx, spec.ID, histFrom, asOf)
		if err != nil {
			return nil, fmt.Errorf("history %s: %w", spec.ID, err)
		}
		if len(history) < MinHistoryPoints {
			log.Warn().Str("indicator", spec.ID).Int("points", len(history)).Msg("insufficient history, excluding indicator")
			continue
		}

		pct := PercentileRank(history, value)
		if spec.Invert {
			pct = 100.0 - pct
		}

		ranks = append(ranks, IndicatorRank{
			Spec:       spec,
			Value:      value,
			ObservedOn: observedOn,
			Percentile: pct,
		})
	}

	return ranks, nil
}

// rollupCategories weight-averages percentiles within each thematic bucket.
func rollupCategories(asOf time.Time, ranks []IndicatorRank) []domain.CategoryScore {
	type bucket struct {
		weighted float64
		weight   float64
	}
	buckets := make(map[string]*bucket)
	for _, r := range ranks {
		b, ok := buckets[r.Spec.Category]
		if !ok {
			b = &bucket{}
			buckets[r.Spec.Category] = b
		}
		b.weighted += r.Percentile * r.Spec.Weight
		b.weight += r.Spec.Weight
	}

	names := make([]string, 0, len(buckets))
	for name := range buckets {
		names = append(names, name)
	}
	sort.Strings(names)

	categories := make([]domain.CategoryScore, 0, len(buckets))
	for _, name := range names {
		b := buckets[name]
		categories = append(categories, domain.CategoryScore{
			Category: name,
			Date:     asOf,
			Score:    b.weighted / b.weight,
			Weight:   b.weight,
		})
	}
	return categories
}

// attachDeltas diffs against the nearest prior composite score at calendar
// offsets of 1, 7 and 30 days. Missing history leaves the delta nil.
func (a *Aggregator) attachDeltas(ctx context.Context, composite *domain.CompositeScore) {
	if a.history == nil {
		return
	}
	offsets := []struct {
		days int
		dst  **float64
	}{
		{1, &composite.Delta1d},
		{7, &composite.Delta7d},
		{30, &composite.Delta30d},
	}
	for _, off := range offsets {
		prior, err := a.history.CompositeOnOrBefore(ctx, composite.Date.AddDate(0, 0, -off.days))
		if err != nil {
			log.Warn().Err(err).Int("offset_days", off.days).Msg("delta lookup failed")
			continue
		}
		if prior == nil {
			continue
		}
		d := composite.Score - prior.Score
		*off.dst = &d
	}
}

func scoreLabel(score float64) string {
	switch {
	case score >= 80:
		return "very_strong"
	case score >= 65:
		return "strong"
	case score >= 50:
		return "neutral"
	case score >= 35:
		return "weak"
	default:
		return "very_weak"
	}
}

func scoreStatus(score float64) string {
	switch {
	case score >= 80:
		return "broad_strength"
	case score >= 65:
		return "constructive"
	case score >= 50:
		return "balanced"
	case score >= 35:
		return "caution"
	default:
		return "stress"
	}
}
