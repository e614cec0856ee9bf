package indexer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketpulse/internal/domain"
)

type fakeSource struct {
	values  map[string]float64
	history map[string][]float64
}

func (f *fakeSource) ValueOnOrBefore(_ context.Context, id string, asOf time.Time) (float64, time.Time, bool, error) {
	v, ok := f.values[id]
	return v, asOf, ok, nil
}

func (f *fakeSource) History(_ context.Context, id string, _, _ time.Time) ([]float64, error) {
	return f.history[id], nil
}

type fakeScoreHistory struct {
	scores map[int]float64 // offset days before asOf -> score
	asOf   time.Time
}

func (f *fakeScoreHistory) CompositeOnOrBefore(_ context.Context, date time.Time) (*domain.CompositeScore, error) {
	days := int(f.asOf.Sub(date).Hours() / 24)
	if s, ok := f.scores[days]; ok {
		return &domain.CompositeScore{Date: date, Score: s}, nil
	}
	return nil, nil
}

func rampHistory(n int) []float64 {
	h := make([]float64, n)
	for i := range h {
		h[i] = float64(i)
	}
	return h
}

func TestComputeComposite_WeightedRollup(t *testing.T) {
	source := &fakeSource{
		values: map[string]float64{
			"breadth": 90, // ranks at 90.5 against 0..99
			"credit":  10, // ranks at 10.5, inverted to 89.5
		},
		history: map[string][]float64{
			"breadth": rampHistory(100),
			"credit":  rampHistory(100),
		},
	}
	specs := []IndicatorSpec{
		{ID: "breadth", Category: "momentum", Weight: 2.0},
		{ID: "credit", Category: "credit", Weight: 1.0, Invert: true},
	}

	agg := NewAggregator(source, nil, specs, nil)
	composite, ranks, err := agg.ComputeComposite(context.Background(), time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, ranks, 2)

	assert.InDelta(t, 90.5, ranks[0].Percentile, 1e-9)
	assert.InDelta(t, 89.5, ranks[1].Percentile, 1e-9, "inverted indicator flips percentile")

	// Categories weight-normalized: (90.5*2 + 89.5*1) / 3
	assert.InDelta(t, (90.5*2+89.5)/3, composite.Score, 1e-9)
	assert.Equal(t, "very_strong", composite.Label)
	assert.Equal(t, 2, composite.Indicators)

	// As-of is truncated to UTC midnight
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), composite.Date)
}

func TestComputeComposite_ExcludesThinHistory(t *testing.T) {
	source := &fakeSource{
		values: map[string]float64{
			"vix":     50,
			"breadth": 50,
		},
		history: map[string][]float64{
			"vix":     rampHistory(5), // below MinHistoryPoints
			"breadth": rampHistory(40),
		},
	}
	specs := []IndicatorSpec{
		{ID: "vix", Category: "volatility", Weight: 1.0},
		{ID: "breadth", Category: "momentum", Weight: 1.0},
	}

	agg := NewAggregator(source, nil, specs, nil)
	composite, ranks, err := agg.ComputeComposite(context.Background(), time.Now())
	require.NoError(t, err, "thin history is exclusion, not failure")
	assert.Len(t, ranks, 1)
	assert.Equal(t, "breadth", ranks[0].Spec.ID)
	assert.Equal(t, 1, composite.Indicators)
}

func TestComputeComposite_NoUsableIndicatorsIsFatal(t *testing.T) {
	source := &fakeSource{
		values:  map[string]float64{},
		history: map[string][]float64{},
	}
	agg := NewAggregator(source, nil, []IndicatorSpec{{ID: "gone", Category: "x", Weight: 1}}, nil)

	_, _, err := agg.ComputeComposite(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrNoUsableIndicators)
}

func TestComputeComposite_Deltas(t *testing.T) {
	asOf := domain.Day(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	source := &fakeSource{
		values:  map[string]float64{"breadth": 50},
		history: map[string][]float64{"breadth": rampHistory(100)},
	}
	history := &fakeScoreHistory{
		asOf:   asOf,
		scores: map[int]float64{1: 48.0, 7: 60.0}, // no 30d prior
	}

	agg := NewAggregator(source, history, []IndicatorSpec{{ID: "breadth", Category: "momentum", Weight: 1}}, nil)
	composite, _, err := agg.ComputeComposite(context.Background(), asOf)
	require.NoError(t, err)

	require.NotNil(t, composite.Delta1d)
	assert.InDelta(t, composite.Score-48.0, *composite.Delta1d, 1e-9)
	require.NotNil(t, composite.Delta7d)
	assert.InDelta(t, composite.Score-60.0, *composite.Delta7d, 1e-9)
	assert.Nil(t, composite.Delta30d, "missing prior leaves delta unset")
}

func TestScoreBands(t *testing.T) {
	tests := []struct {
		score float64
		label string
	}{
		{85, "very_strong"},
		{80, "very_strong"},
		{70, "strong"},
		{50, "neutral"},
		{40, "weak"},
		{34.9, "very_weak"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.label, scoreLabel(tt.score), "score %.1f", tt.score)
	}
}
