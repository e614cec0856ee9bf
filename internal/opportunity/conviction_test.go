package opportunity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/marketpulse/internal/domain"
)

func f64(v float64) *float64 { return &v }

func TestBlendConviction_AllComponents(t *testing.T) {
	in := ThemeInput{
		ThemeID:            "tech_momentum",
		Direction:          domain.DirectionBullish,
		ModelForecast:      f64(0.05), // half of ForecastScale -> component 75
		AnalogHitRate:      f64(0.7),  // component 70
		SignalAllocation:   0.8,       // component 80
		ThemeStrength:      60,        // component 60
		CalibrationQuality: domain.QualityRobust,
	}

	conviction, raw, factor, components := BlendConviction(nil, in)

	assert.InDelta(t, 75.0, components["model_forecast"], 1e-9)
	assert.InDelta(t, 70.0, components["analog_hit_rate"], 1e-9)
	assert.InDelta(t, 80.0, components["signal_allocation"], 1e-9)
	assert.InDelta(t, 60.0, components["theme_strength"], 1e-9)

	want := 75.0*0.35 + 70.0*0.25 + 80.0*0.20 + 60.0*0.20
	assert.InDelta(t, want, raw, 1e-9)
	assert.InDelta(t, 1.0, factor, 1e-9, "fresh, robust evidence takes no shrinkage")
	assert.InDelta(t, want, conviction, 1e-9)
}

func TestBlendConviction_MissingComponentsRenormalize(t *testing.T) {
	in := ThemeInput{
		SignalAllocation:   0.6,
		ThemeStrength:      40,
		CalibrationQuality: domain.QualityRobust,
	}

	_, raw, _, components := BlendConviction(nil, in)

	assert.NotContains(t, components, "model_forecast")
	assert.NotContains(t, components, "analog_hit_rate")
	// (60*0.2 + 40*0.2) / 0.4
	assert.InDelta(t, 50.0, raw, 1e-9)
}

func TestBlendConviction_ShrinksTowardFifty(t *testing.T) {
	in := ThemeInput{
		ModelForecast:      f64(0.2), // saturates at component 100
		AnalogHitRate:      f64(1.0),
		SignalAllocation:   1.0,
		ThemeStrength:      100,
		StalenessDays:      30, // deep staleness
		CalibrationQuality: domain.QualityInsufficient,
	}

	conviction, raw, factor, _ := BlendConviction(nil, in)

	assert.InDelta(t, 100.0, raw, 1e-9)
	assert.InDelta(t, 0.55, factor, 1e-9, "penalties bottom out at the factor floor")
	assert.InDelta(t, 50.0+50.0*0.55, conviction, 1e-9)
}

func TestBlendConviction_FactorBounds(t *testing.T) {
	base := ThemeInput{SignalAllocation: 0.5, ThemeStrength: 50}

	for stale := 0; stale <= 40; stale += 5 {
		for _, q := range []domain.QualityBand{domain.QualityRobust, domain.QualityLimited, domain.QualityInsufficient} {
			in := base
			in.StalenessDays = stale
			in.CalibrationQuality = q
			_, _, factor, _ := BlendConviction(nil, in)
			assert.GreaterOrEqual(t, factor, 0.55)
			assert.LessOrEqual(t, factor, 1.0)
		}
	}
}

func TestBlendConviction_StalenessGrace(t *testing.T) {
	in := ThemeInput{SignalAllocation: 0.5, ThemeStrength: 50, CalibrationQuality: domain.QualityRobust}

	in.StalenessDays = 2
	_, _, fresh, _ := BlendConviction(nil, in)
	assert.InDelta(t, 1.0, fresh, 1e-9, "two days of staleness are free")

	in.StalenessDays = 4
	_, _, stale, _ := BlendConviction(nil, in)
	assert.InDelta(t, 0.9, stale, 1e-9, "0.05 per day beyond the grace window")
}

func TestResolveExpectancy_BasisLadder(t *testing.T) {
	prior := ReturnStats{Mean: 0.02, Worst: -0.10, N: 40}

	// Theme sample large enough to stand alone.
	ref := ResolveExpectancy(ReturnStats{Mean: 0.05, Worst: -0.04, N: 25}, prior)
	assert.Equal(t, BasisTheme, ref.Basis)
	assert.InDelta(t, 0.05, ref.Mean, 1e-9)
	assert.Equal(t, 25, ref.SampleSize)

	// Mid-size theme sample blends with the prior: w = 10/(10+20).
	ref = ResolveExpectancy(ReturnStats{Mean: 0.05, Worst: -0.04, N: 10}, prior)
	assert.Equal(t, BasisThemeBlended, ref.Basis)
	w := 10.0 / 30.0
	assert.InDelta(t, w*0.05+(1-w)*0.02, ref.Mean, 1e-9)
	assert.InDelta(t, w*-0.04+(1-w)*-0.10, ref.WorstCase, 1e-9)

	// Tiny theme sample falls back to the direction prior alone.
	ref = ResolveExpectancy(ReturnStats{Mean: 0.50, Worst: -0.50, N: 3}, prior)
	assert.Equal(t, BasisDirectionPrior, ref.Basis)
	assert.InDelta(t, 0.02, ref.Mean, 1e-9)

	// Nothing usable anywhere.
	assert.Nil(t, ResolveExpectancy(ReturnStats{N: 3}, ReturnStats{N: 10}))
}

func TestResolveExpectancy_QualityBands(t *testing.T) {
	prior := ReturnStats{Mean: 0.01, Worst: -0.05, N: 60}

	ref := ResolveExpectancy(ReturnStats{N: 0}, prior)
	assert.Equal(t, domain.QualityRobust, ref.Quality)

	ref = ResolveExpectancy(ReturnStats{Mean: 0.03, Worst: -0.02, N: 20}, prior)
	assert.Equal(t, domain.QualityLimited, ref.Quality)
}
