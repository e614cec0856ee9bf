package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketpulse/internal/domain"
)

func f64(v float64) *float64 { return &v }

func TestDerive_BaseAllocation(t *testing.T) {
	engine := NewEngine(nil)

	sig := engine.Derive(Inputs{Date: time.Now(), Score: 72, Regime: domain.RegimeRiskOn, Delta7d: f64(3)})

	// 0.3 + 0.7*0.72 = 0.804, no penalties in RISK_ON with benign deltas
	assert.InDelta(t, 0.804, sig.Allocation, 1e-9)
	assert.Equal(t, domain.SignalFullRisk, sig.Type)
	assert.Empty(t, sig.Adjustments, "RISK_ON triggers no penalty")
}

func TestDerive_RiskOffRegimeDemotesFullRisk(t *testing.T) {
	engine := NewEngine(nil)

	// Raw allocation >=0.8 before the regime penalty.
	sig := engine.Derive(Inputs{Date: time.Now(), Score: 90, Regime: domain.RegimeRiskOff})

	assert.Equal(t, domain.SignalFullRisk, sig.BaseType)
	assert.Less(t, sig.Allocation, 0.5, "x0.5 penalty forces below REDUCED_RISK floor")
	assert.Equal(t, domain.SignalRiskOff, sig.Type)
	require.Len(t, sig.Adjustments, 1)
	assert.Equal(t, "regime_risk_off", sig.Adjustments[0].Rule)
}

func TestDerive_FullCascadeOrderAndBounds(t *testing.T) {
	engine := NewEngine(nil)

	sig := engine.Derive(Inputs{
		Date:                 time.Now(),
		Score:                100,
		Regime:               domain.RegimeRiskOff,
		Delta7d:              f64(-15),
		VolatilityPercentile: f64(95),
	})

	// 1.0 * 0.5 * 0.8 * 0.7 = 0.28
	assert.InDelta(t, 0.28, sig.Allocation, 1e-9)
	assert.Equal(t, domain.SignalDefensive, sig.Type)

	require.Len(t, sig.Adjustments, 3)
	assert.Equal(t, "regime_risk_off", sig.Adjustments[0].Rule)
	assert.Equal(t, "momentum_drop_7d", sig.Adjustments[1].Rule)
	assert.Equal(t, "elevated_volatility", sig.Adjustments[2].Rule)
}

func TestDerive_TransitionRegime(t *testing.T) {
	engine := NewEngine(nil)

	sig := engine.Derive(Inputs{Date: time.Now(), Score: 50, Regime: domain.RegimeTransition})

	// (0.3 + 0.35) * 0.75 = 0.4875
	assert.InDelta(t, 0.4875, sig.Allocation, 1e-9)
	assert.Equal(t, domain.SignalRiskOff, sig.Type)
}

func TestDerive_AllocationAlwaysInUnitInterval(t *testing.T) {
	engine := NewEngine(nil)

	for score := 0.0; score <= 100.0; score += 5 {
		for _, regime := range []domain.Regime{domain.RegimeRiskOn, domain.RegimeRiskOff, domain.RegimeTransition} {
			sig := engine.Derive(Inputs{
				Date:                 time.Now(),
				Score:                score,
				Regime:               regime,
				Delta7d:              f64(-50),
				VolatilityPercentile: f64(100),
			})
			assert.GreaterOrEqual(t, sig.Allocation, 0.0)
			assert.LessOrEqual(t, sig.Allocation, 1.0)
		}
	}
}

func TestClassify_MonotonicThresholds(t *testing.T) {
	tests := []struct {
		allocation float64
		want       domain.SignalType
	}{
		{0.0, domain.SignalDefensive},
		{0.29, domain.SignalDefensive},
		{0.3, domain.SignalRiskOff},
		{0.49, domain.SignalRiskOff},
		{0.5, domain.SignalReducedRisk},
		{0.79, domain.SignalReducedRisk},
		{0.8, domain.SignalFullRisk},
		{1.0, domain.SignalFullRisk},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.allocation), "allocation %.2f", tt.allocation)
	}
}

func TestDerive_MissingContextSkipsPenalties(t *testing.T) {
	engine := NewEngine(nil)

	sig := engine.Derive(Inputs{Date: time.Now(), Score: 40, Regime: domain.RegimeRiskOn})
	assert.Empty(t, sig.Adjustments, "nil delta and volatility never trigger penalties")
}
