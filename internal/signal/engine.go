// Package signal derives the bounded risk-allocation fraction and discrete
// signal type from composite score, regime and volatility context.
//
// Penalties are an explicit ordered rule list applied by sequential
// multiplication. The order is part of the contract: the cascade must be
// reproducible bit-for-bit for audit.
package signal

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketpulse/internal/domain"
)

// Inputs is the signal derivation context for one as-of date.
type Inputs struct {
	Date                 time.Time
	Score                float64
	Regime               domain.Regime
	Delta7d              *float64
	VolatilityPercentile *float64
}

// EngineConfig holds cascade thresholds. Multipliers and their order live in
// the rule table, not here; these are the predicate cut points.
type EngineConfig struct {
	BaseFloor          float64 `yaml:"base_floor"`           // Default: 0.3
	BaseSlope          float64 `yaml:"base_slope"`           // Default: 0.7
	DeltaDropThreshold float64 `yaml:"delta_drop_threshold"` // Default: -10 (7d score delta)
	VolPctThreshold    float64 `yaml:"vol_pct_threshold"`    // Default: 80
}

// DefaultEngineConfig returns the production signal configuration.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		BaseFloor:          0.3,
		BaseSlope:          0.7,
		DeltaDropThreshold: -10.0,
		VolPctThreshold:    80.0,
	}
}

// Engine turns inputs into a Signal through the fixed rule cascade.
type Engine struct {
	config *EngineConfig
	rules  []penaltyRule
}

type penaltyRule struct {
	name       string
	multiplier float64
	applies    func(cfg *EngineConfig, in Inputs) bool
	detail     func(cfg *EngineConfig, in Inputs) string
}

// cascade is the fixed penalty order. Do not reorder: penalties compound
// multiplicatively and downstream audit trails replay them in sequence.
func cascade() []penaltyRule {
	return []penaltyRule{
		{
			name:       "regime_risk_off",
			multiplier: 0.5,
			applies:    func(_ *EngineConfig, in Inputs) bool { return in.Regime == domain.RegimeRiskOff },
			detail:     func(_ *EngineConfig, _ Inputs) string { return "regime RISK_OFF halves allocation" },
		},
		{
			name:       "regime_transition",
			multiplier: 0.75,
			applies:    func(_ *EngineConfig, in Inputs) bool { return in.Regime == domain.RegimeTransition },
			detail:     func(_ *EngineConfig, _ Inputs) string { return "regime TRANSITION reduces allocation by 25%" },
		},
		{
			name:       "momentum_drop_7d",
			multiplier: 0.8,
			applies: func(cfg *EngineConfig, in Inputs) bool {
				return in.Delta7d != nil && *in.Delta7d < cfg.DeltaDropThreshold
			},
			detail: func(cfg *EngineConfig, in Inputs) string {
				return fmt.Sprintf("7d score delta %.1f < %.1f", *in.Delta7d, cfg.DeltaDropThreshold)
			},
		},
		{
			name:       "elevated_volatility",
			multiplier: 0.7,
			applies: func(cfg *EngineConfig, in Inputs) bool {
				return in.VolatilityPercentile != nil && *in.VolatilityPercentile > cfg.VolPctThreshold
			},
			detail: func(cfg *EngineConfig, in Inputs) string {
				return fmt.Sprintf("volatility percentile %.1f > %.1f", *in.VolatilityPercentile, cfg.VolPctThreshold)
			},
		},
	}
}

// NewEngine creates a signal engine. A nil config selects defaults.
func NewEngine(config *EngineConfig) *Engine {
	if config == nil {
		config = DefaultEngineConfig()
	}
	return &Engine{config: config, rules: cascade()}
}

// Derive computes the signal for the given inputs. Every applied penalty is
// recorded as a human-readable adjustment in application order.
func (e *Engine) Derive(in Inputs) *domain.Signal {
	base := e.config.BaseFloor + e.config.BaseSlope*(in.Score/100.0)
	allocation := clamp01(base)

	adjustments := make([]domain.Adjustment, 0, len(e.rules))
	for _, rule := range e.rules {
		if !rule.applies(e.config, in) {
			continue
		}
		allocation *= rule.multiplier
		adjustments = append(adjustments, domain.Adjustment{
			Rule:       rule.name,
			Multiplier: rule.multiplier,
			Detail:     rule.detail(e.config, in),
		})
	}
	allocation = clamp01(allocation)

	sig := &domain.Signal{
		Date:        domain.Day(in.Date),
		Allocation:  allocation,
		Type:        Classify(allocation),
		BaseType:    Classify(clamp01(base)),
		Adjustments: adjustments,
	}

	log.Debug().
		Time("as_of", sig.Date).
		Float64("allocation", allocation).
		Str("type", string(sig.Type)).
		Int("penalties", len(adjustments)).
		Msg("signal derived")

	return sig
}

// Classify maps an allocation fraction onto the discrete signal type.
// The mapping is strictly monotonic in allocation.
func Classify(allocation float64) domain.SignalType {
	switch {
	case allocation < 0.3:
		return domain.SignalDefensive
	case allocation < 0.5:
		return domain.SignalRiskOff
	case allocation < 0.8:
		return domain.SignalReducedRisk
	default:
		return domain.SignalFullRisk
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
