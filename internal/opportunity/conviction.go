// Package opportunity generates directional candidate recommendations per
// theme, filters them through a quality and coherence gate, and records
// every accept/suppress decision to an append-only ledger.
package opportunity

import (
	"fmt"

	"github.com/sawpanic/marketpulse/internal/domain"
)

// ThemeInput is the raw evidence for one theme's candidate.
type ThemeInput struct {
	ThemeID   string
	Direction domain.Direction

	ModelForecast    *float64 // auxiliary model output, return units; nil when unavailable
	AnalogHitRate    *float64 // historical analog hit rate 0-1; nil when unavailable
	SignalAllocation float64  // current risk-allocation fraction 0-1
	ThemeStrength    float64  // theme strength percentile 0-100

	StalenessDays      int
	CalibrationQuality domain.QualityBand
}

// ConvictionConfig holds component weights and the shrinkage policy.
type ConvictionConfig struct {
	ModelWeight    float64 `yaml:"model_weight"`    // Default: 0.35
	AnalogWeight   float64 `yaml:"analog_weight"`   // Default: 0.25
	SignalWeight   float64 `yaml:"signal_weight"`   // Default: 0.20
	StrengthWeight float64 `yaml:"strength_weight"` // Default: 0.20

	ForecastScale float64 `yaml:"forecast_scale"` // Default: 0.10 (return that saturates the model component)

	MinFactor           float64 `yaml:"min_factor"`            // Default: 0.55 (floor of the shrinkage factor)
	StaleFreeDays       int     `yaml:"stale_free_days"`       // Default: 2
	StalePenaltyPerDay  float64 `yaml:"stale_penalty_per_day"` // Default: 0.05
	StalePenaltyCap     float64 `yaml:"stale_penalty_cap"`     // Default: 0.25
	LimitedCalibPenalty float64 `yaml:"limited_calib_penalty"` // Default: 0.10
	InsuffCalibPenalty  float64 `yaml:"insuff_calib_penalty"`  // Default: 0.20
}

// DefaultConvictionConfig returns the production conviction policy.
func DefaultConvictionConfig() *ConvictionConfig {
	return &ConvictionConfig{
		ModelWeight:         0.35,
		AnalogWeight:        0.25,
		SignalWeight:        0.20,
		StrengthWeight:      0.20,
		ForecastScale:       0.10,
		MinFactor:           0.55,
		StaleFreeDays:       2,
		StalePenaltyPerDay:  0.05,
		StalePenaltyCap:     0.25,
		LimitedCalibPenalty: 0.10,
		InsuffCalibPenalty:  0.20,
	}
}

// BlendConviction computes the 0-100 conviction score from the four weighted
// components, then shrinks it toward 50 by the quality factor so low-quality
// evidence cannot produce extreme recommendations:
//
//	conviction = 50 + (raw - 50) * factor, factor in [MinFactor, 1]
//
// Missing components drop out and the remaining weights renormalize.
func BlendConviction(cfg *ConvictionConfig, in ThemeInput) (conviction, raw, factor float64, components map[string]float64) {
	if cfg == nil {
		cfg = DefaultConvictionConfig()
	}

	components = make(map[string]float64, 4)
	var weighted, totalWeight float64

	add := func(name string, value, weight float64) {
		components[name] = value
		weighted += value * weight
		totalWeight += weight
	}

	if in.ModelForecast != nil {
		add("model_forecast", 50.0+50.0*clampUnit(*in.ModelForecast/cfg.ForecastScale), cfg.ModelWeight)
	}
	if in.AnalogHitRate != nil {
		add("analog_hit_rate", clamp01(*in.AnalogHitRate)*100.0, cfg.AnalogWeight)
	}
	add("signal_allocation", clamp01(in.SignalAllocation)*100.0, cfg.SignalWeight)
	add("theme_strength", clamp(in.ThemeStrength, 0, 100), cfg.StrengthWeight)

	raw = weighted / totalWeight
	factor = qualityFactor(cfg, in)
	conviction = 50.0 + (raw-50.0)*factor

	return conviction, raw, factor, components
}

// qualityFactor derives the shrinkage factor from staleness and calibration
// penalties, floored at MinFactor.
func qualityFactor(cfg *ConvictionConfig, in ThemeInput) float64 {
	penalty := 0.0

	if in.StalenessDays > cfg.StaleFreeDays {
		stale := float64(in.StalenessDays-cfg.StaleFreeDays) * cfg.StalePenaltyPerDay
		if stale > cfg.StalePenaltyCap {
			stale = cfg.StalePenaltyCap
		}
		penalty += stale
	}

	switch in.CalibrationQuality {
	case domain.QualityLimited:
		penalty += cfg.LimitedCalibPenalty
	case domain.QualityInsufficient:
		penalty += cfg.InsuffCalibPenalty
	}

	return clamp(1.0-penalty, cfg.MinFactor, 1.0)
}

// CandidateID derives the stable candidate identity for ledger keys.
func CandidateID(themeID string, direction domain.Direction) string {
	return fmt.Sprintf("%s:%s", themeID, direction)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }

func clampUnit(v float64) float64 { return clamp(v, -1, 1) }
