// Package consistency validates that the published policy stance, risk
// posture and regime/signal relationship are mutually consistent before a
// decision snapshot is exposed. Violations never block publication; they
// force MIXED/degraded framing and lower the consistency score.
package consistency

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketpulse/internal/domain"
)

// Violation codes for structural checks.
const (
	CodeConflictRequiresMixed     = "conflict_state_requires_mixed_stance"
	CodeRiskOnDefensiveMixed      = "risk_on_regime_defensive_signal_requires_mixed"
	CodeRiskOffAggressiveMixed    = "risk_off_regime_aggressive_signal_requires_mixed"
	CodePostureStanceMismatch     = "posture_stance_mismatch"
	CodeStaleInputs               = "stale_inputs"
	CodeDegradedCalibration       = "degraded_calibration_quality"
	CodeThinScenarioSample        = "thin_scenario_sample"
	CodeUnresolvedConflict        = "unresolved_conflict_state"
	CodeAllocationTargetMismatch  = "allocation_target_mismatch"
)

// Inputs is the already-computed policy state under validation. The checker
// is a pure function over these fields.
type Inputs struct {
	Stance        domain.Stance
	ConflictState bool
	Regime        domain.Regime
	BaseSignal    domain.SignalType // signal type before regime penalties

	StaleCritical    int
	StaleNonCritical int

	CalibrationQuality domain.QualityBand
	ScenarioSampleSize int

	// Allocation targets from the two independently-computed sizing paths.
	PrimaryAllocation float64
	SizingAllocation  float64
}

// CheckerConfig holds penalty tuning. The staleness forgiveness constants
// mirror long-standing production tuning and are calibratable, not
// load-bearing correctness logic.
type CheckerConfig struct {
	StructuralPenalty      float64 `yaml:"structural_penalty"`       // Default: 12
	CriticalStalePenalty   float64 `yaml:"critical_stale_penalty"`   // Default: 2.0 per indicator
	NonCriticalStaleUnit   float64 `yaml:"noncritical_stale_unit"`   // Default: 0.35 per indicator beyond the first
	InsuffCalibPenalty     float64 `yaml:"insuff_calib_penalty"`     // Default: 5
	LimitedCalibPenalty    float64 `yaml:"limited_calib_penalty"`    // Default: 2
	ThinScenarioPenalty    float64 `yaml:"thin_scenario_penalty"`    // Default: 3
	ThinScenarioMin        int     `yaml:"thin_scenario_min"`        // Default: 20
	ConflictPenalty        float64 `yaml:"conflict_penalty"`         // Default: 4
	AllocMismatchPenalty   float64 `yaml:"alloc_mismatch_penalty"`   // Default: 5
	AllocMismatchTolerance float64 `yaml:"alloc_mismatch_tolerance"` // Default: 0.05
	PassThreshold          float64 `yaml:"pass_threshold"`           // Default: 90
	WarnThreshold          float64 `yaml:"warn_threshold"`           // Default: 80
}

// DefaultCheckerConfig returns the production consistency policy.
func DefaultCheckerConfig() *CheckerConfig {
	return &CheckerConfig{
		StructuralPenalty:      12,
		CriticalStalePenalty:   2.0,
		NonCriticalStaleUnit:   0.35,
		InsuffCalibPenalty:     5,
		LimitedCalibPenalty:    2,
		ThinScenarioPenalty:    3,
		ThinScenarioMin:        20,
		ConflictPenalty:        4,
		AllocMismatchPenalty:   5,
		AllocMismatchTolerance: 0.05,
		PassThreshold:          90,
		WarnThreshold:          80,
	}
}

// Checker evaluates cross-field consistency invariants.
type Checker struct {
	config *CheckerConfig
}

// NewChecker creates a consistency checker. A nil config selects defaults.
func NewChecker(config *CheckerConfig) *Checker {
	if config == nil {
		config = DefaultCheckerConfig()
	}
	return &Checker{config: config}
}

// DerivePosture maps a signal type onto the coarse risk posture expected to
// match the published stance.
func DerivePosture(signal domain.SignalType) domain.Stance {
	switch signal {
	case domain.SignalFullRisk:
		return domain.StanceRiskOn
	case domain.SignalReducedRisk:
		return domain.StanceMixed
	default:
		return domain.StanceRiskOff
	}
}

// Check runs every predicate and produces the scored snapshot:
// score = max(0, 100 - structural - reliability), with fixed cut points
// PASS >= 90, WARN >= 80, otherwise FAIL.
func (c *Checker) Check(in Inputs) *domain.ConsistencySnapshot {
	var violations []domain.Violation

	structural := c.structural(in, &violations)
	reliability := c.reliability(in, &violations)

	score := 100.0 - structural - reliability
	if score < 0 {
		score = 0
	}

	snapshot := &domain.ConsistencySnapshot{
		Score:      score,
		State:      c.state(score),
		Violations: violations,
		Components: map[string]float64{
			"structural":  structural,
			"reliability": reliability,
		},
	}

	log.Debug().
		Float64("score", score).
		Str("state", string(snapshot.State)).
		Int("violations", len(violations)).
		Msg("consistency checked")

	return snapshot
}

func (c *Checker) structural(in Inputs, violations *[]domain.Violation) float64 {
	total := 0.0
	add := func(code, detail string) {
		*violations = append(*violations, domain.Violation{Code: code, Penalty: c.config.StructuralPenalty, Detail: detail})
		total += c.config.StructuralPenalty
	}

	if in.ConflictState && in.Stance != domain.StanceMixed {
		add(CodeConflictRequiresMixed, fmt.Sprintf("conflict state with %s stance", in.Stance))
	}

	defensive := in.BaseSignal == domain.SignalDefensive || in.BaseSignal == domain.SignalRiskOff
	if in.Regime == domain.RegimeRiskOn && defensive && in.Stance != domain.StanceMixed {
		add(CodeRiskOnDefensiveMixed, fmt.Sprintf("RISK_ON regime with %s base signal", in.BaseSignal))
	}

	if in.Regime == domain.RegimeRiskOff && in.BaseSignal == domain.SignalFullRisk && in.Stance != domain.StanceMixed {
		add(CodeRiskOffAggressiveMixed, "RISK_OFF regime with FULL_RISK base signal")
	}

	if DerivePosture(in.BaseSignal) != in.Stance {
		add(CodePostureStanceMismatch, fmt.Sprintf("posture %s vs stance %s", DerivePosture(in.BaseSignal), in.Stance))
	}

	return total
}

func (c *Checker) reliability(in Inputs, violations *[]domain.Violation) float64 {
	total := 0.0
	add := func(code string, penalty float64, detail string) {
		*violations = append(*violations, domain.Violation{Code: code, Penalty: penalty, Detail: detail})
		total += penalty
	}

	if stale := c.stalePenalty(in); stale > 0 {
		add(CodeStaleInputs, stale, fmt.Sprintf("%d critical, %d non-critical stale indicators", in.StaleCritical, in.StaleNonCritical))
	}

	switch in.CalibrationQuality {
	case domain.QualityInsufficient:
		add(CodeDegradedCalibration, c.config.InsuffCalibPenalty, "calibration INSUFFICIENT")
	case domain.QualityLimited:
		add(CodeDegradedCalibration, c.config.LimitedCalibPenalty, "calibration LIMITED")
	}

	if in.ScenarioSampleSize < c.config.ThinScenarioMin {
		add(CodeThinScenarioSample, c.config.ThinScenarioPenalty, fmt.Sprintf("scenario sample %d below %d", in.ScenarioSampleSize, c.config.ThinScenarioMin))
	}

	if in.ConflictState {
		add(CodeUnresolvedConflict, c.config.ConflictPenalty, "conflict state present")
	}

	if math.Abs(in.PrimaryAllocation-in.SizingAllocation) > c.config.AllocMismatchTolerance {
		add(CodeAllocationTargetMismatch, c.config.AllocMismatchPenalty,
			fmt.Sprintf("allocation targets %.3f vs %.3f", in.PrimaryAllocation, in.SizingAllocation))
	}

	return total
}

// stalePenalty applies the forgiveness rule: one stale non-critical
// indicator is free, each additional one costs 0.35 units, and the
// non-critical total is rounded up. Critical staleness is never forgiven.
func (c *Checker) stalePenalty(in Inputs) float64 {
	penalty := float64(in.StaleCritical) * c.config.CriticalStalePenalty

	if in.StaleNonCritical > 1 {
		penalty += math.Ceil(float64(in.StaleNonCritical-1) * c.config.NonCriticalStaleUnit)
	}

	return penalty
}

func (c *Checker) state(score float64) domain.ConsistencyState {
	switch {
	case score >= c.config.PassThreshold:
		return domain.ConsistencyPass
	case score >= c.config.WarnThreshold:
		return domain.ConsistencyWarn
	default:
		return domain.ConsistencyFail
	}
}
