package opportunity

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketpulse/internal/domain"
)

// Suppression reasons recorded on ledger rows. When several apply, the
// effective reason is the highest in this fixed priority order:
// quality filter > coherence > data quality.
const (
	ReasonQualityFiltered = "suppressed_quality_filter"
	ReasonCoherenceFailed = "suppressed_coherence"
	ReasonDataQuality     = "suppressed_data_quality"
)

// GateConfig holds the gate thresholds.
type GateConfig struct {
	MinCalibrationProb float64 `yaml:"min_calibration_prob"` // Default: 0.5
	EmptyFeedKeep      int     `yaml:"empty_feed_keep"`      // Default: 3 (kept when filtering would empty the feed)
}

// DefaultGateConfig returns the production gate configuration.
func DefaultGateConfig() *GateConfig {
	return &GateConfig{
		MinCalibrationProb: 0.5,
		EmptyFeedKeep:      3,
	}
}

// GateEvaluator applies the quality filter and coherence gate and writes the
// per-candidate decision trail.
type GateEvaluator struct {
	config *GateConfig
}

// NewGateEvaluator creates a gate evaluator. A nil config selects defaults.
func NewGateEvaluator(config *GateConfig) *GateEvaluator {
	if config == nil {
		config = DefaultGateConfig()
	}
	return &GateEvaluator{config: config}
}

// RunContext identifies one gate run for ledger keying.
type RunContext struct {
	RunID   string
	AsOf    time.Time
	Horizon string
	// DataQualitySuppressed is the global override: critical staleness or a
	// FAIL consistency state suppresses every candidate in the run.
	DataQualitySuppressed bool
}

// Evaluate gates candidates and produces exactly one ledger row per
// candidate. The returned slice holds the published candidates in input
// order; rows cover all candidates, published or not.
func (g *GateEvaluator) Evaluate(run RunContext, candidates []domain.OpportunityCandidate) ([]domain.OpportunityCandidate, []domain.LedgerRow) {
	filtered := g.qualityFilter(candidates)

	published := make([]domain.OpportunityCandidate, 0, len(candidates))
	rows := make([]domain.LedgerRow, 0, len(candidates))

	for i := range candidates {
		c := &candidates[i]
		c.Eligibility = g.coherence(c)

		reason := effectiveReason(filtered[c.ID], c.Eligibility.Passed, run.DataQualitySuppressed)

		row := domain.LedgerRow{
			RunID:       run.RunID,
			AsOf:        domain.Day(run.AsOf),
			Horizon:     run.Horizon,
			CandidateID: c.ID,
			ThemeID:     c.ThemeID,
			Direction:   c.Direction,
			Conviction:  c.Conviction,
			Published:   reason == "",
		}
		if reason != "" {
			r := reason
			row.SuppressionReason = &r
		} else {
			published = append(published, *c)
		}
		rows = append(rows, row)
	}

	log.Info().
		Str("run_id", run.RunID).
		Time("as_of", domain.Day(run.AsOf)).
		Str("horizon", run.Horizon).
		Int("candidates", len(candidates)).
		Int("published", len(published)).
		Bool("data_quality_suppressed", run.DataQualitySuppressed).
		Msg("opportunity gate evaluated")

	return published, rows
}

// effectiveReason picks the suppression reason by fixed priority. Empty
// string means published.
func effectiveReason(qualityFiltered, coherencePassed, dataQualitySuppressed bool) string {
	switch {
	case qualityFiltered:
		return ReasonQualityFiltered
	case !coherencePassed:
		return ReasonCoherenceFailed
	case dataQualitySuppressed:
		return ReasonDataQuality
	default:
		return ""
	}
}

// qualityFilter flags candidates whose direction is neutral and whose
// calibration and expectancy are both insufficient. If that would flag every
// candidate, the top EmptyFeedKeep by conviction survive so the feed is
// never fully empty.
func (g *GateEvaluator) qualityFilter(candidates []domain.OpportunityCandidate) map[string]bool {
	flagged := make(map[string]bool, len(candidates))
	flaggedCount := 0
	for _, c := range candidates {
		if c.Direction == domain.DirectionNeutral &&
			calQuality(&c) == domain.QualityInsufficient &&
			expQuality(&c) == domain.QualityInsufficient {
			flagged[c.ID] = true
			flaggedCount++
		}
	}

	if len(candidates) == 0 || flaggedCount < len(candidates) {
		return flagged
	}

	// Full wipe: spare the strongest few.
	keep := make([]domain.OpportunityCandidate, len(candidates))
	copy(keep, candidates)
	sort.SliceStable(keep, func(i, j int) bool { return keep[i].Conviction > keep[j].Conviction })

	n := g.config.EmptyFeedKeep
	if n > len(keep) {
		n = len(keep)
	}
	for _, c := range keep[:n] {
		delete(flagged, c.ID)
	}
	return flagged
}

// coherence runs the per-candidate gate checks. A candidate passes only when
// every check passes; failed checks are recorded by name.
func (g *GateEvaluator) coherence(c *domain.OpportunityCandidate) domain.EligibilityResult {
	checks := []domain.EligibilityCheck{
		g.checkDirection(c),
		g.checkCalibration(c),
		g.checkExpectancy(c),
	}

	passed := true
	for _, check := range checks {
		if !check.Passed {
			passed = false
		}
	}
	return domain.EligibilityResult{Passed: passed, Checks: checks}
}

func (g *GateEvaluator) checkDirection(c *domain.OpportunityCandidate) domain.EligibilityCheck {
	check := domain.EligibilityCheck{Name: "directional", Passed: c.Direction != domain.DirectionNeutral}
	if !check.Passed {
		check.Detail = "neutral direction is never eligible"
	}
	return check
}

// checkCalibration requires the pooled calibration probability to reach the
// floor when it is known. An unknown probability with non-insufficient
// quality is an incomplete contract; with insufficient quality it is
// tolerated as honest absence of evidence.
func (g *GateEvaluator) checkCalibration(c *domain.OpportunityCandidate) domain.EligibilityCheck {
	check := domain.EligibilityCheck{Name: "calibration_probability"}

	if c.Calibration != nil && c.Calibration.ProbCorrect != nil {
		check.Passed = *c.Calibration.ProbCorrect >= g.config.MinCalibrationProb
		if !check.Passed {
			check.Detail = "pooled hit probability below floor"
		}
		return check
	}

	if calQuality(c) != domain.QualityInsufficient {
		check.Detail = "incomplete_contract: calibration missing despite usable quality"
		return check
	}

	check.Passed = true
	check.Detail = "no calibration evidence, tolerated"
	return check
}

// checkExpectancy requires the expectancy sign to agree with the direction.
func (g *GateEvaluator) checkExpectancy(c *domain.OpportunityCandidate) domain.EligibilityCheck {
	check := domain.EligibilityCheck{Name: "expectancy_agreement"}

	if c.Expectancy == nil {
		if expQuality(c) != domain.QualityInsufficient {
			check.Detail = "incomplete_contract: expectancy missing despite usable quality"
			return check
		}
		check.Passed = true
		check.Detail = "no expectancy evidence, tolerated"
		return check
	}

	switch c.Direction {
	case domain.DirectionBullish:
		check.Passed = c.Expectancy.Mean > 0
	case domain.DirectionBearish:
		check.Passed = c.Expectancy.Mean < 0
	default:
		check.Passed = false
	}
	if !check.Passed {
		check.Detail = "expectancy sign contradicts direction"
	}
	return check
}

func calQuality(c *domain.OpportunityCandidate) domain.QualityBand {
	if c.Calibration == nil {
		return domain.QualityInsufficient
	}
	return c.Calibration.Quality
}

func expQuality(c *domain.OpportunityCandidate) domain.QualityBand {
	if c.Expectancy == nil {
		return domain.QualityInsufficient
	}
	return c.Expectancy.Quality
}
