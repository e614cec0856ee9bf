// Package regime classifies the market regime for a date by majority voting
// across a fixed panel of percentile-ranked indicators.
package regime

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketpulse/internal/domain"
	"github.com/sawpanic/marketpulse/internal/indexer"
)

// BasisPercentile votes on the indicator's percentile rank against trailing
// history; BasisValue votes on the raw observed value (used where absolute
// levels carry meaning, e.g. yield-curve slope crossing zero).
const (
	BasisPercentile = "percentile"
	BasisValue      = "value"
)

// VoterSpec configures one voting indicator.
//
// Threshold orientation is inferred from the pair: when RiskOnAt < RiskOffAt
// the indicator is risk-on at low readings (volatility, credit spreads); when
// RiskOnAt > RiskOffAt it is risk-on at high readings (breadth, curve slope).
// Readings between the two thresholds vote neutral.
type VoterSpec struct {
	ID        string  `yaml:"id"`
	Basis     string  `yaml:"basis"`
	RiskOnAt  float64 `yaml:"risk_on_at"`
	RiskOffAt float64 `yaml:"risk_off_at"`
}

// DefaultVoters is the production five-indicator regime panel.
func DefaultVoters() []VoterSpec {
	return []VoterSpec{
		{ID: "volatility", Basis: BasisPercentile, RiskOnAt: 40, RiskOffAt: 75},
		{ID: "credit_spread", Basis: BasisPercentile, RiskOnAt: 40, RiskOffAt: 70},
		{ID: "breadth", Basis: BasisPercentile, RiskOnAt: 60, RiskOffAt: 30},
		{ID: "yield_curve", Basis: BasisValue, RiskOnAt: 0.25, RiskOffAt: -0.10},
		{ID: "dollar_strength", Basis: BasisPercentile, RiskOnAt: 45, RiskOffAt: 80},
	}
}

// DetectorConfig holds regime detection configuration.
type DetectorConfig struct {
	Voters       []VoterSpec `yaml:"voters"`
	HistoryYears int         `yaml:"history_years"` // Default: 4, same window as the index
}

// DefaultDetectorConfig returns the production regime configuration.
func DefaultDetectorConfig() *DetectorConfig {
	return &DetectorConfig{
		Voters:       DefaultVoters(),
		HistoryYears: 4,
	}
}

// Detector performs majority-vote regime classification.
type Detector struct {
	source indexer.SeriesSource
	config *DetectorConfig
}

// NewDetector creates a regime detector. A nil config selects defaults.
func NewDetector(source indexer.SeriesSource, config *DetectorConfig) *Detector {
	if config == nil {
		config = DefaultDetectorConfig()
	}
	return &Detector{source: source, config: config}
}

// Detect classifies the regime for asOf. Voters with no observation or
// insufficient history abstain; classification proceeds on the remainder.
func (d *Detector) Detect(ctx context.Context, asOf time.Time) (*domain.RegimeResult, error) {
	asOf = domain.Day(asOf)
	histFrom := asOf.AddDate(-d.config.HistoryYears, 0, 0)

	votes := make([]domain.RegimeVote, 0, len(d.config.Voters))
	for _, voter := range d.config.Voters {
		value, _, ok, err := d.source.ValueOnOrBefore(ctx, voter.ID, asOf)
		if err != nil {
			return nil, fmt.Errorf("regime voter %s: %w", voter.ID, err)
		}
		if !ok {
			log.Warn().Str("indicator", voter.ID).Msg("regime voter abstains: no observation")
			continue
		}

		measure := value
		pct := 0.0
		if voter.Basis == BasisPercentile {
			history, err := d.source.History(ctx, voter.ID, histFrom, asOf)
			if err != nil {
				return nil, fmt.Errorf("regime voter %s history: %w", voter.ID, err)
			}
			if len(history) < indexer.MinHistoryPoints {
				log.Warn().Str("indicator", voter.ID).Int("points", len(history)).Msg("regime voter abstains: thin history")
				continue
			}
			pct = indexer.PercentileRank(history, value)
			measure = pct
		}

		votes = append(votes, domain.RegimeVote{
			Indicator:  voter.ID,
			Vote:       castVote(voter, measure),
			Percentile: pct,
			Basis:      voter.Basis,
		})
	}

	regime, confidence := tally(votes)

	return &domain.RegimeResult{
		Date:       asOf,
		Regime:     regime,
		Confidence: confidence,
		Votes:      votes,
	}, nil
}

// castVote applies the voter's thresholds to the measured reading.
// Between-threshold readings vote TRANSITION (neutral).
func castVote(voter VoterSpec, measure float64) domain.Regime {
	if voter.RiskOnAt < voter.RiskOffAt {
		// Risk-on at low readings.
		switch {
		case measure <= voter.RiskOnAt:
			return domain.RegimeRiskOn
		case measure >= voter.RiskOffAt:
			return domain.RegimeRiskOff
		}
	} else {
		// Risk-on at high readings.
		switch {
		case measure >= voter.RiskOnAt:
			return domain.RegimeRiskOn
		case measure <= voter.RiskOffAt:
			return domain.RegimeRiskOff
		}
	}
	return domain.RegimeTransition
}

// tally applies the majority rule: RISK_ON wins with >=3 votes, or >=2 with
// zero opposing votes; symmetric for RISK_OFF; otherwise TRANSITION.
// Confidence is winner/total, or 1 - |on-off|/total without an outright win.
func tally(votes []domain.RegimeVote) (domain.Regime, float64) {
	if len(votes) == 0 {
		return domain.RegimeTransition, 0
	}

	var on, off int
	for _, v := range votes {
		switch v.Vote {
		case domain.RegimeRiskOn:
			on++
		case domain.RegimeRiskOff:
			off++
		}
	}
	total := float64(len(votes))

	switch {
	case on >= 3 || (on >= 2 && off == 0):
		return domain.RegimeRiskOn, float64(on) / total
	case off >= 3 || (off >= 2 && on == 0):
		return domain.RegimeRiskOff, float64(off) / total
	default:
		diff := on - off
		if diff < 0 {
			diff = -diff
		}
		return domain.RegimeTransition, 1.0 - float64(diff)/total
	}
}
