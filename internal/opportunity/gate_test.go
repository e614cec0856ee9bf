package opportunity

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketpulse/internal/domain"
)

func calRef(prob float64, quality domain.QualityBand) *domain.CalibrationRef {
	return &domain.CalibrationRef{ProbCorrect: &prob, Quality: quality, SampleSize: 60}
}

func expRef(mean float64, quality domain.QualityBand) *domain.ExpectancyRef {
	return &domain.ExpectancyRef{Mean: mean, WorstCase: -0.1, Basis: BasisTheme, SampleSize: 30, Quality: quality}
}

func bullish(id string, conviction float64) domain.OpportunityCandidate {
	return domain.OpportunityCandidate{
		ID:          CandidateID(id, domain.DirectionBullish),
		ThemeID:     id,
		Direction:   domain.DirectionBullish,
		Conviction:  conviction,
		Calibration: calRef(0.62, domain.QualityRobust),
		Expectancy:  expRef(0.03, domain.QualityLimited),
	}
}

func neutralNoEvidence(id string, conviction float64) domain.OpportunityCandidate {
	return domain.OpportunityCandidate{
		ID:         CandidateID(id, domain.DirectionNeutral),
		ThemeID:    id,
		Direction:  domain.DirectionNeutral,
		Conviction: conviction,
	}
}

func run() RunContext {
	return RunContext{
		RunID:   uuid.NewString(),
		AsOf:    time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Horizon: "30d",
	}
}

func TestEvaluate_PublishesCoherentCandidate(t *testing.T) {
	gate := NewGateEvaluator(nil)

	published, rows := gate.Evaluate(run(), []domain.OpportunityCandidate{bullish("tech", 70)})

	require.Len(t, published, 1)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Published)
	assert.Nil(t, rows[0].SuppressionReason)
	assert.True(t, published[0].Eligibility.Passed)
	for _, check := range published[0].Eligibility.Checks {
		assert.True(t, check.Passed, "passed eligibility must record no failed checks (%s)", check.Name)
	}
}

func TestEvaluate_LedgerCompleteness(t *testing.T) {
	gate := NewGateEvaluator(nil)

	candidates := []domain.OpportunityCandidate{
		bullish("tech", 70),
		neutralNoEvidence("energy", 52),
		func() domain.OpportunityCandidate {
			c := bullish("credit", 64)
			c.Expectancy = expRef(-0.02, domain.QualityLimited) // sign contradicts direction
			return c
		}(),
	}

	_, rows := gate.Evaluate(run(), candidates)

	require.Len(t, rows, len(candidates), "exactly one ledger row per candidate")
	seen := map[string]bool{}
	for _, row := range rows {
		assert.False(t, seen[row.CandidateID], "duplicate row for %s", row.CandidateID)
		seen[row.CandidateID] = true
		if !row.Published {
			require.NotNil(t, row.SuppressionReason, "unpublished rows carry a reason")
		} else {
			assert.Nil(t, row.SuppressionReason)
		}
	}
}

func TestEvaluate_CoherenceRejectsSignDisagreement(t *testing.T) {
	gate := NewGateEvaluator(nil)

	c := bullish("credit", 64)
	c.Expectancy = expRef(-0.02, domain.QualityLimited)

	published, rows := gate.Evaluate(run(), []domain.OpportunityCandidate{c})
	assert.Empty(t, published)
	require.NotNil(t, rows[0].SuppressionReason)
	assert.Equal(t, ReasonCoherenceFailed, *rows[0].SuppressionReason)
}

func TestEvaluate_CoherenceRejectsWeakCalibration(t *testing.T) {
	gate := NewGateEvaluator(nil)

	c := bullish("fx", 58)
	c.Calibration = calRef(0.42, domain.QualityRobust)

	published, rows := gate.Evaluate(run(), []domain.OpportunityCandidate{c})
	assert.Empty(t, published)
	assert.Equal(t, ReasonCoherenceFailed, *rows[0].SuppressionReason)
}

func TestEvaluate_IncompleteContract(t *testing.T) {
	gate := NewGateEvaluator(nil)

	// Usable quality but no probability: the producer broke the contract.
	c := bullish("rates", 61)
	c.Calibration = &domain.CalibrationRef{Quality: domain.QualityLimited, SampleSize: 25}

	published, rows := gate.Evaluate(run(), []domain.OpportunityCandidate{c})
	assert.Empty(t, published)
	assert.Equal(t, ReasonCoherenceFailed, *rows[0].SuppressionReason)
}

func TestEvaluate_MissingEvidenceWithInsufficientQualityTolerated(t *testing.T) {
	gate := NewGateEvaluator(nil)

	c := domain.OpportunityCandidate{
		ID:        CandidateID("smallcap", domain.DirectionBullish),
		ThemeID:   "smallcap",
		Direction: domain.DirectionBullish,
	}

	published, _ := gate.Evaluate(run(), []domain.OpportunityCandidate{c})
	require.Len(t, published, 1, "honest absence of evidence is not a gate failure")
}

func TestEvaluate_QualityFilterDropsNeutralWithoutEvidence(t *testing.T) {
	gate := NewGateEvaluator(nil)

	candidates := []domain.OpportunityCandidate{
		bullish("tech", 70),
		neutralNoEvidence("energy", 52),
	}

	published, rows := gate.Evaluate(run(), candidates)
	require.Len(t, published, 1)
	assert.Equal(t, "tech:bullish", published[0].ID)

	assert.Equal(t, ReasonQualityFiltered, *rows[1].SuppressionReason)
}

func TestEvaluate_QualityFilterNeverEmptiesFeed(t *testing.T) {
	gate := NewGateEvaluator(nil)

	candidates := []domain.OpportunityCandidate{
		neutralNoEvidence("a", 55),
		neutralNoEvidence("b", 53),
		neutralNoEvidence("c", 51),
		neutralNoEvidence("d", 49),
	}

	_, rows := gate.Evaluate(run(), candidates)

	kept := 0
	for _, row := range rows {
		if row.SuppressionReason == nil || *row.SuppressionReason != ReasonQualityFiltered {
			kept++
		}
	}
	assert.Equal(t, 3, kept, "top three by conviction survive a full wipe")

	// The weakest candidate is still the one filtered.
	assert.Equal(t, ReasonQualityFiltered, *rows[3].SuppressionReason)
}

func TestEvaluate_DataQualityOverrideSuppressesEverything(t *testing.T) {
	gate := NewGateEvaluator(nil)

	r := run()
	r.DataQualitySuppressed = true

	candidates := []domain.OpportunityCandidate{
		bullish("tech", 70),
		neutralNoEvidence("energy", 52),
	}

	published, rows := gate.Evaluate(r, candidates)
	assert.Empty(t, published)

	// Per-item reasons still take priority over the global override.
	assert.Equal(t, ReasonDataQuality, *rows[0].SuppressionReason)
	assert.Equal(t, ReasonQualityFiltered, *rows[1].SuppressionReason)
}
