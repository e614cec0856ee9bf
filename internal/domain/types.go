// Package domain holds the shared vocabulary of the decision pipeline:
// regimes, signal types, quality bands, and the snapshot entities that
// cross component boundaries.
package domain

import "time"

// Regime is the coarse market-condition classification.
type Regime string

const (
	RegimeRiskOn     Regime = "RISK_ON"
	RegimeRiskOff    Regime = "RISK_OFF"
	RegimeTransition Regime = "TRANSITION"
)

// SignalType is the discrete risk posture derived from the allocation fraction.
type SignalType string

const (
	SignalFullRisk    SignalType = "FULL_RISK"
	SignalReducedRisk SignalType = "REDUCED_RISK"
	SignalRiskOff     SignalType = "RISK_OFF"
	SignalDefensive   SignalType = "DEFENSIVE"
)

// Direction is the stance of an opportunity candidate.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
)

// QualityBand grades how much historical evidence backs a statistic.
type QualityBand string

const (
	QualityRobust       QualityBand = "ROBUST"
	QualityLimited      QualityBand = "LIMITED"
	QualityInsufficient QualityBand = "INSUFFICIENT"
)

// ConsistencyState is the tri-level verdict of the consistency checker.
type ConsistencyState string

const (
	ConsistencyPass ConsistencyState = "PASS"
	ConsistencyWarn ConsistencyState = "WARN"
	ConsistencyFail ConsistencyState = "FAIL"
)

// Stance is the published policy stance validated by the consistency checker.
type Stance string

const (
	StanceRiskOn  Stance = "RISK_ON"
	StanceMixed   Stance = "MIXED"
	StanceRiskOff Stance = "RISK_OFF"
)

// IndicatorObservation is one value of one external series on one date.
// Rows are appended by ingestion and never mutated.
type IndicatorObservation struct {
	IndicatorID string    `json:"indicator_id" db:"indicator_id"`
	Date        time.Time `json:"date" db:"observed_on"`
	Value       float64   `json:"value" db:"value"`
	Source      string    `json:"source" db:"source"`
}

// CategoryScore is the weighted rollup of indicators in one thematic bucket.
type CategoryScore struct {
	Category string    `json:"category" db:"category"`
	Date     time.Time `json:"date" db:"as_of"`
	Score    float64   `json:"score" db:"score"`
	Weight   float64   `json:"weight" db:"weight"`
}

// CompositeScore is the daily 0-100 index value with its discrete label and
// calendar-offset deltas. Exactly one exists per date once computed.
type CompositeScore struct {
	Date       time.Time       `json:"date" db:"as_of"`
	Score      float64         `json:"score" db:"score"`
	Label      string          `json:"label" db:"label"`
	Status     string          `json:"status" db:"status"`
	Delta1d    *float64        `json:"delta_1d,omitempty" db:"delta_1d"`
	Delta7d    *float64        `json:"delta_7d,omitempty" db:"delta_7d"`
	Delta30d   *float64        `json:"delta_30d,omitempty" db:"delta_30d"`
	Categories []CategoryScore `json:"categories,omitempty" db:"-"`
	Indicators int             `json:"indicators" db:"indicators"`
}

// RegimeVote is one indicator's contribution to the regime tally.
type RegimeVote struct {
	Indicator  string  `json:"indicator"`
	Vote       Regime  `json:"vote"`
	Percentile float64 `json:"percentile"`
	Basis      string  `json:"basis"`
}

// RegimeResult is the classified market regime for one date. Confidence is
// derived solely from the vote tally.
type RegimeResult struct {
	Date       time.Time    `json:"date"`
	Regime     Regime       `json:"regime"`
	Confidence float64      `json:"confidence"`
	Votes      []RegimeVote `json:"votes"`
}

// Adjustment records one applied penalty in the signal rule cascade,
// in application order.
type Adjustment struct {
	Rule       string  `json:"rule"`
	Multiplier float64 `json:"multiplier"`
	Detail     string  `json:"detail"`
}

// Signal is the risk posture derived from score, regime and volatility.
type Signal struct {
	Date        time.Time    `json:"date"`
	Allocation  float64      `json:"allocation"`
	Type        SignalType   `json:"type"`
	BaseType    SignalType   `json:"base_type"`
	Adjustments []Adjustment `json:"adjustments"`
}

// WilsonInterval is a binomial-proportion confidence interval clamped to [0,1].
type WilsonInterval struct {
	Lower float64 `json:"lower"`
	Point float64 `json:"point"`
	Upper float64 `json:"upper"`
}

// DecileBin is one of ten contiguous calibration buckets over [0,100].
type DecileBin struct {
	Lo       int            `json:"lo"`
	Hi       int            `json:"hi"`
	Correct  int            `json:"correct"`
	Total    int            `json:"total"`
	Interval WilsonInterval `json:"interval"`
}

// Diagnostics are aggregate calibration quality measures. All three are nil
// below the sample floor, with Reason explaining why. Callers must treat nil
// as "cannot assess", never substitute a mid value.
type Diagnostics struct {
	Brier   *float64 `json:"brier,omitempty"`
	ECE     *float64 `json:"ece,omitempty"`
	LogLoss *float64 `json:"log_loss,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// CalibrationSnapshot is pooled historical accuracy by decile bin for one
// metric and optional horizon.
type CalibrationSnapshot struct {
	Metric      string      `json:"metric"`
	Horizon     string      `json:"horizon,omitempty"`
	Bins        []DecileBin `json:"bins"`
	Total       int         `json:"total"`
	Quality     QualityBand `json:"quality"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// CalibrationRef anchors a candidate's conviction to its pooled decile stats.
type CalibrationRef struct {
	ProbCorrect *float64       `json:"prob_correct,omitempty"`
	Interval    WilsonInterval `json:"interval"`
	BinLo       int            `json:"bin_lo"`
	BinHi       int            `json:"bin_hi"`
	SampleSize  int            `json:"sample_size"`
	Quality     QualityBand    `json:"quality"`
}

// ExpectancyRef carries the historical forward-return evidence backing a
// candidate, with the basis that produced it.
type ExpectancyRef struct {
	Mean       float64     `json:"mean"`
	WorstCase  float64     `json:"worst_case"`
	Basis      string      `json:"basis"`
	SampleSize int         `json:"sample_size"`
	Quality    QualityBand `json:"quality"`
}

// EligibilityCheck is one named pass/fail from the coherence gate.
type EligibilityCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// EligibilityResult aggregates gate checks. Passed implies no failed checks.
type EligibilityResult struct {
	Passed bool               `json:"passed"`
	Checks []EligibilityCheck `json:"checks"`
}

// OpportunityCandidate is one proposed directional recommendation for a theme.
type OpportunityCandidate struct {
	ID            string             `json:"id"`
	ThemeID       string             `json:"theme_id"`
	Direction     Direction          `json:"direction"`
	Conviction    float64            `json:"conviction"`
	RawConviction float64            `json:"raw_conviction"`
	QualityFactor float64            `json:"quality_factor"`
	Components    map[string]float64 `json:"components"`
	Calibration   *CalibrationRef    `json:"calibration,omitempty"`
	Expectancy    *ExpectancyRef     `json:"expectancy,omitempty"`
	Eligibility   EligibilityResult  `json:"eligibility"`
}

// LedgerRow is the audit record of one candidate's publish/suppress decision.
// Rows are append-only; SuppressionReason is non-nil iff not published.
type LedgerRow struct {
	RunID             string    `json:"run_id" db:"run_id"`
	AsOf              time.Time `json:"as_of" db:"as_of"`
	Horizon           string    `json:"horizon" db:"horizon"`
	CandidateID       string    `json:"candidate_id" db:"candidate_id"`
	ThemeID           string    `json:"theme_id" db:"theme_id"`
	Direction         Direction `json:"direction" db:"direction"`
	Conviction        float64   `json:"conviction" db:"conviction"`
	Published         bool      `json:"published" db:"published"`
	SuppressionReason *string   `json:"suppression_reason,omitempty" db:"suppression_reason"`
}

// Violation is one failed consistency predicate.
type Violation struct {
	Code    string  `json:"code"`
	Penalty float64 `json:"penalty"`
	Detail  string  `json:"detail,omitempty"`
}

// ConsistencySnapshot is the validation result for one canonical decision.
type ConsistencySnapshot struct {
	Score      float64            `json:"score"`
	State      ConsistencyState   `json:"state"`
	Violations []Violation        `json:"violations"`
	Components map[string]float64 `json:"components"`
}

// DecisionSnapshot is the canonical, published decision for one as-of date.
// At most one is authoritative per date; it is superseded by recomputation,
// never partially overwritten.
type DecisionSnapshot struct {
	ContractVersion string                 `json:"contract_version"`
	RunID           string                 `json:"run_id"`
	AsOf            time.Time              `json:"as_of"`
	Composite       *CompositeScore        `json:"composite_score"`
	Regime          *RegimeResult          `json:"regime"`
	Signal          *Signal                `json:"signal"`
	CalibrationRefs []CalibrationSnapshot  `json:"calibration_refs"`
	Opportunities   []OpportunityCandidate `json:"opportunities"`
	Consistency     *ConsistencySnapshot   `json:"consistency"`
	DegradedReason  *string                `json:"degraded_reason"`
	GeneratedAt     time.Time              `json:"generated_at"`
}

// Day truncates t to UTC midnight. All as-of keys are day-granular.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
