// Package persistence defines the typed storage contracts the decision
// pipeline depends on. The core requires read-your-writes consistency within
// a single refresh run; the postgres subpackage provides the production
// implementation.
package persistence

import (
	"context"
	"time"

	"github.com/sawpanic/marketpulse/internal/calibration"
	"github.com/sawpanic/marketpulse/internal/domain"
	"github.com/sawpanic/marketpulse/internal/opportunity"
)

// TimeRange is an inclusive [From, To] window.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// IndicatorRepo stores raw indicator observations. Rows are append-only from
// the ingestion side; upsert exists for idempotent re-ingestion only.
type IndicatorRepo interface {
	UpsertObservations(ctx context.Context, observations []domain.IndicatorObservation) error
	// ValueOnOrBefore searches backward from asOf up to maxLookbackDays for
	// the nearest observation, tolerating weekends and holidays.
	ValueOnOrBefore(ctx context.Context, indicatorID string, asOf time.Time, maxLookbackDays int) (*domain.IndicatorObservation, error)
	History(ctx context.Context, indicatorID string, from, to time.Time) ([]float64, error)
}

// ScoreRepo stores composite and category scores, idempotently per date.
type ScoreRepo interface {
	UpsertComposite(ctx context.Context, score *domain.CompositeScore) error
	CompositeOnOrBefore(ctx context.Context, asOf time.Time) (*domain.CompositeScore, error)
}

// RegimeRepo stores regime classifications per date.
type RegimeRepo interface {
	Upsert(ctx context.Context, result *domain.RegimeResult) error
	GetByDate(ctx context.Context, asOf time.Time) (*domain.RegimeResult, error)
}

// OutcomeRepo reads the historical prediction/outcome and forward-return
// tables that feed calibration and expectancy.
type OutcomeRepo interface {
	Outcomes(ctx context.Context, metric, horizon string) ([]calibration.Outcome, error)
	ThemeReturns(ctx context.Context, themeID string, direction domain.Direction, horizon string) (opportunity.ReturnStats, error)
	DirectionReturns(ctx context.Context, direction domain.Direction, horizon string) (opportunity.ReturnStats, error)
}

// LedgerRepo appends and queries the audit ledger. Rows are never updated
// after insertion; corrections insert superseding rows.
type LedgerRepo interface {
	Append(ctx context.Context, rows []domain.LedgerRow) error
	ListRange(ctx context.Context, tr TimeRange, horizon string) ([]domain.LedgerRow, error)
}

// SnapshotRepo stores the canonical decision snapshot per as-of date,
// replaced wholesale on each successful refresh.
type SnapshotRepo interface {
	Replace(ctx context.Context, snapshot *domain.DecisionSnapshot) error
	GetByDate(ctx context.Context, asOf time.Time) (*domain.DecisionSnapshot, error)
	Latest(ctx context.Context) (*domain.DecisionSnapshot, error)
}

// Store bundles every repository behind one handle for injection.
type Store struct {
	Indicators IndicatorRepo
	Scores     ScoreRepo
	Regimes    RegimeRepo
	Outcomes   OutcomeRepo
	Ledger     LedgerRepo
	Snapshots  SnapshotRepo
}
