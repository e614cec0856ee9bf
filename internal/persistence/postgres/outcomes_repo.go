package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/marketpulse/internal/calibration"
	"github.com/sawpanic/marketpulse/internal/domain"
	"github.com/sawpanic/marketpulse/internal/opportunity"
	"github.com/sawpanic/marketpulse/internal/persistence"
)

type outcomeRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewOutcomeRepo creates a PostgreSQL outcome repository.
func NewOutcomeRepo(db *sqlx.DB, timeout time.Duration) persistence.OutcomeRepo {
	return &outcomeRepo{db: db, timeout: timeout}
}

// Outcomes returns all resolved (score, correct) pairs for a metric and
// optional horizon, oldest first. Calibration rebuilds from the full history
// on every refresh cycle.
func (r *outcomeRepo) Outcomes(ctx context.Context, metric, horizon string) ([]calibration.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT score, correct
		FROM prediction_outcomes
		WHERE metric = $1 AND ($2 = '' OR horizon = $2) AND resolved_at IS NOT NULL
		ORDER BY resolved_at ASC`

	var outcomes []calibration.Outcome
	if err := r.db.SelectContext(ctx, &outcomes, query, metric, horizon); err != nil {
		return nil, fmt.Errorf("failed to query outcomes for %s: %w", metric, err)
	}
	return outcomes, nil
}

// ThemeReturns aggregates forward returns for one theme and direction.
func (r *outcomeRepo) ThemeReturns(ctx context.Context, themeID string, direction domain.Direction, horizon string) (opportunity.ReturnStats, error) {
	query := `
		SELECT COALESCE(AVG(forward_return), 0) AS mean,
		       COALESCE(MIN(forward_return), 0) AS worst,
		       COUNT(*) AS n
		FROM forward_returns
		WHERE theme_id = $1 AND direction = $2 AND ($3 = '' OR horizon = $3)`

	return r.returnStats(ctx, query, themeID, string(direction), horizon)
}

// DirectionReturns aggregates forward returns across all themes sharing a
// direction, the prior used when a theme's own sample is thin.
func (r *outcomeRepo) DirectionReturns(ctx context.Context, direction domain.Direction, horizon string) (opportunity.ReturnStats, error) {
	query := `
		SELECT COALESCE(AVG(forward_return), 0) AS mean,
		       COALESCE(MIN(forward_return), 0) AS worst,
		       COUNT(*) AS n
		FROM forward_returns
		WHERE direction = $1 AND ($2 = '' OR horizon = $2)`

	return r.returnStats(ctx, query, string(direction), horizon)
}

func (r *outcomeRepo) returnStats(ctx context.Context, query string, args ...interface{}) (opportunity.ReturnStats, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stats opportunity.ReturnStats
	err := r.db.GetContext(ctx, &stats, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return opportunity.ReturnStats{}, nil
	}
	if err != nil {
		return opportunity.ReturnStats{}, fmt.Errorf("failed to query forward returns: %w", err)
	}
	return stats, nil
}
