// Package postgres implements the persistence contracts on PostgreSQL via
// sqlx. Every operation runs under a per-repo timeout; writes are batched to
// bound the size of any single statement.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/marketpulse/internal/domain"
	"github.com/sawpanic/marketpulse/internal/persistence"
)

// maxBatchRows bounds rows per insert statement for backpressure.
const maxBatchRows = 500

type indicatorRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewIndicatorRepo creates a PostgreSQL indicator repository.
func NewIndicatorRepo(db *sqlx.DB, timeout time.Duration) persistence.IndicatorRepo {
	return &indicatorRepo{db: db, timeout: timeout}
}

// UpsertObservations writes observations in bounded batches. Conflicting
// (indicator, date) pairs keep the incoming value for idempotent re-ingestion.
func (r *indicatorRepo) UpsertObservations(ctx context.Context, observations []domain.IndicatorObservation) error {
	for start := 0; start < len(observations); start += maxBatchRows {
		end := start + maxBatchRows
		if end > len(observations) {
			end = len(observations)
		}
		if err := r.upsertBatch(ctx, observations[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *indicatorRepo) upsertBatch(ctx context.Context, batch []domain.IndicatorObservation) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO indicator_observations (indicator_id, observed_on, value, source)
		VALUES (:indicator_id, :observed_on, :value, :source)
		ON CONFLICT (indicator_id, observed_on) DO UPDATE SET
			value = EXCLUDED.value,
			source = EXCLUDED.source`

	if _, err := r.db.NamedExecContext(ctx, query, batch); err != nil {
		return fmt.Errorf("failed to upsert indicator observations: %w", err)
	}
	return nil
}

// ValueOnOrBefore returns the nearest observation at or before asOf within
// the lookback window. A missing series is not an error.
func (r *indicatorRepo) ValueOnOrBefore(ctx context.Context, indicatorID string, asOf time.Time, maxLookbackDays int) (*domain.IndicatorObservation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT indicator_id, observed_on, value, source
		FROM indicator_observations
		WHERE indicator_id = $1 AND observed_on <= $2 AND observed_on > $3
		ORDER BY observed_on DESC
		LIMIT 1`

	var obs domain.IndicatorObservation
	err := r.db.GetContext(ctx, &obs, query, indicatorID, asOf, asOf.AddDate(0, 0, -maxLookbackDays))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query indicator %s: %w", indicatorID, err)
	}
	return &obs, nil
}

// History returns observed values in [from, to) in date order.
func (r *indicatorRepo) History(ctx context.Context, indicatorID string, from, to time.Time) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT value
		FROM indicator_observations
		WHERE indicator_id = $1 AND observed_on >= $2 AND observed_on < $3
		ORDER BY observed_on ASC`

	var values []float64
	if err := r.db.SelectContext(ctx, &values, query, indicatorID, from, to); err != nil {
		return nil, fmt.Errorf("failed to query indicator history %s: %w", indicatorID, err)
	}
	return values, nil
}
