package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/marketpulse/internal/domain"
	"github.com/sawpanic/marketpulse/internal/persistence"
)

type scoreRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewScoreRepo creates a PostgreSQL composite-score repository.
func NewScoreRepo(db *sqlx.DB, timeout time.Duration) persistence.ScoreRepo {
	return &scoreRepo{db: db, timeout: timeout}
}

// UpsertComposite stores the composite score and its category rollup for a
// date. Re-running the same date overwrites idempotently.
func (r *scoreRepo) UpsertComposite(ctx context.Context, score *domain.CompositeScore) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	categoriesJSON, err := json.Marshal(score.Categories)
	if err != nil {
		return fmt.Errorf("failed to marshal category scores: %w", err)
	}

	query := `
		INSERT INTO composite_scores
		(as_of, score, label, status, delta_1d, delta_7d, delta_30d, indicators, categories)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (as_of) DO UPDATE SET
			score = EXCLUDED.score,
			label = EXCLUDED.label,
			status = EXCLUDED.status,
			delta_1d = EXCLUDED.delta_1d,
			delta_7d = EXCLUDED.delta_7d,
			delta_30d = EXCLUDED.delta_30d,
			indicators = EXCLUDED.indicators,
			categories = EXCLUDED.categories`

	_, err = r.db.ExecContext(ctx, query,
		score.Date, score.Score, score.Label, score.Status,
		score.Delta1d, score.Delta7d, score.Delta30d, score.Indicators, categoriesJSON)
	if err != nil {
		return fmt.Errorf("failed to upsert composite score: %w", err)
	}
	return nil
}

// CompositeOnOrBefore returns the nearest prior composite score, or nil.
func (r *scoreRepo) CompositeOnOrBefore(ctx context.Context, asOf time.Time) (*domain.CompositeScore, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT as_of, score, label, status, delta_1d, delta_7d, delta_30d, indicators, categories
		FROM composite_scores
		WHERE as_of <= $1
		ORDER BY as_of DESC
		LIMIT 1`

	row := r.db.QueryRowxContext(ctx, query, asOf)

	var score domain.CompositeScore
	var categoriesJSON []byte
	err := row.Scan(&score.Date, &score.Score, &score.Label, &score.Status,
		&score.Delta1d, &score.Delta7d, &score.Delta30d, &score.Indicators, &categoriesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query composite score: %w", err)
	}

	if len(categoriesJSON) > 0 {
		if err := json.Unmarshal(categoriesJSON, &score.Categories); err != nil {
			return nil, fmt.Errorf("failed to unmarshal category scores: %w", err)
		}
	}
	return &score, nil
}

type regimeRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRegimeRepo creates a PostgreSQL regime repository.
func NewRegimeRepo(db *sqlx.DB, timeout time.Duration) persistence.RegimeRepo {
	return &regimeRepo{db: db, timeout: timeout}
}

// Upsert stores the regime classification for a date.
func (r *regimeRepo) Upsert(ctx context.Context, result *domain.RegimeResult) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	votesJSON, err := json.Marshal(result.Votes)
	if err != nil {
		return fmt.Errorf("failed to marshal regime votes: %w", err)
	}

	query := `
		INSERT INTO regime_results (as_of, regime, confidence, votes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (as_of) DO UPDATE SET
			regime = EXCLUDED.regime,
			confidence = EXCLUDED.confidence,
			votes = EXCLUDED.votes`

	if _, err := r.db.ExecContext(ctx, query, result.Date, result.Regime, result.Confidence, votesJSON); err != nil {
		return fmt.Errorf("failed to upsert regime result: %w", err)
	}
	return nil
}

// GetByDate retrieves a specific regime classification, or nil.
func (r *regimeRepo) GetByDate(ctx context.Context, asOf time.Time) (*domain.RegimeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT as_of, regime, confidence, votes FROM regime_results WHERE as_of = $1`

	row := r.db.QueryRowxContext(ctx, query, asOf)

	var result domain.RegimeResult
	var votesJSON []byte
	err := row.Scan(&result.Date, &result.Regime, &result.Confidence, &votesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query regime result: %w", err)
	}

	if len(votesJSON) > 0 {
		if err := json.Unmarshal(votesJSON, &result.Votes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal regime votes: %w", err)
		}
	}
	return &result, nil
}
