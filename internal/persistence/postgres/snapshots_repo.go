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

type snapshotRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSnapshotRepo creates a PostgreSQL decision-snapshot repository.
func NewSnapshotRepo(db *sqlx.DB, timeout time.Duration) persistence.SnapshotRepo {
	return &snapshotRepo{db: db, timeout: timeout}
}

// Replace stores the snapshot as the canonical decision for its as-of date.
// The whole payload is swapped atomically; a failed refresh never leaves a
// partially overwritten snapshot behind.
func (r *snapshotRepo) Replace(ctx context.Context, snapshot *domain.DecisionSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal decision snapshot: %w", err)
	}

	query := `
		INSERT INTO decision_snapshots (as_of, contract_version, run_id, degraded, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (as_of) DO UPDATE SET
			contract_version = EXCLUDED.contract_version,
			run_id = EXCLUDED.run_id,
			degraded = EXCLUDED.degraded,
			payload = EXCLUDED.payload`

	_, err = r.db.ExecContext(ctx, query,
		snapshot.AsOf, snapshot.ContractVersion, snapshot.RunID,
		snapshot.DegradedReason != nil, payload)
	if err != nil {
		return fmt.Errorf("failed to replace decision snapshot: %w", err)
	}
	return nil
}

// GetByDate retrieves the canonical snapshot for a date, or nil.
func (r *snapshotRepo) GetByDate(ctx context.Context, asOf time.Time) (*domain.DecisionSnapshot, error) {
	return r.query(ctx, `SELECT payload FROM decision_snapshots WHERE as_of = $1`, asOf)
}

// Latest retrieves the most recent canonical snapshot, or nil.
func (r *snapshotRepo) Latest(ctx context.Context) (*domain.DecisionSnapshot, error) {
	return r.query(ctx, `SELECT payload FROM decision_snapshots ORDER BY as_of DESC LIMIT 1`)
}

func (r *snapshotRepo) query(ctx context.Context, query string, args ...interface{}) (*domain.DecisionSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var payload []byte
	err := r.db.GetContext(ctx, &payload, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query decision snapshot: %w", err)
	}

	var snapshot domain.DecisionSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decision snapshot: %w", err)
	}
	return &snapshot, nil
}
