package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/marketpulse/internal/domain"
	"github.com/sawpanic/marketpulse/internal/persistence"
)

type ledgerRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewLedgerRepo creates a PostgreSQL ledger repository.
func NewLedgerRepo(db *sqlx.DB, timeout time.Duration) persistence.LedgerRepo {
	return &ledgerRepo{db: db, timeout: timeout}
}

// Append inserts ledger rows in bounded batches. The table carries no update
// path at all: a conflicting (as_of, horizon, candidate_id) insert fails
// instead of rewriting history, and corrections insert superseding rows
// under a new run id.
func (r *ledgerRepo) Append(ctx context.Context, rows []domain.LedgerRow) error {
	for start := 0; start < len(rows); start += maxBatchRows {
		end := start + maxBatchRows
		if end > len(rows) {
			end = len(rows)
		}
		if err := r.appendBatch(ctx, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *ledgerRepo) appendBatch(ctx context.Context, batch []domain.LedgerRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO opportunity_ledger
		(run_id, as_of, horizon, candidate_id, theme_id, direction, conviction, published, suppression_reason)
		VALUES (:run_id, :as_of, :horizon, :candidate_id, :theme_id, :direction, :conviction, :published, :suppression_reason)
		ON CONFLICT (run_id, as_of, horizon, candidate_id) DO NOTHING`

	if _, err := r.db.NamedExecContext(ctx, query, batch); err != nil {
		return fmt.Errorf("failed to append ledger rows: %w", err)
	}
	return nil
}

// ListRange returns ledger rows within the window, optionally filtered by
// horizon, newest first.
func (r *ledgerRepo) ListRange(ctx context.Context, tr persistence.TimeRange, horizon string) ([]domain.LedgerRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT run_id, as_of, horizon, candidate_id, theme_id, direction, conviction, published, suppression_reason
		FROM opportunity_ledger
		WHERE as_of >= $1 AND as_of <= $2 AND ($3 = '' OR horizon = $3)
		ORDER BY as_of DESC, candidate_id ASC`

	var rows []domain.LedgerRow
	if err := r.db.SelectContext(ctx, &rows, query, tr.From, tr.To, horizon); err != nil {
		return nil, fmt.Errorf("failed to query ledger range: %w", err)
	}
	return rows, nil
}
