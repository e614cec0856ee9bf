package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketpulse/internal/domain"
	"github.com/sawpanic/marketpulse/internal/metrics"
	"github.com/sawpanic/marketpulse/internal/persistence"
)

type fakeSnapshots struct {
	byDate map[time.Time]*domain.DecisionSnapshot
}

func (f *fakeSnapshots) Replace(_ context.Context, snap *domain.DecisionSnapshot) error {
	f.byDate[snap.AsOf] = snap
	return nil
}

func (f *fakeSnapshots) GetByDate(_ context.Context, asOf time.Time) (*domain.DecisionSnapshot, error) {
	return f.byDate[asOf], nil
}

func (f *fakeSnapshots) Latest(_ context.Context) (*domain.DecisionSnapshot, error) {
	var best *domain.DecisionSnapshot
	for _, snap := range f.byDate {
		if best == nil || snap.AsOf.After(best.AsOf) {
			best = snap
		}
	}
	return best, nil
}

type fakeLedger struct {
	rows []domain.LedgerRow
}

func (f *fakeLedger) Append(_ context.Context, rows []domain.LedgerRow) error {
	f.rows = append(f.rows, rows...)
	return nil
}

func (f *fakeLedger) ListRange(_ context.Context, tr persistence.TimeRange, horizon string) ([]domain.LedgerRow, error) {
	var out []domain.LedgerRow
	for _, row := range f.rows {
		if row.AsOf.Before(tr.From) || row.AsOf.After(tr.To) {
			continue
		}
		if horizon != "" && row.Horizon != horizon {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func testServer(snapshots *fakeSnapshots, ledger *fakeLedger) *Server {
	store := persistence.Store{Snapshots: snapshots, Ledger: ledger}
	return NewServer(DefaultServerConfig(), store, metrics.NewRegistry())
}

func day(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func TestHealth(t *testing.T) {
	srv := testServer(&fakeSnapshots{byDate: map[time.Time]*domain.DecisionSnapshot{}}, &fakeLedger{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestLatestDecision(t *testing.T) {
	snapshots := &fakeSnapshots{byDate: map[time.Time]*domain.DecisionSnapshot{
		day("2025-06-01"): {ContractVersion: "marketpulse/v1", RunID: "r1", AsOf: day("2025-06-01")},
		day("2025-06-02"): {ContractVersion: "marketpulse/v1", RunID: "r2", AsOf: day("2025-06-02")},
	}}
	srv := testServer(snapshots, &fakeLedger{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/v1/decision/latest", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got domain.DecisionSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "r2", got.RunID)
}

func TestLatestDecision_Empty(t *testing.T) {
	srv := testServer(&fakeSnapshots{byDate: map[time.Time]*domain.DecisionSnapshot{}}, &fakeLedger{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/v1/decision/latest", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDecisionByDate(t *testing.T) {
	snapshots := &fakeSnapshots{byDate: map[time.Time]*domain.DecisionSnapshot{
		day("2025-06-01"): {ContractVersion: "marketpulse/v1", RunID: "r1", AsOf: day("2025-06-01")},
	}}
	srv := testServer(snapshots, &fakeLedger{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/v1/decision/2025-06-01", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/v1/decision/2025-06-09", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/v1/decision/yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLedgerEndpoint(t *testing.T) {
	reason := "suppressed_coherence"
	ledger := &fakeLedger{rows: []domain.LedgerRow{
		{RunID: "r1", AsOf: day("2025-06-01"), Horizon: "30d", CandidateID: "growth:bullish", Published: true},
		{RunID: "r1", AsOf: day("2025-06-01"), Horizon: "90d", CandidateID: "growth:bullish", Published: false, SuppressionReason: &reason},
	}}
	srv := testServer(&fakeSnapshots{byDate: map[time.Time]*domain.DecisionSnapshot{}}, ledger)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/v1/ledger?from=2025-06-01&to=2025-06-02&horizon=30d", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int                `json:"count"`
		Rows  []domain.LedgerRow `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Rows, 1)
	assert.Equal(t, "30d", body.Rows[0].Horizon)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/v1/ledger?from=bad", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(&fakeSnapshots{byDate: map[time.Time]*domain.DecisionSnapshot{}}, &fakeLedger{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNotFound(t *testing.T) {
	srv := testServer(&fakeSnapshots{byDate: map[time.Time]*domain.DecisionSnapshot{}}, &fakeLedger{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
