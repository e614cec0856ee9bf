package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketpulse/internal/domain"
	"github.com/sawpanic/marketpulse/internal/persistence"
)

// Handlers serves the read-only API from the persistence layer.
type Handlers struct {
	store persistence.Store
}

// NewHandlers creates the handler set.
func NewHandlers(store persistence.Store) *Handlers {
	return &Handlers{store: store}
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// LatestDecision serves the most recent canonical snapshot.
func (h *Handlers) LatestDecision(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.store.Snapshots.Latest(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "snapshot lookup failed")
		log.Error().Err(err).Msg("latest snapshot lookup failed")
		return
	}
	if snapshot == nil {
		writeError(w, http.StatusNotFound, "no decision snapshot available")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// DecisionByDate serves the canonical snapshot for one as-of date
// (YYYY-MM-DD).
func (h *Handlers) DecisionByDate(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["date"]
	asOf, err := time.Parse("2006-01-02", raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	snapshot, err := h.store.Snapshots.GetByDate(r.Context(), domain.Day(asOf))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "snapshot lookup failed")
		log.Error().Err(err).Str("date", raw).Msg("snapshot lookup failed")
		return
	}
	if snapshot == nil {
		writeError(w, http.StatusNotFound, "no decision snapshot for date")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// Ledger serves audit rows for ?from=YYYY-MM-DD&to=YYYY-MM-DD[&horizon=30d].
func (h *Handlers) Ledger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, err := time.Parse("2006-01-02", q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse("2006-01-02", q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return
	}

	rows, err := h.store.Ledger.ListRange(r.Context(), persistence.TimeRange{
		From: domain.Day(from),
		To:   domain.Day(to),
	}, q.Get("horizon"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ledger query failed")
		log.Error().Err(err).Msg("ledger query failed")
		return
	}
	if rows == nil {
		rows = []domain.LedgerRow{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(rows),
		"rows":  rows,
	})
}

// NotFound is the JSON 404 handler.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeError(w, http.StatusNotFound, "not found")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("response encode failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
