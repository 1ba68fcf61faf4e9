// Package index provides the HTTP handlers for submitting daily chain
// snapshots, computing index values and querying observation history,
// plus a WebSocket feed of new observations.
package index

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/vix-engine/internal/engine"
	"github.com/atmx/vix-engine/internal/model"
	"github.com/atmx/vix-engine/internal/store"
	"github.com/atmx/vix-engine/internal/vix"
)

// DefaultHistoryDays is the history window when no from date is given.
const DefaultHistoryDays = 365

// Service exposes the engine and the observation store over HTTP.
type Service struct {
	engine *engine.Engine
	store  store.Store
	now    func() time.Time
}

// NewService creates a new index service.
func NewService(eng *engine.Engine, st store.Store) *Service {
	return &Service{
		engine: eng,
		store:  st,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Routes registers the API under r, typically mounted at /api/v1.
func (s *Service) Routes(r chi.Router) {
	r.Post("/observations", s.SubmitObservation)
	r.Post("/vix", s.ComputeIndex)
	r.Get("/underlyings", s.ListUnderlyings)
	r.Get("/underlyings/{symbol}/latest", s.GetLatest)
	r.Get("/underlyings/{symbol}/history", s.GetHistory)
}

// IndexResponse is returned by POST /vix when the index is missing.
type IndexResponse struct {
	Underlying string  `json:"underlying"`
	Date       string  `json:"date"`
	VIX        *string `json:"vix"`
	Reason     string  `json:"reason"`
}

// --- HTTP Handlers ---

// SubmitObservation handles POST /api/v1/observations
// Computes, ranks and stores one day for one underlying.
func (s *Service) SubmitObservation(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeSnapshot(w, r)
	if !ok {
		return
	}

	obs, err := s.engine.Process(r.Context(), in)
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, engine.ErrOutOfOrder):
		writeError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		slog.Error("observation failed", "underlying", in.Snapshot.Underlying, "err", err)
		writeError(w, "failed to process observation", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, obs)
}

// ComputeIndex handles POST /api/v1/vix
// Computes the index for a snapshot without touching any window.
func (s *Service) ComputeIndex(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeSnapshot(w, r)
	if !ok {
		return
	}

	res, err := s.engine.Compute(&in.Snapshot)
	if err != nil {
		if !vix.IsSoft(err) {
			slog.Error("index computation failed", "underlying", in.Snapshot.Underlying, "err", err)
			writeError(w, "failed to compute index", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, IndexResponse{
			Underlying: in.Snapshot.Underlying,
			Date:       model.DayKey(in.Snapshot.Date),
			Reason:     vix.Reason(err),
		})
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// ListUnderlyings handles GET /api/v1/underlyings
func (s *Service) ListUnderlyings(w http.ResponseWriter, r *http.Request) {
	underlyings, err := s.store.ListUnderlyings(r.Context())
	if err != nil {
		writeError(w, "failed to list underlyings", http.StatusInternalServerError)
		return
	}
	if underlyings == nil {
		underlyings = []string{}
	}
	writeJSON(w, http.StatusOK, underlyings)
}

// GetLatest handles GET /api/v1/underlyings/{symbol}/latest
func (s *Service) GetLatest(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	obs, err := s.store.LatestObservation(r.Context(), symbol)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "no observations for "+symbol, http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load observation", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

// GetHistory handles GET /api/v1/underlyings/{symbol}/history?from=&to=
// Both bounds are inclusive YYYY-MM-DD dates. to defaults to today and
// from to DefaultHistoryDays before to.
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	q := r.URL.Query()

	to := model.Day(s.now())
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			writeError(w, "to must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		to = t
	}
	from := to.AddDate(0, 0, -DefaultHistoryDays)
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			writeError(w, "from must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		from = t
	}
	if from.After(to) {
		writeError(w, "from must not be after to", http.StatusBadRequest)
		return
	}

	history, err := s.store.ListObservations(r.Context(), symbol, from, to.AddDate(0, 0, 1))
	if err != nil {
		writeError(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []model.Observation{}
	}
	writeJSON(w, http.StatusOK, history)
}

func decodeSnapshot(w http.ResponseWriter, r *http.Request) (*engine.Input, bool) {
	var req SnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return nil, false
	}
	in, err := req.Input()
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return in, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
