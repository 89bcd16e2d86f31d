package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/quantprep/openprep/internal/artifact"
	"github.com/quantprep/openprep/internal/store"
)

type handlers struct {
	artifacts *artifact.Writer
	regime    RegimeSource
	runs      store.RunRepo
	metrics   http.Handler
}

func newHandlers(deps Deps) *handlers {
	return &handlers{
		artifacts: deps.Artifacts,
		regime:    deps.Regime,
		runs:      deps.Runs,
		metrics:   deps.Metrics,
	}
}

type errorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error:     http.StatusText(status),
		Code:      code,
		Message:   message,
		RequestID: requestIDFrom(r),
		Timestamp: time.Now().UTC(),
	})
}

// Health reports liveness plus the ID of the last completed run, if any.
func (h *handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	}
	if h.artifacts != nil {
		if latest, err := h.artifacts.ReadLatest(); err == nil {
			resp["last_run_id"] = latest.RunID
			resp["last_run_at"] = latest.GeneratedAt
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Regime serves the most recent regime classification.
func (h *handlers) Regime(w http.ResponseWriter, r *http.Request) {
	if h.regime == nil {
		writeError(w, r, http.StatusServiceUnavailable, "regime_unavailable",
			"No regime source is wired")
		return
	}
	cls, ok := h.regime.LastClassification()
	if !ok {
		writeError(w, r, http.StatusNotFound, "no_classification",
			"No regime has been classified yet")
		return
	}
	writeJSON(w, http.StatusOK, cls)
}

// ResultsLatest serves the latest run artifact.
func (h *handlers) ResultsLatest(w http.ResponseWriter, r *http.Request) {
	a, err := h.artifacts.ReadLatest()
	if err != nil {
		writeError(w, r, http.StatusNotFound, "no_results",
			"No run artifact has been written yet")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ResultsByID serves one historical run artifact by ID.
func (h *handlers) ResultsByID(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runID"]
	a, err := h.artifacts.ReadRun(runID)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "run_not_found",
			"No artifact exists for run "+runID)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Runs lists run history rows from the database, newest first.
func (h *handlers) Runs(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, r, http.StatusServiceUnavailable, "history_disabled",
			"Run history persistence is not enabled")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	recs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "history_query_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": recs, "count": len(recs)})
}

// NotFound handles unknown routes.
func (h *handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "endpoint_not_found",
		"The requested endpoint does not exist")
}
