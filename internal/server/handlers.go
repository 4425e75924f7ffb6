package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/headline-goat/variant-goat/internal/allocation"
	"github.com/headline-goat/variant-goat/internal/engine"
	"github.com/headline-goat/variant-goat/internal/pageconfig"
	"github.com/headline-goat/variant-goat/internal/store"
)

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Error("database unreachable", zap.Error(err))
		http.Error(w, "Database unavailable", http.StatusServiceUnavailable)
		return
	}

	experiments, err := s.store.ListExperiments(r.Context())
	if err != nil {
		s.log.Error("health check failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		ExperimentsCount: len(experiments),
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	})
}

type DecideResponse struct {
	Config  *pageconfig.Config      `json:"config"`
	Applied []engine.AppliedVariant `json:"applied"`
}

// handleDecide returns the merged page configuration for a session:
// GET /api/decide?scope=..&page=..&session=..[&device=..&country=..&returning=..&user=..]
func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "GET, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	scope, page, session := q.Get("scope"), q.Get("page"), q.Get("session")
	if scope == "" || page == "" || session == "" {
		http.Error(w, "scope, page and session parameters required", http.StatusBadRequest)
		return
	}

	cfg, applied, err := s.engine.Decide(r.Context(), scope, page, session, visitorFromQuery(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DecideResponse{Config: cfg, Applied: applied})
}

// handleAssignment resolves a single experiment:
// GET /api/assignment?experiment=..&session=..
func (s *Server) handleAssignment(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "GET, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	experimentID, session := q.Get("experiment"), q.Get("session")
	if experimentID == "" || session == "" {
		http.Error(w, "experiment and session parameters required", http.StatusBadRequest)
		return
	}

	d, err := s.engine.GetAssignment(r.Context(), experimentID, session, visitorFromQuery(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// BeaconRequest is a conversion or metric event sent by a page.
type BeaconRequest struct {
	ExperimentID string             `json:"experiment_id"`
	SessionID    string             `json:"session_id"`
	Event        string             `json:"event"` // "convert" or "metric"
	Value        *float64           `json:"value,omitempty"`
	Metric       string             `json:"metric,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

type BeaconResponse struct {
	AlreadyConverted bool `json:"already_converted"`
}

func (s *Server) handleBeacon(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "POST, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req BeaconRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ExperimentID == "" || req.SessionID == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	switch req.Event {
	case "convert":
		res, err := s.engine.TrackConversion(r.Context(), req.ExperimentID, req.SessionID, req.Value, req.Metrics)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, BeaconResponse{AlreadyConverted: res.AlreadyConverted})

	case "metric":
		if req.Metric == "" || req.Value == nil {
			http.Error(w, "metric and value required", http.StatusBadRequest)
			return
		}
		if err := s.engine.TrackMetric(r.Context(), req.ExperimentID, req.SessionID, req.Metric, *req.Value); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Invalid event type", http.StatusBadRequest)
	}
}

// handleResults serves GET /api/results/{id}
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/results/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "Experiment id required", http.StatusBadRequest)
		return
	}

	result, err := s.engine.GetResults(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func visitorFromQuery(r *http.Request) allocation.VisitorContext {
	q := r.URL.Query()
	vctx := allocation.VisitorContext{
		UserID:     q.Get("user"),
		DeviceType: allocation.DeviceType(q.Get("device")),
		Country:    strings.ToUpper(q.Get("country")),
	}
	if v := q.Get("returning"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			vctx.ReturningVisitor = &b
		}
	}
	if v := q.Get("segments"); v != "" {
		vctx.Segments = strings.Split(v, ",")
	}
	return vctx
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "Experiment not found", http.StatusNotFound)
	case errors.Is(err, store.ErrAssignmentNotFound):
		http.Error(w, "Assignment not found", http.StatusNotFound)
	case errors.Is(err, store.ErrInvalidExperimentState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		s.log.Error("request failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func setCORS(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
