package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cohort-run/cohort/internal/identity"
	"github.com/cohort-run/cohort/internal/store"
)

const dateLayout = "2006-01-02"

type ExperimentResponse struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

func experimentResponse(exp *store.Experiment) ExperimentResponse {
	resp := ExperimentResponse{Name: exp.Name, State: exp.State.String()}
	if exp.StartDate != nil {
		resp.StartDate = exp.StartDate.Format(dateLayout)
	}
	if exp.EndDate != nil {
		resp.EndDate = exp.EndDate.Format(dateLayout)
	}
	return resp
}

// handleExperiments serves GET (list) and POST (create) on /api/experiments.
func (s *Server) handleExperiments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		experiments, err := s.store.ListExperiments(ctx)
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		response := make([]ExperimentResponse, 0, len(experiments))
		for _, exp := range experiments {
			response = append(response, experimentResponse(exp))
		}
		writeJSON(w, response)

	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		if req.Name == "" {
			http.Error(w, "name required", http.StatusBadRequest)
			return
		}
		exp, err := s.store.CreateExperiment(ctx, req.Name)
		if err != nil {
			s.log.Errorw("create experiment", "experiment", req.Name, "error", err)
			http.Error(w, "Failed to create experiment", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, experimentResponse(exp))

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleExperimentSub routes /api/experiments/{name}/daily and
// /api/experiments/{name}/state.
func (s *Server) handleExperimentSub(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/experiments/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	name, action := parts[0], parts[1]

	exp, err := s.store.GetExperiment(r.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Experiment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	switch action {
	case "daily":
		s.handleDaily(w, r, exp)
	case "state":
		s.handleState(w, r, exp)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request, exp *store.Experiment) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start, end, ok := exp.ReportWindow(time.Now())
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			http.Error(w, "Invalid start date", http.StatusBadRequest)
			return
		}
		start, ok = t, true
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			http.Error(w, "Invalid end date", http.StatusBadRequest)
			return
		}
		end = t
	}
	if !ok || end.Before(start) {
		writeJSON(w, []struct{}{})
		return
	}

	entries, err := s.builder.TimeSeries(r.Context(), exp, start, end)
	if err != nil {
		s.log.Errorw("build time series", "experiment", exp.Name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, entries)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request, exp *store.Experiment) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	state, err := store.ParseState(req.State)
	if err != nil {
		http.Error(w, "Invalid state", http.StatusBadRequest)
		return
	}

	updated, err := s.store.SetExperimentState(r.Context(), exp.Name, state)
	if err != nil {
		s.log.Errorw("set experiment state", "experiment", exp.Name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, experimentResponse(updated))
}

// handleActivity ingests activity scores from an external tracker.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		UserID      string  `json:"user_id,omitempty"`
		AnonymousID string  `json:"anonymous_id,omitempty"`
		Date        string  `json:"date"`
		Score       float64 `json:"score"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	var visitor identity.Identity
	switch {
	case req.UserID != "":
		visitor = identity.Authenticated(req.UserID)
	case req.AnonymousID != "":
		visitor = identity.Anonymous(req.AnonymousID)
	default:
		http.Error(w, "user_id or anonymous_id required", http.StatusBadRequest)
		return
	}

	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		http.Error(w, "Invalid date", http.StatusBadRequest)
		return
	}

	if err := s.store.InsertActivityScore(r.Context(), visitor, date, req.Score); err != nil {
		s.log.Errorw("insert activity score", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
