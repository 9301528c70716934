package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cohort-run/cohort/internal/assign"
	"github.com/cohort-run/cohort/internal/goals"
	"github.com/cohort-run/cohort/internal/store"
)

// transparentPixel is a 1x1 transparent PNG. The goal beacon always
// returns it with a 200 so broken <img> icons never leak engine state
// onto the page.
var transparentPixel = []byte("\x89\x50\x4e\x47\x0d\x0a\x1a\x0a\x00\x00\x00\x0d\x49\x48\x44\x52" +
	"\x00\x00\x00\x01\x00\x00\x00\x01\x08\x03\x00\x00\x00\x28\xcb\x34" +
	"\xbb\x00\x00\x00\x19\x74\x45\x58\x74\x53\x6f\x66\x74\x77\x61\x72" +
	"\x65\x00\x41\x64\x6f\x62\x65\x20\x49\x6d\x61\x67\x65\x52\x65\x61" +
	"\x64\x79\x71\xc9\x65\x3c\x00\x00\x00\x06\x50\x4c\x54\x45\x00\x00" +
	"\x00\x00\x00\x00\xa5\x67\xb9\xcf\x00\x00\x00\x01\x74\x52\x4e\x53" +
	"\x00\x40\xe6\xd8\x66\x00\x00\x00\x0c\x49\x44\x41\x54\x78\xda\x62" +
	"\x60\x00\x08\x30\x00\x00\x02\x00\x01\x4f\x6d\x59\xe1\x00\x00\x00" +
	"\x00\x49\x45\x4e\x44\xae\x42\x60\x82\x00")

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	GoalTypesCount   int    `json:"goal_types_count"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	experiments, err := s.store.ListExperiments(ctx)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	goalTypes, err := s.store.ListGoalTypes(ctx)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := HealthResponse{
		Status:           "ok",
		ExperimentsCount: len(experiments),
		GoalTypesCount:   len(goalTypes),
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleGoalPixel serves GET /g/{goal}.png. Whatever happens inside,
// the response is the pixel with a 200: a goal beacon must render as an
// image on the caller's page.
func (s *Server) handleGoalPixel(w http.ResponseWriter, r *http.Request) {
	goalName := strings.TrimPrefix(r.URL.Path, "/g/")
	goalName = strings.TrimSuffix(goalName, ".png")

	if goalName != "" {
		visitor, err := s.resolver.Resolve(w, r)
		if err != nil {
			s.log.Errorw("resolve visitor", "error", err)
		} else if err := s.recorder.Record(r.Context(), goalName, visitor, r.RemoteAddr); err != nil {
			if errors.Is(err, goals.ErrUnknownGoalType) {
				s.metrics.UnknownGoals.Inc()
				s.log.Warnw("unknown goal type", "goal_type", goalName)
			} else {
				s.log.Errorw("record goal", "goal_type", goalName, "error", err)
			}
		}
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Write(transparentPixel)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.resolver.ConfirmHuman(w, r); err != nil {
		s.log.Errorw("confirm human", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type AssignResponse struct {
	Experiment string `json:"experiment"`
	Enrolled   bool   `json:"enrolled"`
	Group      string `json:"group,omitempty"`
}

// handleAssign serves GET /a?experiment=name. A visitor outside the
// experiment gets enrolled=false rather than an error status.
func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.URL.Query().Get("experiment")
	if name == "" {
		http.Error(w, "experiment parameter required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	response := AssignResponse{Experiment: name}

	exp, err := s.store.GetExperiment(ctx, name)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		s.log.Warnw("assignment for unknown experiment", "experiment", name)
		writeJSON(w, response)
		return
	}

	visitor, err := s.resolver.Resolve(w, r)
	if err != nil {
		s.log.Errorw("resolve visitor", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	group, _, err := s.assigner.Assign(ctx, exp, visitor, r.RemoteAddr)
	if err != nil {
		if errors.Is(err, assign.ErrNotEligible) {
			writeJSON(w, response)
			return
		}
		s.log.Errorw("assign visitor", "experiment", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response.Enrolled = true
	response.Group = group.String()
	writeJSON(w, response)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
