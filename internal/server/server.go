package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cohort-run/cohort/internal/assign"
	"github.com/cohort-run/cohort/internal/goals"
	"github.com/cohort-run/cohort/internal/identity"
	"github.com/cohort-run/cohort/internal/metrics"
	"github.com/cohort-run/cohort/internal/report"
	"github.com/cohort-run/cohort/internal/store"
)

type Server struct {
	store     store.Store
	resolver  *identity.Resolver
	assigner  *assign.Service
	recorder  *goals.Recorder
	builder   *report.Builder
	metrics   *metrics.Metrics
	log       *zap.SugaredLogger
	port      int
	token     string
	tokenFile string
	router    *http.ServeMux
	startTime time.Time
}

type Config struct {
	Store     store.Store
	Resolver  *identity.Resolver
	Assigner  *assign.Service
	Recorder  *goals.Recorder
	Builder   *report.Builder
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Log       *zap.SugaredLogger
	Port      int
	TokenFile string
}

func New(cfg Config) *Server {
	srv := &Server{
		store:     cfg.Store,
		resolver:  cfg.Resolver,
		assigner:  cfg.Assigner,
		recorder:  cfg.Recorder,
		builder:   cfg.Builder,
		metrics:   cfg.Metrics,
		log:       cfg.Log,
		port:      cfg.Port,
		token:     generateToken(),
		tokenFile: cfg.TokenFile,
		router:    http.NewServeMux(),
		startTime: time.Now(),
	}

	srv.setupRoutes(cfg.Registry)
	return srv
}

func (s *Server) setupRoutes(reg *prometheus.Registry) {
	// Public endpoints
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/g/", s.handleGoalPixel)
	s.router.HandleFunc("/confirm", s.handleConfirm)
	s.router.HandleFunc("/a", s.handleAssign)

	if reg != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	// Admin endpoints (protected)
	s.router.Handle("/api/experiments", s.authMiddleware(http.HandlerFunc(s.handleExperiments)))
	s.router.Handle("/api/experiments/", s.authMiddleware(http.HandlerFunc(s.handleExperimentSub)))
	s.router.Handle("/api/activity", s.authMiddleware(http.HandlerFunc(s.handleActivity)))
}

func (s *Server) Start() error {
	return s.StartWithOptions(true)
}

// StartQuiet starts the server without printing startup messages
func (s *Server) StartQuiet() error {
	return s.StartWithOptions(false)
}

func (s *Server) StartWithOptions(printMessages bool) error {
	// Write token to file for the token command
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.log.Warnw("failed to write token file", "path", s.tokenFile, "error", err)
		}
	}

	addr := fmt.Sprintf(":%d", s.port)

	if printMessages {
		fmt.Println()
		fmt.Printf("cohort running on http://localhost:%d\n", s.port)
		fmt.Printf("Admin API: http://localhost:%d/api/experiments?token=%s\n", s.port, s.token)
		fmt.Println()
		fmt.Println("Press Ctrl+C to stop")
	}

	return http.ListenAndServe(addr, s.router)
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) StartTime() time.Time {
	return s.startTime
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func generateToken() string {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a simple token if crypto/rand fails
		return "a1b2c3d4"
	}
	return hex.EncodeToString(bytes)
}
