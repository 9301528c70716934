package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cohort-run/cohort/internal/analytics"
	"github.com/cohort-run/cohort/internal/assign"
	"github.com/cohort-run/cohort/internal/goals"
	"github.com/cohort-run/cohort/internal/identity"
	"github.com/cohort-run/cohort/internal/logger"
	"github.com/cohort-run/cohort/internal/metrics"
	"github.com/cohort-run/cohort/internal/report"
	"github.com/cohort-run/cohort/internal/server"
	"github.com/cohort-run/cohort/internal/store"
)

var (
	port         int
	analyticsURL string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the cohort HTTP server.

The server provides:
  - Goal tracking pixel and group assignment endpoints
  - Admin API for experiments and daily reports
  - Health check and Prometheus metrics endpoints

A background job rebuilds daily engagement reports after each UTC
midnight.

Example:
  cohort serve --port 8080`,
	RunE: runServe,
}

func init() {
	defaultPort := 8080
	if p := os.Getenv("COHORT_PORT"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil {
			defaultPort = parsed
		}
	}

	serveCmd.Flags().IntVarP(&port, "port", "p", defaultPort, "port to listen on")
	serveCmd.Flags().StringVar(&analyticsURL, "analytics-url", os.Getenv("COHORT_ANALYTICS_URL"), "endpoint for forwarded analytics events (optional)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log, err := logger.New(logMode)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	var sink analytics.Sink = analytics.NopSink{}
	if analyticsURL != "" {
		sink = analytics.NewHTTPSink(analyticsURL)
	}
	forwarder := analytics.New(sink, 256, log, analytics.WithDropHook(m.AnalyticsDropped.Inc))
	defer forwarder.Close()

	assigner := assign.NewService(s, forwarder, log, assign.WithEnrollHook(func(group store.Group) {
		m.Enrollments.WithLabelValues(group.String()).Inc()
	}))
	recorder := goals.NewRecorder(s, forwarder, log, goals.WithRecordHook(func(goalType string) {
		m.GoalsRecorded.WithLabelValues(goalType).Inc()
	}))
	builder := report.NewBuilder(s, report.NewEngine(s, s), log, report.WithBuildHook(m.ReportsBuilt.Inc))

	go runReportLoop(context.Background(), builder, log)

	srv := server.New(server.Config{
		Store:     s,
		Resolver:  identity.NewResolver(s),
		Assigner:  assigner,
		Recorder:  recorder,
		Builder:   builder,
		Registry:  registry,
		Metrics:   m,
		Log:       log,
		Port:      port,
		TokenFile: getTokenFilePath(),
	})
	return srv.Start()
}

// runReportLoop rebuilds yesterday's engagement reports shortly after
// each UTC midnight. The build is idempotent, so running again after a
// restart only refreshes the same rows.
func runReportLoop(ctx context.Context, builder *report.Builder, log *zap.SugaredLogger) {
	run := func() {
		yesterday := store.DateOf(time.Now()).AddDate(0, 0, -1)
		if err := builder.RunDaily(ctx, yesterday); err != nil {
			log.Errorw("daily report run failed", "date", yesterday.Format("2006-01-02"), "error", err)
		}
	}

	run()
	for {
		now := time.Now().UTC()
		next := store.DateOf(now).AddDate(0, 0, 1).Add(30 * time.Minute)
		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
			run()
		}
	}
}
