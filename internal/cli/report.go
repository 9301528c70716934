package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cohort-run/cohort/internal/logger"
	"github.com/cohort-run/cohort/internal/report"
	"github.com/cohort-run/cohort/internal/store"
)

var reportDate string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build daily engagement reports",
	Long: `Build and persist the daily engagement report for every experiment
whose report window covers the given date. Rebuilding an existing day
overwrites it in place.

Examples:
  cohort report
  cohort report --date 2026-08-15`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportDate, "date", "", "report date (YYYY-MM-DD, default yesterday)")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	date := store.DateOf(time.Now()).AddDate(0, 0, -1)
	if reportDate != "" {
		parsed, err := time.Parse("2006-01-02", reportDate)
		if err != nil {
			return fmt.Errorf("invalid date %q: use YYYY-MM-DD", reportDate)
		}
		date = store.DateOf(parsed)
	}

	log, err := logger.New(logMode)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	return withStore(func(s *store.SQLiteStore) error {
		builder := report.NewBuilder(s, report.NewEngine(s, s), log)
		if err := builder.RunDaily(context.Background(), date); err != nil {
			return fmt.Errorf("failed to build reports: %w", err)
		}
		fmt.Printf("Built engagement reports for %s\n", date.Format("2006-01-02"))
		return nil
	})
}
