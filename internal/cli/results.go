package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cohort-run/cohort/internal/logger"
	"github.com/cohort-run/cohort/internal/report"
	"github.com/cohort-run/cohort/internal/store"
)

var resultsDays int

var resultsCmd = &cobra.Command{
	Use:   "results <name>",
	Short: "Show detailed results for an experiment",
	Long: `Show conversion rates per goal type and the daily engagement series
for an experiment.

Example:
  cohort results signup-flow --days 14`,
	Args: cobra.ExactArgs(1),
	RunE: runResults,
}

func init() {
	resultsCmd.Flags().IntVar(&resultsDays, "days", 7, "days of the daily series to show")
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	name := args[0]

	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		exp, err := s.GetExperiment(ctx, name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("experiment '%s' not found", name)
			}
			return fmt.Errorf("failed to get experiment: %w", err)
		}

		fmt.Printf("EXPERIMENT: %s\n", exp.Name)
		fmt.Printf("STATE: %s\n", exp.State)
		if exp.StartDate != nil {
			fmt.Printf("STARTED: %s\n", exp.StartDate.Format("2006-01-02"))
		}
		fmt.Println()

		start, end, ok := exp.ReportWindow(time.Now())
		if !ok {
			fmt.Println("No report window yet. Enable the experiment and wait a day.")
			return nil
		}
		if span := int(end.Sub(start).Hours()/24) + 1; span > resultsDays {
			start = end.AddDate(0, 0, -(resultsDays - 1))
		}

		builder := report.NewBuilder(s, report.NewEngine(s, s), logger.Nop())
		entries, err := builder.TimeSeries(ctx, exp, start, end)
		if err != nil {
			return fmt.Errorf("failed to build results: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("No data yet.")
			return nil
		}

		// Entries come newest first; the first one is the latest day.
		printConversion(cmd, entries[0])
		fmt.Println()
		printEngagement(cmd, entries)
		return nil
	})
}

func printConversion(cmd *cobra.Command, latest report.DailyEntry) {
	fmt.Printf("CONVERSIONS (through %s)\n", latest.Date.Format("2006-01-02"))

	conv := latest.Conversion
	if conv == nil || (conv.ControlGroupSize == 0 && conv.TestGroupSize == 0) {
		fmt.Println("  No participants yet.")
		return
	}
	fmt.Printf("  control group: %d participants, test group: %d participants\n",
		conv.ControlGroupSize, conv.TestGroupSize)
	fmt.Println()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GOAL\tCONTROL\tTEST\tCONTROL RATE\tTEST RATE\tIMPROVEMENT\tCONFIDENCE")

	names := make([]string, 0, len(conv.GoalTypes))
	for name := range conv.GoalTypes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		printGoalRow(w, name, conv.GoalTypes[name])
	}
	printGoalRow(w, "(all)", conv.Totals)
	w.Flush()
}

func printGoalRow(w *tabwriter.Writer, name string, g report.GoalData) {
	fmt.Fprintf(w, "%s\t%d\t%d\t%.2f%%\t%.2f%%\t%s\t%s\n",
		name,
		g.ControlCount,
		g.TestCount,
		g.ControlRate*100,
		g.TestRate*100,
		formatSigned(g.Improvement),
		formatFloat(g.Confidence),
	)
}

func printEngagement(cmd *cobra.Command, entries []report.DailyEntry) {
	fmt.Println("DAILY ENGAGEMENT")

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tCONTROL\tTEST\tCONTROL SCORE\tTEST SCORE\tIMPROVEMENT\tCONFIDENCE")

	for _, entry := range entries {
		a := entry.Activity
		if a == nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\t-\n", entry.Date.Format("2006-01-02"))
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			entry.Date.Format("2006-01-02"),
			a.ControlGroupSize,
			a.TestGroupSize,
			formatFloat(a.ControlScore),
			formatFloat(a.TestScore),
			formatSigned(a.Improvement),
			formatFloat(a.Confidence),
		)
	}
	w.Flush()
}

func formatFloat(f *float64) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *f)
}

func formatSigned(f *float64) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%+.1f%%", *f)
}
