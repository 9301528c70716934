package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cohort-run/cohort/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	Long:  `List all experiments with their state, group sizes and report window.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		experiments, err := s.ListExperiments(ctx)
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		if len(experiments) == 0 {
			fmt.Println("No experiments yet.")
			fmt.Println()
			fmt.Println("Create one with: cohort create <name>")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTATE\tCONTROL\tTEST\tSTART\tEND")

		today := store.DateOf(time.Now())
		for _, exp := range experiments {
			sizes, err := s.GroupSizes(ctx, exp.ID, today)
			if err != nil {
				return fmt.Errorf("failed to get group sizes for %s: %w", exp.Name, err)
			}

			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
				exp.Name,
				strings.ToUpper(exp.State.String()),
				sizes.Control,
				sizes.Test,
				formatDate(exp.StartDate),
				formatDate(exp.EndDate),
			)
		}

		w.Flush()
		return nil
	})
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}
