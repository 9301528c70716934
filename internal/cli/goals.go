package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cohort-run/cohort/internal/store"
)

var goalsCmd = &cobra.Command{
	Use:   "goals",
	Short: "Manage goal types",
}

var goalsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a new goal type",
	Long: `Register a goal type. Goal beacons naming an unregistered type are
dropped.

Example:
  cohort goals add purchase`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *store.SQLiteStore) error {
			gt, err := s.CreateGoalType(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to create goal type: %w", err)
			}
			fmt.Printf("Created goal type '%s'\n", gt.Name)
			return nil
		})
	},
}

var goalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered goal types",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *store.SQLiteStore) error {
			goalTypes, err := s.ListGoalTypes(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list goal types: %w", err)
			}

			if len(goalTypes) == 0 {
				fmt.Println("No goal types yet.")
				fmt.Println()
				fmt.Println("Register one with: cohort goals add <name>")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME")
			for _, gt := range goalTypes {
				fmt.Fprintf(w, "%d\t%s\n", gt.ID, gt.Name)
			}
			w.Flush()
			return nil
		})
	},
}

func init() {
	goalsCmd.AddCommand(goalsAddCmd)
	goalsCmd.AddCommand(goalsListCmd)
	rootCmd.AddCommand(goalsCmd)
}
