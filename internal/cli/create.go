package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cohort-run/cohort/internal/store"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var enable bool

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new experiment",
		Long: `Create a new experiment. Experiments start disabled; enable them to
begin assigning visitors.

Examples:
  cohort create signup-flow
  cohort create signup-flow --enable`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()

				exp, err := s.CreateExperiment(ctx, name)
				if err != nil {
					return fmt.Errorf("failed to create experiment: %w", err)
				}

				if enable {
					exp, err = s.SetExperimentState(ctx, name, store.StateEnabled)
					if err != nil {
						return fmt.Errorf("failed to enable experiment: %w", err)
					}
				}

				fmt.Printf("Created experiment '%s' (state: %s)\n", exp.Name, exp.State)
				if !enable {
					fmt.Printf("Enable it with: cohort enable %s\n", exp.Name)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&enable, "enable", false, "enable the experiment immediately")

	return cmd
}
