package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/cohort-run/cohort/internal/store"
)

func init() {
	rootCmd.AddCommand(newStateCmd("enable", store.StateEnabled,
		"Enable an experiment",
		"Enable an experiment so it assigns visitors to control and test groups."))
	rootCmd.AddCommand(newStateCmd("disable", store.StateDisabled,
		"Disable an experiment",
		"Disable an experiment. Existing participants keep their groups but no\nnew visitors are enrolled and no further goals are recorded for it."))
	rootCmd.AddCommand(newPromoteCmd())
}

func newStateCmd(verb string, state store.ExperimentState, short, long string) *cobra.Command {
	return &cobra.Command{
		Use:   fmt.Sprintf("%s <name>", verb),
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setState(args[0], state)
		},
	}
}

func newPromoteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "promote <name>",
		Short: "Promote an experiment's test behavior to all traffic",
		Long: `Promote an experiment: conclude it and apply the test behavior to all
visitors. Promoted experiments never enroll new participants.

Example:
  cohort promote signup-flow`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			if !yes {
				prompt := promptui.Prompt{
					Label:     fmt.Sprintf("Promote '%s' and serve test behavior to everyone", name),
					IsConfirm: true,
				}
				if _, err := prompt.Run(); err != nil {
					if err == promptui.ErrInterrupt {
						os.Exit(0)
					}
					fmt.Println("Aborted.")
					return nil
				}
			}

			return setState(name, store.StatePromoted)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

func setState(name string, state store.ExperimentState) error {
	return withStore(func(s *store.SQLiteStore) error {
		exp, err := s.SetExperimentState(context.Background(), name, state)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("experiment '%s' not found", name)
			}
			return fmt.Errorf("failed to set state: %w", err)
		}

		fmt.Printf("Experiment '%s' is now %s\n", exp.Name, exp.State)
		return nil
	})
}
