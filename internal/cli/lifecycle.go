package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/engine"
	"github.com/headline-goat/variant-goat/internal/store"
)

func init() {
	rootCmd.AddCommand(
		newTransitionCmd("start", "Start or resume an experiment", (*engine.Engine).Start),
		newTransitionCmd("pause", "Pause a running experiment", (*engine.Engine).Pause),
		newTransitionCmd("archive", "Archive an experiment", (*engine.Engine).Archive),
	)
}

type transitionFunc func(*engine.Engine, context.Context, string) (*store.Experiment, error)

func newTransitionCmd(use, short string, transition transitionFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *engine.Engine, _ *store.SQLiteStore) error {
				exp, err := transition(e, cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to %s experiment: %w", use, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Experiment '%s' is now %s\n", exp.ID, exp.Status)
				return nil
			})
		},
	}
}
