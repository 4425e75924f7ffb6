package cli

import (
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/engine"
	"github.com/headline-goat/variant-goat/internal/store"
)

func init() {
	rootCmd.AddCommand(newCompleteCmd())
}

func newCompleteCmd() *cobra.Command {
	var (
		winner   string
		noWinner bool
	)

	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete an experiment, optionally declaring a winner",
		Long: `Complete a running or paused experiment.

Without --winner or --no-winner you are asked to pick the winning variant.

Examples:
  vgoat complete hero-headline --winner bold
  vgoat complete hero-headline --no-winner`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			return withEngine(func(e *engine.Engine, s *store.SQLiteStore) error {
				ctx := cmd.Context()

				var winnerID *string
				switch {
				case noWinner:
				case winner != "":
					winnerID = &winner
				default:
					exp, err := s.LoadExperiment(ctx, id)
					if err != nil {
						return err
					}
					picked, err := promptWinner(exp)
					if err != nil {
						return err
					}
					winnerID = picked
				}

				exp, err := e.Complete(ctx, id, winnerID)
				if err != nil {
					return fmt.Errorf("failed to complete experiment: %w", err)
				}

				out := cmd.OutOrStdout()
				if exp.WinnerVariantID != nil {
					fmt.Fprintf(out, "Declared winner for '%s': %s\n", exp.ID, *exp.WinnerVariantID)
				}
				fmt.Fprintln(out, "Experiment has been marked as completed.")
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&winner, "winner", "w", "", "winning variant id")
	cmd.Flags().BoolVar(&noWinner, "no-winner", false, "complete without declaring a winner")
	cmd.MarkFlagsMutuallyExclusive("winner", "no-winner")

	return cmd
}

func promptWinner(exp *store.Experiment) (*string, error) {
	items := []string{"(no winner)"}
	for _, v := range exp.Variants {
		items = append(items, fmt.Sprintf("%s - %s", v.ID, v.Name))
	}

	prompt := promptui.Select{
		Label: "Winning variant",
		Items: items,
		Size:  len(items),
	}

	idx, _, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return nil, err
	}
	if idx == 0 {
		return nil, nil
	}
	id := exp.Variants[idx-1].ID
	return &id, nil
}
