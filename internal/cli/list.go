package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	Long:  `List all experiments with their status and participation.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		ctx := cmd.Context()

		experiments, err := s.ListExperiments(ctx)
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(experiments) == 0 {
			fmt.Fprintln(out, "No experiments yet.")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Create one from a definition file:")
			fmt.Fprintln(out, "  vgoat create experiment.yaml")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSCOPE\tSTATUS\tVARIANTS\tTRAFFIC\tPARTICIPANTS\tCONVERSIONS\tCREATED")

		for _, exp := range experiments {
			assignments, err := s.ListAssignments(ctx, exp.ID)
			if err != nil {
				return fmt.Errorf("failed to list assignments for %s: %w", exp.ID, err)
			}
			conversions := 0
			for _, a := range assignments {
				if a.Converted {
					conversions++
				}
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
				exp.ID,
				exp.Name,
				exp.ScopeID,
				strings.ToUpper(string(exp.Status)),
				len(exp.Variants),
				formatPercent(exp.TrafficAllocation),
				formatNumber(len(assignments)),
				formatNumber(conversions),
				exp.CreatedAt.Format("2006-01-02"),
			)
		}

		return w.Flush()
	})
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}
