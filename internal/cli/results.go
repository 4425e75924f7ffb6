package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/engine"
	"github.com/headline-goat/variant-goat/internal/stats"
	"github.com/headline-goat/variant-goat/internal/store"
)

var resultsCmd = &cobra.Command{
	Use:   "results <id>",
	Short: "Show detailed results for an experiment",
	Long:  `Show conversion rates, confidence intervals and significance against the control.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	id := args[0]

	return withEngine(func(e *engine.Engine, s *store.SQLiteStore) error {
		ctx := cmd.Context()

		exp, err := s.LoadExperiment(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get experiment: %w", err)
		}
		result, err := e.GetResults(ctx, id)
		if err != nil {
			return err
		}

		printResults(cmd.OutOrStdout(), exp, result)
		return nil
	})
}

func printResults(out io.Writer, exp *store.Experiment, result *stats.Result) {
	fmt.Fprintf(out, "EXPERIMENT: %s (%s)\n", exp.Name, exp.ID)
	fmt.Fprintf(out, "STATUS: %s\n", exp.Status)
	if exp.PrimaryMetric != "" {
		fmt.Fprintf(out, "METRIC: %s\n", exp.PrimaryMetric)
	}
	fmt.Fprintf(out, "PARTICIPANTS: %s\n", formatNumber(result.TotalParticipants))
	fmt.Fprintln(out)

	confPct := result.ConfidenceLevel * 100
	fmt.Fprintf(out, "VARIANT           USERS    CONVERSIONS  RATE     %.0f%% CI            LIFT     P-VALUE\n", confPct)
	fmt.Fprintln(out, strings.Repeat("─", 90))

	for _, v := range result.Variants {
		name := v.Name
		if v.IsControl {
			name += "*"
		}
		if len(name) > 16 {
			name = name[:13] + "..."
		}

		ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", v.RateCILower*100, v.RateCIUpper*100)
		if v.Participants == 0 {
			ciStr = "N/A"
		}

		lift, pValue := "-", "-"
		if !v.IsControl {
			lift = fmt.Sprintf("%+.1f%%", v.Lift*100)
			if v.PValue != nil {
				pValue = fmt.Sprintf("%.4f", *v.PValue)
			}
		}

		indicator := ""
		if result.WinnerVariantID != nil && *result.WinnerVariantID == v.VariantID {
			indicator = " ← WINNER"
		}

		fmt.Fprintf(out, "%-16s  %-7d  %-11d  %-7s  %-17s  %-7s  %s%s\n",
			name, v.Participants, v.Conversions, formatPercent(v.ConversionRate), ciStr, lift, pValue, indicator)
	}

	fmt.Fprintln(out)
	switch {
	case result.WinnerVariantID != nil && result.HasEnoughData:
		fmt.Fprintf(out, "Statistical significance: %.0f%% confident %q beats the control\n", confPct, *result.WinnerVariantID)
	case result.WinnerVariantID != nil:
		fmt.Fprintf(out, "Leading: %q is significant, but some variants are below the minimum sample size of %d\n",
			*result.WinnerVariantID, result.MinSampleSize)
	default:
		fmt.Fprintln(out, "Statistical significance: Not enough data to determine a winner")
	}
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
