package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/allocation"
	"github.com/headline-goat/variant-goat/internal/engine"
	"github.com/headline-goat/variant-goat/internal/store"
)

func init() {
	rootCmd.AddCommand(newDecideCmd())
}

func newDecideCmd() *cobra.Command {
	var (
		device    string
		country   string
		userID    string
		returning bool
		segments  []string
	)

	cmd := &cobra.Command{
		Use:   "decide <scope> <page> <session>",
		Short: "Print the merged page configuration for a session",
		Long: `Resolve every active experiment on a page for one session and print the
merged configuration. Assignments made here are persisted like any other.

Example:
  vgoat decide site-1 home session-123 --device mobile --country US`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			vctx := allocation.VisitorContext{
				UserID:     userID,
				DeviceType: allocation.DeviceType(device),
				Country:    country,
				Segments:   segments,
			}
			if cmd.Flags().Changed("returning") {
				vctx.ReturningVisitor = &returning
			}

			return withEngine(func(e *engine.Engine, _ *store.SQLiteStore) error {
				cfg, applied, err := e.Decide(cmd.Context(), args[0], args[1], args[2], vctx)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for _, a := range applied {
					fmt.Fprintf(out, "# %s -> %s\n", a.ExperimentID, a.VariantID)
				}
				b, err := json.MarshalIndent(cfg, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(b))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&device, "device", "", "device type (mobile, tablet, desktop)")
	cmd.Flags().StringVar(&country, "country", "", "ISO country code")
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().BoolVar(&returning, "returning", false, "visitor has been seen before")
	cmd.Flags().StringSliceVar(&segments, "segments", nil, "visitor segments, comma separated")

	return cmd
}
