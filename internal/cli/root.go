package cli

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	dbPath     string
)

var rootCmd = &cobra.Command{
	Use:   "vgoat",
	Short: "Variant Goat - server-side A/B experimentation engine",
	Long: `Variant Goat assigns visitors to experiment variants, tracks conversions,
reports significance and serves merged page configurations.

Settings come from vgoat.yaml (or --config) and VG_* environment variables.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./vgoat.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config)")
}
