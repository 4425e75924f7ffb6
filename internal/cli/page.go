package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/headline-goat/variant-goat/internal/pageconfig"
	"github.com/headline-goat/variant-goat/internal/store"
)

func init() {
	pageCmd := &cobra.Command{
		Use:   "page",
		Short: "Manage base page configurations",
	}
	pageCmd.AddCommand(newPageSetCmd(), newPageGetCmd())
	rootCmd.AddCommand(pageCmd)
}

func newPageSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <scope> <page> <file>",
		Short: "Store the base configuration of a page from YAML or JSON",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[2])
			if err != nil {
				return fmt.Errorf("failed to read page config: %w", err)
			}
			raw, err := pageConfigJSON(data)
			if err != nil {
				return err
			}

			return withStore(func(s *store.SQLiteStore) error {
				if err := s.SavePageConfig(cmd.Context(), args[0], args[1], raw); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved base config for %s/%s\n", args[0], args[1])
				return nil
			})
		},
	}
}

func newPageGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <scope> <page>",
		Short: "Print the base configuration of a page",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				raw, err := s.GetPageConfig(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				cfg, err := pageconfig.Parse(raw)
				if err != nil {
					return err
				}
				b, err := json.MarshalIndent(cfg, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return nil
			})
		},
	}
}

// pageConfigJSON converts a YAML or JSON page config to validated JSON.
func pageConfigJSON(data []byte) (json.RawMessage, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to parse page config: %w", err)
	}

	cfg, err := pageconfig.FromTree(tree)
	if err != nil {
		return nil, err
	}
	return json.Marshal(cfg)
}
