package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/store"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export raw assignment data",
	Long: `Export every assignment of an experiment in CSV or JSON format.

Examples:
  vgoat export hero-headline --format csv > hero.csv
  vgoat export hero-headline --format json > hero.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	id := args[0]

	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}

	return withStore(func(s *store.SQLiteStore) error {
		ctx := cmd.Context()

		if _, err := s.LoadExperiment(ctx, id); err != nil {
			return fmt.Errorf("failed to get experiment: %w", err)
		}

		assignments, err := s.ListAssignments(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to list assignments: %w", err)
		}

		if exportFormat == "csv" {
			return exportCSV(cmd.OutOrStdout(), assignments)
		}
		return exportJSON(cmd.OutOrStdout(), assignments)
	})
}

func exportCSV(out io.Writer, assignments []*store.Assignment) error {
	w := csv.NewWriter(out)
	defer w.Flush()

	if err := w.Write([]string{"assigned_at", "session_id", "user_id", "variant_id", "converted", "converted_at", "conversion_value", "metrics"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, a := range assignments {
		convertedAt, value := "", ""
		if a.ConvertedAt != nil {
			convertedAt = strconv.FormatInt(a.ConvertedAt.Unix(), 10)
		}
		if a.ConversionValue != nil {
			value = strconv.FormatFloat(*a.ConversionValue, 'f', -1, 64)
		}
		metrics := ""
		if len(a.Metrics) > 0 {
			b, err := json.Marshal(a.Metrics)
			if err != nil {
				return fmt.Errorf("failed to encode metrics: %w", err)
			}
			metrics = string(b)
		}

		row := []string{
			strconv.FormatInt(a.CreatedAt.Unix(), 10),
			a.SessionID,
			a.UserID,
			a.VariantID,
			strconv.FormatBool(a.Converted),
			convertedAt,
			value,
			metrics,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	return nil
}

type jsonExport struct {
	Assignments []jsonAssignment `json:"assignments"`
}

type jsonAssignment struct {
	AssignedAt      int64              `json:"assigned_at"`
	SessionID       string             `json:"session_id"`
	UserID          string             `json:"user_id,omitempty"`
	VariantID       string             `json:"variant_id"`
	Context         map[string]string  `json:"context,omitempty"`
	Converted       bool               `json:"converted"`
	ConvertedAt     *int64             `json:"converted_at,omitempty"`
	ConversionValue *float64           `json:"conversion_value,omitempty"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
}

func exportJSON(out io.Writer, assignments []*store.Assignment) error {
	export := jsonExport{
		Assignments: make([]jsonAssignment, len(assignments)),
	}

	for i, a := range assignments {
		ja := jsonAssignment{
			AssignedAt:      a.CreatedAt.Unix(),
			SessionID:       a.SessionID,
			UserID:          a.UserID,
			VariantID:       a.VariantID,
			Context:         a.Context,
			Converted:       a.Converted,
			ConversionValue: a.ConversionValue,
			Metrics:         a.Metrics,
		}
		if a.ConvertedAt != nil {
			ts := a.ConvertedAt.Unix()
			ja.ConvertedAt = &ts
		}
		export.Assignments[i] = ja
	}
	sort.SliceStable(export.Assignments, func(i, j int) bool {
		return export.Assignments[i].AssignedAt < export.Assignments[j].AssignedAt
	})

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}
