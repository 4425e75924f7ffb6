package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/headline-goat/variant-goat/internal/engine"
	"github.com/headline-goat/variant-goat/internal/store"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

// definition is the on-disk shape of an experiment. JSON files parse too,
// since YAML is a superset.
type definition struct {
	ID                string               `yaml:"id"`
	ScopeID           string               `yaml:"scope_id"`
	Name              string               `yaml:"name"`
	Status            string               `yaml:"status"`
	TrafficAllocation *float64             `yaml:"traffic_allocation"`
	PrimaryMetric     string               `yaml:"primary_metric"`
	MinSampleSize     int                  `yaml:"min_sample_size"`
	ConfidenceLevel   float64              `yaml:"confidence_level"`
	StartDate         *time.Time           `yaml:"start_date"`
	EndDate           *time.Time           `yaml:"end_date"`
	Targeting         *targetingDefinition `yaml:"targeting"`
	Variants          []variantDefinition  `yaml:"variants"`
}

type targetingDefinition struct {
	Devices         []string `yaml:"devices"`
	Countries       []string `yaml:"countries"`
	NewVisitorsOnly bool     `yaml:"new_visitors_only"`
	Pages           []string `yaml:"pages"`
	Segments        []string `yaml:"segments"`
}

type variantDefinition struct {
	ID        string         `yaml:"id"`
	Name      string         `yaml:"name"`
	Weight    float64        `yaml:"weight"`
	IsControl bool           `yaml:"is_control"`
	Config    map[string]any `yaml:"config"`
}

func parseDefinition(data []byte) (*store.Experiment, error) {
	var def definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse experiment definition: %w", err)
	}

	exp := &store.Experiment{
		ID:                def.ID,
		ScopeID:           def.ScopeID,
		Name:              def.Name,
		Status:            store.Status(def.Status),
		TrafficAllocation: 1,
		PrimaryMetric:     def.PrimaryMetric,
		MinSampleSize:     def.MinSampleSize,
		ConfidenceLevel:   def.ConfidenceLevel,
		StartDate:         def.StartDate,
		EndDate:           def.EndDate,
	}
	if def.TrafficAllocation != nil {
		exp.TrafficAllocation = *def.TrafficAllocation
	}
	if t := def.Targeting; t != nil {
		exp.Targeting = &store.TargetingRules{
			Devices:         t.Devices,
			Countries:       t.Countries,
			NewVisitorsOnly: t.NewVisitorsOnly,
			Pages:           t.Pages,
			Segments:        t.Segments,
		}
	}

	for _, vd := range def.Variants {
		v := store.Variant{ID: vd.ID, Name: vd.Name, Weight: vd.Weight, IsControl: vd.IsControl}
		if v.Name == "" {
			v.Name = v.ID
		}
		if vd.Config != nil {
			raw, err := json.Marshal(vd.Config)
			if err != nil {
				return nil, fmt.Errorf("variant %s config: %w", vd.ID, err)
			}
			v.Config = raw
		}
		exp.Variants = append(exp.Variants, v)
	}
	return exp, nil
}

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <file>",
		Short: "Create an experiment from a YAML or JSON definition",
		Long: `Create an experiment from a YAML or JSON definition file.

Example definition:
  id: hero-headline
  scope_id: site-1
  name: Hero headline
  traffic_allocation: 0.5
  targeting:
    pages: [home]
  variants:
    - id: control
      is_control: true
    - id: bold
      config:
        slot_overrides:
          hero:
            props: {title: "Ship faster"}

Examples:
  vgoat create hero.yaml
  vgoat create hero.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read definition: %w", err)
			}
			exp, err := parseDefinition(data)
			if err != nil {
				return err
			}

			return withEngine(func(e *engine.Engine, _ *store.SQLiteStore) error {
				if err := e.CreateExperiment(cmd.Context(), exp); err != nil {
					return fmt.Errorf("failed to create experiment: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created experiment '%s' (%s) with %d variants:\n", exp.Name, exp.ID, len(exp.Variants))
				control, _ := exp.Control()
				for _, v := range exp.Variants {
					marker := ""
					if v.ID == control.ID {
						marker = " (control)"
					}
					fmt.Fprintf(out, "  %s: %s weight=%g%s\n", v.ID, v.Name, v.Weight, marker)
				}
				fmt.Fprintf(out, "  Status: %s\n", exp.Status)
				return nil
			})
		},
	}
	return cmd
}
