package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/headline-goat/variant-goat/internal/config"
	"github.com/headline-goat/variant-goat/internal/stats"
	"github.com/headline-goat/variant-goat/internal/store"
)

const heroYAML = `
id: hero
scope_id: site-1
name: Hero headline
status: running
traffic_allocation: 0.5
min_sample_size: 100
targeting:
  devices: [mobile]
  pages: [home]
variants:
  - id: control
    is_control: true
  - id: bold
    name: Bold
    weight: 2
    config:
      slot_overrides:
        hero:
          props:
            title: Ship faster
`

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		dbPath = ""
	})

	err := rootCmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestFormatNumber(t *testing.T) {
	tests := map[int]string{
		0:       "0",
		999:     "999",
		1000:    "1,000",
		12345:   "12,345",
		1234567: "1,234,567",
	}
	for n, want := range tests {
		if got := formatNumber(n); got != want {
			t.Errorf("formatNumber(%d) = %s, want %s", n, got, want)
		}
	}
}

func TestFormatPercent(t *testing.T) {
	if got := formatPercent(0); got != "0%" {
		t.Errorf("expected 0%%, got %s", got)
	}
	if got := formatPercent(0.1234); got != "12.34%" {
		t.Errorf("expected 12.34%%, got %s", got)
	}
}

func TestParseDefinition_YAML(t *testing.T) {
	exp, err := parseDefinition([]byte(heroYAML))
	if err != nil {
		t.Fatalf("parseDefinition failed: %v", err)
	}

	if exp.ID != "hero" || exp.ScopeID != "site-1" {
		t.Errorf("unexpected identity: %s/%s", exp.ID, exp.ScopeID)
	}
	if exp.Status != store.StatusRunning {
		t.Errorf("expected running, got %s", exp.Status)
	}
	if exp.TrafficAllocation != 0.5 {
		t.Errorf("expected traffic 0.5, got %v", exp.TrafficAllocation)
	}
	if exp.Targeting == nil || len(exp.Targeting.Devices) != 1 || exp.Targeting.Devices[0] != "mobile" {
		t.Errorf("unexpected targeting: %+v", exp.Targeting)
	}
	if len(exp.Variants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(exp.Variants))
	}
	if exp.Variants[0].Name != "control" {
		t.Errorf("expected name to default to id, got %s", exp.Variants[0].Name)
	}

	var cfg map[string]any
	if err := json.Unmarshal(exp.Variants[1].Config, &cfg); err != nil {
		t.Fatalf("variant config is not JSON: %v", err)
	}
	if _, ok := cfg["slot_overrides"]; !ok {
		t.Errorf("expected slot_overrides in config, got %s", exp.Variants[1].Config)
	}
}

func TestParseDefinition_JSONDefaultsTraffic(t *testing.T) {
	exp, err := parseDefinition([]byte(`{"id":"e","name":"E","variants":[{"id":"A"},{"id":"B"}]}`))
	if err != nil {
		t.Fatalf("parseDefinition failed: %v", err)
	}
	if exp.TrafficAllocation != 1 {
		t.Errorf("expected default traffic 1, got %v", exp.TrafficAllocation)
	}
}

func TestParseDefinition_Segments(t *testing.T) {
	exp, err := parseDefinition([]byte(`
id: vip
name: VIP banner
targeting:
  segments: [vip, beta]
variants:
  - id: A
  - id: B
`))
	if err != nil {
		t.Fatalf("parseDefinition failed: %v", err)
	}
	if exp.Targeting == nil || len(exp.Targeting.Segments) != 2 || exp.Targeting.Segments[1] != "beta" {
		t.Errorf("unexpected targeting: %+v", exp.Targeting)
	}
}

func TestPageConfigJSON(t *testing.T) {
	raw, err := pageConfigJSON([]byte(`
page_template: classic
slots:
  - id: hero
    props: {title: Hello}
feature_flags:
  chat: true
`))
	if err != nil {
		t.Fatalf("pageConfigJSON failed: %v", err)
	}

	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if tree["page_template"] != "classic" {
		t.Errorf("expected classic template, got %v", tree["page_template"])
	}
}

func TestExportCSV(t *testing.T) {
	converted := time.Unix(1700000100, 0)
	value := 19.99
	assignments := []*store.Assignment{
		{SessionID: "s1", VariantID: "A", CreatedAt: time.Unix(1700000000, 0)},
		{SessionID: "s2", VariantID: "B", CreatedAt: time.Unix(1700000050, 0),
			Converted: true, ConvertedAt: &converted, ConversionValue: &value,
			Metrics: map[string]float64{"clicks": 3}},
	}

	var buf bytes.Buffer
	if err := exportCSV(&buf, assignments); err != nil {
		t.Fatalf("exportCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "assigned_at,session_id") {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if lines[1] != "1700000000,s1,,A,false,,," {
		t.Errorf("unexpected row: %s", lines[1])
	}
	if !strings.Contains(lines[2], "1700000100,19.99") {
		t.Errorf("expected conversion fields in row: %s", lines[2])
	}
}

func TestExportJSON(t *testing.T) {
	assignments := []*store.Assignment{
		{SessionID: "s1", VariantID: "A", CreatedAt: time.Unix(1700000000, 0)},
	}

	var buf bytes.Buffer
	if err := exportJSON(&buf, assignments); err != nil {
		t.Fatalf("exportJSON failed: %v", err)
	}

	var out jsonExport
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(out.Assignments) != 1 || out.Assignments[0].SessionID != "s1" {
		t.Errorf("unexpected export: %+v", out)
	}
}

func TestPrintResults_Winner(t *testing.T) {
	exp := &store.Experiment{ID: "hero", Name: "Hero", Status: store.StatusRunning}
	winner := "B"
	p := 0.0001
	result := &stats.Result{
		ConfidenceLevel:   0.95,
		HasEnoughData:     true,
		TotalParticipants: 2000,
		WinnerVariantID:   &winner,
		Variants: []stats.VariantResult{
			{VariantID: "A", Name: "Control", IsControl: true, Participants: 1000, Conversions: 50, ConversionRate: 0.05},
			{VariantID: "B", Name: "Treatment", Participants: 1000, Conversions: 100, ConversionRate: 0.1, Lift: 1, PValue: &p},
		},
	}

	var buf bytes.Buffer
	printResults(&buf, exp, result)
	output := buf.String()

	for _, expected := range []string{"EXPERIMENT: Hero (hero)", "PARTICIPANTS: 2,000", "Control*", "+100.0%", "← WINNER", `"B" beats the control`} {
		if !strings.Contains(output, expected) {
			t.Errorf("output missing %q\n\nGot:\n%s", expected, output)
		}
	}
}

func TestCommands_EndToEnd(t *testing.T) {
	t.Setenv("VG_EVENTS_BACKEND", "none")
	db := filepath.Join(t.TempDir(), "cli.db")
	def := writeFile(t, "hero.yaml", heroYAML)

	out, err := runCLI(t, "--db", db, "create", def)
	if err != nil {
		t.Fatalf("create failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Created experiment 'Hero headline' (hero) with 2 variants") {
		t.Errorf("unexpected create output:\n%s", out)
	}

	out, err = runCLI(t, "--db", db, "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "hero") || !strings.Contains(out, "RUNNING") {
		t.Errorf("unexpected list output:\n%s", out)
	}

	out, err = runCLI(t, "--db", db, "pause", "hero")
	if err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if !strings.Contains(out, "is now paused") {
		t.Errorf("unexpected pause output:\n%s", out)
	}

	out, err = runCLI(t, "--db", db, "complete", "hero", "--winner", "bold")
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if !strings.Contains(out, "Declared winner for 'hero': bold") {
		t.Errorf("unexpected complete output:\n%s", out)
	}

	if _, err := runCLI(t, "--db", db, "start", "hero"); err == nil {
		t.Error("expected starting a completed experiment to fail")
	}
}

func TestPageSetAndDecide(t *testing.T) {
	t.Setenv("VG_EVENTS_BACKEND", "none")
	db := filepath.Join(t.TempDir(), "cli.db")
	page := writeFile(t, "home.yaml", "page_template: classic\nslots:\n  - id: hero\n    props: {title: Hello}\n")

	out, err := runCLI(t, "--db", db, "page", "set", "site-1", "home", page)
	if err != nil {
		t.Fatalf("page set failed: %v\n%s", err, out)
	}

	out, err = runCLI(t, "--db", db, "decide", "site-1", "home", "s1")
	if err != nil {
		t.Fatalf("decide failed: %v", err)
	}
	if !strings.Contains(out, `"page_template": "classic"`) {
		t.Errorf("expected base config in decide output:\n%s", out)
	}
}

func TestNewPublisher(t *testing.T) {
	tests := []struct {
		backend string
		want    string
	}{
		{"none", "events.Nop"},
		{"log", "*events.LogPublisher"},
		{"kafka", "*events.KafkaPublisher"},
		{"log,kafka", "events.Multi"},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			p := newPublisher(config.EventsConfig{
				Backend: tt.backend,
				Kafka:   config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"},
			}, zap.NewNop())
			defer p.Close()

			if got := fmt.Sprintf("%T", p); got != tt.want {
				t.Errorf("newPublisher(%q) = %s, want %s", tt.backend, got, tt.want)
			}
		})
	}
}
