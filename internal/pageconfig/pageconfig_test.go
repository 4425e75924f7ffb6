package pageconfig_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/variant-goat/internal/pageconfig"
)

const baseJSON = `{
	"page_template": "default",
	"slots": [
		{"id": "hero", "component": "Hero", "props": {"title": "Welcome", "subtitle": "Hi"}},
		{"id": "grid", "component": "ProductGrid", "props": {"columns": 3}}
	],
	"styles": {"primary": "#000"},
	"feature_flags": {"reviews": true},
	"layout": "wide"
}`

func parseBase(t *testing.T) *pageconfig.Config {
	t.Helper()
	cfg, err := pageconfig.Parse(json.RawMessage(baseJSON))
	require.NoError(t, err)
	return cfg
}

func apply(t *testing.T, cfg *pageconfig.Config, payload string) *pageconfig.Config {
	t.Helper()
	vc, ignored := pageconfig.ParseVariantConfig(json.RawMessage(payload))
	require.Empty(t, ignored)
	require.NoError(t, cfg.Apply(vc))
	return cfg
}

func TestParse(t *testing.T) {
	cfg := parseBase(t)

	assert.Equal(t, "default", cfg.PageTemplate)
	require.Len(t, cfg.Slots, 2)
	assert.Equal(t, "hero", cfg.Slots[0].ID())
	assert.Equal(t, "Welcome", cfg.Slots[0].Props()["title"])
	assert.Equal(t, "wide", cfg.Extra["layout"])

	empty, err := pageconfig.Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Slots)
}

func TestParse_KeyedSlots(t *testing.T) {
	cfg, err := pageconfig.Parse(json.RawMessage(`{"slots": {"b": {"x": 1}, "a": {"x": 2}}}`))
	require.NoError(t, err)

	require.Len(t, cfg.Slots, 2)
	assert.Equal(t, "a", cfg.Slots[0].ID())
	assert.Equal(t, "b", cfg.Slots[1].ID())
}

func TestParse_Invalid(t *testing.T) {
	_, err := pageconfig.Parse(json.RawMessage(`{"slots": "nope"}`))
	assert.Error(t, err)

	_, err = pageconfig.Parse(json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestDeepMerge(t *testing.T) {
	base := map[string]any{
		"a": map[string]any{"x": 1, "y": 2},
		"list": []any{1, 2, 3},
		"keep": "k",
	}
	override := map[string]any{
		"a":    map[string]any{"y": 20, "z": 30},
		"list": []any{9},
		"new":  true,
	}

	merged := pageconfig.DeepMerge(base, override).(map[string]any)

	assert.Equal(t, map[string]any{"x": 1, "y": 20, "z": 30}, merged["a"])
	assert.Equal(t, []any{9}, merged["list"], "arrays replace")
	assert.Equal(t, "k", merged["keep"])
	assert.Equal(t, true, merged["new"])

	// inputs untouched
	assert.Equal(t, 2, base["a"].(map[string]any)["y"])
	assert.Equal(t, "scalar", pageconfig.DeepMerge(base, "scalar"))
}

func TestApply_SlotOverrideMergesProps(t *testing.T) {
	cfg := apply(t, parseBase(t), `{"slot_overrides": {"hero": {"props": {"title": "X"}}}}`)

	hero, ok := cfg.Slot("hero")
	require.True(t, ok)
	assert.Equal(t, "X", hero.Props()["title"])
	assert.Equal(t, "Hi", hero.Props()["subtitle"])
	assert.Equal(t, "Hero", hero["component"])
}

func TestApply_DisableMissingSlotIsNoop(t *testing.T) {
	cfg := apply(t, parseBase(t), `{"slot_overrides": {"x": {"enabled": false}}}`)

	assert.Len(t, cfg.Slots, 2)
	_, ok := cfg.Slot("x")
	assert.False(t, ok)
}

func TestApply_DisableRemovesSlot(t *testing.T) {
	cfg := apply(t, parseBase(t), `{"slot_overrides": {"hero": {"enabled": false}}}`)

	require.Len(t, cfg.Slots, 1)
	assert.Equal(t, "grid", cfg.Slots[0].ID())
}

func TestApply_InsertNewSlot(t *testing.T) {
	cfg := apply(t, parseBase(t), `{"slot_overrides": {
		"banner": {"component": "Banner", "position": 0},
		"footer": {"component": "Footer"}
	}}`)

	require.Len(t, cfg.Slots, 4)
	assert.Equal(t, "banner", cfg.Slots[0].ID())
	assert.Equal(t, "hero", cfg.Slots[1].ID())
	assert.Equal(t, "footer", cfg.Slots[3].ID())
	_, hasPosition := cfg.Slots[0]["position"]
	assert.False(t, hasPosition)
}

func TestApply_InsertPositionPastEndAppends(t *testing.T) {
	cfg := apply(t, parseBase(t), `{"slot_overrides": {"promo": {"position": 99}}}`)

	require.Len(t, cfg.Slots, 3)
	assert.Equal(t, "promo", cfg.Slots[2].ID())
}

func TestApply_SlotConfigurationWinsAndSkipsRest(t *testing.T) {
	cfg := apply(t, parseBase(t), `{
		"page_template": "landing",
		"slot_configuration": {"slots": [{"id": "only", "component": "Solo"}]},
		"slot_overrides": {"hero": {"props": {"title": "ignored"}}},
		"style_overrides": {"primary": "#f00"}
	}`)

	assert.Equal(t, "landing", cfg.PageTemplate)
	require.Len(t, cfg.Slots, 1)
	assert.Equal(t, "only", cfg.Slots[0].ID())
	assert.Equal(t, "#000", cfg.Styles["primary"])
	assert.Equal(t, "wide", cfg.Extra["layout"])
}

func TestApply_ComponentProps(t *testing.T) {
	cfg := apply(t, parseBase(t), `{"component_props": {"grid": {"columns": 4, "dense": true}, "missing": {"a": 1}}}`)

	grid, _ := cfg.Slot("grid")
	assert.Equal(t, float64(4), grid.Props()["columns"])
	assert.Equal(t, true, grid.Props()["dense"])
	assert.Len(t, cfg.Slots, 2)
}

func TestApply_StylesAndFlags(t *testing.T) {
	cfg := apply(t, parseBase(t), `{"style_overrides": {"accent": "#0f0"}, "feature_flags": {"reviews": false, "chat": true}}`)

	assert.Equal(t, map[string]any{"primary": "#000", "accent": "#0f0"}, cfg.Styles)
	assert.Equal(t, map[string]any{"reviews": false, "chat": true}, cfg.FeatureFlags)
}

func TestParseVariantConfig_IgnoresUnknownAndMalformed(t *testing.T) {
	vc, ignored := pageconfig.ParseVariantConfig(json.RawMessage(`{
		"page_template": "promo",
		"slot_overrides": "not-an-object",
		"future_section": {"a": 1}
	}`))

	assert.ElementsMatch(t, []string{"slot_overrides", "future_section"}, ignored)
	require.NotNil(t, vc.PageTemplate)
	assert.Equal(t, "promo", *vc.PageTemplate)
	assert.Nil(t, vc.SlotOverrides)

	_, ignored = pageconfig.ParseVariantConfig(json.RawMessage(`"garbage"`))
	assert.Equal(t, []string{"<payload>"}, ignored)
}

func TestClone_IsIndependent(t *testing.T) {
	base := parseBase(t)
	clone := base.Clone()
	apply(t, clone, `{"component_props": {"hero": {"title": "changed"}}, "style_overrides": {"primary": "#fff"}}`)

	hero, _ := base.Slot("hero")
	assert.Equal(t, "Welcome", hero.Props()["title"])
	assert.Equal(t, "#000", base.Styles["primary"])
}

func TestConfig_JSONRoundTrip(t *testing.T) {
	cfg := parseBase(t)
	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	var decoded pageconfig.Config
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, cfg.Tree(), decoded.Tree())
}

func TestConfig_EmptyMarshalsWithoutSlots(t *testing.T) {
	cfg, err := pageconfig.Parse(json.RawMessage(`{}`))
	require.NoError(t, err)

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))

	cfg, err = pageconfig.Parse(json.RawMessage(`{"slots": []}`))
	require.NoError(t, err)
	data, err = json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"slots": []}`, string(data))
}
