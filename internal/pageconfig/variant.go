package pageconfig

import (
	"encoding/json"
	"fmt"
	"sort"
)

// VariantConfig is the override payload a variant declares. Every section is
// optional.
type VariantConfig struct {
	PageTemplate      *string
	SlotConfiguration map[string]any
	SlotOverrides     map[string]map[string]any
	ComponentProps    map[string]map[string]any
	StyleOverrides    map[string]any
	FeatureFlags      map[string]any
}

// ParseVariantConfig decodes a variant payload section by section. Sections
// that are unknown or fail to decode are skipped and reported by name.
func ParseVariantConfig(raw json.RawMessage) (vc VariantConfig, ignored []string) {
	if len(raw) == 0 || string(raw) == "null" {
		return vc, nil
	}

	var sections map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sections); err != nil {
		return vc, []string{"<payload>"}
	}

	keys := make([]string, 0, len(sections))
	for k := range sections {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		var target any
		switch k {
		case "page_template":
			target = &vc.PageTemplate
		case "slot_configuration":
			target = &vc.SlotConfiguration
		case "slot_overrides":
			target = &vc.SlotOverrides
		case "component_props":
			target = &vc.ComponentProps
		case "style_overrides":
			target = &vc.StyleOverrides
		case "feature_flags":
			target = &vc.FeatureFlags
		default:
			ignored = append(ignored, k)
			continue
		}
		if err := json.Unmarshal(sections[k], target); err != nil {
			ignored = append(ignored, k)
		}
	}
	return vc, ignored
}

// Apply merges vc into c in section precedence order. A slot_configuration
// section is a full override: it is deep-merged into the whole config and the
// remaining sections are skipped.
func (c *Config) Apply(vc VariantConfig) error {
	if vc.PageTemplate != nil {
		c.PageTemplate = *vc.PageTemplate
	}

	if vc.SlotConfiguration != nil {
		merged, err := FromTree(DeepMerge(c.Tree(), vc.SlotConfiguration).(map[string]any))
		if err != nil {
			return fmt.Errorf("slot_configuration: %w", err)
		}
		*c = *merged
		return nil
	}

	c.applySlotOverrides(vc.SlotOverrides)

	for id, props := range vc.ComponentProps {
		i := c.slotIndex(id)
		if i < 0 {
			continue
		}
		c.Slots[i]["props"] = shallowMerge(c.Slots[i].Props(), props)
	}

	c.Styles = shallowMerge(c.Styles, vc.StyleOverrides)
	c.FeatureFlags = shallowMerge(c.FeatureFlags, vc.FeatureFlags)
	return nil
}

// applySlotOverrides walks overrides in slot id order so insert positions
// resolve the same way on every request.
func (c *Config) applySlotOverrides(overrides map[string]map[string]any) {
	ids := make([]string, 0, len(overrides))
	for id := range overrides {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		override := overrides[id]
		i := c.slotIndex(id)

		if enabled, ok := override["enabled"].(bool); ok && !enabled {
			if i >= 0 {
				c.Slots = append(c.Slots[:i], c.Slots[i+1:]...)
			}
			continue
		}

		if i >= 0 {
			c.Slots[i] = Slot(DeepMerge(map[string]any(c.Slots[i]), override).(map[string]any))
			continue
		}

		slot := Slot(deepCopyMap(override))
		if slot == nil {
			slot = Slot{}
		}
		slot["id"] = id
		pos, hasPos := position(slot["position"])
		delete(slot, "position")
		if !hasPos || pos >= len(c.Slots) {
			c.Slots = append(c.Slots, slot)
			continue
		}
		if pos < 0 {
			pos = 0
		}
		c.Slots = append(c.Slots, nil)
		copy(c.Slots[pos+1:], c.Slots[pos:])
		c.Slots[pos] = slot
	}
}

func position(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}
