// Package pageconfig models the structured page configuration handed to the
// rendering layer and applies experiment variant overrides to it.
package pageconfig

import (
	"encoding/json"
	"fmt"
	"sort"
)

const (
	keyPageTemplate = "page_template"
	keySlots        = "slots"
	keyStyles       = "styles"
	keyFeatureFlags = "feature_flags"
)

// Config is a page configuration. Slots keep their declared order; top-level
// keys this package does not know are carried in Extra untouched.
type Config struct {
	PageTemplate string
	Slots        []Slot
	Styles       map[string]any
	FeatureFlags map[string]any
	Extra        map[string]any
}

// Slot is one overridable unit of a page, identified by its "id" field.
type Slot map[string]any

func (s Slot) ID() string {
	id, _ := s["id"].(string)
	return id
}

// Props returns the slot's props map, or nil when it has none.
func (s Slot) Props() map[string]any {
	props, _ := s["props"].(map[string]any)
	return props
}

// Parse decodes a JSON page configuration. Empty input is an empty config.
func Parse(raw json.RawMessage) (*Config, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return &Config{}, nil
	}

	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to decode page config: %w", err)
	}
	return FromTree(tree)
}

// FromTree builds a Config from a generic JSON-shaped tree. Slots may be given
// as a list of objects carrying "id" or as an object keyed by slot id; the
// latter is ordered by id.
func FromTree(tree map[string]any) (*Config, error) {
	c := &Config{}
	for k, v := range tree {
		switch k {
		case keyPageTemplate:
			s, ok := v.(string)
			if !ok && v != nil {
				return nil, fmt.Errorf("%s must be a string", keyPageTemplate)
			}
			c.PageTemplate = s
		case keySlots:
			slots, err := slotsFromTree(v)
			if err != nil {
				return nil, err
			}
			c.Slots = slots
		case keyStyles:
			m, ok := v.(map[string]any)
			if !ok && v != nil {
				return nil, fmt.Errorf("%s must be an object", keyStyles)
			}
			c.Styles = m
		case keyFeatureFlags:
			m, ok := v.(map[string]any)
			if !ok && v != nil {
				return nil, fmt.Errorf("%s must be an object", keyFeatureFlags)
			}
			c.FeatureFlags = m
		default:
			if c.Extra == nil {
				c.Extra = map[string]any{}
			}
			c.Extra[k] = v
		}
	}
	return c, nil
}

func slotsFromTree(v any) ([]Slot, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []any:
		slots := make([]Slot, 0, len(t))
		for i, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("slot %d must be an object", i)
			}
			slots = append(slots, Slot(m))
		}
		return slots, nil
	case map[string]any:
		ids := make([]string, 0, len(t))
		for id := range t {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		slots := make([]Slot, 0, len(t))
		for _, id := range ids {
			m, ok := t[id].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("slot %q must be an object", id)
			}
			slot := Slot(deepCopyMap(m))
			slot["id"] = id
			slots = append(slots, slot)
		}
		return slots, nil
	default:
		return nil, fmt.Errorf("%s must be a list or an object", keySlots)
	}
}

// Tree renders the config back into its generic form. Slots are only emitted
// when the config carries them, so an empty config renders as {}.
func (c *Config) Tree() map[string]any {
	tree := make(map[string]any, len(c.Extra)+4)
	for k, v := range c.Extra {
		tree[k] = v
	}
	if c.PageTemplate != "" {
		tree[keyPageTemplate] = c.PageTemplate
	}
	if c.Slots != nil {
		slots := make([]any, len(c.Slots))
		for i, s := range c.Slots {
			slots[i] = map[string]any(s)
		}
		tree[keySlots] = slots
	}
	if c.Styles != nil {
		tree[keyStyles] = c.Styles
	}
	if c.FeatureFlags != nil {
		tree[keyFeatureFlags] = c.FeatureFlags
	}
	return tree
}

func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Tree())
}

func (c *Config) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*c = *parsed
	return nil
}

// Clone returns a deep copy so merges never touch a shared base.
func (c *Config) Clone() *Config {
	clone := &Config{
		PageTemplate: c.PageTemplate,
		Styles:       deepCopyMap(c.Styles),
		FeatureFlags: deepCopyMap(c.FeatureFlags),
		Extra:        deepCopyMap(c.Extra),
	}
	if c.Slots != nil {
		clone.Slots = make([]Slot, len(c.Slots))
		for i, s := range c.Slots {
			clone.Slots[i] = Slot(deepCopyMap(s))
		}
	}
	return clone
}

// Slot finds a slot by id.
func (c *Config) Slot(id string) (Slot, bool) {
	if i := c.slotIndex(id); i >= 0 {
		return c.Slots[i], true
	}
	return nil, false
}

func (c *Config) slotIndex(id string) int {
	for i, s := range c.Slots {
		if s.ID() == id {
			return i
		}
	}
	return -1
}
