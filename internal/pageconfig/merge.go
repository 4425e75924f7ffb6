package pageconfig

// DeepMerge merges override onto base without mutating either. Two objects
// merge key by key; in every other case, arrays included, override wins.
func DeepMerge(base, override any) any {
	b, baseIsMap := base.(map[string]any)
	o, overrideIsMap := override.(map[string]any)
	if !baseIsMap || !overrideIsMap {
		return deepCopy(override)
	}

	out := deepCopyMap(b)
	for k, v := range o {
		if existing, ok := out[k]; ok {
			out[k] = DeepMerge(existing, v)
		} else {
			out[k] = deepCopy(v)
		}
	}
	return out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case Slot:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

// shallowMerge adds or overwrites keys of src into dst, allocating dst if needed.
func shallowMerge(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = deepCopy(v)
	}
	return dst
}
