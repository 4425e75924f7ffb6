package allocation

import "github.com/headline-goat/variant-goat/internal/store"

// Select picks a variant by walking cumulative normalized weights in declared
// order and returning the first whose cumulative weight reaches h. Rounding
// that leaves the sum short of h falls back to the last variant. Select
// returns false only for an empty variant list.
func Select(variants []store.Variant, h float64) (store.Variant, bool) {
	if len(variants) == 0 {
		return store.Variant{}, false
	}

	total := 0.0
	for _, v := range variants {
		total += weight(v)
	}
	if total <= 0 {
		return variants[0], true
	}

	cumulative := 0.0
	for _, v := range variants {
		cumulative += weight(v) / total
		if cumulative >= h {
			return v, true
		}
	}
	return variants[len(variants)-1], true
}

func weight(v store.Variant) float64 {
	if v.Weight <= 0 {
		return 1
	}
	return v.Weight
}
