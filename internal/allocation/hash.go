// Package allocation holds the pure, deterministic pieces of experiment
// assignment: hashing visitors onto [0,1), evaluating targeting rules and
// picking a weighted variant.
package allocation

import "github.com/cespare/xxhash/v2"

// Hash01 maps key to a stable value in [0,1). The top 53 bits of the xxhash64
// digest are used so every result is exactly representable as a float64.
func Hash01(key string) float64 {
	return float64(xxhash.Sum64String(key)>>11) / (1 << 53)
}

// TrafficHash is the lane deciding whether a session enters an experiment at all.
func TrafficHash(sessionID string) float64 {
	return Hash01(sessionID + "|traffic")
}

// VariantHash is the lane choosing a variant. It is salted with the experiment
// id so one session lands independently across experiments.
func VariantHash(sessionID, experimentID string) float64 {
	return Hash01(sessionID + "|" + experimentID)
}
