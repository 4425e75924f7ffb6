package stats

import "math"

// WilsonInterval returns the two-sided Wilson score interval for a variant's
// conversion rate at the given confidence level. An empty sample yields
// [0, 0].
func WilsonInterval(conversions, participants int, confidence float64) (lo, hi float64) {
	if participants == 0 {
		return 0, 0
	}

	n := float64(participants)
	rate := float64(conversions) / n
	z := ZScore(confidence)
	z2 := z * z

	scale := 1 / (1 + z2/n)
	mid := (rate + z2/(2*n)) * scale
	half := z * scale * math.Sqrt(rate*(1-rate)/n+z2/(4*n*n))

	return math.Max(0, mid-half), math.Min(1, mid+half)
}
