package stats

import (
	"math"

	"github.com/headline-goat/variant-goat/internal/store"
)

// Result represents statistical analysis of an experiment
type Result struct {
	ExperimentID      string          `json:"experiment_id"`
	ControlVariantID  string          `json:"control_variant_id"`
	ConfidenceLevel   float64         `json:"confidence_level"`
	MinSampleSize     int             `json:"min_sample_size"`
	HasEnoughData     bool            `json:"has_enough_data"`
	TotalParticipants int             `json:"total_participants"`
	Variants          []VariantResult `json:"variants"`
	WinnerVariantID   *string         `json:"winner_variant_id"`
}

// VariantResult contains statistics for a single variant. Comparison fields
// are relative to the control and stay nil when the test is undefined.
type VariantResult struct {
	VariantID      string  `json:"variant_id"`
	Name           string  `json:"name"`
	IsControl      bool    `json:"is_control"`
	Participants   int     `json:"participants"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
	TotalValue     float64 `json:"total_value"`
	AverageValue   float64 `json:"average_value"`
	RateCILower    float64 `json:"rate_ci_lower"`
	RateCIUpper    float64 `json:"rate_ci_upper"`

	Lift          float64  `json:"lift"`
	ZScore        *float64 `json:"z_score"`
	PValue        *float64 `json:"p_value"`
	DiffCILower   *float64 `json:"diff_ci_lower"`
	DiffCIUpper   *float64 `json:"diff_ci_upper"`
	IsSignificant bool     `json:"is_significant"`
}

// SignificanceTest performs a two-tailed two-proportion z-test of variant 1
// against variant 2. ok is false when either sample is empty or the pooled
// standard error is zero.
func SignificanceTest(conv1, n1, conv2, n2 int) (z, pValue float64, ok bool) {
	if n1 == 0 || n2 == 0 {
		return 0, 0, false
	}

	p1 := float64(conv1) / float64(n1)
	p2 := float64(conv2) / float64(n2)

	// Pooled proportion under null hypothesis (p1 = p2)
	pooled := float64(conv1+conv2) / float64(n1+n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return 0, 0, false
	}

	z = (p1 - p2) / se
	pValue = 2 * (1 - NormalCDF(math.Abs(z)))
	if pValue < 0 {
		pValue = 0
	}
	return z, pValue, true
}

// DifferenceInterval returns the unpooled confidence interval of p1 - p2.
func DifferenceInterval(conv1, n1, conv2, n2 int, confidence float64) (lower, upper float64, ok bool) {
	if n1 == 0 || n2 == 0 {
		return 0, 0, false
	}

	p1 := float64(conv1) / float64(n1)
	p2 := float64(conv2) / float64(n2)
	seDiff := math.Sqrt(p1*(1-p1)/float64(n1) + p2*(1-p2)/float64(n2))
	margin := ZScore(confidence) * seDiff

	return (p1 - p2) - margin, (p1 - p2) + margin, true
}

// Analyze aggregates assignments per variant and compares every variant
// against the control.
func Analyze(exp *store.Experiment, assignments []*store.Assignment) *Result {
	confidence := exp.ConfidenceLevel
	if confidence <= 0 || confidence >= 1 {
		confidence = store.DefaultConfidenceLevel
	}

	type tally struct {
		participants, conversions, valued int
		total                             float64
	}
	tallies := make(map[string]*tally, len(exp.Variants))
	for _, v := range exp.Variants {
		tallies[v.ID] = &tally{}
	}
	for _, a := range assignments {
		t, ok := tallies[a.VariantID]
		if !ok {
			continue // variant no longer part of the experiment
		}
		t.participants++
		if a.Converted {
			t.conversions++
		}
		if a.ConversionValue != nil {
			t.valued++
			t.total += *a.ConversionValue
		}
	}

	control, _ := exp.Control()
	result := &Result{
		ExperimentID:     exp.ID,
		ControlVariantID: control.ID,
		ConfidenceLevel:  confidence,
		MinSampleSize:    exp.MinSampleSize,
		HasEnoughData:    len(exp.Variants) > 0,
		Variants:         make([]VariantResult, len(exp.Variants)),
	}

	for i, v := range exp.Variants {
		t := tallies[v.ID]
		vr := VariantResult{
			VariantID:    v.ID,
			Name:         v.Name,
			IsControl:    v.ID == control.ID,
			Participants: t.participants,
			Conversions:  t.conversions,
			TotalValue:   t.total,
		}
		if t.participants > 0 {
			vr.ConversionRate = float64(t.conversions) / float64(t.participants)
		}
		if t.valued > 0 {
			vr.AverageValue = t.total / float64(t.valued)
		}
		vr.RateCILower, vr.RateCIUpper = WilsonInterval(t.conversions, t.participants, confidence)

		result.Variants[i] = vr
		result.TotalParticipants += t.participants
		if t.participants < exp.MinSampleSize {
			result.HasEnoughData = false
		}
	}

	ctl := tallies[control.ID]
	alpha := 1 - confidence
	var best *VariantResult

	for i := range result.Variants {
		vr := &result.Variants[i]
		if vr.IsControl {
			continue
		}
		t := tallies[vr.VariantID]

		controlRate := 0.0
		if ctl.participants > 0 {
			controlRate = float64(ctl.conversions) / float64(ctl.participants)
		}
		if controlRate > 0 {
			vr.Lift = (vr.ConversionRate - controlRate) / controlRate
		}

		z, p, ok := SignificanceTest(t.conversions, t.participants, ctl.conversions, ctl.participants)
		if !ok {
			continue
		}
		lo, hi, _ := DifferenceInterval(t.conversions, t.participants, ctl.conversions, ctl.participants, confidence)
		vr.ZScore, vr.PValue = &z, &p
		vr.DiffCILower, vr.DiffCIUpper = &lo, &hi
		vr.IsSignificant = p < alpha

		if vr.IsSignificant && vr.Lift > 0 && (best == nil || vr.ConversionRate > best.ConversionRate) {
			best = vr
		}
	}

	if best != nil {
		id := best.VariantID
		result.WinnerVariantID = &id
	}

	return result
}
