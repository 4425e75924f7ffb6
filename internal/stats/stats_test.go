package stats_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/variant-goat/internal/stats"
	"github.com/headline-goat/variant-goat/internal/store"
)

func TestNormalCDF_ReferenceValues(t *testing.T) {
	tests := []struct {
		z    float64
		want float64
	}{
		{0, 0.5},
		{1, 0.8413447460685429},
		{1.96, 0.9750021048517795},
		{-1.96, 0.0249978951482205},
		{2.576, 0.9950024677890157},
		{-3, 0.0013498980316301},
		{5, 0.9999997133484281},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, stats.NormalCDF(tt.z), 1e-6, "Φ(%v)", tt.z)
	}
}

func TestInverseNormalCDF_ReferenceValues(t *testing.T) {
	tests := []struct {
		p    float64
		want float64
	}{
		{0.5, 0},
		{0.975, 1.959963984540054},
		{0.995, 2.5758293035489004},
		{0.95, 1.6448536269514722},
		{0.01, -2.3263478740408408},
		{0.001, -3.090232306167813},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, stats.InverseNormalCDF(tt.p), 1e-6, "Φ⁻¹(%v)", tt.p)
	}

	assert.True(t, math.IsInf(stats.InverseNormalCDF(0), -1))
	assert.True(t, math.IsInf(stats.InverseNormalCDF(1), 1))
}

func TestZScore(t *testing.T) {
	assert.InDelta(t, 1.645, stats.ZScore(0.90), 1e-3)
	assert.InDelta(t, 1.960, stats.ZScore(0.95), 1e-3)
	assert.InDelta(t, 2.576, stats.ZScore(0.99), 1e-3)
}

func TestSignificanceTest_ClearWinner(t *testing.T) {
	// 10% (100/1000) against 5% (50/1000)
	z, p, ok := stats.SignificanceTest(100, 1000, 50, 1000)
	require.True(t, ok)

	assert.InDelta(t, 4.245, z, 1e-3)
	assert.Less(t, p, 0.05)
}

func TestSignificanceTest_EqualRates(t *testing.T) {
	z, p, ok := stats.SignificanceTest(50, 1000, 50, 1000)
	require.True(t, ok)

	assert.InDelta(t, 0, z, 1e-12)
	assert.InDelta(t, 1, p, 1e-6)
}

func TestSignificanceTest_Undefined(t *testing.T) {
	tests := []struct {
		name           string
		c1, n1, c2, n2 int
	}{
		{"no data", 0, 0, 0, 0},
		{"one side empty", 10, 100, 0, 0},
		{"zero variance", 0, 100, 0, 100},
		{"all converted", 50, 50, 20, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, ok := stats.SignificanceTest(tt.c1, tt.n1, tt.c2, tt.n2)
			assert.False(t, ok)
		})
	}
}

func TestDifferenceInterval(t *testing.T) {
	lo, hi, ok := stats.DifferenceInterval(100, 1000, 50, 1000, 0.95)
	require.True(t, ok)

	seDiff := math.Sqrt(0.1*0.9/1000 + 0.05*0.95/1000)
	assert.InDelta(t, 0.05-1.959964*seDiff, lo, 1e-6)
	assert.InDelta(t, 0.05+1.959964*seDiff, hi, 1e-6)
	assert.Greater(t, lo, 0.0)

	_, _, ok = stats.DifferenceInterval(1, 0, 1, 10, 0.95)
	assert.False(t, ok)
}

func TestWilsonInterval(t *testing.T) {
	lo, hi := stats.WilsonInterval(100, 1000, 0.95)
	assert.Less(t, lo, 0.1)
	assert.Greater(t, hi, 0.1)
	assert.GreaterOrEqual(t, lo, 0.0)
	assert.LessOrEqual(t, hi, 1.0)

	assert.InDelta(t, 0.08291, lo, 1e-4)
	assert.InDelta(t, 0.12015, hi, 1e-4)

	lo90, hi90 := stats.WilsonInterval(100, 1000, 0.90)
	assert.Greater(t, lo90, lo)
	assert.Less(t, hi90, hi)

	lo, hi = stats.WilsonInterval(5, 5, 0.95)
	assert.InDelta(t, 0.56552, lo, 1e-4)
	assert.Equal(t, 1.0, hi)

	lo, hi = stats.WilsonInterval(0, 20, 0.95)
	assert.InDelta(t, 0, lo, 1e-9)
	assert.InDelta(t, 0.16113, hi, 1e-4)

	lo, hi = stats.WilsonInterval(0, 0, 0.95)
	assert.Zero(t, lo)
	assert.Zero(t, hi)
}

func experiment(variants ...store.Variant) *store.Experiment {
	return &store.Experiment{
		ID:              "E1",
		Name:            "hero",
		Status:          store.StatusRunning,
		Variants:        variants,
		ConfidenceLevel: 0.95,
	}
}

func assignments(variantID string, participants, conversions int) []*store.Assignment {
	out := make([]*store.Assignment, participants)
	for i := range out {
		out[i] = &store.Assignment{VariantID: variantID, Converted: i < conversions}
	}
	return out
}

func TestAnalyze_SignificantWinner(t *testing.T) {
	exp := experiment(
		store.Variant{ID: "A", Name: "Control", Weight: 1, IsControl: true},
		store.Variant{ID: "B", Name: "Treatment", Weight: 1},
	)
	data := append(assignments("A", 1000, 50), assignments("B", 1000, 100)...)

	result := stats.Analyze(exp, data)

	require.Len(t, result.Variants, 2)
	assert.Equal(t, "A", result.ControlVariantID)
	assert.Equal(t, 2000, result.TotalParticipants)

	control, treatment := result.Variants[0], result.Variants[1]
	assert.True(t, control.IsControl)
	assert.Zero(t, control.Lift)
	assert.False(t, control.IsSignificant)
	assert.Nil(t, control.PValue)

	assert.InDelta(t, 0.1, treatment.ConversionRate, 1e-12)
	assert.InDelta(t, 1.0, treatment.Lift, 1e-12)
	assert.True(t, treatment.IsSignificant)
	require.NotNil(t, treatment.ZScore)
	assert.InDelta(t, 4.245, *treatment.ZScore, 1e-3)
	require.NotNil(t, treatment.DiffCILower)
	assert.Greater(t, *treatment.DiffCILower, 0.0)

	require.NotNil(t, result.WinnerVariantID)
	assert.Equal(t, "B", *result.WinnerVariantID)
}

func TestAnalyze_IdenticalRatesNotSignificant(t *testing.T) {
	exp := experiment(
		store.Variant{ID: "A", IsControl: true},
		store.Variant{ID: "B"},
	)
	data := append(assignments("A", 500, 40), assignments("B", 500, 40)...)

	result := stats.Analyze(exp, data)

	b := result.Variants[1]
	assert.Zero(t, b.Lift)
	assert.False(t, b.IsSignificant)
	assert.Nil(t, result.WinnerVariantID)
}

func TestAnalyze_FirstVariantIsDefaultControl(t *testing.T) {
	exp := experiment(store.Variant{ID: "x"}, store.Variant{ID: "y"})
	result := stats.Analyze(exp, nil)

	assert.Equal(t, "x", result.ControlVariantID)
	assert.True(t, result.Variants[0].IsControl)
}

func TestAnalyze_EmptyDataDegradesGracefully(t *testing.T) {
	exp := experiment(store.Variant{ID: "A", IsControl: true}, store.Variant{ID: "B"})
	exp.MinSampleSize = 10

	result := stats.Analyze(exp, nil)

	assert.False(t, result.HasEnoughData)
	for _, v := range result.Variants {
		assert.Zero(t, v.Participants)
		assert.Zero(t, v.ConversionRate)
		assert.Nil(t, v.ZScore)
		assert.Nil(t, v.PValue)
		assert.False(t, v.IsSignificant)
	}
	assert.Nil(t, result.WinnerVariantID)
}

func TestAnalyze_HasEnoughData(t *testing.T) {
	exp := experiment(store.Variant{ID: "A", IsControl: true}, store.Variant{ID: "B"})
	exp.MinSampleSize = 100

	result := stats.Analyze(exp, append(assignments("A", 100, 1), assignments("B", 99, 1)...))
	assert.False(t, result.HasEnoughData)

	result = stats.Analyze(exp, append(assignments("A", 100, 1), assignments("B", 100, 1)...))
	assert.True(t, result.HasEnoughData)
}

func TestAnalyze_ConversionValues(t *testing.T) {
	exp := experiment(store.Variant{ID: "A", IsControl: true})
	v1, v2 := 10.0, 30.0
	data := []*store.Assignment{
		{VariantID: "A", Converted: true, ConversionValue: &v1},
		{VariantID: "A", Converted: true, ConversionValue: &v2},
		{VariantID: "A"},
		{VariantID: "gone", Converted: true},
	}

	result := stats.Analyze(exp, data)

	a := result.Variants[0]
	assert.Equal(t, 3, a.Participants)
	assert.Equal(t, 2, a.Conversions)
	assert.InDelta(t, 40.0, a.TotalValue, 1e-12)
	assert.InDelta(t, 20.0, a.AverageValue, 1e-12)
}

func TestAnalyze_NegativeLiftIsNotWinner(t *testing.T) {
	exp := experiment(store.Variant{ID: "A", IsControl: true}, store.Variant{ID: "B"})
	data := append(assignments("A", 1000, 100), assignments("B", 1000, 50)...)

	result := stats.Analyze(exp, data)

	b := result.Variants[1]
	assert.True(t, b.IsSignificant)
	assert.InDelta(t, -0.5, b.Lift, 1e-12)
	assert.Nil(t, result.WinnerVariantID)
}
