package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeanVarianceStdDev(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	assert.InDelta(t, 5.0, Mean(values), 1e-9)
	assert.InDelta(t, 4.0, Variance(values), 1e-9)
	assert.InDelta(t, 2.0, StdDev(values), 1e-9)

	assert.Zero(t, Mean(nil))
	assert.Zero(t, Variance([]float64{3}))
}

func TestPearsonCorrelation(t *testing.T) {
	tests := []struct {
		name string
		xs   []float64
		ys   []float64
		want float64
	}{
		{name: "perfect positive", xs: []float64{1, 2, 3, 4}, ys: []float64{2, 4, 6, 8}, want: 1},
		{name: "perfect negative", xs: []float64{1, 2, 3, 4}, ys: []float64{8, 6, 4, 2}, want: -1},
		{name: "constant side", xs: []float64{1, 2, 3}, ys: []float64{5, 5, 5}, want: 0},
		{name: "length mismatch", xs: []float64{1, 2}, ys: []float64{1}, want: 0},
		{name: "too few points", xs: []float64{1}, ys: []float64{2}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PearsonCorrelation(tt.xs, tt.ys), 1e-9)
		})
	}
}

func TestFleissKappa(t *testing.T) {
	tests := []struct {
		name  string
		votes [][]bool
		want  float64
	}{
		{
			name: "perfect agreement mixed categories",
			votes: [][]bool{
				{true, true, true},
				{false, false, false},
				{true, true, true},
				{false, false, false},
			},
			want: 1,
		},
		{
			name: "all one category",
			votes: [][]bool{
				{true, true, true},
				{true, true, true},
			},
			want: 1,
		},
		{
			name: "one dissent in single category panel",
			votes: [][]bool{
				{true, true, true},
				{true, true, false},
			},
			// Expected agreement hits its cap, observed does not.
			want: 0,
		},
		{
			name:  "empty",
			votes: nil,
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, FleissKappa(tt.votes), 1e-9)
		})
	}
}

func TestFleissKappaDisagreementBelowChance(t *testing.T) {
	// Every subject splits 1-1, the worst possible agreement for 2 raters.
	votes := [][]bool{
		{true, false},
		{false, true},
		{true, false},
		{false, true},
	}
	assert.Less(t, FleissKappa(votes), 0.0)
}

func TestNormalQuantile(t *testing.T) {
	tests := []struct {
		p    float64
		want float64
	}{
		{p: 0.5, want: 0},
		{p: 0.975, want: 1.959963985},
		{p: 0.025, want: -1.959963985},
		{p: 0.995, want: 2.575829304},
		{p: 0.95, want: 1.644853627},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, NormalQuantile(tt.p), 1e-6, "p=%v", tt.p)
	}

	assert.True(t, math.IsInf(NormalQuantile(0), -1))
	assert.True(t, math.IsInf(NormalQuantile(1), 1))
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.3))
	assert.Equal(t, 1.0, Clamp01(1.7))
	assert.Equal(t, 0.42, Clamp01(0.42))
}

func TestCalibrationStateSignal(t *testing.T) {
	informative := CalibrationState{Sensitivity: 0.9, Specificity: 0.8}
	assert.True(t, informative.BetterThanRandom())
	assert.True(t, informative.Informative())
	assert.InDelta(t, 0.7, informative.YoudenJ(), 1e-9)

	coinFlip := CalibrationState{Sensitivity: 0.5, Specificity: 0.5}
	assert.False(t, coinFlip.BetterThanRandom())
	assert.False(t, coinFlip.Informative())
	assert.Zero(t, coinFlip.YoudenJ())

	inverted := CalibrationState{Sensitivity: 0.2, Specificity: 0.3}
	assert.False(t, inverted.BetterThanRandom())
	assert.True(t, inverted.Informative(), "an anti-correlated judge still carries signal")
	assert.Zero(t, inverted.YoudenJ())
}
