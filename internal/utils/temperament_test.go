package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTemperamentMapping_KnownAndUnknown(t *testing.T) {
	mapping, ok := GetTemperamentMapping("risk_min_hold_days")
	require.True(t, ok)
	assert.Equal(t, SliderPatience, mapping.Slider)
	assert.Equal(t, 90.0, mapping.Base)

	_, ok = GetTemperamentMapping("not_a_parameter")
	assert.False(t, ok)
}

func TestGetAdjustedValue_Interpolation(t *testing.T) {
	mapping := TemperamentMapping{Slider: SliderRiskTolerance, Min: 10, Base: 20, Max: 40}

	// Midpoint returns the base, endpoints return min/max.
	assert.InDelta(t, 20.0, GetAdjustedValue(mapping, 0.5, 0, 0), 1e-9)
	assert.InDelta(t, 10.0, GetAdjustedValue(mapping, 0.0, 0, 0), 1e-9)
	assert.InDelta(t, 40.0, GetAdjustedValue(mapping, 1.0, 0, 0), 1e-9)

	// Piecewise linear on each half.
	assert.InDelta(t, 15.0, GetAdjustedValue(mapping, 0.25, 0, 0), 1e-9)
	assert.InDelta(t, 30.0, GetAdjustedValue(mapping, 0.75, 0, 0), 1e-9)
}

func TestGetAdjustedValue_SliderSelectionAndInversion(t *testing.T) {
	aggression := TemperamentMapping{Slider: SliderAggression, Min: 1, Base: 2, Max: 3}
	assert.InDelta(t, 3.0, GetAdjustedValue(aggression, 0, 1.0, 0), 1e-9)

	patience := TemperamentMapping{Slider: SliderPatience, Min: 1, Base: 2, Max: 3}
	assert.InDelta(t, 1.0, GetAdjustedValue(patience, 0, 0, 0.0), 1e-9)

	inverted := TemperamentMapping{Slider: SliderRiskTolerance, Min: 1, Base: 2, Max: 3, Inverted: true}
	assert.InDelta(t, 1.0, GetAdjustedValue(inverted, 1.0, 0, 0), 1e-9)
	assert.InDelta(t, 3.0, GetAdjustedValue(inverted, 0.0, 0, 0), 1e-9)
}

func TestGetAdjustedValue_ClampsSlider(t *testing.T) {
	mapping := TemperamentMapping{Slider: SliderRiskTolerance, Min: 10, Base: 20, Max: 40}

	assert.InDelta(t, 10.0, GetAdjustedValue(mapping, -5, 0, 0), 1e-9)
	assert.InDelta(t, 40.0, GetAdjustedValue(mapping, 5, 0, 0), 1e-9)
}
