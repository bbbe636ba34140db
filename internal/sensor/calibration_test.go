package sensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalibrationIdentityFit(t *testing.T) {
	cal, err := NewCalibration([]float64{0, 100}, []float64{0, 100})
	require.NoError(t, err)
	assert.Equal(t, 60.0, cal.Apply(60))
	assert.Equal(t, -5.0, cal.Apply(-5))
}

func TestCalibrationShiftFit(t *testing.T) {
	// A thermometer reading 10 degrees high: raw 60 maps to 50.
	cal, err := NewCalibration([]float64{0, 100}, []float64{10, 110})
	require.NoError(t, err)
	assert.InDelta(t, 50.0, cal.Apply(60), 1e-9)
}

func TestCalibrationThreePointFit(t *testing.T) {
	// Slope 2, intercept 1.
	cal, err := NewCalibration([]float64{1, 3, 5}, []float64{0, 1, 2})
	require.NoError(t, err)
	assert.InDelta(t, 7.0, cal.Apply(3), 1e-9)
}

func TestCalibrationDisabledWithoutRawPoints(t *testing.T) {
	cal, err := NewCalibration(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 21.5, cal.Apply(21.5))

	cal, err = NewCalibration([]float64{20}, []float64{19})
	require.NoError(t, err)
	assert.Equal(t, 19.0, cal.Apply(19), "a single point is not enough to fit")
}

func TestCalibrationRejectsMismatchedLists(t *testing.T) {
	_, err := NewCalibration([]float64{0, 50, 100}, []float64{0, 100})
	assert.Error(t, err)
}

func TestCalibrationRejectsDegeneratePoints(t *testing.T) {
	_, err := NewCalibration([]float64{0, 100}, []float64{20, 20})
	assert.Error(t, err)
}
