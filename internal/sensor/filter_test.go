package sensor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarityFilterSeedsFromSource(t *testing.T) {
	inner := NewFake(20.0)
	f, err := NewSimilarityFilter(context.Background(), inner, 5, 1.0)
	require.NoError(t, err)
	assert.Equal(t, []float64{20.0}, f.history)
	assert.Equal(t, 1, inner.Reads())
}

func TestSimilarityFilterRejectsOutlier(t *testing.T) {
	inner := NewFake(20.0, 22.0, 20.5)
	f, err := NewSimilarityFilter(context.Background(), inner, 5, 1.0)
	require.NoError(t, err)
	f.history = []float64{20, 20, 20, 20, 20}

	// |22.0 - 20.0| >= 1.0: rejected, history untouched.
	_, err = f.RawValue(context.Background())
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "this is probably a hardware fault", serr.Suberror)
	assert.Equal(t, []float64{20, 20, 20, 20, 20}, f.history)

	// |20.5 - 20.0| < 1.0: accepted and appended, oldest evicted.
	v, err := f.RawValue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20.5, v)
	assert.Equal(t, []float64{20, 20, 20, 20, 20.5}, f.history)
}

func TestSimilarityFilterPropagatesSourceError(t *testing.T) {
	inner := NewFake(20.0)
	f, err := NewSimilarityFilter(context.Background(), inner, 3, 1.0)
	require.NoError(t, err)

	inner.ReadErr = errors.New("probe unplugged")
	_, err = f.RawValue(context.Background())
	assert.ErrorContains(t, err, "probe unplugged")
	assert.Equal(t, []float64{20.0}, f.history)
}

func TestSimilarityFilterConstructorValidation(t *testing.T) {
	inner := NewFake(20.0)

	_, err := NewSimilarityFilter(context.Background(), inner, 0, 1.0)
	assert.Error(t, err)
	_, err = NewSimilarityFilter(context.Background(), inner, 5, 0)
	assert.Error(t, err)

	inner.ReadErr = errors.New("dead on arrival")
	_, err = NewSimilarityFilter(context.Background(), inner, 5, 1.0)
	assert.Error(t, err, "constructor fails when the seed sample cannot be read")
}

func TestSimilarityFilterCalibratedValue(t *testing.T) {
	inner := NewFake(20.0, 20.2)
	cal, err := NewCalibration([]float64{0, 100}, []float64{10, 110})
	require.NoError(t, err)
	inner.SetCalibration(cal)

	f, err := NewSimilarityFilter(context.Background(), inner, 5, 1.0)
	require.NoError(t, err)

	v, err := f.CalibratedValue(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 10.2, v, 1e-9, "the filter applies the wrapped source's calibration")
}

func TestSimilarityFilterCloseForwards(t *testing.T) {
	inner := NewFake(20.0)
	f, err := NewSimilarityFilter(context.Background(), inner, 5, 1.0)
	require.NoError(t, err)

	require.NoError(t, f.Close())
	assert.True(t, inner.Closed)
}
