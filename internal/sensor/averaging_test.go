package sensor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// idleAverager builds an Averager whose background task effectively never
// fires, so tests can poke the history deterministically.
func idleAverager(t *testing.T, inner Thermometer, capacityMinutes int, skipval float64) *Averager {
	t.Helper()
	a, err := NewAverager(context.Background(), inner,
		time.Minute, time.Duration(capacityMinutes)*time.Minute, skipval)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestAveragerTrimmedMean(t *testing.T) {
	a := idleAverager(t, NewFake(18.0), 5, 0.4)

	// Full window: skip one low and one high, average the middle three.
	a.mu.Lock()
	a.history = []float64{18, 19, 20, 21, 22}
	a.mu.Unlock()

	v, err := a.RawValue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20.0, v)

	// Order must not matter.
	a.mu.Lock()
	a.history = []float64{22, 18, 21, 19, 20}
	a.mu.Unlock()

	v, err = a.RawValue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20.0, v)
}

func TestAveragerPlainMeanWhileFilling(t *testing.T) {
	a := idleAverager(t, NewFake(18.0), 5, 0.4)

	a.mu.Lock()
	a.history = []float64{18, 22}
	a.mu.Unlock()

	v, err := a.RawValue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20.0, v, "a partially filled window uses the plain mean")
}

func TestAveragerSkipLargerThanWindow(t *testing.T) {
	// Two samples with skipval 0.9 would trim both ends to nothing; the
	// plain mean must win over an empty slice.
	a := idleAverager(t, NewFake(18.0), 2, 0.9)

	a.mu.Lock()
	a.history = []float64{18, 22}
	a.mu.Unlock()

	v, err := a.RawValue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20.0, v)
}

func TestAveragerBackgroundSampling(t *testing.T) {
	inner := NewFake(20.0, 20.1, 20.2, 20.3)
	a, err := NewAverager(context.Background(), inner, 10*time.Millisecond, time.Minute, 0.2)
	require.NoError(t, err)
	defer a.Close()

	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return len(a.history) >= 3
	}, time.Second, 5*time.Millisecond, "the background task keeps sampling the wrapped source")
}

func TestAveragerCloseStopsSamplingAndForwards(t *testing.T) {
	inner := NewFake(20.0)
	a, err := NewAverager(context.Background(), inner, time.Hour, 2*time.Hour, 0.2)
	require.NoError(t, err)

	require.NoError(t, a.Close())
	assert.True(t, inner.Closed)

	select {
	case <-a.done:
	default:
		t.Fatal("close must interrupt the in-progress wait, not wait for the next cycle")
	}

	require.NoError(t, a.Close(), "close is idempotent")
}

func TestAveragerConstructorValidation(t *testing.T) {
	inner := NewFake(20.0)

	_, err := NewAverager(context.Background(), inner, 0, time.Minute, 0.2)
	assert.Error(t, err)
	_, err = NewAverager(context.Background(), inner, time.Minute, time.Second, 0.2)
	assert.Error(t, err)
	_, err = NewAverager(context.Background(), inner, time.Second, time.Minute, 1.0)
	assert.Error(t, err)
	_, err = NewAverager(context.Background(), inner, time.Second, time.Minute, -0.1)
	assert.Error(t, err)
}

func TestChainOrdering(t *testing.T) {
	inner := NewFake(20.0)
	chain, err := NewChain(context.Background(), inner, ChainConfig{
		QueueLen:      5,
		Delta:         1.0,
		ShortInterval: time.Hour,
		AveragingTime: 2 * time.Hour,
		SkipVal:       0.2,
	})
	require.NoError(t, err)
	defer chain.Close()

	avg, ok := chain.(*Averager)
	require.True(t, ok, "the averaging task must be the outermost stage")
	_, ok = avg.inner.(*SimilarityFilter)
	require.True(t, ok, "the similarity filter must wrap the source directly")
}

func TestChainPartialConstructionReleasesSource(t *testing.T) {
	inner := NewFake(20.0)
	_, err := NewChain(context.Background(), inner, ChainConfig{
		QueueLen:      5,
		Delta:         1.0,
		ShortInterval: time.Hour,
		AveragingTime: time.Minute, // shorter than the interval: averager construction fails
		SkipVal:       0.2,
	})
	require.Error(t, err)
	assert.True(t, inner.Closed, "a failed chain construction must release the source")
}

func TestChainWithoutDecorators(t *testing.T) {
	inner := NewFake(20.0)
	chain, err := NewChain(context.Background(), inner, ChainConfig{})
	require.NoError(t, err)
	assert.Same(t, Thermometer(inner), chain)
}
