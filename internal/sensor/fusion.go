package sensor

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// vref converts a normalized A/D reading back to millivolts. The divider is
// the AnalogZero board's 3.32k/7.5k network on a 3.3V supply.
const vref = (3.32 / (3.32 + 7.5)) * 3.3 * 1000

// ChannelReader is one A/D converter channel returning a normalized [0,1]
// reading.
type ChannelReader interface {
	Value() (float64, error)
	Close() error
}

// MultiChannel fuses several probes wired to A/D channels into one raw
// reading: the median of the per-channel temperatures (mean with only two
// channels). A population standard deviation at or above the configured
// threshold flags a probable broken probe — once per excursion, not every
// cycle — without failing the read, since the median already excludes a
// single outlier.
type MultiChannel struct {
	channels  []ChannelReader
	cal       Calibration
	stddevMax float64

	mu      sync.Mutex
	faulted bool
}

// NewMultiChannel creates a fusion source over the given channels.
func NewMultiChannel(channels []ChannelReader, stddevMax float64, cal Calibration) (*MultiChannel, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("sensor: fusion source needs at least one channel")
	}
	if stddevMax <= 0 {
		return nil, fmt.Errorf("sensor: stddev threshold must be positive, got %v", stddevMax)
	}
	return &MultiChannel{channels: channels, cal: cal, stddevMax: stddevMax}, nil
}

// Calibration returns the source's calibration.
func (m *MultiChannel) Calibration() Calibration { return m.cal }

// RawValue reads every channel, converts each to degrees and returns the
// fused value rounded to two decimals.
func (m *MultiChannel) RawValue(context.Context) (float64, error) {
	temps := make([]float64, len(m.channels))
	for i, ch := range m.channels {
		v, err := ch.Value()
		if err != nil {
			return 0, &Error{
				Msg:      fmt.Sprintf("cannot read A/D channel %d", i),
				Suberror: err.Error(),
				Err:      err,
			}
		}
		// TMP36: 500mV offset, 10mV per degree.
		temps[i] = (v*vref - 500) / 10
	}

	std := popStddev(temps)

	m.mu.Lock()
	switch {
	case std >= m.stddevMax && !m.faulted:
		m.faulted = true
		logrus.WithFields(logrus.Fields{
			"temperatures": fmt.Sprintf("%.2f", temps),
			"stddev":       std,
			"threshold":    m.stddevMax,
		}).Warn("sensor: spread between probes exceeds threshold, one is probably broken")
	case std < m.stddevMax && m.faulted:
		m.faulted = false
	}
	m.mu.Unlock()

	if len(temps) > 2 {
		return round2(median(temps)), nil
	}
	return round2(mean(temps)), nil
}

// CalibratedValue returns the fused reading, calibrated and rounded to two
// decimals.
func (m *MultiChannel) CalibratedValue(ctx context.Context) (float64, error) {
	raw, err := m.RawValue(ctx)
	if err != nil {
		return 0, err
	}
	return round2(m.cal.Apply(raw)), nil
}

// Close releases every channel, returning the first error seen. Channels
// already closed are fine: closes are idempotent down the chain.
func (m *MultiChannel) Close() error {
	var first error
	for i, ch := range m.channels {
		if err := ch.Close(); err != nil && first == nil {
			first = fmt.Errorf("close A/D channel %d: %w", i, err)
		}
	}
	return first
}

// popStddev computes the population standard deviation.
func popStddev(values []float64) float64 {
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// median with the usual midpoint interpolation for even counts.
func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
