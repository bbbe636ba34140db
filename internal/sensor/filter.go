package sensor

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// SimilarityFilter rejects readings too far from the recent history of the
// wrapped source. A rejection is treated as a transient hardware fault: the
// read fails and the history is left unchanged, so a single glitch cannot
// poison later comparisons.
//
// When composed with an Averager the filter must be the inner stage, so it
// screens individual raw samples before they enter the long-window average;
// NewChain enforces this.
type SimilarityFilter struct {
	inner Thermometer
	cal   Calibration
	delta float64

	mu      sync.Mutex
	history []float64
	max     int
}

// NewSimilarityFilter wraps inner, keeping the last queueLen raw readings
// and rejecting any new reading at least delta degrees away from their mean.
// The history is seeded with one sample read from inner.
func NewSimilarityFilter(ctx context.Context, inner Thermometer, queueLen int, delta float64) (*SimilarityFilter, error) {
	if queueLen < 1 {
		return nil, fmt.Errorf("sensor: similarity queue length must be at least 1, got %d", queueLen)
	}
	if delta <= 0 {
		return nil, fmt.Errorf("sensor: similarity delta must be positive, got %v", delta)
	}

	seed, err := inner.RawValue(ctx)
	if err != nil {
		return nil, err
	}

	return &SimilarityFilter{
		inner:   inner,
		cal:     calibrationOf(inner),
		delta:   delta,
		history: []float64{seed},
		max:     queueLen,
	}, nil
}

// Calibration returns the wrapped stage's calibration.
func (f *SimilarityFilter) Calibration() Calibration { return f.cal }

// RawValue reads the wrapped source and returns the reading only if it is
// similar to the average of the previous ones.
func (f *SimilarityFilter) RawValue(ctx context.Context) (float64, error) {
	v, err := f.inner.RawValue(ctx)
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	avg := mean(f.history)
	if diff := v - avg; diff >= f.delta || diff <= -f.delta {
		return 0, &Error{
			Msg: fmt.Sprintf("reading %.2f ignored, more than %.2f degrees away from the average of previous readings (%.2f)",
				v, f.delta, avg),
			Suberror: "this is probably a hardware fault",
		}
	}

	f.history = append(f.history, v)
	if len(f.history) > f.max {
		f.history = f.history[1:]
	}
	logrus.WithFields(logrus.Fields{"reading": v, "average": avg}).Debug("sensor: reading accepted by similarity filter")
	return v, nil
}

// CalibratedValue returns the filtered reading, calibrated and rounded to
// two decimals.
func (f *SimilarityFilter) CalibratedValue(ctx context.Context) (float64, error) {
	raw, err := f.RawValue(ctx)
	if err != nil {
		return 0, err
	}
	return round2(f.cal.Apply(raw)), nil
}

// Close forwards to the wrapped stage.
func (f *SimilarityFilter) Close() error { return f.inner.Close() }
