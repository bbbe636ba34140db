package sensor

import (
	"context"
	"sync"
)

// Fixed is a source that always returns the same value. It backs the
// -sensor=fixed development mode and doubles as a trivial test source.
type Fixed struct {
	mu    sync.Mutex
	value float64
	cal   Calibration
}

// NewFixed creates a fixed-value source.
func NewFixed(value float64, cal Calibration) *Fixed {
	return &Fixed{value: value, cal: cal}
}

// Set changes the reported value.
func (f *Fixed) Set(value float64) {
	f.mu.Lock()
	f.value = value
	f.mu.Unlock()
}

// Calibration returns the source's calibration.
func (f *Fixed) Calibration() Calibration { return f.cal }

// RawValue returns the fixed value.
func (f *Fixed) RawValue(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, nil
}

// CalibratedValue returns the calibrated fixed value.
func (f *Fixed) CalibratedValue(ctx context.Context) (float64, error) {
	raw, err := f.RawValue(ctx)
	if err != nil {
		return 0, err
	}
	return round2(f.cal.Apply(raw)), nil
}

// Close is a no-op.
func (f *Fixed) Close() error { return nil }

// Fake is a test double returning scripted readings. Each RawValue consumes
// the next sample; when exhausted the last sample repeats.
type Fake struct {
	mu      sync.Mutex
	Samples []float64
	ReadErr error
	Closed  bool
	cal     Calibration
	index   int
	reads   int
}

// NewFake creates a Fake with the given samples.
func NewFake(samples ...float64) *Fake {
	return &Fake{Samples: samples, cal: Identity()}
}

// Calibration returns the fake's calibration.
func (f *Fake) Calibration() Calibration { return f.cal }

// SetCalibration replaces the fake's calibration.
func (f *Fake) SetCalibration(cal Calibration) { f.cal = cal }

// Reads reports how many times RawValue was called.
func (f *Fake) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// RawValue returns the next scripted sample.
func (f *Fake) RawValue(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.ReadErr != nil {
		return 0, f.ReadErr
	}
	v := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return v, nil
}

// CalibratedValue returns the next sample, calibrated.
func (f *Fake) CalibratedValue(ctx context.Context) (float64, error) {
	raw, err := f.RawValue(ctx)
	if err != nil {
		return 0, err
	}
	return round2(f.cal.Apply(raw)), nil
}

// Close marks the fake as closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// FakeChannel is a scripted A/D channel for fusion tests.
type FakeChannel struct {
	Values []float64
	Err    error
	Closed bool
	index  int
}

// Value returns the next scripted normalized reading, repeating the last.
func (c *FakeChannel) Value() (float64, error) {
	if c.Err != nil {
		return 0, c.Err
	}
	v := c.Values[c.index]
	if c.index < len(c.Values)-1 {
		c.index++
	}
	return v, nil
}

// Close marks the channel as closed.
func (c *FakeChannel) Close() error {
	c.Closed = true
	return nil
}
