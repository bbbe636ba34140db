// Package sensor implements the temperature measurement pipeline: raw
// sources (external script, fixed test value, multi-channel A/D fusion),
// linear calibration, and the two decorators that make a noisy thermometer
// trustworthy — the similarity filter that rejects outliers and the
// background averaging task that smooths over a long window.
//
// Stages compose by explicit ownership: each decorator exclusively owns the
// stage it wraps and forwards Close down the chain. Use NewChain to compose
// them; it encodes the required ordering (filter innermost, averager
// outermost) so callers cannot get it wrong.
package sensor

import (
	"context"
	"fmt"
	"math"
)

// Thermometer is the capability contract every pipeline stage implements.
type Thermometer interface {
	// RawValue returns one uncalibrated reading. Sources that do I/O honor
	// the context deadline and never hang the caller.
	RawValue(ctx context.Context) (float64, error)

	// CalibratedValue applies the stage's calibration to RawValue and
	// rounds to two decimals, the limit of meaningful precision.
	CalibratedValue(ctx context.Context) (float64, error)

	// Close releases owned hardware and background tasks, forwarding down
	// the chain. It is idempotent.
	Close() error
}

// Error is an acquisition failure. Suberror carries an optional diagnostic
// and Script the offending command for script-backed sources; neither is
// included in Error() by default, matching how callers log them separately.
type Error struct {
	Msg      string
	Suberror string
	Script   string
	Err      error
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Err }

// calibrated is implemented by every stage so decorators can replicate the
// calibration of the stage they wrap.
type calibrated interface {
	Calibration() Calibration
}

func calibrationOf(t Thermometer) Calibration {
	if c, ok := t.(calibrated); ok {
		return c.Calibration()
	}
	return Identity()
}

// round2 rounds to two decimal places.
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func checkFinite(v float64, what string) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &Error{Msg: fmt.Sprintf("%s is not a finite number: %v", what, v)}
	}
	return nil
}
