package sensor

import "fmt"

// Calibration is an immutable linear correction y = a*x + b mapping raw
// sensor output to the true temperature scale.
type Calibration struct {
	a, b float64
}

// Identity returns the no-op calibration.
func Identity() Calibration {
	return Calibration{a: 1, b: 0}
}

// NewCalibration fits a line through the reference/raw sample pairs with
// ordinary least squares. An empty or single-point raw list disables
// calibration and yields the identity; with two or more raw points the two
// lists must have equal length.
func NewCalibration(tRef, tRaw []float64) (Calibration, error) {
	if len(tRaw) < 2 {
		return Identity(), nil
	}
	if len(tRef) != len(tRaw) {
		return Calibration{}, fmt.Errorf("calibration needs equally long lists, got %d reference and %d raw points", len(tRef), len(tRaw))
	}

	n := float64(len(tRaw))
	var sx, sy, sxx, sxy float64
	for i, x := range tRaw {
		y := tRef[i]
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
	}

	den := n*sxx - sx*sx
	if den == 0 {
		return Calibration{}, fmt.Errorf("calibration points are degenerate, all raw values equal")
	}

	a := (n*sxy - sx*sy) / den
	b := (sy - a*sx) / n
	return Calibration{a: a, b: b}, nil
}

// Apply maps a raw value to the calibrated scale.
func (c Calibration) Apply(raw float64) float64 {
	return c.a*raw + c.b
}
