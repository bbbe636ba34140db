package schedule

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// Target resolves the target temperature in effect at now: the manual
// reference temperature when the status is one of t0/tmin/tmax, or the
// timetable cell for the current day, hour and quarter when auto. It fails
// for the on/off statuses, which have no target.
func (s *Store) Target(now time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateLocked(); err != nil {
		return 0, err
	}
	return s.targetLocked(now)
}

func (s *Store) targetLocked(now time.Time) (float64, error) {
	switch {
	case IsReferenceName(s.cur.Status):
		return s.degreesLocked(Temperature(s.cur.Status))

	case s.cur.Status == StatusAuto:
		day := DayOf(now)
		hour := HourOf(now)
		quarter := QuarterOf(now)

		hours, ok := s.cur.Timetable[day]
		if !ok {
			return 0, &ValidationError{Field: "timetable", Reason: fmt.Sprintf("missing day `%s`", day)}
		}
		quarters, ok := hours[hour]
		if !ok || quarter >= len(quarters) {
			return 0, &ValidationError{
				Field:  fmt.Sprintf("timetable.%s.%s", day, hour),
				Reason: fmt.Sprintf("missing cell for quarter %d", quarter),
			}
		}
		return s.degreesLocked(quarters[quarter])
	}

	return 0, &ValidationError{Field: "status", Reason: fmt.Sprintf("status `%s` has no target temperature", s.cur.Status)}
}

// ShouldHeat returns the hysteresis verdict for the measured temperature.
//
// A full validation runs first: the heating must never act on invalid
// settings. For statuses other than plain on/off the verdict is
//
//	current <= target-diff                              (too cold, always on)
//	|| current < target && now-lastOn > grace           (forced restart)
//	|| current < target+diff && heating is on           (hysteresis hold)
//
// The forced-restart term bounds how long the system can coast inside the
// lower half-band while off; an infinite grace time disables it, leaving
// pure two-edge hysteresis. The term re-arms anywhere below target, so at
// the lower band edge it coincides with the too-cold override.
func (s *Store) ShouldHeat(current float64, now time.Time) (bool, error) {
	if math.IsNaN(current) || math.IsInf(current, 0) {
		return false, &FieldValueError{Field: "current temperature", Value: current, Domain: "a finite number"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateLocked(); err != nil {
		return false, err
	}

	switch s.cur.Status {
	case StatusOn:
		return true, nil
	case StatusOff:
		return false, nil
	}

	target, err := s.targetLocked(now)
	if err != nil {
		return false, err
	}

	isOn, err := s.heating.IsOn()
	if err != nil {
		return false, fmt.Errorf("read heating state: %w", err)
	}

	diff := s.cur.Differential
	sinceOn := now.Sub(s.heating.LastSwitchOnTime()).Seconds()
	grace := float64(s.cur.GraceTime)

	verdict := current <= target-diff ||
		(current < target && sinceOn > grace) ||
		(current < target+diff && isOn)

	logrus.WithFields(logrus.Fields{
		"current": current,
		"target":  target,
		"diff":    diff,
		"is_on":   isOn,
		"verdict": verdict,
	}).Debug("schedule: hysteresis verdict")
	return verdict, nil
}
