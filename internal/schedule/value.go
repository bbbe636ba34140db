// Package schedule owns the validated thermostat configuration (operating
// status, reference temperatures, the weekly quarter-hour timetable,
// hysteresis differential and anti-short-cycle grace time) and the decision
// algorithm that turns a measured temperature into an on/off verdict.
//
// All state lives behind a single mutex: readers that need a consistent
// cross-field view and every writer serialize on it, so a decision always
// observes either the fully-old or fully-new configuration.
package schedule

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Operating statuses. The three reference temperature names are also valid
// statuses and act as a manual override of the timetable.
const (
	StatusOn   = "on"
	StatusOff  = "off"
	StatusAuto = "auto"
)

// Reference temperature names.
const (
	T0   = "t0"
	TMin = "tmin"
	TMax = "tmax"
)

// AllStatuses lists every accepted value for the status field.
var AllStatuses = []string{StatusOn, StatusOff, StatusAuto, T0, TMin, TMax}

// ReferenceNames lists the three reference temperature names.
var ReferenceNames = []string{T0, TMin, TMax}

// days indexed by time.Weekday (Sunday = 0).
var days = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// IsReferenceName reports whether s names one of the reference temperatures.
func IsReferenceName(s string) bool {
	return s == T0 || s == TMin || s == TMax
}

func isStatus(s string) bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// CanonicalDay resolves a day given as a canonical name, an English full or
// abbreviated name, or a number 0-7 (0 and 7 are both Sunday) to the
// canonical lower-case name used as a timetable key.
func CanonicalDay(day string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(day))

	if n, err := strconv.Atoi(d); err == nil {
		if n < 0 || n > 7 {
			return "", &FieldValueError{Field: "day", Value: day, Domain: "a day name or a number in range 0-7"}
		}
		return days[n%7], nil
	}

	for _, name := range days {
		if d == name || d == name[:3] {
			return name, nil
		}
	}
	return "", &FieldValueError{Field: "day", Value: day, Domain: "a day name or a number in range 0-7"}
}

// DayOf returns the canonical day name for t.
func DayOf(t time.Time) string {
	return days[int(t.Weekday())]
}

// HourOf returns the timetable hour key ("00".."23") for t.
func HourOf(t time.Time) string {
	return fmt.Sprintf("%02d", t.Hour())
}

// QuarterOf returns the quarter-hour slot (0-3) for t.
func QuarterOf(t time.Time) int {
	return t.Minute() / 15
}

// FormatHour validates an hour given as "0".."23" (leading zero optional)
// and returns the zero-padded timetable key.
func FormatHour(hour string) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(hour))
	if err != nil || n < 0 || n > 23 {
		return "", &FieldValueError{Field: "hour", Value: hour, Domain: "an hour in range 0-23"}
	}
	return fmt.Sprintf("%02d", n), nil
}

// Temperature is one timetable cell: either a number formatted with one
// decimal ("20.5") or a reference temperature name ("t0", "tmin", "tmax").
type Temperature string

// ParseTemperature normalizes a cell value. Numbers are rounded to one
// decimal; additional precision only causes rapid on/off flapping.
func ParseTemperature(s string) (Temperature, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if IsReferenceName(v) {
		return Temperature(v), nil
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return "", &FieldValueError{
			Field:  "temperature",
			Value:  s,
			Domain: "a number or one of: " + strings.Join(ReferenceNames, ", "),
		}
	}
	return Temperature(strconv.FormatFloat(round1(f), 'f', 1, 64)), nil
}

// IsReference reports whether the cell holds a reference name.
func (t Temperature) IsReference() bool {
	return IsReferenceName(string(t))
}

// Degrees returns the numeric value of the cell. It fails on reference
// names; resolve those through Store.Degrees.
func (t Temperature) Degrees() (float64, error) {
	f, err := strconv.ParseFloat(string(t), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, &FieldValueError{Field: "temperature", Value: string(t), Domain: "a number"}
	}
	return f, nil
}

// Valid reports whether the cell holds a reference name or a finite number.
func (t Temperature) Valid() bool {
	if t.IsReference() {
		return true
	}
	_, err := t.Degrees()
	return err == nil
}

// MarshalJSON writes numeric cells as JSON numbers and reference names as
// strings, matching the on-disk timetable format.
func (t Temperature) MarshalJSON() ([]byte, error) {
	if t.IsReference() {
		return json.Marshal(string(t))
	}
	if _, err := t.Degrees(); err != nil {
		return nil, err
	}
	return []byte(t), nil
}

// UnmarshalJSON accepts a JSON number or a string holding a number or a
// reference name.
func (t *Temperature) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return &FieldValueError{Field: "temperature", Value: string(data), Domain: "a number or a temperature name"}
		}
		s = strconv.FormatFloat(f, 'f', -1, 64)
	}
	v, err := ParseTemperature(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Seconds holds the grace time. Positive infinity disables the
// anti-short-cycle forcing and is encoded as the string "inf" because JSON
// has no infinity literal.
type Seconds float64

// Infinite reports whether the grace time is disabled.
func (s Seconds) Infinite() bool {
	return math.IsInf(float64(s), 1)
}

// MarshalJSON writes a number, or "inf" for the disabled value.
func (s Seconds) MarshalJSON() ([]byte, error) {
	if s.Infinite() {
		return json.Marshal("inf")
	}
	return json.Marshal(float64(s))
}

// UnmarshalJSON accepts a non-negative number or the strings "inf",
// "+inf", "infinity" (case-insensitive).
func (s *Seconds) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		v, err := ParseSeconds(str)
		if err != nil {
			return err
		}
		*s = v
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return &FieldValueError{Field: "grace_time", Value: string(data), Domain: "a positive number of seconds or the string `inf`"}
	}
	v, err := ParseSeconds(strconv.FormatFloat(f, 'f', -1, 64))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSeconds parses a grace time from its string form. Finite values are
// rounded to whole seconds.
func ParseSeconds(s string) (Seconds, error) {
	v := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "+")
	if v == "inf" || v == "infinity" {
		return Seconds(math.Inf(1)), nil
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || f < 0 {
		return 0, &FieldValueError{Field: "grace_time", Value: s, Domain: "a positive number of seconds or the string `inf`"}
	}
	if math.IsInf(f, 1) {
		return Seconds(f), nil
	}
	return Seconds(math.Round(f)), nil
}

// round1 rounds to one decimal place.
func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
