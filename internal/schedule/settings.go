package schedule

import (
	"fmt"
	"math"
)

// Settings is the full thermostat configuration as persisted on disk and
// exchanged with the control API.
type Settings struct {
	Status       string                              `json:"status"`
	Differential float64                             `json:"differential"`
	GraceTime    Seconds                             `json:"grace_time"`
	Temperatures map[string]float64                  `json:"temperatures"`
	Timetable    map[string]map[string][]Temperature `json:"timetable"`
}

// Clone returns a deep copy. The maps are rebuilt so mutating the copy never
// leaks into the original.
func (s *Settings) Clone() *Settings {
	c := &Settings{
		Status:       s.Status,
		Differential: s.Differential,
		GraceTime:    s.GraceTime,
		Temperatures: make(map[string]float64, len(s.Temperatures)),
		Timetable:    make(map[string]map[string][]Temperature, len(s.Timetable)),
	}
	for k, v := range s.Temperatures {
		c.Temperatures[k] = v
	}
	for day, hours := range s.Timetable {
		ch := make(map[string][]Temperature, len(hours))
		for hour, quarters := range hours {
			cq := make([]Temperature, len(quarters))
			copy(cq, quarters)
			ch[hour] = cq
		}
		c.Timetable[day] = ch
	}
	return c
}

// Validate checks every invariant of the settings jointly: known status,
// differential in [0,1], non-negative grace time, exactly the three
// reference temperatures, and a complete 7x24x4 timetable whose every cell
// is a number or a reference name.
func (s *Settings) Validate() error {
	if !isStatus(s.Status) {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status `%s`", s.Status)}
	}

	if math.IsNaN(s.Differential) || s.Differential < 0 || s.Differential > 1 {
		return &ValidationError{Field: "differential", Reason: fmt.Sprintf("value %v outside range [0;1]", s.Differential)}
	}

	if math.IsNaN(float64(s.GraceTime)) || s.GraceTime < 0 {
		return &ValidationError{Field: "grace_time", Reason: fmt.Sprintf("value %v is negative", float64(s.GraceTime))}
	}

	if len(s.Temperatures) != len(ReferenceNames) {
		return &ValidationError{Field: "temperatures", Reason: "exactly t0, tmin and tmax must be set"}
	}
	for _, name := range ReferenceNames {
		v, ok := s.Temperatures[name]
		if !ok {
			return &ValidationError{Field: "temperatures", Reason: fmt.Sprintf("missing reference temperature `%s`", name)}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ValidationError{Field: "temperatures", Reason: fmt.Sprintf("`%s` is not a finite number", name)}
		}
	}

	if len(s.Timetable) != len(days) {
		return &ValidationError{Field: "timetable", Reason: "all seven days must be present"}
	}
	for _, day := range days {
		hours, ok := s.Timetable[day]
		if !ok {
			return &ValidationError{Field: "timetable", Reason: fmt.Sprintf("missing day `%s`", day)}
		}
		if len(hours) != 24 {
			return &ValidationError{Field: "timetable." + day, Reason: "all 24 hours must be present"}
		}
		for h := 0; h < 24; h++ {
			key := fmt.Sprintf("%02d", h)
			quarters, ok := hours[key]
			if !ok {
				return &ValidationError{Field: "timetable." + day, Reason: fmt.Sprintf("missing hour `%s`", key)}
			}
			if len(quarters) != 4 {
				return &ValidationError{
					Field:  fmt.Sprintf("timetable.%s.%s", day, key),
					Reason: fmt.Sprintf("%d quarters instead of 4", len(quarters)),
				}
			}
			for q, cell := range quarters {
				if !cell.Valid() {
					return &ValidationError{
						Field:  fmt.Sprintf("timetable.%s.%s[%d]", day, key, q),
						Reason: fmt.Sprintf("cell `%s` is neither a number nor a temperature name", cell),
					}
				}
			}
		}
	}

	return nil
}
