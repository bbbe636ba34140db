package schedule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HeatingState is the read-only view of the actuator the decision algorithm
// needs. The store never drives the actuator itself.
type HeatingState interface {
	// IsOn reports whether the heating is currently running.
	IsOn() (bool, error)

	// LastSwitchOnTime returns the time the heating was last switched on,
	// used for the anti-short-cycle grace timer.
	LastSwitchOnTime() time.Time
}

// Store owns the settings and serializes every read and write on a single
// mutex. A buffered change channel wakes a control loop blocked on the next
// relevant change instead of its poll timer.
type Store struct {
	mu  sync.Mutex
	cur Settings

	// validated is a cache: true once a full validation has passed and no
	// field has since been mutated. Cleared by every setter, re-checked by
	// any entry point that needs valid settings.
	validated bool

	lastUpdate time.Time
	heating    HeatingState
	changes    chan struct{}
}

// New creates a Store with the original daemon defaults (differential 0.5,
// grace time one hour) and empty temperatures and timetable. The store is
// invalid until fully populated via Replace, SetJSON or Load.
func New(heating HeatingState) *Store {
	return &Store{
		cur: Settings{
			Differential: 0.5,
			GraceTime:    3600,
			Temperatures: make(map[string]float64),
			Timetable:    make(map[string]map[string][]Temperature),
		},
		heating: heating,
		changes: make(chan struct{}, 1),
	}
}

// Changes returns a channel that receives a token after every committed
// mutation. Signals coalesce: a slow consumer sees at least one.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// LastUpdate returns the time of the last committed change, or the settings
// file modification time right after Load.
func (s *Store) LastUpdate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUpdate
}

// validateLocked runs a full validation unless the cached flag says the
// current state is already known valid. Caller must hold the mutex.
func (s *Store) validateLocked() error {
	if s.validated {
		return nil
	}
	if err := s.cur.Validate(); err != nil {
		return err
	}
	s.validated = true
	return nil
}

// Settings validates the current state and returns a deep copy of it.
// The internal state is never handed out directly.
func (s *Store) Settings() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateLocked(); err != nil {
		return nil, err
	}
	return s.cur.Clone(), nil
}

// Replace validates the candidate and commits it atomically. On any failure
// the prior state is untouched; a post-commit re-validation failure restores
// it and reports an InvariantError.
func (s *Store) Replace(candidate *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceLocked(candidate)
}

func (s *Store) replaceLocked(candidate *Settings) error {
	if err := candidate.Validate(); err != nil {
		return err
	}

	old := s.cur
	oldValidated := s.validated

	s.cur = *candidate.Clone()
	s.validated = false

	// The candidate was valid a moment ago; if the stored copy is not, some
	// invariant of Clone or Validate is broken. Roll back and flag loudly.
	if err := s.validateLocked(); err != nil {
		s.cur = old
		s.validated = oldValidated
		logrus.WithError(err).Error("schedule: settings became invalid after commit, old state restored")
		return &InvariantError{Err: err}
	}

	s.touchLocked()
	logrus.WithFields(logrus.Fields{
		"status":       s.cur.Status,
		"differential": s.cur.Differential,
	}).Debug("schedule: new settings committed")
	return nil
}

func (s *Store) touchLocked() {
	s.lastUpdate = time.Now()
	s.notify()
}

// JSON validates the current state and returns it encoded with stable key
// ordering.
func (s *Store) JSON() ([]byte, error) {
	settings, err := s.Settings()
	if err != nil {
		return nil, err
	}
	return json.Marshal(settings)
}

// SetJSON decodes, validates and commits a full settings document. A decode
// failure is reported as a SyntaxError, a schema failure as a
// ValidationError; in both cases the store is unchanged.
func (s *Store) SetJSON(data []byte) error {
	candidate, err := decodeSettings(data)
	if err != nil {
		return err
	}
	return s.Replace(candidate)
}

func decodeSettings(data []byte) (*Settings, error) {
	var candidate Settings
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&candidate); err != nil {
		if _, ok := err.(*FieldValueError); ok {
			return nil, err
		}
		return nil, &SyntaxError{Err: err}
	}
	return &candidate, nil
}

// SetStatus sets a new operating status.
func (s *Store) SetStatus(status string) error {
	if !isStatus(status) {
		return &FieldValueError{Field: "status", Value: status, Domain: "one of: " + strings.Join(AllStatuses, ", ")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.Status = status
	s.validated = false
	s.touchLocked()
	logrus.WithField("status", status).Debug("schedule: new status set")
	return nil
}

// SetTemperature sets one of the reference temperatures t0, tmin, tmax.
// Only the single value is checked; cross-field validity is re-established
// lazily on the next full validation.
func (s *Store) SetTemperature(name string, value float64) error {
	if !IsReferenceName(name) {
		return &FieldValueError{Field: "temperature name", Value: name, Domain: "one of: " + strings.Join(ReferenceNames, ", ")}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return &FieldValueError{Field: name, Value: value, Domain: "a number"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.Temperatures[name] = round1(value)
	s.validated = false
	s.touchLocked()
	logrus.WithFields(logrus.Fields{"name": name, "value": round1(value)}).Debug("schedule: reference temperature set")
	return nil
}

// SetDifferential sets the hysteresis half-band width in degrees.
func (s *Store) SetDifferential(value float64) error {
	if math.IsNaN(value) || value < 0 || value > 1 {
		return &FieldValueError{Field: "differential", Value: value, Domain: "a number in range [0;1]"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.Differential = value
	s.validated = false
	s.touchLocked()
	return nil
}

// SetGraceTime sets the anti-short-cycle grace time from its string form
// (seconds, or "inf" to disable).
func (s *Store) SetGraceTime(value string) error {
	secs, err := ParseSeconds(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.GraceTime = secs
	s.validated = false
	s.touchLocked()
	return nil
}

// UpdateCell writes a single timetable cell. Missing day or hour entries are
// created so a timetable can be populated incrementally; the store stays
// marked dirty until a full validation passes.
func (s *Store) UpdateCell(day, hour string, quarter int, value string) error {
	d, err := CanonicalDay(day)
	if err != nil {
		return err
	}
	h, err := FormatHour(hour)
	if err != nil {
		return err
	}
	if quarter < 0 || quarter > 3 {
		return &FieldValueError{Field: "quarter", Value: quarter, Domain: "a quarter in range 0-3"}
	}
	temp, err := ParseTemperature(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur.Timetable[d] == nil {
		s.cur.Timetable[d] = make(map[string][]Temperature)
	}
	if s.cur.Timetable[d][h] == nil {
		s.cur.Timetable[d][h] = make([]Temperature, 4)
	}
	s.cur.Timetable[d][h][quarter] = temp
	s.validated = false
	s.touchLocked()

	logrus.WithFields(logrus.Fields{
		"day": d, "hour": h, "quarter": quarter, "temperature": temp,
	}).Debug("schedule: timetable cell updated")
	return nil
}

// UpdateDays replaces the timetable of one or more whole days from a partial
// JSON document keyed by day name. The update is all-or-nothing: on any
// validation failure the store is exactly as before the call. It returns the
// canonical names of the updated days.
func (s *Store) UpdateDays(data []byte) ([]string, error) {
	var part map[string]map[string][]Temperature
	if err := json.Unmarshal(data, &part); err != nil {
		if _, ok := err.(*FieldValueError); ok {
			return nil, err
		}
		return nil, &SyntaxError{Err: err}
	}
	if len(part) == 0 {
		return nil, &FieldValueError{Field: "days", Value: string(data), Domain: "a JSON object with at least one day"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateLocked(); err != nil {
		return nil, err
	}

	candidate := s.cur.Clone()
	updated := make([]string, 0, len(part))
	for day, hours := range part {
		d, err := CanonicalDay(day)
		if err != nil {
			return nil, err
		}
		candidate.Timetable[d] = hours
		updated = append(updated, d)
	}

	if err := s.replaceLocked(candidate); err != nil {
		return nil, err
	}
	sort.Strings(updated)
	return updated, nil
}

// Degrees resolves a cell value to degrees, looking reference names up in
// the current reference temperatures.
func (s *Store) Degrees(t Temperature) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degreesLocked(t)
}

func (s *Store) degreesLocked(t Temperature) (float64, error) {
	if t.IsReference() {
		v, ok := s.cur.Temperatures[string(t)]
		if !ok {
			return 0, &ValidationError{Field: "temperatures", Reason: fmt.Sprintf("reference temperature `%s` is not set", t)}
		}
		return v, nil
	}
	return t.Degrees()
}

// Load reads, validates and commits the settings file at path. The store is
// only replaced on success, and the last-update timestamp is seeded from the
// file modification time.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &PersistenceError{Op: "read", Path: path, Err: err}
	}

	candidate, err := decodeSettings(data)
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return &PersistenceError{Op: "stat", Path: path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.replaceLocked(candidate); err != nil {
		return err
	}
	s.lastUpdate = info.ModTime()
	logrus.WithField("path", path).Info("schedule: settings loaded")
	return nil
}

// Save validates the current state and writes it to path with sorted keys
// and 2-space indentation, so successive saves diff cleanly.
func (s *Store) Save(path string) error {
	settings, err := s.Settings()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "encode", Path: path, Err: err}
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &PersistenceError{Op: "write", Path: path, Err: err}
	}
	logrus.WithField("path", path).Debug("schedule: settings saved")
	return nil
}
