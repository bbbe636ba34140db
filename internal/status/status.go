// Package status provides a thread-safe status tracker for the thermostat
// daemon. It is read by HTTP handlers and published over MQTT.
package status

import (
	"sync"
	"time"
)

// Config contains daemon configuration for display.
type Config struct {
	IntervalS int64
	Broker    string
	HTTPAddr  string
	Timetable string
	Sensor    string
}

// Counts accumulates daemon activity since startup.
type Counts struct {
	HeatingOn    int
	HeatingOff   int
	Cycles       int
	SensorErrors int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Mode          string
	Current       float64
	CurrentValid  bool
	Target        float64
	TargetValid   bool
	HeatingOn     bool
	LastSwitchOn  time.Time
	SensorError   string
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update records the outcome of one control cycle: operating mode, measured
// and target temperatures, and the actuator state.
func (t *Tracker) Update(mode string, current, target float64, targetValid, heatingOn bool, lastSwitchOn time.Time) {
	t.mu.Lock()
	wasOn := t.snap.HeatingOn
	t.snap.Mode = mode
	t.snap.Current = current
	t.snap.CurrentValid = true
	t.snap.Target = target
	t.snap.TargetValid = targetValid
	t.snap.HeatingOn = heatingOn
	t.snap.LastSwitchOn = lastSwitchOn
	t.snap.SensorError = ""
	t.snap.Counts.Cycles++
	if heatingOn && !wasOn {
		t.snap.Counts.HeatingOn++
	} else if !heatingOn && wasOn {
		t.snap.Counts.HeatingOff++
	}
	t.mu.Unlock()
}

// SetSensorError records a failed temperature read. The last good
// temperature stays visible alongside the error.
func (t *Tracker) SetSensorError(msg string) {
	t.mu.Lock()
	t.snap.SensorError = msg
	t.snap.Counts.Cycles++
	t.snap.Counts.SensorErrors++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
