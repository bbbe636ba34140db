package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Mode          string     `json:"mode"`
	Current       *float64   `json:"current_temperature"`
	Target        *float64   `json:"target_temperature"`
	Heating       string     `json:"heating"`
	LastSwitchOn  string     `json:"last_switch_on,omitempty"`
	SensorError   string     `json:"sensor_error,omitempty"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"counts"`
	Config        ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of the activity counters.
type CountsJSON struct {
	HeatingOn    int `json:"heating_on"`
	HeatingOff   int `json:"heating_off"`
	Cycles       int `json:"cycles"`
	SensorErrors int `json:"sensor_errors"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	IntervalS int64  `json:"interval_s"`
	Broker    string `json:"broker"`
	HTTPAddr  string `json:"http_addr"`
	Timetable string `json:"timetable"`
	Sensor    string `json:"sensor"`
}

func buildInner(snap Snapshot) StatusInner {
	mode := snap.Mode
	if mode == "" {
		mode = "unknown"
	}
	heating := "OFF"
	if snap.HeatingOn {
		heating = "ON"
	}

	inner := StatusInner{
		Mode:          mode,
		Heating:       heating,
		SensorError:   snap.SensorError,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			HeatingOn:    snap.Counts.HeatingOn,
			HeatingOff:   snap.Counts.HeatingOff,
			Cycles:       snap.Counts.Cycles,
			SensorErrors: snap.Counts.SensorErrors,
		},
		Config: ConfigJSON{
			IntervalS: snap.Config.IntervalS,
			Broker:    snap.Config.Broker,
			HTTPAddr:  snap.Config.HTTPAddr,
			Timetable: snap.Config.Timetable,
			Sensor:    snap.Config.Sensor,
		},
	}

	if snap.CurrentValid {
		v := snap.Current
		inner.Current = &v
	}
	if snap.TargetValid {
		v := snap.Target
		inner.Target = &v
	}
	if !snap.LastSwitchOn.IsZero() {
		inner.LastSwitchOn = snap.LastSwitchOn.UTC().Format(time.RFC3339)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
