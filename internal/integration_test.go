package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/sweeney/thermod/internal/heating"
	"github.com/sweeney/thermod/internal/mqtt"
	"github.com/sweeney/thermod/internal/schedule"
	"github.com/sweeney/thermod/internal/sensor"
)

var weekdays = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

func seededStore(t *testing.T, act schedule.HeatingState) *schedule.Store {
	t.Helper()

	tt := make(map[string]map[string][]schedule.Temperature)
	for _, day := range weekdays {
		hours := make(map[string][]schedule.Temperature)
		for h := 0; h < 24; h++ {
			hours[fmt.Sprintf("%02d", h)] = []schedule.Temperature{"tmax", "tmax", "tmax", "tmax"}
		}
		tt[day] = hours
	}
	store := schedule.New(act)
	err := store.Replace(&schedule.Settings{
		Status:       schedule.StatusAuto,
		Differential: 0.5,
		GraceTime:    3600,
		Temperatures: map[string]float64{"t0": 5, "tmin": 17, "tmax": 21},
		Timetable:    tt,
	})
	if err != nil {
		t.Fatalf("seed settings: %v", err)
	}
	return store
}

// TestIntegrationFullFlow drives the whole chain with fakes: a filtered
// temperature source, the schedule store, the actuator and the MQTT
// publisher, the way the daemon's control loop wires them.
func TestIntegrationFullFlow(t *testing.T) {
	// The room cools below the hysteresis band, holds, then overshoots:
	// exactly one switch-on and one switch-off.
	samples := []float64{
		21.2, // above target: off
		20.9, // inside the band while off: still off
		20.4, // below target-differential: HEATING_ON
		20.8, // inside the band while on: holds
		21.2, // inside the band while on: still holds
		21.6, // above target+differential: HEATING_OFF
		21.3, // inside the band while off again
	}

	src := sensor.NewFake(samples...)
	therm, err := sensor.NewChain(context.Background(), src, sensor.ChainConfig{
		QueueLen: 5,
		Delta:    3.0,
	})
	if err != nil {
		t.Fatalf("build chain: %v", err)
	}
	defer therm.Close()

	act := heating.NewFake()
	// A recent activation keeps the grace interval from forcing the
	// heating back on while the room sits just below target.
	act.SetLastSwitchOnTime(time.Date(2026, 1, 5, 11, 30, 0, 0, time.UTC))

	store := seededStore(t, act)
	publisher := mqtt.NewFakePublisher()

	start := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	interval := 30 * time.Second

	// Simulate the control loop. The chain's constructor consumed the
	// first sample as its seed; each cycle reads the next one.
	for i := 1; i < len(samples); i++ {
		now := start.Add(time.Duration(i) * interval)

		current, err := therm.CalibratedValue(context.Background())
		if err != nil {
			t.Fatalf("cycle %d: read: %v", i, err)
		}

		verdict, err := store.ShouldHeat(current, now)
		if err != nil {
			t.Fatalf("cycle %d: decide: %v", i, err)
		}

		wasOn, err := act.IsOn()
		if err != nil {
			t.Fatalf("cycle %d: actuator state: %v", i, err)
		}

		if verdict == wasOn {
			continue
		}

		eventType := "HEATING_OFF"
		if verdict {
			eventType = "HEATING_ON"
			if err := act.SwitchOn(); err != nil {
				t.Fatalf("cycle %d: switch on: %v", i, err)
			}
		} else {
			if err := act.SwitchOff(); err != nil {
				t.Fatalf("cycle %d: switch off: %v", i, err)
			}
		}

		target, _ := store.Target(now)
		event := mqtt.Event{
			Timestamp: now,
			Type:      eventType,
			Mode:      schedule.StatusAuto,
			Current:   current,
			Target:    target,
			HasTarget: true,
		}
		if err := publisher.Publish(event); err != nil {
			t.Fatalf("cycle %d: publish: %v", i, err)
		}
	}

	if len(publisher.Events) != 2 {
		t.Fatalf("expected 2 events, got %d: %v", len(publisher.Events), publisher.Events)
	}
	if publisher.Events[0].Type != "HEATING_ON" {
		t.Errorf("event 0: expected HEATING_ON, got %s", publisher.Events[0].Type)
	}
	if publisher.Events[0].Current != 20.4 {
		t.Errorf("event 0: current %v, want 20.4", publisher.Events[0].Current)
	}
	if publisher.Events[1].Type != "HEATING_OFF" {
		t.Errorf("event 1: expected HEATING_OFF, got %s", publisher.Events[1].Type)
	}
	if publisher.Events[1].Current != 21.6 {
		t.Errorf("event 1: current %v, want 21.6", publisher.Events[1].Current)
	}

	// The published payloads are well-formed JSON with the grid target.
	for i, payload := range publisher.Payloads {
		var parsed mqtt.Payload
		if err := json.Unmarshal(payload, &parsed); err != nil {
			t.Fatalf("payload %d: invalid JSON: %v", i, err)
		}
		if parsed.Thermostat.Target == nil || *parsed.Thermostat.Target != 21.0 {
			t.Errorf("payload %d: target %v, want 21.0", i, parsed.Thermostat.Target)
		}
		if parsed.Thermostat.Mode != "auto" {
			t.Errorf("payload %d: mode %q, want auto", i, parsed.Thermostat.Mode)
		}
	}

	if act.Switches() != 2 {
		t.Errorf("actuator transitions: got %d, want 2", act.Switches())
	}
}

// TestIntegrationSettingsUpdateChangesVerdict flips the operating mode over
// the store's JSON surface and checks the next cycle follows it.
func TestIntegrationSettingsUpdateChangesVerdict(t *testing.T) {
	act := heating.NewFake()
	act.SetLastSwitchOnTime(time.Date(2026, 1, 5, 6, 0, 0, 0, time.UTC))
	store := seededStore(t, act)

	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

	on, err := store.ShouldHeat(18.0, now)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !on {
		t.Fatal("expected heating on at 18.0 in auto mode")
	}

	if err := store.SetStatus(schedule.StatusOff); err != nil {
		t.Fatalf("set status: %v", err)
	}

	on, err = store.ShouldHeat(18.0, now)
	if err != nil {
		t.Fatalf("decide after update: %v", err)
	}
	if on {
		t.Error("expected heating off after switching the mode off")
	}

	// The change notification fired for the loop to pick up.
	select {
	case <-store.Changes():
	default:
		t.Error("expected a change notification after the update")
	}
}
