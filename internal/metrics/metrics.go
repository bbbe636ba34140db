// Package metrics exposes Prometheus instrumentation for the thermostat
// daemon. All collectors are registered on the default registry and served
// by the web package under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CurrentTemperature is the last measured room temperature.
	CurrentTemperature = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "thermod",
		Name:      "current_temperature_celsius",
		Help:      "Last measured room temperature.",
	})

	// TargetTemperature is the active target temperature. Not updated while
	// the mode is on or off, where no target exists.
	TargetTemperature = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "thermod",
		Name:      "target_temperature_celsius",
		Help:      "Active target temperature.",
	})

	// HeatingOn is 1 while the heating is on.
	HeatingOn = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "thermod",
		Name:      "heating_on",
		Help:      "Whether the heating is currently on.",
	})

	// Cycles counts control cycles by outcome.
	Cycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thermod",
		Name:      "cycles_total",
		Help:      "Control cycles by outcome.",
	}, []string{"outcome"})

	// SensorErrors counts failed temperature reads.
	SensorErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "thermod",
		Name:      "sensor_errors_total",
		Help:      "Failed temperature reads.",
	})

	// Switches counts actuator transitions.
	Switches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thermod",
		Name:      "heating_switches_total",
		Help:      "Heating actuator transitions.",
	}, []string{"direction"})

	// SettingsUpdates counts accepted configuration changes over HTTP.
	SettingsUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "thermod",
		Name:      "settings_updates_total",
		Help:      "Accepted configuration updates.",
	})
)

// RecordCycle updates the per-cycle gauges in one place.
func RecordCycle(current float64, target float64, hasTarget, heatingOn bool) {
	CurrentTemperature.Set(current)
	if hasTarget {
		TargetTemperature.Set(target)
	}
	if heatingOn {
		HeatingOn.Set(1)
		Cycles.WithLabelValues("on").Inc()
	} else {
		HeatingOn.Set(0)
		Cycles.WithLabelValues("off").Inc()
	}
}
