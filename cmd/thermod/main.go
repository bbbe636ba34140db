// Command thermod keeps a room at temperature: it reads a thermometer,
// follows a weekly schedule and drives the heating, exposing a control API
// over HTTP and events over MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/thermod/internal/heating"
	"github.com/sweeney/thermod/internal/metrics"
	"github.com/sweeney/thermod/internal/mqtt"
	"github.com/sweeney/thermod/internal/schedule"
	"github.com/sweeney/thermod/internal/sensor"
	"github.com/sweeney/thermod/internal/status"
	"github.com/sweeney/thermod/internal/web"
)

func main() {
	timetable := flag.String("timetable", "/etc/thermod/timetable.json", "Timetable file")
	interval := flag.Duration("interval", 30*time.Second, "Control cycle interval")
	readTimeout := flag.Duration("read-timeout", 10*time.Second, "Temperature read timeout")
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	broker := flag.String("broker", "", "MQTT broker address (empty to disable)")
	httpAddr := flag.String("http", ":4344", "HTTP control API address (empty to disable)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")

	sensorKind := flag.String("sensor", "script", "Temperature source: script, fixed or adc")
	sensorScript := flag.String("sensor-script", "", "Command reading the temperature (script sensor)")
	fixedTemp := flag.Float64("fixed-temp", 20.0, "Reported temperature (fixed sensor)")
	adcDevice := flag.String("adc-device", "", "SPI device of the A/D converter (adc sensor)")
	adcChannels := flag.String("adc-channels", "0,1,2", "A/D channels with probes attached")
	adcStddev := flag.Float64("adc-stddev", 2.0, "Probe spread warning threshold")

	calibRef := flag.String("calibration-ref", "", "Reference temperatures for calibration (comma separated)")
	calibRaw := flag.String("calibration-raw", "", "Raw readings matching -calibration-ref")
	queueLen := flag.Int("similarity-queue", 12, "Similarity filter history length (0 to disable)")
	delta := flag.Float64("similarity-delta", 3.0, "Similarity filter rejection threshold")
	avgTime := flag.Duration("avg-time", 0, "Averaging window (0 to disable)")
	avgSkip := flag.Float64("avg-skip", 0.33, "Fraction of extreme samples excluded from the average")

	heatingKind := flag.String("heating", "relay", "Heating actuator: relay, script or fake")
	relayPins := flag.String("relay-pins", "23", "BCM pins driving the heating relays")
	relayActiveHigh := flag.Bool("relay-active-high", true, "Electrical level that switches the heating on")
	switchOnCmd := flag.String("switch-on-cmd", "", "Command switching the heating on (script actuator)")
	switchOffCmd := flag.String("switch-off-cmd", "", "Command switching the heating off (script actuator)")
	statusCmd := flag.String("status-cmd", "", "Command reporting the heating state (script actuator)")

	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("invalid log level %q", *logLevel)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := run(config{
		timetable:       *timetable,
		interval:        *interval,
		readTimeout:     *readTimeout,
		heartbeat:       *heartbeat,
		broker:          *broker,
		httpAddr:        *httpAddr,
		sensorKind:      *sensorKind,
		sensorScript:    *sensorScript,
		fixedTemp:       *fixedTemp,
		adcDevice:       *adcDevice,
		adcChannels:     *adcChannels,
		adcStddev:       *adcStddev,
		calibRef:        *calibRef,
		calibRaw:        *calibRaw,
		queueLen:        *queueLen,
		delta:           *delta,
		avgTime:         *avgTime,
		avgSkip:         *avgSkip,
		heatingKind:     *heatingKind,
		relayPins:       *relayPins,
		relayActiveHigh: *relayActiveHigh,
		switchOnCmd:     *switchOnCmd,
		switchOffCmd:    *switchOffCmd,
		statusCmd:       *statusCmd,
	}); err != nil {
		logrus.Fatalf("fatal: %v", err)
	}
}

type config struct {
	timetable   string
	interval    time.Duration
	readTimeout time.Duration
	heartbeat   time.Duration
	broker      string
	httpAddr    string

	sensorKind   string
	sensorScript string
	fixedTemp    float64
	adcDevice    string
	adcChannels  string
	adcStddev    float64

	calibRef string
	calibRaw string
	queueLen int
	delta    float64
	avgTime  time.Duration
	avgSkip  float64

	heatingKind     string
	relayPins       string
	relayActiveHigh bool
	switchOnCmd     string
	switchOffCmd    string
	statusCmd       string
}

func run(cfg config) error {
	actuator, err := buildActuator(cfg)
	if err != nil {
		return fmt.Errorf("init heating: %w", err)
	}
	defer actuator.Close()

	store := schedule.New(actuator)
	if err := store.Load(cfg.timetable); err != nil {
		return fmt.Errorf("load timetable: %w", err)
	}

	cal, err := buildCalibration(cfg)
	if err != nil {
		return fmt.Errorf("init calibration: %w", err)
	}

	therm, err := buildThermometer(context.Background(), cfg, cal)
	if err != nil {
		return fmt.Errorf("init sensor: %w", err)
	}
	defer therm.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		IntervalS: int64(cfg.interval.Seconds()),
		Broker:    cfg.broker,
		HTTPAddr:  cfg.httpAddr,
		Timetable: cfg.timetable,
		Sensor:    cfg.sensorKind,
	})

	var publisher mqtt.Publisher = mqtt.NewFakePublisher()
	var mqttStatus mqtt.ConnectionStatus
	if cfg.broker != "" {
		real, err := mqtt.NewRealPublisher(cfg.broker, tracker.SetMQTTConnected)
		if err != nil {
			return fmt.Errorf("connect broker: %w", err)
		}
		publisher = real
		mqttStatus = real
		tracker.SetMQTTConnected(real.IsConnected())
	}
	defer publisher.Close()

	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startup); err != nil {
		logrus.WithError(err).Warn("failed to publish startup event")
	}

	if cfg.httpAddr != "" {
		srv := web.New(cfg.httpAddr, store, tracker, cfg.timetable)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logrus.WithError(err).Error("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		logrus.WithField("addr", cfg.httpAddr).Info("http control API listening")
	}

	logrus.WithFields(logrus.Fields{
		"timetable": cfg.timetable,
		"interval":  cfg.interval,
		"sensor":    cfg.sensorKind,
		"heating":   cfg.heatingKind,
	}).Info("thermod started")

	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(store, therm, actuator, publisher, mqttStatus, tracker,
		cfg.readTimeout, cfg.heartbeat, time.Now, ticker.C, store.Changes(), sigCh)
}

// runLoop is the daemon's control loop. Every tick it reads the temperature,
// asks the schedule whether the heating should run and drives the actuator
// on verdict changes. A settings change triggers an immediate extra cycle.
// It returns when a signal arrives, after switching the heating off.
func runLoop(store *schedule.Store, therm sensor.Thermometer, actuator heating.Actuator,
	publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker,
	readTimeout, heartbeat time.Duration, now func() time.Time,
	tick <-chan time.Time, changes <-chan struct{}, sig <-chan os.Signal) error {

	lastHeartbeat := now()

	cycle := func(t time.Time) {
		ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
		current, err := therm.CalibratedValue(ctx)
		cancel()
		if err != nil {
			logrus.WithError(err).Warn("temperature read failed, skipping cycle")
			tracker.SetSensorError(err.Error())
			metrics.SensorErrors.Inc()
			return
		}

		verdict, err := store.ShouldHeat(current, t)
		if err != nil {
			logrus.WithError(err).Error("cannot decide heating state")
			return
		}

		wasOn, err := actuator.IsOn()
		if err != nil {
			logrus.WithError(err).Error("cannot query heating state")
			return
		}

		settings, err := store.Settings()
		if err != nil {
			logrus.WithError(err).Error("cannot read settings")
			return
		}
		target, terr := store.Target(t)
		hasTarget := terr == nil

		if verdict != wasOn {
			if verdict {
				err = actuator.SwitchOn()
			} else {
				err = actuator.SwitchOff()
			}
			if err != nil {
				logrus.WithError(err).Error("cannot switch the heating")
				tracker.Update(settings.Status, current, target, hasTarget, wasOn, actuator.LastSwitchOnTime())
				return
			}

			eventType := "HEATING_OFF"
			direction := "off"
			if verdict {
				eventType = "HEATING_ON"
				direction = "on"
			}
			metrics.Switches.WithLabelValues(direction).Inc()
			logrus.WithFields(logrus.Fields{
				"current": current,
				"target":  target,
				"mode":    settings.Status,
			}).Info("heating switched " + direction)

			event := mqtt.Event{
				Timestamp: t,
				Type:      eventType,
				Mode:      settings.Status,
				Current:   current,
				Target:    target,
				HasTarget: hasTarget,
			}
			if err := publisher.Publish(event); err != nil {
				logrus.WithError(err).Warn("publish error")
			}
		}

		tracker.Update(settings.Status, current, target, hasTarget, verdict, actuator.LastSwitchOnTime())
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
		metrics.RecordCycle(current, target, hasTarget, verdict)
	}

	// The heartbeat runs outside cycle: a dead sensor must not silence the
	// daemon's liveness signal.
	beat := func(t time.Time) {
		if heartbeat <= 0 || t.Sub(lastHeartbeat) < heartbeat {
			return
		}
		lastHeartbeat = t
		snap := tracker.Snapshot()
		hb := mqtt.SystemEvent{
			Timestamp:  t,
			Event:      "HEARTBEAT",
			RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
		}
		if err := publisher.PublishSystem(hb); err != nil {
			logrus.WithError(err).Warn("heartbeat publish error")
		}
	}

	for {
		select {
		case s := <-sig:
			logrus.Infof("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}

			// The heating must never stay on unattended.
			if err := actuator.SwitchOff(); err != nil {
				logrus.WithError(err).Error("cannot switch the heating off at shutdown")
			}

			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
			snap := tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
			}
			if err := publisher.PublishSystem(event); err != nil {
				logrus.WithError(err).Warn("failed to publish shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			cycle(t)
			beat(t)

		case <-changes:
			logrus.Info("settings changed, re-evaluating")
			t := now()
			cycle(t)
			beat(t)
		}
	}
}

func buildActuator(cfg config) (heating.Actuator, error) {
	switch cfg.heatingKind {
	case "relay":
		pins, err := parseInts(cfg.relayPins)
		if err != nil {
			return nil, fmt.Errorf("parse -relay-pins: %w", err)
		}
		return heating.NewRelay(pins, cfg.relayActiveHigh)
	case "script":
		return heating.NewScript(
			shellCommand(cfg.switchOnCmd),
			shellCommand(cfg.switchOffCmd),
			shellCommand(cfg.statusCmd),
		)
	case "fake":
		return heating.NewFake(), nil
	default:
		return nil, fmt.Errorf("unknown heating actuator %q", cfg.heatingKind)
	}
}

func buildCalibration(cfg config) (sensor.Calibration, error) {
	if cfg.calibRef == "" && cfg.calibRaw == "" {
		return sensor.Identity(), nil
	}
	ref, err := parseFloats(cfg.calibRef)
	if err != nil {
		return sensor.Calibration{}, fmt.Errorf("parse -calibration-ref: %w", err)
	}
	raw, err := parseFloats(cfg.calibRaw)
	if err != nil {
		return sensor.Calibration{}, fmt.Errorf("parse -calibration-raw: %w", err)
	}
	return sensor.NewCalibration(ref, raw)
}

func buildThermometer(ctx context.Context, cfg config, cal sensor.Calibration) (sensor.Thermometer, error) {
	var src sensor.Thermometer
	switch cfg.sensorKind {
	case "script":
		s, err := sensor.NewScript(shellCommand(cfg.sensorScript), cal)
		if err != nil {
			return nil, err
		}
		src = s
	case "fixed":
		src = sensor.NewFixed(cfg.fixedTemp, cal)
	case "adc":
		dev, err := sensor.NewMCP3008(cfg.adcDevice)
		if err != nil {
			return nil, err
		}
		channels, err := parseInts(cfg.adcChannels)
		if err != nil {
			dev.Close()
			return nil, fmt.Errorf("parse -adc-channels: %w", err)
		}
		readers := make([]sensor.ChannelReader, 0, len(channels))
		for _, ch := range channels {
			r, err := dev.Channel(ch)
			if err != nil {
				dev.Close()
				return nil, err
			}
			readers = append(readers, r)
		}
		m, err := sensor.NewMultiChannel(readers, cfg.adcStddev, cal)
		if err != nil {
			dev.Close()
			return nil, err
		}
		src = m
	default:
		return nil, fmt.Errorf("unknown sensor %q", cfg.sensorKind)
	}

	chainCfg := sensor.ChainConfig{
		QueueLen: cfg.queueLen,
		Delta:    cfg.delta,
	}
	if cfg.avgTime > 0 {
		chainCfg.ShortInterval = cfg.interval
		chainCfg.AveragingTime = cfg.avgTime
		chainCfg.SkipVal = cfg.avgSkip
	}
	return sensor.NewChain(ctx, src, chainCfg)
}

// shellCommand wraps a command string for /bin/sh so flags can carry full
// pipelines.
func shellCommand(cmd string) []string {
	if cmd == "" {
		return nil
	}
	return []string{"/bin/sh", "-c", cmd}
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
