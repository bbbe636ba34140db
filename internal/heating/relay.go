//go:build linux

package heating

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warthog618/go-gpiocdev"
)

// Relay switches the heating through relays wired to GPIO output pins. All
// pins are driven together; the reported state is read back from the first
// pin so a stuck relay driver shows up as a state mismatch.
type Relay struct {
	chip     *gpiocdev.Chip
	lines    []*gpiocdev.Line
	pins     []int
	onLevel  int
	offLevel int

	mu     sync.Mutex
	lastOn time.Time
}

// NewRelay opens the given BCM pins as outputs, initially off. activeHigh
// selects the electrical level that energizes the relays.
func NewRelay(pins []int, activeHigh bool) (*Relay, error) {
	if len(pins) == 0 {
		return nil, &Error{Msg: "no GPIO pins configured for the heating"}
	}

	onLevel, offLevel := 1, 0
	if !activeHigh {
		onLevel, offLevel = 0, 1
	}

	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, &Error{Msg: "cannot open gpio chip", Suberror: err.Error(), Err: err}
	}

	r := &Relay{chip: chip, pins: pins, onLevel: onLevel, offLevel: offLevel}
	for _, pin := range pins {
		line, err := chip.RequestLine(pin, gpiocdev.AsOutput(offLevel))
		if err != nil {
			r.release()
			return nil, &Error{
				Msg:      fmt.Sprintf("cannot request GPIO pin %d", pin),
				Suberror: err.Error(),
				Err:      err,
			}
		}
		r.lines = append(r.lines, line)
	}

	logrus.WithFields(logrus.Fields{
		"pins":        pins,
		"active_high": activeHigh,
	}).Debug("heating: relay pins initialized")
	return r, nil
}

// SwitchOn energizes every relay and records the switch-on time.
func (r *Relay) SwitchOn() error {
	if err := r.set(r.onLevel); err != nil {
		return err
	}
	r.mu.Lock()
	r.lastOn = time.Now()
	r.mu.Unlock()
	logrus.Debug("heating: switched on")
	return nil
}

// SwitchOff de-energizes every relay.
func (r *Relay) SwitchOff() error {
	if err := r.set(r.offLevel); err != nil {
		return err
	}
	logrus.Debug("heating: switched off")
	return nil
}

func (r *Relay) set(level int) error {
	for i, line := range r.lines {
		if err := line.SetValue(level); err != nil {
			return &Error{
				Msg:      fmt.Sprintf("cannot drive GPIO pin %d", r.pins[i]),
				Suberror: err.Error(),
				Err:      err,
			}
		}
	}
	return nil
}

// IsOn reads the first pin back from the hardware.
func (r *Relay) IsOn() (bool, error) {
	v, err := r.lines[0].Value()
	if err != nil {
		return false, &Error{
			Msg:      fmt.Sprintf("cannot read GPIO pin %d", r.pins[0]),
			Suberror: err.Error(),
			Err:      err,
		}
	}
	return v == r.onLevel, nil
}

// LastSwitchOnTime returns when the heating was last switched on.
func (r *Relay) LastSwitchOnTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastOn
}

// Close switches the heating off and releases the GPIO lines. Pins are
// reconfigured as inputs with pull-down to match Pi boot defaults.
func (r *Relay) Close() error {
	err := r.set(r.offLevel)
	r.release()
	return err
}

func (r *Relay) release() {
	for _, line := range r.lines {
		line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown)
		line.Close()
	}
	r.lines = nil
	r.chip.Close()
}
