//go:build !linux

package heating

import (
	"errors"
	"time"
)

// Relay is not available on non-Linux platforms.
type Relay struct{}

// NewRelay returns an error on non-Linux platforms.
func NewRelay([]int, bool) (*Relay, error) {
	return nil, errors.New("heating: GPIO relays require Linux")
}

// SwitchOn is not implemented on non-Linux platforms.
func (r *Relay) SwitchOn() error { return errors.New("heating: not supported") }

// SwitchOff is not implemented on non-Linux platforms.
func (r *Relay) SwitchOff() error { return errors.New("heating: not supported") }

// IsOn is not implemented on non-Linux platforms.
func (r *Relay) IsOn() (bool, error) { return false, errors.New("heating: not supported") }

// LastSwitchOnTime returns the zero time on non-Linux platforms.
func (r *Relay) LastSwitchOnTime() time.Time { return time.Time{} }

// Close is a no-op on non-Linux platforms.
func (r *Relay) Close() error { return nil }
