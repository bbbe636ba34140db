// Package heating drives the boiler. The real implementation switches relays
// through the Linux GPIO character device; a script-backed implementation
// shells out to external commands; the fake implementation allows testing
// without hardware.
package heating

import "time"

// Actuator switches the heating on and off and reports its current state.
// Implementations remember when the heating was last switched on so the
// decision logic can enforce a minimum activation interval.
type Actuator interface {
	SwitchOn() error
	SwitchOff() error

	// IsOn reports the actual state of the heating, queried from the
	// hardware or script, not a cached flag.
	IsOn() (bool, error)

	// LastSwitchOnTime returns when the heating was last switched on, or
	// the zero time if it never was.
	LastSwitchOnTime() time.Time

	Close() error
}

// Error is a heating failure with an optional lower-level detail.
type Error struct {
	Msg      string
	Suberror string
	Err      error
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Err }
