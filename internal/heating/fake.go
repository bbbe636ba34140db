package heating

import (
	"sync"
	"time"
)

// Fake is a test double tracking switch calls in memory.
type Fake struct {
	mu       sync.Mutex
	on       bool
	lastOn   time.Time
	switches int

	// Scripted failures.
	SwitchErr error
	StateErr  error
	Closed    bool
}

// NewFake creates a fake actuator, initially off.
func NewFake() *Fake { return &Fake{} }

// SwitchOn marks the heating on and records the switch-on time.
func (f *Fake) SwitchOn() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SwitchErr != nil {
		return f.SwitchErr
	}
	if !f.on {
		f.switches++
	}
	f.on = true
	f.lastOn = time.Now()
	return nil
}

// SwitchOff marks the heating off.
func (f *Fake) SwitchOff() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SwitchErr != nil {
		return f.SwitchErr
	}
	if f.on {
		f.switches++
	}
	f.on = false
	return nil
}

// IsOn reports the fake state.
func (f *Fake) IsOn() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StateErr != nil {
		return false, f.StateErr
	}
	return f.on, nil
}

// LastSwitchOnTime returns when the heating was last switched on.
func (f *Fake) LastSwitchOnTime() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastOn
}

// SetLastSwitchOnTime backdates the switch-on time for grace interval tests.
func (f *Fake) SetLastSwitchOnTime(t time.Time) {
	f.mu.Lock()
	f.lastOn = t
	f.mu.Unlock()
}

// Switches reports how many on/off transitions happened.
func (f *Fake) Switches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.switches
}

// Close marks the fake as closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
