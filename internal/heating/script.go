package heating

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Script switches the heating through three external commands: one to switch
// on, one to switch off, one to query the state. Each must exit 0 on success
// and print a JSON object on stdout with the fields "success" (boolean),
// "status" (1 for on, 0 for off, may be null for the switch commands) and
// "error" (string or null).
type Script struct {
	switchOn  []string
	switchOff []string
	status    []string

	mu     sync.Mutex
	lastOn time.Time
}

type scriptReply struct {
	Success *bool   `json:"success"`
	Status  *int    `json:"status"`
	Error   *string `json:"error"`
}

// NewScript creates a script-backed actuator. Each command is an argv,
// program first.
func NewScript(switchOn, switchOff, status []string) (*Script, error) {
	for _, cmd := range [][]string{switchOn, switchOff, status} {
		if len(cmd) == 0 || cmd[0] == "" {
			return nil, errors.New("heating: all three heating commands must be set")
		}
	}
	return &Script{switchOn: switchOn, switchOff: switchOff, status: status}, nil
}

// SwitchOn runs the switch-on command and records the switch-on time.
func (s *Script) SwitchOn() error {
	if _, err := s.run(s.switchOn, "switch-on"); err != nil {
		return err
	}
	s.mu.Lock()
	s.lastOn = time.Now()
	s.mu.Unlock()
	logrus.Debug("heating: switched on")
	return nil
}

// SwitchOff runs the switch-off command.
func (s *Script) SwitchOff() error {
	if _, err := s.run(s.switchOff, "switch-off"); err != nil {
		return err
	}
	logrus.Debug("heating: switched off")
	return nil
}

// IsOn runs the status command and returns the reported state.
func (s *Script) IsOn() (bool, error) {
	reply, err := s.run(s.status, "status")
	if err != nil {
		return false, err
	}
	if reply.Status == nil {
		return false, &Error{Msg: "the status script did not return the current heating state"}
	}
	return *reply.Status != 0, nil
}

// LastSwitchOnTime returns when the heating was last switched on.
func (s *Script) LastSwitchOnTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOn
}

// Close is a no-op; the scripts own no persistent resources.
func (s *Script) Close() error { return nil }

// run executes one command and parses its JSON reply. A failing script still
// gets its stdout parsed so its own error message wins over the generic one.
func (s *Script) run(command []string, name string) (*scriptReply, error) {
	out, err := exec.Command(command[0], command[1:]...).Output()

	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			suberr := fmt.Sprintf("the %s script exited with code %d", name, ee.ExitCode())
			msg := suberr
			var reply scriptReply
			if jerr := json.Unmarshal(out, &reply); jerr == nil && reply.Error != nil && *reply.Error != "" {
				msg = *reply.Error
			}
			return nil, &Error{Msg: msg, Suberror: suberr, Err: err}
		}
		return nil, &Error{
			Msg:      fmt.Sprintf("cannot execute the %s script", name),
			Suberror: err.Error(),
			Err:      err,
		}
	}

	var reply scriptReply
	if err := json.Unmarshal(out, &reply); err != nil {
		return nil, &Error{
			Msg:      fmt.Sprintf("the %s script output is not valid JSON", name),
			Suberror: err.Error(),
			Err:      err,
		}
	}
	if reply.Success != nil && !*reply.Success {
		msg := fmt.Sprintf("the %s script reported a failure", name)
		if reply.Error != nil && *reply.Error != "" {
			msg = *reply.Error
		}
		return nil, &Error{Msg: msg}
	}
	return &reply, nil
}
