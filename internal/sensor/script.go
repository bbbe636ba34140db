package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"

	"github.com/sirupsen/logrus"
)

// Script reads the temperature from an external command. The command must
// exit 0 on success and non-zero on failure, and print a JSON object
// {"temperature": <number>, "error": <string-or-null>} on stdout.
type Script struct {
	command []string
	cal     Calibration
}

type scriptOutput struct {
	Temperature *float64 `json:"temperature"`
	Error       *string  `json:"error"`
}

// NewScript creates a script-backed source. The command is the argv to run,
// program first.
func NewScript(command []string, cal Calibration) (*Script, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, errors.New("sensor: empty temperature command")
	}
	return &Script{command: command, cal: cal}, nil
}

// Calibration returns the source's calibration.
func (s *Script) Calibration() Calibration { return s.cal }

// RawValue runs the command and parses its output. The context bounds the
// execution; on deadline the command is killed and a timeout Error returned.
func (s *Script) RawValue(ctx context.Context) (float64, error) {
	cmd := exec.CommandContext(ctx, s.command[0], s.command[1:]...)
	out, err := cmd.Output()

	if ctx.Err() != nil {
		return 0, &Error{
			Msg:    "temperature script timed out",
			Script: s.command[0],
			Err:    ctx.Err(),
		}
	}

	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			suberr := fmt.Sprintf("the temperature script exited with code %d", ee.ExitCode())
			// A failing script still reports its own error message on stdout.
			var parsed scriptOutput
			msg := suberr
			if jerr := json.Unmarshal(out, &parsed); jerr == nil && parsed.Error != nil && *parsed.Error != "" {
				msg = *parsed.Error
			}
			return 0, &Error{Msg: msg, Suberror: suberr, Script: s.command[0], Err: err}
		}
		return 0, &Error{
			Msg:      "cannot execute temperature script",
			Suberror: err.Error(),
			Script:   s.command[0],
			Err:      err,
		}
	}

	var parsed scriptOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return 0, &Error{
			Msg:      "temperature script output is not valid JSON",
			Suberror: err.Error(),
			Script:   s.command[0],
			Err:      err,
		}
	}
	if parsed.Temperature == nil {
		return 0, &Error{
			Msg:    "temperature script did not return a temperature",
			Script: s.command[0],
		}
	}
	if err := checkFinite(*parsed.Temperature, "script temperature"); err != nil {
		return 0, err
	}

	// No rounding here: the script may be backed by a very precise probe.
	logrus.WithField("temperature", *parsed.Temperature).Debug("sensor: script reading")
	return *parsed.Temperature, nil
}

// CalibratedValue returns the calibrated reading rounded to two decimals.
func (s *Script) CalibratedValue(ctx context.Context) (float64, error) {
	raw, err := s.RawValue(ctx)
	if err != nil {
		return 0, err
	}
	return round2(s.cal.Apply(raw)), nil
}

// Close is a no-op; the script owns no persistent resources.
func (s *Script) Close() error { return nil }
