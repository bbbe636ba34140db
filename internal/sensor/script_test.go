package sensor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shellScript(t *testing.T, body string) *Script {
	t.Helper()
	s, err := NewScript([]string{"/bin/sh", "-c", body}, Identity())
	require.NoError(t, err)
	return s
}

func TestScriptReadsTemperature(t *testing.T) {
	s := shellScript(t, `echo '{"temperature": 21.4, "error": null}'`)

	v, err := s.RawValue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 21.4, v)
}

func TestScriptCalibratedValue(t *testing.T) {
	cal, err := NewCalibration([]float64{0, 100}, []float64{10, 110})
	require.NoError(t, err)
	s, err := NewScript([]string{"/bin/sh", "-c", `echo '{"temperature": 21.4}'`}, cal)
	require.NoError(t, err)

	v, err := s.CalibratedValue(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 11.4, v, 1e-9)
}

func TestScriptReportsItsOwnError(t *testing.T) {
	s := shellScript(t, `echo '{"temperature": null, "error": "sensor absent"}'; exit 7`)

	_, err := s.RawValue(context.Background())
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "sensor absent", serr.Msg)
	assert.Equal(t, "the temperature script exited with code 7", serr.Suberror)
	assert.Equal(t, "/bin/sh", serr.Script)
}

func TestScriptFailureWithoutMessage(t *testing.T) {
	s := shellScript(t, `exit 3`)

	_, err := s.RawValue(context.Background())
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "the temperature script exited with code 3", serr.Msg)
}

func TestScriptInvalidJSON(t *testing.T) {
	s := shellScript(t, `echo 'not json at all'`)

	_, err := s.RawValue(context.Background())
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "temperature script output is not valid JSON", serr.Msg)
}

func TestScriptMissingTemperature(t *testing.T) {
	s := shellScript(t, `echo '{"error": null}'`)

	_, err := s.RawValue(context.Background())
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "temperature script did not return a temperature", serr.Msg)
}

func TestScriptTimeout(t *testing.T) {
	s := shellScript(t, `sleep 5`)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.RawValue(ctx)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "temperature script timed out", serr.Msg)
	assert.ErrorIs(t, serr.Err, context.DeadlineExceeded)
}

func TestScriptCannotExecute(t *testing.T) {
	s, err := NewScript([]string{"/no/such/binary"}, Identity())
	require.NoError(t, err)

	_, err = s.RawValue(context.Background())
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "cannot execute temperature script", serr.Msg)
}

func TestScriptConstructorRejectsEmptyCommand(t *testing.T) {
	_, err := NewScript(nil, Identity())
	assert.Error(t, err)
	_, err = NewScript([]string{""}, Identity())
	assert.Error(t, err)
}
