package heating

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sh(body string) []string { return []string{"/bin/sh", "-c", body} }

func TestScriptSwitchOnRecordsTime(t *testing.T) {
	s, err := NewScript(
		sh(`echo '{"success": true, "status": 1, "error": null}'`),
		sh(`echo '{"success": true, "status": 0, "error": null}'`),
		sh(`echo '{"success": true, "status": 1, "error": null}'`),
	)
	require.NoError(t, err)

	assert.True(t, s.LastSwitchOnTime().IsZero())

	before := time.Now()
	require.NoError(t, s.SwitchOn())
	assert.False(t, s.LastSwitchOnTime().Before(before))

	on, err := s.IsOn()
	require.NoError(t, err)
	assert.True(t, on)
}

func TestScriptSwitchOffKeepsTime(t *testing.T) {
	s, err := NewScript(
		sh(`echo '{"success": true}'`),
		sh(`echo '{"success": true}'`),
		sh(`echo '{"success": true, "status": 0}'`),
	)
	require.NoError(t, err)

	require.NoError(t, s.SwitchOn())
	lastOn := s.LastSwitchOnTime()

	require.NoError(t, s.SwitchOff())
	assert.Equal(t, lastOn, s.LastSwitchOnTime())

	on, err := s.IsOn()
	require.NoError(t, err)
	assert.False(t, on)
}

func TestScriptReportsItsOwnError(t *testing.T) {
	s, err := NewScript(
		sh(`echo '{"success": false, "status": null, "error": "relay driver fault"}'; exit 4`),
		sh(`echo '{"success": true}'`),
		sh(`echo '{"success": true, "status": 0}'`),
	)
	require.NoError(t, err)

	err = s.SwitchOn()
	var herr *Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "relay driver fault", herr.Msg)
	assert.Equal(t, "the switch-on script exited with code 4", herr.Suberror)
	assert.True(t, s.LastSwitchOnTime().IsZero(), "a failed switch-on must not record a time")
}

func TestScriptReportedFailureWithExitZero(t *testing.T) {
	s, err := NewScript(
		sh(`echo '{"success": false, "error": "boiler lockout"}'`),
		sh(`echo '{"success": true}'`),
		sh(`echo '{"success": true, "status": 0}'`),
	)
	require.NoError(t, err)

	err = s.SwitchOn()
	var herr *Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "boiler lockout", herr.Msg)
}

func TestScriptStatusWithoutState(t *testing.T) {
	s, err := NewScript(
		sh(`echo '{"success": true}'`),
		sh(`echo '{"success": true}'`),
		sh(`echo '{"success": true, "status": null}'`),
	)
	require.NoError(t, err)

	_, err = s.IsOn()
	var herr *Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "the status script did not return the current heating state", herr.Msg)
}

func TestScriptInvalidJSON(t *testing.T) {
	s, err := NewScript(
		sh(`echo garbage`),
		sh(`echo '{"success": true}'`),
		sh(`echo '{"success": true, "status": 0}'`),
	)
	require.NoError(t, err)

	err = s.SwitchOn()
	var herr *Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "the switch-on script output is not valid JSON", herr.Msg)
}

func TestScriptCannotExecute(t *testing.T) {
	s, err := NewScript(
		[]string{"/no/such/binary"},
		sh(`echo '{"success": true}'`),
		sh(`echo '{"success": true, "status": 0}'`),
	)
	require.NoError(t, err)

	err = s.SwitchOn()
	var herr *Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "cannot execute the switch-on script", herr.Msg)
}

func TestScriptConstructorValidation(t *testing.T) {
	_, err := NewScript(nil, sh("true"), sh("true"))
	assert.Error(t, err)
	_, err = NewScript(sh("true"), []string{""}, sh("true"))
	assert.Error(t, err)
}
