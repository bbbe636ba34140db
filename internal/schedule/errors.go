package schedule

import "fmt"

// ValidationError reports a cross-field schema violation found during a full
// validation of the settings.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid settings: " + e.Reason
	}
	return fmt.Sprintf("invalid settings: %s: %s", e.Field, e.Reason)
}

// FieldValueError reports a single out-of-domain value. It names the
// accepted domain so callers can surface a usable message.
type FieldValueError struct {
	Field  string
	Value  interface{}
	Domain string
}

func (e *FieldValueError) Error() string {
	return fmt.Sprintf("invalid value `%v` for %s: it must be %s", e.Value, e.Field, e.Domain)
}

// SyntaxError reports a malformed encoded settings document.
type SyntaxError struct {
	Err error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("malformed settings: %v", e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// PersistenceError reports an I/O failure reading or writing the settings
// file.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("cannot %s settings file %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// InvariantError reports a configuration that was valid before commit and
// invalid after. This is a programming fault, not a caller mistake, and is
// deliberately distinct from ValidationError.
type InvariantError struct {
	Err error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("settings were valid before commit and invalid after, old state restored: %v", e.Err)
}

func (e *InvariantError) Unwrap() error { return e.Err }
