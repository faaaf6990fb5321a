package coerce

import "fmt"

// StripCharViolationError is returned when a strip-enabled field contains a
// forbidden character and the call's strip mode is StripLogAndError.
type StripCharViolationError struct {
	Value string
	// Input is true for request tokens, false for result columns.
	Input bool
}

func (e *StripCharViolationError) Error() string {
	if e.Input {
		return "strip char found in input value"
	}
	return "bad character detected from database query"
}

// MalformedTemporalError is returned when a bracketed temporal literal cannot
// be parsed.
type MalformedTemporalError struct {
	Value  string
	Reason string
}

func (e *MalformedTemporalError) Error() string {
	return fmt.Sprintf("invalid time format %s: %s", e.Value, e.Reason)
}
