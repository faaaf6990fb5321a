package executor

import "fmt"

// State is the progress of one statement run.
type State int

const (
	Created State = iota
	Prepared
	Executed
	ResultMetadataBound
	Fetching
	Done
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Prepared:
		return "prepared"
	case Executed:
		return "executed"
	case ResultMetadataBound:
		return "result-metadata-bound"
	case Fetching:
		return "fetching"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StatementFaultError is a statement failure that is not a connection loss.
type StatementFaultError struct {
	Call  string
	State State
	Err   error
}

func (e *StatementFaultError) Error() string {
	return fmt.Sprintf("statement %s failed while %s: %v", e.Call, e.State, e.Err)
}

func (e *StatementFaultError) Unwrap() error {
	return e.Err
}
