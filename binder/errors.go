package binder

import "fmt"

// ArityMismatchError is returned when the number of values does not match
// what the call or statement expects.
type ArityMismatchError struct {
	// Scope is "request" for token counts and "statement" for bind counts.
	Scope    string
	Got      int
	Expected int
}

func (e *ArityMismatchError) Error() string {
	return fmt.Sprintf("invalid number of %s inputs: got %d, expected %d", e.Scope, e.Got, e.Expected)
}

// UnsupportedTypeError is returned for long-object parameters and columns.
type UnsupportedTypeError struct {
	// What names the parameter or column.
	What string
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported type %s for %s", e.Type, e.What)
}
