package calls

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the call file does not exist.
	ErrNotFound = errors.New("call file not found")
	// ErrNotAFile is returned when the call file path is not a regular file.
	ErrNotAFile = errors.New("call file is not a regular file")
)

// ConfigError describes one problem found while loading a call file. Problems
// are collected rather than aborting the load.
type ConfigError struct {
	Section string
	Key     string
	Msg     string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Section == "":
		return e.Msg
	case e.Key == "":
		return fmt.Sprintf("section %s: %s", e.Section, e.Msg)
	default:
		return fmt.Sprintf("section %s: %s: %s", e.Section, e.Key, e.Msg)
	}
}
