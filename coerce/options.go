package coerce

import (
	"fmt"
	"strconv"
	"strings"
)

// StripMode controls what happens when a strip-enabled field contains one of
// the call's forbidden characters.
type StripMode int

const (
	// StripOff removes the characters silently.
	StripOff StripMode = iota
	// StripLog removes the characters and reports a diagnostic.
	StripLog
	// StripLogAndError aborts the call.
	StripLogAndError
)

func (m StripMode) String() string {
	switch m {
	case StripOff:
		return "off"
	case StripLog:
		return "log"
	case StripLogAndError:
		return "log+error"
	default:
		return fmt.Sprintf("StripMode(%d)", int(m))
	}
}

// ParseStripMode parses the numeric "Strip Chars Mode" setting (0, 1 or 2).
func ParseStripMode(s string) (StripMode, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return StripOff, fmt.Errorf("invalid strip chars mode %q", s)
	}
	switch StripMode(n) {
	case StripOff, StripLog, StripLogAndError:
		return StripMode(n), nil
	}
	return StripOff, fmt.Errorf("invalid strip chars mode %d", n)
}

// TemporalKind identifies which fields of a Temporal are meaningful.
type TemporalKind int

const (
	TemporalNone TemporalKind = iota
	// TemporalAuto infers Date or DateTime from the number of elements, or a
	// time of day when three elements are not a valid date.
	TemporalAuto
	TemporalDate
	TemporalDateTime
	TemporalTime
)

func (k TemporalKind) String() string {
	switch k {
	case TemporalNone:
		return "none"
	case TemporalAuto:
		return "auto"
	case TemporalDate:
		return "date"
	case TemporalDateTime:
		return "datetime"
	case TemporalTime:
		return "time"
	default:
		return fmt.Sprintf("TemporalKind(%d)", int(k))
	}
}

// Options is the set of transforms configured for one input or output field.
type Options struct {
	// Index is the request token a input option reads from. -1 when unset.
	Index int

	StripForbidden bool
	ConvertBoolean bool
	ConvertNull    bool
	BEGuid         bool

	// ConvertTime marks the field as temporal; Temporal says which shape.
	ConvertTime bool
	Temporal    TemporalKind

	EscapeForEngine bool

	// Variant A, double quotes.
	EscapeDouble bool
	QuoteDouble  bool

	// Variant B, single quotes.
	EscapeSingle bool
	QuoteSingle  bool
}

// NewOptions returns an Options value with no transforms and no index.
func NewOptions() Options {
	return Options{Index: -1}
}

// HasIndex reports whether a positional index was configured.
func (o Options) HasIndex() bool {
	return o.Index >= 0
}

// Set enables the transform named by a config sub-token. Matching is case
// insensitive. It returns false when the name is not a known transform.
func (o *Options) Set(name string) bool {
	switch strings.ToLower(name) {
	case "beguid":
		o.BEGuid = true
	case "bool":
		o.ConvertBoolean = true
	case "null":
		o.ConvertNull = true
	case "time":
		o.ConvertTime = true
		o.Temporal = TemporalAuto
	case "date":
		o.ConvertTime = true
		o.Temporal = TemporalDate
	case "datetime":
		o.ConvertTime = true
		o.Temporal = TemporalDateTime
	case "timeofday":
		o.ConvertTime = true
		o.Temporal = TemporalTime
	case "string":
		o.QuoteDouble = true
	case "string_escape_quotes":
		o.EscapeDouble = true
		o.QuoteDouble = true
	case "string2":
		o.QuoteSingle = true
	case "string_escape_quotes2":
		o.EscapeSingle = true
		o.QuoteSingle = true
	case "mysql_escape":
		o.EscapeForEngine = true
	case "strip":
		o.StripForbidden = true
	default:
		return false
	}
	return true
}
