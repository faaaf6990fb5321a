package coerce

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"
)

const (
	// NullLiteral is the caller-side null sentinel.
	NullLiteral = "objNull"
	// EmptyLiteral is how an empty or null field is written when null
	// conversion is off.
	EmptyLiteral = `""`
	// GUIDError replaces values that cannot be converted to a BattlEye GUID.
	GUIDError = "ERROR"
)

// BoolForm selects how a truthy/falsy input is rendered.
type BoolForm int

const (
	// BoolLiteral renders true/false, for text substituted into SQL.
	BoolLiteral BoolForm = iota
	// BoolNumeric renders 1/0, for bound statement parameters.
	BoolNumeric
)

// Value is the outcome of running one field through the pipeline.
type Value struct {
	Text string
	// Null is set when null conversion turned an empty input into a null.
	Null bool
	// Stripped is set when forbidden characters were removed.
	Stripped bool
}

// Pipeline carries the strip policy of one call. The zero value strips
// nothing.
type Pipeline struct {
	StripChars string
	StripMode  StripMode
}

// Input runs an incoming request token through the input chain.
func (p Pipeline) Input(raw string, o Options, form BoolForm) (Value, error) {
	v, err := p.strip(raw, o, true)
	if err != nil {
		return Value{}, err
	}
	if o.ConvertBoolean {
		truthy := v.Text == "1" || strings.EqualFold(v.Text, "true")
		switch {
		case form == BoolNumeric && truthy:
			v.Text = "1"
		case form == BoolNumeric:
			v.Text = "0"
		case truthy:
			v.Text = "true"
		default:
			v.Text = "false"
		}
	}
	if o.ConvertNull && v.Text == "" {
		v.Text = NullLiteral
		v.Null = true
		return v, nil
	}
	if o.BEGuid {
		v.Text = BEGuid(v.Text)
	}
	v.Text = quote(v.Text, o)
	return v, nil
}

// Output runs a non-null result value through the output chain.
func (p Pipeline) Output(raw string, o Options) (Value, error) {
	v, err := p.strip(raw, o, false)
	if err != nil {
		return Value{}, err
	}
	if o.ConvertBoolean {
		if v.Text == "1" {
			v.Text = "true"
		} else {
			v.Text = "false"
		}
	}
	if o.BEGuid {
		v.Text = BEGuid(v.Text)
	}
	v.Text = quote(v.Text, o)
	return v, nil
}

// OutputNull renders a null result column.
func (p Pipeline) OutputNull(o Options) string {
	if o.ConvertNull {
		return NullLiteral
	}
	return EmptyLiteral
}

func (p Pipeline) strip(raw string, o Options, input bool) (Value, error) {
	v := Value{Text: raw}
	if !o.StripForbidden || p.StripChars == "" {
		return v, nil
	}
	stripped := strings.Map(func(r rune) rune {
		if strings.ContainsRune(p.StripChars, r) {
			return -1
		}
		return r
	}, raw)
	if stripped == raw {
		return v, nil
	}
	if p.StripMode == StripLogAndError {
		return Value{}, &StripCharViolationError{Value: raw, Input: input}
	}
	v.Text = stripped
	v.Stripped = p.StripMode == StripLog
	return v, nil
}

// BEGuid converts a 64-bit player id to its BattlEye GUID: the MD5 of "BE"
// followed by the id's 8 little-endian bytes, as lowercase hex. Values that
// are not integers become GUIDError.
func BEGuid(id string) string {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return GUIDError
	}
	buf := make([]byte, 10)
	buf[0], buf[1] = 'B', 'E'
	binary.LittleEndian.PutUint64(buf[2:], uint64(n))
	sum := md5.Sum(buf)
	return hex.EncodeToString(sum[:])
}

func quote(s string, o Options) string {
	if o.EscapeForEngine {
		s = escapeForEngine(s)
	}
	if o.QuoteDouble || o.EscapeDouble {
		s = wrap(s, '"', o.EscapeDouble, o.QuoteDouble)
	}
	if o.QuoteSingle || o.EscapeSingle {
		s = wrap(s, '\'', o.EscapeSingle, o.QuoteSingle)
	}
	return s
}

// wrap escapes embedded q characters by doubling them and then surrounds the
// value with q. A value that is already a well-formed q literal is left
// untouched so that running the chain twice never escapes twice.
func wrap(s string, q byte, escape, enclose bool) string {
	if isLiteral(s, q) {
		return s
	}
	if escape {
		s = strings.ReplaceAll(s, string(q), string([]byte{q, q}))
	}
	if enclose {
		s = string(q) + s + string(q)
	}
	return s
}

// isLiteral reports whether s is surrounded by q and every q inside it is
// doubled.
func isLiteral(s string, q byte) bool {
	if len(s) < 2 || s[0] != q || s[len(s)-1] != q {
		return false
	}
	inner := s[1 : len(s)-1]
	for i := 0; i < len(inner); i++ {
		if inner[i] != q {
			continue
		}
		if i+1 >= len(inner) || inner[i+1] != q {
			return false
		}
		i++
	}
	return true
}

var engineEscaper = strings.NewReplacer(
	"\\", `\\`,
	"\x00", `\0`,
	"\n", `\n`,
	"\r", `\r`,
	"'", `\'`,
	`"`, `\"`,
	"\x1a", `\Z`,
)

// escapeForEngine escapes the characters MySQL/MariaDB treat specially inside
// string literals.
func escapeForEngine(s string) string {
	return engineEscaper.Replace(s)
}
