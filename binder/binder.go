// Package binder turns request tokens into typed statement parameters.
package binder

import (
	"database/sql/driver"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tomyedwab/sqlcustom/calls"
	"github.com/tomyedwab/sqlcustom/coerce"
)

// MaxTextLength is the longest text parameter accepted. Anything longer
// would need a long-blob transfer, which is not supported.
const MaxTextLength = 1<<24 - 1

// Kind classifies a bound parameter.
type Kind int

const (
	Null Kind = iota
	Integer
	FloatingPoint
	Decimal
	TextOrBlob
	Temporal
	LongBlob
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Integer:
		return "integer"
	case FloatingPoint:
		return "float"
	case Decimal:
		return "decimal"
	case TextOrBlob:
		return "text"
	case Temporal:
		return "temporal"
	case LongBlob:
		return "longblob"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// BindParameter is one coerced input ready to be handed to a statement.
type BindParameter struct {
	Kind Kind
	// Text is the coerced value as produced by the input pipeline.
	Text string
	// Buffer owns a copy of Text for TextOrBlob parameters.
	Buffer []byte
	Length int
	When   coerce.Temporal
	Int    int64
	Float  float64
	Dec    decimal.Decimal
}

// DriverValue returns the value passed to the driver. Decimals travel as
// their canonical text so no precision is lost to float64.
func (p BindParameter) DriverValue() driver.Value {
	switch p.Kind {
	case Null:
		return nil
	case Temporal:
		return p.When.DriverValue()
	case Integer:
		return p.Int
	case FloatingPoint:
		return p.Float
	case Decimal:
		v, _ := p.Dec.Value()
		return v
	case TextOrBlob:
		return string(p.Buffer[:p.Length])
	default:
		return p.Text
	}
}

// Classify builds a BindParameter from a pipeline result.
func Classify(v coerce.Value, o coerce.Options) (BindParameter, error) {
	if v.Null {
		return BindParameter{Kind: Null, Text: v.Text}, nil
	}
	p := BindParameter{Text: v.Text, Length: len(v.Text)}
	if o.ConvertTime {
		when, err := coerce.ParseTemporal(v.Text, o.Temporal)
		if err != nil {
			return BindParameter{}, err
		}
		p.Kind = Temporal
		p.When = when
		return p, nil
	}
	if len(v.Text) > MaxTextLength {
		p.Kind = LongBlob
		return p, &UnsupportedTypeError{What: "parameter", Type: LongBlob.String()}
	}
	classifyNumber(&p)
	if p.Kind == TextOrBlob {
		p.Buffer = make([]byte, len(v.Text))
		copy(p.Buffer, v.Text)
	}
	return p, nil
}

// classifyNumber sets the numeric kind of p when its text is a number written
// in canonical form. Anything else, such as "007" or "+5", stays text so the
// exact characters reach the server.
func classifyNumber(p *BindParameter) {
	s := p.Text
	p.Kind = TextOrBlob
	if s == "" || strings.TrimSpace(s) != s {
		return
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if strconv.FormatInt(n, 10) == s {
			p.Kind, p.Int = Integer, n
		}
		return
	}
	if strings.ContainsAny(s, "eE") {
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) {
			p.Kind, p.Float = FloatingPoint, f
		}
		return
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.String() != s {
		return
	}
	p.Kind, p.Dec = Decimal, d
}

// Bind runs every input option of def against the request tokens, where
// tokens[0] is the call name. Values whose forbidden characters were removed
// under the Log strip mode are reported on logger.
func Bind(tokens []string, def *calls.Definition, logger *slog.Logger) ([]BindParameter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pipeline := def.Pipeline()
	params := make([]BindParameter, 0, len(def.Inputs))
	for i, o := range def.Inputs {
		if o.Index >= len(tokens) {
			return nil, &ArityMismatchError{Scope: "request", Got: len(tokens) - 1, Expected: def.HighestInputIndex}
		}
		v, err := pipeline.Input(tokens[o.Index], o, coerce.BoolNumeric)
		if err != nil {
			return nil, err
		}
		if v.Stripped {
			logger.Warn("Stripped forbidden characters from input", "call", def.Name, "input", i, "value", tokens[o.Index])
		}
		p, err := Classify(v, o)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		params = append(params, p)
	}
	return params, nil
}

// CheckArity compares the parameter count with the count reported by a
// prepared statement. A negative numInput means the driver does not know and
// the check is skipped.
func CheckArity(params []BindParameter, numInput int) error {
	if numInput >= 0 && numInput != len(params) {
		return &ArityMismatchError{Scope: "statement", Got: len(params), Expected: numInput}
	}
	return nil
}

// DriverValues converts params for a driver call.
func DriverValues(params []BindParameter) []driver.Value {
	args := make([]driver.Value, len(params))
	for i, p := range params {
		args[i] = p.DriverValue()
	}
	return args
}
