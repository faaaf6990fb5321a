package coerce

import (
	"strconv"
	"time"
)

// Cell is one result column value as read from the database.
type Cell struct {
	Text string
	Null bool
	// When is set for temporal columns whose value could be parsed.
	When       Temporal
	TemporalOK bool
}

// NewCell converts a driver value. kind is the temporal kind of the column,
// TemporalNone for other columns.
func NewCell(v any, kind TemporalKind) Cell {
	var c Cell
	switch x := v.(type) {
	case nil:
		c.Null = true
		return c
	case time.Time:
		c.Text = x.Format(time.DateTime)
		if kind == TemporalNone {
			return c
		}
		c.When, c.TemporalOK = TemporalOf(x, kind), !x.IsZero()
		return c
	case []byte:
		c.Text = string(x)
	case string:
		c.Text = x
	case int64:
		c.Text = strconv.FormatInt(x, 10)
	case float64:
		c.Text = strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		if x {
			c.Text = "1"
		} else {
			c.Text = "0"
		}
	default:
		c.Text = toString(x)
	}
	if kind != TemporalNone {
		c.When, c.TemporalOK = ParseTemporalText(c.Text, kind)
	}
	return c
}

func toString(v any) string {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	switch x := v.(type) {
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	}
	return ""
}

// Render turns a result cell into its marshalled form for the column options
// o. Temporal columns bypass the output chain. The returned Value reports
// whether forbidden characters were stripped.
func (p Pipeline) Render(c Cell, o Options, kind TemporalKind) (Value, error) {
	if c.Null {
		return Value{Text: p.OutputNull(o)}, nil
	}
	if kind != TemporalNone {
		if !c.TemporalOK {
			return Value{Text: EmptyTemporal}, nil
		}
		return Value{Text: c.When.Literal()}, nil
	}
	return p.Output(c.Text, o)
}
