package coerce

import (
	"database/sql/driver"
	"strconv"
	"strings"
	"time"

	"github.com/golang-sql/civil"
)

// EmptyTemporal is written for temporal columns whose value cannot be parsed,
// e.g. MySQL zero dates.
const EmptyTemporal = "[]"

// Temporal is a calendar date, a date and time of day, or a time of day.
type Temporal struct {
	Kind   TemporalKind
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int
}

// ParseTemporal parses a bracketed literal such as [2016,05,21],
// [2016,05,21,10,30,00] or [10,30,00]. With TemporalAuto six elements are a
// date and time, and three are a date unless only a time of day reading is
// valid.
func ParseTemporal(text string, kind TemporalKind) (Temporal, error) {
	if len(text) < 3 || text[0] != '[' || text[len(text)-1] != ']' {
		return Temporal{}, &MalformedTemporalError{Value: text, Reason: "expected a bracketed list"}
	}
	parts := strings.Split(text[1:len(text)-1], ",")
	fields := make([]int, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return Temporal{}, &MalformedTemporalError{Value: text, Reason: "element " + strconv.Itoa(i) + " is not a number"}
		}
		fields[i] = n
	}

	auto := kind == TemporalAuto || kind == TemporalNone
	if auto {
		switch len(fields) {
		case 3:
			kind = TemporalDate
		case 6:
			kind = TemporalDateTime
		}
	}
	want := 3
	if kind == TemporalDateTime {
		want = 6
	}
	if len(fields) != want || kind == TemporalAuto || kind == TemporalNone {
		return Temporal{}, &MalformedTemporalError{Value: text, Reason: "wrong number of elements: " + strconv.Itoa(len(fields))}
	}

	t := Temporal{Kind: kind}
	switch kind {
	case TemporalTime:
		t.Hour, t.Minute, t.Second = fields[0], fields[1], fields[2]
	default:
		t.Year, t.Month, t.Day = fields[0], fields[1], fields[2]
		if kind == TemporalDateTime {
			t.Hour, t.Minute, t.Second = fields[3], fields[4], fields[5]
		}
	}
	if !t.valid() {
		clock := Temporal{Kind: TemporalTime, Hour: fields[0], Minute: fields[1], Second: fields[2]}
		if auto && kind == TemporalDate && clock.valid() {
			return clock, nil
		}
		return Temporal{}, &MalformedTemporalError{Value: text, Reason: "out of range"}
	}
	return t, nil
}

func (t Temporal) valid() bool {
	switch t.Kind {
	case TemporalDate:
		return t.Date().IsValid()
	case TemporalDateTime:
		return t.DateTime().IsValid()
	case TemporalTime:
		return t.Clock().IsValid()
	}
	return false
}

// Date returns the calendar date part.
func (t Temporal) Date() civil.Date {
	return civil.Date{Year: t.Year, Month: time.Month(t.Month), Day: t.Day}
}

// Clock returns the time of day part.
func (t Temporal) Clock() civil.Time {
	return civil.Time{Hour: t.Hour, Minute: t.Minute, Second: t.Second}
}

// DateTime returns the date and time of day.
func (t Temporal) DateTime() civil.DateTime {
	return civil.DateTime{Date: t.Date(), Time: t.Clock()}
}

// DriverValue converts t to a value every supported driver accepts. Dates
// and date-times are UTC time.Time values; times of day are hh:mm:ss text.
func (t Temporal) DriverValue() driver.Value {
	switch t.Kind {
	case TemporalDate:
		return t.Date().In(time.UTC)
	case TemporalTime:
		return t.Clock().String()
	default:
		return t.DateTime().In(time.UTC)
	}
}

// Literal renders t in the bracketed caller format.
func (t Temporal) Literal() string {
	var parts []int
	switch t.Kind {
	case TemporalDate:
		parts = []int{t.Year, t.Month, t.Day}
	case TemporalTime:
		parts = []int{t.Hour, t.Minute, t.Second}
	default:
		parts = []int{t.Year, t.Month, t.Day, t.Hour, t.Minute, t.Second}
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(p))
	}
	b.WriteByte(']')
	return b.String()
}

// TemporalOf converts a time.Time read from a driver.
func TemporalOf(tm time.Time, kind TemporalKind) Temporal {
	if kind == TemporalNone || kind == TemporalAuto {
		kind = TemporalDateTime
	}
	return Temporal{
		Kind:   kind,
		Year:   tm.Year(),
		Month:  int(tm.Month()),
		Day:    tm.Day(),
		Hour:   tm.Hour(),
		Minute: tm.Minute(),
		Second: tm.Second(),
	}
}

// ParseTemporalText parses the textual form a database returns for a
// temporal column ("2016-05-21", "2016-05-21 10:30:00", "10:30:00").
func ParseTemporalText(s string, kind TemporalKind) (Temporal, bool) {
	s = strings.TrimSpace(s)
	switch kind {
	case TemporalDate:
		if len(s) > 10 {
			s = s[:10]
		}
		d, err := civil.ParseDate(s)
		if err != nil || !d.IsValid() {
			return Temporal{}, false
		}
		return Temporal{Kind: kind, Year: d.Year, Month: int(d.Month), Day: d.Day}, true
	case TemporalTime:
		c, err := civil.ParseTime(s)
		if err != nil || !c.IsValid() {
			return Temporal{}, false
		}
		return Temporal{Kind: kind, Hour: c.Hour, Minute: c.Minute, Second: c.Second}, true
	default:
		dt, err := civil.ParseDateTime(strings.Replace(s, " ", "T", 1))
		if err != nil || !dt.IsValid() {
			return Temporal{}, false
		}
		return Temporal{
			Kind:   TemporalDateTime,
			Year:   dt.Date.Year,
			Month:  int(dt.Date.Month),
			Day:    dt.Date.Day,
			Hour:   dt.Time.Hour,
			Minute: dt.Time.Minute,
			Second: dt.Time.Second,
		}, true
	}
}

// ColumnTemporalKind classifies a database column type name. Non-temporal
// columns return TemporalNone.
func ColumnTemporalKind(typeName string) TemporalKind {
	switch strings.ToUpper(typeName) {
	case "DATE":
		return TemporalDate
	case "DATETIME", "DATETIME2", "SMALLDATETIME", "TIMESTAMP", "TIMESTAMPTZ":
		return TemporalDateTime
	case "TIME", "TIMETZ":
		return TemporalTime
	}
	return TemporalNone
}
