package rawquery

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/tomyedwab/sqlcustom/binder"
	"github.com/tomyedwab/sqlcustom/calls"
	"github.com/tomyedwab/sqlcustom/coerce"
	"github.com/tomyedwab/sqlcustom/executor"
	"github.com/tomyedwab/sqlcustom/session"
	"github.com/tomyedwab/sqlcustom/session/sessiontest"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func input(index int, names ...string) coerce.Options {
	o := coerce.NewOptions()
	o.Index = index
	for _, n := range names {
		o.Set(n)
	}
	return o
}

func TestBuild(t *testing.T) {
	def := &calls.Definition{
		Name:              "setAlive",
		SQL:               "UPDATE players SET alive = $CUSTOM_0$, name = $CUSTOM_1$ WHERE uid = $CUSTOM_2$",
		Inputs:            []coerce.Options{input(2, "bool"), input(3, "string_escape_quotes2"), input(1)},
		HighestInputIndex: 3,
	}
	got, err := Build([]string{"setAlive", "765", "1", "O'Neil"}, def, discard)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	want := "UPDATE players SET alive = true, name = 'O''Neil' WHERE uid = 765"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestBuildDoesNotResubstitute(t *testing.T) {
	def := &calls.Definition{
		Name:              "echo",
		SQL:               "SELECT '$CUSTOM_0$', '$CUSTOM_1$'",
		Inputs:            []coerce.Options{input(1), input(2)},
		HighestInputIndex: 2,
	}
	got, err := Build([]string{"echo", "$CUSTOM_1$", "b"}, def, discard)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if got != "SELECT '$CUSTOM_1$', 'b'" {
		t.Errorf("Unexpected query %q", got)
	}
}

func TestBuildNullAndStrip(t *testing.T) {
	def := &calls.Definition{
		Name:              "find",
		SQL:               "SELECT $CUSTOM_0$, $CUSTOM_1$",
		Inputs:            []coerce.Options{input(1, "null"), input(2, "strip")},
		HighestInputIndex: 2,
		StripChars:        ";",
		StripMode:         coerce.StripOff,
	}
	got, err := Build([]string{"find", "", "a;b"}, def, discard)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if got != "SELECT objNull, ab" {
		t.Errorf("Unexpected query %q", got)
	}

	def.StripMode = coerce.StripLogAndError
	_, err = Build([]string{"find", "", "a;b"}, def, discard)
	var sv *coerce.StripCharViolationError
	if !errors.As(err, &sv) {
		t.Errorf("Expected StripCharViolationError, got %v", err)
	}

	_, err = Build([]string{"find", ""}, def, discard)
	var ae *binder.ArityMismatchError
	if !errors.As(err, &ae) {
		t.Errorf("Expected ArityMismatchError, got %v", err)
	}
}

func setup(t *testing.T) (*Executor, *session.Session, *sessiontest.Faults) {
	t.Helper()
	pool, faults := sessiontest.NewPool(t, 1,
		"CREATE TABLE players (uid TEXT, name TEXT, alive INTEGER, born DATE)",
		"INSERT INTO players VALUES ('765', 'Bob', 1, '2016-05-21'), ('766', NULL, 0, NULL)",
	)
	sess, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	t.Cleanup(func() { pool.Release(sess) })
	return New(discard), sess, faults
}

func run(t *testing.T, e *Executor, sess *session.Session, def *calls.Definition, tokens ...string) (executor.Result, error) {
	t.Helper()
	query, err := Build(append([]string{def.Name}, tokens...), def, discard)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	return e.Send(context.Background(), sess, def, query)
}

func rowsText(rows [][]string) string {
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = "[" + strings.Join(r, ",") + "]"
	}
	return strings.Join(parts, ",")
}

func TestSend(t *testing.T) {
	e, sess, _ := setup(t)
	def := &calls.Definition{
		Name:              "getPlayers",
		SQL:               "SELECT name, alive, born FROM players WHERE uid >= $CUSTOM_0$ ORDER BY uid",
		Inputs:            []coerce.Options{input(1, "string2")},
		Outputs:           []coerce.Options{input(-1, "string", "null"), input(-1, "bool"), input(-1)},
		HighestInputIndex: 1,
	}
	res, err := run(t, e, sess, def, "765")
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	want := `["Bob",true,[2016,5,21]],[objNull,false,""]`
	if got := rowsText(res.Rows); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}

	res, err = run(t, e, sess, def, "999")
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if res.Rows == nil || len(res.Rows) != 0 {
		t.Errorf("Expected empty rows, got %#v", res.Rows)
	}
}

func TestSendReturnInsertID(t *testing.T) {
	e, sess, _ := setup(t)
	def := &calls.Definition{
		Name:              "addPlayer",
		SQL:               "INSERT INTO players (uid, name) VALUES ($CUSTOM_0$, $CUSTOM_1$)",
		Inputs:            []coerce.Options{input(1, "string2"), input(2, "string2")},
		ReturnInsertID:    true,
		HighestInputIndex: 2,
	}
	res, err := run(t, e, sess, def, "767", "Eve")
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if got := rowsText(res.Rows); got != "[3]" {
		t.Errorf("Expected [3], got %s", got)
	}
}

func TestSendRetriesOnTransportError(t *testing.T) {
	e, sess, faults := setup(t)
	def := &calls.Definition{Name: "count", SQL: "SELECT COUNT(*) FROM players"}

	faults.FailQuery(driver.ErrBadConn)
	res, err := run(t, e, sess, def)
	if err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if got := rowsText(res.Rows); got != "[2]" {
		t.Errorf("Expected [2], got %s", got)
	}

	faults.FailQuery(driver.ErrBadConn, driver.ErrBadConn)
	if _, err := run(t, e, sess, def); !session.IsTransport(err) {
		t.Errorf("Expected transport error after one retry, got %v", err)
	}
}

func TestBuildEscapesQuotedInput(t *testing.T) {
	tests := []struct {
		option string
		value  string
		want   string
	}{
		{"string_escape_quotes", `"x" OR "1"="1"`, `SELECT * FROM players WHERE name = """x"" OR ""1""=""1"""`},
		{"string_escape_quotes2", `'x' OR '1'='1'`, `SELECT * FROM players WHERE name = '''x'' OR ''1''=''1'''`},
		{"string_escape_quotes2", `'O''Neil'`, `SELECT * FROM players WHERE name = 'O''Neil'`},
	}

	for _, tt := range tests {
		t.Run(tt.option+" "+tt.value, func(t *testing.T) {
			def := &calls.Definition{
				Name:              "find",
				SQL:               "SELECT * FROM players WHERE name = $CUSTOM_0$",
				Inputs:            []coerce.Options{input(1, tt.option)},
				HighestInputIndex: 1,
			}
			got, err := Build([]string{"find", tt.value}, def, discard)
			if err != nil {
				t.Fatalf("Build returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSendQuotedInputMatchesNothing(t *testing.T) {
	e, sess, _ := setup(t)
	def := &calls.Definition{
		Name:              "find",
		SQL:               "SELECT uid FROM players WHERE name = $CUSTOM_0$",
		Inputs:            []coerce.Options{input(1, "string_escape_quotes2")},
		HighestInputIndex: 1,
	}
	res, err := run(t, e, sess, def, `'x' OR '1'='1'`)
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if len(res.Rows) != 0 {
		t.Errorf("Expected no rows, got %v", res.Rows)
	}
}

func TestSendLogsOutputStrip(t *testing.T) {
	_, sess, _ := setup(t)
	var logs bytes.Buffer
	e := New(slog.New(slog.NewTextHandler(&logs, nil)))
	def := &calls.Definition{
		Name:       "names",
		SQL:        "SELECT name FROM players WHERE uid = '765'",
		Outputs:    []coerce.Options{input(-1, "strip")},
		StripChars: "o",
		StripMode:  coerce.StripLog,
	}
	res, err := run(t, e, sess, def)
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if got := rowsText(res.Rows); got != "[Bb]" {
		t.Errorf("Expected [Bb], got %s", got)
	}
	if !strings.Contains(logs.String(), "Stripped forbidden characters from output") {
		t.Errorf("Expected a strip warning, got %q", logs.String())
	}
}
