package calls

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"testing"

	"github.com/tomyedwab/sqlcustom/coerce"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// writeCallFile writes contents to a temporary call file and returns its path.
func writeCallFile(t *testing.T, contents string) string {
	t.Helper()
	p := path.Join(t.TempDir(), "test.ini")
	if err := os.WriteFile(p, []byte(contents), 0o600); err != nil {
		t.Fatalf("Failed to write call file: %v", err)
	}
	return p
}

const sampleCalls = `
[Default]
Version = 1
Strip Chars = ";[]"
Strip Chars Mode = 0

[getPlayerStats]
SQL1_1 = SELECT uid, alive
SQL1_2 = FROM players
SQL1_3 = WHERE uid = ?
SQL2_1 = LIMIT 1
SQL1_INPUTS = 1-beguid
OUTPUT = 1-string, 2-bool

[setName]
Prepared Statement = false
Return InsertID = true
Strip Chars = /
Strip Chars Mode = 2
SQL1_1 = UPDATE players SET name = $CUSTOM_0$ WHERE id = $CUSTOM_1$
SQL1_INPUTS = 2-string-strip, 1
`

func TestLoad(t *testing.T) {
	r, err := Load(writeCallFile(t, sampleCalls), discard)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !r.OK() {
		t.Fatalf("Expected clean load, got problems: %v", r.Err())
	}
	if r.Len() != 2 {
		t.Errorf("Expected 2 calls, got %d", r.Len())
	}
	if got := strings.Join(r.Names(), ","); got != "getPlayerStats,setName" {
		t.Errorf("Expected sorted names, got %s", got)
	}
	if r.Version() != 1 {
		t.Errorf("Expected version 1, got %d", r.Version())
	}

	def, ok := r.Lookup("getPlayerStats")
	if !ok {
		t.Fatal("getPlayerStats not found")
	}
	if def.SQL != "SELECT uid, alive FROM players WHERE uid = ? LIMIT 1" {
		t.Errorf("Unexpected SQL: %q", def.SQL)
	}
	if !def.Prepared || def.ReturnInsertID {
		t.Errorf("Expected prepared defaults, got %+v", def)
	}
	if def.StripChars != `";[]"` || def.StripMode != coerce.StripOff {
		t.Errorf("Expected Default strip policy, got %q %v", def.StripChars, def.StripMode)
	}
	if len(def.Inputs) != 1 || def.Inputs[0].Index != 1 || !def.Inputs[0].BEGuid {
		t.Errorf("Unexpected inputs: %+v", def.Inputs)
	}
	if def.HighestInputIndex != 1 {
		t.Errorf("Expected highest index 1, got %d", def.HighestInputIndex)
	}
	if len(def.Outputs) != 2 || !def.Outputs[0].QuoteDouble || !def.Outputs[1].ConvertBoolean {
		t.Errorf("Unexpected outputs: %+v", def.Outputs)
	}

	def, _ = r.Lookup("setName")
	if def.Prepared || !def.ReturnInsertID {
		t.Errorf("Expected raw insert-id call, got %+v", def)
	}
	if def.StripChars != "/" || def.StripMode != coerce.StripLogAndError {
		t.Errorf("Expected call strip override, got %q %v", def.StripChars, def.StripMode)
	}
	if def.HighestInputIndex != 2 {
		t.Errorf("Expected highest index 2, got %d", def.HighestInputIndex)
	}
	if def.Inputs[0].Index != 2 || !def.Inputs[0].StripForbidden || def.Inputs[1].Index != 1 {
		t.Errorf("Expected inputs in template order, got %+v", def.Inputs)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(path.Join(t.TempDir(), "missing.ini"), discard)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLoadDirectory(t *testing.T) {
	_, err := Load(t.TempDir(), discard)
	if !errors.Is(err, ErrNotAFile) {
		t.Errorf("Expected ErrNotAFile, got %v", err)
	}
}

func TestLoadReportsProblems(t *testing.T) {
	r, err := Load(writeCallFile(t, `
[Default]
Version = 9
Colour = blue

[broken]
SQL1_1 = SELECT ?
SQL1_INPUTS = 1-sparkle, string
OUTPUT = bogus-string, bool
Timeout = 5
`), discard)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if r.OK() {
		t.Fatal("Expected problems to be reported")
	}

	var keys []string
	for _, p := range r.Problems() {
		keys = append(keys, p.Section+"/"+p.Key)
	}
	got := strings.Join(keys, " ")
	for _, want := range []string{"Default/Version", "Default/Colour", "broken/SQL1_INPUTS", "broken/OUTPUT", "broken/Timeout"} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected problem for %s, got %s", want, got)
		}
	}

	// The call is still usable.
	def, ok := r.Lookup("broken")
	if !ok {
		t.Fatal("Expected partial registry to contain broken")
	}
	// Input tokens without an index are dropped; the unknown sub-token does
	// not drop a token that still has one.
	if len(def.Inputs) != 1 || def.Inputs[0].Index != 1 {
		t.Errorf("Expected one input with index 1, got %+v", def.Inputs)
	}
	// Output tokens are kept in position even when a sub-token is unknown.
	if len(def.Outputs) != 2 || !def.Outputs[0].QuoteDouble || !def.Outputs[1].ConvertBoolean {
		t.Errorf("Expected both output tokens kept, got %+v", def.Outputs)
	}
	if r.Err() == nil {
		t.Error("Expected joined error")
	}
}

func TestLoadMissingDefault(t *testing.T) {
	r, err := Load(writeCallFile(t, "[ping]\nSQL1_1 = SELECT 1\n"), discard)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if r.OK() {
		t.Error("Expected missing Default section to be reported")
	}
	def, ok := r.Lookup("ping")
	if !ok || def.HighestInputIndex != 0 || len(def.Inputs) != 0 {
		t.Errorf("Expected input-less ping call, got %+v", def)
	}
}

func TestLaterInputListsAreIgnored(t *testing.T) {
	r, err := Load(writeCallFile(t, `
[Default]

[twoLines]
SQL1_1 = SELECT ?
SQL1_INPUTS = 1
SQL2_1 = , ?
SQL2_INPUTS = 2
`), discard)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !r.OK() {
		t.Fatalf("Expected clean load, got %v", r.Err())
	}
	def, _ := r.Lookup("twoLines")
	if def.SQL != "SELECT ? , ?" {
		t.Errorf("Unexpected SQL %q", def.SQL)
	}
	if len(def.Inputs) != 1 || def.HighestInputIndex != 1 {
		t.Errorf("Expected only SQL1_INPUTS to be used, got %+v", def.Inputs)
	}
}

func TestLoadSyntaxError(t *testing.T) {
	_, err := Load(writeCallFile(t, "[unterminated\nSQL1_1 = SELECT 1\n"), discard)
	if err == nil {
		t.Error("Expected syntax error")
	}
}
