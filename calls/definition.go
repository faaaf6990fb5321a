package calls

import (
	"github.com/tomyedwab/sqlcustom/coerce"
)

// Definition is one named call compiled from its config section. It is never
// modified after Load returns.
type Definition struct {
	Name string
	// SQL is the statement template. Prepared calls use positional markers;
	// raw calls use $CUSTOM_n$ placeholders where n is the input's position
	// in Inputs.
	SQL string

	// Inputs are the effective input options in template order. Each one has
	// an index into the request tokens.
	Inputs []coerce.Options
	// Outputs map 1:1 onto result columns by position.
	Outputs []coerce.Options

	Prepared       bool
	ReturnInsertID bool

	StripChars string
	StripMode  coerce.StripMode

	// HighestInputIndex is the largest token index referenced by Inputs. A
	// request must carry exactly this many tokens after the call name.
	HighestInputIndex int
}

// Pipeline returns the coercion pipeline carrying the call's strip policy.
func (d *Definition) Pipeline() coerce.Pipeline {
	return coerce.Pipeline{StripChars: d.StripChars, StripMode: d.StripMode}
}

// Output returns the options for result column i. Columns beyond the
// configured list get no transforms.
func (d *Definition) Output(i int) coerce.Options {
	if i < len(d.Outputs) {
		return d.Outputs[i]
	}
	return coerce.NewOptions()
}
