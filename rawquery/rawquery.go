// Package rawquery runs calls whose inputs are substituted into the SQL text
// instead of being bound as parameters.
package rawquery

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tomyedwab/sqlcustom/binder"
	"github.com/tomyedwab/sqlcustom/calls"
	"github.com/tomyedwab/sqlcustom/coerce"
	"github.com/tomyedwab/sqlcustom/executor"
	"github.com/tomyedwab/sqlcustom/session"
)

// Placeholder returns the marker replaced by the i-th input of a raw call.
func Placeholder(i int) string {
	return "$CUSTOM_" + strconv.Itoa(i) + "$"
}

// Build substitutes every $CUSTOM_i$ marker in the call's SQL with the
// coerced value of input i. tokens[0] is the call name. Values are
// substituted in one pass, so a value that looks like a marker is left
// alone.
func Build(tokens []string, def *calls.Definition, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pipeline := def.Pipeline()
	pairs := make([]string, 0, 2*len(def.Inputs))
	for i, o := range def.Inputs {
		if o.Index >= len(tokens) {
			return "", &binder.ArityMismatchError{Scope: "request", Got: len(tokens) - 1, Expected: def.HighestInputIndex}
		}
		v, err := pipeline.Input(tokens[o.Index], o, coerce.BoolLiteral)
		if err != nil {
			return "", err
		}
		if v.Stripped {
			logger.Warn("Stripped forbidden characters from input", "call", def.Name, "input", i, "value", tokens[o.Index])
		}
		pairs = append(pairs, Placeholder(i), v.Text)
	}
	if len(pairs) == 0 {
		return def.SQL, nil
	}
	return strings.NewReplacer(pairs...).Replace(def.SQL), nil
}

// Executor runs raw calls.
type Executor struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{logger: logger}
}

// Send runs a query made by Build for def on sess. A dropped connection is
// reconnected and the query sent once more.
func (e *Executor) Send(ctx context.Context, sess *session.Session, def *calls.Definition, query string) (executor.Result, error) {
	res, err := e.send(ctx, sess, def, query)
	if !session.IsTransport(err) {
		return res, err
	}
	e.logger.Warn("Connection lost, retrying query", "call", def.Name, "session", sess.ID, "error", err)
	if rerr := sess.Reconnect(ctx); rerr != nil {
		return executor.Result{}, rerr
	}
	return e.send(ctx, sess, def, query)
}

func (e *Executor) send(ctx context.Context, sess *session.Session, def *calls.Definition, query string) (executor.Result, error) {
	if def.ReturnInsertID {
		r, err := sess.Exec(ctx, query)
		if err != nil {
			return executor.Result{}, err
		}
		id, err := r.LastInsertId()
		if err != nil {
			return executor.Result{}, fmt.Errorf("failed to read insert id: %w", err)
		}
		return executor.Result{Rows: [][]string{{strconv.FormatInt(id, 10)}}}, nil
	}

	rows, err := sess.Query(ctx, query)
	if err != nil {
		return executor.Result{}, err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return executor.Result{}, fmt.Errorf("failed to get column types: %w", err)
	}
	kinds := make([]coerce.TemporalKind, len(types))
	for i, ct := range types {
		length, _ := ct.Length()
		kinds[i], err = executor.ColumnKind(ct.Name(), ct.DatabaseTypeName(), length)
		if err != nil {
			return executor.Result{}, err
		}
	}

	res := executor.Result{Rows: [][]string{}}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return executor.Result{}, fmt.Errorf("failed to scan row: %w", err)
		}
		row, err := executor.Render(def, values, kinds, e.logger)
		if err != nil {
			return executor.Result{}, err
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return executor.Result{}, err
	}
	return res, nil
}
