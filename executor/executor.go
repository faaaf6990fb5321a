// Package executor runs prepared calls on a session and converts their rows
// through the output pipeline.
package executor

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"strconv"

	"github.com/tomyedwab/sqlcustom/binder"
	"github.com/tomyedwab/sqlcustom/calls"
	"github.com/tomyedwab/sqlcustom/coerce"
	"github.com/tomyedwab/sqlcustom/session"
)

// Result is the marshalled output of one call: one slice of rendered fields
// per row.
type Result struct {
	Rows [][]string
}

// Executor runs prepared calls.
type Executor struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{logger: logger}
}

// Run executes def with params on sess. When the connection drops the
// session is reconnected and the whole run is repeated once.
func (e *Executor) Run(ctx context.Context, sess *session.Session, def *calls.Definition, params []binder.BindParameter) (Result, error) {
	res, err := e.run(ctx, sess, def, params)
	if !session.IsTransport(err) {
		return res, err
	}
	e.logger.Warn("Connection lost, retrying call", "call", def.Name, "session", sess.ID, "error", err)
	if rerr := sess.Reconnect(ctx); rerr != nil {
		return Result{}, rerr
	}
	return e.run(ctx, sess, def, params)
}

func (e *Executor) run(ctx context.Context, sess *session.Session, def *calls.Definition, params []binder.BindParameter) (Result, error) {
	var res Result
	err := sess.Native(ctx, func(n *session.Native) error {
		var err error
		res, err = e.execute(ctx, n, sess, def, params)
		return err
	})
	return res, err
}

func (e *Executor) execute(ctx context.Context, n *session.Native, sess *session.Session, def *calls.Definition, params []binder.BindParameter) (res Result, err error) {
	state := Created
	h, err := n.Statement(def.Name, sess.Rebind(def.SQL))
	if err != nil {
		return Result{}, &StatementFaultError{Call: def.Name, State: state, Err: err}
	}
	state = Prepared

	defer func() {
		if err != nil {
			e.logger.Debug("Evicting statement", "call", def.Name, "state", state.String())
			n.Evict(def.Name)
		}
	}()

	if err := binder.CheckArity(params, h.NumInput()); err != nil {
		return Result{}, err
	}
	args := binder.DriverValues(params)

	if def.ReturnInsertID {
		r, err := h.Exec(ctx, args)
		if err != nil {
			return Result{}, &StatementFaultError{Call: def.Name, State: state, Err: err}
		}
		state = Executed
		id, err := r.LastInsertId()
		if err != nil {
			return Result{}, &StatementFaultError{Call: def.Name, State: state, Err: err}
		}
		return Result{Rows: [][]string{{strconv.FormatInt(id, 10)}}}, nil
	}

	rows, err := h.Query(ctx, args)
	if err != nil {
		return Result{}, &StatementFaultError{Call: def.Name, State: state, Err: err}
	}
	defer rows.Close()
	state = Executed

	cols, err := bindColumns(rows)
	if err != nil {
		return Result{}, err
	}
	defer releaseColumns(cols)
	state = ResultMetadataBound

	state = Fetching
	rendered, err := e.fetch(rows, cols, def)
	if err != nil {
		return Result{}, err
	}
	state = Done
	return Result{Rows: rendered}, nil
}

// fetch reads every remaining row into cols and renders it.
func (e *Executor) fetch(rows driver.Rows, cols []*resultColumn, def *calls.Definition) ([][]string, error) {
	pipeline := def.Pipeline()
	dest := make([]driver.Value, len(cols))
	out := [][]string{}
	for {
		if err := rows.Next(dest); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, &StatementFaultError{Call: def.Name, State: Fetching, Err: err}
		}
		row := make([]string, len(cols))
		for i, col := range cols {
			col.store(dest[i])
			field, err := renderField(def, pipeline, i, col.cell(), col.temporal, e.logger)
			if err != nil {
				return nil, err
			}
			row[i] = field
		}
		out = append(out, row)
	}
}

// Render converts one row of driver values through the output options of def.
// Temporal columns are identified by kinds.
func Render(def *calls.Definition, values []any, kinds []coerce.TemporalKind, logger *slog.Logger) ([]string, error) {
	pipeline := def.Pipeline()
	row := make([]string, len(values))
	for i, v := range values {
		kind := coerce.TemporalNone
		if i < len(kinds) {
			kind = kinds[i]
		}
		field, err := renderField(def, pipeline, i, coerce.NewCell(v, kind), kind, logger)
		if err != nil {
			return nil, err
		}
		row[i] = field
	}
	return row, nil
}

// renderField marshals the cell fetched for column i. Values longer than
// binder.MaxTextLength are rejected as long objects even when the driver
// reported no column length.
func renderField(def *calls.Definition, p coerce.Pipeline, i int, c coerce.Cell, kind coerce.TemporalKind, logger *slog.Logger) (string, error) {
	if len(c.Text) > binder.MaxTextLength {
		return "", &binder.UnsupportedTypeError{What: "column " + strconv.Itoa(i), Type: binder.LongBlob.String()}
	}
	v, err := p.Render(c, def.Output(i), kind)
	if err != nil {
		return "", err
	}
	if v.Stripped {
		logger.Warn("Stripped forbidden characters from output", "call", def.Name, "column", i, "value", c.Text)
	}
	return v.Text, nil
}
