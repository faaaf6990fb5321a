// Package sessiontest provides session pools backed by a temporary SQLite
// database whose driver can be told to fail, for testing code that runs on
// sessions.
package sessiontest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"log/slog"
	"path"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/tomyedwab/sqlcustom/session"
)

// Faults controls the errors injected by a pool's driver. Each queued error
// is returned once, in order, by the next matching driver call.
type Faults struct {
	mu       sync.Mutex
	query    []error
	exec     []error
	prepare  []error
	prepares int
	opens    int
}

// FailQuery queues errors for statement queries.
func (f *Faults) FailQuery(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.query = append(f.query, errs...)
}

// FailExec queues errors for statement executions.
func (f *Faults) FailExec(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exec = append(f.exec, errs...)
}

// FailPrepare queues errors for statement preparation.
func (f *Faults) FailPrepare(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepare = append(f.prepare, errs...)
}

// Prepares returns how many statements were prepared successfully.
func (f *Faults) Prepares() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prepares
}

// Opens returns how many driver connections were opened.
func (f *Faults) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func pop(q *[]error) error {
	if len(*q) == 0 {
		return nil
	}
	err := (*q)[0]
	*q = (*q)[1:]
	return err
}

func (f *Faults) next(q *[]error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return pop(q)
}

// NewDB opens a temporary SQLite database through a fault-injecting driver.
func NewDB(t testing.TB) (*sqlx.DB, *Faults) {
	t.Helper()
	faults := &Faults{}
	name := "sessiontest-" + uuid.NewString()
	sql.Register(name, &faultDriver{base: &sqlite3.SQLiteDriver{}, faults: faults})

	db := sqlx.MustConnect(name, path.Join(t.TempDir(), "test.db"))
	t.Cleanup(func() {
		db.Close()
	})
	return db, faults
}

// NewPool returns a pool of size sessions on a fresh test database. Queries
// in schema are run first and are not counted by Prepares.
func NewPool(t testing.TB, size int, schema ...string) (*session.Pool, *Faults) {
	t.Helper()
	db, faults := NewDB(t)
	for _, q := range schema {
		db.MustExec(q)
	}
	faults.mu.Lock()
	faults.prepares = 0
	faults.mu.Unlock()
	pool := session.NewPool("test", db, size, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() {
		pool.Close()
	})
	return pool, faults
}

type faultDriver struct {
	base   driver.Driver
	faults *Faults
}

func (d *faultDriver) Open(name string) (driver.Conn, error) {
	conn, err := d.base.Open(name)
	if err != nil {
		return nil, err
	}
	d.faults.mu.Lock()
	d.faults.opens++
	d.faults.mu.Unlock()
	return &faultConn{Conn: conn, faults: d.faults}, nil
}

type faultConn struct {
	driver.Conn
	faults *Faults
}

func (c *faultConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *faultConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if err := c.faults.next(&c.faults.prepare); err != nil {
		return nil, err
	}
	var (
		stmt driver.Stmt
		err  error
	)
	if cp, ok := c.Conn.(driver.ConnPrepareContext); ok {
		stmt, err = cp.PrepareContext(ctx, query)
	} else {
		stmt, err = c.Conn.Prepare(query)
	}
	if err != nil {
		return nil, err
	}
	c.faults.mu.Lock()
	c.faults.prepares++
	c.faults.mu.Unlock()
	return &faultStmt{Stmt: stmt, faults: c.faults}, nil
}

type faultStmt struct {
	driver.Stmt
	faults *Faults
}

func (s *faultStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if err := s.faults.next(&s.faults.exec); err != nil {
		return nil, err
	}
	if se, ok := s.Stmt.(driver.StmtExecContext); ok {
		return se.ExecContext(ctx, args)
	}
	return s.Stmt.Exec(values(args)) //nolint:staticcheck
}

func (s *faultStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if err := s.faults.next(&s.faults.query); err != nil {
		return nil, err
	}
	if sq, ok := s.Stmt.(driver.StmtQueryContext); ok {
		return sq.QueryContext(ctx, args)
	}
	return s.Stmt.Query(values(args)) //nolint:staticcheck
}

func values(args []driver.NamedValue) []driver.Value {
	v := make([]driver.Value, len(args))
	for i, a := range args {
		v[i] = a.Value
	}
	return v
}
