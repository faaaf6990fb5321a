package session

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Session is one database connection together with the statements prepared
// on it. A session is used by one call at a time; Pool.Acquire hands it out
// exclusively.
type Session struct {
	ID     string
	pool   *Pool
	conn   *sqlx.Conn
	stmts  map[string]*Handle
	logger *slog.Logger
}

func newSession(ctx context.Context, p *Pool) (*Session, error) {
	conn, err := p.db.Connx(ctx)
	if err != nil {
		return nil, transport(fmt.Errorf("failed to open connection: %w", err))
	}
	id := uuid.NewString()
	return &Session{
		ID:     id,
		pool:   p,
		conn:   conn,
		stmts:  make(map[string]*Handle),
		logger: p.logger.With("session", id),
	}, nil
}

// Rebind converts '?' markers to the bind style of the session's driver.
func (s *Session) Rebind(query string) string {
	return s.pool.Rebind(query)
}

// Query sends query as plain text and returns its rows.
func (s *Session) Query(ctx context.Context, query string) (*sqlx.Rows, error) {
	if s.conn == nil {
		return nil, &TransportError{Err: ErrClosed}
	}
	rows, err := s.conn.QueryxContext(ctx, query)
	if err != nil {
		return nil, transport(err)
	}
	return rows, nil
}

// Exec sends query as plain text without reading rows.
func (s *Session) Exec(ctx context.Context, query string) (sql.Result, error) {
	if s.conn == nil {
		return nil, &TransportError{Err: ErrClosed}
	}
	res, err := s.conn.ExecContext(ctx, query)
	if err != nil {
		return nil, transport(err)
	}
	return res, nil
}

// Native runs fn with exclusive access to the driver connection. Prepared
// handles obtained through the Native value are only valid inside fn. A
// transport error returned by fn makes database/sql discard the connection;
// the session must be reconnected before it is used again.
func (s *Session) Native(ctx context.Context, fn func(*Native) error) error {
	if s.conn == nil {
		return &TransportError{Err: ErrClosed}
	}
	var fnErr error
	err := s.conn.Raw(func(dc any) error {
		conn, ok := dc.(driver.Conn)
		if !ok {
			fnErr = fmt.Errorf("unexpected driver connection %T", dc)
			return fnErr
		}
		fnErr = fn(&Native{ctx: ctx, s: s, conn: conn})
		if IsTransport(fnErr) {
			return fmt.Errorf("%w: %w", driver.ErrBadConn, fnErr)
		}
		return fnErr
	})
	if fnErr != nil {
		return transport(fnErr)
	}
	return transport(err)
}

// Reconnect replaces the session's connection with a fresh one from the
// pool. Every cached statement is dropped.
func (s *Session) Reconnect(ctx context.Context) error {
	s.logger.Warn("Reconnecting session", "statements", len(s.stmts))
	s.stmts = make(map[string]*Handle)
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	conn, err := s.pool.db.Connx(ctx)
	if err != nil {
		return transport(fmt.Errorf("failed to reconnect: %w", err))
	}
	s.conn = conn
	return nil
}

// Statements returns the number of cached prepared statements.
func (s *Session) Statements() int {
	return len(s.stmts)
}

// Close releases the cached statements and the connection.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	if len(s.stmts) > 0 {
		_ = s.conn.Raw(func(any) error {
			for name, h := range s.stmts {
				_ = h.stmt.Close()
				delete(s.stmts, name)
			}
			return nil
		})
	}
	err := s.conn.Close()
	s.conn = nil
	if errors.Is(err, sql.ErrConnDone) {
		return nil
	}
	return err
}

// Native gives access to the driver connection of a session during
// Session.Native.
type Native struct {
	ctx  context.Context
	s    *Session
	conn driver.Conn
}

// Statement returns the handle cached under name, preparing query on first
// use.
func (n *Native) Statement(name, query string) (*Handle, error) {
	if h, ok := n.s.stmts[name]; ok {
		return h, nil
	}
	var (
		stmt driver.Stmt
		err  error
	)
	if cp, ok := n.conn.(driver.ConnPrepareContext); ok {
		stmt, err = cp.PrepareContext(n.ctx, query)
	} else {
		stmt, err = n.conn.Prepare(query)
	}
	if err != nil {
		return nil, fmt.Errorf("prepare failed: %w", err)
	}
	h := &Handle{Name: name, SQL: query, stmt: stmt}
	n.s.stmts[name] = h
	n.s.logger.Debug("Prepared statement", "call", name)
	return h, nil
}

// Evict closes and forgets the handle cached under name.
func (n *Native) Evict(name string) {
	h, ok := n.s.stmts[name]
	if !ok {
		return
	}
	delete(n.s.stmts, name)
	if err := h.stmt.Close(); err != nil {
		n.s.logger.Warn("Failed to close statement", "call", name, "error", err)
	}
}

// Handle is a statement prepared on one session's connection.
type Handle struct {
	Name string
	SQL  string
	stmt driver.Stmt
}

// NumInput returns the number of placeholders, or -1 if the driver does not
// know.
func (h *Handle) NumInput() int {
	return h.stmt.NumInput()
}

// Query executes the statement and returns its rows.
func (h *Handle) Query(ctx context.Context, args []driver.Value) (driver.Rows, error) {
	if sq, ok := h.stmt.(driver.StmtQueryContext); ok {
		return sq.QueryContext(ctx, named(args))
	}
	return h.stmt.Query(args) //nolint:staticcheck
}

// Exec executes the statement without reading rows.
func (h *Handle) Exec(ctx context.Context, args []driver.Value) (driver.Result, error) {
	if se, ok := h.stmt.(driver.StmtExecContext); ok {
		return se.ExecContext(ctx, named(args))
	}
	return h.stmt.Exec(args) //nolint:staticcheck
}

func named(args []driver.Value) []driver.NamedValue {
	nv := make([]driver.NamedValue, len(args))
	for i, v := range args {
		nv[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return nv
}
