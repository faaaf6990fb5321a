package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"
)

// Pool hands out sessions on one database. At most MaxSessions sessions are
// in use at once; idle sessions keep their prepared statements.
type Pool struct {
	ID         string
	driverName string
	bindType   int
	db         *sqlx.DB
	slots      chan struct{}
	idle       chan *Session
	logger     *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Open connects to src and verifies the connection with a ping.
func Open(id string, src Source, opt Options, logger *slog.Logger) (*Pool, error) {
	driverName, dsn, err := BuildDSN(src)
	if err != nil {
		return nil, fmt.Errorf("database %s: %w", id, err)
	}
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("database %s: %w", id, err)
	}

	if opt.MaxSessions <= 0 {
		opt.MaxSessions = DefaultOptions().MaxSessions
	}
	db.SetMaxOpenConns(opt.MaxSessions)
	if opt.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opt.MaxIdleConns)
	}
	if opt.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opt.ConnMaxLifetime)
	}
	if opt.PingTimeout <= 0 {
		opt.PingTimeout = DefaultOptions().PingTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), opt.PingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database %s: ping failed: %w", id, err)
	}

	return NewPool(id, db, opt.MaxSessions, logger), nil
}

// NewPool wraps an open database. size bounds the sessions in use at once.
func NewPool(id string, db *sqlx.DB, size int, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		size = 1
	}
	return &Pool{
		ID:         id,
		driverName: db.DriverName(),
		bindType:   sqlx.BindType(db.DriverName()),
		db:         db,
		slots:      make(chan struct{}, size),
		idle:       make(chan *Session, size),
		logger:     logger.With("database", id),
	}
}

// Acquire returns a session for exclusive use, waiting while all sessions
// are busy. Release must be called when the caller is done.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if p.isClosed() {
		<-p.slots
		return nil, ErrClosed
	}
	select {
	case s := <-p.idle:
		return s, nil
	default:
	}
	s, err := newSession(ctx, p)
	if err != nil {
		<-p.slots
		return nil, err
	}
	p.logger.Debug("Opened session", "session", s.ID)
	return s, nil
}

// Release returns s to the pool.
func (p *Pool) Release(s *Session) {
	defer func() { <-p.slots }()
	if s.conn == nil || p.isClosed() {
		_ = s.Close()
		return
	}
	select {
	case p.idle <- s:
	default:
		_ = s.Close()
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// DriverName returns the name of the database/sql driver in use.
func (p *Pool) DriverName() string {
	return p.driverName
}

// BindType returns the sqlx bind type of the driver.
func (p *Pool) BindType() int {
	return p.bindType
}

// Rebind converts '?' markers to the driver's bind style.
func (p *Pool) Rebind(query string) string {
	return sqlx.Rebind(p.bindType, query)
}

// DB returns the underlying database.
func (p *Pool) DB() *sqlx.DB {
	return p.db
}

// Close closes idle sessions and the database. Sessions still in use are
// closed when released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case s := <-p.idle:
			_ = s.Close()
		default:
			return p.db.Close()
		}
	}
}
