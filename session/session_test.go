package session_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/tomyedwab/sqlcustom/session"
	"github.com/tomyedwab/sqlcustom/session/sessiontest"
)

func TestAcquireReusesSession(t *testing.T) {
	pool, _ := sessiontest.NewPool(t, 1)
	ctx := context.Background()

	s1, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	id := s1.ID
	pool.Release(s1)

	s2, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	defer pool.Release(s2)
	if s2.ID != id {
		t.Errorf("Expected idle session %s to be reused, got %s", id, s2.ID)
	}
}

func TestAcquireWaitsForFreeSession(t *testing.T) {
	pool, _ := sessiontest.NewPool(t, 1)

	s, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	defer pool.Release(s)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pool.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded while pool is busy, got %v", err)
	}
}

func TestStatementCache(t *testing.T) {
	pool, faults := sessiontest.NewPool(t, 1, "CREATE TABLE t (id INTEGER, name TEXT)")
	ctx := context.Background()
	s, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	defer pool.Release(s)

	for i := 0; i < 3; i++ {
		err := s.Native(ctx, func(n *session.Native) error {
			h, err := n.Statement("insert", "INSERT INTO t (id, name) VALUES (?, ?)")
			if err != nil {
				return err
			}
			if h.NumInput() != 2 {
				return fmt.Errorf("expected 2 inputs, got %d", h.NumInput())
			}
			_, err = h.Exec(ctx, []driver.Value{int64(i), "x"})
			return err
		})
		if err != nil {
			t.Fatalf("Native returned error: %v", err)
		}
	}
	if faults.Prepares() != 1 {
		t.Errorf("Expected one prepare, got %d", faults.Prepares())
	}
	if s.Statements() != 1 {
		t.Errorf("Expected one cached statement, got %d", s.Statements())
	}

	err = s.Native(ctx, func(n *session.Native) error {
		n.Evict("insert")
		_, err := n.Statement("insert", "INSERT INTO t (id, name) VALUES (?, ?)")
		return err
	})
	if err != nil {
		t.Fatalf("Native returned error: %v", err)
	}
	if faults.Prepares() != 2 {
		t.Errorf("Expected eviction to force a new prepare, got %d", faults.Prepares())
	}
}

func TestNativeTransportErrorAndReconnect(t *testing.T) {
	pool, faults := sessiontest.NewPool(t, 1, "CREATE TABLE t (id INTEGER)")
	ctx := context.Background()
	s, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	defer pool.Release(s)

	faults.FailQuery(driver.ErrBadConn)
	err = s.Native(ctx, func(n *session.Native) error {
		h, err := n.Statement("select", "SELECT id FROM t")
		if err != nil {
			return err
		}
		_, err = h.Query(ctx, nil)
		return err
	})
	var te *session.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Expected TransportError, got %v", err)
	}

	opens := faults.Opens()
	if err := s.Reconnect(ctx); err != nil {
		t.Fatalf("Reconnect returned error: %v", err)
	}
	if s.Statements() != 0 {
		t.Errorf("Expected statement cache to be cleared, got %d", s.Statements())
	}
	if faults.Opens() != opens+1 {
		t.Errorf("Expected a new driver connection, got %d opens (was %d)", faults.Opens(), opens)
	}

	rows, err := s.Query(ctx, "SELECT COUNT(*) FROM t")
	if err != nil {
		t.Fatalf("Query after reconnect returned error: %v", err)
	}
	rows.Close()
}

func TestRawQuery(t *testing.T) {
	pool, _ := sessiontest.NewPool(t, 1, "CREATE TABLE t (id INTEGER, name TEXT)", "INSERT INTO t VALUES (1, 'a')")
	ctx := context.Background()
	s, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	defer pool.Release(s)

	rows, err := s.Query(ctx, "SELECT id, name FROM t")
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	defer rows.Close()
	if !rows.Next() {
		t.Fatal("Expected one row")
	}
	row, err := rows.SliceScan()
	if err != nil {
		t.Fatalf("SliceScan returned error: %v", err)
	}
	if len(row) != 2 || row[0] != int64(1) {
		t.Errorf("Unexpected row %v", row)
	}
}

func TestIsTransport(t *testing.T) {
	for _, err := range []error{
		driver.ErrBadConn,
		fmt.Errorf("wrapped: %w", mysql.ErrInvalidConn),
		io.ErrUnexpectedEOF,
		&net.OpError{Op: "read", Err: errors.New("reset")},
		&session.TransportError{Err: errors.New("x")},
	} {
		if !session.IsTransport(err) {
			t.Errorf("Expected %v to be a transport error", err)
		}
	}
	for _, err := range []error{nil, errors.New("syntax error"), io.EOF} {
		if session.IsTransport(err) {
			t.Errorf("Expected %v not to be a transport error", err)
		}
	}
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		src        session.Source
		driverName string
		contains   []string
	}{
		{
			session.Source{Driver: "mysql", Host: "db", User: "arma", Password: "pw", Database: "exile"},
			"mysql", []string{"arma:pw@tcp(db:3306)/exile", "parseTime=true"},
		},
		{
			session.Source{Driver: "sqlite3", Database: "/tmp/x.db"},
			"sqlite3", []string{"/tmp/x.db"},
		},
		{
			session.Source{Driver: "postgres", Host: "pg", Port: 5433, User: "u", Password: "p", Database: "d",
				Params: map[string]string{"sslmode": "disable"}},
			"postgres", []string{"postgres://u:p@pg:5433/d", "sslmode=disable"},
		},
		{
			session.Source{Driver: "sqlserver", Host: "ms", User: "sa", Password: "p", Database: "erp"},
			"sqlserver", []string{"sqlserver://sa:p@ms:1433", "database=erp"},
		},
		{
			session.Source{Driver: "custom", DSN: "anything"},
			"custom", []string{"anything"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.driverName, func(t *testing.T) {
			driverName, dsn, err := session.BuildDSN(tt.src)
			if err != nil {
				t.Fatalf("BuildDSN returned error: %v", err)
			}
			if driverName != tt.driverName {
				t.Errorf("Expected driver %s, got %s", tt.driverName, driverName)
			}
			for _, want := range tt.contains {
				if !strings.Contains(dsn, want) {
					t.Errorf("Expected %q in %q", want, dsn)
				}
			}
		})
	}

	if _, _, err := session.BuildDSN(session.Source{Driver: "oracle", Host: "x"}); err == nil {
		t.Error("Expected unsupported driver error")
	}
	if _, _, err := session.BuildDSN(session.Source{Driver: "mysql"}); err == nil {
		t.Error("Expected missing host error")
	}
}

func TestRebind(t *testing.T) {
	pg := session.NewPool("pg", sqlx.NewDb(nil, "postgres"), 1, nil)
	if got := pg.Rebind("SELECT ? , ?"); got != "SELECT $1 , $2" {
		t.Errorf("Expected $n markers, got %s", got)
	}
	ms := session.NewPool("ms", sqlx.NewDb(nil, "sqlserver"), 1, nil)
	if got := ms.Rebind("SELECT ?"); got != "SELECT @p1" {
		t.Errorf("Expected @pN markers, got %s", got)
	}
}

func TestManager(t *testing.T) {
	m := session.NewManager()
	pool, _ := sessiontest.NewPool(t, 1)
	if err := m.Add(pool); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if err := m.Add(pool); err == nil {
		t.Error("Expected duplicate id to be rejected")
	}
	if _, ok := m.Pool("test"); !ok {
		t.Error("Expected pool test to be registered")
	}
	if _, ok := m.Pool("missing"); ok {
		t.Error("Expected missing pool lookup to fail")
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
	if len(m.IDs()) != 0 {
		t.Errorf("Expected no pools after Close, got %v", m.IDs())
	}
}
