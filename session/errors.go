package session

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"

	"github.com/go-sql-driver/mysql"
)

// ErrClosed is returned by a closed pool or session.
var ErrClosed = errors.New("session closed")

// TransportError wraps a failure of the connection itself, as opposed to a
// failure of the statement running on it.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "connection lost: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err means the connection dropped.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// transport wraps err in a TransportError when it is one.
func transport(err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) || !IsTransport(err) {
		return err
	}
	return &TransportError{Err: err}
}
