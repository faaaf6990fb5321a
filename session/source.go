package session

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"               // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"     // SQLite driver
	_ "github.com/microsoft/go-mssqldb" // SQL Server driver
)

// Supported driver names.
const (
	DriverMySQL     = "mysql"
	DriverSQLite    = "sqlite3"
	DriverPostgres  = "postgres"
	DriverSQLServer = "sqlserver"
)

// Source describes one database. When DSN is set it is passed to the driver
// unchanged; otherwise BuildDSN assembles one from the remaining fields.
type Source struct {
	Driver   string
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Params   map[string]string
}

// Options tunes the underlying sql.DB and the session pool.
type Options struct {
	// MaxSessions bounds the sessions handed out at once.
	MaxSessions     int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxSessions:     10,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// BuildDSN returns the driver name and data source name for src.
func BuildDSN(src Source) (driverName string, dsn string, err error) {
	if src.DSN != "" {
		if src.Driver == "" {
			return "", "", errors.New("driver is required")
		}
		return src.Driver, src.DSN, nil
	}

	switch src.Driver {
	case DriverMySQL:
		if src.Host == "" {
			return "", "", errors.New("host is required")
		}
		cfg := mysql.NewConfig()
		cfg.User = src.User
		cfg.Passwd = src.Password
		cfg.Net = "tcp"
		cfg.Addr = hostPort(src.Host, src.Port, 3306)
		cfg.DBName = src.Database
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		if len(src.Params) > 0 {
			cfg.Params = make(map[string]string, len(src.Params))
			for k, v := range src.Params {
				cfg.Params[k] = v
			}
		}
		return DriverMySQL, cfg.FormatDSN(), nil

	case DriverSQLite:
		if src.Database == "" {
			return "", "", errors.New("database is required")
		}
		dsn := src.Database
		if q := values(src.Params); len(q) > 0 {
			dsn = "file:" + dsn + "?" + q.Encode()
		}
		return DriverSQLite, dsn, nil

	case DriverPostgres:
		if src.Host == "" {
			return "", "", errors.New("host is required")
		}
		u := &url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(src.User, src.Password),
			Host:   hostPort(src.Host, src.Port, 5432),
			Path:   "/" + src.Database,
		}
		u.RawQuery = values(src.Params).Encode()
		return DriverPostgres, u.String(), nil

	case DriverSQLServer:
		if src.Host == "" {
			return "", "", errors.New("host is required")
		}
		u := &url.URL{
			Scheme: "sqlserver",
			User:   url.UserPassword(src.User, src.Password),
			Host:   hostPort(src.Host, src.Port, 1433),
		}
		q := values(src.Params)
		if src.Database != "" {
			q.Set("database", src.Database)
		}
		u.RawQuery = q.Encode()
		return DriverSQLServer, u.String(), nil

	default:
		return "", "", fmt.Errorf("unsupported driver: %q", src.Driver)
	}
}

func hostPort(host string, port, def int) string {
	if port <= 0 {
		port = def
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func values(params map[string]string) url.Values {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return q
}
