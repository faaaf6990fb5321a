package config

import (
	"time"

	"github.com/tomyedwab/sqlcustom/session"
)

type DatabaseConfig struct {
	ID       string `yaml:"id"`
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn,omitempty"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	// PasswordEnv names an environment variable holding the password.
	PasswordEnv string            `yaml:"passwordEnv,omitempty"`
	Database    string            `yaml:"database,omitempty"`
	Params      map[string]string `yaml:"params,omitempty"`

	MaxSessions     int           `yaml:"maxSessions,omitempty"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime,omitempty"`
	PingTimeout     time.Duration `yaml:"pingTimeout,omitempty"`
}

type ProtocolConfig struct {
	Name     string `yaml:"name"`
	Database string `yaml:"database"`
	// Options is the call file name under <path>/sql_custom.
	Options string `yaml:"options"`
}

type Config struct {
	Listen string `yaml:"listen"`
	// Path is the base directory holding the sql_custom call files.
	Path          string           `yaml:"path"`
	JWTSecretFile string           `yaml:"jwtSecretFile,omitempty"`
	Databases     []DatabaseConfig `yaml:"databases"`
	Protocols     []ProtocolConfig `yaml:"protocols"`

	// AuditDatabase is a SQLite file recording served calls. Empty disables
	// auditing.
	AuditDatabase  string        `yaml:"auditDatabase,omitempty"`
	AuditRetention time.Duration `yaml:"auditRetention,omitempty"`
}

func Default() Config {
	return Config{
		Listen:    "127.0.0.1:8585",
		Path:      ".",
		Databases: []DatabaseConfig{},
		Protocols: []ProtocolConfig{},
	}
}

// Source converts d into a session source, resolving PasswordEnv.
func (d DatabaseConfig) Source(getenv func(string) string) session.Source {
	password := d.Password
	if d.PasswordEnv != "" && getenv != nil {
		password = getenv(d.PasswordEnv)
	}
	return session.Source{
		Driver:   d.Driver,
		DSN:      d.DSN,
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: password,
		Database: d.Database,
		Params:   d.Params,
	}
}

// Options returns the pool options for d, filling unset values from
// session.DefaultOptions.
func (d DatabaseConfig) Options() session.Options {
	opt := session.DefaultOptions()
	if d.MaxSessions > 0 {
		opt.MaxSessions = d.MaxSessions
		opt.MaxIdleConns = d.MaxSessions
	}
	if d.ConnMaxLifetime > 0 {
		opt.ConnMaxLifetime = d.ConnMaxLifetime
	}
	if d.PingTimeout > 0 {
		opt.PingTimeout = d.PingTimeout
	}
	return opt
}
