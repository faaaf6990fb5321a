package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tomyedwab/sqlcustom/session"
	"gopkg.in/yaml.v3"
)

var ErrNotFound = errors.New("config not found")

// Load reads and validates the service configuration at path.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, ErrNotFound
		}
		return Config{}, err
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default.
func LoadOrDefault(path string) (Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, ErrNotFound) {
		return Default(), nil
	}
	return Config{}, err
}

// Validate checks that ids are unique and that every protocol refers to a
// configured database.
func (c Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}

	dbs := make(map[string]bool, len(c.Databases))
	for i, d := range c.Databases {
		if d.ID == "" {
			errs = append(errs, fmt.Errorf("databases[%d]: id is required", i))
			continue
		}
		if dbs[d.ID] {
			errs = append(errs, fmt.Errorf("databases[%d]: duplicate id %q", i, d.ID))
		}
		dbs[d.ID] = true
		switch d.Driver {
		case session.DriverMySQL, session.DriverSQLite, session.DriverPostgres, session.DriverSQLServer:
		default:
			errs = append(errs, fmt.Errorf("database %s: unsupported driver %q", d.ID, d.Driver))
		}
	}

	names := make(map[string]bool, len(c.Protocols))
	for i, p := range c.Protocols {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("protocols[%d]: name is required", i))
			continue
		}
		if names[p.Name] {
			errs = append(errs, fmt.Errorf("protocols[%d]: duplicate name %q", i, p.Name))
		}
		names[p.Name] = true
		if !dbs[p.Database] {
			errs = append(errs, fmt.Errorf("protocol %s: unknown database %q", p.Name, p.Database))
		}
	}
	if c.AuditRetention < 0 {
		errs = append(errs, errors.New("auditRetention must not be negative"))
	}
	return errors.Join(errs...)
}
