package config

import (
	"errors"
	"os"
	"path"
	"strings"
	"testing"
	"time"
)

const sample = `
listen: 0.0.0.0:9000
path: /srv/extdb
jwtSecretFile: /srv/extdb/jwt.key
auditDatabase: /srv/extdb/audit.db
auditRetention: 720h
databases:
  - id: Database
    driver: mysql
    host: db.local
    user: arma
    passwordEnv: DB_PASSWORD
    database: exile
    maxSessions: 4
    pingTimeout: 2s
    params:
      charset: utf8mb4
protocols:
  - name: exile
    database: Database
    options: exile.ini
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	p := path.Join(t.TempDir(), "sqlcustom.yaml")
	if err := os.WriteFile(p, []byte(contents), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return p
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Listen != "0.0.0.0:9000" || cfg.Path != "/srv/extdb" {
		t.Errorf("Unexpected listener settings: %+v", cfg)
	}
	if cfg.AuditDatabase != "/srv/extdb/audit.db" || cfg.AuditRetention != 30*24*time.Hour {
		t.Errorf("Unexpected audit settings: %q %v", cfg.AuditDatabase, cfg.AuditRetention)
	}
	if len(cfg.Databases) != 1 || len(cfg.Protocols) != 1 {
		t.Fatalf("Expected one database and one protocol, got %+v", cfg)
	}

	db := cfg.Databases[0]
	if db.PingTimeout != 2*time.Second {
		t.Errorf("Expected 2s ping timeout, got %v", db.PingTimeout)
	}
	src := db.Source(func(key string) string {
		if key == "DB_PASSWORD" {
			return "secret"
		}
		return ""
	})
	if src.Password != "secret" || src.Driver != "mysql" || src.Params["charset"] != "utf8mb4" {
		t.Errorf("Unexpected source %+v", src)
	}
	opt := db.Options()
	if opt.MaxSessions != 4 || opt.PingTimeout != 2*time.Second {
		t.Errorf("Unexpected pool options %+v", opt)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "databases: []\n"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Listen != Default().Listen {
		t.Errorf("Expected default listen address, got %q", cfg.Listen)
	}
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(path.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	cfg, err := LoadOrDefault(path.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault returned error: %v", err)
	}
	if cfg.Listen != Default().Listen {
		t.Errorf("Expected default config, got %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	cfg := Config{
		Listen: ":1",
		Databases: []DatabaseConfig{
			{ID: "a", Driver: "sqlite3"},
			{ID: "a", Driver: "oracle"},
		},
		Protocols: []ProtocolConfig{
			{Name: "p", Database: "missing"},
			{Name: "p", Database: "a"},
		},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected validation errors")
	}
	for _, want := range []string{"duplicate id", "unsupported driver", "unknown database", "duplicate name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected %q in %v", want, err)
		}
	}
}

func TestLoadMalformed(t *testing.T) {
	if _, err := Load(writeConfig(t, "databases: [\n")); err == nil {
		t.Error("Expected parse error")
	}
}
