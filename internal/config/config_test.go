package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/docmigrate/internal/store"
)

func TestValidate_MissingDatabase(t *testing.T) {
	c := Default()
	err := c.Validate()
	var ce *ConfigurationError
	if !errors.As(err, &ce) || ce.Field != "database" {
		t.Fatalf("expected database ConfigurationError, got %v", err)
	}
	c.Database = "   "
	if err := c.Validate(); !errors.As(err, &ce) {
		t.Fatalf("blank database must be rejected, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	ok := Default()
	ok.Database = "proj1"
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name  string
		mod   func(*Config)
		field string
	}{
		{"dotted database", func(c *Config) { c.Database = "a.b" }, "database"},
		{"negative lease", func(c *Config) { c.Lease = -time.Second }, "lease"},
		{"tiny lease", func(c *Config) { c.Lease = time.Second }, "lease"},
		{"unknown store", func(c *Config) { c.Store.Type = "redis" }, "store.type"},
		{"postgres without dsn", func(c *Config) { c.Store.Type = "postgresql" }, "store.postgres"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ok
			tt.mod(&c)
			var ce *ConfigurationError
			if err := c.Validate(); !errors.As(err, &ce) || ce.Field != tt.field {
				t.Fatalf("expected %s error, got %v", tt.field, err)
			}
		})
	}
}

func TestFromMap(t *testing.T) {
	c, err := FromMap(map[string]interface{}{
		"database":   "proj1",
		"lease":      "2m",
		"foreground": "true",
		"store":      map[string]interface{}{"type": "sqlite", "sqlite": map[string]interface{}{"path": "/tmp/x.db"}},
	})
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	if c.Database != "proj1" || c.Lease != 2*time.Minute || !c.Foreground {
		t.Fatalf("unexpected config %+v", c)
	}
	if c.URI != "mongodb://localhost:27017/" || c.TemplateDatabase != "projTemplate" {
		t.Fatalf("defaults lost: %+v", c)
	}
	if c.Store.SQLite.Path != "/tmp/x.db" {
		t.Fatalf("store path=%q", c.Store.SQLite.Path)
	}

	if _, err := FromMap(map[string]interface{}{"lease": "soon"}); err == nil {
		t.Fatalf("expected error for bad duration")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
uri: mongodb://db:27017/
database: proj2
lease: 5m
store:
  type: postgresql
  table_prefix: proj2
  postgres:
    host: pg
    user: u
    dbname: d
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if c.Database != "proj2" || c.Lease != 5*time.Minute || c.TemplateDatabase != "projTemplate" {
		t.Fatalf("unexpected config %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	sc := c.ToStoreConfig()
	if sc.Driver != store.DriverPostgres || sc.TableNames.Changelog != "proj2_changelog" {
		t.Fatalf("unexpected store config %+v", sc)
	}
	if dsn := sc.DriverConfig.ToMap()["dsn"]; dsn != "postgres://u:@pg:5432/d?sslmode=disable" {
		t.Fatalf("dsn=%v", dsn)
	}

	if _, err := LoadFile(dir); err == nil {
		t.Fatalf("directories must be rejected")
	}
	bad := filepath.Join(dir, "bad.yaml")
	_ = os.WriteFile(bad, []byte("database: [unterminated"), 0o600)
	var ce *ConfigurationError
	if _, err := LoadFile(bad); !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError for bad yaml, got %v", err)
	}
}

func TestColocatedAndStoreConfig(t *testing.T) {
	c := Default()
	c.Database = "proj1"
	if !c.Colocated() {
		t.Fatalf("default store should be colocated")
	}
	c.Store.Mongo.Database = "bookkeeping"
	if c.Colocated() {
		t.Fatalf("dedicated database is not colocated")
	}
	sc := c.ToStoreConfig()
	m := sc.DriverConfig.ToMap()
	if sc.Driver != store.DriverMongo || m["uri"] != c.URI || m["database"] != "bookkeeping" {
		t.Fatalf("unexpected mongo store config %+v %v", sc, m)
	}

	c.Store = StoreConfig{Type: "SQLite"}
	if c.Colocated() {
		t.Fatalf("sqlite store is not colocated")
	}
	if p := c.ToStoreConfig().DriverConfig.ToMap()["path"]; p != "docmigrate.db" {
		t.Fatalf("default sqlite path=%v", p)
	}
}

func TestTableNames(t *testing.T) {
	s := StoreConfig{}
	if got := s.TableNames(); got.Changelog != "dbchangelog" || got.Lock != "dbchangelog_lock" {
		t.Fatalf("defaults=%+v", got)
	}
	s = StoreConfig{TablePrefix: "p", TableLock: "custom_lock"}
	if got := s.TableNames(); got.Changelog != "p_changelog" || got.Lock != "custom_lock" {
		t.Fatalf("derived=%+v", got)
	}
}

func TestSetupLogging(t *testing.T) {
	var buf bytes.Buffer
	c := Default()
	c.Logging = LoggingConfig{Level: "debug", Format: "json"}
	logger, err := c.SetupLogging(&buf)
	if err != nil {
		t.Fatalf("SetupLogging: %v", err)
	}
	logger.Info("hello", "uri", "mongodb://admin:s3cret@db:27017/")
	out := buf.String()
	if !strings.Contains(out, `"msg":"hello"`) || strings.Contains(out, "s3cret") {
		t.Fatalf("unexpected output %q", out)
	}

	c.Logging.Format = "xml"
	if _, err := c.SetupLogging(&buf); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
