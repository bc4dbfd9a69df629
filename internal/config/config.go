// Package config holds the run configuration shared by the command line and
// library callers, and turns it into store and logger settings.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/loykin/docmigrate/internal/common"
	"github.com/loykin/docmigrate/internal/constants"
	"github.com/loykin/docmigrate/internal/store"
	"github.com/loykin/docmigrate/internal/util"
	"gopkg.in/yaml.v3"
)

// ConfigurationError is a fatal setup problem found before any connection
// or lock attempt.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

type SQLiteStoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type PostgresStoreConfig struct {
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// MongoStoreConfig moves bookkeeping into a dedicated MongoDB database.
// Leaving Database empty keeps it colocated with the migrated database.
type MongoStoreConfig struct {
	URI      string `mapstructure:"uri" yaml:"uri"`
	Database string `mapstructure:"database" yaml:"database"`
}

type StoreConfig struct {
	Type     string              `mapstructure:"type" yaml:"type"`
	SQLite   SQLiteStoreConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres PostgresStoreConfig `mapstructure:"postgres" yaml:"postgres"`
	Mongo    MongoStoreConfig    `mapstructure:"mongo" yaml:"mongo"`
	// Optional table name customization
	TablePrefix    string `mapstructure:"table_prefix" yaml:"table_prefix"`
	TableChangelog string `mapstructure:"table_changelog" yaml:"table_changelog"`
	TableLock      string `mapstructure:"table_lock" yaml:"table_lock"`
}

type LoggingConfig struct {
	Level         string `mapstructure:"level" yaml:"level"`                   // error, warn, info, debug
	Format        string `mapstructure:"format" yaml:"format"`                 // text, json, color
	MaskSensitive *bool  `mapstructure:"mask_sensitive" yaml:"mask_sensitive"` // defaults to true
}

type StatusConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

type Config struct {
	URI              string        `mapstructure:"uri" yaml:"uri"`
	Database         string        `mapstructure:"database" yaml:"database"`
	TemplateDatabase string        `mapstructure:"template_database" yaml:"template_database"`
	Foreground       bool          `mapstructure:"foreground" yaml:"foreground"`
	Lease            time.Duration `mapstructure:"lease" yaml:"lease"`
	NoStaleTakeover  bool          `mapstructure:"no_stale_takeover" yaml:"no_stale_takeover"`
	DryRun           bool          `mapstructure:"dry_run" yaml:"dry_run"`
	Store            StoreConfig   `mapstructure:"store" yaml:"store"`
	Logging          LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Status           StatusConfig  `mapstructure:"status" yaml:"status"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		URI:              constants.DefaultMongoURI,
		TemplateDatabase: constants.DefaultTemplateDatabase,
		Lease:            constants.DefaultLockLease,
		Store:            StoreConfig{Type: constants.DefaultStoreDriver},
		Logging:          LoggingConfig{Level: "info", Format: common.FormatText},
	}
}

// FromMap decodes settings (for example viper's AllSettings) over Default.
// Durations may be given as strings such as "10m".
func FromMap(m map[string]interface{}) (Config, error) {
	c := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &c,
	})
	if err != nil {
		return c, err
	}
	if err := dec.Decode(m); err != nil {
		return c, &ConfigurationError{Field: "config", Reason: err.Error()}
	}
	return c, nil
}

// Load decodes a YAML file over the receiver.
func (c *Config) Load(path string) error {
	clean := filepath.Clean(path)
	if info, statErr := os.Stat(clean); statErr != nil || !info.Mode().IsRegular() {
		if statErr != nil {
			return statErr
		}
		return fmt.Errorf("not a regular file: %s", clean)
	}
	// #nosec G304 -- config path is provided intentionally by the operator
	f, err := os.Open(clean)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if err := yaml.NewDecoder(f).Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return &ConfigurationError{Field: "config", Reason: fmt.Sprintf("%s: %v", clean, err)}
	}
	return nil
}

// LoadFile returns Default overlaid with the YAML file at path.
func LoadFile(path string) (Config, error) {
	c := Default()
	err := c.Load(path)
	return c, err
}

// Validate reports the first problem as *ConfigurationError.
func (c *Config) Validate() error {
	if _, ok := util.TrimEmptyCheck(c.Database); !ok {
		return &ConfigurationError{Field: "database", Reason: "a target database name is required (-d/--database)"}
	}
	if strings.ContainsAny(strings.TrimSpace(c.Database), "/\\. \"$") {
		return &ConfigurationError{Field: "database", Reason: fmt.Sprintf("%q is not a valid MongoDB database name", c.Database)}
	}
	if c.Lease < 0 {
		return &ConfigurationError{Field: "lease", Reason: "must not be negative"}
	}
	if c.Lease > 0 && c.Lease < constants.MinLockLease {
		return &ConfigurationError{Field: "lease", Reason: fmt.Sprintf("must be at least %s", constants.MinLockLease)}
	}
	switch util.TrimAndLower(c.Store.Type) {
	case "", store.DriverMongo:
	case store.DriverSqlite:
	case store.DriverPostgres:
		pg := c.Store.Postgres
		if strings.TrimSpace(pg.DSN) == "" && strings.TrimSpace(pg.Host) == "" {
			return &ConfigurationError{Field: "store.postgres", Reason: "dsn or host is required"}
		}
	default:
		return &ConfigurationError{Field: "store.type", Reason: fmt.Sprintf("unsupported driver %q (valid: mongodb, sqlite, postgresql)", c.Store.Type)}
	}
	switch util.TrimAndLower(c.Logging.Format) {
	case "", common.FormatText, common.FormatJSON, common.FormatColor:
	default:
		return &ConfigurationError{Field: "logging.format", Reason: fmt.Sprintf("invalid format %q (valid: text, json, color)", c.Logging.Format)}
	}
	switch util.TrimAndLower(c.Logging.Level) {
	case "", "error", "warn", "warning", "info", "debug":
	default:
		return &ConfigurationError{Field: "logging.level", Reason: fmt.Sprintf("invalid level %q (valid: error, warn, info, debug)", c.Logging.Level)}
	}
	return nil
}

// Colocated reports whether the tracking collections live in the target
// database and share its connection.
func (c *Config) Colocated() bool {
	t := util.TrimAndLower(c.Store.Type)
	return (t == "" || t == store.DriverMongo) && strings.TrimSpace(c.Store.Mongo.Database) == ""
}

// TableNames derives tracking table names: explicit names win, then the
// prefix, then the defaults.
func (c *StoreConfig) TableNames() store.TableNames {
	def := store.DefaultTableNames(c.TablePrefix)
	return store.TableNames{
		Changelog: util.TrimWithDefault(c.TableChangelog, def.Changelog),
		Lock:      util.TrimWithDefault(c.TableLock, def.Lock),
	}
}

// ToStoreConfig builds the store configuration for a non-colocated store.
func (c *Config) ToStoreConfig() store.Config {
	out := store.Config{TableNames: c.Store.TableNames()}
	switch util.TrimAndLower(c.Store.Type) {
	case store.DriverSqlite:
		out.Driver = store.DriverSqlite
		out.DriverConfig = &store.SqliteConfig{Path: util.TrimWithDefault(c.Store.SQLite.Path, constants.DefaultSQLiteFileName)}
	case store.DriverPostgres:
		pg := c.Store.Postgres
		out.Driver = store.DriverPostgres
		out.DriverConfig = &store.PostgresConfig{
			DSN:      pg.DSN,
			Host:     pg.Host,
			Port:     pg.Port,
			User:     pg.User,
			Password: pg.Password,
			DBName:   pg.DBName,
			SSLMode:  pg.SSLMode,
		}
	default:
		out.Driver = store.DriverMongo
		out.DriverConfig = &store.MongoConfig{
			URI:      util.TrimWithDefault(c.Store.Mongo.URI, c.URI),
			Database: c.Store.Mongo.Database,
		}
	}
	return out
}

// SetupLogging builds the logger described by Logging and installs it as
// the process default.
func (c *Config) SetupLogging(w io.Writer) (*common.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	level := common.ParseLogLevel(c.Logging.Level)
	format := util.TrimWithDefault(util.TrimAndLower(c.Logging.Format), common.FormatText)
	switch format {
	case common.FormatText, common.FormatJSON, common.FormatColor:
	default:
		return nil, &ConfigurationError{Field: "logging.format", Reason: fmt.Sprintf("invalid format %q (valid: text, json, color)", c.Logging.Format)}
	}

	masking := true
	if c.Logging.MaskSensitive != nil {
		masking = *c.Logging.MaskSensitive
	}
	common.EnableMasking(masking)

	logger := common.NewLoggerTo(w, level, format)
	common.SetDefaultLogger(logger)
	logger.Debug("logging configured", "level", level.String(), "format", format, "mask_sensitive", masking)
	return logger, nil
}
