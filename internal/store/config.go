package store

import (
	"github.com/loykin/docmigrate/internal/constants"
	"github.com/loykin/docmigrate/internal/store/connector"
	"github.com/loykin/docmigrate/internal/store/mongodb"
	"github.com/loykin/docmigrate/internal/store/postgresql"
	"github.com/loykin/docmigrate/internal/store/sqlite"
	"github.com/loykin/docmigrate/internal/util"
)

const (
	DriverMongo    = "mongodb"
	DriverSqlite   = "sqlite"
	DriverPostgres = "postgresql"
)

type (
	TableNames     = connector.TableNames
	ChangeRecord   = connector.ChangeRecord
	LockRecord     = connector.LockRecord
	MongoConfig    = mongodb.Config
	SqliteConfig   = sqlite.Config
	PostgresConfig = postgresql.Config
)

type Config struct {
	Driver       string `mapstructure:"driver"`
	TableNames   TableNames
	DriverConfig DriverConfig
}

type DriverConfig interface {
	ToMap() map[string]interface{}
}

// DefaultTableNames returns the tracking table names. A database name prefix
// yields "<db>_changelog" and "<db>_changelog_lock"; an empty one the shared
// defaults.
func DefaultTableNames(prefix string) TableNames {
	return TableNames{
		Changelog: util.PrefixedOr("", prefix, constants.ChangelogSuffix, constants.DefaultChangelogTable),
		Lock:      util.PrefixedOr("", prefix, constants.LockSuffix, constants.DefaultLockTable),
	}
}

func (c Config) tableNames() TableNames {
	def := DefaultTableNames("")
	return TableNames{
		Changelog: util.TrimWithDefault(c.TableNames.Changelog, def.Changelog),
		Lock:      util.TrimWithDefault(c.TableNames.Lock, def.Lock),
	}
}
