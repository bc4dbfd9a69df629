package constants

import "time"

// Target database defaults
const (
	DefaultMongoURI         = "mongodb://localhost:27017/"
	DefaultTemplateDatabase = "projTemplate"
	DefaultConnectTimeout   = 10 * time.Second
)

// Tracking store defaults
const (
	DefaultStoreDriver    = "mongodb"
	DefaultChangelogTable = "dbchangelog"
	DefaultLockTable      = "dbchangelog_lock"

	// Table name suffixes when using prefixes
	ChangelogSuffix = "_changelog"
	LockSuffix      = "_changelog_lock"

	// LockID is the _id / primary key of the single lock record.
	LockID = "migration"

	DefaultSQLiteFileName = "docmigrate.db"
	DefaultSQLiteMaxConns = 1 // SQLite allows only one writer
	DefaultSQLiteLifetime = 10 * time.Minute

	DefaultPostgresPort     = 5432
	DefaultPostgresSSLMode  = "disable"
	DefaultPostgresMaxConns = 5
	DefaultMaxConnLifetime  = 5 * time.Minute
)

// Lock defaults
const (
	// DefaultLockLease bounds how long a crashed runner can block others.
	DefaultLockLease = 10 * time.Minute
	// DefaultReleaseTimeout bounds lock release after the run context is gone.
	DefaultReleaseTimeout = 15 * time.Second
	// MinLockLease keeps keep-alive intervals sane.
	MinLockLease = 3 * time.Second
)

// Seed loading defaults
const (
	DefaultSeedHTTPTimeout = 30 * time.Second
	SeedDataField          = "data"
)

// Status server defaults
const (
	DefaultStatusBasePath = "/status"
)
