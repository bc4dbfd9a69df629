package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/loykin/docmigrate/internal/common"
	"github.com/loykin/docmigrate/internal/constants"
	"github.com/loykin/docmigrate/internal/store/sqlstore"
	_ "modernc.org/sqlite"
)

// Store is the SQLite tracking store.
type Store struct {
	sqlstore.Store
	DSN string
}

// NewStore creates a new SQLite store logging to logger.
func NewStore(logger *common.Logger) *Store {
	return &Store{Store: sqlstore.Store{Dialect: Dialect{}, Logger: logger}}
}

// Load loads configuration into the SQLite store
func (s *Store) Load(config map[string]interface{}) error {
	if dsn, ok := config["dsn"].(string); ok && dsn != "" {
		s.DSN = dsn
		return nil
	}
	if path, ok := config["path"].(string); ok && path != "" {
		s.DSN = pathDSN(path)
	}
	return nil
}

// pathDSN waits on a locked file instead of failing with SQLITE_BUSY, so
// runners with separate handles contend on the lock row rather than the file.
func pathDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&%s", path, busyTimeoutMS, foreignKeysParam)
}

// Connect opens the database. An empty DSN falls back to an in-memory database.
func (s *Store) Connect(ctx context.Context) error {
	if s.DSN == "" {
		s.DSN = ":memory:"
	}
	db, err := sql.Open("sqlite", s.DSN)
	if err != nil {
		return fmt.Errorf("failed to open SQLite connection: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps :memory: stable.
	db.SetMaxOpenConns(constants.DefaultSQLiteMaxConns)
	db.SetMaxIdleConns(constants.DefaultSQLiteMaxConns)
	db.SetConnMaxLifetime(constants.DefaultSQLiteLifetime)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	s.DB = db

	s.Log().Info("SQLite database connection established successfully")
	return nil
}
