// Package store persists change records and the migration lock through a
// pluggable driver: mongodb (colocated with the target database by default),
// sqlite or postgresql.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loykin/docmigrate/internal/changeset"
	"github.com/loykin/docmigrate/internal/common"
	"github.com/loykin/docmigrate/internal/retry"
	"github.com/loykin/docmigrate/internal/store/connector"
	"github.com/loykin/docmigrate/internal/store/mongodb"
	"github.com/loykin/docmigrate/internal/store/postgresql"
	"github.com/loykin/docmigrate/internal/store/sqlite"
	"github.com/loykin/docmigrate/internal/util"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type Store struct {
	Config     Config
	connector  connector.Connector
	tableNames TableNames
	retry      *retry.Config
	logger     *common.Logger
}

// Connect opens the configured driver and ensures its tables exist.
func (s *Store) Connect(ctx context.Context, config Config) error {
	s.Config = config
	s.tableNames = config.tableNames()
	driver := util.TrimWithDefault(util.TrimAndLower(config.Driver), DriverMongo)
	s.logger = common.OrDefault(s.logger).WithStore(driver)

	var c connector.Connector
	switch driver {
	case DriverSqlite:
		c = sqlite.NewStore(s.logger)
	case DriverPostgres:
		c = postgresql.NewStore(s.logger)
	case DriverMongo:
		c = mongodb.NewStore(s.logger)
	default:
		return fmt.Errorf("unsupported store driver %q", config.Driver)
	}
	if config.DriverConfig != nil {
		if err := c.Load(config.DriverConfig.ToMap()); err != nil {
			return err
		}
	}
	return s.attach(ctx, c)
}

// Open is Connect on a fresh Store.
func Open(ctx context.Context, config Config, logger *common.Logger) (*Store, error) {
	s := &Store{logger: logger}
	if err := s.Connect(ctx, config); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenMongo keeps the tracking collections inside db, sharing its client.
func OpenMongo(ctx context.Context, db *mongo.Database, th TableNames, logger *common.Logger) (*Store, error) {
	s := &Store{
		Config:     Config{Driver: DriverMongo, TableNames: th},
		tableNames: Config{TableNames: th}.tableNames(),
		logger:     common.OrDefault(logger).WithStore(DriverMongo),
	}
	if err := s.attach(ctx, mongodb.NewFromDatabase(db, s.logger)); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) attach(ctx context.Context, c connector.Connector) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	if err := c.Ensure(ctx, s.tableNames); err != nil {
		_ = c.Close(context.WithoutCancel(ctx))
		return err
	}
	s.connector = c
	s.logger.Debug("tracking store ready", "changelog", s.tableNames.Changelog, "lock", s.tableNames.Lock)
	return nil
}

// SetRetry overrides the retry policy for record operations.
func (s *Store) SetRetry(cfg *retry.Config) { s.retry = cfg }

// TableNames returns the resolved table or collection names.
func (s *Store) TableNames() TableNames { return s.tableNames }

func (s *Store) conn() (connector.Connector, error) {
	if s == nil || s.connector == nil {
		return nil, errors.New("store is not connected")
	}
	return s.connector, nil
}

// Ensure re-creates the tracking tables if they are missing.
func (s *Store) Ensure(ctx context.Context) error {
	c, err := s.conn()
	if err != nil {
		return err
	}
	return c.Ensure(ctx, s.tableNames)
}

// HasRun reports whether a success record exists for key.
func (s *Store) HasRun(ctx context.Context, key changeset.Key) (bool, error) {
	c, err := s.conn()
	if err != nil {
		return false, err
	}
	return retry.Value(ctx, s.retry, s.logger, func(ctx context.Context) (bool, error) {
		return c.HasRun(ctx, s.tableNames, key)
	})
}

// RecordSuccess stores a success record for key unless one exists.
func (s *Store) RecordSuccess(ctx context.Context, key changeset.Key, order string, at time.Time) error {
	c, err := s.conn()
	if err != nil {
		return err
	}
	rec := ChangeRecord{Key: key, Order: order, State: connector.StateSuccess, ExecutedAt: at.UTC()}
	return retry.WithRetry(ctx, s.retry, s.logger, func(ctx context.Context) error {
		return c.RecordSuccess(ctx, s.tableNames, rec)
	})
}

// ListRecords returns all change records, oldest first.
func (s *Store) ListRecords(ctx context.Context) ([]ChangeRecord, error) {
	c, err := s.conn()
	if err != nil {
		return nil, err
	}
	return c.ListRecords(ctx, s.tableNames)
}

// TryLock attempts the single conditional lock write.
func (s *Store) TryLock(ctx context.Context, owner string, now time.Time, ttl time.Duration, takeover bool) (bool, error) {
	c, err := s.conn()
	if err != nil {
		return false, err
	}
	return c.TryLock(ctx, s.tableNames, owner, now, ttl, takeover)
}

// Refresh extends owner's lease; false means owner no longer holds the lock.
func (s *Store) Refresh(ctx context.Context, owner string, now time.Time, ttl time.Duration) (bool, error) {
	c, err := s.conn()
	if err != nil {
		return false, err
	}
	return c.RefreshLock(ctx, s.tableNames, owner, now, ttl)
}

func (s *Store) Unlock(ctx context.Context, owner string) error {
	c, err := s.conn()
	if err != nil {
		return err
	}
	return c.Unlock(ctx, s.tableNames, owner)
}

func (s *Store) ForceUnlock(ctx context.Context) error {
	c, err := s.conn()
	if err != nil {
		return err
	}
	return c.ForceUnlock(ctx, s.tableNames)
}

func (s *Store) ReadLock(ctx context.Context) (*LockRecord, error) {
	c, err := s.conn()
	if err != nil {
		return nil, err
	}
	return c.ReadLock(ctx, s.tableNames)
}

func (s *Store) Close() error {
	if s == nil || s.connector == nil {
		return nil
	}
	return s.connector.Close(context.Background())
}
