// Package docmigrate applies ordered, run-once changesets to a MongoDB
// database under a lease-based lock, recording what ran so every runner
// converges on the same state.
package docmigrate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/loykin/docmigrate/internal/changeset"
	"github.com/loykin/docmigrate/internal/common"
	"github.com/loykin/docmigrate/internal/config"
	"github.com/loykin/docmigrate/internal/docdb"
	"github.com/loykin/docmigrate/internal/engine"
	"github.com/loykin/docmigrate/internal/lock"
	"github.com/loykin/docmigrate/internal/store"
	"github.com/loykin/docmigrate/pkg/status"
)

// Re-export commonly used types for public API

type (
	Definition  = changeset.Definition
	Key         = changeset.Key
	Context     = changeset.Context
	Body        = changeset.Body
	RerunPolicy = changeset.RerunPolicy
	Registry    = changeset.Registry

	Config        = config.Config
	StoreConfig   = config.StoreConfig
	LoggingConfig = config.LoggingConfig

	Report   = engine.Report
	Outcome  = engine.Outcome
	PlanItem = engine.PlanItem

	Database  = docdb.Database
	Source    = docdb.Source
	IndexSpec = docdb.IndexSpec

	Logger   = common.Logger
	LogLevel = common.LogLevel

	ConfigurationError       = config.ConfigurationError
	MigrationInProgressError = engine.MigrationInProgressError
	ChangesetExecutionError  = engine.ChangesetExecutionError
	RunAbortedError          = engine.RunAbortedError
	DuplicateChangesetError  = changeset.DuplicateChangesetError
	InvalidChangesetError    = changeset.InvalidChangesetError
	LockBusyError            = lock.BusyError
)

const (
	RunOnce = changeset.RunOnce
	Always  = changeset.Always

	LogLevelError = common.LogLevelError
	LogLevelWarn  = common.LogLevelWarn
	LogLevelInfo  = common.LogLevelInfo
	LogLevelDebug = common.LogLevelDebug
)

// ErrLockLost is reported when the lease was taken away during a run.
var ErrLockLost = lock.ErrLockLost

// NewRegistry returns an empty changeset registry.
func NewRegistry() *Registry { return changeset.NewRegistry() }

// Register adds changesets to the process-wide registry.
func Register(defs ...Definition) error { return changeset.Register(defs...) }

// MustRegister is Register that panics; meant for init functions.
func MustRegister(defs ...Definition) { changeset.MustRegister(defs...) }

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config { return config.Default() }

// NewLogger creates a text logger on stdout.
func NewLogger(level LogLevel) *Logger { return common.NewLogger(level) }

// SetDefaultLogger installs the process default logger.
func SetDefaultLogger(l *Logger) { common.SetDefaultLogger(l) }

// Migrator runs changesets against the database named in Config. Connections
// are opened on first use and kept until Close.
type Migrator struct {
	Config   Config
	Registry *Registry
	Logger   *Logger
	// Owner overrides the lock owner id, mostly for tests.
	Owner string

	mu     sync.Mutex
	client *docdb.Client
	st     *store.Store
}

// New returns a Migrator for cfg and the process-wide registry.
func New(cfg Config) *Migrator {
	return &Migrator{Config: cfg}
}

func (m *Migrator) registry() *Registry {
	if m.Registry == nil {
		return changeset.Default
	}
	return m.Registry
}

func (m *Migrator) logger() *Logger { return common.OrDefault(m.Logger) }

// connect opens what the operation needs. The target database is only dialled
// when needTarget is set or the store lives inside it.
func (m *Migrator) connect(ctx context.Context, needTarget bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Config.Validate(); err != nil {
		return err
	}
	cfg := &m.Config
	logger := m.logger()

	if m.client == nil && (needTarget || cfg.Colocated()) {
		c, err := docdb.Connect(ctx, cfg.URI, logger)
		if err != nil {
			return err
		}
		m.client = c
	}
	if m.st != nil {
		return nil
	}
	var (
		st  *store.Store
		err error
	)
	if cfg.Colocated() {
		st, err = store.OpenMongo(ctx, m.client.Mongo().Database(cfg.Database), cfg.Store.TableNames(), logger)
	} else {
		st, err = store.Open(ctx, cfg.ToStoreConfig(), logger)
	}
	if err != nil {
		return err
	}
	m.st = st
	return nil
}

func (m *Migrator) lockManager() *lock.Manager {
	lm := lock.NewManager(m.st, m.logger())
	if m.Config.Lease > 0 {
		lm.Lease = m.Config.Lease
	}
	lm.StaleTakeover = !m.Config.NoStaleTakeover
	return lm
}

func (m *Migrator) engine() *engine.Engine {
	res := changeset.Resources{Logger: m.logger(), IndexBuild: docdb.Background}
	if m.Config.Foreground {
		res.IndexBuild = docdb.Foreground
	}
	if m.client != nil {
		res.Target = m.client.Database(m.Config.Database)
		if m.Config.TemplateDatabase != "" {
			res.Template = m.client.Source(m.Config.TemplateDatabase)
		}
	}
	return &engine.Engine{
		Registry:  m.registry(),
		Records:   m.st,
		Lock:      m.lockManager(),
		Resources: res,
		Logger:    m.logger(),
		Owner:     m.Owner,
	}
}

// Up runs every pending changeset. Configuration problems are reported as
// *ConfigurationError before anything is contacted.
func (m *Migrator) Up(ctx context.Context) (*Report, error) {
	if err := m.connect(ctx, true); err != nil {
		return nil, err
	}
	return m.engine().Run(ctx)
}

// Plan lists what Up would run without taking the lock.
func (m *Migrator) Plan(ctx context.Context) ([]PlanItem, error) {
	if err := m.connect(ctx, false); err != nil {
		return nil, err
	}
	return m.engine().Plan(ctx)
}

// Status implements router.Provider.
func (m *Migrator) Status(ctx context.Context) (status.Info, error) {
	if err := m.connect(ctx, false); err != nil {
		return status.Info{}, err
	}
	return status.Collect(ctx, m.st, m.registry(), time.Now())
}

// Lock implements router.Provider.
func (m *Migrator) Lock(ctx context.Context) (status.LockInfo, error) {
	if err := m.connect(ctx, false); err != nil {
		return status.LockInfo{}, err
	}
	return status.ReadLock(ctx, m.st, time.Now())
}

// ForceUnlock clears the migration lock whoever holds it.
func (m *Migrator) ForceUnlock(ctx context.Context) error {
	if err := m.connect(ctx, false); err != nil {
		return err
	}
	return m.lockManager().ForceRelease(ctx)
}

// Close releases connections.
func (m *Migrator) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	if m.st != nil {
		errs = append(errs, m.st.Close())
		m.st = nil
	}
	if m.client != nil {
		errs = append(errs, m.client.Disconnect(ctx))
		m.client = nil
	}
	return errors.Join(errs...)
}
