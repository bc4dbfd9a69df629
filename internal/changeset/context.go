package changeset

import (
	"github.com/loykin/docmigrate/internal/common"
	"github.com/loykin/docmigrate/internal/docdb"
)

// Context is the only handle a changeset body receives: the target database,
// an optional read-only template database, a scoped logger and the index build
// mode. It exposes neither the lock nor the change records.
type Context struct {
	key        Key
	db         *docdb.Database
	template   *docdb.Source
	logger     *common.Logger
	indexBuild docdb.IndexBuild
}

// Resources are the run-wide pieces shared by every changeset Context.
type Resources struct {
	Target     *docdb.Database
	Template   *docdb.Source
	Logger     *common.Logger
	IndexBuild docdb.IndexBuild
}

// NewContext builds the Context for one changeset.
func NewContext(key Key, res Resources) *Context {
	return &Context{
		key:        key,
		db:         res.Target,
		template:   res.Template,
		logger:     common.OrDefault(res.Logger).WithChangeset(key.Author, key.ID),
		indexBuild: res.IndexBuild,
	}
}

// Key identifies the running changeset.
func (c *Context) Key() Key { return c.key }

// DB returns the target database.
func (c *Context) DB() *docdb.Database { return c.db }

// Template returns the read-only template database, or nil when none is configured.
func (c *Context) Template() *docdb.Source { return c.template }

// Logger returns a logger tagged with the changeset identity.
func (c *Context) Logger() *common.Logger { return c.logger }

// IndexBuild reports whether indexes should be built in the background.
func (c *Context) IndexBuild() docdb.IndexBuild { return c.indexBuild }
