package postgresql

import (
	"fmt"
	"time"

	"github.com/loykin/docmigrate/internal/store/connector"
)

// Dialect implements sqlstore.Dialect for PostgreSQL
type Dialect struct{}

func (Dialect) Name() string { return "postgresql" }

// Placeholder returns PostgreSQL-style placeholders ($1, $2, etc.)
func (Dialect) Placeholder(i int) string { return fmt.Sprintf("$%d", i) }

func (Dialect) EnsureStatements(th connector.TableNames) []string {
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (author TEXT NOT NULL, change_id TEXT NOT NULL, order_key TEXT NOT NULL, state TEXT NOT NULL, executed_at TIMESTAMPTZ NOT NULL, PRIMARY KEY(author, change_id))", th.Changelog),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, owner TEXT NOT NULL, acquired_at BIGINT NOT NULL, expires_at BIGINT NOT NULL)", th.Lock),
	}
}

func (Dialect) TimeToStorage(t time.Time) interface{} { return t.UTC() }

func (Dialect) TimeFromStorage(v interface{}) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case *time.Time:
		if x != nil {
			return x.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unexpected postgresql time value %T", v)
}
