package sqlite

import (
	"fmt"
	"time"

	"github.com/loykin/docmigrate/internal/store/connector"
)

// executedAtLayout is fixed width so text ordering matches time ordering.
const executedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Dialect implements sqlstore.Dialect for SQLite
type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

// Placeholder returns SQLite-style placeholders (?)
func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) EnsureStatements(th connector.TableNames) []string {
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (author TEXT NOT NULL, change_id TEXT NOT NULL, order_key TEXT NOT NULL, state TEXT NOT NULL, executed_at TEXT NOT NULL, PRIMARY KEY(author, change_id))", th.Changelog),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, owner TEXT NOT NULL, acquired_at INTEGER NOT NULL, expires_at INTEGER NOT NULL)", th.Lock),
	}
}

// TimeToStorage stores times as UTC text.
func (Dialect) TimeToStorage(t time.Time) interface{} {
	return t.UTC().Format(executedAtLayout)
}

func (Dialect) TimeFromStorage(v interface{}) (time.Time, error) {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case []byte:
		s = string(x)
	case time.Time:
		return x.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unexpected sqlite time value %T", v)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse sqlite time %q: %w", s, err)
	}
	return t.UTC(), nil
}
