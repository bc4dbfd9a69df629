// Package sqlstore implements the tracking store on database/sql. The sqlite
// and postgresql drivers provide a Dialect and the connection.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/loykin/docmigrate/internal/changeset"
	"github.com/loykin/docmigrate/internal/common"
	"github.com/loykin/docmigrate/internal/constants"
	"github.com/loykin/docmigrate/internal/store/connector"
)

// Dialect captures the SQL differences between drivers.
type Dialect interface {
	Name() string
	Placeholder(i int) string
	EnsureStatements(th connector.TableNames) []string
	TimeToStorage(t time.Time) interface{}
	TimeFromStorage(v interface{}) (time.Time, error)
}

// Store is the shared SQL implementation of the tracking store.
// Lock expiry is kept as unix milliseconds so the takeover condition is a
// plain integer comparison on every dialect.
type Store struct {
	DB      *sql.DB
	Dialect Dialect
	Logger  *common.Logger
}

// Log returns the injected logger, or the default one tagged with the dialect.
func (s *Store) Log() *common.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return common.OrDefault(nil).WithStore(s.Dialect.Name())
}

func (s *Store) ph(i int) string { return s.Dialect.Placeholder(i) }

// Ensure creates the changelog and lock tables.
func (s *Store) Ensure(ctx context.Context, th connector.TableNames) error {
	logger := s.Log()
	for i, q := range s.Dialect.EnsureStatements(th) {
		logger.Debug("executing schema statement", "index", i+1, "sql", q)
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure %s schema (statement %d): %w", s.Dialect.Name(), i+1, err)
		}
	}
	return nil
}

// HasRun reports whether a success record exists for key.
func (s *Store) HasRun(ctx context.Context, th connector.TableNames, key changeset.Key) (bool, error) {
	q := fmt.Sprintf("SELECT 1 FROM %s WHERE author = %s AND change_id = %s AND state = %s",
		th.Changelog, s.ph(1), s.ph(2), s.ph(3))
	var one int
	err := s.DB.QueryRowContext(ctx, q, key.Author, key.ID, connector.StateSuccess).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check changeset %s: %w", key, err)
	}
	return true, nil
}

// RecordSuccess inserts the record unless one already exists.
func (s *Store) RecordSuccess(ctx context.Context, th connector.TableNames, rec connector.ChangeRecord) error {
	q := fmt.Sprintf("INSERT INTO %s(author, change_id, order_key, state, executed_at) VALUES(%s, %s, %s, %s, %s) ON CONFLICT(author, change_id) DO NOTHING",
		th.Changelog, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5))
	_, err := s.DB.ExecContext(ctx, q, rec.Key.Author, rec.Key.ID, rec.Order, rec.State, s.Dialect.TimeToStorage(rec.ExecutedAt.UTC()))
	if err != nil {
		return fmt.Errorf("record changeset %s: %w", rec.Key, err)
	}
	return nil
}

// ListRecords returns every change record, oldest first.
func (s *Store) ListRecords(ctx context.Context, th connector.TableNames) ([]connector.ChangeRecord, error) {
	q := fmt.Sprintf("SELECT author, change_id, order_key, state, executed_at FROM %s ORDER BY executed_at, author, change_id", th.Changelog)
	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list change records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []connector.ChangeRecord
	for rows.Next() {
		var rec connector.ChangeRecord
		var at interface{}
		if err := rows.Scan(&rec.Key.Author, &rec.Key.ID, &rec.Order, &rec.State, &at); err != nil {
			return nil, fmt.Errorf("scan change record: %w", err)
		}
		if rec.ExecutedAt, err = s.Dialect.TimeFromStorage(at); err != nil {
			return nil, fmt.Errorf("change record %s: %w", rec.Key, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// TryLock inserts the lock row, or with takeover replaces an expired one, in
// a single upsert statement.
func (s *Store) TryLock(ctx context.Context, th connector.TableNames, owner string, now time.Time, ttl time.Duration, takeover bool) (bool, error) {
	q := fmt.Sprintf("INSERT INTO %s(id, owner, acquired_at, expires_at) VALUES(%s, %s, %s, %s)",
		th.Lock, s.ph(1), s.ph(2), s.ph(3), s.ph(4))
	args := []interface{}{constants.LockID, owner, now.UnixMilli(), now.Add(ttl).UnixMilli()}
	if takeover {
		q += fmt.Sprintf(" ON CONFLICT(id) DO UPDATE SET owner = excluded.owner, acquired_at = excluded.acquired_at, expires_at = excluded.expires_at WHERE %s.expires_at <= %s",
			th.Lock, s.ph(5))
		args = append(args, now.UnixMilli())
	} else {
		q += " ON CONFLICT(id) DO NOTHING"
	}
	res, err := s.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	return n == 1, nil
}

// RefreshLock extends the lease if owner still holds it.
func (s *Store) RefreshLock(ctx context.Context, th connector.TableNames, owner string, now time.Time, ttl time.Duration) (bool, error) {
	q := fmt.Sprintf("UPDATE %s SET expires_at = %s WHERE id = %s AND owner = %s", th.Lock, s.ph(1), s.ph(2), s.ph(3))
	res, err := s.DB.ExecContext(ctx, q, now.Add(ttl).UnixMilli(), constants.LockID, owner)
	if err != nil {
		return false, fmt.Errorf("refresh lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("refresh lock: %w", err)
	}
	return n == 1, nil
}

// Unlock deletes the lock row if owner holds it.
func (s *Store) Unlock(ctx context.Context, th connector.TableNames, owner string) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE id = %s AND owner = %s", th.Lock, s.ph(1), s.ph(2))
	if _, err := s.DB.ExecContext(ctx, q, constants.LockID, owner); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// ForceUnlock deletes the lock row whoever holds it.
func (s *Store) ForceUnlock(ctx context.Context, th connector.TableNames) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE id = %s", th.Lock, s.ph(1))
	if _, err := s.DB.ExecContext(ctx, q, constants.LockID); err != nil {
		return fmt.Errorf("force release lock: %w", err)
	}
	return nil
}

// ReadLock returns the current lock row, or nil when there is none.
func (s *Store) ReadLock(ctx context.Context, th connector.TableNames) (*connector.LockRecord, error) {
	q := fmt.Sprintf("SELECT owner, acquired_at, expires_at FROM %s WHERE id = %s", th.Lock, s.ph(1))
	var owner string
	var acquired, expires int64
	err := s.DB.QueryRowContext(ctx, q, constants.LockID).Scan(&owner, &acquired, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lock: %w", err)
	}
	return &connector.LockRecord{
		Owner:      owner,
		AcquiredAt: time.UnixMilli(acquired).UTC(),
		ExpiresAt:  time.UnixMilli(expires).UTC(),
	}, nil
}

// Close closes the database handle.
func (s *Store) Close(context.Context) error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
