package connector

import (
	"context"
	"time"

	"github.com/loykin/docmigrate/internal/changeset"
)

// StateSuccess is the only state ever persisted for a change record.
const StateSuccess = "SUCCESS"

// ChangeRecord is persisted proof that a RunOnce changeset completed.
type ChangeRecord struct {
	Key        changeset.Key
	Order      string
	State      string
	ExecutedAt time.Time // UTC
}

// LockRecord is the single "migration in progress" marker.
type LockRecord struct {
	Owner      string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the lease has lapsed at now.
func (l LockRecord) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// TableNames names the collections/tables holding change records and the lock.
type TableNames struct {
	Changelog string
	Lock      string
}

// Connector is implemented by every tracking store driver.
//
// TryLock must be a single atomic conditional write: it succeeds when no lock
// record exists or, with takeover, when the existing record expired at now.
type Connector interface {
	Load(config map[string]interface{}) error
	Connect(ctx context.Context) error
	Ensure(ctx context.Context, th TableNames) error

	HasRun(ctx context.Context, th TableNames, key changeset.Key) (bool, error)
	RecordSuccess(ctx context.Context, th TableNames, rec ChangeRecord) error
	ListRecords(ctx context.Context, th TableNames) ([]ChangeRecord, error)

	TryLock(ctx context.Context, th TableNames, owner string, now time.Time, ttl time.Duration, takeover bool) (bool, error)
	RefreshLock(ctx context.Context, th TableNames, owner string, now time.Time, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, th TableNames, owner string) error
	ForceUnlock(ctx context.Context, th TableNames) error
	ReadLock(ctx context.Context, th TableNames) (*LockRecord, error)

	Close(ctx context.Context) error
}
