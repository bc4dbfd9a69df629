// Package lock serializes migration runs through a single lease-based lock
// record held in the tracking store.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loykin/docmigrate/internal/common"
	"github.com/loykin/docmigrate/internal/constants"
	"github.com/loykin/docmigrate/internal/store"
)

// ErrLockLost is returned when a renewal finds the lock held by someone else
// or gone.
var ErrLockLost = errors.New("migration lock lost")

// BusyError reports that another runner holds the lock.
type BusyError struct {
	Owner     string
	ExpiresAt time.Time
}

func (e *BusyError) Error() string {
	if e.Owner == "" {
		return "migration lock is held by another runner"
	}
	return fmt.Sprintf("migration lock is held by %s until %s", e.Owner, e.ExpiresAt.UTC().Format(time.RFC3339))
}

// Backend is the store side of the lock. TryLock must be one atomic
// conditional write.
type Backend interface {
	TryLock(ctx context.Context, owner string, now time.Time, ttl time.Duration, takeover bool) (bool, error)
	Refresh(ctx context.Context, owner string, now time.Time, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, owner string) error
	ForceUnlock(ctx context.Context) error
	ReadLock(ctx context.Context) (*store.LockRecord, error)
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// Manager acquires and releases the migration lock.
type Manager struct {
	Backend Backend
	// Lease is how long a lock stays valid without renewal.
	Lease time.Duration
	// StaleTakeover lets an expired lock be replaced by a new owner. When
	// false an expired lock keeps blocking until it is force-released.
	StaleTakeover bool
	Clock         Clock
	Logger        *common.Logger
}

// NewManager returns a Manager with the default lease and stale takeover on.
func NewManager(b Backend, logger *common.Logger) *Manager {
	return &Manager{
		Backend:       b,
		Lease:         constants.DefaultLockLease,
		StaleTakeover: true,
		Logger:        logger,
	}
}

// Handle is a held lock.
type Handle struct {
	m          *Manager
	owner      string
	acquiredAt time.Time
	mu         sync.Mutex
	expiresAt  time.Time
}

// Owner returns the owner id written into the lock record.
func (h *Handle) Owner() string { return h.owner }

// AcquiredAt returns when the lock was taken.
func (h *Handle) AcquiredAt() time.Time { return h.acquiredAt }

// ExpiresAt returns the current lease expiry.
func (h *Handle) ExpiresAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.expiresAt
}

func (m *Manager) now() time.Time {
	if m.Clock != nil {
		return m.Clock().UTC()
	}
	return time.Now().UTC()
}

func (m *Manager) lease() time.Duration {
	if m.Lease < constants.MinLockLease {
		if m.Lease <= 0 {
			return constants.DefaultLockLease
		}
		return constants.MinLockLease
	}
	return m.Lease
}

func (m *Manager) logger() *common.Logger {
	return common.OrDefault(m.Logger).WithComponent("lock")
}

// Acquire takes the lock for owner in a single attempt. A held lock yields
// *BusyError; Acquire never waits.
func (m *Manager) Acquire(ctx context.Context, owner string) (*Handle, error) {
	if owner == "" {
		owner = NewOwnerID()
	}
	now := m.now()
	lease := m.lease()
	logger := m.logger().WithOwner(owner)

	ok, err := m.Backend.TryLock(ctx, owner, now, lease, m.StaleTakeover)
	if err != nil {
		return nil, err
	}
	if !ok {
		busy := &BusyError{}
		if rec, rerr := m.Backend.ReadLock(ctx); rerr == nil && rec != nil {
			busy.Owner, busy.ExpiresAt = rec.Owner, rec.ExpiresAt
			if rec.Expired(now) && !m.StaleTakeover {
				logger.Warn("expired lock left in place; release it with unlock --force", "holder", rec.Owner, "expired_at", rec.ExpiresAt)
			}
		}
		logger.Info("migration lock is busy", "holder", busy.Owner, "expires_at", busy.ExpiresAt)
		return nil, busy
	}
	logger.Info("migration lock acquired", "lease", lease)
	return &Handle{m: m, owner: owner, acquiredAt: now, expiresAt: now.Add(lease)}, nil
}

// Renew extends the lease. It returns ErrLockLost when h no longer owns the lock.
func (m *Manager) Renew(ctx context.Context, h *Handle) error {
	now := m.now()
	lease := m.lease()
	ok, err := m.Backend.Refresh(ctx, h.owner, now, lease)
	if err != nil {
		return fmt.Errorf("renew lock: %w", err)
	}
	if !ok {
		return ErrLockLost
	}
	h.mu.Lock()
	h.expiresAt = now.Add(lease)
	h.mu.Unlock()
	m.logger().WithOwner(h.owner).Debug("migration lock renewed", "expires_at", now.Add(lease))
	return nil
}

// Release deletes the lock record if h still owns it.
func (m *Manager) Release(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}
	if err := m.Backend.Unlock(ctx, h.owner); err != nil {
		return err
	}
	m.logger().WithOwner(h.owner).Info("migration lock released")
	return nil
}

// ForceRelease clears the lock whoever holds it.
func (m *Manager) ForceRelease(ctx context.Context) error {
	if err := m.Backend.ForceUnlock(ctx); err != nil {
		return err
	}
	m.logger().Warn("migration lock force released")
	return nil
}

// Status returns the current lock record, nil when the lock is free.
func (m *Manager) Status(ctx context.Context) (*store.LockRecord, error) {
	return m.Backend.ReadLock(ctx)
}

// KeepAlive renews the lease every interval (Lease/3 when interval is zero)
// until ctx ends. A failed renewal is sent on the returned channel, which is
// closed when the goroutine exits.
func (h *Handle) KeepAlive(ctx context.Context, interval time.Duration) <-chan error {
	if interval <= 0 {
		interval = h.m.lease() / 3
	}
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := h.m.Renew(ctx, h); err != nil {
					if ctx.Err() != nil {
						return
					}
					h.m.logger().WithOwner(h.owner).Error("lock renewal failed", "error", err)
					errc <- err
					return
				}
			}
		}
	}()
	return errc
}

// NewOwnerID returns "hostname:pid:uuid".
func NewOwnerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d:%s", host, os.Getpid(), uuid.NewString())
}
