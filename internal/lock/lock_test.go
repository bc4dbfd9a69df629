package lock

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loykin/docmigrate/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := store.Config{Driver: store.DriverSqlite, DriverConfig: &store.SqliteConfig{Path: filepath.Join(t.TempDir(), "lock.db")}}
	st, err := store.Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestAcquireBusyRelease(t *testing.T) {
	ctx := context.Background()
	m := NewManager(openStore(t), nil)

	h, err := m.Acquire(ctx, "runner-a")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if h.Owner() != "runner-a" || !h.ExpiresAt().After(h.AcquiredAt()) {
		t.Fatalf("unexpected handle %+v", h)
	}

	_, err = m.Acquire(ctx, "runner-b")
	var busy *BusyError
	if !errors.As(err, &busy) {
		t.Fatalf("expected BusyError, got %v", err)
	}
	if busy.Owner != "runner-a" || !strings.Contains(busy.Error(), "runner-a") {
		t.Fatalf("busy error should name the holder: %v", busy)
	}

	if err := m.Release(ctx, h); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if rec, _ := m.Status(ctx); rec != nil {
		t.Fatalf("lock still present after release: %+v", rec)
	}
	h2, err := m.Acquire(ctx, "runner-b")
	if err != nil {
		t.Fatalf("re-acquire after release: %v", err)
	}
	_ = m.Release(ctx, h2)
}

func TestAcquireGeneratesOwner(t *testing.T) {
	m := NewManager(openStore(t), nil)
	h, err := m.Acquire(context.Background(), "")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if parts := strings.Split(h.Owner(), ":"); len(parts) < 3 {
		t.Fatalf("owner %q should be hostname:pid:uuid", h.Owner())
	}
}

func TestStaleTakeover(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	crashed := &Manager{Backend: st, Lease: time.Minute, StaleTakeover: true, Clock: clock.Now}
	if _, err := crashed.Acquire(ctx, "crashed"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	strict := &Manager{Backend: st, Lease: time.Minute, StaleTakeover: false, Clock: clock.Now}
	clock.Advance(30 * time.Second)
	if _, err := crashed.Acquire(ctx, "early"); err == nil {
		t.Fatalf("a live lease must not be taken over")
	}

	clock.Advance(time.Minute)
	var busy *BusyError
	if _, err := strict.Acquire(ctx, "strict"); !errors.As(err, &busy) {
		t.Fatalf("expired lock must block without takeover, got %v", err)
	}

	h, err := crashed.Acquire(ctx, "rescuer")
	if err != nil {
		t.Fatalf("expired lock should be taken over: %v", err)
	}
	if rec, _ := crashed.Status(ctx); rec == nil || rec.Owner != "rescuer" {
		t.Fatalf("unexpected lock record %+v", rec)
	}
	_ = crashed.Release(ctx, h)
}

func TestRenewAndLoss(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := &Manager{Backend: openStore(t), Lease: time.Minute, StaleTakeover: true, Clock: clock.Now}

	h, err := m.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	clock.Advance(40 * time.Second)
	if err := m.Renew(ctx, h); err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if want := clock.Now().Add(time.Minute); !h.ExpiresAt().Equal(want) {
		t.Fatalf("expires=%v, want %v", h.ExpiresAt(), want)
	}

	if err := m.ForceRelease(ctx); err != nil {
		t.Fatalf("ForceRelease: %v", err)
	}
	if err := m.Renew(ctx, h); !errors.Is(err, ErrLockLost) {
		t.Fatalf("expected ErrLockLost, got %v", err)
	}
}

func TestKeepAliveReportsLoss(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewManager(openStore(t), nil)
	h, err := m.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	errc := h.KeepAlive(ctx, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	if err := m.ForceRelease(context.Background()); err != nil {
		t.Fatalf("ForceRelease: %v", err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, ErrLockLost) {
			t.Fatalf("expected ErrLockLost, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("keep-alive did not report the lost lock")
	}
}

func TestKeepAliveStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(openStore(t), nil)
	h, err := m.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	errc := h.KeepAlive(ctx, 5*time.Millisecond)
	cancel()
	select {
	case err, ok := <-errc:
		if ok {
			t.Fatalf("unexpected error after cancel: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("keep-alive goroutine did not exit")
	}
}

func TestConcurrentAcquireExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	const n = 2
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		busies int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := NewManager(st, nil).Acquire(ctx, "")
			mu.Lock()
			defer mu.Unlock()
			var busy *BusyError
			switch {
			case err == nil:
				wins++
			case errors.As(err, &busy):
				busies++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 || busies != n-1 {
		t.Fatalf("wins=%d busy=%d, want exactly one winner", wins, busies)
	}
}

func TestLeaseBounds(t *testing.T) {
	m := &Manager{}
	if m.lease() != 10*time.Minute {
		t.Fatalf("zero lease should default, got %v", m.lease())
	}
	m.Lease = time.Millisecond
	if m.lease() != 3*time.Second {
		t.Fatalf("tiny lease should be raised to the minimum, got %v", m.lease())
	}
}

func TestNewOwnerIDUnique(t *testing.T) {
	if NewOwnerID() == NewOwnerID() {
		t.Fatalf("owner ids must be unique")
	}
}
