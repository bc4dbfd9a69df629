// Package status reports which changesets have run and who holds the
// migration lock.
package status

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loykin/docmigrate/internal/changeset"
	"github.com/loykin/docmigrate/internal/store"
)

// Changeset states shown by status.
const (
	StateExecuted = "executed"
	StatePending  = "pending"
	StateAlways   = "always"
	// StateOrphaned marks a record whose changeset is no longer registered.
	StateOrphaned = "orphaned"
)

// Source is the read side of the tracking store.
type Source interface {
	ListRecords(ctx context.Context) ([]store.ChangeRecord, error)
	ReadLock(ctx context.Context) (*store.LockRecord, error)
}

type Item struct {
	Author      string     `json:"author"`
	ID          string     `json:"id"`
	Order       string     `json:"order"`
	Policy      string     `json:"policy,omitempty"`
	Description string     `json:"description,omitempty"`
	State       string     `json:"state"`
	ExecutedAt  *time.Time `json:"executedAt,omitempty"`
}

type LockInfo struct {
	Held       bool      `json:"held"`
	Owner      string    `json:"owner,omitempty"`
	AcquiredAt time.Time `json:"acquiredAt,omitempty"`
	ExpiresAt  time.Time `json:"expiresAt,omitempty"`
	Expired    bool      `json:"expired"`
}

// Info aggregates status information: registered changesets in execution
// order followed by orphaned records, and the lock.
type Info struct {
	Changesets []Item   `json:"changesets"`
	Lock       LockInfo `json:"lock"`
}

// Pending returns how many changesets would run now.
func (i Info) Pending() int {
	n := 0
	for _, it := range i.Changesets {
		if it.State == StatePending || it.State == StateAlways {
			n++
		}
	}
	return n
}

// Collect builds Info from the registry and the tracking store.
func Collect(ctx context.Context, src Source, reg *changeset.Registry, now time.Time) (Info, error) {
	defs, err := reg.List()
	if err != nil {
		return Info{}, err
	}
	recs, err := src.ListRecords(ctx)
	if err != nil {
		return Info{}, err
	}
	lock, err := ReadLock(ctx, src, now)
	if err != nil {
		return Info{}, err
	}

	byKey := make(map[changeset.Key]store.ChangeRecord, len(recs))
	for _, r := range recs {
		byKey[r.Key] = r
	}
	items := make([]Item, 0, len(defs))
	for _, d := range defs {
		it := Item{
			Author:      d.Author,
			ID:          d.ID,
			Order:       d.Order,
			Policy:      d.Policy.String(),
			Description: d.Description,
			State:       StatePending,
		}
		if r, ok := byKey[d.Key()]; ok {
			at := r.ExecutedAt
			it.ExecutedAt = &at
			delete(byKey, d.Key())
			if d.Policy == changeset.RunOnce {
				it.State = StateExecuted
			}
		}
		if d.Policy == changeset.Always {
			it.State = StateAlways
		}
		items = append(items, it)
	}
	for _, r := range recs {
		if _, ok := byKey[r.Key]; !ok {
			continue
		}
		at := r.ExecutedAt
		items = append(items, Item{Author: r.Key.Author, ID: r.Key.ID, Order: r.Order, State: StateOrphaned, ExecutedAt: &at})
	}
	return Info{Changesets: items, Lock: lock}, nil
}

// ReadLock returns the lock state at now.
func ReadLock(ctx context.Context, src Source, now time.Time) (LockInfo, error) {
	rec, err := src.ReadLock(ctx)
	if err != nil {
		return LockInfo{}, err
	}
	if rec == nil {
		return LockInfo{}, nil
	}
	return LockInfo{
		Held:       true,
		Owner:      rec.Owner,
		AcquiredAt: rec.AcquiredAt,
		ExpiresAt:  rec.ExpiresAt,
		Expired:    rec.Expired(now),
	}, nil
}

// FormatHuman returns a human-friendly multiline string for CLI output.
func (i Info) FormatHuman() string {
	var b strings.Builder
	for _, it := range i.Changesets {
		at := "-"
		if it.ExecutedAt != nil {
			at = it.ExecutedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "%-6s %-9s %s/%s at=%s\n", it.Order, it.State, it.Author, it.ID, at)
	}
	if len(i.Changesets) == 0 {
		b.WriteString("no changesets\n")
	}
	switch {
	case !i.Lock.Held:
		b.WriteString("lock: free\n")
	case i.Lock.Expired:
		fmt.Fprintf(&b, "lock: held by %s, expired at %s\n", i.Lock.Owner, i.Lock.ExpiresAt.UTC().Format(time.RFC3339))
	default:
		fmt.Fprintf(&b, "lock: held by %s until %s\n", i.Lock.Owner, i.Lock.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return b.String()
}
