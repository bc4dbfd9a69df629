package engine

import (
	"fmt"

	"github.com/loykin/docmigrate/internal/changeset"
	"github.com/loykin/docmigrate/internal/lock"
)

// MigrationInProgressError means another runner holds the lock. The run did
// nothing.
type MigrationInProgressError struct {
	Busy *lock.BusyError
}

func (e *MigrationInProgressError) Error() string {
	return fmt.Sprintf("migration already in progress: %v", e.Busy)
}

func (e *MigrationInProgressError) Unwrap() error { return e.Busy }

// ChangesetExecutionError aborts a run. Changesets after Key were not attempted.
type ChangesetExecutionError struct {
	Key   changeset.Key
	Cause error
}

func (e *ChangesetExecutionError) Error() string {
	return fmt.Sprintf("changeset %s failed: %v", e.Key, e.Cause)
}

func (e *ChangesetExecutionError) Unwrap() error { return e.Cause }

// RunAbortedError means the run stopped between changesets because its
// context was cancelled or the lease was lost. No changeset failed; Remaining
// counts the ones that were not attempted.
type RunAbortedError struct {
	Remaining int
	Cause     error
}

func (e *RunAbortedError) Error() string {
	return fmt.Sprintf("migration run aborted with %d changeset(s) not attempted: %v", e.Remaining, e.Cause)
}

func (e *RunAbortedError) Unwrap() error { return e.Cause }
