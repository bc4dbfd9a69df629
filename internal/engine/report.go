package engine

import (
	"time"

	"github.com/loykin/docmigrate/internal/changeset"
)

// State is the engine's position in a run.
type State int

const (
	Idle State = iota
	Locking
	Locked
	Executing
	Completed
	Failed
	Unlocked
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Locking:
		return "locking"
	case Locked:
		return "locked"
	case Executing:
		return "executing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Unlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// Status is what happened to one changeset.
type Status int

const (
	StatusExecuted Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusExecuted:
		return "executed"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Outcome struct {
	Key      changeset.Key
	Order    string
	Policy   changeset.RerunPolicy
	Status   Status
	Duration time.Duration
	Err      error
}

// Report describes one run. Outcomes list only changesets that were reached.
type Report struct {
	Owner string
	State State
	// Current is the index of the changeset being executed, -1 outside Executing.
	Current int
	// Result is the terminal state reached before release: Completed or Failed.
	Result   State
	Outcomes []Outcome
	Started  time.Time
	Finished time.Time
}

func (r *Report) count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Executed returns how many bodies ran successfully.
func (r *Report) Executed() int { return r.count(StatusExecuted) }

// Skipped returns how many RunOnce changesets were already recorded.
func (r *Report) Skipped() int { return r.count(StatusSkipped) }

// PlanItem is one line of a dry run.
type PlanItem struct {
	Key         changeset.Key
	Order       string
	Policy      changeset.RerunPolicy
	Description string
	WillRun     bool
}
