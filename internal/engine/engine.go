// Package engine runs registered changesets in order under the migration lock.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loykin/docmigrate/internal/changeset"
	"github.com/loykin/docmigrate/internal/common"
	"github.com/loykin/docmigrate/internal/constants"
	"github.com/loykin/docmigrate/internal/lock"
)

// Records is the change record side of the tracking store.
type Records interface {
	HasRun(ctx context.Context, key changeset.Key) (bool, error)
	RecordSuccess(ctx context.Context, key changeset.Key, order string, at time.Time) error
}

// Engine executes one migration run at a time.
type Engine struct {
	Registry  *changeset.Registry
	Records   Records
	Lock      *lock.Manager
	Resources changeset.Resources
	Logger    *common.Logger
	// Owner is written into the lock record; empty means lock.NewOwnerID().
	Owner string
	// KeepAlive is the lease renewal interval; zero means Lease/3.
	KeepAlive time.Duration
	// ReleaseTimeout bounds the detached lock release.
	ReleaseTimeout time.Duration
}

func (e *Engine) logger() *common.Logger {
	return common.OrDefault(e.Logger).WithComponent("engine")
}

func (e *Engine) registry() *changeset.Registry {
	if e.Registry == nil {
		return changeset.Default
	}
	return e.Registry
}

func (e *Engine) transition(r *Report, s State) {
	prev := r.State
	r.State = s
	e.logger().Debug("state transition", "from", prev.String(), "to", s.String(), "current", r.Current)
}

// Run acquires the lock, executes every pending changeset in order and
// releases the lock. The first failure aborts the run. The returned report
// is never nil.
func (e *Engine) Run(ctx context.Context) (report *Report, err error) {
	owner := e.Owner
	if owner == "" {
		owner = lock.NewOwnerID()
	}
	report = &Report{Owner: owner, State: Idle, Current: -1, Started: time.Now().UTC()}
	logger := e.logger().WithOwner(owner)

	e.transition(report, Locking)
	h, err := e.Lock.Acquire(ctx, owner)
	if err != nil {
		report.Finished = time.Now().UTC()
		e.transition(report, Failed)
		report.Result = Failed
		var busy *lock.BusyError
		if errors.As(err, &busy) {
			return report, &MigrationInProgressError{Busy: busy}
		}
		return report, fmt.Errorf("acquire migration lock: %w", err)
	}
	e.transition(report, Locked)

	defer func() {
		timeout := e.ReleaseTimeout
		if timeout <= 0 {
			timeout = constants.DefaultReleaseTimeout
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if rerr := e.Lock.Release(rctx, h); rerr != nil {
			logger.Error("failed to release migration lock", "error", rerr)
			err = errors.Join(err, fmt.Errorf("release migration lock: %w", rerr))
		}
		e.transition(report, Unlocked)
		report.Finished = time.Now().UTC()
	}()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	lost := h.KeepAlive(runCtx, e.KeepAlive)
	go func() {
		if lerr, ok := <-lost; ok && lerr != nil {
			cancel(lerr)
		}
	}()

	err = e.execute(runCtx, report, logger)
	if err != nil {
		report.Result = Failed
		e.transition(report, Failed)
		return report, err
	}
	report.Result = Completed
	e.transition(report, Completed)
	logger.Info("migration run completed", "executed", report.Executed(), "skipped", report.Skipped())
	return report, nil
}

func (e *Engine) execute(ctx context.Context, report *Report, logger *common.Logger) error {
	defs, err := e.registry().List()
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		logger.Info("no changesets registered")
		return nil
	}

	for i, d := range defs {
		key := d.Key()
		report.Current = i
		e.transition(report, Executing)
		if cause := context.Cause(ctx); cause != nil {
			logger.Warn("migration run aborted", "next", key.String(), "remaining", len(defs)-i, "error", cause)
			return &RunAbortedError{Remaining: len(defs) - i, Cause: cause}
		}

		out, err := e.runOne(ctx, d)
		report.Outcomes = append(report.Outcomes, out)
		if err != nil {
			logger.Error("changeset failed, aborting run", "changeset", key.String(), "order", d.Order, "error", err)
			return &ChangesetExecutionError{Key: key, Cause: err}
		}
	}
	report.Current = -1
	return nil
}

func (e *Engine) runOne(ctx context.Context, d changeset.Definition) (Outcome, error) {
	key := d.Key()
	out := Outcome{Key: key, Order: d.Order, Policy: d.Policy}
	logger := e.logger().WithChangeset(key.Author, key.ID)

	if d.Policy == changeset.RunOnce {
		ran, err := e.Records.HasRun(ctx, key)
		if err != nil {
			out.Status, out.Err = StatusFailed, err
			return out, err
		}
		if ran {
			out.Status = StatusSkipped
			logger.Info("changeset already executed, skipping", "order", d.Order)
			return out, nil
		}
	}

	logger.Info("executing changeset", "order", d.Order, "policy", d.Policy.String())
	start := time.Now()
	err := d.Body(ctx, changeset.NewContext(key, e.Resources))
	out.Duration = time.Since(start)
	if err != nil {
		if cause := context.Cause(ctx); cause != nil && !errors.Is(err, cause) {
			err = errors.Join(err, cause)
		}
		out.Status, out.Err = StatusFailed, err
		return out, err
	}

	if d.Policy == changeset.RunOnce {
		// The body finished; its record must land even if the run was cancelled meanwhile.
		if err := e.Records.RecordSuccess(context.WithoutCancel(ctx), key, d.Order, time.Now().UTC()); err != nil {
			out.Status, out.Err = StatusFailed, err
			return out, fmt.Errorf("record success: %w", err)
		}
	}
	out.Status = StatusExecuted
	logger.Info("changeset executed", "duration", out.Duration)
	return out, nil
}

// Plan lists the registered changesets in execution order and whether each
// would run now. It takes no lock and runs nothing.
func (e *Engine) Plan(ctx context.Context) ([]PlanItem, error) {
	defs, err := e.registry().List()
	if err != nil {
		return nil, err
	}
	items := make([]PlanItem, 0, len(defs))
	for _, d := range defs {
		item := PlanItem{Key: d.Key(), Order: d.Order, Policy: d.Policy, Description: d.Description, WillRun: true}
		if d.Policy == changeset.RunOnce {
			ran, err := e.Records.HasRun(ctx, d.Key())
			if err != nil {
				return nil, err
			}
			item.WillRun = !ran
		}
		items = append(items, item)
	}
	return items, nil
}
