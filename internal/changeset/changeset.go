package changeset

import (
	"context"
	"fmt"
	"strings"
)

// RerunPolicy controls whether a recorded changeset is executed again.
type RerunPolicy int

const (
	// RunOnce changesets are skipped once a success record exists.
	RunOnce RerunPolicy = iota
	// Always changesets run on every invocation; their bodies must be idempotent.
	Always
)

func (p RerunPolicy) String() string {
	switch p {
	case RunOnce:
		return "run_once"
	case Always:
		return "always"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParseRerunPolicy accepts "run_once"/"once" and "always" (case-insensitive).
func ParseRerunPolicy(s string) (RerunPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "run_once", "once", "runonce":
		return RunOnce, nil
	case "always":
		return Always, nil
	default:
		return RunOnce, fmt.Errorf("unknown rerun policy %q", s)
	}
}

// Key is the durable identity of a changeset.
type Key struct {
	Author string
	ID     string
}

func (k Key) String() string { return k.Author + "/" + k.ID }

// Body performs one changeset's mutation. A nil return is success.
type Body func(ctx context.Context, c *Context) error

// Definition describes one migration unit.
type Definition struct {
	Order       string
	ID          string
	Author      string
	Policy      RerunPolicy
	Description string
	Body        Body
}

// Key returns the (author, id) identity.
func (d Definition) Key() Key { return Key{Author: d.Author, ID: d.ID} }

func (d Definition) validate() error {
	var missing []string
	if strings.TrimSpace(d.Order) == "" {
		missing = append(missing, "order")
	}
	if strings.TrimSpace(d.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(d.Author) == "" {
		missing = append(missing, "author")
	}
	if d.Body == nil {
		missing = append(missing, "body")
	}
	if d.Policy != RunOnce && d.Policy != Always {
		return &InvalidChangesetError{Key: d.Key(), Reason: "unknown rerun policy " + d.Policy.String()}
	}
	if len(missing) > 0 {
		return &InvalidChangesetError{Key: d.Key(), Reason: "missing " + strings.Join(missing, ", ")}
	}
	return nil
}

// DuplicateChangesetError reports a repeated (author, id) registration.
type DuplicateChangesetError struct {
	Key Key
	// Orders holds the order keys of the first and the repeated registration.
	Orders [2]string
}

func (e *DuplicateChangesetError) Error() string {
	return fmt.Sprintf("duplicate changeset %s (orders %q and %q)", e.Key, e.Orders[0], e.Orders[1])
}

// InvalidChangesetError reports a definition that cannot be registered.
type InvalidChangesetError struct {
	Key    Key
	Reason string
}

func (e *InvalidChangesetError) Error() string {
	return fmt.Sprintf("invalid changeset %s: %s", e.Key, e.Reason)
}
