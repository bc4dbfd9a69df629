package changeset

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Registry collects changeset definitions and hands them out in execution order.
//
// Ordering rule: when every registered Order parses as a base-10 int64
// (leading zeros allowed, no surrounding whitespace) orders compare
// numerically; otherwise they compare byte-wise. Equal orders keep
// registration sequence.
type Registry struct {
	mu      sync.Mutex
	entries []entry
	index   map[Key]int
}

type entry struct {
	def Definition
	seq int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: map[Key]int{}}
}

// Register adds definitions in argument order. It stops at the first
// invalid or duplicate definition; earlier ones in the same call stay registered.
func (r *Registry) Register(defs ...Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index == nil {
		r.index = map[Key]int{}
	}
	for _, d := range defs {
		if err := d.validate(); err != nil {
			return err
		}
		k := d.Key()
		if i, ok := r.index[k]; ok {
			return &DuplicateChangesetError{Key: k, Orders: [2]string{r.entries[i].def.Order, d.Order}}
		}
		r.index[k] = len(r.entries)
		r.entries = append(r.entries, entry{def: d, seq: len(r.entries)})
	}
	return nil
}

// MustRegister is Register for package init blocks; it panics on error.
func (r *Registry) MustRegister(defs ...Definition) {
	if err := r.Register(defs...); err != nil {
		panic(err)
	}
}

// Len returns the number of registered changesets.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// List returns the definitions sorted into execution order. The result is a
// copy; callers may modify it freely.
func (r *Registry) List() ([]Definition, error) {
	r.mu.Lock()
	entries := append([]entry(nil), r.entries...)
	r.mu.Unlock()

	seen := make(map[Key]string, len(entries))
	defs := make([]Definition, len(entries))
	for i, e := range entries {
		if err := e.def.validate(); err != nil {
			return nil, err
		}
		k := e.def.Key()
		if first, ok := seen[k]; ok {
			return nil, &DuplicateChangesetError{Key: k, Orders: [2]string{first, e.def.Order}}
		}
		seen[k] = e.def.Order
		defs[i] = e.def
	}

	numeric := NumericOrders(defs)
	sort.SliceStable(entries, func(i, j int) bool {
		if c := Compare(entries[i].def, entries[j].def, numeric); c != 0 {
			return c < 0
		}
		return entries[i].seq < entries[j].seq
	})
	for i, e := range entries {
		defs[i] = e.def
	}
	return defs, nil
}

// NumericOrders reports whether every order in defs is a base-10 integer.
func NumericOrders(defs []Definition) bool {
	for _, d := range defs {
		if _, ok := parseOrder(d.Order); !ok {
			return false
		}
	}
	return true
}

// Compare orders a and b by their Order field: numerically when numeric is
// true, byte-wise otherwise. It returns -1, 0 or +1.
func Compare(a, b Definition, numeric bool) int {
	if numeric {
		x, _ := parseOrder(a.Order)
		y, _ := parseOrder(b.Order)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a.Order, b.Order)
}

func parseOrder(s string) (int64, bool) {
	if s == "" || strings.TrimSpace(s) != s {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Default is the process-wide registry filled by package init functions.
var Default = NewRegistry()

// Register adds definitions to the Default registry.
func Register(defs ...Definition) error { return Default.Register(defs...) }

// MustRegister adds definitions to the Default registry and panics on error.
func MustRegister(defs ...Definition) { Default.MustRegister(defs...) }
