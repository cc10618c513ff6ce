// Package fresh allocates variable ids for auxiliary (slack) columns.
// The allocator is an explicit object handed to constraints at
// construction time rather than a process-wide global, so independent
// problem instances (and tests) get disjoint, dense id ranges by
// holding their own allocator.
package fresh

import (
	"sync/atomic"

	"github.com/pwl-solver/reluplex/pkg/pwl"
)

// Allocator hands out monotonically increasing variable ids. Ids are
// never reused within one allocator lifetime; Reset starts a new
// lifetime for the next problem instance.
type Allocator struct {
	next uint64
}

// New returns an allocator whose first id is start. start is normally
// one past the highest id the problem itself uses.
func New(start pwl.VariableID) *Allocator {
	return &Allocator{next: uint64(start)}
}

// Next returns a fresh variable id.
func (a *Allocator) Next() pwl.VariableID {
	return pwl.VariableID(atomic.AddUint64(&a.next, 1) - 1)
}

// Reset rewinds the allocator to start for a new problem instance.
// The caller is responsible for making sure no constraint from the
// previous instance is still live.
func (a *Allocator) Reset(start pwl.VariableID) {
	atomic.StoreUint64(&a.next, uint64(start))
}
