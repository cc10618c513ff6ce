// Package relu implements the piecewise-linear constraint f = max(0, b)
// as two alternative linear relaxations over a shared tableau.
package relu

import (
	"fmt"

	"github.com/pwl-solver/reluplex/internal/floats"
	"github.com/pwl-solver/reluplex/pkg/pwl"
	"github.com/pwl-solver/reluplex/pkg/pwl/fresh"
)

type phase int

const (
	activePhase phase = iota
	inactivePhase
)

func (p phase) String() string {
	if p == activePhase {
		return "active"
	}
	return "inactive"
}

// Constraint watches the pre-activation variable b and the
// post-activation variable f and keeps track of which of the two
// relaxations is still possible:
//
//	active:   b >= 0, b - f + aux = 0
//	inactive: b <= 0, f + aux = 0
//
// with aux a fresh slack column pinned to [0, 0] in both. The valid
// set starts at both phases and only ever shrinks; once a bound
// observation rules a phase out, the surviving phase is pushed into
// the tableau eagerly so the search driver never has to branch on it.
type Constraint struct {
	b   pwl.VariableID
	f   pwl.VariableID
	aux pwl.VariableID

	splits [2]pwl.CaseSplit
	valid  []phase

	assignment  map[pwl.VariableID]float64
	lowerBounds map[pwl.VariableID]float64
	upperBounds map[pwl.VariableID]float64

	tableau pwl.Tableau
}

var _ pwl.Constraint = (*Constraint)(nil)

// New builds a ReLU constraint over the pair (b, f), drawing one
// auxiliary slack id from alloc. Construction has no effect on any
// tableau: the phases are derived but not applied.
func New(b, f pwl.VariableID, alloc *fresh.Allocator) *Constraint {
	c := &Constraint{
		b:           b,
		f:           f,
		aux:         alloc.Next(),
		valid:       []phase{activePhase, inactivePhase},
		assignment:  make(map[pwl.VariableID]float64, 2),
		lowerBounds: make(map[pwl.VariableID]float64, 2),
		upperBounds: make(map[pwl.VariableID]float64, 2),
	}

	auxLower := pwl.Tightening{Variable: c.aux, Value: 0, Kind: pwl.LowerBound}
	auxUpper := pwl.Tightening{Variable: c.aux, Value: 0, Kind: pwl.UpperBound}

	// Active phase: b >= 0, b - f + aux = 0.
	var active pwl.CaseSplit
	active.StoreBoundTightening(pwl.Tightening{Variable: b, Value: 0, Kind: pwl.LowerBound})
	var activeEq pwl.Equation
	activeEq.AddAddend(1, b)
	activeEq.AddAddend(-1, f)
	activeEq.AddAddend(1, c.aux)
	activeEq.MarkAuxiliaryVariable(c.aux)
	activeEq.SetScalar(0)
	active.AddEquation(activeEq)
	active.StoreBoundTightening(auxUpper)
	active.StoreBoundTightening(auxLower)
	c.splits[activePhase] = active

	// Inactive phase: b <= 0, f + aux = 0.
	var inactive pwl.CaseSplit
	inactive.StoreBoundTightening(pwl.Tightening{Variable: b, Value: 0, Kind: pwl.UpperBound})
	var inactiveEq pwl.Equation
	inactiveEq.AddAddend(1, f)
	inactiveEq.AddAddend(1, c.aux)
	inactiveEq.MarkAuxiliaryVariable(c.aux)
	inactiveEq.SetScalar(0)
	inactive.AddEquation(inactiveEq)
	inactive.StoreBoundTightening(auxUpper)
	inactive.StoreBoundTightening(auxLower)
	c.splits[inactivePhase] = inactive

	return c
}

// RegisterAsWatcher subscribes the constraint to notifications for b
// and f on t. Registering while already registered is watcher misuse.
func (c *Constraint) RegisterAsWatcher(t pwl.Tableau) {
	if c.tableau != nil {
		panic(pwl.WatcherMisuseError{Reason: "register while already registered"})
	}
	c.tableau = t
	t.RegisterToWatchVariable(c, c.b)
	t.RegisterToWatchVariable(c, c.f)
}

// UnregisterAsWatcher removes the subscription. t must be the tableau
// the constraint is currently registered with.
func (c *Constraint) UnregisterAsWatcher(t pwl.Tableau) {
	if c.tableau == nil {
		panic(pwl.WatcherMisuseError{Reason: "unregister while not registered"})
	}
	if c.tableau != t {
		panic(pwl.WatcherMisuseError{Reason: "unregister from a tableau other than the registered one"})
	}
	t.UnregisterToWatchVariable(c, c.b)
	t.UnregisterToWatchVariable(c, c.f)
	c.tableau = nil
}

func (c *Constraint) NotifyVariableValue(variable pwl.VariableID, value float64) {
	if !c.ParticipatingVariable(variable) {
		return
	}
	c.assignment[variable] = value
}

// NotifyLowerBound caches the bound and, when it proves the inactive
// phase impossible, collapses the valid set to the active phase and
// applies it to the tableau.
func (c *Constraint) NotifyLowerBound(variable pwl.VariableID, bound float64) {
	if !c.ParticipatingVariable(variable) {
		return
	}
	c.lowerBounds[variable] = bound
	if floats.IsPositive(bound) {
		// A strictly positive lower bound on either b or f rules
		// out f = 0, so only the active phase survives.
		c.collapseTo(activePhase)
	}
}

// NotifyUpperBound caches the bound and, when it proves the active
// phase impossible, collapses the valid set to the inactive phase and
// applies it to the tableau.
func (c *Constraint) NotifyUpperBound(variable pwl.VariableID, bound float64) {
	if !c.ParticipatingVariable(variable) {
		return
	}
	c.upperBounds[variable] = bound
	// A strictly negative upper bound on f contradicts the standing
	// f >= 0 invariant, so this trigger should be unreachable; it is
	// kept defensively and collapses to the inactive phase.
	if variable == c.f && floats.IsNegative(bound) {
		c.collapseTo(inactivePhase)
	}
}

// collapseTo shrinks the valid-phase set to p and pushes p's split
// into the tableau. Applying a split can synchronously re-enter the
// notification handlers, so the set is made a singleton before the
// apply, and a set that is already the singleton {p} is left alone to
// keep re-entrant chains from applying the split twice.
func (c *Constraint) collapseTo(p phase) {
	if len(c.valid) == 1 && c.valid[0] == p {
		return
	}
	c.valid = []phase{p}
	if c.tableau == nil {
		panic(pwl.WatcherMisuseError{Reason: "bound notification while not registered"})
	}
	c.tableau.ApplySplit(c.splits[p])
}

func (c *Constraint) ParticipatingVariable(variable pwl.VariableID) bool {
	return variable == c.b || variable == c.f
}

func (c *Constraint) ParticipatingVariables() []pwl.VariableID {
	return []pwl.VariableID{c.b, c.f}
}

// Satisfied reports whether the cached assignment lies on the ReLU
// graph: b = f (within tolerance) when f is positive, b <= 0 when f
// is zero. A negative f breaks the standing invariant and panics.
func (c *Constraint) Satisfied() (bool, error) {
	bValue, fValue, err := c.cachedValues()
	if err != nil {
		return false, err
	}

	if floats.IsPositive(fValue) {
		return floats.AreEqual(bValue, fValue), nil
	}
	return !floats.IsPositive(bValue), nil
}

// PossibleFixes classifies the current violation and returns the two
// candidate single-variable repairs, cheapest reanchoring first.
// Either fix, applied alone, satisfies the constraint.
func (c *Constraint) PossibleFixes() ([]pwl.Fix, error) {
	bValue, fValue, err := c.cachedValues()
	if err != nil {
		return nil, err
	}

	// Possible violations:
	//   1. f positive, b positive, b and f disequal
	//   2. f positive, b non-positive
	//   3. f zero, b positive
	if floats.IsPositive(fValue) {
		if floats.IsPositive(bValue) {
			return []pwl.Fix{{Variable: c.b, Value: fValue}, {Variable: c.f, Value: bValue}}, nil
		}
		return []pwl.Fix{{Variable: c.b, Value: fValue}, {Variable: c.f, Value: 0}}, nil
	}
	return []pwl.Fix{{Variable: c.b, Value: 0}, {Variable: c.f, Value: bValue}}, nil
}

func (c *Constraint) cachedValues() (bValue, fValue float64, err error) {
	bValue, ok := c.assignment[c.b]
	if !ok {
		return 0, 0, pwl.MissingAssignmentError{Variable: c.b}
	}
	fValue, ok = c.assignment[c.f]
	if !ok {
		return 0, 0, pwl.MissingAssignmentError{Variable: c.f}
	}
	if floats.IsNegative(fValue) {
		panic(pwl.InvariantViolationError{Variable: c.f, Value: fValue, Detail: "post-activation value must be non-negative"})
	}
	return bValue, fValue, nil
}

// CaseSplits returns the relaxations still consistent with the bounds
// observed so far, active phase first while both remain.
func (c *Constraint) CaseSplits() []pwl.CaseSplit {
	splits := make([]pwl.CaseSplit, len(c.valid))
	for i, p := range c.valid {
		splits[i] = c.splits[p]
	}
	return splits
}

// PhaseFixed reports whether bound observations have already settled
// the constraint on a single phase, and whether that phase is the
// active one. Search drivers use this to seed their phase skeleton.
func (c *Constraint) PhaseFixed() (fixed, active bool) {
	if len(c.valid) != 1 {
		return false, false
	}
	return true, c.valid[0] == activePhase
}

// ActiveSplit and InactiveSplit expose the fixed phase relaxations for
// drivers that branch explicitly.
func (c *Constraint) ActiveSplit() pwl.CaseSplit   { return c.splits[activePhase] }
func (c *Constraint) InactiveSplit() pwl.CaseSplit { return c.splits[inactivePhase] }

func (c *Constraint) String() string {
	return fmt.Sprintf("relu(%s -> %s)", c.b, c.f)
}
