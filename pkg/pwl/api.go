package pwl

import (
	"fmt"
	"sort"
	"strings"
)

// VariableID values identify particular variables within the shared
// tableau's variable space. They are opaque handles: this package
// attaches no meaning to them beyond equality and map-key use.
type VariableID uint

func (v VariableID) String() string {
	return fmt.Sprintf("x%d", uint(v))
}

// BoundKind distinguishes the two directions a Tightening can push.
type BoundKind int

const (
	LowerBound BoundKind = iota
	UpperBound
)

func (k BoundKind) String() string {
	if k == LowerBound {
		return ">="
	}
	return "<="
}

// Tightening is a single bound update on one variable.
type Tightening struct {
	Variable VariableID
	Value    float64
	Kind     BoundKind
}

func (t Tightening) String() string {
	return fmt.Sprintf("%s %s %g", t.Variable, t.Kind, t.Value)
}

// Addend is one coefficient-variable term of an Equation.
type Addend struct {
	Coefficient float64
	Variable    VariableID
}

// Equation is a linear equality over a set of addends, with at most
// one addend's variable designated as the equation's auxiliary
// (eliminable) column. The zero value is an empty equation ready for
// building.
type Equation struct {
	addends   []Addend
	auxiliary VariableID
	hasAux    bool
	scalar    float64
}

// AddAddend appends the term coefficient*variable to the equation.
func (e *Equation) AddAddend(coefficient float64, variable VariableID) {
	e.addends = append(e.addends, Addend{Coefficient: coefficient, Variable: variable})
}

// MarkAuxiliaryVariable designates variable as the equation's
// eliminable column. At most one variable may be marked.
func (e *Equation) MarkAuxiliaryVariable(variable VariableID) {
	e.auxiliary = variable
	e.hasAux = true
}

// SetScalar sets the right-hand side of the equality.
func (e *Equation) SetScalar(value float64) {
	e.scalar = value
}

// Addends returns the equation's terms in insertion order.
func (e Equation) Addends() []Addend {
	return e.addends
}

// AuxiliaryVariable returns the designated eliminable column, if one
// has been marked.
func (e Equation) AuxiliaryVariable() (VariableID, bool) {
	return e.auxiliary, e.hasAux
}

// Scalar returns the right-hand side of the equality.
func (e Equation) Scalar() float64 {
	return e.scalar
}

func (e Equation) String() string {
	s := make([]string, len(e.addends))
	for i, a := range e.addends {
		s[i] = fmt.Sprintf("%+g*%s", a.Coefficient, a.Variable)
	}
	return fmt.Sprintf("%s = %g", strings.Join(s, " "), e.scalar)
}

// CaseSplit aggregates the tightenings and equations representing one
// branch of the search: applying a split commits the shared linear
// system to that branch.
type CaseSplit struct {
	tightenings []Tightening
	equations   []Equation
}

// StoreBoundTightening records a bound update as part of the split.
func (cs *CaseSplit) StoreBoundTightening(t Tightening) {
	cs.tightenings = append(cs.tightenings, t)
}

// AddEquation records a linear equality as part of the split.
func (cs *CaseSplit) AddEquation(e Equation) {
	cs.equations = append(cs.equations, e)
}

// BoundTightenings returns the split's bound updates in insertion order.
func (cs CaseSplit) BoundTightenings() []Tightening {
	return cs.tightenings
}

// Equations returns the split's equalities in insertion order.
func (cs CaseSplit) Equations() []Equation {
	return cs.equations
}

func (cs CaseSplit) String() string {
	s := make([]string, 0, len(cs.tightenings)+len(cs.equations))
	for _, t := range cs.tightenings {
		s = append(s, t.String())
	}
	for i := range cs.equations {
		s = append(s, cs.equations[i].String())
	}
	return strings.Join(s, "; ")
}

// Fix is a suggested single-variable repair: set Variable to Value.
// It is a hint for the search driver, never an applied mutation.
type Fix struct {
	Variable VariableID
	Value    float64
}

func (f Fix) String() string {
	return fmt.Sprintf("%s := %g", f.Variable, f.Value)
}

// Tableau is the shared simplex-style state a Constraint observes and,
// through ApplySplit, mutates. ApplySplit installs all of a split's
// tightenings and equations together and must be safe to call from
// within a notification callback.
type Tableau interface {
	RegisterToWatchVariable(c Constraint, variable VariableID)
	UnregisterToWatchVariable(c Constraint, variable VariableID)
	ApplySplit(split CaseSplit)
}

// Constraint is one piecewise-linear relation over tableau variables.
// Implementations watch their participating variables, judge whether
// the current assignment satisfies the relation, propose local
// repairs, and expose the linear relaxations a search driver can
// branch on.
type Constraint interface {
	// RegisterAsWatcher subscribes the constraint to value and bound
	// notifications for its participating variables. At most one
	// registration may be live at a time.
	RegisterAsWatcher(t Tableau)
	// UnregisterAsWatcher removes the subscription. The argument must
	// be the tableau passed to the matching RegisterAsWatcher call.
	UnregisterAsWatcher(t Tableau)

	NotifyVariableValue(variable VariableID, value float64)
	NotifyLowerBound(variable VariableID, bound float64)
	NotifyUpperBound(variable VariableID, bound float64)

	ParticipatingVariable(variable VariableID) bool
	ParticipatingVariables() []VariableID

	// Satisfied reports whether the cached assignment satisfies the
	// relation. It returns a MissingAssignmentError if a
	// participating variable has no cached value yet.
	Satisfied() (bool, error)
	// PossibleFixes returns single-variable repairs for the current
	// violation. Undefined when the constraint is satisfied.
	PossibleFixes() ([]Fix, error)
	// CaseSplits returns the relaxations still consistent with the
	// bounds observed so far. Pure read; never empty.
	CaseSplits() []CaseSplit
}

// MissingAssignmentError indicates that Satisfied or PossibleFixes was
// queried before every participating variable had a value notified,
// i.e. the driver broke the notify-before-query sequencing.
type MissingAssignmentError struct {
	Variable VariableID
}

func (e MissingAssignmentError) Error() string {
	return fmt.Sprintf("no assignment cached for participating variable %s", e.Variable)
}

// InvariantViolationError reports that a standing invariant of the
// surrounding system was found false. It is used as a panic value:
// continuing past a broken invariant would silently produce a wrong
// verdict.
type InvariantViolationError struct {
	Variable VariableID
	Value    float64
	Detail   string
}

func (e InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation: %s (%s = %g)", e.Detail, e.Variable, e.Value)
}

// WatcherMisuseError reports a broken register/unregister contract. It
// is used as a panic value: watcher misuse is a programming error, not
// a recoverable runtime condition.
type WatcherMisuseError struct {
	Reason string
}

func (e WatcherMisuseError) Error() string {
	return fmt.Sprintf("watcher misuse: %s", e.Reason)
}

// SortVariables orders a participating-variable list for stable
// display and comparison. Membership is order-insensitive; this is a
// presentation helper only.
func SortVariables(vars []VariableID) []VariableID {
	sorted := make([]VariableID, len(vars))
	copy(sorted, vars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted
}
