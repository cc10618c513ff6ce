// Package tableau holds the shared view of the linear system that
// piecewise-linear constraints watch: per-variable values and bounds,
// the equations installed by case splits, and the watcher registry
// used to route notifications. Pivoting itself lives elsewhere; this
// package is the bound/assignment side of the tableau only.
package tableau

import (
	"github.com/sirupsen/logrus"

	"github.com/pwl-solver/reluplex/internal/floats"
	"github.com/pwl-solver/reluplex/pkg/pwl"
)

// Tableau stores variable state and dispatches change notifications
// synchronously to watching constraints. All methods run on the
// single solver thread; re-entrant calls from inside a notification
// (a constraint applying a split while being notified) are supported.
type Tableau struct {
	log logrus.FieldLogger

	values map[pwl.VariableID]float64
	lower  map[pwl.VariableID]float64
	upper  map[pwl.VariableID]float64

	watchers  map[pwl.VariableID][]pwl.Constraint
	equations []pwl.Equation
}

var _ pwl.Tableau = (*Tableau)(nil)

type Option func(t *Tableau)

func WithLogger(log logrus.FieldLogger) Option {
	return func(t *Tableau) {
		t.log = log
	}
}

func New(options ...Option) *Tableau {
	t := &Tableau{
		values:   make(map[pwl.VariableID]float64),
		lower:    make(map[pwl.VariableID]float64),
		upper:    make(map[pwl.VariableID]float64),
		watchers: make(map[pwl.VariableID][]pwl.Constraint),
	}
	for _, option := range options {
		option(t)
	}
	if t.log == nil {
		logger := logrus.New()
		logger.SetLevel(logrus.WarnLevel)
		t.log = logger
	}
	return t
}

// RegisterToWatchVariable subscribes c to changes of variable.
// Registration and unregistration are the only mutators of the
// watcher relation.
func (t *Tableau) RegisterToWatchVariable(c pwl.Constraint, variable pwl.VariableID) {
	for _, w := range t.watchers[variable] {
		if w == c {
			return
		}
	}
	t.watchers[variable] = append(t.watchers[variable], c)
}

// UnregisterToWatchVariable removes c's subscription to variable.
func (t *Tableau) UnregisterToWatchVariable(c pwl.Constraint, variable pwl.VariableID) {
	ws := t.watchers[variable]
	for i, w := range ws {
		if w == c {
			t.watchers[variable] = append(ws[:i:i], ws[i+1:]...)
			return
		}
	}
}

// SetValue records a new assignment for variable and notifies its
// watchers.
func (t *Tableau) SetValue(variable pwl.VariableID, value float64) {
	t.values[variable] = value
	for _, w := range t.snapshotWatchers(variable) {
		w.NotifyVariableValue(variable, value)
	}
}

// TightenLower raises variable's lower bound. Bounds only tighten: a
// bound no stronger than the current one is dropped without
// notification.
func (t *Tableau) TightenLower(variable pwl.VariableID, bound float64) {
	if current, ok := t.lower[variable]; ok && bound <= current {
		return
	}
	t.lower[variable] = bound
	t.log.WithField("var", variable).WithField("lb", bound).Debug("lower bound tightened")
	for _, w := range t.snapshotWatchers(variable) {
		w.NotifyLowerBound(variable, bound)
	}
}

// TightenUpper lowers variable's upper bound, with the same
// tighten-only rule as TightenLower.
func (t *Tableau) TightenUpper(variable pwl.VariableID, bound float64) {
	if current, ok := t.upper[variable]; ok && bound >= current {
		return
	}
	t.upper[variable] = bound
	t.log.WithField("var", variable).WithField("ub", bound).Debug("upper bound tightened")
	for _, w := range t.snapshotWatchers(variable) {
		w.NotifyUpperBound(variable, bound)
	}
}

// ApplySplit installs every tightening and equation of the split,
// then dispatches the bound notifications. Installing before
// notifying keeps the split transactional even when a notified
// constraint re-enters ApplySplit before this call returns.
func (t *Tableau) ApplySplit(split pwl.CaseSplit) {
	t.log.WithField("split", split.String()).Debug("applying case split")

	t.equations = append(t.equations, split.Equations()...)

	applied := make([]pwl.Tightening, 0, len(split.BoundTightenings()))
	for _, tightening := range split.BoundTightenings() {
		switch tightening.Kind {
		case pwl.LowerBound:
			if current, ok := t.lower[tightening.Variable]; ok && tightening.Value <= current {
				continue
			}
			t.lower[tightening.Variable] = tightening.Value
		case pwl.UpperBound:
			if current, ok := t.upper[tightening.Variable]; ok && tightening.Value >= current {
				continue
			}
			t.upper[tightening.Variable] = tightening.Value
		}
		applied = append(applied, tightening)
	}

	for _, tightening := range applied {
		for _, w := range t.snapshotWatchers(tightening.Variable) {
			if tightening.Kind == pwl.LowerBound {
				w.NotifyLowerBound(tightening.Variable, tightening.Value)
			} else {
				w.NotifyUpperBound(tightening.Variable, tightening.Value)
			}
		}
	}
}

// snapshotWatchers copies the watcher list so that dispatch survives
// re-entrant register/unregister calls.
func (t *Tableau) snapshotWatchers(variable pwl.VariableID) []pwl.Constraint {
	ws := t.watchers[variable]
	if len(ws) == 0 {
		return nil
	}
	snapshot := make([]pwl.Constraint, len(ws))
	copy(snapshot, ws)
	return snapshot
}

func (t *Tableau) Value(variable pwl.VariableID) (float64, bool) {
	v, ok := t.values[variable]
	return v, ok
}

func (t *Tableau) LowerBound(variable pwl.VariableID) (float64, bool) {
	v, ok := t.lower[variable]
	return v, ok
}

func (t *Tableau) UpperBound(variable pwl.VariableID) (float64, bool) {
	v, ok := t.upper[variable]
	return v, ok
}

// Equations returns the equalities installed by applied splits, in
// application order.
func (t *Tableau) Equations() []pwl.Equation {
	return t.equations
}

// Feasible reports whether the current bounds admit any assignment:
// every bound pair must satisfy lb <= ub, and every installed
// equation's left-hand side interval must contain its scalar.
func (t *Tableau) Feasible() bool {
	for variable, lb := range t.lower {
		if ub, ok := t.upper[variable]; ok && !floats.Lte(lb, ub) {
			t.log.WithField("var", variable).WithField("lb", lb).WithField("ub", ub).
				Debug("empty bound interval")
			return false
		}
	}
	for i := range t.equations {
		if !t.equationFeasible(&t.equations[i]) {
			t.log.WithField("equation", t.equations[i].String()).Debug("equation outside bound interval")
			return false
		}
	}
	return true
}

// equationFeasible interval-evaluates the equation's addends against
// the current bounds. A variable missing a needed bound makes the
// interval unbounded on that side, which can never refute the
// equation.
func (t *Tableau) equationFeasible(eq *pwl.Equation) bool {
	lo, hi := 0.0, 0.0
	loUnbounded, hiUnbounded := false, false
	for _, addend := range eq.Addends() {
		lb, hasLB := t.lower[addend.Variable]
		ub, hasUB := t.upper[addend.Variable]
		if addend.Coefficient < 0 {
			lb, ub = ub, lb
			hasLB, hasUB = hasUB, hasLB
		}
		if hasLB {
			lo += addend.Coefficient * lb
		} else {
			loUnbounded = true
		}
		if hasUB {
			hi += addend.Coefficient * ub
		} else {
			hiUnbounded = true
		}
	}
	if !loUnbounded && !floats.Lte(lo, eq.Scalar()) {
		return false
	}
	if !hiUnbounded && !floats.Gte(hi, eq.Scalar()) {
		return false
	}
	return true
}

// Snapshot returns an independent copy of the numeric state (values,
// bounds, equations) with an empty watcher registry. Search drivers
// use snapshots as scratch space for probing candidate phase
// assignments without disturbing the live tableau.
func (t *Tableau) Snapshot() *Tableau {
	s := New(WithLogger(t.log))
	for k, v := range t.values {
		s.values[k] = v
	}
	for k, v := range t.lower {
		s.lower[k] = v
	}
	for k, v := range t.upper {
		s.upper[k] = v
	}
	s.equations = append(s.equations, t.equations...)
	return s
}
