// Package search drives the case-split search over piecewise-linear
// constraints. The boolean skeleton of the search (which phase each
// constraint is in) is kept in a SAT solver: constraints whose phase
// was already settled by eager bound propagation become unit clauses,
// and every phase combination the tableau refutes is learned as a
// blocking clause before the search moves on.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-air/gini"
	"github.com/go-air/gini/inter"
	"github.com/go-air/gini/z"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/pwl-solver/reluplex/internal/tableau"
	"github.com/pwl-solver/reluplex/pkg/pwl"
	"github.com/pwl-solver/reluplex/pkg/pwl/relu"
)

var (
	ErrIncomplete = errors.New("cancelled before a verdict could be reached")

	// ErrNotSatisfiable reports that no phase assignment is
	// consistent with the tableau's bounds.
	ErrNotSatisfiable = errors.New("piecewise-linear constraints not satisfiable")
)

const (
	satisfiable   = 1
	unsatisfiable = -1
)

// PhaseDecision records the phase chosen for one constraint in a
// satisfying assignment.
type PhaseDecision struct {
	Constraint *relu.Constraint
	Active     bool
}

func (d PhaseDecision) String() string {
	phase := "inactive"
	if d.Active {
		phase = "active"
	}
	return fmt.Sprintf("%s: %s", d.Constraint, phase)
}

// Solution is a phase assignment the tableau could not refute, plus
// any local repairs that were needed to reconcile the cached variable
// assignment with it.
type Solution struct {
	Phases  []PhaseDecision
	Repairs []pwl.Fix
}

type Solver struct {
	base         *tableau.Tableau
	constraints  []*relu.Constraint
	tracer       Tracer
	log          logrus.FieldLogger
	maxConflicts int
}

type Option func(s *Solver) error

func WithTracer(t Tracer) Option {
	return func(s *Solver) error {
		s.tracer = t
		return nil
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Solver) error {
		s.log = log
		return nil
	}
}

// WithMaxConflicts caps the number of refuted phase assignments
// before the search gives up with ErrIncomplete.
func WithMaxConflicts(n int) Option {
	return func(s *Solver) error {
		if n <= 0 {
			return fmt.Errorf("max conflicts must be positive, got %d", n)
		}
		s.maxConflicts = n
		return nil
	}
}

var defaults = []Option{
	func(s *Solver) error {
		if s.tracer == nil {
			s.tracer = DefaultTracer{}
		}
		return nil
	},
	func(s *Solver) error {
		if s.log == nil {
			logger := logrus.New()
			logger.SetLevel(logrus.WarnLevel)
			s.log = logger
		}
		return nil
	},
	func(s *Solver) error {
		if s.maxConflicts == 0 {
			s.maxConflicts = 1 << 20
		}
		return nil
	},
}

func NewSolver(base *tableau.Tableau, constraints []*relu.Constraint, options ...Option) (*Solver, error) {
	s := &Solver{base: base, constraints: constraints}
	for _, option := range append(options, defaults...) {
		if err := option(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Solve looks for a phase assignment consistent with the tableau. If
// the provided context is cancelled mid-search, ErrIncomplete is
// returned wrapped around the context's error.
func (s *Solver) Solve(ctx context.Context) (*Solution, error) {
	g := gini.New()

	// one literal per constraint, true = active phase
	lits := make([]z.Lit, len(s.constraints))
	for i := range s.constraints {
		lits[i] = g.Lit()
	}

	// phases settled by eager propagation become unit clauses
	for i, c := range s.constraints {
		fixed, active := c.PhaseFixed()
		if !fixed {
			continue
		}
		m := lits[i]
		if !active {
			m = m.Not()
		}
		g.Add(m)
		g.Add(z.LitNull)
	}

	conflicts := 0
	for {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ErrIncomplete, ctx.Err().Error())
		default:
		}

		switch g.Solve() {
		case unsatisfiable:
			return nil, ErrNotSatisfiable
		case satisfiable:
		default:
			return nil, ErrIncomplete
		}

		model := make([]bool, len(s.constraints))
		for i := range s.constraints {
			model[i] = g.Value(lits[i])
		}

		solution, reason := s.check(model)
		if solution != nil {
			s.log.WithField("conflicts", conflicts).Debug("phase assignment found")
			return solution, nil
		}

		s.tracer.Trace(position{constraints: s.constraints, model: model, conflict: reason})
		blockModel(g, lits, model)
		conflicts++
		if conflicts >= s.maxConflicts {
			return nil, errors.Wrapf(ErrIncomplete, "conflict budget of %d exhausted", s.maxConflicts)
		}
	}
}

// check probes one candidate phase assignment on a scratch copy of
// the tableau. It returns a Solution when the assignment survives,
// otherwise a human-readable refutation reason.
func (s *Solver) check(model []bool) (*Solution, string) {
	scratch := s.base.Snapshot()
	decisions := make([]PhaseDecision, len(s.constraints))
	for i, c := range s.constraints {
		split := c.InactiveSplit()
		if model[i] {
			split = c.ActiveSplit()
		}
		scratch.ApplySplit(split)
		decisions[i] = PhaseDecision{Constraint: c, Active: model[i]}
	}

	if !scratch.Feasible() {
		return nil, "bounds infeasible under this phase assignment"
	}

	// Reconcile the cached variable assignment, trying local repairs
	// before giving up on the phase combination.
	var repairs []pwl.Fix
	for _, c := range s.constraints {
		sat, err := c.Satisfied()
		if err != nil {
			// no assignment yet for this constraint's variables;
			// bound feasibility is all we can judge
			continue
		}
		if sat {
			continue
		}
		fix, ok := s.repair(scratch, c)
		if !ok {
			return nil, fmt.Sprintf("%s violated and no fix fits the bounds", c)
		}
		repairs = append(repairs, fix)
	}

	return &Solution{Phases: decisions, Repairs: repairs}, ""
}

// repair picks the first suggested fix whose value fits inside the
// scratch bounds of its variable. Fixes are hints: realizing one here
// means recording it in the solution, not mutating the live tableau.
func (s *Solver) repair(scratch *tableau.Tableau, c *relu.Constraint) (pwl.Fix, bool) {
	fixes, err := c.PossibleFixes()
	if err != nil {
		return pwl.Fix{}, false
	}
	for _, fix := range fixes {
		if lb, ok := scratch.LowerBound(fix.Variable); ok && fix.Value < lb {
			continue
		}
		if ub, ok := scratch.UpperBound(fix.Variable); ok && fix.Value > ub {
			continue
		}
		return fix, true
	}
	return pwl.Fix{}, false
}

// blockModel forbids the exact phase assignment in model.
func blockModel(g inter.S, lits []z.Lit, model []bool) {
	for i, m := range lits {
		if model[i] {
			g.Add(m.Not())
		} else {
			g.Add(m)
		}
	}
	g.Add(z.LitNull)
}

type position struct {
	constraints []*relu.Constraint
	model       []bool
	conflict    string
}

func (p position) Decisions() []string {
	s := make([]string, len(p.constraints))
	for i, c := range p.constraints {
		phase := "inactive"
		if p.model[i] {
			phase = "active"
		}
		s[i] = fmt.Sprintf("%s: %s", c, phase)
	}
	return s
}

func (p position) Conflict() string {
	return strings.TrimSpace(p.conflict)
}
