package relunet

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/pwl-solver/reluplex/internal/search"
	"github.com/pwl-solver/reluplex/internal/tableau"
	"github.com/pwl-solver/reluplex/pkg/pwl"
	"github.com/pwl-solver/reluplex/pkg/pwl/fresh"
	"github.com/pwl-solver/reluplex/pkg/pwl/relu"
)

// layer wires one ReLU node per index: pre-activation variables get
// ids [0, width), post-activation variables [width, 2*width), and
// auxiliary slack ids are allocated from 2*width up.
type layer struct {
	width       int
	constraints []*relu.Constraint
}

func (l *layer) b(i int) pwl.VariableID { return pwl.VariableID(i) }
func (l *layer) f(i int) pwl.VariableID { return pwl.VariableID(l.width + i) }

func buildLayer(width int, t *tableau.Tableau) *layer {
	l := &layer{width: width}
	alloc := fresh.New(pwl.VariableID(2 * width))
	for i := 0; i < width; i++ {
		c := relu.New(l.b(i), l.f(i), alloc)
		c.RegisterAsWatcher(t)
		l.constraints = append(l.constraints, c)
	}
	return l
}

func run(out io.Writer, width int, bLower, bUpper float64, trace, verbose bool) error {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(logrus.WarnLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	t := tableau.New(tableau.WithLogger(logger))
	l := buildLayer(width, t)

	// Post-activation variables are non-negative by definition. A
	// zero lower bound is not strict, so it never collapses a phase
	// by itself.
	for i := 0; i < width; i++ {
		t.TightenLower(l.f(i), 0)
	}

	// Seeding the pre-activation bounds may already settle phases:
	// a strictly positive lower bound pins a node active before the
	// search ever sees it.
	for i := 0; i < width; i++ {
		t.TightenLower(l.b(i), bLower)
		t.TightenUpper(l.b(i), bUpper)
	}

	// Sample assignment at the interval midpoint.
	mid := (bLower + bUpper) / 2
	for i := 0; i < width; i++ {
		t.SetValue(l.b(i), mid)
		t.SetValue(l.f(i), math.Max(0, mid))
	}

	options := []search.Option{search.WithLogger(logger)}
	if trace {
		options = append(options, search.WithTracer(search.LoggingTracer{Writer: out}))
	}
	solver, err := search.NewSolver(t, l.constraints, options...)
	if err != nil {
		return err
	}

	solution, err := solver.Solve(context.Background())
	if err != nil {
		fmt.Fprintf(out, "no phase assignment found: %s\n", err)
		return nil
	}

	fmt.Fprintln(out, "phase assignment found:")
	for _, d := range solution.Phases {
		fmt.Fprintf(out, "  %s\n", d)
	}
	if len(solution.Repairs) > 0 {
		fmt.Fprintln(out, "suggested repairs:")
		for _, fix := range solution.Repairs {
			fmt.Fprintf(out, "  %s\n", fix)
		}
	}
	return nil
}
