package search

import (
	"fmt"
	"io"
)

// SearchPosition describes the state of the phase search at the
// moment a candidate assignment was refuted.
type SearchPosition interface {
	Decisions() []string
	Conflict() string
}

type Tracer interface {
	Trace(p SearchPosition)
}

type DefaultTracer struct{}

func (DefaultTracer) Trace(_ SearchPosition) {
}

type LoggingTracer struct {
	Writer io.Writer
}

func (t LoggingTracer) Trace(p SearchPosition) {
	fmt.Fprintf(t.Writer, "---\nPhase decisions:\n")
	for _, d := range p.Decisions() {
		fmt.Fprintf(t.Writer, "- %s\n", d)
	}
	fmt.Fprintf(t.Writer, "Conflict:\n- %s\n", p.Conflict())
}
