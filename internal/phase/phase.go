// Package phase runs graph transformations in sequence. A Phase may be applied any
// number of times; wrap it with Once when applying it twice would be a bug.
package phase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/tliron/commonlog"

	jerrors "jitopt/internal/errors"
	"jitopt/internal/ir"
	"jitopt/internal/options"
)

var log = commonlog.GetLogger("jitopt.phase")

// Context is what a phase may read besides the graph
type Context struct {
	context.Context
	Options options.Options

	// Verify runs after every phase that reports a change, when set
	Verify func(g *ir.Graph) error
}

// NewContext creates a phase context with the given options
func NewContext(ctx context.Context, opts options.Options) *Context {
	return &Context{Context: ctx, Options: opts}
}

// Phase represents a single graph transformation
type Phase interface {
	Name() string
	Description() string
	// Apply transforms g in place and reports whether anything changed
	Apply(g *ir.Graph, ctx *Context) (bool, error)
}

// Func adapts a function to the Phase interface
type Func struct {
	PhaseName string
	Desc      string
	Fn        func(g *ir.Graph, ctx *Context) (bool, error)
}

func (f *Func) Name() string        { return f.PhaseName }
func (f *Func) Description() string { return f.Desc }
func (f *Func) Apply(g *ir.Graph, ctx *Context) (bool, error) {
	return f.Fn(g, ctx)
}

// once wraps a phase that must run at most once
type once struct {
	Phase
	applied atomic.Bool
}

// Once wraps p so that a second Apply fails with a verification error instead of
// transforming the graph again.
func Once(p Phase) Phase {
	return &once{Phase: p}
}

func (o *once) Apply(g *ir.Graph, ctx *Context) (bool, error) {
	if o.applied.Swap(true) {
		v := jerrors.Verification(jerrors.ErrorPhaseReapplied, "", "phase %s was already applied", o.Name())
		v.Phase = o.Name()
		return false, v
	}
	return o.Phase.Apply(g, ctx)
}

// Suite manages a sequence of phases
type Suite struct {
	name    string
	phases  []Phase
	changed []string
}

// NewSuite creates an empty suite
func NewSuite(name string, phases ...Phase) *Suite {
	return &Suite{name: name, phases: phases}
}

func (s *Suite) Name() string { return s.name }

func (s *Suite) Description() string {
	return fmt.Sprintf("%d phases", len(s.phases))
}

// AddPhase appends a phase to the suite
func (s *Suite) AddPhase(p Phase) {
	s.phases = append(s.phases, p)
}

// Phases returns the phases of the suite in order
func (s *Suite) Phases() []Phase { return s.phases }

// Changed lists the phases that changed the graph during the last Apply
func (s *Suite) Changed() []string { return s.changed }

// Apply runs the phases in order. Cancellation is checked between phases only, so a
// phase always leaves the graph consistent.
func (s *Suite) Apply(g *ir.Graph, ctx *Context) (bool, error) {
	log.Debugf("running %d phases of %s on %s", len(s.phases), s.name, g.Name)
	s.changed = nil
	for _, p := range s.phases {
		if err := ctx.Err(); err != nil {
			return len(s.changed) > 0, &jerrors.Bailout{Permanent: true, Reason: "cancelled before " + p.Name(), Cause: err}
		}
		c, err := Run(p, g, ctx)
		if err != nil {
			return len(s.changed) > 0 || c, err
		}
		if c {
			s.changed = append(s.changed, p.Name())
		}
	}
	return len(s.changed) > 0, nil
}

// Run applies one phase, logs the outcome and runs the context's verifier when the
// phase changed the graph.
func Run(p Phase, g *ir.Graph, ctx *Context) (bool, error) {
	before := g.NodeCount()
	changed, err := p.Apply(g, ctx)
	if err != nil {
		return changed, fmt.Errorf("%s: %w", p.Name(), err)
	}
	if changed {
		log.Debugf("  - %s: %d -> %d nodes", p.Name(), before, g.NodeCount())
		if ctx.Verify != nil {
			if err := ctx.Verify(g); err != nil {
				var v *jerrors.VerificationError
				if errors.As(err, &v) && v.Phase == "" {
					v.Phase = p.Name()
				}
				return changed, fmt.Errorf("%s: %w", p.Name(), err)
			}
		}
	} else {
		log.Debugf("  - %s: no changes", p.Name())
	}
	return changed, nil
}
