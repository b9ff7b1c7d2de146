// Package compile drives the optimizer over whole graphs. Each compilation gets an id,
// runs the phase pipeline on its own copy of the graph, is retried after a retryable
// bailout, and is watched by a watchdog that reports compilations taking too long.
package compile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"jitopt/internal/canon"
	"jitopt/internal/condelim"
	jerrors "jitopt/internal/errors"
	"jitopt/internal/ir"
	"jitopt/internal/loop"
	"jitopt/internal/lowering"
	"jitopt/internal/options"
	"jitopt/internal/phase"
	"jitopt/internal/verify"
)

var log = commonlog.GetLogger("jitopt.compile")

// Result is the outcome of one compilation
type Result struct {
	ID       uuid.UUID
	Name     string
	Graph    *ir.Graph // optimized copy, nil when the compilation failed
	Attempts int
	Before   int // live nodes of the input graph
	After    int
	Changed  []string // phases that changed the graph in the successful attempt
	Duration time.Duration
	Err      error
}

// OK reports whether the compilation produced a graph
func (r *Result) OK() bool { return r.Err == nil }

// Compiler compiles graphs with fixed options
type Compiler struct {
	Options options.Options

	// Pipeline builds the phases of one attempt. Phases wrapped in phase.Once keep
	// state, so every attempt asks for a fresh suite.
	Pipeline func(o options.Options) *phase.Suite
}

// New returns a compiler using the default pipeline
func New(opts options.Options) *Compiler {
	return &Compiler{Options: opts, Pipeline: Pipeline}
}

// Pipeline returns the optimization suite: canonicalization and conditional
// elimination before and after check lowering, then the loop phases. Phases that run
// after safepoint elimination must keep its decisions.
func Pipeline(o options.Options) *phase.Suite {
	keep := func(p phase.Phase) phase.Phase {
		if o.VerifySafepoints {
			return loop.PreserveSafepoints(p)
		}
		return p
	}
	return phase.NewSuite("optimize",
		canon.New(),
		condelim.NewIterative(),
		lowering.New(),
		canon.New(),
		condelim.NewIterative(),
		loop.LimitCheck{},
		loop.GuardMotion{},
		loop.NewSafepointElimination(),
		keep(canon.New()),
		keep(condelim.NewIterative()),
	)
}

// verifier returns the check run after every phase that changed the graph
func verifier(o options.Options) func(g *ir.Graph) error {
	if !o.VerifyGraph && !o.VerifyLoopProgress {
		return nil
	}
	return func(g *ir.Graph) error {
		if o.VerifyGraph {
			if err := verify.Graph(g); err != nil {
				return err
			}
		}
		if o.VerifyLoopProgress {
			return loop.VerifyProgress(g)
		}
		return nil
	}
}

// Compile optimizes a copy of g. The input graph is left untouched so that a retry
// starts from the same state.
func (c *Compiler) Compile(ctx context.Context, g *ir.Graph) *Result {
	r := &Result{ID: uuid.New(), Name: g.Name, Before: g.NodeCount()}
	start := time.Now()
	defer func() { r.Duration = time.Since(start) }()

	log.Infof("compilation %s of %s started (%d nodes)", r.ID, r.Name, r.Before)
	wd := startWatchdog(r.ID, r.Name, c.Options.Watchdog())
	defer wd.stop()

	opts := c.Options
	for {
		r.Attempts++
		out, changed, err := c.attempt(ctx, g, opts)
		if err == nil {
			r.Graph, r.Changed, r.After = out, changed, out.NodeCount()
			log.Infof("compilation %s of %s done: %d -> %d nodes", r.ID, r.Name, r.Before, r.After)
			return r
		}
		if !jerrors.IsRetryable(err) || r.Attempts > c.Options.MaxRetries {
			r.Err = err
			log.Errorf("compilation %s of %s failed after %d attempts: %s", r.ID, r.Name, r.Attempts, err)
			return r
		}
		log.Warningf("compilation %s of %s: %s, retrying", r.ID, r.Name, err)
		opts = relax(opts)
	}
}

// relax adjusts the options of a retry after a retryable bailout
func relax(o options.Options) options.Options {
	o.ConditionalEliminationMaxIterations *= 2
	o.CanonicalizerMaxIterations *= 2
	return o
}

func (c *Compiler) attempt(ctx context.Context, g *ir.Graph, opts options.Options) (*ir.Graph, []string, error) {
	work := g.Copy()
	pctx := phase.NewContext(ctx, opts)
	pctx.Verify = verifier(opts)

	pipeline := c.Pipeline
	if pipeline == nil {
		pipeline = Pipeline
	}
	suite := pipeline(opts)
	if _, err := suite.Apply(work, pctx); err != nil {
		return nil, nil, err
	}
	if err := verify.Strict(work); err != nil {
		return nil, nil, fmt.Errorf("final graph: %w", err)
	}
	return work, suite.Changed(), nil
}

// Errors joins the errors of failed results
func Errors(results []*Result) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, r.Err))
		}
	}
	return errors.Join(errs...)
}
