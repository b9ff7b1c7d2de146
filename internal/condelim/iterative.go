package condelim

import (
	"jitopt/internal/canon"
	jerrors "jitopt/internal/errors"
	"jitopt/internal/ir"
	"jitopt/internal/options"
	"jitopt/internal/phase"
)

// Iterative alternates elimination and canonicalization. Removing a guard or folding
// a branch often lets the canonicalizer simplify control flow, which in turn exposes
// more facts to the next elimination pass.
type Iterative struct{}

func NewIterative() *Iterative { return &Iterative{} }

func (i *Iterative) Name() string { return "iterative-conditional-elimination" }

func (i *Iterative) Description() string {
	return "Repeats conditional elimination and canonicalization until nothing changes"
}

func (i *Iterative) Apply(g *ir.Graph, ctx *phase.Context) (bool, error) {
	n, err := RunIterative(g, ctx.Options)
	return n > 0, err
}

// RunIterative runs elimination rounds until one finds nothing. More productive
// rounds than ConditionalEliminationMaxIterations is a retryable bailout.
func RunIterative(g *ir.Graph, opts options.Options) (int, error) {
	limit := opts.ConditionalEliminationMaxIterations
	total := 0
	for round := 1; ; round++ {
		n := Run(g, opts)
		if n == 0 {
			log.Debugf("%s: no eliminations left after %d rounds", g.Name, round)
			return total, nil
		}
		if round > limit {
			return total, jerrors.RetryableBailout(nil,
				"conditional elimination still changing after %d rounds", limit)
		}
		total += n
		m, err := canon.Run(g, opts)
		if err != nil {
			return total, err
		}
		total += m
	}
}
