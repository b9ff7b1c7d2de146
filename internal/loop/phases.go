package loop

import (
	"jitopt/internal/ir"
	"jitopt/internal/phase"
)

// LimitCheck inserts trip-count overflow guards. They are only needed by the loop
// transformations that rely on a bounded trip count, so the phase does nothing unless
// one of them is enabled.
type LimitCheck struct{}

func (LimitCheck) Name() string { return "loop-limit-check" }

func (LimitCheck) Description() string {
	return "Guards counted loops whose induction variable may overflow"
}

func (LimitCheck) Apply(g *ir.Graph, ctx *phase.Context) (bool, error) {
	o := ctx.Options
	if !o.FullUnroll && !o.LoopPeeling && !o.PartialUnroll {
		return false, nil
	}
	return InsertLimitChecks(g) > 0, nil
}

// GuardMotion hoists loop-invariant guards when MoveGuardsUpwards is set
type GuardMotion struct{}

func (GuardMotion) Name() string { return "loop-invariant-guard-motion" }

func (GuardMotion) Description() string {
	return "Moves guards that every iteration checks the same way in front of the loop"
}

func (GuardMotion) Apply(g *ir.Graph, ctx *phase.Context) (bool, error) {
	if !ctx.Options.MoveGuardsUpwards {
		return false, nil
	}
	return HoistInvariantGuards(g) > 0, nil
}

// SafepointElimination decides the safepoint flags. Later phases must keep them.
type SafepointElimination struct{}

func NewSafepointElimination() phase.Phase { return phase.Once(SafepointElimination{}) }

func (SafepointElimination) Name() string { return "loop-safepoint-elimination" }

func (SafepointElimination) Description() string {
	return "Removes safepoint polls from counted loops with a bounded trip count"
}

func (SafepointElimination) Apply(g *ir.Graph, _ *phase.Context) (bool, error) {
	return EliminateSafepoints(g) > 0, nil
}
