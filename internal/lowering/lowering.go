// Package lowering makes the implicit checks of memory accesses explicit. A field
// access gets a null check on its object; an array access gets a null check on the
// array and a bounds check on the index. The access then reads through a Pi that
// carries the proven facts, so later phases can see and remove redundant checks.
package lowering

import (
	"github.com/tliron/commonlog"

	"jitopt/internal/cond"
	"jitopt/internal/deopt"
	"jitopt/internal/ir"
	"jitopt/internal/phase"
	"jitopt/internal/stamp"
)

var log = commonlog.GetLogger("jitopt.lowering")

// Lowering is the check-introduction phase. Applying it twice would not add checks, but
// it runs once per pipeline and is wrapped accordingly.
type Lowering struct{}

func New() phase.Phase { return phase.Once(&Lowering{}) }

func (l *Lowering) Name() string { return "lower-checks" }

func (l *Lowering) Description() string {
	return "Inserts explicit null and bounds checks before memory accesses"
}

func (l *Lowering) Apply(g *ir.Graph, _ *phase.Context) (bool, error) {
	return Run(g) > 0, nil
}

// Run lowers every unchecked access and returns the number of guards inserted
func Run(g *ir.Graph) int {
	inserted := 0
	for _, n := range g.Nodes() {
		if n.Checked || g.Pred(n) == nil {
			continue
		}
		switch n.Op() {
		case ir.OpLoadField, ir.OpStoreField:
			inserted += lowerField(g, n)
		case ir.OpLoadIndexed, ir.OpStoreIndexed:
			inserted += lowerIndexed(g, n)
		default:
			continue
		}
		n.Checked = true
	}
	if inserted > 0 {
		log.Debugf("%s: inserted %d checks", g.Name, inserted)
	}
	return inserted
}

func lowerField(g *ir.Graph, n *ir.Node) int {
	obj, added := NullCheck(g, n, g.Input(n, 0), deopt.InvalidateReprofile)
	g.SetInput(n, 0, obj)
	return added
}

func lowerIndexed(g *ir.Graph, n *ir.Node) int {
	arr, added := NullCheck(g, n, g.Input(n, 0), deopt.InvalidateReprofile)
	g.SetInput(n, 0, arr)
	if BoundsCheck(g, n, arr, g.Input(n, 1), deopt.InvalidateReprofile) {
		added++
	}
	return added
}

// NullCheck guards obj against null right before the fixed node at and returns the
// value to use in its place: a non-null Pi, or obj itself when its stamp already
// excludes null. The second result counts the inserted guards.
func NullCheck(g *ir.Graph, at, obj *ir.Node, action deopt.Action) (*ir.Node, int) {
	s, ok := obj.ObjectStamp()
	if !ok || s.NonNull {
		return obj, 0
	}
	gd := g.FixedGuard(g.IsNull(obj), deopt.NullCheck, action, true)
	g.InsertBefore(at, gd)
	return g.Pi(obj, gd, stamp.ObjectOf(nil, false, true)), 1
}

// BoundsCheck guards "index |<| length(arr)" before at, unless the stamps already
// prove it. arr must be non-null.
func BoundsCheck(g *ir.Graph, at, arr, index *ir.Node, action deopt.Action) bool {
	length := g.ArrayLength(arr)
	is, iok := index.IntStamp()
	ls, lok := length.IntStamp()
	if iok && lok && stamp.FoldCondition(cond.BT, is, ls) == cond.True {
		g.KillIfDead(length)
		return false
	}
	gd := g.FixedGuard(g.Compare(cond.BT, index, length), deopt.BoundsCheck, action, false)
	g.InsertBefore(at, gd)
	return true
}
