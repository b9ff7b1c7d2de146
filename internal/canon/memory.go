package canon

import (
	"jitopt/internal/ir"
)

// constArray returns the array behind a constant array reference
func constArray(n *ir.Node) *ir.ConstArray {
	if n.IsConstant() && n.Const.Kind == ir.ConstArrayRef {
		return n.Const.Array
	}
	return nil
}

// element folds a[k] for a constant in-bounds index
func (t *tool) element(a *ir.ConstArray, idx *ir.Node) *ir.Node {
	k, ok := idx.IntConstant()
	if !ok {
		return nil
	}
	c, ok := a.Element(int(k))
	if !ok {
		return nil
	}
	return t.g.Const(c)
}

func (t *tool) simplifyLoadIndexed(n *ir.Node) {
	g := t.g
	arr, idx := g.Input(n, 0), g.Input(n, 1)
	a := constArray(arr)
	if a == nil {
		return
	}
	if e := t.element(a, idx); e != nil {
		t.changed(n, "folded constant load")
		g.ReplaceFixedWithFloating(n, e)
		return
	}
	switch idx.Op() {
	case ir.OpConditional:
		x, y := t.element(a, g.Input(idx, 1)), t.element(a, g.Input(idx, 2))
		switch {
		case x != nil && y != nil:
			t.changed(n, "folded constant load")
			g.ReplaceFixedWithFloating(n, g.Conditional(g.Input(idx, 0), x, y))
		case x != nil || y != nil:
			t.splitConditionalLoad(n, arr, idx, [2]*ir.Node{x, y})
		}
	case ir.OpPhi:
		t.splitLoad(n, arr, a, idx)
	}
}

// splitLoad pushes a load whose index is a phi of the directly preceding merge into
// the predecessors, where constant indices fold
func (t *tool) splitLoad(n, arr *ir.Node, a *ir.ConstArray, phi *ir.Node) {
	g := t.g
	m := g.PhiMerge(phi)
	if m.Op() != ir.OpMerge || g.Pred(n) != m {
		return
	}
	ends := g.Ends(m)
	vals := make([]*ir.Node, len(ends))
	folded := 0
	for i := range ends {
		if vals[i] = t.element(a, g.PhiValueAt(phi, i)); vals[i] != nil {
			folded++
		}
	}
	if folded == 0 {
		return
	}
	t.changed(n, "split load")
	for i, e := range ends {
		if vals[i] != nil {
			continue
		}
		ld := g.LoadIndexed(arr, g.PhiValueAt(phi, i), n.Type)
		ld.Checked = n.Checked
		g.InsertBefore(e, ld)
		vals[i] = ld
	}
	g.ReplaceFixedWithFloating(n, g.Phi(m, n.Stamp(), vals...))
}

// splitConditionalLoad turns a load whose index selects between a foldable constant
// and some other value into a branch on the selector. The folded element and the
// remaining load meet in a phi, and the load only runs on its own side.
func (t *tool) splitConditionalLoad(n, arr, sel *ir.Node, folded [2]*ir.Node) {
	g := t.g
	pred, next := g.Pred(n), g.Next(n)
	if pred == nil || next == nil {
		return
	}
	t.changed(n, "split conditional load")
	ifn, tb, fb := g.If(g.Input(sel, 0))
	begins := [2]*ir.Node{tb, fb}
	ends := [2]*ir.Node{g.End(), g.End()}
	vals := folded
	for i := range vals {
		if vals[i] != nil {
			g.SetNext(begins[i], ends[i])
			continue
		}
		ld := g.LoadIndexed(arr, g.Input(sel, i+1), n.Type)
		ld.Checked = n.Checked
		g.SetNext(begins[i], ld)
		g.SetNext(ld, ends[i])
		vals[i] = ld
	}
	m := g.Merge(ends[0], ends[1])
	g.ReplaceSucc(pred, n, ifn)
	g.SetNext(n, nil)
	g.SetNext(m, next)
	g.RemoveFixed(n, g.Phi(m, n.Stamp(), vals[0], vals[1]))
}

// simplifyLoadField turns a load of a final field of a non-null object into a floating
// read. Objects allocated in this graph are skipped since their final fields are still
// being initialized.
func (t *tool) simplifyLoadField(n *ir.Node) {
	g := t.g
	if !t.opts.OptFloatingReads || !n.Field.Final {
		return
	}
	obj := g.Input(n, 0)
	s, ok := obj.ObjectStamp()
	if !ok || !s.NonNull {
		return
	}
	root := obj
	for root.Op() == ir.OpPi {
		root = g.Input(root, 0)
	}
	if root.Op() == ir.OpNewInstance {
		return
	}
	t.changed(n, "floated read")
	g.ReplaceFixedWithFloating(n, g.FloatingRead(n.Field, obj))
}

func (t *tool) canonicalArrayLength(n *ir.Node) *ir.Node {
	g := t.g
	a := g.Input(n, 0)
	if a.Op() == ir.OpNewArray {
		return g.Input(a, 0)
	}
	if ca := constArray(a); ca != nil {
		return g.ConstInt(32, int64(len(ca.Values)))
	}
	return nil
}
