// Package cfg derives basic blocks, a dominator tree and loop nesting from the fixed
// nodes of a graph. The result is a snapshot: any change to control flow invalidates it.
package cfg

import (
	"fmt"

	"jitopt/internal/ir"
)

// Block is a maximal run of fixed nodes starting at a begin node.
type Block struct {
	ID    int // position in reverse postorder
	Begin *ir.Node
	Last  *ir.Node

	// Preds follow the edge order of the begin node: forward ends of a merge in input
	// order, then loop ends by index. Unreachable ends are skipped.
	Preds []*Block
	Succs []*Block

	Dom       *Block
	Dominated []*Block // in reverse postorder
	Loop      *Loop    // innermost loop containing the block

	depth   int
	postnum int
}

func (b *Block) String() string {
	return fmt.Sprintf("B%d(%s)", b.ID, b.Begin)
}

// IsLoopHeader reports whether the block starts at a loop begin
func (b *Block) IsLoopHeader() bool { return b.Begin.Op() == ir.OpLoopBegin }

// DomDepth is the depth of the block in the dominator tree; the entry has depth 0
func (b *Block) DomDepth() int { return b.depth }

// CFG is the control-flow graph of a Graph
type CFG struct {
	Graph  *ir.Graph
	Blocks []*Block // reverse postorder; Blocks[0] is the entry
	Loops  []*Loop  // outer loops before inner ones

	blockOf map[ir.NodeID]*Block
	loopOf  map[ir.NodeID]*Loop
}

// Compute builds blocks, dominators and loops for g. Blocks unreachable from Start are
// left out.
func Compute(g *ir.Graph) *CFG {
	c := &CFG{Graph: g, blockOf: map[ir.NodeID]*Block{}, loopOf: map[ir.NodeID]*Loop{}}
	c.buildBlocks()
	c.order()
	c.computeDominators()
	c.computeLoops()
	return c
}

// Entry returns the block of the Start node
func (c *CFG) Entry() *Block { return c.Blocks[0] }

// BlockOf returns the block containing a fixed node, or the block of the anchor for a
// floating guard. It returns nil for unreachable or floating nodes.
func (c *CFG) BlockOf(n *ir.Node) *Block {
	if n.Op() == ir.OpGuard {
		if a := c.Graph.Input(n, 1); a != nil {
			return c.blockOf[a.ID()]
		}
		return nil
	}
	return c.blockOf[n.ID()]
}

// Nodes returns the fixed nodes of b in control-flow order
func (c *CFG) Nodes(b *Block) []*ir.Node {
	var out []*ir.Node
	for n := b.Begin; n != nil; n = c.Graph.Next(n) {
		out = append(out, n)
		if n == b.Last {
			break
		}
	}
	return out
}

func (c *CFG) newBlock(begin *ir.Node) *Block {
	b := &Block{Begin: begin, ID: -1}
	last := begin
	c.blockOf[begin.ID()] = b
	for last.Op().HasNext() {
		next := c.Graph.Next(last)
		if next == nil || next.Op().IsBegin() {
			break
		}
		last = next
		c.blockOf[last.ID()] = b
	}
	b.Last = last
	return b
}

// successorBegins returns the begin nodes that control reaches after b
func (c *CFG) successorBegins(b *Block) []*ir.Node {
	g := c.Graph
	last := b.Last
	switch last.Op() {
	case ir.OpIf:
		var out []*ir.Node
		for i := range 2 {
			if s := g.Succ(last, i); s != nil {
				out = append(out, s)
			}
		}
		return out
	case ir.OpEnd:
		if m := g.MergeOf(last); m != nil {
			return []*ir.Node{m}
		}
	case ir.OpLoopEnd:
		if lb := g.Input(last, 0); lb != nil {
			return []*ir.Node{lb}
		}
	default:
		if last.Op().HasNext() {
			if next := g.Next(last); next != nil {
				return []*ir.Node{next}
			}
		}
	}
	return nil
}

func (c *CFG) buildBlocks() {
	entry := c.newBlock(c.Graph.Start())
	blocks := []*Block{entry}
	stack := []*Block{entry}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range c.successorBegins(b) {
			sb, ok := c.blockOf[s.ID()]
			if !ok {
				sb = c.newBlock(s)
				blocks = append(blocks, sb)
				stack = append(stack, sb)
			}
			b.Succs = append(b.Succs, sb)
		}
	}
	// predecessors in edge order of the begin node
	for _, b := range blocks {
		switch b.Begin.Op() {
		case ir.OpMerge, ir.OpLoopBegin:
			for _, e := range c.Graph.Ends(b.Begin) {
				if pb, ok := c.blockOf[e.ID()]; ok {
					b.Preds = append(b.Preds, pb)
				}
			}
			if b.Begin.Op() == ir.OpLoopBegin {
				for _, le := range c.Graph.LoopEnds(b.Begin) {
					if pb, ok := c.blockOf[le.ID()]; ok {
						b.Preds = append(b.Preds, pb)
					}
				}
			}
		default:
			if p := c.Graph.Pred(b.Begin); p != nil {
				if pb, ok := c.blockOf[p.ID()]; ok {
					b.Preds = append(b.Preds, pb)
				}
			}
		}
	}
	c.Blocks = blocks
}

type blockAndIndex struct {
	b     *Block
	index int // number of successor edges of b already explored
}

// order numbers the blocks in postorder and sorts them into reverse postorder
func (c *CFG) order() {
	seen := make(map[*Block]bool, len(c.Blocks))
	order := make([]*Block, 0, len(c.Blocks))
	entry := c.Blocks[0]
	s := make([]blockAndIndex, 0, 32)
	s = append(s, blockAndIndex{b: entry})
	seen[entry] = true
	for len(s) > 0 {
		tos := len(s) - 1
		x := s[tos]
		b := x.b
		if i := x.index; i < len(b.Succs) {
			s[tos].index++
			bb := b.Succs[i]
			if !seen[bb] {
				seen[bb] = true
				s = append(s, blockAndIndex{b: bb})
			}
			continue
		}
		s = s[:tos]
		b.postnum = len(order)
		order = append(order, b)
	}
	rpo := make([]*Block, len(order))
	for i, b := range order {
		rpo[len(order)-1-i] = b
	}
	for i, b := range rpo {
		b.ID = i
	}
	c.Blocks = rpo
}

// intersect finds the closest dominator of both b and x.
// It requires a postorder numbering of all the blocks.
func intersect(b, x *Block) *Block {
	for b != x {
		if b.postnum < x.postnum {
			b = b.Dom
		} else {
			x = x.Dom
		}
	}
	return b
}

// computeDominators is the iterative algorithm of Cooper, Harvey and Kennedy
func (c *CFG) computeDominators() {
	entry := c.Entry()
	entry.Dom = entry
	for changed := true; changed; {
		changed = false
		for _, b := range c.Blocks[1:] {
			var d *Block
			for _, p := range b.Preds {
				if p.Dom == nil {
					continue
				}
				if d == nil {
					d = p
				} else {
					d = intersect(p, d)
				}
			}
			if d != b.Dom {
				b.Dom = d
				changed = true
			}
		}
	}
	entry.Dom = nil
	for _, b := range c.Blocks[1:] {
		b.depth = b.Dom.depth + 1
		b.Dom.Dominated = append(b.Dom.Dominated, b)
	}
}

// Dominates reports whether a dominates b. Every block dominates itself.
func Dominates(a, b *Block) bool {
	for b != nil && b.depth > a.depth {
		b = b.Dom
	}
	return a == b
}

// DominatesNode reports whether fixed node a comes before fixed node b on every path
// from Start.
func (c *CFG) DominatesNode(a, b *ir.Node) bool {
	ba, bb := c.BlockOf(a), c.BlockOf(b)
	if ba == nil || bb == nil {
		return false
	}
	if ba != bb {
		return Dominates(ba, bb)
	}
	for _, n := range c.Nodes(ba) {
		if n == a {
			return true
		}
		if n == b {
			return false
		}
	}
	return false
}

// CommonDominator returns the nearest block dominating both a and b
func CommonDominator(a, b *Block) *Block {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	for a != b {
		if a.depth > b.depth {
			a = a.Dom
		} else {
			b = b.Dom
		}
	}
	return a
}

// AvailableAt reports whether the floating value v can be computed just before the
// fixed node at: every fixed node it depends on comes strictly before at. A phi is
// available where its merge is.
func (c *CFG) AvailableAt(v, at *ir.Node) bool {
	g := c.Graph
	seen := map[ir.NodeID]bool{}
	work := []*ir.Node{v}
	for len(work) > 0 {
		x := work[len(work)-1]
		work = work[:len(work)-1]
		if x == nil || seen[x.ID()] {
			continue
		}
		seen[x.ID()] = true
		if x.Op().IsFixed() {
			if x == at || !c.DominatesNode(x, at) {
				return false
			}
			continue
		}
		if x.Op() == ir.OpPhi {
			work = append(work, g.PhiMerge(x))
			continue
		}
		work = append(work, g.InputNodes(x)...)
	}
	return true
}
