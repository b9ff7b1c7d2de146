package cfg

import (
	"slices"

	"jitopt/internal/ir"
)

// Loop is a natural loop headed by a LoopBegin.
type Loop struct {
	Header   *Block
	Parent   *Loop
	Children []*Loop
	Blocks   []*Block // header first, then reverse postorder
	Depth    int      // outermost loops have depth 1

	members map[*Block]bool
}

// Begin returns the LoopBegin node of the loop
func (l *Loop) Begin() *ir.Node { return l.Header.Begin }

// Contains reports whether b belongs to l or one of its inner loops
func (l *Loop) Contains(b *Block) bool { return l.members[b] }

// ContainsLoop reports whether inner is l or nested inside it
func (l *Loop) ContainsLoop(inner *Loop) bool {
	for ; inner != nil; inner = inner.Parent {
		if inner == l {
			return true
		}
	}
	return false
}

// LoopOf returns the loop headed by a LoopBegin
func (c *CFG) LoopOf(lb *ir.Node) *Loop { return c.loopOf[lb.ID()] }

// computeLoops collects for every reachable LoopBegin the blocks that reach one of its
// loop ends without passing through the header.
func (c *CFG) computeLoops() {
	for _, h := range c.Blocks {
		if !h.IsLoopHeader() {
			continue
		}
		l := &Loop{Header: h, members: map[*Block]bool{h: true}}
		var work []*Block
		for _, le := range c.Graph.LoopEnds(h.Begin) {
			if b := c.blockOf[le.ID()]; b != nil && !l.members[b] {
				l.members[b] = true
				work = append(work, b)
			}
		}
		for len(work) > 0 {
			b := work[len(work)-1]
			work = work[:len(work)-1]
			for _, p := range b.Preds {
				if !l.members[p] {
					l.members[p] = true
					work = append(work, p)
				}
			}
		}
		for _, b := range c.Blocks {
			if l.members[b] {
				l.Blocks = append(l.Blocks, b)
			}
		}
		c.Loops = append(c.Loops, l)
		c.loopOf[h.Begin.ID()] = l
	}
	// headers come in reverse postorder, so an enclosing loop is always seen first
	for i, l := range c.Loops {
		for j := i - 1; j >= 0; j-- {
			if c.Loops[j].members[l.Header] {
				l.Parent = c.Loops[j]
				l.Parent.Children = append(l.Parent.Children, l)
				break
			}
		}
		l.Depth = 1
		if l.Parent != nil {
			l.Depth = l.Parent.Depth + 1
		}
	}
	// innermost loop per block
	byDepth := slices.Clone(c.Loops)
	slices.SortStableFunc(byDepth, func(a, b *Loop) int { return a.Depth - b.Depth })
	for _, l := range byDepth {
		for _, b := range l.Blocks {
			b.Loop = l
		}
	}
}

// ExitBlocks returns the blocks outside the loop with a predecessor inside it
func (c *CFG) ExitBlocks(l *Loop) []*Block {
	var out []*Block
	for _, b := range c.Blocks {
		if l.Contains(b) {
			continue
		}
		for _, p := range b.Preds {
			if l.Contains(p) {
				out = append(out, b)
				break
			}
		}
	}
	return out
}
