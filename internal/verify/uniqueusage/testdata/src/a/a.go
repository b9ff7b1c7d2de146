package a

import "b"

func build(g *b.Graph) *b.Node {
	g.Const(1)             // want `result of Const is dropped but may be an existing node`
	_ = g.Const(2)         // want `result of Const is dropped but may be an existing node`
	(g.Const(3))           // want `result of Const is dropped but may be an existing node`
	defer b.Shared(g, nil) // want `result of Shared is dropped but may be an existing node`

	n := g.Const(4)
	g.Link(n)
	_, m := n, b.Shared(g, n)
	x, _ := local(g)
	_ = x
	return m
}

func local(g *b.Graph) (*b.Node, int) {
	return g.Const(5), 5
}
