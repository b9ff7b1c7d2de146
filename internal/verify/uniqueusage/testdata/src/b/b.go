package b

type Node struct{ id int }

type Graph struct{ nodes []*Node }

//jitopt:unique
func (g *Graph) Const(v int) *Node {
	for _, n := range g.nodes {
		if n.id == v {
			return n
		}
	}
	n := &Node{id: v}
	g.nodes = append(g.nodes, n)
	return n
}

// Link returns its argument
func (g *Graph) Link(n *Node) *Node { return n }

// Shared interns n.
//
//jitopt:unique
func Shared(g *Graph, n *Node) *Node { return g.Const(n.id) }
