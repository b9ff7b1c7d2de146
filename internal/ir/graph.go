package ir

import (
	"fmt"
	"slices"

	"github.com/tliron/commonlog"

	"jitopt/internal/stamp"
	"jitopt/internal/types"
)

var log = commonlog.GetLogger("jitopt.ir")

// EventKind classifies graph change notifications
type EventKind uint8

const (
	NodeAdded EventKind = iota
	InputsChanged
	NodeRemoved
)

func (e EventKind) String() string {
	switch e {
	case NodeAdded:
		return "added"
	case InputsChanged:
		return "inputs-changed"
	}
	return "removed"
}

// Listener observes graph mutations. Rewriting phases use it to requeue work.
type Listener func(EventKind, *Node)

// Graph owns every node of one compilation unit. It is not safe for concurrent use;
// a graph belongs to exactly one compilation at a time.
type Graph struct {
	Name  string
	Types *types.TypeRegistry

	nodes     []*Node // nodes[0] is always nil
	gvn       map[gvnKey]NodeID
	start     NodeID
	params    []NodeID
	mods      int
	opaque    int
	listeners []Listener
}

// gvnKey identifies a floating node by value. GVN kinds have at most three inputs.
type gvnKey struct {
	op     Op
	data   Data
	inputs [3]NodeID
	n      int
}

// NewGraph creates a graph containing only its Start node
func NewGraph(name string, reg *types.TypeRegistry) *Graph {
	if reg == nil {
		reg = types.NewTypeRegistry()
	}
	g := &Graph{
		Name:  name,
		Types: reg,
		nodes: []*Node{nil},
		gvn:   make(map[gvnKey]NodeID),
	}
	g.start = g.newNode(OpStart, Data{}, nil).id
	return g
}

// Start returns the entry node
func (g *Graph) Start() *Node { return g.nodes[g.start] }

// Node returns the live node with the given ID, or nil
func (g *Graph) Node(id NodeID) *Node {
	if id <= 0 || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// MaxID bounds every ID ever handed out, for sizing side tables
func (g *Graph) MaxID() int { return len(g.nodes) }

// ModCount increases on every structural change
func (g *Graph) ModCount() int { return g.mods }

// Nodes returns the live nodes in ID order
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

// NodeCount returns the number of live nodes
func (g *Graph) NodeCount() int {
	c := 0
	for _, n := range g.nodes {
		if n != nil {
			c++
		}
	}
	return c
}

// Count returns the number of live nodes of a kind
func (g *Graph) Count(op Op) int {
	c := 0
	for _, n := range g.nodes {
		if n != nil && n.op == op {
			c++
		}
	}
	return c
}

// NodesOf returns the live nodes of a kind in ID order
func (g *Graph) NodesOf(op Op) []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if n != nil && n.op == op {
			out = append(out, n)
		}
	}
	return out
}

// Params returns the parameters in declaration order
func (g *Graph) Params() []*Node {
	out := make([]*Node, 0, len(g.params))
	for _, id := range g.params {
		if n := g.Node(id); n != nil {
			out = append(out, n)
		}
	}
	return out
}

// AddListener registers l and returns a function that removes it
func (g *Graph) AddListener(l Listener) func() {
	g.listeners = append(g.listeners, l)
	idx := len(g.listeners) - 1
	return func() { g.listeners[idx] = nil }
}

func (g *Graph) notify(e EventKind, n *Node) {
	for _, l := range g.listeners {
		if l != nil {
			l(e, n)
		}
	}
}

// Input returns the i-th input node of n
func (g *Graph) Input(n *Node, i int) *Node {
	if i >= len(n.inputs) {
		return nil
	}
	return g.Node(n.inputs[i])
}

// InputNodes returns the input nodes of n; absent optional inputs are nil
func (g *Graph) InputNodes(n *Node) []*Node {
	out := make([]*Node, len(n.inputs))
	for i, id := range n.inputs {
		out[i] = g.Node(id)
	}
	return out
}

// UsageNodes returns the distinct live users of n in ID order
func (g *Graph) UsageNodes(n *Node) []*Node {
	ids := n.Usages()
	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		if u := g.Node(id); u != nil {
			out = append(out, u)
		}
	}
	return out
}

// Next returns the successor of a fixed node with a single successor
func (g *Graph) Next(n *Node) *Node { return g.Node(n.NextID()) }

// Pred returns the predecessor of a fixed node
func (g *Graph) Pred(n *Node) *Node { return g.Node(n.pred) }

// Succ returns the i-th successor
func (g *Graph) Succ(n *Node, i int) *Node {
	if i >= len(n.succs) {
		return nil
	}
	return g.Node(n.succs[i])
}

func (g *Graph) newNode(op Op, data Data, inputs []NodeID) *Node {
	n := &Node{
		id:     NodeID(len(g.nodes)),
		op:     op,
		inputs: slices.Clone(inputs),
		Data:   data,
	}
	switch {
	case op == OpIf:
		n.succs = []NodeID{NoNode, NoNode}
	case op.HasNext():
		n.succs = []NodeID{NoNode}
	}
	g.nodes = append(g.nodes, n)
	for _, in := range n.inputs {
		if in != NoNode {
			g.nodes[in].usages = append(g.nodes[in].usages, n.id)
		}
	}
	n.stamp = g.inferStamp(n)
	g.mods++
	g.notify(NodeAdded, n)
	return n
}

func (g *Graph) keyOf(n *Node) (gvnKey, bool) {
	return makeKey(n.op, n.Data, n.inputs)
}

func makeKey(op Op, data Data, inputs []NodeID) (gvnKey, bool) {
	if !op.IsGVN() || len(inputs) > 3 {
		return gvnKey{}, false
	}
	k := gvnKey{op: op, data: data, n: len(inputs)}
	copy(k.inputs[:], inputs)
	if op.IsCommutative() && k.n == 2 && k.inputs[1] < k.inputs[0] {
		k.inputs[0], k.inputs[1] = k.inputs[1], k.inputs[0]
	}
	return k, true
}

// unique returns the interned node equal to the candidate, creating it if needed.
// Callers must use the result; the candidate may never be materialized.
func (g *Graph) unique(op Op, data Data, inputs ...NodeID) *Node {
	for _, in := range inputs {
		if in != NoNode && g.Node(in) == nil {
			panic(fmt.Sprintf("%s input %d is not a live node", op, in))
		}
	}
	if k, ok := makeKey(op, data, inputs); ok {
		if id, found := g.gvn[k]; found {
			return g.nodes[id]
		}
		n := g.newNode(op, data, inputs)
		g.gvn[k] = n.id
		return n
	}
	return g.newNode(op, data, inputs)
}

func (g *Graph) unintern(n *Node) {
	if k, ok := g.keyOf(n); ok && g.gvn[k] == n.id {
		delete(g.gvn, k)
	}
}

// reintern records n under its current key. When an equal node already exists, n
// is merged into it and the survivor is returned.
func (g *Graph) reintern(n *Node) *Node {
	k, ok := g.keyOf(n)
	if !ok {
		return n
	}
	if id, found := g.gvn[k]; found && id != n.id {
		if e := g.nodes[id]; e != nil {
			log.Debugf("%s: %s merged into %s", g.Name, n, e)
			g.ReplaceAtUsages(n, e)
			g.Delete(n)
			return e
		}
	}
	g.gvn[k] = n.id
	return n
}

func removeOne(ids []NodeID, id NodeID) []NodeID {
	if i := slices.Index(ids, id); i >= 0 {
		return slices.Delete(ids, i, i+1)
	}
	return ids
}

// SetInput changes one input of n. Changing a floating node may make it equal to an
// existing node, in which case n is merged away and the existing node is returned.
func (g *Graph) SetInput(n *Node, i int, v *Node) *Node {
	old := n.inputs[i]
	vid := NoNode
	if v != nil {
		vid = v.id
	}
	if old == vid {
		return n
	}
	g.unintern(n)
	if o := g.Node(old); o != nil {
		o.usages = removeOne(o.usages, n.id)
	}
	n.inputs[i] = vid
	if v != nil {
		v.usages = append(v.usages, n.id)
	}
	return g.inputsChanged(n)
}

// AppendInput adds an input to a variable-arity node (Phi, Merge, LoopBegin, Invoke)
func (g *Graph) AppendInput(n *Node, v *Node) {
	g.unintern(n)
	n.inputs = append(n.inputs, v.id)
	v.usages = append(v.usages, n.id)
	g.inputsChanged(n)
}

// RemoveInput drops the i-th input of a variable-arity node
func (g *Graph) RemoveInput(n *Node, i int) {
	g.unintern(n)
	if o := g.Node(n.inputs[i]); o != nil {
		o.usages = removeOne(o.usages, n.id)
	}
	n.inputs = slices.Delete(n.inputs, i, i+1)
	g.inputsChanged(n)
}

func (g *Graph) inputsChanged(n *Node) *Node {
	g.mods++
	n.stamp = g.inferStamp(n)
	r := g.reintern(n)
	if r == n {
		g.notify(InputsChanged, n)
	}
	return r
}

// ReplaceAtUsages redirects every input edge pointing at old to repl. Users that
// become equal to existing nodes are merged, so callers must not keep references to
// users of old across this call.
func (g *Graph) ReplaceAtUsages(old, repl *Node) {
	g.ReplaceAtMatchingUsages(old, repl, nil)
}

// ReplaceAtMatchingUsages is ReplaceAtUsages restricted to the users accepted by
// filter. repl itself never has its inputs rewritten.
func (g *Graph) ReplaceAtMatchingUsages(old, repl *Node, filter func(*Node) bool) {
	if old == repl {
		return
	}
	for _, uid := range old.Usages() {
		u := g.Node(uid)
		if u == nil || u == repl || (filter != nil && !filter(u)) {
			continue
		}
		g.unintern(u)
		for i, in := range u.inputs {
			if in == old.id {
				u.inputs[i] = repl.id
				old.usages = removeOne(old.usages, u.id)
				repl.usages = append(repl.usages, u.id)
			}
		}
		g.inputsChanged(u)
	}
}

// ReplaceAndDelete replaces old by repl at all usages, deletes old and then removes
// any inputs of old that lost their last usage.
func (g *Graph) ReplaceAndDelete(old, repl *Node) {
	g.ReplaceAtUsages(old, repl)
	inputs := g.InputNodes(old)
	g.Delete(old)
	for _, in := range inputs {
		g.KillIfDead(in)
	}
}

// Delete removes n from the graph. n must have no usages.
func (g *Graph) Delete(n *Node) {
	if g.Node(n.id) != n {
		return
	}
	if len(n.usages) > 0 {
		panic(fmt.Sprintf("cannot delete %s: still used by %v", n, n.Usages()))
	}
	g.unintern(n)
	for _, in := range n.inputs {
		if o := g.Node(in); o != nil {
			o.usages = removeOne(o.usages, n.id)
		}
	}
	if p := g.Node(n.pred); p != nil {
		for i, s := range p.succs {
			if s == n.id {
				p.succs[i] = NoNode
			}
		}
	}
	for _, s := range n.succs {
		if sn := g.Node(s); sn != nil && sn.pred == n.id {
			sn.pred = NoNode
		}
	}
	n.inputs, n.succs, n.pred = nil, nil, NoNode
	g.nodes[n.id] = nil
	g.mods++
	g.notify(NodeRemoved, n)
}

// isDeadFloating reports whether n is a floating node that nothing needs
func (g *Graph) isDeadFloating(n *Node) bool {
	if n == nil || !n.op.IsFloating() || n.op == OpParam || n.op == OpGuard {
		return false
	}
	for _, u := range n.usages {
		if u != n.id {
			return false
		}
	}
	return true
}

// KillIfDead deletes n when it is an unused floating node, and then its inputs
// transitively. Parameters and guards are never removed this way.
func (g *Graph) KillIfDead(n *Node) {
	if n == nil {
		return
	}
	work := []*Node{n}
	for len(work) > 0 {
		x := work[len(work)-1]
		work = work[:len(work)-1]
		if g.Node(x.id) != x || !g.isDeadFloating(x) {
			continue
		}
		inputs := g.InputNodes(x)
		x.usages = nil // only self-references of a dead phi remain
		g.Delete(x)
		for _, in := range inputs {
			if in != nil && in != x {
				work = append(work, in)
			}
		}
	}
}

// RemoveDeadFloating deletes floating nodes that are not reachable as inputs from a
// fixed node or a guard anchored at a fixed node. It catches dead cycles through
// phis that KillIfDead does not see. Returns the number of removed nodes.
func (g *Graph) RemoveDeadFloating() int {
	live := make([]bool, len(g.nodes))
	var work []NodeID
	mark := func(id NodeID) {
		if id != NoNode && !live[id] {
			live[id] = true
			work = append(work, id)
		}
	}
	for _, n := range g.nodes {
		if n == nil {
			continue
		}
		if n.op.IsFixed() || n.op == OpParam {
			mark(n.id)
		}
		if n.op == OpGuard {
			if a := g.Input(n, 1); a != nil && a.op.IsFixed() {
				mark(n.id)
			}
		}
	}
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		for _, in := range g.nodes[id].inputs {
			mark(in)
		}
	}
	var dead []*Node
	for _, n := range g.nodes {
		if n != nil && !live[n.id] {
			dead = append(dead, n)
		}
	}
	for _, n := range dead {
		g.unintern(n)
		for _, in := range n.inputs {
			if o := g.Node(in); o != nil {
				o.usages = removeOne(o.usages, n.id)
			}
		}
		n.inputs = nil
	}
	for _, n := range dead {
		n.usages = nil
		g.Delete(n)
	}
	return len(dead)
}

// UpdateStamp recomputes the stamp of n and reports whether it changed
func (g *Graph) UpdateStamp(n *Node) bool {
	s := g.inferStamp(n)
	if s.Equals(n.stamp) {
		return false
	}
	n.stamp = s
	g.mods++
	return true
}

// Copy returns an independent deep copy of g with the same node IDs
func (g *Graph) Copy() *Graph {
	c := &Graph{
		Name:   g.Name,
		Types:  g.Types,
		nodes:  make([]*Node, len(g.nodes)),
		gvn:    make(map[gvnKey]NodeID, len(g.gvn)),
		start:  g.start,
		params: slices.Clone(g.params),
		opaque: g.opaque,
	}
	for i, n := range g.nodes {
		if n == nil {
			continue
		}
		m := *n
		m.inputs = slices.Clone(n.inputs)
		m.usages = slices.Clone(n.usages)
		m.succs = slices.Clone(n.succs)
		c.nodes[i] = &m
	}
	for k, v := range g.gvn {
		c.gvn[k] = v
	}
	return c
}

// inferStamp dispatches to the stamp rules in stampinfer.go
func (g *Graph) inferStamp(n *Node) stamp.Stamp {
	return inferStamp(g, n)
}

// InferStamp computes the stamp of n from its inputs without caching it
func (g *Graph) InferStamp(n *Node) stamp.Stamp {
	return g.inferStamp(n)
}
