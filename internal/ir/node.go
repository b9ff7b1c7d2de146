package ir

import (
	"fmt"
	"math"
	"slices"

	"jitopt/internal/cond"
	"jitopt/internal/deopt"
	"jitopt/internal/stamp"
	"jitopt/internal/types"
)

// NodeID indexes the graph arena. IDs are never reused within a graph.
type NodeID int32

// NoNode marks an absent edge
const NoNode NodeID = 0

// Node is a single IR operation. Edges are stored as IDs and are owned by the graph;
// only Graph methods change them.
type Node struct {
	id     NodeID
	op     Op
	inputs []NodeID
	usages []NodeID // one entry per input edge that points here
	succs  []NodeID
	pred   NodeID
	stamp  stamp.Stamp

	Data
}

// Data is the kind-specific payload of a node. It is part of the value-numbering key,
// so it must stay comparable and must not change while a floating node is interned.
type Data struct {
	Const     Constant
	Cond      cond.Condition // Compare
	Unordered bool           // float Compare is true on NaN operands
	Bits      int            // result width of SignExtend, ZeroExtend, Narrow
	Type      *types.Type    // InstanceOf, NewInstance, NewArray, LoadIndexed, StoreIndexed
	AllowNull bool           // InstanceOf
	Field     *types.Field   // field accesses
	Reason    deopt.Reason
	Action    deopt.Action
	Negated   bool // guards deoptimize when the condition holds
	Index     int  // Param position, LoopEnd number, Opaque serial
	Name      string
	Declared  stamp.Stamp // Param, Phi and Invoke declared stamps, Pi refinement
	Checked   bool        // memory access whose null and bounds checks are explicit
	Safepoint bool        // LoopBegin, LoopEnd
}

// ConstKind distinguishes the payload of a Constant
type ConstKind uint8

const (
	ConstNone ConstKind = iota
	ConstInt
	ConstFloat
	ConstNull
	ConstArrayRef
)

// Constant is a compile-time value. Floats are held as IEEE bits so that NaN and -0.0
// constants intern correctly.
type Constant struct {
	Kind      ConstKind
	Bits      int
	Int       int64
	FloatBits uint64
	Array     *ConstArray
}

// ConstArray is an immutable array known at compile time. Values hold integers
// sign-extended to 64 bits, or IEEE bits for float elements.
type ConstArray struct {
	Name   string
	Type   *types.Type
	Values []int64
}

// Float returns the value of a float constant
func (c Constant) Float() float64 {
	return math.Float64frombits(c.FloatBits)
}

// Stamp returns the exact stamp of the constant
func (c Constant) Stamp() stamp.Stamp {
	switch c.Kind {
	case ConstInt:
		return stamp.IntConstant(c.Bits, c.Int)
	case ConstFloat:
		return stamp.FloatConstant(c.Bits, c.Float())
	case ConstNull:
		return stamp.Null()
	case ConstArrayRef:
		return stamp.ObjectOf(c.Array.Type, true, true)
	}
	return stamp.Illegal
}

func (c Constant) String() string {
	switch c.Kind {
	case ConstInt:
		return fmt.Sprintf("i%d %d", c.Bits, c.Int)
	case ConstFloat:
		return fmt.Sprintf("f%d %v", c.Bits, c.Float())
	case ConstNull:
		return "null"
	case ConstArrayRef:
		return "@" + c.Array.Name
	}
	return "?"
}

// Element returns the value of an element of a constant array as a constant
func (a *ConstArray) Element(i int) (Constant, bool) {
	if i < 0 || i >= len(a.Values) {
		return Constant{}, false
	}
	e := a.Type.ElemPrim
	switch {
	case e.IsInteger():
		return Constant{Kind: ConstInt, Bits: e.Bits(), Int: a.Values[i]}, true
	case e.IsFloat():
		return Constant{Kind: ConstFloat, Bits: e.Bits(), FloatBits: uint64(a.Values[i])}, true
	}
	return Constant{}, false
}

func (n *Node) ID() NodeID { return n.id }
func (n *Node) Op() Op     { return n.op }

// Stamp returns the cached stamp of the node
func (n *Node) Stamp() stamp.Stamp { return n.stamp }

// IntStamp returns the stamp of an integer node
func (n *Node) IntStamp() (stamp.IntegerStamp, bool) {
	s, ok := n.stamp.(stamp.IntegerStamp)
	return s, ok
}

func (n *Node) FloatStamp() (stamp.FloatStamp, bool) {
	s, ok := n.stamp.(stamp.FloatStamp)
	return s, ok
}

func (n *Node) ObjectStamp() (stamp.ObjectStamp, bool) {
	s, ok := n.stamp.(stamp.ObjectStamp)
	return s, ok
}

// Inputs returns a copy of the input IDs
func (n *Node) Inputs() []NodeID {
	return append([]NodeID(nil), n.inputs...)
}

func (n *Node) InputCount() int { return len(n.inputs) }

// InputID returns the i-th input
func (n *Node) InputID(i int) NodeID { return n.inputs[i] }

// Usages returns the distinct users of the node in ID order
func (n *Node) Usages() []NodeID {
	return sortedUnique(n.usages)
}

// UsageCount counts input edges pointing at the node
func (n *Node) UsageCount() int { return len(n.usages) }

func (n *Node) HasUsages() bool { return len(n.usages) > 0 }

func (n *Node) Succs() []NodeID {
	return append([]NodeID(nil), n.succs...)
}

// NextID returns the successor of a fixed node with a single successor
func (n *Node) NextID() NodeID {
	if !n.op.HasNext() || len(n.succs) == 0 {
		return NoNode
	}
	return n.succs[0]
}

func (n *Node) PredID() NodeID { return n.pred }

// IsConstant reports whether the node is a Constant
func (n *Node) IsConstant() bool { return n.op == OpConstant }

// IntConstant returns the value of an integer Constant
func (n *Node) IntConstant() (int64, bool) {
	if n.op != OpConstant || n.Const.Kind != ConstInt {
		return 0, false
	}
	return n.Const.Int, true
}

// IsNullConstant reports whether the node is the null Constant
func (n *Node) IsNullConstant() bool {
	return n.op == OpConstant && n.Const.Kind == ConstNull
}

// ValueBits returns the width of an integer or float valued node, 0 otherwise
func (n *Node) ValueBits() int {
	switch s := n.stamp.(type) {
	case stamp.IntegerStamp:
		return s.Bits()
	case stamp.FloatStamp:
		return s.Bits()
	}
	return 0
}

func (n *Node) String() string {
	return fmt.Sprintf("%s#%d", n.op, n.id)
}

func sortedUnique(ids []NodeID) []NodeID {
	out := make([]NodeID, 0, len(ids))
	seen := make(map[NodeID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sortIDs(out)
	return out
}

func sortIDs(ids []NodeID) {
	slices.Sort(ids)
}
